package domain

import (
	"fmt"
	"slices"
	"time"
)

// Role identifies who authored a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is a single message in a conversation transcript.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingMessage is an assistant message owed to the customer after a
// pause. Either Text is ready, or PromptKey and Items describe the
// generation made when it is delivered.
type PendingMessage struct {
	Text      string
	PromptKey string
	Items     string
	Delay     time.Duration
}

// NeedsGeneration reports whether the text still has to be generated.
func (p PendingMessage) NeedsGeneration() bool {
	return p.Text == "" && p.PromptKey != ""
}

// Conversation holds the state of one support session.
type Conversation struct {
	SessionID      string           `json:"session_id"`
	Category       Category         `json:"category"`
	Stage          Stage            `json:"stage"`
	CollectedItems string           `json:"collected_items,omitempty"`
	PaymentOption  string           `json:"payment_option,omitempty"`
	Resolved       bool             `json:"resolved"`
	Escalated      bool             `json:"escalated"`
	History        []HistoryEntry   `json:"history"`
	Pending        []PendingMessage `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewConversation returns a conversation in the initial stage.
func NewConversation(sessionID string, category Category) *Conversation {
	now := time.Now()
	return &Conversation{
		SessionID: sessionID,
		Category:  category,
		Stage:     StageInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Record appends a message to the history.
func (c *Conversation) Record(role Role, text string) {
	now := time.Now()
	c.History = append(c.History, HistoryEntry{
		Role:      role,
		Text:      text,
		Timestamp: now,
	})
	c.UpdatedAt = now
}

// CaptureItems stores the affected items. Only the first capture sticks.
func (c *Conversation) CaptureItems(items string) {
	if c.CollectedItems != "" {
		return
	}
	c.CollectedItems = items
}

// ChoosePaymentOption stores the payment option. Only the first choice sticks.
func (c *Conversation) ChoosePaymentOption(option string) {
	if c.PaymentOption != "" {
		return
	}
	c.PaymentOption = option
}

// Closed reports whether the conversation reached a terminal state.
func (c *Conversation) Closed() bool {
	return c.Resolved || c.Escalated
}

// Enqueue appends messages to be delivered after the current reply.
func (c *Conversation) Enqueue(msgs ...PendingMessage) {
	c.Pending = append(c.Pending, msgs...)
}

// NextPending removes and returns the oldest pending message.
func (c *Conversation) NextPending() (PendingMessage, error) {
	if len(c.Pending) == 0 {
		return PendingMessage{}, fmt.Errorf("%w: %s", ErrNoPendingMessage, c.SessionID)
	}
	next := c.Pending[0]
	c.Pending = slices.Delete(c.Pending, 0, 1)
	return next, nil
}

// Clone returns a deep copy safe to hand out of the store.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.History = slices.Clone(c.History)
	cp.Pending = slices.Clone(c.Pending)
	return &cp
}
