package support

import (
	"encoding/json"
	"time"

	"github.com/ashureev/orderdesk/internal/catalog"
	"github.com/ashureev/orderdesk/internal/domain"
)

// DeferredMessage is shown after the primary reply, following a pause.
// Either Text is ready, or PromptKey and Items describe a second
// generation call made when the message is due.
type DeferredMessage struct {
	Text      string            `json:"text,omitempty"`
	Delay     time.Duration     `json:"-"`
	PromptKey catalog.PromptKey `json:"prompt_key,omitempty"`
	Items     string            `json:"items,omitempty"`
}

func (d DeferredMessage) pending() domain.PendingMessage {
	return domain.PendingMessage{
		Text:      d.Text,
		PromptKey: string(d.PromptKey),
		Items:     d.Items,
		Delay:     d.Delay,
	}
}

type deferredWire struct {
	Text      string            `json:"text,omitempty"`
	DelayMS   int64             `json:"delay_ms"`
	PromptKey catalog.PromptKey `json:"prompt_key,omitempty"`
	Items     string            `json:"items,omitempty"`
}

// MarshalJSON encodes the delay in milliseconds.
func (d DeferredMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(deferredWire{
		Text:      d.Text,
		DelayMS:   d.Delay.Milliseconds(),
		PromptKey: d.PromptKey,
		Items:     d.Items,
	})
}

// UnmarshalJSON decodes a delay given in milliseconds.
func (d *DeferredMessage) UnmarshalJSON(data []byte) error {
	var w deferredWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = DeferredMessage{
		Text:      w.Text,
		Delay:     time.Duration(w.DelayMS) * time.Millisecond,
		PromptKey: w.PromptKey,
		Items:     w.Items,
	}
	return nil
}

// Result is what the presentation layer renders after every operation.
type Result struct {
	Success            bool              `json:"success"`
	SessionID          string            `json:"session_id,omitempty"`
	Message            string            `json:"message,omitempty"`
	Stage              domain.Stage      `json:"stage"`
	ShowInput          bool              `json:"show_input"`
	ShowChat           bool              `json:"show_chat"`
	ShowButtons        bool              `json:"show_buttons"`
	ShowPaymentButtons bool              `json:"show_payment_buttons"`
	NeedsEscalation    bool              `json:"needs_escalation"`
	NeedsPhoto         bool              `json:"needs_photo"`
	Buttons            []string          `json:"buttons,omitempty"`
	Deferred           []DeferredMessage `json:"deferred,omitempty"`
	Resolved           bool              `json:"resolved"`
	Escalated          bool              `json:"escalated"`
	Error              string            `json:"error,omitempty"`
}

func (r *Result) applyDirective(d catalog.Directive) {
	r.ShowInput = d.ShowInput
	r.ShowChat = d.ShowChat
	r.NeedsEscalation = d.NeedsEscalation
	r.NeedsPhoto = d.NeedsPhoto
	r.ShowPaymentButtons = d.ShowPaymentButtons
}

// Directive returns the UI flags carried by the result.
func (r Result) Directive() catalog.Directive {
	return catalog.Directive{
		ShowInput:          r.ShowInput,
		ShowChat:           r.ShowChat,
		NeedsEscalation:    r.NeedsEscalation,
		NeedsPhoto:         r.NeedsPhoto,
		ShowPaymentButtons: r.ShowPaymentButtons,
	}
}

// Failure builds the structured failure result for err.
func Failure(sessionID string, err error) Result {
	return Result{SessionID: sessionID, Error: err.Error()}
}
