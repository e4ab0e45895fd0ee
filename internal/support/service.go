package support

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/orderdesk/internal/domain"
	"github.com/ashureev/orderdesk/internal/metrics"
	"github.com/ashureev/orderdesk/internal/store"
	"github.com/ashureev/orderdesk/internal/transcript"
	"github.com/google/uuid"
)

// Service binds the state machine to a session store and records every
// turn to the transcript sink.
type Service struct {
	store   store.SessionStore
	machine *Machine
	sink    transcript.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithSink sets the transcript sink.
func WithSink(sink transcript.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator overrides session id allocation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service.
func NewService(st store.SessionStore, machine *Machine, opts ...Option) *Service {
	s := &Service{
		store:   st,
		machine: machine,
		sink:    transcript.Nop{},
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a conversation for category and returns its first reply.
func (s *Service) Start(ctx context.Context, category domain.Category) (Result, error) {
	if !category.Valid() {
		return Result{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}

	conv := domain.NewConversation(s.newID(), category)
	res, err := s.machine.Start(conv)
	if err != nil {
		return Result{}, fmt.Errorf("start conversation: %w", err)
	}
	if err := s.store.Create(ctx, conv); err != nil {
		return Result{}, fmt.Errorf("store conversation: %w", err)
	}

	s.logger.Info("Conversation started",
		"session_id", conv.SessionID,
		"category", category,
	)
	s.metrics.ConversationStarted(category.String())
	s.metrics.SetSessions(s.store.Len())
	s.recordMessages(conv, 0)
	return res, nil
}

// Process feeds a user input to the conversation.
func (s *Service) Process(ctx context.Context, sessionID, input string) (Result, error) {
	return s.transition(ctx, sessionID, func(conv *domain.Conversation) (Result, error) {
		return s.machine.Process(ctx, conv, input), nil
	})
}

// SelectPayment applies a payment option button to the conversation.
func (s *Service) SelectPayment(ctx context.Context, sessionID, label string) (Result, error) {
	return s.transition(ctx, sessionID, func(conv *domain.Conversation) (Result, error) {
		return s.machine.SelectPayment(ctx, conv, label)
	})
}

// Followup delivers the next pending message of the conversation. It fails
// with ErrNoPendingMessage when nothing is owed.
func (s *Service) Followup(ctx context.Context, sessionID string) (string, error) {
	var text string
	var before int
	conv, err := s.store.Update(ctx, sessionID, func(c *domain.Conversation) error {
		before = len(c.History)
		var stepErr error
		text, stepErr = s.machine.Followup(ctx, c)
		return stepErr
	})
	if err != nil {
		return "", err
	}
	s.recordMessages(conv, before)
	return text, nil
}

// Pending reports how many follow-up messages are still owed.
func (s *Service) Pending(ctx context.Context, sessionID string) (int, error) {
	conv, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(conv.Pending), nil
}

// Conversation returns a snapshot of the conversation.
func (s *Service) Conversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	return s.store.Get(ctx, sessionID)
}

func (s *Service) transition(ctx context.Context, sessionID string, step func(*domain.Conversation) (Result, error)) (Result, error) {
	var res Result
	var from domain.Stage
	var before int
	var wasResolved, wasEscalated bool

	conv, err := s.store.Update(ctx, sessionID, func(c *domain.Conversation) error {
		from = c.Stage
		before = len(c.History)
		wasResolved, wasEscalated = c.Resolved, c.Escalated
		if n := len(c.Pending); n > 0 {
			return fmt.Errorf("%w: %d owed on %s", domain.ErrMessagesPending, n, sessionID)
		}
		var stepErr error
		res, stepErr = step(c)
		return stepErr
	})
	if err != nil {
		s.logger.Warn("Conversation transition rejected",
			"session_id", sessionID,
			"error", err,
		)
		return Failure(sessionID, err), err
	}

	s.logger.Debug("Conversation transition",
		"session_id", sessionID,
		"category", conv.Category,
		"from", from,
		"stage", conv.Stage,
		"resolved", conv.Resolved,
		"escalated", conv.Escalated,
	)
	s.metrics.Transition(from.String(), conv.Stage.String(),
		conv.Resolved && !wasResolved,
		conv.Escalated && !wasEscalated,
	)
	s.recordMessages(conv, before)
	s.sink.Log(transcript.Event{
		SessionID: conv.SessionID,
		Category:  conv.Category.String(),
		Kind:      transcript.KindTransition,
		FromStage: from.String(),
		Stage:     conv.Stage.String(),
		Resolved:  conv.Resolved,
		Escalated: conv.Escalated,
	})
	return res, nil
}

func (s *Service) recordMessages(conv *domain.Conversation, from int) {
	for _, h := range conv.History[from:] {
		s.sink.Log(transcript.Event{
			Time:      h.Timestamp.UTC(),
			SessionID: conv.SessionID,
			Category:  conv.Category.String(),
			Kind:      transcript.KindMessage,
			Stage:     conv.Stage.String(),
			Role:      string(h.Role),
			Text:      h.Text,
		})
	}
}
