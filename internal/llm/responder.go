package llm

import (
	"context"
	"log/slog"
	"time"
)

// DefaultFallback is returned whenever generation fails.
const DefaultFallback = "I'm here to help you resolve this issue."

// Observer is notified after every generation attempt.
type Observer interface {
	ObserveGeneration(provider string, err error, elapsed time.Duration)
}

// Responder wraps a Client so callers always receive text.
type Responder struct {
	client   Client
	provider string
	fallback string
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithFallback sets the sentence returned on failure.
func WithFallback(text string) ResponderOption {
	return func(r *Responder) {
		if text != "" {
			r.fallback = text
		}
	}
}

// WithTimeout bounds each generation call.
func WithTimeout(d time.Duration) ResponderOption {
	return func(r *Responder) { r.timeout = d }
}

// WithLogger sets the logger used for generation failures.
func WithLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver reports each attempt, e.g. to metrics.
func WithObserver(o Observer) ResponderOption {
	return func(r *Responder) { r.observer = o }
}

// WithProvider names the backend in logs and observations.
func WithProvider(name string) ResponderOption {
	return func(r *Responder) { r.provider = name }
}

// NewResponder creates a Responder around client.
func NewResponder(client Client, opts ...ResponderOption) *Responder {
	r := &Responder{
		client:   client,
		provider: "unknown",
		fallback: DefaultFallback,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond returns the completion for prompt, or the fallback sentence.
func (r *Responder) Respond(ctx context.Context, prompt string) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.client.Generate(ctx, prompt)
	elapsed := time.Since(start)
	if r.observer != nil {
		r.observer.ObserveGeneration(r.provider, err, elapsed)
	}
	if err != nil {
		r.logger.Warn("Text generation failed, using fallback",
			"provider", r.provider,
			"elapsed", elapsed,
			"error", err,
		)
		return r.fallback
	}
	return text
}
