// Package transcript records conversation events for audit.
package transcript

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Event kinds.
const (
	KindMessage    = "message"
	KindTransition = "transition"
)

// Event is one line of a conversation transcript.
type Event struct {
	Time      time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	Category  string    `json:"category"`
	Kind      string    `json:"kind"`
	Stage     string    `json:"stage"`
	FromStage string    `json:"from_stage,omitempty"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Resolved  bool      `json:"resolved,omitempty"`
	Escalated bool      `json:"escalated,omitempty"`
}

// Sink receives transcript events. Log must not block the caller.
type Sink interface {
	Log(Event)
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Log implements Sink.
func (Nop) Log(Event) {}

// Close implements Sink.
func (Nop) Close() error { return nil }

// Multi fans events out to several sinks.
func Multi(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return Nop{}
	case 1:
		return filtered[0]
	}
	return multi(filtered)
}

type multi []Sink

func (m multi) Log(e Event) {
	for _, s := range m {
		s.Log(e)
	}
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// asyncWriter decouples Log from a slow write function with a bounded queue.
// When the queue is full the event is dropped and a warning is logged.
type asyncWriter struct {
	name   string
	write  func(Event) error
	events chan Event
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

func newAsyncWriter(name string, queueSize int, write func(Event) error, logger *slog.Logger) *asyncWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	w := &asyncWriter{
		name:   name,
		write:  write,
		events: make(chan Event, queueSize),
		logger: logger,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *asyncWriter) Log(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.events <- e:
	default:
		w.logger.Warn("Transcript queue full, dropping event",
			"sink", w.name,
			"session_id", e.SessionID,
			"queue_len", len(w.events),
		)
	}
}

func (w *asyncWriter) run() {
	defer w.wg.Done()
	for e := range w.events {
		if err := w.write(e); err != nil {
			w.logger.Warn("Transcript write failed",
				"sink", w.name,
				"session_id", e.SessionID,
				"error", err,
			)
		}
	}
}

// drain stops accepting events and waits for the queue to empty.
func (w *asyncWriter) drain() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.events)
		w.mu.Unlock()
	})
	w.wg.Wait()
}
