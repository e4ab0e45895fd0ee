package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNDJSONLoggerWritesEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "transcript.ndjson")
	logger, err := NewNDJSONLogger(NDJSONConfig{Path: path, QueueSize: 16}, discardLogger())
	if err != nil {
		t.Fatalf("NewNDJSONLogger failed: %v", err)
	}

	logger.Log(Event{
		SessionID: "sess-1",
		Category:  "Item(s) quality is poor",
		Kind:      KindMessage,
		Stage:     "initial",
		Role:      "user",
		Text:      "paneer tikka",
	})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Text != "paneer tikka" || got.SessionID != "sess-1" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Time.IsZero() {
		t.Fatal("expected timestamp to be populated")
	}
}

func TestNDJSONLoggerRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := NewNDJSONLogger(NDJSONConfig{}, discardLogger()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLogAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "t.ndjson")
	logger, err := NewNDJSONLogger(NDJSONConfig{Path: path, QueueSize: 4}, discardLogger())
	if err != nil {
		t.Fatalf("NewNDJSONLogger failed: %v", err)
	}
	_ = logger.Close()
	logger.Log(Event{SessionID: "late"})
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSQLiteStoreRecordsSession(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "audit.db")
	s, err := NewSQLite(dbPath, 16, discardLogger())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []Event{
		{Time: ts, SessionID: "a", Category: "Payment and billing related query", Kind: KindMessage, Stage: "initial", Role: "user", Text: "Payment and billing related query"},
		{Time: ts, SessionID: "b", Category: "Item(s) has spillage issue", Kind: KindMessage, Stage: "initial", Role: "assistant", Text: "other"},
		{Time: ts, SessionID: "a", Category: "Payment and billing related query", Kind: KindTransition, FromStage: "initial", Stage: "payment_response"},
		{Time: ts, SessionID: "a", Category: "Payment and billing related query", Kind: KindTransition, FromStage: "payment_response", Stage: "payment_response", Escalated: true},
	}
	for _, e := range events {
		s.Log(e)
	}
	s.drain()

	got, err := s.Session(context.Background(), "a")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	want := []Event{events[0], events[2], events[3]}
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}

	if err := s.db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
	err    error
}

func (r *recordingSink) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	a := &recordingSink{}
	b := &recordingSink{err: errors.New("disk full")}
	sink := Multi(a, nil, b)

	sink.Log(Event{SessionID: "x"})
	err := sink.Close()

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(a.events), len(b.events))
	}
	if !a.closed || !b.closed {
		t.Fatal("expected both sinks to be closed")
	}
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined close error, got %v", err)
	}
}

func TestMultiWithoutSinksIsNop(t *testing.T) {
	t.Parallel()

	if _, ok := Multi().(Nop); !ok {
		t.Fatal("expected Nop for empty fan-out")
	}
	single := &recordingSink{}
	if got := Multi(nil, single); got != Sink(single) {
		t.Fatal("expected single sink to be returned unwrapped")
	}
}
