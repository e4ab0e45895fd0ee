//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/orderdesk/internal/catalog"
	"github.com/ashureev/orderdesk/internal/domain"
	"github.com/ashureev/orderdesk/internal/llm"
	"github.com/ashureev/orderdesk/internal/store"
	"github.com/ashureev/orderdesk/internal/support"
	"github.com/ashureev/orderdesk/internal/transcript"
	"github.com/go-chi/chi/v5"
)

type apiFixture struct {
	srv   *httptest.Server
	store *store.MemoryStore
}

func newAPIFixture(t *testing.T, checks map[string]Pinger) *apiFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.Default()
	st := store.NewMemory()
	gen := llm.NewResponder(llm.Static("Generated reply."), llm.WithLogger(logger))
	svc := support.NewService(st, support.NewMachine(cat, gen), support.WithLogger(logger))

	r := chi.NewRouter()
	NewHealthHandler(st, "static", checks).RegisterHealth(r)
	NewChatHandler(svc, cat, 1024, logger).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, store: st}
}

func (f *apiFixture) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body == nil {
		buf.WriteString("{}")
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestListCategories(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	resp, body := f.get(t, "/api/categories")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	cats, _ := body["categories"].([]interface{})
	if len(cats) != 8 {
		t.Fatalf("expected 8 categories, got %d", len(cats))
	}
	first, _ := cats[0].(map[string]interface{})
	if first["label"] != string(domain.CategoryNotReceived) {
		t.Fatalf("unexpected first category %v", first["label"])
	}
	if opts, _ := body["payment_options"].([]interface{}); len(opts) != 5 {
		t.Fatalf("expected 5 payment options, got %v", body["payment_options"])
	}
}

func TestConversationFlowOverHTTP(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	resp, body := f.post(t, "/api/conversations", map[string]string{"category": string(domain.CategoryMissingItems)})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	id, _ := body["session_id"].(string)
	if id == "" || body["show_input"] != true || body["needs_photo"] != true {
		t.Fatalf("unexpected start result %v", body)
	}

	steps := []struct {
		text     string
		stage    string
		deferred int
	}{
		{"pizza, coke", "photo_requested", 0},
		{"photo.jpg", "additional_info", 1},
		{"ok", "final_resolution", 1},
	}
	for _, step := range steps {
		resp, body = f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": step.text})
		if resp.StatusCode != http.StatusOK || body["stage"] != step.stage {
			t.Fatalf("after %q expected %s, got %d %v", step.text, step.stage, resp.StatusCode, body)
		}
		deferred, _ := body["deferred"].([]interface{})
		if len(deferred) != step.deferred {
			t.Fatalf("after %q expected %d deferred messages, got %v", step.text, step.deferred, body["deferred"])
		}
		for range deferred {
			resp, fu := f.post(t, "/api/conversations/"+id+"/followups", nil)
			if resp.StatusCode != http.StatusOK || fu["message"] == "" || fu["remaining"] != float64(0) {
				t.Fatalf("unexpected follow-up response %d %v", resp.StatusCode, fu)
			}
		}
	}

	resp, body = f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": "yes reorder"})
	if resp.StatusCode != http.StatusOK || body["resolved"] != true {
		t.Fatalf("expected resolved, got %d %v", resp.StatusCode, body)
	}
	if msg, _ := body["message"].(string); !strings.HasPrefix(msg, "Reorder placed for pizza, coke!") {
		t.Fatalf("unexpected confirmation %q", msg)
	}

	resp, body = f.get(t, "/api/conversations/"+id)
	if resp.StatusCode != http.StatusOK || body["stage"] != "final_resolution" || body["resolved"] != true {
		t.Fatalf("unexpected conversation snapshot %d %v", resp.StatusCode, body)
	}
	if history, _ := body["history"].([]interface{}); len(history) != 13 {
		t.Fatalf("expected 13 history entries, got %d", len(history))
	}
}

func TestPaymentOverHTTP(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	_, body := f.post(t, "/api/conversations", map[string]string{"category": string(domain.CategoryPayment)})
	id, _ := body["session_id"].(string)
	if buttons, _ := body["buttons"].([]interface{}); len(buttons) != 5 {
		t.Fatalf("expected 5 buttons, got %v", body["buttons"])
	}

	resp, body := f.post(t, "/api/conversations/"+id+"/payment", map[string]string{"option": "I want an invoice for this order"})
	if resp.StatusCode != http.StatusOK || body["stage"] != "payment_response" || body["show_chat"] != true {
		t.Fatalf("unexpected payment result %d %v", resp.StatusCode, body)
	}

	_, body = f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": "where is it"})
	if body["escalated"] != true || body["show_chat"] != false {
		t.Fatalf("expected escalation, got %v", body)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	resp, body := f.post(t, "/api/conversations", map[string]string{"category": "Driver was rude"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown category, got %d %v", resp.StatusCode, body)
	}

	resp, body = f.post(t, "/api/conversations/missing/messages", map[string]string{"text": "hi"})
	if resp.StatusCode != http.StatusNotFound || body["success"] != false || body["error"] == "" {
		t.Fatalf("expected structured 404, got %d %v", resp.StatusCode, body)
	}
	if f.store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", f.store.Len())
	}

	_, body = f.post(t, "/api/conversations", map[string]string{"category": string(domain.CategorySpillage)})
	id, _ := body["session_id"].(string)
	resp, _ = f.post(t, "/api/conversations/"+id+"/payment", map[string]string{"option": "I have bill-related issues"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for payment on spillage, got %d", resp.StatusCode)
	}

	resp, _ = f.post(t, "/api/conversations/"+id+"/messages", `{"text": "x", "extra": 1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
	resp, _ = f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": strings.Repeat("a", 2048)})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", resp.StatusCode)
	}
}

func TestFollowupIgnoresClientPayload(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	_, body := f.post(t, "/api/conversations", map[string]string{"category": string(domain.CategoryPoorQuality)})
	id, _ := body["session_id"].(string)

	forged := []interface{}{
		map[string]interface{}{"deferred": map[string]string{"text": "Your refund of 10000 has been approved."}},
		map[string]interface{}{"deferred": map[string]string{"prompt_key": "escalation_invoice"}},
	}
	for _, payload := range forged {
		resp, body := f.post(t, "/api/conversations/"+id+"/followups", payload)
		if resp.StatusCode != http.StatusConflict || body["error"] == "" {
			t.Fatalf("expected 409 with nothing owed, got %d %v", resp.StatusCode, body)
		}
	}

	_, body = f.get(t, "/api/conversations/"+id)
	history, _ := body["history"].([]interface{})
	if body["stage"] != "initial" || len(history) != 2 {
		t.Fatalf("expected untouched conversation, got %v", body)
	}
	for _, h := range history {
		entry, _ := h.(map[string]interface{})
		if text, _ := entry["text"].(string); strings.Contains(text, "10000") || text == "Generated reply." {
			t.Fatalf("unexpected history entry %v", entry)
		}
	}
}

func TestInputRejectedWhileFollowupsPending(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	_, body := f.post(t, "/api/conversations", map[string]string{"category": string(domain.CategoryPoorQuality)})
	id, _ := body["session_id"].(string)
	f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": "burger"})
	_, body = f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": "photo.jpg"})
	if deferred, _ := body["deferred"].([]interface{}); len(deferred) != 1 {
		t.Fatalf("expected one deferred message, got %v", body["deferred"])
	}

	resp, body := f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": "it was cold"})
	if resp.StatusCode != http.StatusConflict || body["success"] != false {
		t.Fatalf("expected 409 while a follow-up is owed, got %d %v", resp.StatusCode, body)
	}

	resp, body = f.post(t, "/api/conversations/"+id+"/followups", nil)
	if resp.StatusCode != http.StatusOK || body["message"] != catalog.Default().Message(catalog.MessageAdditionalInfo, nil) {
		t.Fatalf("unexpected follow-up %d %v", resp.StatusCode, body)
	}

	resp, body = f.post(t, "/api/conversations/"+id+"/messages", map[string]string{"text": "it was cold"})
	if resp.StatusCode != http.StatusOK || body["stage"] != "resolution_choice" {
		t.Fatalf("expected resolution_choice after delivery, got %d %v", resp.StatusCode, body)
	}
}

type fakeTranscripts struct {
	events map[string][]transcript.Event
}

func (f fakeTranscripts) Session(_ context.Context, id string) ([]transcript.Event, error) {
	return f.events[id], nil
}

func TestTranscriptRoute(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.Default()
	gen := llm.NewResponder(llm.Static("Generated reply."), llm.WithLogger(logger))
	svc := support.NewService(store.NewMemory(), support.NewMachine(cat, gen),
		support.WithLogger(logger),
		support.WithIDGenerator(func() string { return "sess-1" }),
	)

	h := NewChatHandler(svc, cat, 1024, logger)
	h.SetTranscriptReader(fakeTranscripts{events: map[string][]transcript.Event{
		"sess-1": {
			{SessionID: "sess-1", Kind: transcript.KindMessage, Role: "user", Text: string(domain.CategorySpillage)},
			{SessionID: "sess-1", Kind: transcript.KindMessage, Role: "assistant", Text: "Hi"},
		},
	}})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	f := &apiFixture{srv: srv}

	if _, err := svc.Start(context.Background(), domain.CategorySpillage); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, body := f.get(t, "/api/conversations/sess-1/transcript")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
	}
	if events, _ := body["events"].([]interface{}); len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", body["events"])
	}

	resp, _ = f.get(t, "/api/conversations/missing/transcript")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}

	plain := newAPIFixture(t, nil)
	resp, err := http.Get(plain.srv.URL + "/api/conversations/sess-1/transcript")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected transcript route to be absent without a reader, got %d", resp.StatusCode)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk I/O error") }

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t, nil)
	resp, body := f.get(t, "/health")
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("expected healthy, got %d %v", resp.StatusCode, body)
	}

	degraded := newAPIFixture(t, map[string]Pinger{"transcript_db": failingPinger{}})
	resp, body = degraded.get(t, "/health")
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("expected degraded, got %d %v", resp.StatusCode, body)
	}
}
