package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestOpenAIClientGenerate(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Please share a photo of the pizza.  "}, "finish_reason": "stop"}]
		}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(Options{
		Model:        "test-model",
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		SystemPrompt: "be brief",
		MaxTokens:    100,
		Temperature:  0.7,
	})

	got, err := client.Generate(context.Background(), "ask for a photo")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Please share a photo of the pizza." {
		t.Fatalf("expected trimmed completion, got %q", got)
	}

	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", gotBody["messages"])
	}
	if gotBody["model"] != "test-model" {
		t.Fatalf("unexpected model %v", gotBody["model"])
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(Options{Model: "test-model", BaseURL: srv.URL, APIKey: "k"})
	if _, err := client.Generate(context.Background(), "hi"); !errors.Is(err, errEmptyCompletion) {
		t.Fatalf("expected errEmptyCompletion, got %v", err)
	}
}

func TestAnthropicClientGenerate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Sorry about the spill."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(Options{
		Model:     "claude-test",
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		MaxTokens: 100,
	})
	got, err := client.Generate(context.Background(), "apologise")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Sorry about the spill." {
		t.Fatalf("unexpected completion %q", got)
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []error
}

func (o *recordingObserver) ObserveGeneration(_ string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, err)
}

func TestResponderFallsBackOnError(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	failing := ClientFunc(func(context.Context, string) (string, error) {
		return "", errors.New("upstream unavailable")
	})
	r := NewResponder(failing,
		WithProvider("test"),
		WithObserver(obs),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	if got := r.Respond(context.Background(), "anything"); got != DefaultFallback {
		t.Fatalf("expected fallback, got %q", got)
	}
	if len(obs.calls) != 1 || obs.calls[0] == nil {
		t.Fatalf("expected one failed observation, got %v", obs.calls)
	}
}

func TestResponderCustomFallbackAndTimeout(t *testing.T) {
	t.Parallel()

	slow := ClientFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewResponder(slow,
		WithFallback("One moment please."),
		WithTimeout(10*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	if got := r.Respond(context.Background(), "anything"); got != "One moment please." {
		t.Fatalf("expected custom fallback, got %q", got)
	}
}

func TestResponderPassesThroughText(t *testing.T) {
	t.Parallel()

	r := NewResponder(Static("We are on it."))
	if got := r.Respond(context.Background(), "anything"); got != "We are on it." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	for _, name := range []string{ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderStatic, "GROQ"} {
		if _, err := New(name, Options{APIKey: "k"}); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("bard", Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
