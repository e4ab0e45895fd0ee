package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/orderdesk/internal/app"
	"github.com/ashureev/orderdesk/internal/config"
	"github.com/ashureev/orderdesk/internal/llm"
)

func newTestApp(t *testing.T, port string) (*config.Config, *app.App) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Port:                port,
		AllowedOrigins:      []string{"*"},
		MaxRequestBodyBytes: 1024,
		LLM: config.LLMConfig{
			Provider: llm.ProviderStatic,
			Timeout:  time.Second,
		},
		Transcript: config.TranscriptConfig{
			Enabled:   true,
			Path:      filepath.Join(dir, "transcripts.ndjson"),
			QueueSize: 16,
			DBPath:    filepath.Join(dir, "audit.db"),
		},
	}

	deps, err := app.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return cfg, deps
}

func TestServeClosesSinksWhenListenFails(t *testing.T) {
	cfg, deps := newTestApp(t, "-1")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := serve(ctx, cfg, deps, logger); err == nil {
		t.Fatal("expected serve to fail on an invalid port")
	}
	if err := deps.Audit.Ping(context.Background()); err == nil {
		t.Fatal("expected transcript database to be closed after a failed serve")
	}
}

func TestServeClosesSinksOnShutdown(t *testing.T) {
	cfg, deps := newTestApp(t, "0")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, deps, logger) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	if err := deps.Audit.Ping(context.Background()); err == nil {
		t.Fatal("expected transcript database to be closed after shutdown")
	}
}
