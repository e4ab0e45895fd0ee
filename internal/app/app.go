// Package app assembles the support service from configuration. Both the
// HTTP server and the terminal client start from here.
package app

import (
	"fmt"
	"log/slog"

	"github.com/ashureev/orderdesk/internal/catalog"
	"github.com/ashureev/orderdesk/internal/config"
	"github.com/ashureev/orderdesk/internal/llm"
	"github.com/ashureev/orderdesk/internal/metrics"
	"github.com/ashureev/orderdesk/internal/store"
	"github.com/ashureev/orderdesk/internal/support"
	"github.com/ashureev/orderdesk/internal/transcript"
)

// App holds the wired components.
type App struct {
	Catalog    *catalog.Catalog
	Store      *store.MemoryStore
	Service    *support.Service
	Metrics    *metrics.Metrics
	Provider   string
	Transcript transcript.Sink
	// Audit is nil unless TRANSCRIPT_DB_PATH is set.
	Audit *transcript.SQLiteStore
}

// New builds the catalog, generator, store, transcript sinks and service.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	provider := cfg.LLM.EffectiveProvider()
	if provider != cfg.LLM.Provider {
		logger.Warn("LLM API key missing, using static replies", "provider", cfg.LLM.Provider)
	}

	gen, err := NewResponder(cfg, cat, provider, m, logger)
	if err != nil {
		return nil, err
	}

	sinks, audit, err := openTranscripts(cfg, logger)
	if err != nil {
		return nil, err
	}

	st := store.NewMemory()
	svc := support.NewService(st, support.NewMachine(cat, gen),
		support.WithSink(sinks),
		support.WithMetrics(m),
		support.WithLogger(logger),
	)

	return &App{
		Catalog:    cat,
		Store:      st,
		Service:    svc,
		Metrics:    m,
		Provider:   provider,
		Transcript: sinks,
		Audit:      audit,
	}, nil
}

// Close flushes the transcript sinks.
func (a *App) Close() error {
	return a.Transcript.Close()
}

// LoadCatalog reads the catalog at path, or the embedded one when path is empty.
func LoadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

// NewResponder builds the generation client for provider and wraps it with
// the configured fallback and timeout.
func NewResponder(cfg *config.Config, cat *catalog.Catalog, provider string, obs llm.Observer, logger *slog.Logger) (*llm.Responder, error) {
	client, err := llm.New(provider, llm.Options{
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey(),
		SystemPrompt: cat.SystemPrompt(),
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, err
	}

	fallback := cfg.LLM.FallbackMessage
	if fallback == "" {
		fallback = cat.Fallback()
	}

	opts := []llm.ResponderOption{
		llm.WithFallback(fallback),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithLogger(logger),
		llm.WithProvider(provider),
	}
	if obs != nil {
		opts = append(opts, llm.WithObserver(obs))
	}
	return llm.NewResponder(client, opts...), nil
}

func openTranscripts(cfg *config.Config, logger *slog.Logger) (transcript.Sink, *transcript.SQLiteStore, error) {
	var sinks []transcript.Sink

	if cfg.Transcript.Enabled {
		ndjson, err := transcript.NewNDJSONLogger(transcript.NDJSONConfig{
			Path:       cfg.Transcript.Path,
			MaxSizeMB:  cfg.Transcript.MaxSizeMB,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
			QueueSize:  cfg.Transcript.QueueSize,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open transcript log: %w", err)
		}
		sinks = append(sinks, ndjson)
	}

	var audit *transcript.SQLiteStore
	if cfg.Transcript.DBPath != "" {
		db, err := transcript.NewSQLite(cfg.Transcript.DBPath, cfg.Transcript.QueueSize, logger)
		if err != nil {
			_ = transcript.Multi(sinks...).Close()
			return nil, nil, fmt.Errorf("open transcript db: %w", err)
		}
		audit = db
		sinks = append(sinks, db)
	}

	return transcript.Multi(sinks...), audit, nil
}
