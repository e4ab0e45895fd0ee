package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NDJSONConfig controls the rotating NDJSON transcript file.
type NDJSONConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	QueueSize  int
}

// NDJSONLogger appends one JSON object per event to a rotating file.
type NDJSONLogger struct {
	*asyncWriter
	out *lumberjack.Logger
	enc *json.Encoder
}

// NewNDJSONLogger creates the log directory and starts the writer goroutine.
func NewNDJSONLogger(cfg NDJSONConfig, logger *slog.Logger) (*NDJSONLogger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("transcript log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript log directory: %w", err)
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}

	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	l := &NDJSONLogger{
		out: out,
		enc: json.NewEncoder(out),
	}
	// Only the writer goroutine touches enc.
	l.asyncWriter = newAsyncWriter("ndjson", cfg.QueueSize, l.encode, logger)
	return l, nil
}

func (l *NDJSONLogger) encode(e Event) error {
	if err := l.enc.Encode(e); err != nil {
		return fmt.Errorf("encode transcript event: %w", err)
	}
	return nil
}

// Close flushes queued events and closes the file.
func (l *NDJSONLogger) Close() error {
	l.drain()
	if err := l.out.Close(); err != nil {
		return fmt.Errorf("close transcript log: %w", err)
	}
	return nil
}
