// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                string
	AllowedOrigins      []string
	LogLevel            slog.Level
	CatalogPath         string // empty uses the embedded catalog
	MetricsEnabled      bool
	MaxRequestBodyBytes int64
	DeferredDelayScale  float64
	LLM                 LLMConfig
	Transcript          TranscriptConfig
}

// LLMConfig selects and tunes the text-generation backend.
type LLMConfig struct {
	Provider        string
	Model           string
	BaseURL         string
	GroqAPIKey      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	FallbackMessage string
}

// TranscriptConfig controls conversation transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Path      string
	MaxSizeMB int
	QueueSize int
	DBPath    string // empty disables the SQLite audit table
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:            parseLevel(getEnv("LOG_LEVEL", "info")),
		CatalogPath:         getEnv("CATALOG_PATH", ""),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 64<<10)),
		DeferredDelayScale:  getEnvFloat("DEFERRED_DELAY_SCALE", 1.0),
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
			Model:           getEnv("LLM_MODEL", ""),
			BaseURL:         getEnv("LLM_BASE_URL", ""),
			GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 100),
			Temperature:     getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:         getEnvDuration("LLM_TIMEOUT", 20*time.Second),
			FallbackMessage: getEnv("LLM_FALLBACK_MESSAGE", ""),
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_LOG_ENABLED", true),
			Path:      getEnv("TRANSCRIPT_LOG_PATH", "./data/logs/transcripts.ndjson"),
			MaxSizeMB: getEnvInt("TRANSCRIPT_LOG_MAX_SIZE_MB", 50),
			QueueSize: queueSize,
			DBPath:    getEnv("TRANSCRIPT_DB_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.DeferredDelayScale < 0 {
		return fmt.Errorf("DEFERRED_DELAY_SCALE cannot be negative")
	}
	switch c.LLM.Provider {
	case "groq", "openai", "anthropic", "static":
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Path == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_PATH cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *LLMConfig) APIKey() string {
	switch c.Provider {
	case "groq":
		return c.GroqAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

// EffectiveProvider falls back to "static" when the provider needs a key
// that is not set.
func (c *LLMConfig) EffectiveProvider() string {
	if c.Provider != "static" && c.APIKey() == "" {
		return "static"
	}
	return c.Provider
}

// ScaleDelay applies DeferredDelayScale to a deferred-message delay.
func (c *Config) ScaleDelay(d time.Duration) time.Duration {
	return time.Duration(float64(d) * c.DeferredDelayScale)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}
