package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderStatic    = "static"
)

const (
	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
)

// New builds the client for a provider, filling in per-provider defaults.
func New(provider string, opts Options) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderGroq:
		if opts.BaseURL == "" {
			opts.BaseURL = GroqBaseURL
		}
		if opts.Model == "" {
			opts.Model = defaultGroqModel
		}
		return NewOpenAIClient(opts), nil
	case ProviderOpenAI:
		if opts.Model == "" {
			opts.Model = defaultOpenAIModel
		}
		return NewOpenAIClient(opts), nil
	case ProviderAnthropic:
		if opts.Model == "" {
			opts.Model = defaultAnthropicModel
		}
		return NewAnthropicClient(opts), nil
	case ProviderStatic:
		return Static(DefaultFallback), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// Static returns a client that always answers with text. Useful offline.
func Static(text string) Client {
	return ClientFunc(func(context.Context, string) (string, error) {
		return text, nil
	})
}
