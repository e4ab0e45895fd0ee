// Package llm provides text-generation clients for the support bot.
package llm

import (
	"context"
	"errors"
)

var (
	errEmptyCompletion = errors.New("completion returned no text")
)

// Client generates a short completion for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options holds settings shared by the provider clients.
type Options struct {
	Model        string
	BaseURL      string
	APIKey       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// ClientFunc adapts an ordinary function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
