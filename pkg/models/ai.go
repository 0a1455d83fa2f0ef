// Package models contains shared data models used across the LogResolver codebase.
package models

import "context"

// Completer is the core interface that all text-completion integrations must implement.
// Never call specific AI providers directly — always inject this interface.
type Completer interface {
	// Complete sends a single prompt and returns the raw response text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
	// Model returns the configured model identifier.
	Model() string
}

// CompletionRequest is the input to a single completion call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}
