// Package llm provides the public types for completion-provider integrations.
// The relay depends only on these interfaces; concrete providers live in
// internal/llm/{provider}/ adapters.
package llm

import "context"

// Provider is the interface implemented by every completion provider.
// It exposes single-prompt generation and multi-message chat completion.
type Provider interface {
	// Generate creates a completion from a single user prompt.
	Generate(ctx context.Context, prompt string) (*Response, error)

	// Chat creates a completion from an ordered list of messages.
	Chat(ctx context.Context, messages []Message) (*Response, error)
}

// HealthReporter is optionally implemented by providers that can report
// connectivity and model availability. Detected via type assertion.
type HealthReporter interface {
	// Heartbeat checks whether the provider API is reachable with the
	// configured credential.
	Heartbeat(ctx context.Context) error

	// ListModels returns the model identifiers available to the credential.
	ListModels(ctx context.Context) ([]string, error)
}
