// Package llmtest provides shared contract tests that verify any
// llm.Provider implementation behaves the way the relay expects.
//
// The factory must return a provider wired to a backend that answers every
// completion request with at least one non-empty choice (typically an
// httptest server).
package llmtest

import (
	"context"
	"testing"

	"github.com/HerbHall/llmrelay/pkg/llm"
)

// TestProviderContract runs behavioral contract tests against a provider:
//
//	func TestContract(t *testing.T) {
//	    llmtest.TestProviderContract(t, func() llm.Provider { return newTestProvider(t, srv.URL) })
//	}
func TestProviderContract(t *testing.T, factory func() llm.Provider) {
	t.Helper()

	t.Run("Generate_returns_content", func(t *testing.T) {
		p := factory()
		resp, err := p.Generate(context.Background(), "Say hello in exactly three words")
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if resp == nil {
			t.Fatal("Generate() returned nil response")
		}
		if !resp.HasContent() {
			t.Error("Generate() returned no choices")
		}
		if resp.Content == "" {
			t.Error("Generate() returned empty content")
		}
	})

	t.Run("Chat_with_user_message", func(t *testing.T) {
		p := factory()
		resp, err := p.Chat(context.Background(), []llm.Message{
			{Role: llm.RoleUser, Content: "What is 2+2?"},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if resp == nil || resp.Content == "" {
			t.Fatalf("Chat() = %+v, want content", resp)
		}
	})

	t.Run("Generate_cancelled_context", func(t *testing.T) {
		p := factory()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Generate(ctx, "Write a very long essay about everything")
		if err == nil {
			t.Fatal("Generate() with cancelled context should return error")
		}
		if llm.IsRetryable(err) && !llm.IsTimeoutError(err) {
			t.Errorf("cancelled call classified as %q, want timeout", llm.Code(err))
		}
	})

	t.Run("Chat_empty_messages_returns_error", func(t *testing.T) {
		p := factory()
		_, err := p.Chat(context.Background(), nil)
		if err == nil {
			t.Error("Chat() with nil messages should return error")
		}
	})

	t.Run("HealthReporter_if_implemented", func(t *testing.T) {
		p := factory()
		hr, ok := p.(llm.HealthReporter)
		if !ok {
			t.Skip("Provider does not implement HealthReporter")
		}
		if err := hr.Heartbeat(context.Background()); err != nil {
			t.Errorf("Heartbeat() error = %v", err)
		}
		if _, err := hr.ListModels(context.Background()); err != nil {
			t.Fatalf("ListModels() error = %v", err)
		}
	})
}
