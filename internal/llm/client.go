// Package llm provides the oracle clients backing the decision loop.
package llm

import "context"

// Client is the interface every oracle provider implements. The agent
// loop is written against this interface so tests can substitute a
// scripted client for the real model.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
