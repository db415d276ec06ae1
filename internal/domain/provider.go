package domain

import "context"

// LLMProvider is the capability every hosted text-generation backend exposes.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "groq", "gemini").
	Name() string
}
