// ABOUTME: Generator interface and request/reply types for answer providers
// ABOUTME: Shared contract for the Anthropic, OpenAI and web-search backends

package provider

import (
	"context"
	"time"
)

// Turn is one prior exchange message passed as conversation context.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request carries everything a provider needs to produce an answer.
type Request struct {
	Message string
	History []Turn
	// Reasoner selects the provider's deeper model when it has one.
	Reasoner bool
}

// Usage reports token accounting where the backend exposes it.
type Usage struct {
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
}

// Reply is a provider's answer. Source is filled in by the chain, not by
// individual generators.
type Reply struct {
	Text    string        `json:"text"`
	Model   string        `json:"model,omitempty"`
	Source  string        `json:"source"`
	Usage   Usage         `json:"usage,omitzero"`
	Elapsed time.Duration `json:"-"`
}

// StreamFunc receives answer fragments as a streaming provider produces
// them. Returning an error aborts the stream.
type StreamFunc func(chunk string) error

// Generator is one answer backend in the fallback chain.
type Generator interface {
	// Name identifies the backend in logs and reply source tags.
	Name() string
	// Configured reports whether the backend has what it needs to run
	// (an API key, typically). Unconfigured generators are skipped.
	Configured() bool
	Generate(ctx context.Context, req Request) (*Reply, error)
	// GenerateStream produces the answer incrementally via fn and then
	// returns the assembled reply.
	GenerateStream(ctx context.Context, req Request, fn StreamFunc) (*Reply, error)
}
