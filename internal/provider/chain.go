// ABOUTME: Provider fallback chain that walks generators until one answers
// ABOUTME: Never returns an error; the worst case is a fixed apology reply

package provider

import (
	"context"
	"log/slog"
)

// SourceError tags the fixed apology reply produced when every backend
// in the chain has failed.
const SourceError = "error"

// Chain walks an ordered list of generators and returns the first
// successful reply, tagged with the generator's name. Unconfigured
// generators are skipped without counting as failures. A chain never
// errors: if everything fails the caller gets the apology reply with
// source "error".
type Chain struct {
	generators []Generator
	logger     *slog.Logger
}

// NewChain builds a chain over the given generators, tried in order.
func NewChain(generators ...Generator) *Chain {
	return &Chain{
		generators: generators,
		logger:     slog.Default().With("component", "provider-chain"),
	}
}

// Generate returns the first successful reply in chain order.
func (c *Chain) Generate(ctx context.Context, req Request) *Reply {
	return c.walk(ctx, req, nil)
}

// GenerateStream is Generate with incremental delivery. A backend that
// fails mid-stream may already have emitted chunks; consumers treat the
// terminal event, not the chunk stream, as the authoritative answer. The
// apology is delivered as one chunk.
func (c *Chain) GenerateStream(ctx context.Context, req Request, fn StreamFunc) *Reply {
	return c.walk(ctx, req, fn)
}

func (c *Chain) walk(ctx context.Context, req Request, fn StreamFunc) *Reply {
	for _, g := range c.generators {
		if !g.Configured() {
			c.logger.Debug("skipping unconfigured provider", "provider", g.Name())
			continue
		}

		var (
			reply *Reply
			err   error
		)
		if fn != nil {
			reply, err = g.GenerateStream(ctx, req, fn)
		} else {
			reply, err = g.Generate(ctx, req)
		}
		if err != nil {
			c.logger.Warn("provider failed, trying next",
				"provider", g.Name(), "error", err)
			continue
		}

		reply.Source = g.Name()
		return reply
	}

	c.logger.Error("all providers failed, returning apology")
	reply := &Reply{Text: ApologyText, Source: SourceError}
	if fn != nil {
		// Best effort; the apology still goes back as the reply.
		_ = fn(ApologyText)
	}
	return reply
}
