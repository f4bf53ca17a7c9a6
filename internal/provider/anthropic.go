// ABOUTME: Anthropic-backed answer generator, the primary provider in the chain
// ABOUTME: Wraps langchaingo's anthropic client with model selection and history mapping

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// Anthropic generates answers via the Anthropic Messages API. It holds
// two model names: the default chat model and a reasoner model used for
// escalated requests.
type Anthropic struct {
	apiKey        string
	model         string
	reasonerModel string
	logger        *slog.Logger
}

// NewAnthropic builds the primary generator. An empty apiKey leaves it
// unconfigured; the chain will skip it.
func NewAnthropic(apiKey, model, reasonerModel string) *Anthropic {
	return &Anthropic{
		apiKey:        apiKey,
		model:         model,
		reasonerModel: reasonerModel,
		logger:        slog.Default().With("component", "provider-anthropic"),
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Configured() bool { return a.apiKey != "" }

// pickModel returns the reasoner model for escalated requests.
func (a *Anthropic) pickModel(req Request) string {
	if req.Reasoner && a.reasonerModel != "" {
		return a.reasonerModel
	}
	return a.model
}

func (a *Anthropic) Generate(ctx context.Context, req Request) (*Reply, error) {
	return a.generate(ctx, req, nil)
}

func (a *Anthropic) GenerateStream(ctx context.Context, req Request, fn StreamFunc) (*Reply, error) {
	return a.generate(ctx, req, fn)
}

func (a *Anthropic) generate(ctx context.Context, req Request, fn StreamFunc) (*Reply, error) {
	model := a.pickModel(req)
	client, err := anthropic.New(
		anthropic.WithToken(a.apiKey),
		anthropic.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating anthropic client: %w", err)
	}

	messages := buildMessages(req)
	opts := []llms.CallOption{llms.WithModel(model)}
	if fn != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return fn(string(chunk))
		}))
	}

	start := time.Now()
	resp, err := client.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anthropic returned no choices")
	}

	reply := &Reply{
		Text:    resp.Choices[0].Content,
		Model:   model,
		Elapsed: time.Since(start),
	}
	a.logger.Debug("generated answer", "model", model, "elapsed", reply.Elapsed)
	return reply, nil
}

// buildMessages maps the shared request shape onto langchaingo message
// content: an optional system preamble, then alternating history turns,
// then the live message.
func buildMessages(req Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	for _, turn := range req.History {
		role := llms.ChatMessageTypeHuman
		switch turn.Role {
		case "assistant":
			role = llms.ChatMessageTypeAI
		case "system":
			role = llms.ChatMessageTypeSystem
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Message))
	return messages
}
