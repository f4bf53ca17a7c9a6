// ABOUTME: OpenAI-backed answer generator, the secondary provider in the chain
// ABOUTME: Same request mapping as the Anthropic generator via langchaingo

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI generates answers via the OpenAI chat completions API. It runs
// second in the chain, behind Anthropic.
type OpenAI struct {
	apiKey string
	model  string
	logger *slog.Logger
}

// NewOpenAI builds the secondary generator. An empty apiKey leaves it
// unconfigured; the chain will skip it.
func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		apiKey: apiKey,
		model:  model,
		logger: slog.Default().With("component", "provider-openai"),
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Configured() bool { return o.apiKey != "" }

func (o *OpenAI) Generate(ctx context.Context, req Request) (*Reply, error) {
	return o.generate(ctx, req, nil)
}

func (o *OpenAI) GenerateStream(ctx context.Context, req Request, fn StreamFunc) (*Reply, error) {
	return o.generate(ctx, req, fn)
}

func (o *OpenAI) generate(ctx context.Context, req Request, fn StreamFunc) (*Reply, error) {
	client, err := openai.New(
		openai.WithToken(o.apiKey),
		openai.WithModel(o.model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	messages := buildMessages(req)
	opts := []llms.CallOption{llms.WithModel(o.model)}
	if fn != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return fn(string(chunk))
		}))
	}

	start := time.Now()
	resp, err := client.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	reply := &Reply{
		Text:    resp.Choices[0].Content,
		Model:   o.model,
		Elapsed: time.Since(start),
	}
	o.logger.Debug("generated answer", "model", o.model, "elapsed", reply.Elapsed)
	return reply, nil
}
