package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/extractor"
	"github.com/sells-group/entity-extractor/internal/resilience"
)

// Caller adapts a Client to extractor.Service. It sends one user message per
// prompt and returns the concatenated text of the reply.
type Caller struct {
	client      Client
	model       string
	maxTokens   int64
	cacheSystem bool
	temperature *float64
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithPromptCaching marks the system prompt as cacheable. The system prompt
// is identical for every chunk, so later requests read it from the cache.
func WithPromptCaching() CallerOption {
	return func(c *Caller) { c.cacheSystem = true }
}

// WithTemperature sets the sampling temperature sent with every request.
func WithTemperature(t float64) CallerOption {
	return func(c *Caller) { c.temperature = &t }
}

// NewCaller creates a Caller for the given model.
func NewCaller(client Client, model string, maxTokens int64, opts ...CallerOption) *Caller {
	c := &Caller{client: client, model: model, maxTokens: maxTokens}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ extractor.Service = (*Caller)(nil)

// Call implements extractor.Service.
func (c *Caller) Call(ctx context.Context, prompt extractor.Prompt) (string, error) {
	req := MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Messages:    []Message{{Role: "user", Content: prompt.User}},
		Temperature: c.temperature,
	}
	if prompt.System != "" {
		req.System = c.systemBlocks(prompt.System)
	}

	resp, err := c.client.CreateMessage(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", resilience.NewServiceError(eris.New("anthropic: empty response"), 0)
	}

	zap.L().Debug("anthropic: message complete",
		append(resp.Usage.Fields(c.model), zap.String("stop_reason", resp.StopReason))...,
	)
	return resp.Text(), nil
}

func (c *Caller) systemBlocks(text string) []SystemBlock {
	block := SystemBlock{Text: text}
	if c.cacheSystem {
		block.CacheControl = &CacheControl{TTL: "5m"}
	}
	return []SystemBlock{block}
}
