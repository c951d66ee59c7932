// Package ollama adapts a local Ollama model to the core.InferenceClient and
// core.ToolCapableClient contracts via langchaingo. Structured tool
// invocation is reported as unsupported, so callers always take the
// free-text extraction path.
package ollama

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/hupe1980/roundtable/core"
)

// Options configure the Ollama client adapter.
type Options struct {
	Model     string
	ServerURL string
}

// Client wraps a langchaingo Ollama LLM.
type Client struct {
	llm *ollama.LLM
}

// New creates a Client for a local Ollama server.
func New(optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		Model:     "llama3",
		ServerURL: "http://localhost:11434",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	llm, err := ollama.New(
		ollama.WithModel(opts.Model),
		ollama.WithServerURL(opts.ServerURL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize ollama client: %w", err)
	}
	return &Client{llm: llm}, nil
}

// NewFromLLM wraps an existing langchaingo Ollama LLM.
func NewFromLLM(llm *ollama.LLM) *Client { return &Client{llm: llm} }

// Chat implements core.InferenceClient.
func (c *Client) Chat(ctx context.Context, messages []core.Message, temperature float64, maxTokens int) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(roleFor(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(maxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Content, nil
}

// ChatWithTools implements core.ToolCapableClient. Ollama tool calling is
// not wired here; supported=false routes callers to free-text extraction.
func (c *Client) ChatWithTools(ctx context.Context, messages []core.Message, _ []core.ToolSchema, temperature float64, maxTokens int) (string, []core.ToolInvocation, bool, error) {
	text, err := c.Chat(ctx, messages, temperature, maxTokens)
	return text, nil, false, err
}

func roleFor(role string) schema.ChatMessageType {
	switch role {
	case "system":
		return schema.ChatMessageTypeSystem
	case "assistant":
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}

var (
	_ core.InferenceClient   = (*Client)(nil)
	_ core.ToolCapableClient = (*Client)(nil)
)
