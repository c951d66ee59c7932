// Package openai adapts the OpenAI Chat Completions API to the
// core.InferenceClient and core.ToolCapableClient contracts. Non-streaming
// only; per-call temperature and token limits override the configured
// defaults when set.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/roundtable/core"
)

// Options configure the OpenAI client adapter.
type Options struct {
	Model     string
	MaxTokens int64
}

// Client wraps the OpenAI Chat Completions API.
type Client struct {
	client *openai.Client
	opts   Options
}

// New creates a Client using the official SDK's ambient configuration
// (OPENAI_API_KEY and friends).
func New(optFns ...func(o *Options)) *Client {
	c := openai.NewClient()
	return NewFromClient(&c, optFns...)
}

// NewFromClient creates a Client from an existing SDK client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:     openai.ChatModelGPT4oMini,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Chat implements core.InferenceClient.
func (c *Client) Chat(ctx context.Context, messages []core.Message, temperature float64, maxTokens int) (string, error) {
	text, _, _, err := c.ChatWithTools(ctx, messages, nil, temperature, maxTokens)
	return text, err
}

// ChatWithTools implements core.ToolCapableClient. Structured tool calls
// surfaced by the API are mapped to core.ToolInvocation values.
func (c *Client) ChatWithTools(ctx context.Context, messages []core.Message, tools []core.ToolSchema, temperature float64, maxTokens int) (string, []core.ToolInvocation, bool, error) {
	params := openai.ChatCompletionNewParams{
		Model:               c.opts.Model,
		Messages:            buildMessages(messages),
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(c.limit(maxTokens)),
	}
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, true, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, true, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0]
	invocations := make([]core.ToolInvocation, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		invocations = append(invocations, core.ToolInvocation{
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return choice.Message.Content, invocations, true, nil
}

func (c *Client) limit(maxTokens int) int64 {
	if maxTokens > 0 {
		return int64(maxTokens)
	}
	return c.opts.MaxTokens
}

func buildMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func buildTools(tools []core.ToolSchema) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

var (
	_ core.InferenceClient   = (*Client)(nil)
	_ core.ToolCapableClient = (*Client)(nil)
)
