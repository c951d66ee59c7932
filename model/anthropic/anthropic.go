// Package anthropic adapts the Anthropic Messages API to the
// core.InferenceClient and core.ToolCapableClient contracts.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/roundtable/core"
)

// Options configure the Anthropic client adapter.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
}

// Client wraps the Anthropic Messages API.
type Client struct {
	client *anthropic.Client
	opts   Options
}

// New creates a Client using the official SDK. An empty APIKey falls back to
// the SDK's ambient configuration (ANTHROPIC_API_KEY).
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Client{client: &client, opts: opts}
}

// NewFromClient creates a Client from an existing SDK client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
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

// ChatWithTools implements core.ToolCapableClient. tool_use blocks in the
// response are mapped to core.ToolInvocation values.
func (c *Client) ChatWithTools(ctx context.Context, messages []core.Message, tools []core.ToolSchema, temperature float64, maxTokens int) (string, []core.ToolInvocation, bool, error) {
	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    buildMessages(messages),
		MaxTokens:   c.limit(maxTokens),
		Temperature: anthropic.Float(temperature),
	}
	if system := extractSystem(messages); len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", nil, true, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	var invocations []core.ToolInvocation
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			use := block.AsToolUse()
			args, merr := json.Marshal(use.Input)
			if merr != nil {
				args = []byte("{}")
			}
			invocations = append(invocations, core.ToolInvocation{
				Name:      use.Name,
				Arguments: args,
			})
		}
	}
	return text, invocations, true, nil
}

func (c *Client) limit(maxTokens int) int64 {
	if maxTokens > 0 {
		return int64(maxTokens)
	}
	return c.opts.MaxTokens
}

func extractSystem(messages []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range messages {
		if m.Role == "system" && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

func buildMessages(messages []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			// Carried via params.System.
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func buildTools(tools []core.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if t.Parameters != nil {
			if properties, ok := t.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			switch required := t.Parameters["required"].(type) {
			case []string:
				schema.Required = required
			case []any:
				for _, r := range required {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
	}
	return out
}

var (
	_ core.InferenceClient   = (*Client)(nil)
	_ core.ToolCapableClient = (*Client)(nil)
)
