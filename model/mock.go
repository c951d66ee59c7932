package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/roundtable/core"
)

// Reply is one scripted answer a Mock hands out.
type Reply struct {
	Text        string
	Invocations []core.ToolInvocation
	Err         error
}

// Mock is a deterministic in-memory inference client for tests and examples.
// Scripted replies are consumed in order; when the script is empty, canned
// prompt-keyed responses are tried, and finally a generic echo of the last
// user message. Safe for concurrent use.
type Mock struct {
	mu            sync.Mutex
	script        []Reply
	canned        map[string]string
	supportsTools bool
	calls         int
}

// NewMock constructs a Mock without tool support, exercising the free-text
// extraction path.
func NewMock() *Mock {
	return &Mock{canned: make(map[string]string)}
}

// NewToolCapableMock constructs a Mock that reports tool support.
func NewToolCapableMock() *Mock {
	return &Mock{canned: make(map[string]string), supportsTools: true}
}

// Enqueue appends scripted text replies consumed first-in first-out.
func (m *Mock) Enqueue(texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.script = append(m.script, Reply{Text: t})
	}
}

// EnqueueReply appends a fully specified scripted reply.
func (m *Mock) EnqueueReply(r Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, r)
}

// AddResponse registers a canned completion keyed on the last user message.
func (m *Mock) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canned[prompt] = response
}

// Calls reports how many chat calls the mock has served.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Chat implements core.InferenceClient.
func (m *Mock) Chat(ctx context.Context, messages []core.Message, temperature float64, maxTokens int) (string, error) {
	text, _, _, err := m.ChatWithTools(ctx, messages, nil, temperature, maxTokens)
	return text, err
}

// ChatWithTools implements core.ToolCapableClient.
func (m *Mock) ChatWithTools(ctx context.Context, messages []core.Message, _ []core.ToolSchema, _ float64, _ int) (string, []core.ToolInvocation, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, m.supportsTools, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		return r.Text, r.Invocations, m.supportsTools, r.Err
	}

	prompt := lastUserMessage(messages)
	if canned, ok := m.canned[prompt]; ok {
		return canned, nil, m.supportsTools, nil
	}
	return fmt.Sprintf("Mock response to: %s", prompt), nil, m.supportsTools, nil
}

func lastUserMessage(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}

var (
	_ core.InferenceClient   = (*Mock)(nil)
	_ core.ToolCapableClient = (*Mock)(nil)
)
