package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/toolcall"
)

const (
	contextTopK        = 10
	contextSnippetSize = 200
)

// Memory is the slice of the memory store an agent consumes: semantic
// retrieval for prompt context and recording of its own output.
type Memory interface {
	SemanticSearch(ctx context.Context, q memory.SemanticQuery) ([]core.ScoredInteraction, error)
	Record(ctx context.Context, in memory.RecordInput) (string, error)
}

// Options configure an Agent.
type Options struct {
	// Temperature and MaxTokens are passed through to the inference client.
	Temperature float64
	MaxTokens   int

	// Memory enables context retrieval and turn recording. Nil disables both.
	Memory Memory
	// Scope restricts memory reads and writes. Defaults to unconstrained.
	Scope ScopeOptions

	// Engine executes action requests found in replies. Nil disables tools.
	Engine *toolcall.Engine
	// AllowedActions is the engine allow-list for this agent. Nil allows
	// every registered action; empty allows none.
	AllowedActions []string

	Logger logging.Logger
}

// ScopeOptions bind an agent's memory accesses to a session.
type ScopeOptions struct {
	// SessionID scopes retrieval and recording when non-empty.
	SessionID string
}

// Agent is the default inference-backed core.Actor. Respond is synchronous;
// any authorized side effects requested in the reply are executed before the
// annotated text is returned.
type Agent struct {
	name        string
	description string
	client      core.InferenceClient
	opts        Options
}

// New constructs an Agent. The description doubles as the system prompt and
// as the routing blurb other components show about this actor.
func New(name, description string, client core.InferenceClient, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{name: name, description: description, client: client, opts: opts}
}

// Name implements core.Actor.
func (a *Agent) Name() string { return a.name }

// Description implements core.Actor.
func (a *Agent) Description() string { return a.description }

// Respond implements core.Actor. The reply pipeline is: retrieve memory
// context, chat (structured invocations when the provider supports them,
// free-text extraction otherwise), execute authorized action requests,
// record the annotated output, return it.
func (a *Agent) Respond(ctx context.Context, prompt string) (string, error) {
	messages := []core.Message{
		{Role: "system", Content: a.systemPrompt(ctx, prompt)},
		{Role: "user", Content: prompt},
	}

	text, invocations, err := a.chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", a.name, err)
	}

	annotated := a.applyActions(ctx, text, invocations)
	a.record(ctx, prompt, annotated)
	return annotated, nil
}

// chat prefers the structured tool path and falls back to plain chat when
// the client or provider does not support it.
func (a *Agent) chat(ctx context.Context, messages []core.Message) (string, []core.ToolInvocation, error) {
	tc, ok := a.client.(core.ToolCapableClient)
	if !ok || a.opts.Engine == nil {
		text, err := a.client.Chat(ctx, messages, a.opts.Temperature, a.opts.MaxTokens)
		return text, nil, err
	}

	schemas := a.toolSchemas()
	text, invocations, supported, err := tc.ChatWithTools(ctx, messages, schemas, a.opts.Temperature, a.opts.MaxTokens)
	if err != nil {
		return "", nil, err
	}
	if !supported {
		return text, nil, nil
	}
	return text, invocations, nil
}

// applyActions executes structured invocations first, then runs free-text
// extraction over the reply. Both paths honor the allow-list and degrade
// failures to inline annotations.
func (a *Agent) applyActions(ctx context.Context, text string, invocations []core.ToolInvocation) string {
	if a.opts.Engine == nil {
		return text
	}

	var notes []string
	for _, inv := range invocations {
		res := a.opts.Engine.ExecuteInvocation(ctx, inv, a.opts.AllowedActions)
		notes = append(notes, toolcall.Marker(res))
	}

	annotated, _ := a.opts.Engine.Execute(ctx, text, a.opts.AllowedActions)
	if len(notes) > 0 {
		if annotated != "" {
			annotated += "\n"
		}
		annotated += strings.Join(notes, "\n")
	}
	return annotated
}

// systemPrompt assembles the agent persona, the tools digest and retrieved
// memory context.
func (a *Agent) systemPrompt(ctx context.Context, prompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s", a.name, a.description)

	if digest := a.toolsDigest(); digest != "" {
		b.WriteString("\n\n")
		b.WriteString(digest)
	}
	if recalled := a.memoryContext(ctx, prompt); recalled != "" {
		b.WriteString("\n\n")
		b.WriteString(recalled)
	}
	return b.String()
}

// toolsDigest lists the allowed actions and the request syntax.
func (a *Agent) toolsDigest() string {
	if a.opts.Engine == nil {
		return ""
	}
	actions := a.opts.Engine.Allowed(a.opts.AllowedActions)
	if len(actions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You can use tools by emitting <TOOL_CALL tool=\"name\">{...json params...}</TOOL_CALL> in your reply. Available tools:\n")
	for _, action := range actions {
		fmt.Fprintf(&b, "- %s: %s\n", action.Name(), action.Description())
	}
	return strings.TrimRight(b.String(), "\n")
}

// memoryContext retrieves relevant prior interactions. Retrieval failures
// are logged and produce no context.
func (a *Agent) memoryContext(ctx context.Context, prompt string) string {
	if a.opts.Memory == nil {
		return ""
	}
	scored, err := a.opts.Memory.SemanticSearch(ctx, memory.SemanticQuery{
		Text:    prompt,
		Session: a.sessionScope(),
		TopK:    contextTopK,
	})
	if err != nil {
		a.opts.Logger.Warn("memory retrieval failed", "agent", a.name, "error", err)
		return ""
	}
	if len(scored) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant prior context:\n")
	for _, s := range scored {
		fmt.Fprintf(&b, "- [%.2f] %s: %s\n", s.Score, s.Actor, clip(s.Content, contextSnippetSize))
	}
	return strings.TrimRight(b.String(), "\n")
}

// record stores the produced reply as a chat interaction. Best effort.
func (a *Agent) record(ctx context.Context, prompt, reply string) {
	if a.opts.Memory == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"prompt": clip(prompt, contextSnippetSize)})
	_, err := a.opts.Memory.Record(ctx, memory.RecordInput{
		Actor:     a.name,
		Kind:      core.KindChat,
		Content:   reply,
		Metadata:  meta,
		SessionID: a.opts.Scope.SessionID,
	})
	if err != nil {
		a.opts.Logger.Warn("memory record failed", "agent", a.name, "error", err)
	}
}

func (a *Agent) sessionScope() memory.SessionFilter {
	if a.opts.Scope.SessionID != "" {
		return memory.InSession(a.opts.Scope.SessionID)
	}
	return memory.AnySession()
}

func (a *Agent) toolSchemas() []core.ToolSchema {
	actions := a.opts.Engine.Allowed(a.opts.AllowedActions)
	schemas := make([]core.ToolSchema, len(actions))
	for i, action := range actions {
		schemas[i] = action.Schema()
	}
	return schemas
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ core.Actor = (*Agent)(nil)
