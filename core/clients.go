package core

import (
	"context"
	"encoding/json"
	"time"
)

// Message is a single chat message exchanged with an inference provider.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// InferenceClient is the minimal contract consumed from a model provider.
type InferenceClient interface {
	// Chat sends the messages and returns the model's text reply.
	Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error)
}

// ToolSchema declaratively exposes a callable action to a provider that
// supports structured tool invocation.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ToolInvocation is a structured call surfaced by a tool-capable provider.
type ToolInvocation struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCapableClient extends InferenceClient with structured tool invocation.
// Supported=false in the return signals that the provider ignored the tool
// schemas; callers must then fall back to free-text extraction. Consumers
// must function correctly with either answer.
type ToolCapableClient interface {
	InferenceClient

	ChatWithTools(ctx context.Context, messages []Message, tools []ToolSchema, temperature float64, maxTokens int) (text string, invocations []ToolInvocation, supported bool, err error)
}

// EmbeddingClient produces embedding vectors for text. A failed embed is an
// error, not a panic; callers degrade gracefully (null embedding on record,
// recency-only retrieval on search).
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Actor is a named conversational participant. Respond produces the actor's
// turn output for the given prompt and may perform authorized side effects
// synchronously before returning.
type Actor interface {
	Name() string
	// Description summarizes the actor's specialty for routing decisions.
	Description() string
	Respond(ctx context.Context, prompt string) (string, error)
}

// SpeakerNotice announces that a speaker is about to act.
type SpeakerNotice struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`
	Speaker   string `json:"speaker"`
}

// TurnNotice reports one completed turn.
type TurnNotice struct {
	SessionID           string    `json:"session_id"`
	Turn                int       `json:"turn"`
	Sender              string    `json:"sender"`
	Content             string    `json:"content"`
	Timestamp           time.Time `json:"timestamp"`
	NextSpeaker         string    `json:"next_speaker,omitempty"`
	RespondingTo        string    `json:"responding_to,omitempty"`
	RespondingToSnippet string    `json:"responding_to_snippet,omitempty"`
}

// StatusNotice reports a session-level status transition (completed/errored).
type StatusNotice struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Turn      int    `json:"turn"`
	Reason    string `json:"reason,omitempty"`
}

// ProgressSink receives orchestration progress. The emission order is a
// contract: the initial SpeakerNotice precedes the first turn, and each
// TurnNotice is followed by the SpeakerNotice of the next turn (when one
// follows). Implementations must return promptly and not block the
// orchestrator.
type ProgressSink interface {
	SpeakerSelected(SpeakerNotice)
	TurnCompleted(TurnNotice)
	StatusChanged(StatusNotice)
}

// NoopSink discards all progress notices.
type NoopSink struct{}

// SpeakerSelected implements ProgressSink.
func (NoopSink) SpeakerSelected(SpeakerNotice) {}

// TurnCompleted implements ProgressSink.
func (NoopSink) TurnCompleted(TurnNotice) {}

// StatusChanged implements ProgressSink.
func (NoopSink) StatusChanged(StatusNotice) {}

// SinkFuncs adapts bare functions to ProgressSink. Nil fields are skipped.
type SinkFuncs struct {
	OnSpeaker func(SpeakerNotice)
	OnTurn    func(TurnNotice)
	OnStatus  func(StatusNotice)
}

// SpeakerSelected implements ProgressSink.
func (s SinkFuncs) SpeakerSelected(n SpeakerNotice) {
	if s.OnSpeaker != nil {
		s.OnSpeaker(n)
	}
}

// TurnCompleted implements ProgressSink.
func (s SinkFuncs) TurnCompleted(n TurnNotice) {
	if s.OnTurn != nil {
		s.OnTurn(n)
	}
}

// StatusChanged implements ProgressSink.
func (s SinkFuncs) StatusChanged(n StatusNotice) {
	if s.OnStatus != nil {
		s.OnStatus(n)
	}
}
