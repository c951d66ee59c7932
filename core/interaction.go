package core

import (
	"encoding/json"
	"time"
)

// Kind categorizes a recorded interaction. The set mirrors the event sources
// that feed the memory store.
type Kind string

const (
	// KindChat is a user-facing chat exchange with an actor.
	KindChat Kind = "chat"
	// KindTask is a task execution performed by an actor.
	KindTask Kind = "task"
	// KindFileOp is a file system side effect (write, read, list, mkdir).
	KindFileOp Kind = "file_op"
	// KindAgentToAgent is a contribution inside an orchestrated conversation
	// or a direct actor-to-actor message.
	KindAgentToAgent Kind = "agent_to_agent"
	// KindSearch is a search operation and its results.
	KindSearch Kind = "search"
	// KindSystem is an event emitted by the system itself.
	KindSystem Kind = "system"
)

// String returns the string representation of the kind.
func (k Kind) String() string { return string(k) }

// Valid reports whether k is one of the defined interaction kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindTask, KindFileOp, KindAgentToAgent, KindSearch, KindSystem:
		return true
	}
	return false
}

// Interaction is one immutable recorded event in the memory store. Once
// written, only Embedding may transition from nil to a value (via the store's
// backfill); every other field is permanently fixed.
//
// Metadata is an opaque JSON blob whose schema depends on Kind:
//
//	chat:            {"user_message": string, "agent_response": string, "tools_used": bool}
//	task:            {"task": string, "result": string}
//	file_op:         {"operation": "write"|"read"|"list"|"mkdir", "path": string, "size": int}
//	agent_to_agent:  {"session_id": string, "objective": string, "turn": int}
//	search:          {"term": string, "count": int}
//	system:          free-form
type Interaction struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	Actor        string          `json:"actor"`
	Kind         Kind            `json:"kind"`
	Content      string          `json:"content"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	RelatedActor string          `json:"related_actor,omitempty"`
	SessionID    string          `json:"session_id,omitempty"` // empty = not session scoped
	Embedding    []float32       `json:"-"`                    // nil until computed
}

// HasEmbedding reports whether an embedding has been computed for this
// interaction.
func (i Interaction) HasEmbedding() bool { return len(i.Embedding) > 0 }

// EncodeMetadata marshals an arbitrary metadata value into the opaque blob
// form stored alongside an interaction. A nil value yields a nil blob.
func EncodeMetadata(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// ScoredInteraction is a retrieval result produced by semantic search. Score
// is Similarity discounted by DecayWeight; results are ordered by Score
// descending.
type ScoredInteraction struct {
	Interaction
	Score       float64 `json:"score"`
	Similarity  float64 `json:"similarity"`
	DecayWeight float64 `json:"decay_weight"`
}
