package core

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the orchestrator routes turns between actors.
type Mode string

const (
	// ModeRoundRobin advances cyclically through the actor order.
	ModeRoundRobin Mode = "round_robin"
	// ModeIntelligent asks the inference client to choose the next speaker.
	ModeIntelligent Mode = "intelligent"
)

// Valid reports whether m is a defined routing mode.
func (m Mode) Valid() bool { return m == ModeRoundRobin || m == ModeIntelligent }

// Status is the lifecycle state of an orchestrated session.
type Status string

const (
	// StatusActive marks a session that can still accept turns.
	StatusActive Status = "active"
	// StatusCompleted marks a session that ended normally (end signal or
	// exhausted turn budget).
	StatusCompleted Status = "completed"
	// StatusErrored marks a session ended by a speaker failure. The partial
	// transcript is retained.
	StatusErrored Status = "errored"
)

// TurnEntry is one element of a session's ordered history. Immutable once
// appended.
type TurnEntry struct {
	Turn         int       `json:"turn"`
	Sender       string    `json:"sender"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	NextActor    string    `json:"next_actor,omitempty"`
	RespondingTo string    `json:"responding_to,omitempty"` // prior turn's sender
}

// Session is a persisted, resumable multi-turn conversation toward one
// objective. It is mutated once per turn by a single logical writer (the
// orchestrator run that owns it); stores hand out copies, never shared
// pointers.
type Session struct {
	ID        string      `json:"id"`
	Objective string      `json:"objective"`
	Actors    []string    `json:"actors"`
	Mode      Mode        `json:"mode"`
	History   []TurnEntry `json:"history"`
	NextActor string      `json:"next_actor"`
	TurnCount int         `json:"turn_count"`
	Status    Status      `json:"status"`
	Created   time.Time   `json:"created"`
	Updated   time.Time   `json:"updated"`
}

// NewSession creates an active session with no history.
func NewSession(id, objective string, actors []string, mode Mode) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Objective: objective,
		Actors:    append([]string(nil), actors...),
		Mode:      mode,
		History:   []TurnEntry{},
		Status:    StatusActive,
		Created:   now,
		Updated:   now,
	}
}

// AppendTurn records a completed turn, advances the turn counter and points
// the session at the resolved next speaker.
func (s *Session) AppendTurn(e TurnEntry) {
	s.History = append(s.History, e)
	s.TurnCount = e.Turn
	s.NextActor = e.NextActor
	s.Updated = time.Now().UTC()
}

// HasActor reports whether name is part of the configured actor set.
func (s *Session) HasActor(name string) bool {
	for _, a := range s.Actors {
		if a == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Actors = append([]string(nil), s.Actors...)
	clone.History = append([]TurnEntry(nil), s.History...)
	return &clone
}

// MaxTurnBudget bounds the per-run turn budget accepted by validation.
const MaxTurnBudget = 100

// ValidateConversation rejects invalid orchestration parameters before any
// state is created. Intelligent mode needs at least two actors to route
// between; round-robin works with one.
func ValidateConversation(objective string, actors []string, mode Mode, maxTurns int) error {
	if strings.TrimSpace(objective) == "" {
		return fmt.Errorf("objective must not be empty")
	}
	if !mode.Valid() {
		return fmt.Errorf("unknown routing mode %q", mode)
	}
	min := 1
	if mode == ModeIntelligent {
		min = 2
	}
	if len(actors) < min {
		return fmt.Errorf("mode %s requires at least %d actor(s), got %d", mode, min, len(actors))
	}
	seen := make(map[string]struct{}, len(actors))
	for _, a := range actors {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("actor names must not be empty")
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("duplicate actor name %q", a)
		}
		seen[a] = struct{}{}
	}
	if maxTurns < 1 || maxTurns > MaxTurnBudget {
		return fmt.Errorf("turn budget must be in [1,%d], got %d", MaxTurnBudget, maxTurns)
	}
	return nil
}
