package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConversation(t *testing.T) {
	tests := []struct {
		name      string
		objective string
		actors    []string
		mode      Mode
		maxTurns  int
		wantErr   bool
	}{
		{"valid round robin", "plan a release", []string{"a"}, ModeRoundRobin, 5, false},
		{"valid intelligent", "plan a release", []string{"a", "b"}, ModeIntelligent, 5, false},
		{"empty objective", "   ", []string{"a"}, ModeRoundRobin, 5, true},
		{"intelligent needs two", "x", []string{"a"}, ModeIntelligent, 5, true},
		{"no actors", "x", nil, ModeRoundRobin, 5, true},
		{"blank actor name", "x", []string{"a", " "}, ModeRoundRobin, 5, true},
		{"duplicate actor", "x", []string{"a", "a"}, ModeRoundRobin, 5, true},
		{"zero budget", "x", []string{"a"}, ModeRoundRobin, 0, true},
		{"budget over cap", "x", []string{"a"}, ModeRoundRobin, MaxTurnBudget + 1, true},
		{"unknown mode", "x", []string{"a"}, Mode("free_for_all"), 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConversation(tt.objective, tt.actors, tt.mode, tt.maxTurns)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionAppendTurn(t *testing.T) {
	s := NewSession("s1", "ship it", []string{"a", "b"}, ModeRoundRobin)
	require.Equal(t, StatusActive, s.Status)
	require.Empty(t, s.History)

	s.AppendTurn(TurnEntry{Turn: 1, Sender: "a", Content: "hello", Timestamp: time.Now().UTC(), NextActor: "b"})
	assert.Equal(t, 1, s.TurnCount)
	assert.Equal(t, "b", s.NextActor)

	s.AppendTurn(TurnEntry{Turn: 2, Sender: "b", Content: "hi", Timestamp: time.Now().UTC(), NextActor: "a", RespondingTo: "a"})
	assert.Equal(t, 2, s.TurnCount)
	assert.Equal(t, "a", s.History[1].RespondingTo)
}

func TestSessionClone(t *testing.T) {
	s := NewSession("s1", "obj", []string{"a", "b"}, ModeIntelligent)
	s.AppendTurn(TurnEntry{Turn: 1, Sender: "a", Content: "c", NextActor: "b"})

	clone := s.Clone()
	clone.Actors[0] = "mutated"
	clone.AppendTurn(TurnEntry{Turn: 2, Sender: "b", Content: "d", NextActor: "a"})

	assert.Equal(t, "a", s.Actors[0])
	assert.Len(t, s.History, 1)
	assert.Len(t, clone.History, 2)
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindChat, KindTask, KindFileOp, KindAgentToAgent, KindSearch, KindSystem} {
		assert.True(t, k.Valid(), k.String())
	}
	assert.False(t, Kind("telepathy").Valid())
}

func TestEncodeMetadata(t *testing.T) {
	blob, err := EncodeMetadata(map[string]any{"task": "build"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"task":"build"}`, string(blob))

	blob, err = EncodeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, blob)
}
