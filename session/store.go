package session

import (
	"context"
	"errors"

	"github.com/hupe1980/roundtable/core"
)

// ErrNotFound is returned when a session id has no persisted state.
var ErrNotFound = errors.New("session not found")

// Store persists sessions keyed by their unique id. Save is an upsert: the
// full session state (history, next speaker, turn counter, status) replaces
// whatever was stored before. A failed Save leaves in-memory state untouched,
// so "turn happened, not yet durable" is a detectable, retryable outcome for
// callers.
type Store interface {
	Save(ctx context.Context, s *core.Session) error
	Get(ctx context.Context, id string) (*core.Session, error)
	// List returns sessions ordered by most recently updated, optionally
	// filtered by status. Histories are included.
	List(ctx context.Context, status core.Status, limit int) ([]*core.Session, error)
}
