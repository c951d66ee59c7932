package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hupe1980/roundtable/core"
)

// sessionRow is the gorm model backing the sessions table. Actor list and
// history are opaque JSON blobs, keeping the layout storage-engine agnostic.
type sessionRow struct {
	SessionID     string `gorm:"primaryKey;size:36"`
	Objective     string `gorm:"not null"`
	ActorListBlob []byte `gorm:"not null"`
	Mode          string `gorm:"not null"`
	HistoryBlob   []byte
	NextActor     string
	TurnCount     int
	Status        string `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "sessions" }

// SQLStore is the durable Store implementation on a gorm DB.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates a SQLStore, migrating the sessions table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate sessions table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Save upserts the full session state keyed by session id. The upsert is a
// single row-level statement; concurrent saves for distinct sessions never
// contend beyond the row.
func (s *SQLStore) Save(ctx context.Context, sess *core.Session) error {
	row, err := rowFromSession(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"objective", "actor_list_blob", "mode", "history_blob",
			"next_actor", "turn_count", "status", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Get reconstructs a session by id or returns ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id string) (*core.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "session_id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return row.toSession()
}

// List returns sessions newest-updated first, optionally filtered by status.
func (s *SQLStore) List(ctx context.Context, status core.Status, limit int) ([]*core.Session, error) {
	tx := s.db.WithContext(ctx).Model(&sessionRow{})
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	tx = tx.Order("updated_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var rows []sessionRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*core.Session, 0, len(rows))
	for i := range rows {
		sess, err := rows[i].toSession()
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func rowFromSession(sess *core.Session) (*sessionRow, error) {
	actors, err := json.Marshal(sess.Actors)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(sess.History)
	if err != nil {
		return nil, err
	}
	created := sess.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &sessionRow{
		SessionID:     sess.ID,
		Objective:     sess.Objective,
		ActorListBlob: actors,
		Mode:          string(sess.Mode),
		HistoryBlob:   history,
		NextActor:     sess.NextActor,
		TurnCount:     sess.TurnCount,
		Status:        string(sess.Status),
		CreatedAt:     created,
		UpdatedAt:     time.Now().UTC(),
	}, nil
}

func (r *sessionRow) toSession() (*core.Session, error) {
	sess := &core.Session{
		ID:        r.SessionID,
		Objective: r.Objective,
		Mode:      core.Mode(r.Mode),
		NextActor: r.NextActor,
		TurnCount: r.TurnCount,
		Status:    core.Status(r.Status),
		Created:   r.CreatedAt,
		Updated:   r.UpdatedAt,
	}
	if err := json.Unmarshal(r.ActorListBlob, &sess.Actors); err != nil {
		return nil, fmt.Errorf("decode actor list for %s: %w", r.SessionID, err)
	}
	if len(r.HistoryBlob) > 0 {
		if err := json.Unmarshal(r.HistoryBlob, &sess.History); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", r.SessionID, err)
		}
	}
	if sess.History == nil {
		sess.History = []core.TurnEntry{}
	}
	return sess, nil
}
