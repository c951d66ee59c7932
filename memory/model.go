package memory

import (
	"encoding/json"
	"time"

	"github.com/hupe1980/roundtable/core"
)

// interactionRow is the gorm model backing the interactions table. SessionID
// and RelatedActor are pointers so "unset" persists as NULL and never
// collides with a real value; EmbeddingBlob is NULL until an embedding has
// been computed.
type interactionRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Timestamp     time.Time `gorm:"index:idx_interactions_ts;index:idx_interactions_actor_ts,priority:2"`
	Actor         string    `gorm:"not null;index:idx_interactions_actor_ts,priority:1"`
	Kind          string    `gorm:"not null;index"`
	Content       string    `gorm:"not null"`
	MetadataBlob  []byte
	RelatedActor  *string
	SessionID     *string `gorm:"index"`
	EmbeddingBlob []byte
}

func (interactionRow) TableName() string { return "interactions" }

func rowFromInteraction(in core.Interaction) (*interactionRow, error) {
	row := &interactionRow{
		ID:           in.ID,
		Timestamp:    in.Timestamp,
		Actor:        in.Actor,
		Kind:         in.Kind.String(),
		Content:      in.Content,
		MetadataBlob: in.Metadata,
	}
	if in.RelatedActor != "" {
		v := in.RelatedActor
		row.RelatedActor = &v
	}
	if in.SessionID != "" {
		v := in.SessionID
		row.SessionID = &v
	}
	if len(in.Embedding) > 0 {
		blob, err := encodeVector(in.Embedding)
		if err != nil {
			return nil, err
		}
		row.EmbeddingBlob = blob
	}
	return row, nil
}

func (r *interactionRow) toInteraction() core.Interaction {
	in := core.Interaction{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Actor:     r.Actor,
		Kind:      core.Kind(r.Kind),
		Content:   r.Content,
		Metadata:  json.RawMessage(r.MetadataBlob),
	}
	if r.RelatedActor != nil {
		in.RelatedActor = *r.RelatedActor
	}
	if r.SessionID != nil {
		in.SessionID = *r.SessionID
	}
	if len(r.EmbeddingBlob) > 0 {
		if vec, err := decodeVector(r.EmbeddingBlob); err == nil {
			in.Embedding = vec
		}
	}
	return in
}

// encodeVector serializes an embedding as JSON, matching the storage-engine
// agnostic blob layout of the interactions table.
func encodeVector(vec []float32) ([]byte, error) { return json.Marshal(vec) }

func decodeVector(blob []byte) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(blob, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
