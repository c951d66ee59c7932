package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// DefaultDecayFactor is the per-day similarity discount applied when a
// semantic query does not specify one.
const DefaultDecayFactor = 0.95

// SessionFilter selects how session scoping applies to a query. The zero
// value matches any row. Scoped and unscoped views never mix: filtering for a
// session returns only rows recorded under exactly that session, and
// filtering for "unscoped" returns only rows recorded with no session at all.
type SessionFilter struct {
	constrained bool
	id          string
}

// AnySession matches rows regardless of session scope.
func AnySession() SessionFilter { return SessionFilter{} }

// UnscopedOnly matches only rows recorded without a session.
func UnscopedOnly() SessionFilter { return SessionFilter{constrained: true} }

// InSession matches only rows recorded under exactly the given session id.
// An empty id is equivalent to UnscopedOnly.
func InSession(id string) SessionFilter { return SessionFilter{constrained: true, id: id} }

func (f SessionFilter) apply(tx *gorm.DB) *gorm.DB {
	if !f.constrained {
		return tx
	}
	if f.id == "" {
		return tx.Where("session_id IS NULL")
	}
	return tx.Where("session_id = ?", f.id)
}

// RecordInput carries the fields of a new interaction. ID and timestamp are
// assigned by the store.
type RecordInput struct {
	Actor        string
	Kind         core.Kind
	Content      string
	Metadata     json.RawMessage
	RelatedActor string
	SessionID    string
}

// QueryFilter selects interactions by exact-match scalar filters. Zero-value
// fields are not applied (except Session, see SessionFilter). Results are
// ordered timestamp descending and paginated via Limit/Offset.
type QueryFilter struct {
	Actor        string
	Kind         core.Kind
	RelatedActor string
	Session      SessionFilter
	Limit        int
	Offset       int
}

// SemanticQuery parameterizes a ranked similarity scan.
type SemanticQuery struct {
	Text    string
	Actor   string
	Kind    core.Kind
	Session SessionFilter
	TopK    int
	// DecayFactor is the per-day multiplicative discount in (0,1]; 1.0
	// disables time weighting. Zero means DefaultDecayFactor.
	DecayFactor float64
}

// Options configure a Store.
type Options struct {
	// CacheSize bounds the embedding cache entry count.
	CacheSize int64
	// EmbedTimeout caps a single embedding call so a stalled provider never
	// blocks a write; on expiry the interaction is stored with a null
	// embedding.
	EmbedTimeout time.Duration
	// Logger receives store diagnostics.
	Logger logging.Logger
}

// Store is the semantic memory store: an append-only interaction log with an
// embedding cache and similarity retrieval. Safe for concurrent use; writes
// are row-level and never lock across sessions.
type Store struct {
	db       *gorm.DB
	embedder core.EmbeddingClient
	cache    *EmbeddingCache
	timeout  time.Duration
	logger   logging.Logger
}

// NewStore creates a Store on the given gorm DB, migrating the interactions
// table. The embedder may be nil, in which case every interaction is stored
// with a null embedding and semantic search degrades to recency order.
func NewStore(db *gorm.DB, embedder core.EmbeddingClient, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		CacheSize:    1000,
		EmbedTimeout: 15 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := db.AutoMigrate(&interactionRow{}); err != nil {
		return nil, fmt.Errorf("migrate interactions table: %w", err)
	}
	cache, err := NewEmbeddingCache(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:       db,
		embedder: embedder,
		cache:    cache,
		timeout:  opts.EmbedTimeout,
		logger:   opts.Logger,
	}, nil
}

// Close releases the embedding cache.
func (s *Store) Close() { s.cache.Close() }

// Record persists a new interaction, computing its embedding via the
// embedding client (memoized by content hash). Embedding failure is not
// fatal: the interaction is written with a null embedding and remains
// eligible for BackfillEmbeddings later.
func (s *Store) Record(ctx context.Context, in RecordInput) (string, error) {
	if !in.Kind.Valid() {
		return "", fmt.Errorf("invalid interaction kind %q", in.Kind)
	}
	interaction := core.Interaction{
		ID:           core.NewID(),
		Timestamp:    time.Now().UTC(),
		Actor:        in.Actor,
		Kind:         in.Kind,
		Content:      in.Content,
		Metadata:     in.Metadata,
		RelatedActor: in.RelatedActor,
		SessionID:    in.SessionID,
	}
	interaction.Embedding = s.embed(ctx, in.Content)

	row, err := rowFromInteraction(interaction)
	if err != nil {
		return "", fmt.Errorf("encode interaction: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", fmt.Errorf("persist interaction: %w", err)
	}
	return interaction.ID, nil
}

// Query returns interactions matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]core.Interaction, error) {
	tx := s.db.WithContext(ctx).Model(&interactionRow{})
	if f.Actor != "" {
		tx = tx.Where("actor = ?", f.Actor)
	}
	if f.Kind != "" {
		tx = tx.Where("kind = ?", f.Kind.String())
	}
	if f.RelatedActor != "" {
		tx = tx.Where("related_actor = ?", f.RelatedActor)
	}
	tx = f.Session.apply(tx)
	tx = tx.Order("timestamp DESC")
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	} else if f.Offset > 0 {
		// SQLite accepts OFFSET only alongside a LIMIT clause.
		tx = tx.Limit(math.MaxInt)
	}
	if f.Offset > 0 {
		tx = tx.Offset(f.Offset)
	}

	var rows []interactionRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	return toInteractions(rows), nil
}

// TextSearch returns interactions whose content contains term, newest first.
func (s *Store) TextSearch(ctx context.Context, term, actor string, limit int) ([]core.Interaction, error) {
	tx := s.db.WithContext(ctx).Model(&interactionRow{}).
		Where("content LIKE ?", "%"+term+"%")
	if actor != "" {
		tx = tx.Where("actor = ?", actor)
	}
	tx = tx.Order("timestamp DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var rows []interactionRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return toInteractions(rows), nil
}

// SemanticSearch embeds the query text and ranks candidate interactions by
// cosine similarity discounted per day of age. If the query embedding cannot
// be produced the scan degrades to a recency-only Query with zero scores.
func (s *Store) SemanticSearch(ctx context.Context, q SemanticQuery) ([]core.ScoredInteraction, error) {
	decay := q.DecayFactor
	if decay == 0 {
		decay = DefaultDecayFactor
	}
	if decay <= 0 || decay > 1 {
		return nil, fmt.Errorf("decay factor must be in (0,1], got %v", q.DecayFactor)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	queryVec := s.embed(ctx, q.Text)
	if len(queryVec) == 0 {
		s.logger.Warn("query embedding unavailable, falling back to recency order", "actor", q.Actor)
		recent, err := s.Query(ctx, QueryFilter{
			Actor:   q.Actor,
			Kind:    q.Kind,
			Session: q.Session,
			Limit:   topK,
		})
		if err != nil {
			return nil, err
		}
		scored := make([]core.ScoredInteraction, len(recent))
		for i, in := range recent {
			scored[i] = core.ScoredInteraction{Interaction: in}
		}
		return scored, nil
	}

	tx := s.db.WithContext(ctx).Model(&interactionRow{}).
		Where("embedding_blob IS NOT NULL")
	if q.Actor != "" {
		tx = tx.Where("actor = ?", q.Actor)
	}
	if q.Kind != "" {
		tx = tx.Where("kind = ?", q.Kind.String())
	}
	tx = q.Session.apply(tx)

	var rows []interactionRow
	if err := tx.Order("timestamp DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("semantic search candidates: %w", err)
	}

	now := time.Now().UTC()
	scored := make([]core.ScoredInteraction, 0, len(rows))
	for i := range rows {
		in := rows[i].toInteraction()
		if !in.HasEmbedding() {
			continue
		}
		similarity := CosineSimilarity(queryVec, in.Embedding)
		ageDays := now.Sub(in.Timestamp).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		weight := math.Pow(decay, ageDays)
		scored = append(scored, core.ScoredInteraction{
			Interaction: in,
			Score:       similarity * weight,
			Similarity:  similarity,
			DecayWeight: weight,
		})
	}

	sortByScore(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// BackfillEmbeddings computes embeddings for interactions that lack one,
// batchSize rows per pass, and returns how many were written. Running it when
// nothing is missing performs zero writes.
func (s *Store) BackfillEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	total := 0
	for {
		var rows []interactionRow
		err := s.db.WithContext(ctx).
			Select("id", "content").
			Where("embedding_blob IS NULL").
			Order("timestamp DESC").
			Limit(batchSize).
			Find(&rows).Error
		if err != nil {
			return total, fmt.Errorf("find missing embeddings: %w", err)
		}
		if len(rows) == 0 {
			return total, nil
		}

		written := 0
		for i := range rows {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			vec := s.embed(ctx, rows[i].Content)
			if len(vec) == 0 {
				continue
			}
			blob, err := encodeVector(vec)
			if err != nil {
				continue
			}
			res := s.db.WithContext(ctx).Model(&interactionRow{}).
				Where("id = ?", rows[i].ID).
				Update("embedding_blob", blob)
			if res.Error != nil {
				s.logger.Warn("backfill update failed", "id", rows[i].ID, "error", res.Error)
				continue
			}
			written++
			total++
		}
		s.logger.Info("backfill pass complete", "written", written, "candidates", len(rows))
		// Nothing in this pass could be embedded; stop rather than spin on
		// the same rows.
		if written == 0 {
			return total, nil
		}
	}
}

// KnowledgeSummary renders a digest of an actor's most recent interactions,
// oldest first, with content truncated for prompt use.
func (s *Store) KnowledgeSummary(ctx context.Context, actor string, limit int) (string, error) {
	if limit <= 0 {
		limit = 50
	}
	interactions, err := s.Query(ctx, QueryFilter{Actor: actor, Limit: limit})
	if err != nil {
		return "", err
	}
	if len(interactions) == 0 {
		return "No previous interactions found.", nil
	}
	var b strings.Builder
	for i := len(interactions) - 1; i >= 0; i-- {
		in := interactions[i]
		fmt.Fprintf(&b, "[%s] %s: %s\n",
			in.Timestamp.Format(time.RFC3339), in.Kind, truncate(in.Content, 200))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Purge bulk-deletes interactions, optionally restricted to one actor. This
// is the only way recorded interactions are ever removed.
func (s *Store) Purge(ctx context.Context, actor string) (int64, error) {
	tx := s.db.WithContext(ctx)
	if actor != "" {
		tx = tx.Where("actor = ?", actor)
	} else {
		tx = tx.Where("1 = 1")
	}
	res := tx.Delete(&interactionRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge interactions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// embed computes or recalls the embedding for content; nil on any failure.
func (s *Store) embed(ctx context.Context, content string) []float32 {
	if s.embedder == nil || strings.TrimSpace(content) == "" {
		return nil
	}
	if vec, ok := s.cache.Get(content); ok {
		return vec
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.logger.Warn("embedding failed", "error", err)
		return nil
	}
	s.cache.Put(content, vec)
	return vec
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths, empty vectors and zero-magnitude vectors all score 0.0
// rather than erroring.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func sortByScore(scored []core.ScoredInteraction) {
	// Stable so ties keep their candidate (recency) order.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
}

func toInteractions(rows []interactionRow) []core.Interaction {
	out := make([]core.Interaction, len(rows))
	for i := range rows {
		out[i] = rows[i].toInteraction()
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
