package companion

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────
// Long-term memory — vector semantic recall layer
// ──────────────────────────────────────────────

// EmbedFunc generates a dense embedding vector for a text string.
// Callers wire this to their embedding provider.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// MemoryHit is a single result from a vector similarity search.
type MemoryHit struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EmbeddingStore is the pluggable interface for vector storage and retrieval.
type EmbeddingStore interface {
	// Upsert inserts or updates a vector with associated content and metadata.
	Upsert(ctx context.Context, id string, embedding []float32, content string, metadata map[string]string) error

	// Search returns the top-K most similar vectors to the query embedding.
	// filter may be nil; implementations should support metadata filtering.
	Search(ctx context.Context, query []float32, topK int, filter map[string]string) ([]MemoryHit, error)

	// Delete removes vectors by their IDs.
	Delete(ctx context.Context, ids []string) error
}

// Memory record sources.
const (
	MemorySourceExplicit = "explicit" // user said "remember: ..."
	MemorySourceAuto     = "auto"     // committed after a turn
)

// MemoryRecord is one durable long-term memory. Insert-only; never mutated.
type MemoryRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// RecalledMemory is a scored recall result for prompt injection.
type RecalledMemory struct {
	Text      string
	Score     float32
	CreatedAt time.Time
}

const embedRetries = 2

// LongTermMemory owns MemoryRecord creation and similarity recall.
// No other component writes records directly.
type LongTermMemory struct {
	vectors EmbeddingStore
	embed   EmbedFunc
	now     func() time.Time
}

// NewLongTermMemory creates the long-term layer. Either dependency may be
// nil, in which case Commit and Recall become no-ops.
func NewLongTermMemory(vectors EmbeddingStore, embed EmbedFunc) *LongTermMemory {
	return &LongTermMemory{vectors: vectors, embed: embed, now: time.Now}
}

// SetClock overrides the time source. Used by tests.
func (l *LongTermMemory) SetClock(now func() time.Time) { l.now = now }

// Available reports whether vector recall is wired.
func (l *LongTermMemory) Available() bool {
	return l.vectors != nil && l.embed != nil
}

// Commit embeds and stores one record. Embedding is idempotent, so it is
// retried a small fixed number of times before giving up.
func (l *LongTermMemory) Commit(ctx context.Context, userID, text, source string) (*MemoryRecord, error) {
	if !l.Available() || text == "" {
		return nil, nil
	}

	embedding, err := l.embedWithRetry(ctx, text)
	if err != nil {
		return nil, err
	}

	rec := &MemoryRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Source:    source,
		CreatedAt: l.now(),
	}
	meta := map[string]string{
		"user_id":   userID,
		"source":    source,
		"timestamp": strconv.FormatInt(rec.CreatedAt.Unix(), 10),
	}
	if err := l.vectors.Upsert(ctx, rec.ID, embedding, text, meta); err != nil {
		return nil, err
	}
	return rec, nil
}

// Recall returns up to topK memories for the user above minScore, best first.
func (l *LongTermMemory) Recall(ctx context.Context, userID, query string, topK int, minScore float32) ([]RecalledMemory, error) {
	if !l.Available() || query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 4
	}

	embedding, err := l.embedWithRetry(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := l.vectors.Search(ctx, embedding, topK, map[string]string{"user_id": userID})
	if err != nil {
		return nil, err
	}

	recalled := make([]RecalledMemory, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		created := time.Time{}
		if ts, err := strconv.ParseInt(h.Metadata["timestamp"], 10, 64); err == nil {
			created = time.Unix(ts, 0)
		}
		recalled = append(recalled, RecalledMemory{
			Text:      h.Content,
			Score:     h.Score,
			CreatedAt: created,
		})
	}
	return recalled, nil
}

func (l *LongTermMemory) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= embedRetries; attempt++ {
		embedding, err := l.embed(ctx, text)
		if err == nil {
			return embedding, nil
		}
		lastErr = err
		log.Printf("[LongTermMemory] embed attempt %d failed: %v", attempt+1, err)
	}
	return nil, lastErr
}
