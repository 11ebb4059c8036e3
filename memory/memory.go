package memory

import (
	"context"
	"time"
)

// Embedder converts text to vector embeddings.
// Implementations: embedder/mock (testing), embedder/onnx (local,
// offline), API-backed embedders in production deployments.
type Embedder interface {
	// Embed converts a single text to an embedding vector. Errors must
	// be distinguishable as retryable (rate limit, timeout) vs fatal
	// (auth, invalid input); see Retryable.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size. Deterministic per
	// model.
	Dimensions() int
}

// Record is one persisted long-term memory. Append-only: the engine
// never mutates a record after write; deletion happens only through
// Cleanup or Clear.
type Record struct {
	ID         string
	Content    string
	Embedding  []float32
	Meta       map[string]string
	CreatedAt  time.Time
	Importance float64
}

// QueryResult is a nearest-neighbor hit returned by a VectorStore.
// Score is a normalized similarity in [0,1], before temporal decay.
type QueryResult struct {
	ID         string
	Content    string
	Meta       map[string]string
	CreatedAt  time.Time
	Importance float64
	Score      float64
}

// VectorStore is the storage backend for the long-term tier. All
// operations are scoped to a single user; one store instance may back
// many users (metadata filtering or collection-per-user is the
// implementation's choice).
//
// Implementations: store/chromem (embedded), store/sqlite (persistent,
// pure Go), store/pgvector (PostgreSQL).
type VectorStore interface {
	// Upsert persists a record with its embedding.
	Upsert(ctx context.Context, userID string, rec Record) error

	// Query returns up to k records by vector similarity, highest
	// score first.
	Query(ctx context.Context, userID string, embedding []float32, k int) ([]QueryResult, error)

	// Delete removes records by id, returning how many were removed.
	Delete(ctx context.Context, userID string, ids ...string) (int, error)

	// Cleanup removes records created before olderThan.
	Cleanup(ctx context.Context, userID string, olderThan time.Time) (int, error)

	// Clear removes every record for the user.
	Clear(ctx context.Context, userID string) error

	// Close releases resources.
	Close() error
}

// Completer is an opaque text-generation call with a bounded timeout,
// consumed by the classifier's optional semantic check and by episode
// summarization. Implementations: llm.Completer (Anthropic API).
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
