// Package pgvector backs the long-term tier with PostgreSQL and the
// pgvector extension. This is the production store: nearest-neighbor
// search runs server-side over an ivfflat/hnsw index instead of
// scanning rows in Go.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/mnemo-ai/mnemo-go/memory"
)

// Store implements memory.VectorStore on PostgreSQL + pgvector.
type Store struct {
	db         *sql.DB
	dimensions int
}

// New connects to PostgreSQL and prepares the schema. dimensions must
// match the configured embedder.
func New(databaseURL string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be > 0")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS memories (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			content     TEXT NOT NULL,
			embedding   VECTOR(%d) NOT NULL,
			meta        JSONB NOT NULL DEFAULT '{}',
			importance  REAL NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
	`, dimensions)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, dimensions: dimensions}, nil
}

// Upsert saves a record, replacing any previous row with the same id.
func (s *Store) Upsert(ctx context.Context, userID string, rec memory.Record) error {
	if len(rec.Embedding) != s.dimensions {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d",
			len(rec.Embedding), s.dimensions)
	}
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, content, embedding, meta, importance, created_at)
		VALUES ($1, $2, $3, $4::vector, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			meta = EXCLUDED.meta,
			importance = EXCLUDED.importance`,
		rec.ID, userID, rec.Content, vectorLiteral(rec.Embedding),
		string(metaJSON), rec.Importance, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Query runs a cosine nearest-neighbor search scoped to the user.
func (s *Store) Query(ctx context.Context, userID string, embedding []float32, k int) ([]memory.QueryResult, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, meta, importance, created_at,
		       1 - (embedding <=> $2::vector) AS score
		FROM memories
		WHERE user_id = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3`,
		userID, vectorLiteral(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var results []memory.QueryResult
	for rows.Next() {
		var (
			id, content, metaJSON string
			importance, score     float64
			createdAt             time.Time
		)
		if err := rows.Scan(&id, &content, &metaJSON, &importance, &createdAt, &score); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			meta = nil
		}
		if score < 0 {
			score = 0
		}
		results = append(results, memory.QueryResult{
			ID:         id,
			Content:    content,
			Meta:       meta,
			CreatedAt:  createdAt,
			Importance: importance,
			Score:      score,
		})
	}
	return results, rows.Err()
}

// Delete removes records by id.
func (s *Store) Delete(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+2)
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = $1 AND id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Cleanup removes records created before olderThan.
func (s *Store) Cleanup(ctx context.Context, userID string, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = $1 AND created_at < $2`,
		userID, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Clear removes every record for the user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// vectorLiteral renders a pgvector input literal such as [0.1,0.2].
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
