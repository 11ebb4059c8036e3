// Package sqlite backs the long-term tier with a single-file SQLite
// database. Similarity search is brute-force cosine over the user's
// rows, which stays comfortably fast for per-user conversational
// volumes while keeping the store pure Go and dependency-free at
// runtime.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mnemo-ai/mnemo-go/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	meta        TEXT NOT NULL DEFAULT '{}',
	importance  REAL NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at);
`

// Store implements memory.VectorStore on modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Upsert saves a record, replacing any previous row with the same id.
func (s *Store) Upsert(ctx context.Context, userID string, rec memory.Record) error {
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (id, user_id, content, embedding, meta, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, userID, rec.Content, encodeVector(rec.Embedding),
		string(metaJSON), rec.Importance, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Query loads the user's rows and ranks them by cosine similarity.
func (s *Store) Query(ctx context.Context, userID string, embedding []float32, k int) ([]memory.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, embedding, meta, importance, created_at
		FROM memories WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var results []memory.QueryResult
	for rows.Next() {
		var (
			id, content, metaJSON, createdAt string
			blob                             []byte
			importance                       float64
		)
		if err := rows.Scan(&id, &content, &blob, &metaJSON, &importance, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}

		vec := decodeVector(blob)
		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			meta = nil
		}
		created, _ := time.Parse(time.RFC3339Nano, createdAt)

		results = append(results, memory.QueryResult{
			ID:         id,
			Content:    content,
			Meta:       meta,
			CreatedAt:  created,
			Importance: importance,
			Score:      cosineSimilarity(embedding, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes records by id.
func (s *Store) Delete(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	removed := 0
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM memories WHERE user_id = ? AND id = ?`, userID, id)
		if err != nil {
			return removed, fmt.Errorf("delete memory: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += int(n)
		}
	}
	return removed, nil
}

// Cleanup removes records created before olderThan.
func (s *Store) Cleanup(ctx context.Context, userID string, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = ? AND created_at < ?`,
		userID, olderThan.UTC().Format(time.RFC3339Nano))
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
		`DELETE FROM memories WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats counts rows per user for the inspection CLI.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, COUNT(*) FROM memories GROUP BY user_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var user string
		var n int
		if err := rows.Scan(&user, &n); err != nil {
			return nil, err
		}
		out[user] = n
	}
	return out, rows.Err()
}

// encodeVector packs float32s little-endian for BLOB storage.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosineSimilarity returns similarity in [0,1] for unit-normalized
// inputs (negative cosine clamps to 0).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	return sim
}
