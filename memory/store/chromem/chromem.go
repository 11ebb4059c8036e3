// Package chromem backs the long-term tier with chromem-go, a pure Go
// embedded vector database. Everything lives in process memory, which
// makes it the default for local development and tests.
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemo-ai/mnemo-go/memory"
)

// Store implements memory.VectorStore on chromem-go. Each user gets
// their own collection for namespace isolation.
type Store struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	// chromem has no list-by-age API, so creation times are tracked
	// here to support Cleanup.
	createdAt map[string]map[string]time.Time // userID -> id -> createdAt
}

// New creates an in-memory chromem store.
func New() (*Store, error) {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		createdAt:   make(map[string]map[string]time.Time),
	}, nil
}

func collectionName(userID string) string {
	if userID == "" {
		return "global"
	}
	return "user_" + userID
}

func (s *Store) getOrCreateCollection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[userID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, exists := s.collections[userID]; exists {
		return col, nil
	}

	col, err := s.db.CreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	s.createdAt[userID] = make(map[string]time.Time)
	return col, nil
}

// Upsert saves a record with its embedding.
func (s *Store) Upsert(ctx context.Context, userID string, rec memory.Record) error {
	col, err := s.getOrCreateCollection(userID)
	if err != nil {
		return err
	}

	meta := make(map[string]string, len(rec.Meta)+3)
	for k, v := range rec.Meta {
		meta[k] = v
	}
	meta["user_id"] = userID
	meta["created_at"] = rec.CreatedAt.Format(time.RFC3339Nano)
	meta["importance"] = strconv.FormatFloat(rec.Importance, 'f', 4, 64)

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
		Metadata:  meta,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	s.createdAt[userID][rec.ID] = rec.CreatedAt
	s.mu.Unlock()
	return nil
}

// Query retrieves records by vector similarity, highest score first.
func (s *Store) Query(ctx context.Context, userID string, embedding []float32, k int) ([]memory.QueryResult, error) {
	col, err := s.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}

	where := map[string]string{"user_id": userID}

	// chromem requires nResults <= collection size; shrink until the
	// query fits or the collection turns out to be empty.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]memory.QueryResult, 0, len(results))
	for _, r := range results {
		out = append(out, memory.QueryResult{
			ID:         r.ID,
			Content:    r.Content,
			Meta:       stripInternalMeta(r.Metadata),
			CreatedAt:  parseCreatedAt(r.Metadata),
			Importance: parseImportance(r.Metadata),
			Score:      float64(r.Similarity),
		})
	}
	return out, nil
}

// Delete removes records by id.
func (s *Store) Delete(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	col, err := s.getOrCreateCollection(userID)
	if err != nil {
		return 0, err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}

	s.mu.Lock()
	removed := 0
	for _, id := range ids {
		if _, ok := s.createdAt[userID][id]; ok {
			delete(s.createdAt[userID], id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}

// Cleanup removes records created before olderThan.
func (s *Store) Cleanup(ctx context.Context, userID string, olderThan time.Time) (int, error) {
	s.mu.RLock()
	var stale []string
	for id, created := range s.createdAt[userID] {
		if created.Before(olderThan) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	if len(stale) == 0 {
		return 0, nil
	}
	return s.Delete(ctx, userID, stale...)
}

// Clear drops the user's entire collection.
func (s *Store) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[userID]; !ok {
		return nil
	}
	if err := s.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(s.collections, userID)
	delete(s.createdAt, userID)
	return nil
}

// Close releases resources. chromem keeps everything in memory, so
// there is nothing to flush.
func (s *Store) Close() error {
	return nil
}

func stripInternalMeta(meta map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range meta {
		switch k {
		case "user_id", "created_at", "importance":
		default:
			out[k] = v
		}
	}
	return out
}

func parseCreatedAt(meta map[string]string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, meta["created_at"])
	return t
}

func parseImportance(meta map[string]string) float64 {
	f, _ := strconv.ParseFloat(meta["importance"], 64)
	return f
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
