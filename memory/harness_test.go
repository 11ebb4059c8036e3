package memory

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// fakeEmbedder returns a fixed vector and can be told to fail its
// first N calls with a given error.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failNext int
	failErr  error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return nil, f.failErr
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStore is an in-memory VectorStore that counts calls and can
// return canned query results or injected errors.
type fakeStore struct {
	mu      sync.Mutex
	upserts []Record
	queries int

	queryResults []QueryResult
	upsertErr    error
	queryErr     error
	clearErr     error

	cleared bool
}

func (f *fakeStore) Upsert(ctx context.Context, userID string, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, userID string, embedding []float32, k int) ([]QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryResults != nil {
		return f.queryResults, nil
	}
	out := make([]QueryResult, 0, len(f.upserts))
	for _, rec := range f.upserts {
		out = append(out, QueryResult{
			ID:         rec.ID,
			Content:    rec.Content,
			Meta:       rec.Meta,
			CreatedAt:  rec.CreatedAt,
			Importance: rec.Importance,
			Score:      0.9,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, userID string, ids ...string) (int, error) {
	return len(ids), nil
}

func (f *fakeStore) Cleanup(ctx context.Context, userID string, olderThan time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	kept := f.upserts[:0]
	for _, rec := range f.upserts {
		if rec.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	f.upserts = kept
	return removed, nil
}

func (f *fakeStore) Clear(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	f.upserts = nil
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeStore) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// fakeCompleter replies with a fixed string, optionally after a delay
// that respects context cancellation.
type fakeCompleter struct {
	reply string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// testConfig is the default config with the early-position boost
// disabled so importance scores depend on content alone.
func testConfig() Config {
	cfg := Default()
	cfg.FirstMessages = 0
	return cfg
}

func newTestManager(cfg Config, store VectorStore, completer Completer) *Manager {
	var longterm *LongTerm
	if store != nil {
		longterm = NewLongTerm(store, &fakeEmbedder{}, cfg, testLogger())
	}
	classifier := NewClassifier(cfg, completer, testLogger())
	return newManager("u1", cfg, classifier, longterm, completer, testLogger())
}
