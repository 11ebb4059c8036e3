package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestLongTerm(cfg Config, store VectorStore, emb Embedder) *LongTerm {
	if emb == nil {
		emb = &fakeEmbedder{}
	}
	return NewLongTerm(store, emb, cfg, testLogger())
}

func TestWriteSkipsBelowMinImportance(t *testing.T) {
	store := &fakeStore{}
	emb := &fakeEmbedder{}
	lt := newTestLongTerm(testConfig(), store, emb)

	id, err := lt.Write(context.Background(), "u1", "hello there", Metadata{}, 0.2)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty for gated skip", id)
	}
	if store.upsertCount() != 0 {
		t.Errorf("store received %d upserts for gated content", store.upsertCount())
	}
	if emb.callCount() != 0 {
		t.Errorf("embedder called %d times for gated content", emb.callCount())
	}
}

func TestWriteRejectsEmptyContent(t *testing.T) {
	lt := newTestLongTerm(testConfig(), &fakeStore{}, nil)
	_, err := lt.Write(context.Background(), "u1", "", Metadata{}, 0.9)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestWritePersistsRecord(t *testing.T) {
	store := &fakeStore{}
	lt := newTestLongTerm(testConfig(), store, nil)

	id, err := lt.Write(context.Background(), "u1", "my cat is named Busya", Metadata{EmotionTag: "joy"}, 0.8)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if id == "" {
		t.Fatal("Write returned empty id for persisted content")
	}
	if store.upsertCount() != 1 {
		t.Fatalf("upserts = %d, want 1", store.upsertCount())
	}

	rec := store.upserts[0]
	if rec.ID != id || rec.Importance != 0.8 {
		t.Errorf("record id %q importance %.2f, want %q / 0.8", rec.ID, rec.Importance, id)
	}
	if rec.Meta["emotion"] != "joy" {
		t.Errorf("record meta emotion = %q, want joy", rec.Meta["emotion"])
	}
	if len(rec.Embedding) == 0 {
		t.Error("record persisted without embedding")
	}
}

func TestSearchExcludesBelowThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.HalfLifeDays = 0
	now := time.Now().UTC()
	store := &fakeStore{queryResults: []QueryResult{
		{ID: "a", Content: "strong match", Score: 0.82, CreatedAt: now},
		{ID: "b", Content: "weak match", Score: 0.65, CreatedAt: now},
	}}
	lt := newTestLongTerm(cfg, store, nil)

	facts, err := lt.Search(context.Background(), "u1", "match", 5, 0.7)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("facts = %d, want 1 (0.65 hit excluded at threshold 0.7)", len(facts))
	}
	if facts[0].Content != "strong match" {
		t.Errorf("kept fact %q, want the 0.82 hit", facts[0].Content)
	}
}

func TestSearchDecayRanksFreshFirst(t *testing.T) {
	cfg := testConfig()
	cfg.HalfLifeDays = 30
	now := time.Now().UTC()
	store := &fakeStore{queryResults: []QueryResult{
		{ID: "old", Content: "old fact", Score: 0.9, CreatedAt: now.AddDate(0, 0, -60)},
		{ID: "new", Content: "fresh fact", Score: 0.9, CreatedAt: now},
	}}
	lt := newTestLongTerm(cfg, store, nil)

	facts, err := lt.Search(context.Background(), "u1", "fact", 5, 0.1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("facts = %d, want 2", len(facts))
	}
	if facts[0].Content != "fresh fact" {
		t.Errorf("first fact %q, want the fresh one", facts[0].Content)
	}
	// Two half-lives: 0.9 -> ~0.225.
	if facts[1].Score > 0.3 {
		t.Errorf("decayed score = %.3f, want about 0.225", facts[1].Score)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	lt := newTestLongTerm(testConfig(), &fakeStore{}, nil)
	_, err := lt.Search(context.Background(), "u1", "", 5, 0.4)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestEmbedTimeoutIsTypedAndRetryable(t *testing.T) {
	store := &fakeStore{}
	emb := &fakeEmbedder{failNext: 1, failErr: context.DeadlineExceeded}
	lt := newTestLongTerm(testConfig(), store, emb)

	_, err := lt.Write(context.Background(), "u1", "I moved to Berlin in 2021", Metadata{}, 0.8)
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("err = %v, want ErrProviderTimeout", err)
	}
	if !Retryable(err) {
		t.Error("Retryable = false for a provider timeout")
	}
	if store.upsertCount() != 0 {
		t.Errorf("store received %d upserts despite failed embedding", store.upsertCount())
	}

	id, err := lt.Write(context.Background(), "u1", "I moved to Berlin in 2021", Metadata{}, 0.8)
	if err != nil {
		t.Fatalf("retry Write: %v", err)
	}
	if id == "" || store.upsertCount() != 1 {
		t.Errorf("retry: id %q upserts %d, want persisted record", id, store.upsertCount())
	}
}

func TestAuthFailureDisablesTier(t *testing.T) {
	store := &fakeStore{}
	emb := &fakeEmbedder{failNext: 100, failErr: fmt.Errorf("%w: bad api key", ErrProviderAuth)}
	lt := newTestLongTerm(testConfig(), store, emb)

	_, err := lt.Write(context.Background(), "u1", "remember this forever", Metadata{}, 0.8)
	if !errors.Is(err, ErrProviderAuth) {
		t.Fatalf("err = %v, want ErrProviderAuth", err)
	}
	if Retryable(err) {
		t.Error("Retryable = true for an auth failure")
	}

	calls := emb.callCount()
	_, err = lt.Write(context.Background(), "u1", "and this too", Metadata{}, 0.8)
	if !errors.Is(err, ErrProviderAuth) {
		t.Fatalf("second Write err = %v, want ErrProviderAuth", err)
	}
	if emb.callCount() != calls {
		t.Errorf("embedder called again after auth failure disabled the tier")
	}

	if _, err := lt.Search(context.Background(), "u1", "anything", 5, 0.4); !errors.Is(err, ErrProviderAuth) {
		t.Errorf("Search err = %v, want ErrProviderAuth", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &fakeStore{}
	emb := &fakeEmbedder{failNext: 100, failErr: context.DeadlineExceeded}
	lt := newTestLongTerm(testConfig(), store, emb)

	for i := 0; i < 3; i++ {
		if _, err := lt.Write(context.Background(), "u1", "some important fact", Metadata{}, 0.8); err == nil {
			t.Fatalf("Write %d succeeded, want failure", i)
		}
	}

	calls := emb.callCount()
	_, err := lt.Write(context.Background(), "u1", "some important fact", Metadata{}, 0.8)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable while breaker open", err)
	}
	if emb.callCount() != calls {
		t.Error("embedder still called while breaker open")
	}
}

func TestCleanupValidatesAge(t *testing.T) {
	lt := newTestLongTerm(testConfig(), &fakeStore{}, nil)
	if _, err := lt.Cleanup(context.Background(), "u1", 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
