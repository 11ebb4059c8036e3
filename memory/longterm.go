package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// LongTerm wraps an Embedder and a VectorStore into the engine's
// long-term tier. It adds write gating below MinImportance, similarity
// threshold filtering, temporal decay re-ranking, an embedding cache,
// and a circuit breaker so a flapping backend degrades the tier
// instead of hanging every turn.
type LongTerm struct {
	store    VectorStore
	embedder Embedder
	cfg      Config
	logger   *log.Logger

	embedCache *ristretto.Cache
	breaker    *gobreaker.CircuitBreaker[[]float32]

	// Auth failures are fatal for this tier only; surfaced to
	// operators once, not per request.
	authFailed atomic.Bool
	authLog    sync.Once
}

// NewLongTerm builds the long-term tier adapter.
func NewLongTerm(store VectorStore, embedder Embedder, cfg Config, logger *log.Logger) *LongTerm {
	embedCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     8 << 20, // ~8 MiB of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		// Only reachable with a broken static config above.
		panic(fmt.Sprintf("memory: embed cache init: %v", err))
	}

	lt := &LongTerm{
		store:      store,
		embedder:   embedder,
		cfg:        cfg,
		logger:     logger,
		embedCache: embedCache,
	}

	lt.breaker = gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:    "longterm-embed",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("long-term tier breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
			}
		},
	})

	return lt
}

// Write embeds and persists content for the user. Content below
// MinImportance is skipped entirely and ("", nil) is returned. The
// write fails closed: an embedding error skips the store call and is
// reported, never silently corrupted.
func (lt *LongTerm) Write(ctx context.Context, userID, content string, meta Metadata, importance float64) (string, error) {
	if content == "" {
		return "", fmt.Errorf("write: empty content: %w", ErrInvalidInput)
	}
	if importance < lt.cfg.MinImportance {
		return "", nil
	}
	if lt.authFailed.Load() {
		return "", fmt.Errorf("long-term tier disabled: %w", ErrProviderAuth)
	}

	vec, err := lt.embed(ctx, content, lt.cfg.writeTimeout())
	if err != nil {
		return "", fmt.Errorf("embed content: %w", err)
	}

	rec := Record{
		ID:         uuid.NewString(),
		Content:    content,
		Embedding:  vec,
		Meta:       meta.Flatten(),
		CreatedAt:  time.Now().UTC(),
		Importance: importance,
	}

	storeCtx, cancel := context.WithTimeout(ctx, lt.cfg.writeTimeout())
	defer cancel()
	if err := lt.store.Upsert(storeCtx, userID, rec); err != nil {
		return "", fmt.Errorf("upsert record: %w: %v", ErrStoreUnavailable, err)
	}
	return rec.ID, nil
}

// Search returns facts similar to query, strongest first. Hits below
// threshold are excluded; when HalfLifeDays is set, scores decay as
// score * 0.5^(ageDays/halfLife) so stale facts sink below fresh ones.
func (lt *LongTerm) Search(ctx context.Context, userID, query string, k int, threshold float64) ([]Fact, error) {
	if query == "" {
		return nil, fmt.Errorf("search: empty query: %w", ErrInvalidInput)
	}
	if k <= 0 {
		k = lt.cfg.SearchK
	}
	if lt.authFailed.Load() {
		return nil, fmt.Errorf("long-term tier disabled: %w", ErrProviderAuth)
	}

	vec, err := lt.embed(ctx, query, lt.cfg.readTimeout())
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, lt.cfg.readTimeout())
	defer cancel()
	results, err := lt.store.Query(queryCtx, userID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query store: %w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now().UTC()
	facts := make([]Fact, 0, len(results))
	for _, r := range results {
		score := clamp01(r.Score)
		if lt.cfg.HalfLifeDays > 0 && !r.CreatedAt.IsZero() {
			ageDays := now.Sub(r.CreatedAt).Hours() / 24
			if ageDays > 0 {
				score *= math.Pow(0.5, ageDays/lt.cfg.HalfLifeDays)
			}
		}
		if score < threshold {
			continue
		}
		facts = append(facts, Fact{
			Content:   r.Content,
			Meta:      MetadataFromFlat(r.Meta),
			Score:     score,
			CreatedAt: r.CreatedAt,
		})
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Score > facts[j].Score
	})
	return facts, nil
}

// Cleanup removes records older than maxAgeDays.
func (lt *LongTerm) Cleanup(ctx context.Context, userID string, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		return 0, fmt.Errorf("cleanup: maxAgeDays must be > 0: %w", ErrInvalidInput)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	cleanCtx, cancel := context.WithTimeout(ctx, lt.cfg.writeTimeout())
	defer cancel()
	n, err := lt.store.Cleanup(cleanCtx, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup store: %w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Clear removes every record for the user.
func (lt *LongTerm) Clear(ctx context.Context, userID string) error {
	clearCtx, cancel := context.WithTimeout(ctx, lt.cfg.writeTimeout())
	defer cancel()
	if err := lt.store.Clear(clearCtx, userID); err != nil {
		return fmt.Errorf("clear store: %w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// embed resolves text to a vector via the cache, breaker and provider,
// bounded by timeout.
func (lt *LongTerm) embed(ctx context.Context, text string, timeout time.Duration) ([]float32, error) {
	if cached, ok := lt.embedCache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := lt.breaker.Execute(func() ([]float32, error) {
		embedCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := lt.embedder.Embed(embedCtx, text)
		return v, asProviderErr(err)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: embedding breaker open", ErrStoreUnavailable)
		}
		if errors.Is(err, ErrProviderAuth) {
			lt.markAuthFailed(err)
		}
		return nil, err
	}

	lt.embedCache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

func (lt *LongTerm) markAuthFailed(err error) {
	lt.authFailed.Store(true)
	lt.authLog.Do(func() {
		if lt.logger != nil {
			lt.logger.Error("embedding provider auth failure, long-term tier disabled", "error", err)
		}
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
