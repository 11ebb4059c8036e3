package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mnemo-ai/mnemo-go/memory/cache"
)

// Aggregator is the cache-fronted entry point to the engine. Hot-loop
// callers should go through it rather than hitting a Manager's
// expensive read path directly: identical reads within the TTL are
// served from the cache, and every write invalidates exactly that
// user's cached aggregates.
type Aggregator struct {
	registry *Registry
	cache    *cache.Cache
	cfg      Config
	logger   *log.Logger
}

// AggregatorStats combines cache and registry occupancy.
type AggregatorStats struct {
	Users int         `json:"users"`
	Cache cache.Stats `json:"cache"`
}

// NewAggregator builds the aggregator over an existing registry.
func NewAggregator(registry *Registry, c *cache.Cache, cfg Config, logger *log.Logger) *Aggregator {
	if c == nil {
		c = cache.New(cfg.CacheMaxSize)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Aggregator{registry: registry, cache: c, cfg: cfg, logger: logger}
}

// Cache exposes the underlying cache, e.g. to start a sweeper.
func (a *Aggregator) Cache() *cache.Cache {
	return a.cache
}

// AddMessage ingests a message for the user and invalidates their
// cached aggregates so no stale context is served afterwards.
func (a *Aggregator) AddMessage(ctx context.Context, mctx MemoryContext, role Role, content string, meta Metadata, ts time.Time) (AddResult, error) {
	res, err := a.registry.GetOrCreate(mctx.UserID).AddMessage(ctx, role, content, meta, ts)
	if err != nil {
		return res, err
	}
	a.invalidateUser(mctx.UserID)
	return res, nil
}

// ContextForPrompt returns the user's prompt payload, cached per query
// for the configured TTL. Never errors; degrades like the manager.
func (a *Aggregator) ContextForPrompt(ctx context.Context, mctx MemoryContext, query string) PromptContext {
	ns := contextNamespace(mctx.UserID)
	key := queryKey(query)
	if v, ok := a.cache.Get(key, ns); ok {
		if pc, ok := v.(PromptContext); ok {
			return pc
		}
	}

	pc := a.registry.GetOrCreate(mctx.UserID).ContextForPrompt(ctx, query)
	a.cache.Set(key, pc, a.cfg.CacheTTL(), ns)
	return pc
}

// SearchAll runs the multi-tier search, cached per query.
func (a *Aggregator) SearchAll(ctx context.Context, mctx MemoryContext, query string, levels []Level, maxResults int) ([]SearchHit, error) {
	ns := searchNamespace(mctx.UserID)
	key := fmt.Sprintf("%s|%d|%s", queryKey(query), maxResults, levelsKey(levels))
	if v, ok := a.cache.Get(key, ns); ok {
		if hits, ok := v.([]SearchHit); ok {
			return hits, nil
		}
	}

	hits, err := a.registry.GetOrCreate(mctx.UserID).SearchAll(ctx, query, levels, maxResults)
	if err != nil {
		return nil, err
	}
	a.cache.Set(key, hits, a.cfg.CacheTTL(), ns)
	return hits, nil
}

// LastActivityTime reports when the user was previously active.
// Deliberately uncached: it changes with every turn.
func (a *Aggregator) LastActivityTime(mctx MemoryContext) time.Time {
	return a.registry.GetOrCreate(mctx.UserID).LastActivityTime()
}

// Clear wipes every tier for the user and their cached aggregates.
func (a *Aggregator) Clear(ctx context.Context, mctx MemoryContext) bool {
	ok := a.registry.GetOrCreate(mctx.UserID).Clear(ctx)
	a.invalidateUser(mctx.UserID)
	return ok
}

// Cleanup removes the user's long-term records older than maxAgeDays
// and drops their cached aggregates.
func (a *Aggregator) Cleanup(ctx context.Context, mctx MemoryContext, maxAgeDays int) (int, error) {
	n, err := a.registry.GetOrCreate(mctx.UserID).Cleanup(ctx, maxAgeDays)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.invalidateUser(mctx.UserID)
	}
	return n, nil
}

// UserStats snapshots one manager's counters.
func (a *Aggregator) UserStats(mctx MemoryContext) ManagerStats {
	return a.registry.GetOrCreate(mctx.UserID).Stats()
}

// Stats summarizes the aggregator.
func (a *Aggregator) Stats() AggregatorStats {
	return AggregatorStats{
		Users: a.registry.Len(),
		Cache: a.cache.GetStats(),
	}
}

func (a *Aggregator) invalidateUser(userID string) {
	n := a.cache.Invalidate("", contextNamespace(userID))
	n += a.cache.Invalidate("", searchNamespace(userID))
	if n > 0 {
		a.logger.Debug("invalidated cached aggregates", "user", userID, "count", n)
	}
}

func contextNamespace(userID string) string { return "context:" + userID }
func searchNamespace(userID string) string  { return "search:" + userID }

func queryKey(query string) string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return "-"
	}
	return query
}

func levelsKey(levels []Level) string {
	if len(levels) == 0 {
		return "all"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}
