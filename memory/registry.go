package memory

import (
	"hash/fnv"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// registryShards trades memory for cross-user concurrency: get-or-create
// for unrelated users almost never contends on the same lock.
const registryShards = 16

// Registry is the process-wide map from user id to Manager. Managers
// live for the process lifetime unless explicitly removed. Safe for
// concurrent use across users; striped locks keep at-most-one manager
// per user under concurrent first requests.
type Registry struct {
	cfg       Config
	store     VectorStore
	embedder  Embedder
	completer Completer
	logger    *log.Logger

	shards [registryShards]registryShard
}

type registryShard struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithVectorStore enables the long-term tier on the given backend.
// Without it, managers run buffer-only.
func WithVectorStore(s VectorStore) RegistryOption {
	return func(r *Registry) { r.store = s }
}

// WithEmbedder sets the embedding provider for the long-term tier.
func WithEmbedder(e Embedder) RegistryOption {
	return func(r *Registry) { r.embedder = e }
}

// WithCompleter enables the semantic importance fallback and episode
// summaries.
func WithCompleter(c Completer) RegistryOption {
	return func(r *Registry) { r.completer = c }
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry builds a registry. The long-term tier activates only
// when both a vector store and an embedder are configured.
func NewRegistry(cfg Config, opts ...RegistryOption) *Registry {
	r := &Registry{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	for i := range r.shards {
		r.shards[i].managers = make(map[string]*Manager)
	}
	return r
}

// GetOrCreate returns the user's manager, creating it on first use.
// Concurrent first requests for the same user observe the same
// instance.
func (r *Registry) GetOrCreate(userID string) *Manager {
	shard := &r.shards[shardFor(userID)]

	shard.mu.RLock()
	m, ok := shard.managers[userID]
	shard.mu.RUnlock()
	if ok {
		return m
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if m, ok := shard.managers[userID]; ok {
		return m
	}

	var longterm *LongTerm
	if r.store != nil && r.embedder != nil {
		longterm = NewLongTerm(r.store, r.embedder, r.cfg, r.logger)
	}
	classifier := NewClassifier(r.cfg, r.completer, r.logger)
	m = newManager(userID, r.cfg, classifier, longterm, r.completer, r.logger)
	shard.managers[userID] = m
	r.logger.Debug("created memory manager", "user", userID)
	return m
}

// Get returns the user's manager without creating one.
func (r *Registry) Get(userID string) (*Manager, bool) {
	shard := &r.shards[shardFor(userID)]
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	m, ok := shard.managers[userID]
	return m, ok
}

// Remove drops the user's manager, reporting whether one existed. The
// backing long-term data is untouched; use Manager.Clear for that.
func (r *Registry) Remove(userID string) bool {
	shard := &r.shards[shardFor(userID)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.managers[userID]; !ok {
		return false
	}
	delete(shard.managers, userID)
	return true
}

// Len counts live managers across all shards.
func (r *Registry) Len() int {
	total := 0
	for i := range r.shards {
		r.shards[i].mu.RLock()
		total += len(r.shards[i].managers)
		r.shards[i].mu.RUnlock()
	}
	return total
}

func shardFor(userID string) uint32 {
	h := fnv.New32a()
	io.WriteString(h, userID)
	return h.Sum32() % registryShards
}
