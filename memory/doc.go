// Package memory implements a tiered conversational memory engine for
// a server-side AI companion.
//
// Messages flow through the tiers one way per turn: an incoming message
// is scored by the importance classifier, always appended to the
// bounded recent-message window, and promoted into the semantic
// long-term store either immediately (important messages) or when the
// window evicts it. Reads go the other way: the aggregator merges the
// window transcript with long-term search hits into one prompt-ready
// payload, fronted by a namespaced TTL cache.
//
// Architecture:
//   - Window: fixed-capacity FIFO of the most recent messages per user
//   - Classifier: heuristic importance scoring with an optional
//     LLM-backed semantic check on a bounded worker pool
//   - LongTerm: embedder + vector store adapter with write gating,
//     similarity thresholds and temporal decay
//   - Manager: per-user facade owning the eviction/promotion policy
//   - Registry: process-wide userID -> Manager map (striped locks)
//   - Aggregator: cache-fronted read path over the registry
//
// Storage and embedding backends are pluggable behind the VectorStore
// and Embedder interfaces:
//   - store/chromem: embedded in-process vector database
//   - store/sqlite: persistent single-file store, pure Go
//   - store/pgvector: PostgreSQL + pgvector for production
//   - embedder/onnx: all-MiniLM-L6-v2 via ONNX Runtime (offline)
//   - embedder/mock: deterministic hash embeddings for tests
//
// The engine degrades instead of failing: if the embedding provider or
// vector store is unreachable, reads fall back to window-only context
// and writes surface typed errors without losing the buffered message.
package memory
