package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// State describes a manager's lifecycle. There is no terminal state: a
// manager lives for the process lifetime or until Clear resets it.
type State int

const (
	StateEmpty State = iota
	StateFilling
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StateSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Manager is the per-user memory facade composing the window and the
// long-term tier, and owning the eviction/promotion policy.
//
// Mutations for one user are expected to be serialized by the caller
// (one turn per user at a time); the internal mutex additionally keeps
// cache-driven concurrent reads safe.
type Manager struct {
	userID     string
	cfg        Config
	classifier *Classifier
	longterm   *LongTerm
	logger     *log.Logger

	mu             sync.Mutex
	window         *Window
	episodes       *episodicTier
	summaries      *summaryTier
	state          State
	messageCount   int
	longTermWrites int
	prevUserAt     time.Time
	lastUserAt     time.Time
}

// ManagerStats is a point-in-time snapshot of one manager.
type ManagerStats struct {
	UserID         string `json:"user_id"`
	State          string `json:"state"`
	MessageCount   int    `json:"message_count"`
	WindowLen      int    `json:"window_len"`
	WindowSize     int    `json:"window_size"`
	LongTermWrites int    `json:"long_term_writes"`
	Episodes       int    `json:"episodes"`
	Summaries      int    `json:"summaries"`
}

func newManager(userID string, cfg Config, classifier *Classifier, longterm *LongTerm, completer Completer, logger *log.Logger) *Manager {
	m := &Manager{
		userID:     userID,
		cfg:        cfg,
		classifier: classifier,
		longterm:   longterm,
		logger:     logger,
		window:     NewWindow(cfg.WindowSize),
		state:      StateEmpty,
	}
	if cfg.FourLevel {
		m.episodes = newEpisodicTier(userID, cfg, completer, logger)
		m.summaries = newSummaryTier(cfg)
	}
	return m
}

// AddMessage ingests one message. The window always accepts it;
// independently, a message the classifier flags as important is
// written to the long-term store immediately so critical facts are
// retrievable before they would naturally be evicted. On overflow the
// evicted entry is promoted only if the immediate path did not already
// write it, guaranteeing at most one long-term write per message.
//
// LongTermOK reports that the long-term tier handled its part without
// error; a gated skip counts as success.
func (m *Manager) AddMessage(ctx context.Context, role Role, content string, meta Metadata, ts time.Time) (AddResult, error) {
	if strings.TrimSpace(content) == "" {
		return AddResult{}, fmt.Errorf("add message: empty content: %w", ErrInvalidInput)
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ordinal := m.messageCount
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: ts,
		Meta:      meta,
		Topics:    extractTopics(content, 3),
	}
	msg.Importance = m.classifier.Score(ctx, msg, ordinal)

	seq, evicted := m.window.Append(msg)
	m.messageCount++
	res := AddResult{ShortTermOK: true, LongTermOK: true}

	if role == RoleUser {
		m.prevUserAt = m.lastUserAt
		m.lastUserAt = ts
	}

	if m.longterm != nil && msg.Importance >= m.cfg.PersistThreshold {
		id, err := m.longterm.Write(ctx, m.userID, content, meta, msg.Importance)
		switch {
		case err != nil:
			res.LongTermOK = false
			m.logger.Warn("immediate long-term write failed",
				"user", m.userID, "error", err)
		case id != "":
			m.window.MarkPersisted(seq)
			m.longTermWrites++
		}
	}

	if evicted != nil {
		m.promoteEvicted(ctx, evicted, &res)
		if m.episodes != nil {
			m.episodes.addFlushed(ctx, evicted.Message)
		}
	}

	if m.summaries != nil && m.messageCount%m.cfg.SummaryEvery == 0 {
		m.summaries.compact(m.window.Messages())
	}

	switch {
	case m.window.Len() >= m.window.Size():
		m.state = StateSteady
	case m.window.Len() > 0:
		m.state = StateFilling
	}

	return res, nil
}

// promoteEvicted writes an evicted entry to the long-term store unless
// the immediate-save path already did.
func (m *Manager) promoteEvicted(ctx context.Context, evicted *WindowEntry, res *AddResult) {
	if m.longterm == nil || evicted.persisted {
		return
	}
	_, err := m.longterm.Write(ctx, m.userID, evicted.Message.Content,
		evicted.Message.Meta, evicted.Message.Importance)
	if err != nil {
		res.LongTermOK = false
		m.logger.Warn("eviction promotion failed",
			"user", m.userID, "seq", evicted.SequenceID, "error", err)
		return
	}
	m.longTermWrites++
}

// ContextForPrompt assembles the prompt payload. It never errors: any
// long-term failure degrades to buffer-only context. The recent window
// is always included verbatim; a non-empty query additionally pulls
// matching long-term facts, with buffer-derived facts listed first.
func (m *Manager) ContextForPrompt(ctx context.Context, query string) PromptContext {
	m.mu.Lock()
	recent := m.window.Messages()
	m.mu.Unlock()

	out := PromptContext{RecentSummary: formatTranscript(recent)}

	var factLines []string
	seen := make(map[string]struct{})
	for _, msg := range recent {
		if msg.Importance < m.cfg.PersistThreshold {
			continue
		}
		if _, dup := seen[msg.Content]; dup {
			continue
		}
		seen[msg.Content] = struct{}{}
		factLines = append(factLines, "- "+msg.Content)
	}

	if query != "" && m.longterm != nil {
		facts, err := m.longterm.Search(ctx, m.userID, query, m.cfg.SearchK, m.cfg.SimilarityThreshold)
		if err != nil {
			m.logger.Warn("long-term search degraded to buffer-only",
				"user", m.userID, "error", err)
		} else {
			var semantic []string
			for _, f := range facts {
				if _, dup := seen[f.Content]; !dup {
					seen[f.Content] = struct{}{}
					factLines = append(factLines, "- "+f.Content)
				}
				semantic = append(semantic, fmt.Sprintf("- %s (relevance %.2f)", f.Content, f.Score))
			}
			out.SemanticContext = strings.Join(semantic, "\n")
		}
	}

	out.LongTermFacts = strings.Join(factLines, "\n")
	if out.RecentSummary == "" && out.LongTermFacts == "" && out.SemanticContext == "" {
		out.RecentSummary = "(no memory yet)"
	}
	return out
}

// LastActivityTime returns when the user was previously active: the
// timestamp of the user message before the one just appended. A
// brand-new user with only the current turn reads as roughly a day
// ago; with no data at all it reads as now.
func (m *Manager) LastActivityTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.prevUserAt.IsZero():
		return m.prevUserAt
	case !m.lastUserAt.IsZero():
		return time.Now().UTC().Add(-24 * time.Hour)
	default:
		return time.Now().UTC()
	}
}

// State reports the manager's lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cleanup removes long-term records older than maxAgeDays.
func (m *Manager) Cleanup(ctx context.Context, maxAgeDays int) (int, error) {
	if m.longterm == nil {
		return 0, nil
	}
	return m.longterm.Cleanup(ctx, m.userID, maxAgeDays)
}

// Clear resets every tier for this user. Returns false when the
// long-term store could not be cleared; the in-memory tiers are reset
// regardless.
func (m *Manager) Clear(ctx context.Context) bool {
	m.mu.Lock()
	m.window.Clear()
	if m.episodes != nil {
		m.episodes.reset()
	}
	if m.summaries != nil {
		m.summaries.reset()
	}
	m.state = StateEmpty
	m.messageCount = 0
	m.longTermWrites = 0
	m.prevUserAt = time.Time{}
	m.lastUserAt = time.Time{}
	m.mu.Unlock()

	if m.longterm == nil {
		return true
	}
	if err := m.longterm.Clear(ctx, m.userID); err != nil {
		m.logger.Warn("long-term clear failed", "user", m.userID, "error", err)
		return false
	}
	return true
}

// Stats snapshots the manager's counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := ManagerStats{
		UserID:         m.userID,
		State:          m.state.String(),
		MessageCount:   m.messageCount,
		WindowLen:      m.window.Len(),
		WindowSize:     m.window.Size(),
		LongTermWrites: m.longTermWrites,
	}
	if m.episodes != nil {
		st.Episodes = m.episodes.count()
	}
	if m.summaries != nil {
		st.Summaries = m.summaries.count()
	}
	return st
}
