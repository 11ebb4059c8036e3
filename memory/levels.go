package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// Level names one memory tier for SearchAll.
type Level string

const (
	LevelWindow   Level = "window"
	LevelLongTerm Level = "longterm"
	LevelEpisodic Level = "episodic"
	LevelSummary  Level = "summary"
)

// AllLevels lists every tier in search order.
var AllLevels = []Level{LevelWindow, LevelLongTerm, LevelEpisodic, LevelSummary}

// SearchHit is one ranked result from a tier search. Scores are
// comparable within a tier only: the window, episodic and summary
// tiers rank by lexical overlap while the long-term tier ranks by
// vector similarity, and the merge step sorts raw scores without
// normalizing across the two scales. That is a documented limitation,
// not a bug.
type SearchHit struct {
	Level     Level     `json:"level"`
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Episode summarizes one flushed segment of conversation in four-level
// mode. Immutable after creation.
type Episode struct {
	EpisodeID    string    `json:"episode_id"`
	UserID       string    `json:"user_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	MessageCount int       `json:"message_count"`
	Summary      string    `json:"summary"`
	Topics       []string  `json:"topics"`
	Emotions     []string  `json:"emotions"`
	Importance   float64   `json:"importance"`
	KeyFacts     []string  `json:"key_facts"`
}

// SummaryEntry is one periodic compaction of the recent window.
type SummaryEntry struct {
	Text               string    `json:"text"`
	CreatedAt          time.Time `json:"created_at"`
	SourceMessageCount int       `json:"source_message_count"`
}

// episodicTier accumulates window-evicted messages and seals them into
// an Episode once the flushed segment crosses the configured
// threshold.
type episodicTier struct {
	userID    string
	threshold int
	persist   float64
	completer Completer
	logger    *log.Logger

	pending  []Message
	episodes []Episode
}

func newEpisodicTier(userID string, cfg Config, completer Completer, logger *log.Logger) *episodicTier {
	return &episodicTier{
		userID:    userID,
		threshold: cfg.EpisodeThreshold,
		persist:   cfg.PersistThreshold,
		completer: completer,
		logger:    logger,
	}
}

// addFlushed records one evicted message; caller holds the manager
// lock.
func (e *episodicTier) addFlushed(ctx context.Context, msg Message) {
	e.pending = append(e.pending, msg)
	if len(e.pending) >= e.threshold {
		e.seal(ctx)
	}
}

// seal converts the pending segment into one immutable Episode.
func (e *episodicTier) seal(ctx context.Context) {
	if len(e.pending) == 0 {
		return
	}
	msgs := e.pending
	e.pending = nil

	topicSet := make(map[string]struct{})
	emotionSet := make(map[string]struct{})
	var keyFacts []string
	maxImportance := 0.0
	for _, msg := range msgs {
		for _, t := range msg.Topics {
			topicSet[t] = struct{}{}
		}
		if msg.Meta.EmotionTag != "" {
			emotionSet[msg.Meta.EmotionTag] = struct{}{}
		}
		if msg.Importance >= e.persist {
			keyFacts = append(keyFacts, msg.Content)
		}
		if msg.Importance > maxImportance {
			maxImportance = msg.Importance
		}
	}

	ep := Episode{
		EpisodeID:    ulid.Make().String(),
		UserID:       e.userID,
		StartTime:    msgs[0].Timestamp,
		EndTime:      msgs[len(msgs)-1].Timestamp,
		MessageCount: len(msgs),
		Summary:      e.summarize(ctx, msgs),
		Topics:       sortedKeys(topicSet),
		Emotions:     sortedKeys(emotionSet),
		Importance:   maxImportance,
		KeyFacts:     keyFacts,
	}
	e.episodes = append(e.episodes, ep)
	e.logger.Debug("sealed episode", "user", e.userID,
		"episode", ep.EpisodeID, "messages", ep.MessageCount)
}

// summarize produces the episode summary, via the completion API when
// one is configured and a compact transcript excerpt otherwise.
func (e *episodicTier) summarize(ctx context.Context, msgs []Message) string {
	if e.completer != nil {
		prompt := "Summarize this conversation segment in two sentences, " +
			"keeping any personal facts about the user:\n\n" +
			truncate(formatTranscript(msgs), 2000)

		sumCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if summary, err := e.completer.Complete(sumCtx, prompt); err == nil && summary != "" {
			return strings.TrimSpace(summary)
		} else if err != nil {
			e.logger.Debug("episode summary fell back to excerpt", "error", err)
		}
	}
	return truncate(formatTranscript(msgs), 400)
}

func (e *episodicTier) search(query string, max int) []SearchHit {
	var hits []SearchHit
	for _, ep := range e.episodes {
		text := ep.Summary + " " + strings.Join(ep.KeyFacts, " ")
		score := lexicalOverlap(query, text)
		if score <= 0 {
			continue
		}
		hits = append(hits, SearchHit{
			Level:     LevelEpisodic,
			Content:   ep.Summary,
			Score:     score,
			CreatedAt: ep.EndTime,
		})
	}
	return topHits(hits, max)
}

func (e *episodicTier) count() int { return len(e.episodes) }

func (e *episodicTier) reset() {
	e.pending = nil
	e.episodes = nil
}

// Episodes returns the sealed episodes oldest-first.
func (m *Manager) Episodes() []Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.episodes == nil {
		return nil
	}
	out := make([]Episode, len(m.episodes.episodes))
	copy(out, m.episodes.episodes)
	return out
}

// summaryTier holds periodic compactions of the window, capped to the
// most recent entries.
type summaryTier struct {
	max     int
	entries []SummaryEntry
}

func newSummaryTier(cfg Config) *summaryTier {
	return &summaryTier{max: cfg.MaxSummaries}
}

// compact appends one summary of the current window; caller holds the
// manager lock.
func (s *summaryTier) compact(recent []Message) {
	if len(recent) == 0 {
		return
	}
	s.entries = append(s.entries, SummaryEntry{
		Text:               truncate(formatTranscript(recent), 300),
		CreatedAt:          time.Now().UTC(),
		SourceMessageCount: len(recent),
	})
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
}

func (s *summaryTier) search(query string, max int) []SearchHit {
	var hits []SearchHit
	for _, entry := range s.entries {
		score := lexicalOverlap(query, entry.Text)
		if score <= 0 {
			continue
		}
		hits = append(hits, SearchHit{
			Level:     LevelSummary,
			Content:   entry.Text,
			Score:     score,
			CreatedAt: entry.CreatedAt,
		})
	}
	return topHits(hits, max)
}

func (s *summaryTier) count() int { return len(s.entries) }

func (s *summaryTier) reset() { s.entries = nil }

// SearchAll fans out to the requested tiers concurrently and merges
// their results by score descending, capped at maxResults. A nil or
// empty levels slice searches every tier. Tiers missing in the current
// configuration (no long-term backend, four-level mode off) are
// skipped silently; a long-term failure degrades to the remaining
// tiers.
func (m *Manager) SearchAll(ctx context.Context, query string, levels []Level, maxResults int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search all: empty query: %w", ErrInvalidInput)
	}
	if maxResults <= 0 {
		maxResults = m.cfg.SearchK
	}
	if len(levels) == 0 {
		levels = AllLevels
	}

	perLevel := make([][]SearchHit, len(levels))
	g, gctx := errgroup.WithContext(ctx)
	for i, level := range levels {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			perLevel[i] = m.searchLevel(gctx, level, query, maxResults)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []SearchHit
	for _, hits := range perLevel {
		merged = append(merged, hits...)
	}
	return topHits(merged, maxResults), nil
}

func (m *Manager) searchLevel(ctx context.Context, level Level, query string, max int) []SearchHit {
	switch level {
	case LevelWindow:
		m.mu.Lock()
		recent := m.window.Messages()
		m.mu.Unlock()

		var hits []SearchHit
		for _, msg := range recent {
			score := lexicalOverlap(query, msg.Content)
			if score <= 0 {
				continue
			}
			hits = append(hits, SearchHit{
				Level:     LevelWindow,
				Content:   msg.Content,
				Score:     score,
				CreatedAt: msg.Timestamp,
			})
		}
		return topHits(hits, max)

	case LevelLongTerm:
		if m.longterm == nil {
			return nil
		}
		facts, err := m.longterm.Search(ctx, m.userID, query, max, m.cfg.SimilarityThreshold)
		if err != nil {
			m.logger.Warn("long-term level search skipped", "user", m.userID, "error", err)
			return nil
		}
		hits := make([]SearchHit, 0, len(facts))
		for _, f := range facts {
			hits = append(hits, SearchHit{
				Level:     LevelLongTerm,
				Content:   f.Content,
				Score:     f.Score,
				CreatedAt: f.CreatedAt,
			})
		}
		return hits

	case LevelEpisodic:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.episodes == nil {
			return nil
		}
		return m.episodes.search(query, max)

	case LevelSummary:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.summaries == nil {
			return nil
		}
		return m.summaries.search(query, max)

	default:
		return nil
	}
}

func topHits(hits []SearchHit, max int) []SearchHit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if max > 0 && len(hits) > max {
		hits = hits[:max]
	}
	return hits
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
