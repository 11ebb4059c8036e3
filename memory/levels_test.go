package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fourLevelConfig() Config {
	cfg := testConfig()
	cfg.FourLevel = true
	cfg.WindowSize = 2
	cfg.EpisodeThreshold = 3
	cfg.SummaryEvery = 2
	cfg.MaxSummaries = 2
	return cfg
}

func TestEpisodeSealsAfterThreshold(t *testing.T) {
	m := newTestManager(fourLevelConfig(), nil, nil)

	// Window size 2: message i evicts message i-2, so 5 messages flush
	// 3, exactly one episode.
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("we talked about gardening and message number %d", i)
		if _, err := m.AddMessage(context.Background(), RoleUser, content, Metadata{EmotionTag: "calm"}, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	eps := m.Episodes()
	if len(eps) != 1 {
		t.Fatalf("episodes = %d, want 1", len(eps))
	}
	ep := eps[0]
	if ep.MessageCount != 3 {
		t.Errorf("episode message count = %d, want 3", ep.MessageCount)
	}
	if ep.EpisodeID == "" {
		t.Error("episode has no id")
	}
	if ep.Summary == "" {
		t.Error("episode has no summary")
	}
	if !ep.EndTime.After(ep.StartTime) {
		t.Errorf("episode time range [%v, %v] not increasing", ep.StartTime, ep.EndTime)
	}
	if len(ep.Topics) == 0 {
		t.Error("episode captured no topics")
	}
	if len(ep.Emotions) != 1 || ep.Emotions[0] != "calm" {
		t.Errorf("episode emotions = %v, want [calm]", ep.Emotions)
	}
}

func TestEpisodeSummaryUsesCompleter(t *testing.T) {
	completer := &fakeCompleter{reply: "They discussed gardening at length."}
	m := newTestManager(fourLevelConfig(), nil, completer)

	for i := 0; i < 5; i++ {
		m.AddMessage(context.Background(), RoleAssistant, fmt.Sprintf("note number %d about tomatoes", i), Metadata{}, time.Time{})
	}

	eps := m.Episodes()
	if len(eps) != 1 {
		t.Fatalf("episodes = %d, want 1", len(eps))
	}
	if eps[0].Summary != "They discussed gardening at length." {
		t.Errorf("summary = %q, want the completer reply", eps[0].Summary)
	}
}

func TestSummaryTierCapped(t *testing.T) {
	cfg := fourLevelConfig()
	m := newTestManager(cfg, nil, nil)

	for i := 0; i < 12; i++ {
		m.AddMessage(context.Background(), RoleUser, fmt.Sprintf("ongoing chat line %d", i), Metadata{}, time.Time{})
	}

	if got := m.Stats().Summaries; got != cfg.MaxSummaries {
		t.Errorf("summaries = %d, want capped at %d", got, cfg.MaxSummaries)
	}
}

func TestSearchAllRejectsEmptyQuery(t *testing.T) {
	m := newTestManager(testConfig(), nil, nil)
	if _, err := m.SearchAll(context.Background(), "  ", nil, 5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSearchAllWindowOnly(t *testing.T) {
	m := newTestManager(testConfig(), nil, nil)
	m.AddMessage(context.Background(), RoleUser, "planning a hiking trip to Georgia", Metadata{}, time.Time{})
	m.AddMessage(context.Background(), RoleUser, "dinner was pasta again", Metadata{}, time.Time{})

	hits, err := m.SearchAll(context.Background(), "hiking trip", nil, 5)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Level != LevelWindow {
		t.Errorf("hit level = %s, want window", hits[0].Level)
	}
}

func TestSearchAllMergesTiersByScore(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{queryResults: []QueryResult{
		{ID: "lt", Content: "user hikes every summer", Score: 0.9, CreatedAt: now},
	}}
	m := newTestManager(fourLevelConfig(), store, nil)

	for i := 0; i < 5; i++ {
		m.AddMessage(context.Background(), RoleUser, fmt.Sprintf("casual chat number %d", i), Metadata{}, time.Time{})
	}
	m.AddMessage(context.Background(), RoleUser, "hikes are my favorite weekend plan", Metadata{}, time.Time{})

	hits, err := m.SearchAll(context.Background(), "hikes", nil, 10)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(hits) < 2 {
		t.Fatalf("hits = %d, want window and long-term tiers represented", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not sorted by score: %v before %v", hits[i-1].Score, hits[i].Score)
		}
	}

	levels := make(map[Level]bool)
	for _, h := range hits {
		levels[h.Level] = true
	}
	if !levels[LevelWindow] || !levels[LevelLongTerm] {
		t.Errorf("levels represented = %v, want window and longterm", levels)
	}
}

func TestSearchAllCapsResults(t *testing.T) {
	m := newTestManager(testConfig(), nil, nil)
	for i := 0; i < 6; i++ {
		m.AddMessage(context.Background(), RoleUser, fmt.Sprintf("coffee note %d", i), Metadata{}, time.Time{})
	}

	hits, err := m.SearchAll(context.Background(), "coffee", []Level{LevelWindow}, 2)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want capped at 2", len(hits))
	}
}

func TestSearchAllSkipsUnconfiguredTiers(t *testing.T) {
	m := newTestManager(testConfig(), nil, nil)
	m.AddMessage(context.Background(), RoleUser, "talking about juggling practice", Metadata{}, time.Time{})

	hits, err := m.SearchAll(context.Background(), "juggling", []Level{LevelLongTerm, LevelEpisodic, LevelSummary, LevelWindow}, 5)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	for _, h := range hits {
		if h.Level != LevelWindow {
			t.Errorf("hit from unconfigured tier %s", h.Level)
		}
	}
}
