package memory

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config centralizes every tuning knob of the engine. The source
// system scattered inconsistent defaults across adapters (0.1 vs 0.5
// minimum importance); here one canonical value lives in one place.
type Config struct {
	// WindowSize bounds the recent-message window per user.
	WindowSize int `yaml:"window_size"`

	// MinImportance gates long-term writes; lower-scored content is
	// skipped entirely.
	MinImportance float64 `yaml:"min_importance"`

	// PersistThreshold is the score at which a message is promoted
	// immediately instead of waiting for eviction.
	PersistThreshold float64 `yaml:"persist_threshold"`

	// SimilarityThreshold excludes weak search hits [0,1].
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// HalfLifeDays controls temporal decay of search scores.
	// Zero disables decay.
	HalfLifeDays float64 `yaml:"half_life_days"`

	// SearchK is the default nearest-neighbor fan-in.
	SearchK int `yaml:"search_k"`

	// FirstMessages is how many leading messages of a conversation get
	// the early-position importance boost.
	FirstMessages int `yaml:"first_messages"`

	// ClassifierWorkers bounds concurrent semantic importance checks.
	ClassifierWorkers int `yaml:"classifier_workers"`

	// WriteTimeoutSeconds bounds provider/store calls on the write path.
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`

	// ReadTimeoutSeconds bounds provider/store calls on the read path.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`

	// ClassifyTimeoutMillis bounds the optional semantic importance
	// check; on expiry the heuristic score stands.
	ClassifyTimeoutMillis int `yaml:"classify_timeout_millis"`

	// CacheTTLSeconds is the aggregator cache entry lifetime.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// CacheMaxSize bounds the aggregator cache entry count.
	CacheMaxSize int `yaml:"cache_max_size"`

	// SweepIntervalSeconds is the cache sweeper period.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// FourLevel enables the episodic and summary tiers.
	FourLevel bool `yaml:"four_level"`

	// EpisodeThreshold is the flushed-message count that seals one
	// episode in four-level mode.
	EpisodeThreshold int `yaml:"episode_threshold"`

	// SummaryEvery triggers window compaction every N ingested
	// messages in four-level mode.
	SummaryEvery int `yaml:"summary_every"`

	// MaxSummaries caps the summary tier to the N most recent entries.
	MaxSummaries int `yaml:"max_summaries"`
}

// Default returns the canonical configuration.
func Default() Config {
	return Config{
		WindowSize:            8,
		MinImportance:         0.3,
		PersistThreshold:      0.5,
		SimilarityThreshold:   0.4,
		HalfLifeDays:          30,
		SearchK:               5,
		FirstMessages:         3,
		ClassifierWorkers:     4,
		WriteTimeoutSeconds:   3,
		ReadTimeoutSeconds:    2,
		ClassifyTimeoutMillis: 800,
		CacheTTLSeconds:       300,
		CacheMaxSize:          10000,
		SweepIntervalSeconds:  60,
		FourLevel:             false,
		EpisodeThreshold:      20,
		SummaryEvery:          10,
		MaxSummaries:          5,
	}
}

// Load reads config from disk; a missing file yields defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.WindowSize <= 0 {
		return errors.New("window_size must be > 0")
	}
	if c.MinImportance < 0 || c.MinImportance > 1 {
		return errors.New("min_importance must be in [0,1]")
	}
	if c.PersistThreshold < 0 || c.PersistThreshold > 1 {
		return errors.New("persist_threshold must be in [0,1]")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return errors.New("similarity_threshold must be in [0,1]")
	}
	if c.HalfLifeDays < 0 {
		return errors.New("half_life_days must be >= 0")
	}
	if c.SearchK <= 0 {
		return errors.New("search_k must be > 0")
	}
	if c.ClassifierWorkers <= 0 {
		return errors.New("classifier_workers must be > 0")
	}
	if c.WriteTimeoutSeconds <= 0 || c.ReadTimeoutSeconds <= 0 {
		return errors.New("timeouts must be > 0")
	}
	if c.CacheMaxSize <= 0 {
		return errors.New("cache_max_size must be > 0")
	}
	if c.FourLevel {
		if c.EpisodeThreshold <= 0 {
			return errors.New("episode_threshold must be > 0")
		}
		if c.SummaryEvery <= 0 {
			return errors.New("summary_every must be > 0")
		}
		if c.MaxSummaries <= 0 {
			return errors.New("max_summaries must be > 0")
		}
	}
	return nil
}

func (c Config) writeTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c Config) readTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c Config) classifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutMillis) * time.Millisecond
}

// CacheTTL is the aggregator cache entry lifetime as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// SweepInterval is the cache sweeper period as a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
