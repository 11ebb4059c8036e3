// Package cli implements the mnemo inspection commands: a small
// developer tool for poking at a local memory database. It is not the
// chat front end; transports stay out of the engine entirely.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo-go/memory"
	"github.com/mnemo-ai/mnemo-go/memory/embedder/mock"
	"github.com/mnemo-ai/mnemo-go/memory/store/sqlite"
)

var (
	dbPath     string
	configPath string
	userID     string
	fourLevel  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Tiered conversational memory for AI companions",
	Long: "mnemo inspects and exercises a local memory database: feed it\n" +
		"messages, pull prompt context, search tiers, check stats.\n" +
		"Embeddings use the deterministic mock embedder.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MNEMO_DB or ~/.mnemo/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (yaml)")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "User id to operate on")
	RootCmd.PersistentFlags().BoolVar(&fourLevel, "four-level", false, "Enable episodic and summary tiers")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("MNEMO_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemo", "memory.db")
}

// engine bundles what commands need plus the store handle to close.
type engine struct {
	agg   *memory.Aggregator
	store *sqlite.Store
	mctx  memory.MemoryContext
}

func openEngine() (*engine, error) {
	cfg, err := memory.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if fourLevel {
		cfg.FourLevel = true
	}

	store, err := sqlite.New(getDBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "mnemo"})
	registry := memory.NewRegistry(cfg,
		memory.WithVectorStore(store),
		memory.WithEmbedder(mock.New()),
		memory.WithLogger(logger),
	)

	return &engine{
		agg:   memory.NewAggregator(registry, nil, cfg, logger),
		store: store,
		mctx:  memory.MemoryContext{UserID: userID},
	}, nil
}

func (e *engine) close() {
	e.store.Close()
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
