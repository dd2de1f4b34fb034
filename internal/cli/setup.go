package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tovey/reverie/internal/config"
	"github.com/tovey/reverie/internal/graph"
	"github.com/tovey/reverie/internal/llm"
	"github.com/tovey/reverie/internal/scoring"
	"github.com/tovey/reverie/internal/store"
)

// openStores resolves the configured database paths and opens both the
// primary store and the graph store.
func openStores(cfg *config.Config) (*store.DB, *graph.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	graphPath := cfg.Database.GraphPath
	if graphPath == "" {
		graphPath = filepath.Join(filepath.Dir(dbPath), "graph.db")
	}

	g, err := graph.Open(graphPath)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open graph database: %w", err)
	}

	return db, g, nil
}

// newEvaluator wires the judge and evaluator, or returns nil when no
// LLM credentials are configured.
func newEvaluator(cfg *config.Config, db *store.DB) *scoring.Evaluator {
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), scoring disabled\n", err)
		return nil
	}

	judge := scoring.NewJudge(client, cfg.Scoring.BackoffBase(), cfg.Scoring.BackoffMax())
	return scoring.NewEvaluator(db, judge, nil, cfg.Scoring, cfg.LLM.Model)
}
