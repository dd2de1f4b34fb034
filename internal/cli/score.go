package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tovey/reverie/internal/config"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run one scoring batch over unscored assistant messages",
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, g, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer g.Close()

	ev := newEvaluator(cfg, db)
	if ev == nil {
		return errors.New("scoring requires LLM credentials")
	}

	stats, err := ev.ProcessBatch(cmd.Context())
	if err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	fmt.Printf("scored %d messages (%d cached, %d evaluated)\n",
		stats.TotalFound, stats.Cached, stats.Evaluated)
	return nil
}
