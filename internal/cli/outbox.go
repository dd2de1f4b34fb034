package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tovey/reverie/internal/config"
	"github.com/tovey/reverie/internal/outbox"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and drain the graph outbox",
}

var outboxRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch one batch of pending events to the graph store",
	RunE:  runOutboxRun,
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print outbox status counts",
	RunE:  runOutboxStats,
}

func init() {
	outboxCmd.AddCommand(outboxRunCmd)
	outboxCmd.AddCommand(outboxStatsCmd)
}

func runOutboxRun(cmd *cobra.Command, args []string) error {
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

	disp := outbox.NewDispatcher(db, g, cfg.Outbox)
	results, err := disp.ProcessPending(cmd.Context())
	if err != nil {
		return fmt.Errorf("process pending: %w", err)
	}

	counts := map[outbox.Outcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	fmt.Printf("dispatched %d events (%d done, %d retry, %d deadletter)\n",
		len(results), counts[outbox.OutcomeDone], counts[outbox.OutcomeRetry], counts[outbox.OutcomeDeadletter])
	return nil
}

func runOutboxStats(cmd *cobra.Command, args []string) error {
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

	stats, err := db.CountOutbox()
	if err != nil {
		return fmt.Errorf("count outbox: %w", err)
	}

	fmt.Printf("pending:    %d\n", stats.Pending)
	fmt.Printf("processing: %d\n", stats.Processing)
	fmt.Printf("done:       %d\n", stats.Done)
	fmt.Printf("deadletter: %d\n", stats.Deadletter)
	return nil
}
