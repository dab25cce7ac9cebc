package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"solana-ddca/internal/domain"
)

var flagHistorySince time.Duration

var historyCmd = &cobra.Command{
	Use:   "history [plan-id]",
	Short: "List recorded swap executions",
	Long: `Lists executions of one plan ordered by checkpoint, or executions of all
plans recorded within --since, ordered by execution time. Reads postgres for
the postgres source and ClickHouse otherwise.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().DurationVar(&flagHistorySince, "since", 24*time.Hour, "Window for executions of all plans")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.history == nil {
		return errors.New("no execution history for this source: set clickhouse.dsn or use --source postgres")
	}

	var execs []*domain.SwapExecution
	if len(args) == 1 {
		execs, err = b.history.GetByPlanID(ctx, domain.PlanID(args[0]))
	} else {
		now, clockErr := b.clock.Now(ctx)
		if clockErr != nil {
			return clockErr
		}
		execs, err = b.history.GetByTimeRange(ctx, now-int64(flagHistorySince/time.Second), now)
	}
	if err != nil {
		return err
	}
	if execs == nil {
		execs = []*domain.SwapExecution{}
	}
	return writeJSON(cmd.OutOrStdout(), execs)
}
