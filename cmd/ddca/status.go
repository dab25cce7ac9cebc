package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/ledger"
	"solana-ddca/internal/schedule"
)

var statusCmd = &cobra.Command{
	Use:   "status [plan-id]",
	Short: "Show the reconciliation decision and funding outlook of plans",
	Long: `Evaluates one plan, or every open plan when no ID is given, against the
source's clock and prints the decision and projection as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// planReport is the status output for one plan.
type planReport struct {
	PlanID        domain.PlanID        `json:"plan_id"`
	Owner         string               `json:"owner"`
	FromMint      string               `json:"from_mint"`
	ToMint        string               `json:"to_mint"`
	AmountPerSwap uint64               `json:"amount_per_swap"`
	Interval      int64                `json:"interval_seconds"`
	Start         int64                `json:"start_timestamp"`
	LastSwap      int64                `json:"last_completed_swap_timestamp"`
	Deposited     uint64               `json:"total_deposited_amount"`
	FromBalance   uint64               `json:"from_balance"`
	IsPaused      bool                 `json:"is_paused"`
	ReferenceTs   int64                `json:"reference_ts"`
	Decision      *schedule.Decision   `json:"decision,omitempty"`
	Projection    *schedule.Projection `json:"projection,omitempty"`
	Error         string               `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	var ids []domain.PlanID
	if len(args) == 1 {
		ids = []domain.PlanID{domain.PlanID(args[0])}
	} else if ids, err = b.reader.ListPlans(ctx); err != nil {
		return err
	}

	now, err := b.clock.Now(ctx)
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}

	reports := make([]planReport, 0, len(ids))
	for _, id := range ids {
		r, err := evaluatePlan(ctx, b.reader, id, now)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}

	if len(args) == 1 {
		return writeJSON(cmd.OutOrStdout(), reports[0])
	}
	return writeJSON(cmd.OutOrStdout(), reports)
}

// evaluatePlan fetches and evaluates one plan. Unusable terms and chronology
// violations are reported in the result rather than failing the command.
func evaluatePlan(ctx context.Context, reader ledger.Reader, id domain.PlanID, now int64) (planReport, error) {
	s, err := reader.FetchPlan(ctx, id)
	if errors.Is(err, domain.ErrInvalidPlanConfiguration) {
		return planReport{PlanID: id, ReferenceTs: now, Error: err.Error()}, nil
	}
	if err != nil {
		return planReport{}, fmt.Errorf("fetch plan %s: %w", id, err)
	}

	r := planReport{
		PlanID:        s.ID,
		Owner:         s.Owner,
		FromMint:      s.FromMint,
		ToMint:        s.ToMint,
		AmountPerSwap: s.AmountPerSwap,
		Interval:      s.IntervalSeconds,
		Start:         s.StartTimestamp,
		LastSwap:      s.LastCompletedSwapTimestamp,
		Deposited:     s.TotalDepositedAmount,
		FromBalance:   s.FromBalance,
		IsPaused:      s.IsPaused,
		ReferenceTs:   now,
	}

	st, err := schedule.Evaluate(*s, now)
	if errors.Is(err, domain.ErrChronologyViolation) || errors.Is(err, domain.ErrInvalidPlanConfiguration) {
		r.Error = err.Error()
		return r, nil
	}
	if err != nil {
		return planReport{}, err
	}
	r.Decision = &st.Decision
	r.Projection = &st.Projection
	return r, nil
}
