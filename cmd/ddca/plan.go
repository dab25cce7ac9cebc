package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"solana-ddca/internal/config"
	"solana-ddca/internal/domain"
	"solana-ddca/internal/ledger"
)

var (
	flagPlanOwner    string
	flagPlanFrom     string
	flagPlanTo       string
	flagPlanAmount   uint64
	flagPlanInterval int64
	flagPlanDeposit  uint64
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create and manage plans in the postgres ledger",
}

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a plan starting now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return applyInstruction(cmd, ledger.Instruction{
			Op: ledger.OpCreate,
			Params: domain.PlanParams{
				Owner:           flagPlanOwner,
				FromMint:        flagPlanFrom,
				ToMint:          flagPlanTo,
				AmountPerSwap:   flagPlanAmount,
				IntervalSeconds: flagPlanInterval,
				InitialDeposit:  flagPlanDeposit,
			},
		})
	},
}

func init() {
	f := planCreateCmd.Flags()
	f.StringVar(&flagPlanOwner, "owner", "", "Owner pubkey (base58)")
	f.StringVar(&flagPlanFrom, "from", "", "Mint swapped from (base58)")
	f.StringVar(&flagPlanTo, "to", "", "Mint swapped to (base58)")
	f.Uint64Var(&flagPlanAmount, "amount", 0, "Amount per swap in base units")
	f.Int64Var(&flagPlanInterval, "interval", 86400, "Seconds between swaps")
	f.Uint64Var(&flagPlanDeposit, "deposit", 0, "Initial deposit in base units")
	for _, name := range []string{"owner", "from", "to", "amount"} {
		_ = planCreateCmd.MarkFlagRequired(name)
	}

	planCmd.AddCommand(
		planCreateCmd,
		amountCommand(ledger.OpDeposit, "Add funds to a plan's vault"),
		amountCommand(ledger.OpWithdraw, "Withdraw funds from a plan's vault"),
		idCommand(ledger.OpPause, "Pause a plan"),
		idCommand(ledger.OpResume, "Resume a paused plan"),
		idCommand(ledger.OpClose, "Close a plan and refund its vault"),
	)
	rootCmd.AddCommand(planCmd)
}

func amountCommand(op ledger.Operation, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(op) + " <plan-id> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			return applyInstruction(cmd, ledger.Instruction{
				Op:     op,
				PlanID: domain.PlanID(args[0]),
				Amount: amount,
			})
		},
	}
}

func idCommand(op ledger.Operation, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(op) + " <plan-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyInstruction(cmd, ledger.Instruction{Op: op, PlanID: domain.PlanID(args[0])})
		},
	}
}

// applyInstruction runs in against the postgres ledger and prints the outcome.
func applyInstruction(cmd *cobra.Command, in ledger.Instruction) error {
	ctx := cmd.Context()

	if cfg.Waker.Source != config.SourcePostgres {
		logger.Debug().Str("source", cfg.Waker.Source).Msg("plan commands always use the postgres ledger")
		cfg.Waker.Source = config.SourcePostgres
	}
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := ledger.Apply(ctx, b.ledger, in)
	if err != nil {
		return err
	}
	logger.Info().Str("op", string(in.Op)).Str("plan_id", string(out.PlanID)).Msg("instruction applied")

	return writeJSON(cmd.OutOrStdout(), struct {
		Op       ledger.Operation `json:"op"`
		PlanID   domain.PlanID    `json:"plan_id"`
		Refunded uint64           `json:"refunded,omitempty"`
	}{in.Op, out.PlanID, out.Refunded})
}
