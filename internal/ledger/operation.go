package ledger

import (
	"context"
	"fmt"

	"solana-ddca/internal/domain"
)

// Operation enumerates the plan instructions a ledger accepts.
type Operation string

// Operation constants
const (
	OpCreate   Operation = "create"
	OpDeposit  Operation = "deposit"
	OpWithdraw Operation = "withdraw"
	OpPause    Operation = "pause"
	OpResume   Operation = "resume"
	OpExecute  Operation = "execute"
	OpClose    Operation = "close"
)

// Operations lists every Operation in lifecycle order.
var Operations = []Operation{OpCreate, OpDeposit, OpWithdraw, OpPause, OpResume, OpExecute, OpClose}

// ParseOperation converts a string to an Operation.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Instruction is one operation with its arguments. Only the fields relevant
// to Op are read.
type Instruction struct {
	Op           Operation
	PlanID       domain.PlanID
	Params       domain.PlanParams // OpCreate
	Amount       uint64            // OpDeposit, OpWithdraw
	CheckpointTs int64             // OpExecute
	SwapResult   domain.SwapResult // OpExecute
}

// Outcome is what Apply returns for an instruction.
type Outcome struct {
	PlanID    domain.PlanID
	Execution *domain.SwapExecution // OpExecute
	Refunded  uint64                // OpClose
}

// Apply dispatches an instruction to the matching Ledger method.
func Apply(ctx context.Context, l Ledger, in Instruction) (Outcome, error) {
	out := Outcome{PlanID: in.PlanID}

	switch in.Op {
	case OpCreate:
		id, err := l.CreatePlan(ctx, in.Params)
		if err != nil {
			return out, fmt.Errorf("create plan: %w", err)
		}
		out.PlanID = id
	case OpDeposit:
		if err := l.DepositFunds(ctx, in.PlanID, in.Amount); err != nil {
			return out, fmt.Errorf("deposit to %s: %w", in.PlanID, err)
		}
	case OpWithdraw:
		if err := l.WithdrawFunds(ctx, in.PlanID, in.Amount); err != nil {
			return out, fmt.Errorf("withdraw from %s: %w", in.PlanID, err)
		}
	case OpPause:
		if err := l.Pause(ctx, in.PlanID); err != nil {
			return out, fmt.Errorf("pause %s: %w", in.PlanID, err)
		}
	case OpResume:
		if err := l.Resume(ctx, in.PlanID); err != nil {
			return out, fmt.Errorf("resume %s: %w", in.PlanID, err)
		}
	case OpExecute:
		exec, err := l.ExecuteSwap(ctx, in.PlanID, in.CheckpointTs, in.SwapResult)
		if err != nil {
			return out, fmt.Errorf("execute swap on %s: %w", in.PlanID, err)
		}
		out.Execution = exec
	case OpClose:
		refunded, err := l.ClosePlan(ctx, in.PlanID)
		if err != nil {
			return out, fmt.Errorf("close %s: %w", in.PlanID, err)
		}
		out.Refunded = refunded
	default:
		return out, fmt.Errorf("unknown operation %q", in.Op)
	}

	return out, nil
}
