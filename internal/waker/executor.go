package waker

import (
	"context"
	"math"
	"math/bits"

	"solana-ddca/internal/domain"
)

// SwapExecutor performs the token swap for one due checkpoint, outside the
// ledger. The ledger records the result only if the checkpoint is still due.
type SwapExecutor interface {
	Swap(ctx context.Context, plan domain.PlanSnapshot, checkpointTs int64) (domain.SwapResult, error)
}

// SwapExecutorFunc adapts a function to SwapExecutor.
type SwapExecutorFunc func(ctx context.Context, plan domain.PlanSnapshot, checkpointTs int64) (domain.SwapResult, error)

// Swap calls f.
func (f SwapExecutorFunc) Swap(ctx context.Context, plan domain.PlanSnapshot, checkpointTs int64) (domain.SwapResult, error) {
	return f(ctx, plan, checkpointTs)
}

// SimulatedExecutor settles swaps at a fixed price without touching a DEX.
type SimulatedExecutor struct {
	// PriceNum/PriceDen convert from-token units to to-token units.
	// A zero denominator reports AmountOut of zero.
	PriceNum uint64
	PriceDen uint64
}

// Swap reports the plan's per-swap amount as spent and the converted amount
// as received, without a transaction signature.
func (e SimulatedExecutor) Swap(ctx context.Context, plan domain.PlanSnapshot, _ int64) (domain.SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SwapResult{}, err
	}
	var out uint64
	if e.PriceDen != 0 {
		out = mulDiv(plan.AmountPerSwap, e.PriceNum, e.PriceDen)
	}
	return domain.SwapResult{AmountIn: plan.AmountPerSwap, AmountOut: out}, nil
}

// mulDiv computes a*b/c, saturating at the maximum uint64.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}
