package schedule

import (
	"fmt"
	"math"

	"solana-ddca/internal/domain"
)

// RemainingSwaps returns how many swaps the balance can fund.
// amountPerSwap must be positive.
func RemainingSwaps(fromBalance, amountPerSwap uint64) uint64 {
	return fromBalance / amountPerSwap
}

// ExhaustionTimestamp returns when the last funded swap is scheduled, assuming
// every swap runs exactly on its checkpoint. ok is false when nothing remains.
// The result saturates at math.MaxInt64.
func ExhaustionTimestamp(nextScheduledTs, intervalSeconds int64, remaining uint64) (ts int64, ok bool) {
	if remaining == 0 {
		return 0, false
	}
	steps := remaining - 1
	if intervalSeconds > 0 && steps > uint64((math.MaxInt64-nextScheduledTs)/intervalSeconds) {
		return math.MaxInt64, true
	}
	return nextScheduledTs + int64(steps)*intervalSeconds, true
}

// Projection is the advisory funding outlook of a plan.
type Projection struct {
	RemainingSwaps  uint64 `json:"remaining_swaps"`
	NextExecutionTs int64  `json:"next_execution_ts,omitempty"`
	ExhaustionTs    int64  `json:"exhaustion_ts,omitempty"`
}

// Exhausted reports whether the balance cannot fund another swap.
func (p Projection) Exhausted() bool { return p.RemainingSwaps == 0 }

// Project derives the funding outlook from a snapshot and its decision.
// The next execution is the due checkpoint when due, and unknown when paused.
func Project(s domain.PlanSnapshot, d Decision) Projection {
	p := Projection{RemainingSwaps: RemainingSwaps(s.FromBalance, s.AmountPerSwap)}

	switch {
	case d.IsDue():
		p.NextExecutionTs = d.CheckpointTs
	case d.Indefinite():
		return p
	default:
		p.NextExecutionTs = d.NextScheduledTs
	}

	if ts, ok := ExhaustionTimestamp(p.NextExecutionTs, s.IntervalSeconds, p.RemainingSwaps); ok {
		p.ExhaustionTs = ts
	}
	return p
}

// Status bundles a decision with its projection.
type Status struct {
	Decision   Decision   `json:"decision"`
	Projection Projection `json:"projection"`
}

// Evaluate checks the plan's terms and chronology, then reconciles and
// projects it. A zero amount or interval is surfaced as
// domain.ErrInvalidPlanConfiguration, a misaligned history as
// domain.ErrChronologyViolation.
func Evaluate(s domain.PlanSnapshot, now int64) (Status, error) {
	if s.AmountPerSwap == 0 {
		return Status{}, fmt.Errorf("%w: plan %s amount per swap is zero", domain.ErrInvalidPlanConfiguration, s.ID)
	}
	if err := CheckChronology(s.Plan); err != nil {
		return Status{}, err
	}
	d := Reconcile(s, now)
	return Status{Decision: d, Projection: Project(s, d)}, nil
}
