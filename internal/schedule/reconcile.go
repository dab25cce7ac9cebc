package schedule

import (
	"fmt"

	"solana-ddca/internal/domain"
)

// MaxDriftCapSeconds caps the due-window half-width at one hour.
const MaxDriftCapSeconds int64 = 3600

// MaxDrift returns the tolerance around each checkpoint:
// min(floor(interval/100), 3600).
func MaxDrift(intervalSeconds int64) int64 {
	drift := intervalSeconds / 100
	if drift > MaxDriftCapSeconds {
		drift = MaxDriftCapSeconds
	}
	return drift
}

// Reconcile decides whether the plan's swap is due at now.
//
// IntervalSeconds must be positive; callers check it with CheckChronology
// or Evaluate. The returned checkpoint, never now itself, is what the ledger
// records as LastCompletedSwapTimestamp.
func Reconcile(s domain.PlanSnapshot, now int64) Decision {
	if s.IsPaused {
		return WaitingIndefinitely()
	}

	start := s.StartTimestamp
	interval := s.IntervalSeconds
	drift := MaxDrift(interval)

	// The first checkpoint opens drift seconds early like every other one.
	if now < start-drift {
		return Waiting(start)
	}

	elapsed := floorDiv(now-start, interval)
	prev := start + elapsed*interval
	next := prev + interval
	last := s.LastCompletedSwapTimestamp

	switch {
	case now <= prev+drift:
		if last < prev {
			return Due(prev)
		}
		return Waiting(next)
	case now >= next-drift:
		if last < next {
			return Due(next)
		}
		return Waiting(start + (elapsed+2)*interval)
	default:
		return Waiting(next)
	}
}

// CheckChronology verifies the interval is positive and
// LastCompletedSwapTimestamp is 0 or a checkpoint. A non-positive interval
// wraps domain.ErrInvalidPlanConfiguration, a misaligned history
// domain.ErrChronologyViolation.
func CheckChronology(p domain.Plan) error {
	if p.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: plan %s interval %d", domain.ErrInvalidPlanConfiguration, p.ID, p.IntervalSeconds)
	}
	last := p.LastCompletedSwapTimestamp
	if last == 0 {
		return nil
	}
	if last < p.StartTimestamp || (last-p.StartTimestamp)%p.IntervalSeconds != 0 {
		return fmt.Errorf("%w: plan %s last swap %d not aligned to start %d interval %d",
			domain.ErrChronologyViolation, p.ID, last, p.StartTimestamp, p.IntervalSeconds)
	}
	return nil
}

// AcceptExecution is the ledger's authorization check for recording a swap at
// checkpointTs. It fails with domain.ErrStaleExecutionAttempt unless
// Reconcile(s, now) is exactly Due(checkpointTs), and with
// domain.ErrInsufficientBalance when the vault cannot fund the swap.
func AcceptExecution(s domain.PlanSnapshot, checkpointTs, now int64) error {
	if err := CheckChronology(s.Plan); err != nil {
		return err
	}

	d := Reconcile(s, now)
	if !d.IsDue() || d.CheckpointTs != checkpointTs {
		return fmt.Errorf("%w: plan %s checkpoint %d at %d, current decision %s",
			domain.ErrStaleExecutionAttempt, s.ID, checkpointTs, now, d)
	}

	if s.FromBalance < s.AmountPerSwap {
		return fmt.Errorf("%w: plan %s balance %d below amount per swap %d",
			domain.ErrInsufficientBalance, s.ID, s.FromBalance, s.AmountPerSwap)
	}
	return nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// SwapPending reports whether a funded swap is due at now. Ledgers refuse to
// close a plan while this holds.
func SwapPending(s domain.PlanSnapshot, now int64) bool {
	if s.IntervalSeconds <= 0 {
		return false
	}
	return Reconcile(s, now).IsDue() && s.FromBalance >= s.AmountPerSwap
}
