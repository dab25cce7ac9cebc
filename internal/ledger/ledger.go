// Package ledger defines the plan ledger collaborator consumed by the waker
// and the status viewer. Implementations own authorization: ExecuteSwap is
// accepted only for the checkpoint the reconciler currently considers due.
package ledger

import (
	"context"
	"time"

	"solana-ddca/internal/domain"
)

// Reader provides read access to plan state.
type Reader interface {
	// FetchPlan returns the plan together with its vault balance.
	// Returns storage.ErrNotFound if the plan does not exist.
	FetchPlan(ctx context.Context, id domain.PlanID) (*domain.PlanSnapshot, error)

	// ListPlans returns the IDs of all open plans, ordered by ID.
	ListPlans(ctx context.Context) ([]domain.PlanID, error)
}

// Ledger is the full plan ledger: reads plus owner- and waker-authorized
// mutations.
type Ledger interface {
	Reader

	// CreatePlan validates params, fixes StartTimestamp to the ledger clock
	// and funds the vault with the initial deposit.
	// Returns domain.ErrInvalidPlanConfiguration for invalid params.
	CreatePlan(ctx context.Context, params domain.PlanParams) (domain.PlanID, error)

	// DepositFunds adds amount to the vault and TotalDepositedAmount.
	DepositFunds(ctx context.Context, id domain.PlanID, amount uint64) error

	// WithdrawFunds removes amount from the vault.
	// Returns domain.ErrInsufficientBalance if amount exceeds the balance.
	WithdrawFunds(ctx context.Context, id domain.PlanID, amount uint64) error

	// Pause stops the plan from becoming due. Idempotent.
	Pause(ctx context.Context, id domain.PlanID) error

	// Resume re-enables a paused plan. Idempotent.
	Resume(ctx context.Context, id domain.PlanID) error

	// ExecuteSwap records a swap at checkpointTs. Returns
	// domain.ErrStaleExecutionAttempt unless checkpointTs is currently due.
	ExecuteSwap(ctx context.Context, id domain.PlanID, checkpointTs int64, result domain.SwapResult) (*domain.SwapExecution, error)

	// ClosePlan removes the plan and returns the refunded vault balance.
	// Returns domain.ErrSwapPending while the current window is due.
	ClosePlan(ctx context.Context, id domain.PlanID) (uint64, error)
}

// Clock is the trusted time source of a ledger, in Unix seconds.
type Clock interface {
	Now(ctx context.Context) (int64, error)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func(ctx context.Context) (int64, error)

// Now calls f.
func (f ClockFunc) Now(ctx context.Context) (int64, error) { return f(ctx) }

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now(_ context.Context) (int64, error) {
	return time.Now().Unix(), nil
}

// FixedClock returns a clock that always reports ts.
func FixedClock(ts int64) ClockFunc {
	return func(context.Context) (int64, error) { return ts, nil }
}
