package storage

import (
	"context"

	"solana-ddca/internal/domain"
)

// ExecutionStore provides access to the append-only swap execution history.
type ExecutionStore interface {
	// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists.
	Insert(ctx context.Context, e *domain.SwapExecution) error

	// GetByPlanID retrieves all executions of a plan, ordered by checkpoint ASC.
	GetByPlanID(ctx context.Context, planID domain.PlanID) ([]*domain.SwapExecution, error)

	// GetByTimeRange retrieves executions with executed_at within [start, end] (inclusive),
	// ordered by executed_at ASC, execution_id ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SwapExecution, error)
}
