package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const insertExecutionQuery = `
	INSERT INTO ddca_swap_executions (
		execution_id, plan_id, checkpoint_ts, amount_in, amount_out, tx_signature, executed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Insert adds a new execution. Returns ErrDuplicateKey if execution_id
// or (plan_id, checkpoint_ts) exists.
func (s *ExecutionStore) Insert(ctx context.Context, e *domain.SwapExecution) error {
	if e == nil || e.ExecutionID == "" || e.PlanID == "" {
		return storage.ErrInvalidInput
	}
	return insertExecution(ctx, s.pool, e)
}

// execer is satisfied by both *Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertExecution(ctx context.Context, db execer, e *domain.SwapExecution) error {
	amountIn, err := toBigint(e.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := toBigint(e.AmountOut)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, insertExecutionQuery,
		e.ExecutionID,
		string(e.PlanID),
		e.CheckpointTs,
		amountIn,
		amountOut,
		e.TxSignature,
		e.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByPlanID retrieves all executions of a plan, ordered by checkpoint ASC.
func (s *ExecutionStore) GetByPlanID(ctx context.Context, planID domain.PlanID) ([]*domain.SwapExecution, error) {
	query := `
		SELECT execution_id, plan_id, checkpoint_ts, amount_in, amount_out, tx_signature, executed_at
		FROM ddca_swap_executions
		WHERE plan_id = $1
		ORDER BY checkpoint_ts ASC
	`

	rows, err := s.pool.Query(ctx, query, string(planID))
	if err != nil {
		return nil, fmt.Errorf("get executions by plan id: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// GetByTimeRange retrieves executions with executed_at within [start, end] (inclusive).
func (s *ExecutionStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SwapExecution, error) {
	query := `
		SELECT execution_id, plan_id, checkpoint_ts, amount_in, amount_out, tx_signature, executed_at
		FROM ddca_swap_executions
		WHERE executed_at >= $1 AND executed_at <= $2
		ORDER BY executed_at ASC, execution_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get executions by time range: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// scanExecutions scans multiple rows into a slice of SwapExecution.
func scanExecutions(rows pgx.Rows) ([]*domain.SwapExecution, error) {
	var executions []*domain.SwapExecution

	for rows.Next() {
		var e domain.SwapExecution
		var planID string
		var amountIn, amountOut int64

		err := rows.Scan(
			&e.ExecutionID,
			&planID,
			&e.CheckpointTs,
			&amountIn,
			&amountOut,
			&e.TxSignature,
			&e.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}

		e.PlanID = domain.PlanID(planID)
		e.AmountIn = uint64(amountIn)
		e.AmountOut = uint64(amountOut)
		executions = append(executions, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}

	return executions, nil
}
