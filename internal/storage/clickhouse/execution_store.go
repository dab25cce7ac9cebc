package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/observability"
	"solana-ddca/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using ClickHouse.
// It is the analytics copy of the execution history; the table is a
// ReplacingMergeTree keyed by (plan_id, checkpoint_ts).
type ExecutionStore struct {
	conn *Conn
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(conn *Conn) *ExecutionStore {
	return &ExecutionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionStore) Insert(ctx context.Context, e *domain.SwapExecution) error {
	if e == nil || e.ExecutionID == "" || e.PlanID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	err := s.insert(ctx, e)
	observability.RecordDBQuery("clickhouse", "insert_execution", time.Since(start).Seconds(), err)
	return err
}

func (s *ExecutionStore) insert(ctx context.Context, e *domain.SwapExecution) error {
	// MergeTree does not enforce uniqueness at insert time.
	exists, err := s.exists(ctx, e.ExecutionID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ddca_swap_executions (
			execution_id, plan_id, checkpoint_ts, amount_in, amount_out, tx_signature, executed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.ExecutionID, string(e.PlanID), e.CheckpointTs,
		e.AmountIn, e.AmountOut, e.TxSignature, e.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPlanID retrieves all executions of a plan, ordered by checkpoint ASC.
func (s *ExecutionStore) GetByPlanID(ctx context.Context, planID domain.PlanID) ([]*domain.SwapExecution, error) {
	query := `
		SELECT execution_id, plan_id, checkpoint_ts, amount_in, amount_out, tx_signature, executed_at
		FROM ddca_swap_executions FINAL
		WHERE plan_id = ?
		ORDER BY checkpoint_ts ASC
	`

	rows, err := s.conn.Query(ctx, query, string(planID))
	if err != nil {
		return nil, fmt.Errorf("query by plan id: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// GetByTimeRange retrieves executions with executed_at within [start, end] (inclusive).
func (s *ExecutionStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SwapExecution, error) {
	query := `
		SELECT execution_id, plan_id, checkpoint_ts, amount_in, amount_out, tx_signature, executed_at
		FROM ddca_swap_executions FINAL
		WHERE executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at ASC, execution_id ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// exists checks if an execution with the given id exists.
func (s *ExecutionStore) exists(ctx context.Context, executionID string) (bool, error) {
	query := `
		SELECT count(*) FROM ddca_swap_executions
		WHERE execution_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, executionID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanExecutions scans multiple rows.
func scanExecutions(rows chRows) ([]*domain.SwapExecution, error) {
	var executions []*domain.SwapExecution

	for rows.Next() {
		var e domain.SwapExecution
		var planID string

		err := rows.Scan(
			&e.ExecutionID, &planID, &e.CheckpointTs,
			&e.AmountIn, &e.AmountOut, &e.TxSignature, &e.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}

		e.PlanID = domain.PlanID(planID)
		executions = append(executions, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}

	return executions, nil
}
