package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/idhash"
	"solana-ddca/internal/ledger"
	"solana-ddca/internal/observability"
	"solana-ddca/internal/schedule"
	"solana-ddca/internal/solana"
	"solana-ddca/internal/storage"
)

// PlanLedger implements ledger.Ledger on top of the ddca_plans table.
// Mutations of a single plan are serialized with SELECT ... FOR UPDATE, and
// each accepted execution is recorded in ddca_swap_executions in the same
// transaction.
type PlanLedger struct {
	pool      *Pool
	clock     ledger.Clock
	programID solana.Pubkey
}

// NewPlanLedger creates a new PlanLedger.
func NewPlanLedger(pool *Pool, clock ledger.Clock, programID solana.Pubkey) *PlanLedger {
	return &PlanLedger{pool: pool, clock: clock, programID: programID}
}

// Compile-time interface check.
var _ ledger.Ledger = (*PlanLedger)(nil)

const selectPlanQuery = `
	SELECT plan_id, owner, from_mint, to_mint, amount_per_swap, interval_seconds,
	       start_timestamp, last_completed_swap_timestamp, total_deposited_amount,
	       from_balance, is_paused
	FROM ddca_plans
	WHERE plan_id = $1
`

// CreatePlan validates params and inserts a plan starting at the clock's now.
func (l *PlanLedger) CreatePlan(ctx context.Context, params domain.PlanParams) (domain.PlanID, error) {
	if err := domain.ValidatePlanParams(params); err != nil {
		return "", err
	}
	amount, err := toBigint(params.AmountPerSwap)
	if err != nil {
		return "", err
	}
	deposit, err := toBigint(params.InitialDeposit)
	if err != nil {
		return "", err
	}

	now, err := l.clock.Now(ctx)
	if err != nil {
		return "", fmt.Errorf("read clock: %w", err)
	}

	addr, err := solana.PlanAddress(l.programID, params.Owner, params.FromMint, params.ToMint, now)
	if err != nil {
		return "", fmt.Errorf("derive plan address: %w", err)
	}
	id := domain.PlanID(addr.String())

	query := `
		INSERT INTO ddca_plans (
			plan_id, owner, from_mint, to_mint, amount_per_swap, interval_seconds,
			start_timestamp, total_deposited_amount, from_balance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	start := time.Now()
	_, err = l.pool.Exec(ctx, query,
		string(id),
		params.Owner,
		params.FromMint,
		params.ToMint,
		amount,
		params.IntervalSeconds,
		now,
		deposit,
	)
	observability.RecordDBQuery("postgres", "create_plan", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", storage.ErrDuplicateKey
		}
		return "", fmt.Errorf("insert plan: %w", err)
	}
	return id, nil
}

// FetchPlan returns the plan with its vault balance.
func (l *PlanLedger) FetchPlan(ctx context.Context, id domain.PlanID) (*domain.PlanSnapshot, error) {
	start := time.Now()
	s, err := scanPlan(l.pool.QueryRow(ctx, selectPlanQuery, string(id)))
	if err != nil {
		if isNotFoundError(err) {
			observability.RecordDBQuery("postgres", "fetch_plan", time.Since(start).Seconds(), nil)
			return nil, storage.ErrNotFound
		}
		observability.RecordDBQuery("postgres", "fetch_plan", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("get plan by id: %w", err)
	}
	observability.RecordDBQuery("postgres", "fetch_plan", time.Since(start).Seconds(), nil)
	return s, nil
}

// ListPlans returns all plan IDs in ascending order.
func (l *PlanLedger) ListPlans(ctx context.Context) ([]domain.PlanID, error) {
	start := time.Now()
	rows, err := l.pool.Query(ctx, `SELECT plan_id FROM ddca_plans ORDER BY plan_id ASC`)
	observability.RecordDBQuery("postgres", "list_plans", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var ids []domain.PlanID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan plan id: %w", err)
		}
		ids = append(ids, domain.PlanID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan rows: %w", err)
	}
	return ids, nil
}

// DepositFunds adds amount to the vault and the deposited total.
func (l *PlanLedger) DepositFunds(ctx context.Context, id domain.PlanID, amount uint64) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}

	return l.withPlanLock(ctx, "deposit_funds", id, func(tx pgx.Tx, s *domain.PlanSnapshot) error {
		if amount > math.MaxInt64-s.FromBalance || amount > math.MaxInt64-s.TotalDepositedAmount {
			return fmt.Errorf("%w: deposit overflows balance", domain.ErrInvalidAmount)
		}
		_, err := tx.Exec(ctx, `
			UPDATE ddca_plans
			SET from_balance = from_balance + $2,
			    total_deposited_amount = total_deposited_amount + $2,
			    updated_at = NOW()
			WHERE plan_id = $1
		`, string(id), int64(amount))
		if err != nil {
			return fmt.Errorf("update plan balance: %w", err)
		}
		return nil
	})
}

// WithdrawFunds removes amount from the vault.
func (l *PlanLedger) WithdrawFunds(ctx context.Context, id domain.PlanID, amount uint64) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}

	return l.withPlanLock(ctx, "withdraw_funds", id, func(tx pgx.Tx, s *domain.PlanSnapshot) error {
		if amount > s.FromBalance {
			return fmt.Errorf("%w: withdraw %d, balance %d", domain.ErrInsufficientBalance, amount, s.FromBalance)
		}
		_, err := tx.Exec(ctx, `
			UPDATE ddca_plans
			SET from_balance = from_balance - $2, updated_at = NOW()
			WHERE plan_id = $1
		`, string(id), int64(amount))
		if err != nil {
			return fmt.Errorf("update plan balance: %w", err)
		}
		return nil
	})
}

// Pause marks the plan paused.
func (l *PlanLedger) Pause(ctx context.Context, id domain.PlanID) error {
	return l.setPaused(ctx, id, true)
}

// Resume clears the paused flag.
func (l *PlanLedger) Resume(ctx context.Context, id domain.PlanID) error {
	return l.setPaused(ctx, id, false)
}

func (l *PlanLedger) setPaused(ctx context.Context, id domain.PlanID, paused bool) error {
	start := time.Now()
	tag, err := l.pool.Exec(ctx, `
		UPDATE ddca_plans SET is_paused = $2, updated_at = NOW() WHERE plan_id = $1
	`, string(id), paused)
	observability.RecordDBQuery("postgres", "set_paused", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("update plan paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ExecuteSwap records a swap for checkpointTs if it is currently due, debits
// AmountPerSwap and appends the execution to ddca_swap_executions.
func (l *PlanLedger) ExecuteSwap(ctx context.Context, id domain.PlanID, checkpointTs int64, result domain.SwapResult) (*domain.SwapExecution, error) {
	now, err := l.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}

	var exec *domain.SwapExecution
	err = l.withPlanLock(ctx, "execute_swap", id, func(tx pgx.Tx, s *domain.PlanSnapshot) error {
		if err := schedule.AcceptExecution(*s, checkpointTs, now); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE ddca_plans
			SET from_balance = from_balance - amount_per_swap,
			    last_completed_swap_timestamp = $2,
			    updated_at = NOW()
			WHERE plan_id = $1 AND last_completed_swap_timestamp = $3
		`, string(id), checkpointTs, s.LastCompletedSwapTimestamp)
		if err != nil {
			return fmt.Errorf("advance plan checkpoint: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: checkpoint %d already consumed", domain.ErrStaleExecutionAttempt, checkpointTs)
		}

		exec = &domain.SwapExecution{
			ExecutionID:  idhash.ComputeExecutionID(id, checkpointTs),
			PlanID:       id,
			CheckpointTs: checkpointTs,
			AmountIn:     s.AmountPerSwap,
			AmountOut:    result.AmountOut,
			TxSignature:  result.TxSignature,
			ExecutedAt:   now,
		}
		if err := insertExecution(ctx, tx, exec); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("%w: checkpoint %d already executed", domain.ErrStaleExecutionAttempt, checkpointTs)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// ClosePlan deletes the plan and returns its remaining balance.
func (l *PlanLedger) ClosePlan(ctx context.Context, id domain.PlanID) (uint64, error) {
	now, err := l.clock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}

	var refund uint64
	err = l.withPlanLock(ctx, "close_plan", id, func(tx pgx.Tx, s *domain.PlanSnapshot) error {
		if schedule.SwapPending(*s, now) {
			return fmt.Errorf("%w: plan %s", domain.ErrSwapPending, id)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ddca_plans WHERE plan_id = $1`, string(id)); err != nil {
			return fmt.Errorf("delete plan: %w", err)
		}
		refund = s.FromBalance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return refund, nil
}

// withPlanLock runs fn inside a transaction holding the plan's row lock.
// Errors returned by fn roll the transaction back and are passed through.
func (l *PlanLedger) withPlanLock(ctx context.Context, op string, id domain.PlanID, fn func(tx pgx.Tx, s *domain.PlanSnapshot) error) error {
	start := time.Now()
	var dbErr error
	defer func() {
		observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), dbErr)
	}()

	tx, dbErr := l.pool.Begin(ctx)
	if dbErr != nil {
		return fmt.Errorf("begin %s: %w", op, dbErr)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := scanPlan(tx.QueryRow(ctx, selectPlanQuery+" FOR UPDATE", string(id)))
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		dbErr = err
		return fmt.Errorf("lock plan: %w", err)
	}

	if err := fn(tx, s); err != nil {
		return err
	}

	if dbErr = tx.Commit(ctx); dbErr != nil {
		return fmt.Errorf("commit %s: %w", op, dbErr)
	}
	return nil
}

// scanPlan scans a single ddca_plans row into a PlanSnapshot.
func scanPlan(row pgx.Row) (*domain.PlanSnapshot, error) {
	var s domain.PlanSnapshot
	var id string
	var amount, deposited, balance int64

	err := row.Scan(
		&id,
		&s.Owner,
		&s.FromMint,
		&s.ToMint,
		&amount,
		&s.IntervalSeconds,
		&s.StartTimestamp,
		&s.LastCompletedSwapTimestamp,
		&deposited,
		&balance,
		&s.IsPaused,
	)
	if err != nil {
		return nil, err
	}

	s.ID = domain.PlanID(id)
	s.AmountPerSwap = uint64(amount)
	s.TotalDepositedAmount = uint64(deposited)
	s.FromBalance = uint64(balance)
	return &s, nil
}
