// Package memory provides an in-process plan ledger. It enforces the same
// authorization rules as the on-chain program and backs the memory source and
// tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/idhash"
	"solana-ddca/internal/ledger"
	"solana-ddca/internal/schedule"
	"solana-ddca/internal/solana"
	"solana-ddca/internal/storage"
)

// Ledger is an in-memory implementation of ledger.Ledger.
// All operations are serialized by a single mutex.
type Ledger struct {
	mu        sync.Mutex
	clock     ledger.Clock
	programID solana.Pubkey
	plans     map[domain.PlanID]*domain.PlanSnapshot
}

// NewLedger creates an empty in-memory ledger. Plan IDs are derived as
// program addresses of programID.
func NewLedger(clock ledger.Clock, programID solana.Pubkey) *Ledger {
	return &Ledger{
		clock:     clock,
		programID: programID,
		plans:     make(map[domain.PlanID]*domain.PlanSnapshot),
	}
}

// Compile-time interface check.
var _ ledger.Ledger = (*Ledger)(nil)

// CreatePlan validates params and creates a plan starting at the clock's now.
func (l *Ledger) CreatePlan(ctx context.Context, params domain.PlanParams) (domain.PlanID, error) {
	if err := domain.ValidatePlanParams(params); err != nil {
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

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.plans[id]; exists {
		return "", storage.ErrDuplicateKey
	}

	l.plans[id] = &domain.PlanSnapshot{
		Plan: domain.Plan{
			ID:                   id,
			Owner:                params.Owner,
			FromMint:             params.FromMint,
			ToMint:               params.ToMint,
			AmountPerSwap:        params.AmountPerSwap,
			IntervalSeconds:      params.IntervalSeconds,
			StartTimestamp:       now,
			TotalDepositedAmount: params.InitialDeposit,
		},
		FromBalance: params.InitialDeposit,
	}
	return id, nil
}

// FetchPlan returns a copy of the plan snapshot.
func (l *Ledger) FetchPlan(_ context.Context, id domain.PlanID) (*domain.PlanSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.plans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	snapCopy := *s
	return &snapCopy, nil
}

// ListPlans returns all plan IDs in ascending order.
func (l *Ledger) ListPlans(_ context.Context) ([]domain.PlanID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]domain.PlanID, 0, len(l.plans))
	for id := range l.plans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DepositFunds adds amount to the vault.
func (l *Ledger) DepositFunds(_ context.Context, id domain.PlanID, amount uint64) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	if s.FromBalance+amount < s.FromBalance || s.TotalDepositedAmount+amount < s.TotalDepositedAmount {
		return fmt.Errorf("%w: deposit overflows balance", domain.ErrInvalidAmount)
	}
	s.FromBalance += amount
	s.TotalDepositedAmount += amount
	return nil
}

// WithdrawFunds removes amount from the vault.
func (l *Ledger) WithdrawFunds(_ context.Context, id domain.PlanID, amount uint64) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	if amount > s.FromBalance {
		return fmt.Errorf("%w: withdraw %d, balance %d", domain.ErrInsufficientBalance, amount, s.FromBalance)
	}
	s.FromBalance -= amount
	return nil
}

// Pause marks the plan paused.
func (l *Ledger) Pause(_ context.Context, id domain.PlanID) error {
	return l.setPaused(id, true)
}

// Resume clears the paused flag.
func (l *Ledger) Resume(_ context.Context, id domain.PlanID) error {
	return l.setPaused(id, false)
}

func (l *Ledger) setPaused(id domain.PlanID, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.IsPaused = paused
	return nil
}

// ExecuteSwap records a swap for checkpointTs if it is currently due.
// The vault is debited by AmountPerSwap.
func (l *Ledger) ExecuteSwap(ctx context.Context, id domain.PlanID, checkpointTs int64, result domain.SwapResult) (*domain.SwapExecution, error) {
	now, err := l.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.plans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if err := schedule.AcceptExecution(*s, checkpointTs, now); err != nil {
		return nil, err
	}

	s.FromBalance -= s.AmountPerSwap
	s.LastCompletedSwapTimestamp = checkpointTs

	return &domain.SwapExecution{
		ExecutionID:  idhash.ComputeExecutionID(id, checkpointTs),
		PlanID:       id,
		CheckpointTs: checkpointTs,
		AmountIn:     s.AmountPerSwap,
		AmountOut:    result.AmountOut,
		TxSignature:  result.TxSignature,
		ExecutedAt:   now,
	}, nil
}

// ClosePlan deletes the plan and returns its remaining balance.
func (l *Ledger) ClosePlan(ctx context.Context, id domain.PlanID) (uint64, error) {
	now, err := l.clock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.plans[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if schedule.SwapPending(*s, now) {
		return 0, fmt.Errorf("%w: plan %s", domain.ErrSwapPending, id)
	}

	delete(l.plans, id)
	return s.FromBalance, nil
}
