package memory

import (
	"context"
	"sort"
	"sync"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapExecution // keyed by execution_id
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		data: make(map[string]*domain.SwapExecution),
	}
}

// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionStore) Insert(_ context.Context, e *domain.SwapExecution) error {
	if e == nil || e.ExecutionID == "" || e.PlanID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ExecutionID]; exists {
		return storage.ErrDuplicateKey
	}

	execCopy := *e
	s.data[e.ExecutionID] = &execCopy
	return nil
}

// GetByPlanID retrieves all executions of a plan, ordered by checkpoint ASC.
func (s *ExecutionStore) GetByPlanID(_ context.Context, planID domain.PlanID) ([]*domain.SwapExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapExecution
	for _, e := range s.data {
		if e.PlanID == planID {
			execCopy := *e
			result = append(result, &execCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CheckpointTs < result[j].CheckpointTs
	})

	return result, nil
}

// GetByTimeRange retrieves executions with executed_at within [start, end] (inclusive).
func (s *ExecutionStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SwapExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapExecution
	for _, e := range s.data {
		if e.ExecutedAt >= start && e.ExecutedAt <= end {
			execCopy := *e
			result = append(result, &execCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ExecutedAt != result[j].ExecutedAt {
			return result[i].ExecutedAt < result[j].ExecutedAt
		}
		return result[i].ExecutionID < result[j].ExecutionID
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)
