package waker

import (
	"context"
	"encoding/base64"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/ledger/memory"
	"solana-ddca/internal/schedule"
	"solana-ddca/internal/solana"
	"solana-ddca/internal/solana/stub"
	"solana-ddca/internal/storage"
	memstore "solana-ddca/internal/storage/memory"
)

const (
	testProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testOwner   = "Vote111111111111111111111111111111111111111"
	testOwner2  = "Stake11111111111111111111111111111111111111"
	testUSDC    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testWSOL    = "So11111111111111111111111111111111111111112"
	testStart   = int64(1_700_000_000)
)

type testClock struct {
	now atomic.Int64
}

func (c *testClock) Now(_ context.Context) (int64, error) { return c.now.Load(), nil }

// countingExecutor records calls and delegates to fn when set.
type countingExecutor struct {
	calls atomic.Int32
	fn    func(ctx context.Context, plan domain.PlanSnapshot, checkpointTs int64) (domain.SwapResult, error)
}

func (e *countingExecutor) Swap(ctx context.Context, plan domain.PlanSnapshot, checkpointTs int64) (domain.SwapResult, error) {
	e.calls.Add(1)
	if e.fn != nil {
		return e.fn(ctx, plan, checkpointTs)
	}
	return domain.SwapResult{AmountIn: plan.AmountPerSwap, AmountOut: 7, TxSignature: "sig"}, nil
}

// staticReader serves a fixed snapshot.
type staticReader struct {
	snap domain.PlanSnapshot
}

func (r staticReader) FetchPlan(_ context.Context, id domain.PlanID) (*domain.PlanSnapshot, error) {
	if id != r.snap.ID {
		return nil, storage.ErrNotFound
	}
	s := r.snap
	return &s, nil
}

func (r staticReader) ListPlans(_ context.Context) ([]domain.PlanID, error) {
	return []domain.PlanID{r.snap.ID}, nil
}

type fixture struct {
	ledger   *memory.Ledger
	clock    *testClock
	history  *memstore.ExecutionStore
	executor *countingExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	programID, err := solana.ParsePubkey(testProgram)
	require.NoError(t, err)

	clock := &testClock{}
	clock.now.Store(testStart)
	return &fixture{
		ledger:   memory.NewLedger(clock, programID),
		clock:    clock,
		history:  memstore.NewExecutionStore(),
		executor: &countingExecutor{},
	}
}

func (f *fixture) createPlan(t *testing.T, owner string) domain.PlanID {
	t.Helper()
	id, err := f.ledger.CreatePlan(context.Background(), domain.PlanParams{
		Owner:           owner,
		FromMint:        testUSDC,
		ToMint:          testWSOL,
		AmountPerSwap:   20,
		IntervalSeconds: 600,
		InitialDeposit:  45,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) newWaker(t *testing.T, mutate func(*Options)) *Waker {
	t.Helper()
	opts := Options{
		Ledger:      f.ledger,
		Clock:       f.clock,
		Executor:    f.executor,
		History:     []storage.ExecutionStore{f.history},
		Logger:      zerolog.Nop(),
		Concurrency: 4,
	}
	if mutate != nil {
		mutate(&opts)
	}
	w, err := New(opts)
	require.NoError(t, err)
	return w
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		opts Options
	}{
		{"no reader", Options{Clock: f.clock}},
		{"no clock", Options{Ledger: f.ledger, Executor: f.executor}},
		{"ledger without executor", Options{Ledger: f.ledger, Clock: f.clock}},
		{"bad schedule", Options{Reader: f.ledger, Clock: f.clock, Schedule: "every now and then"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}

	w, err := New(Options{Reader: f.ledger, Clock: f.clock, Schedule: "*/30 * * * * *"})
	require.NoError(t, err)
	assert.True(t, w.ObserveOnly())
}

func TestRunOnce_ExecutesEachCheckpointOnce(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	w := f.newWaker(t, nil)
	ctx := context.Background()

	summary, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Plans)
	assert.Equal(t, 1, summary.Outcomes[OutcomeExecuted])

	st, ok := w.PlanStatus(id)
	require.True(t, ok)
	assert.Equal(t, OutcomeExecuted, st.Outcome)
	assert.Equal(t, uint64(25), st.FromBalance)
	assert.Equal(t, testStart, st.LastCompletedSwapTs)
	require.NotNil(t, st.Decision)
	assert.Equal(t, schedule.Waiting(testStart+600), *st.Decision)
	require.NotNil(t, st.LastExecution)
	assert.Equal(t, "sig", st.LastExecution.TxSignature)

	// Same window again: nothing to do.
	summary, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[OutcomeWaiting])
	assert.Equal(t, int32(1), f.executor.calls.Load())

	// Next checkpoint inside the drift window.
	f.clock.now.Store(testStart + 600 + 3)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	st, _ = w.PlanStatus(id)
	assert.Equal(t, OutcomeExecuted, st.Outcome)
	assert.Equal(t, uint64(5), st.FromBalance)

	// Balance no longer covers a swap.
	f.clock.now.Store(testStart + 1200)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	st, _ = w.PlanStatus(id)
	assert.Equal(t, OutcomeExhausted, st.Outcome)
	assert.Equal(t, int32(2), f.executor.calls.Load())

	execs, err := f.history.GetByPlanID(ctx, id)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, testStart, execs[0].CheckpointTs)
	assert.Equal(t, testStart+600, execs[1].CheckpointTs)
}

func TestRunOnce_ObserveOnlyNeverSwaps(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	w := f.newWaker(t, func(o *Options) {
		o.Reader = f.ledger
		o.Ledger = nil
		o.Executor = nil
	})

	summary, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outcomes[OutcomeDue])

	st, ok := w.PlanStatus(id)
	require.True(t, ok)
	assert.Equal(t, OutcomeDue, st.Outcome)
	assert.Equal(t, schedule.Due(testStart), *st.Decision)

	snap, err := f.ledger.FetchPlan(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(45), snap.FromBalance)
	assert.Zero(t, snap.LastCompletedSwapTimestamp)
}

func TestRunOnce_PausedAndWaitingPlans(t *testing.T) {
	f := newFixture(t)
	paused := f.createPlan(t, testOwner)
	waiting := f.createPlan(t, testOwner2)
	ctx := context.Background()
	require.NoError(t, f.ledger.Pause(ctx, paused))

	f.clock.now.Store(testStart + 100)
	w := f.newWaker(t, nil)

	summary, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Plans)

	st, _ := w.PlanStatus(paused)
	assert.Equal(t, OutcomePaused, st.Outcome)
	assert.True(t, st.IsPaused)
	assert.True(t, st.Decision.Indefinite())

	st, _ = w.PlanStatus(waiting)
	assert.Equal(t, OutcomeWaiting, st.Outcome)
	assert.Equal(t, schedule.Waiting(testStart+600), *st.Decision)
	require.NotNil(t, st.Projection)
	assert.Equal(t, uint64(2), st.Projection.RemainingSwaps)

	assert.Zero(t, f.executor.calls.Load())

	snapshot := w.Snapshot()
	require.Len(t, snapshot.Plans, 2)
	assert.Less(t, string(snapshot.Plans[0].PlanID), string(snapshot.Plans[1].PlanID))
	assert.Equal(t, 1, snapshot.Runs)
	require.NotNil(t, snapshot.LastRun)
	assert.Equal(t, testStart+100, snapshot.LastRun.ReferenceTs)
}

func TestProcessPlan_StaleExecutionIsBenign(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)

	// Another actor records the swap while ours is in progress.
	f.executor.fn = func(ctx context.Context, plan domain.PlanSnapshot, checkpointTs int64) (domain.SwapResult, error) {
		_, err := f.ledger.ExecuteSwap(ctx, plan.ID, checkpointTs, domain.SwapResult{AmountIn: plan.AmountPerSwap})
		require.NoError(t, err)
		return domain.SwapResult{AmountIn: plan.AmountPerSwap, AmountOut: 1}, nil
	}
	w := f.newWaker(t, nil)

	st := w.ProcessPlan(context.Background(), id, testStart)
	assert.Equal(t, OutcomeStale, st.Outcome)
	assert.Empty(t, st.Error)

	snap, err := f.ledger.FetchPlan(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), snap.FromBalance, "debited exactly once")

	execs, err := f.history.GetByPlanID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestProcessPlan_ExecutorFailureLeavesPlanDue(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	f.executor.fn = func(context.Context, domain.PlanSnapshot, int64) (domain.SwapResult, error) {
		return domain.SwapResult{}, errors.New("route not found")
	}
	w := f.newWaker(t, nil)

	st := w.ProcessPlan(context.Background(), id, testStart)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.Contains(t, st.Error, "route not found")

	snap, err := f.ledger.FetchPlan(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, schedule.SwapPending(*snap, testStart))
}

func TestProcessPlan_SwapTimeout(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	f.executor.fn = func(ctx context.Context, _ domain.PlanSnapshot, _ int64) (domain.SwapResult, error) {
		<-ctx.Done()
		return domain.SwapResult{}, ctx.Err()
	}
	w := f.newWaker(t, func(o *Options) { o.SwapTimeout = 20 * time.Millisecond })

	st := w.ProcessPlan(context.Background(), id, testStart)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.Contains(t, st.Error, context.DeadlineExceeded.Error())
}

func TestProcessPlan_ChronologyViolation(t *testing.T) {
	f := newFixture(t)
	reader := staticReader{snap: domain.PlanSnapshot{
		Plan: domain.Plan{
			ID:                         "misaligned",
			AmountPerSwap:              20,
			IntervalSeconds:            600,
			StartTimestamp:             testStart,
			LastCompletedSwapTimestamp: testStart + 17,
		},
		FromBalance: 100,
	}}
	w := f.newWaker(t, func(o *Options) { o.Reader = reader })

	st := w.ProcessPlan(context.Background(), "misaligned", testStart+600)
	assert.Equal(t, OutcomeChronologyViolation, st.Outcome)
	assert.Contains(t, st.Error, domain.ErrChronologyViolation.Error())
	assert.Nil(t, st.Decision)
	assert.Zero(t, f.executor.calls.Load())
}

func TestProcessPlan_InvalidTerms(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		amount   uint64
		interval int64
	}{
		{"zero interval", 20, 0},
		{"zero amount", 0, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := staticReader{snap: domain.PlanSnapshot{
				Plan: domain.Plan{
					ID:              "broken",
					AmountPerSwap:   tt.amount,
					IntervalSeconds: tt.interval,
					StartTimestamp:  testStart,
				},
				FromBalance: 100,
			}}
			w := f.newWaker(t, func(o *Options) { o.Reader = reader })

			st := w.ProcessPlan(context.Background(), "broken", testStart+10)
			assert.Equal(t, OutcomeInvalid, st.Outcome)
			assert.Contains(t, st.Error, domain.ErrInvalidPlanConfiguration.Error())
			assert.Nil(t, st.Decision)
		})
	}
	assert.Zero(t, f.executor.calls.Load())
}

func TestRunOnce_ZeroIntervalAccountDoesNotStopPass(t *testing.T) {
	programID, err := solana.ParsePubkey(testProgram)
	require.NoError(t, err)
	rpc := stub.NewRPCClient()

	put := func(owner string, interval int64) domain.PlanID {
		addr, err := solana.PlanAddress(programID, owner, testUSDC, testWSOL, testStart)
		require.NoError(t, err)
		vault, err := solana.VaultAddress(programID, addr)
		require.NoError(t, err)
		data, err := solana.EncodePlanAccount(domain.Plan{
			Owner:           owner,
			FromMint:        testUSDC,
			ToMint:          testWSOL,
			AmountPerSwap:   20,
			IntervalSeconds: interval,
			StartTimestamp:  testStart,
		}, 255)
		require.NoError(t, err)
		rpc.SetAccount(addr.String(), programID.String(), data)
		rpc.SetTokenBalance(vault.String(), 100)
		return domain.PlanID(addr.String())
	}
	good := put(testOwner, 600)
	broken := put(testOwner2, 0)

	clock := &testClock{}
	clock.now.Store(testStart + 10)
	w, err := New(Options{
		Reader: solana.NewChainReader(rpc, programID),
		Clock:  clock,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	summary, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Plans)
	assert.Equal(t, 1, summary.Outcomes[OutcomeDue])
	assert.Equal(t, 1, summary.Outcomes[OutcomeInvalid])

	st, ok := w.PlanStatus(good)
	require.True(t, ok)
	assert.Equal(t, OutcomeDue, st.Outcome)
	st, ok = w.PlanStatus(broken)
	require.True(t, ok)
	assert.Equal(t, OutcomeInvalid, st.Outcome)
}

func TestProcessPlan_ClosedPlanIsForgotten(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	w := f.newWaker(t, nil)
	ctx := context.Background()

	f.clock.now.Store(testStart + 100)
	st := w.ProcessPlan(ctx, id, testStart+100)
	require.Equal(t, OutcomeWaiting, st.Outcome)
	_, ok := w.PlanStatus(id)
	require.True(t, ok)

	_, err := f.ledger.ClosePlan(ctx, id)
	require.NoError(t, err)

	st = w.ProcessPlan(ctx, id, testStart+100)
	assert.Equal(t, OutcomeClosed, st.Outcome)
	_, ok = w.PlanStatus(id)
	assert.False(t, ok)
}

func TestProcessPlan_BusyWhileInFlight(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.executor.fn = func(_ context.Context, plan domain.PlanSnapshot, _ int64) (domain.SwapResult, error) {
		close(entered)
		<-release
		return domain.SwapResult{AmountIn: plan.AmountPerSwap}, nil
	}
	w := f.newWaker(t, nil)

	done := make(chan PlanStatus)
	go func() { done <- w.ProcessPlan(context.Background(), id, testStart) }()
	<-entered

	st := w.ProcessPlan(context.Background(), id, testStart)
	assert.Equal(t, OutcomeBusy, st.Outcome)

	close(release)
	assert.Equal(t, OutcomeExecuted, (<-done).Outcome)
	assert.Equal(t, int32(1), f.executor.calls.Load())
}

func TestWatch_QueuesOnlyPlanAccounts(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	w := f.newWaker(t, nil)

	snap, err := f.ledger.FetchPlan(context.Background(), id)
	require.NoError(t, err)
	data, err := solana.EncodePlanAccount(snap.Plan, 255)
	require.NoError(t, err)

	notifications := make(chan solana.AccountNotification, 2)
	notifications <- solana.AccountNotification{
		Pubkey:  "vault",
		Account: solana.AccountInfo{Data: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})},
	}
	notifications <- solana.AccountNotification{
		Pubkey:  string(id),
		Account: solana.AccountInfo{Data: base64.StdEncoding.EncodeToString(data)},
	}
	close(notifications)

	w.Watch(context.Background(), notifications)

	require.Len(t, w.wake, 1)
	assert.Equal(t, id, <-w.wake)
}

func TestRun_ProcessesNotificationsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	f.clock.now.Store(testStart + 100)
	w := f.newWaker(t, func(o *Options) { o.Schedule = "@every 1h" })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := w.PlanStatus(id)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Window opens; a notification triggers the swap without waiting for
	// the next scheduled pass.
	f.clock.now.Store(testStart + 600)
	w.Notify(id)

	require.Eventually(t, func() bool {
		st, _ := w.PlanStatus(id)
		return st.Outcome == OutcomeExecuted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRecordHistory_IgnoresDuplicates(t *testing.T) {
	f := newFixture(t)
	id := f.createPlan(t, testOwner)
	w := f.newWaker(t, nil)
	ctx := context.Background()

	st := w.ProcessPlan(ctx, id, testStart)
	require.Equal(t, OutcomeExecuted, st.Outcome)

	// Replaying the same execution is a no-op.
	w.recordHistory(ctx, w.logger, st.LastExecution)

	execs, err := f.history.GetByPlanID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}
