// Package waker drives due DDCA swaps. It reconciles every open plan on a
// cron schedule and re-checks single plans when their accounts change.
// Flow per plan: fetch → terms and chronology check → reconcile → swap → ledger → history
package waker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/ledger"
	"solana-ddca/internal/observability"
	"solana-ddca/internal/schedule"
	"solana-ddca/internal/solana"
	"solana-ddca/internal/storage"
)

const (
	defaultSchedule    = "@every 15s"
	defaultSwapTimeout = 60 * time.Second
	wakeQueueSize      = 256
)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Options for creating a Waker.
type Options struct {
	// Reader supplies plan state. Defaults to Ledger when nil.
	Reader ledger.Reader
	// Ledger records executed swaps. When nil the waker only observes:
	// due plans are reported but never swapped.
	Ledger ledger.Ledger
	// Clock is the reference time for reconciliation. Required.
	Clock ledger.Clock
	// Executor performs swaps. Required when Ledger is set.
	Executor SwapExecutor
	// History receives every recorded execution. Optional.
	History []storage.ExecutionStore

	Logger      zerolog.Logger
	Concurrency int           // plans evaluated in parallel, default 1
	Schedule    string        // cron spec for full passes, default "@every 15s"
	SwapTimeout time.Duration // per-swap executor deadline, default 60s
}

// Waker evaluates plans and executes their due swaps.
type Waker struct {
	reader      ledger.Reader
	ledger      ledger.Ledger
	clock       ledger.Clock
	executor    SwapExecutor
	history     []storage.ExecutionStore
	logger      zerolog.Logger
	concurrency int
	schedule    cron.Schedule
	spec        string
	swapTimeout time.Duration

	inflightMu sync.Mutex
	inflight   map[domain.PlanID]struct{}

	statusMu sync.RWMutex
	status   map[domain.PlanID]PlanStatus
	lastRun  *RunSummary
	runs     int

	wake chan domain.PlanID
}

// New validates opts and creates a Waker.
func New(opts Options) (*Waker, error) {
	reader := opts.Reader
	if reader == nil && opts.Ledger != nil {
		reader = opts.Ledger
	}
	if reader == nil {
		return nil, errors.New("waker: reader or ledger is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("waker: clock is required")
	}
	if opts.Ledger != nil && opts.Executor == nil {
		return nil, errors.New("waker: executor is required with a ledger")
	}

	spec := opts.Schedule
	if spec == "" {
		spec = defaultSchedule
	}
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("waker: parse schedule %q: %w", spec, err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	swapTimeout := opts.SwapTimeout
	if swapTimeout <= 0 {
		swapTimeout = defaultSwapTimeout
	}

	return &Waker{
		reader:      reader,
		ledger:      opts.Ledger,
		clock:       opts.Clock,
		executor:    opts.Executor,
		history:     opts.History,
		logger:      opts.Logger.With().Str("component", "waker").Logger(),
		concurrency: concurrency,
		schedule:    sched,
		spec:        spec,
		swapTimeout: swapTimeout,
		inflight:    make(map[domain.PlanID]struct{}),
		status:      make(map[domain.PlanID]PlanStatus),
		wake:        make(chan domain.PlanID, wakeQueueSize),
	}, nil
}

// ObserveOnly reports whether the waker runs without a ledger.
func (w *Waker) ObserveOnly() bool { return w.ledger == nil }

// RunSummary describes one full pass.
type RunSummary struct {
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration_ns"`
	ReferenceTs int64           `json:"reference_ts"`
	Plans       int             `json:"plans"`
	Outcomes    map[Outcome]int `json:"outcomes"`
}

// RunOnce evaluates every open plan against a single clock reading.
// Per-plan failures are reported in the plan's status, not as an error.
func (w *Waker) RunOnce(ctx context.Context) (*RunSummary, error) {
	started := time.Now()

	ids, err := w.reader.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	now, err := w.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}

	results := make([]PlanStatus, len(ids))
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = w.ProcessPlan(ctx, id, now)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &RunSummary{
		StartedAt:   started,
		Duration:    time.Since(started),
		ReferenceTs: now,
		Plans:       len(ids),
		Outcomes:    make(map[Outcome]int),
	}
	for _, st := range results {
		summary.Outcomes[st.Outcome]++
	}

	w.retain(ids)
	w.statusMu.Lock()
	w.lastRun = summary
	w.runs++
	w.statusMu.Unlock()

	observability.RecordWakerRun(len(ids), summary.Duration.Seconds(), now)
	w.logger.Info().
		Int("plans", len(ids)).
		Int("executed", summary.Outcomes[OutcomeExecuted]).
		Int("due", summary.Outcomes[OutcomeDue]).
		Int("failed", summary.Outcomes[OutcomeFailed]).
		Dur("duration", summary.Duration).
		Msg("pass complete")

	return summary, nil
}

// Wake evaluates a single plan against the current clock.
func (w *Waker) Wake(ctx context.Context, id domain.PlanID) (PlanStatus, error) {
	now, err := w.clock.Now(ctx)
	if err != nil {
		return PlanStatus{}, fmt.Errorf("read clock: %w", err)
	}
	return w.ProcessPlan(ctx, id, now), nil
}

// ProcessPlan runs the full read-decide-execute cycle for one plan at now.
// Concurrent calls for the same plan are not serialized behind each other:
// the second returns OutcomeBusy immediately.
func (w *Waker) ProcessPlan(ctx context.Context, id domain.PlanID, now int64) PlanStatus {
	if !w.acquire(id) {
		return PlanStatus{PlanID: id, Outcome: OutcomeBusy, CheckedAt: now}
	}
	defer w.release(id)

	st := w.evaluate(ctx, id, now)
	if st.Outcome == OutcomeClosed {
		w.forget(id)
	} else {
		w.store(st)
	}
	return st
}

func (w *Waker) evaluate(ctx context.Context, id domain.PlanID, now int64) PlanStatus {
	log := w.logger.With().Str("plan_id", string(id)).Logger()
	st := PlanStatus{PlanID: id, CheckedAt: now}

	snap, err := w.reader.FetchPlan(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		st.Outcome = OutcomeClosed
		return st
	}
	if errors.Is(err, domain.ErrInvalidPlanConfiguration) {
		observability.RecordDecision(string(OutcomeInvalid))
		log.Warn().Err(err).Msg("plan terms cannot be reconciled")
		return st.fail(OutcomeInvalid, err)
	}
	if err != nil {
		log.Error().Err(err).Msg("fetch plan")
		return st.fail(OutcomeFailed, err)
	}
	st.observe(*snap)

	eval, err := schedule.Evaluate(*snap, now)
	if errors.Is(err, domain.ErrInvalidPlanConfiguration) {
		observability.RecordDecision(string(OutcomeInvalid))
		log.Warn().Err(err).Msg("plan terms cannot be reconciled")
		return st.fail(OutcomeInvalid, err)
	}
	if err != nil {
		observability.RecordChronologyViolation()
		log.Error().Err(err).
			Int64("last_completed_swap_ts", snap.LastCompletedSwapTimestamp).
			Int64("start_ts", snap.StartTimestamp).
			Int64("interval_s", snap.IntervalSeconds).
			Msg("plan history is not checkpoint-aligned")
		return st.fail(OutcomeChronologyViolation, err)
	}
	st.setEvaluation(eval)

	switch {
	case eval.Decision.Indefinite():
		st.Outcome = OutcomePaused
	case !eval.Decision.IsDue():
		st.Outcome = OutcomeWaiting
	case eval.Projection.Exhausted():
		st.Outcome = OutcomeExhausted
	}
	if st.Outcome != "" {
		observability.RecordDecision(string(st.Outcome))
		return st
	}
	observability.RecordDecision("due")

	checkpoint := eval.Decision.CheckpointTs
	if w.ledger == nil {
		log.Info().Int64("checkpoint_ts", checkpoint).Msg("swap due")
		st.Outcome = OutcomeDue
		return st
	}
	return w.execute(ctx, log, *snap, checkpoint, now, st)
}

func (w *Waker) execute(ctx context.Context, log zerolog.Logger, snap domain.PlanSnapshot, checkpoint, now int64, st PlanStatus) PlanStatus {
	log = log.With().Int64("checkpoint_ts", checkpoint).Logger()

	swapCtx, cancel := context.WithTimeout(ctx, w.swapTimeout)
	result, err := w.executor.Swap(swapCtx, snap, checkpoint)
	cancel()
	if err != nil {
		observability.RecordExecution("failed")
		log.Error().Err(err).Msg("swap")
		return st.fail(OutcomeFailed, fmt.Errorf("swap: %w", err))
	}

	exec, err := w.ledger.ExecuteSwap(ctx, snap.ID, checkpoint, result)
	switch {
	case errors.Is(err, domain.ErrStaleExecutionAttempt):
		observability.RecordExecution("stale")
		log.Info().Msg("checkpoint already handled")
		st.Outcome = OutcomeStale
		return st
	case errors.Is(err, domain.ErrInsufficientBalance):
		observability.RecordExecution("insufficient")
		log.Warn().Uint64("from_balance", snap.FromBalance).Msg("vault drained before swap was recorded")
		return st.fail(OutcomeInsufficient, err)
	case err != nil:
		observability.RecordExecution("failed")
		log.Error().Err(err).Msg("record swap")
		return st.fail(OutcomeFailed, fmt.Errorf("record swap: %w", err))
	}
	observability.RecordExecution("executed")

	after := snap
	after.FromBalance -= exec.AmountIn
	after.LastCompletedSwapTimestamp = checkpoint
	st.observe(after)
	d := schedule.Reconcile(after, now)
	st.setEvaluation(schedule.Status{Decision: d, Projection: schedule.Project(after, d)})
	st.Outcome = OutcomeExecuted
	st.LastExecution = exec

	log.Info().
		Uint64("amount_in", exec.AmountIn).
		Uint64("amount_out", exec.AmountOut).
		Str("tx", exec.TxSignature).
		Msg("swap executed")

	w.recordHistory(ctx, log, exec)
	return st
}

// recordHistory writes exec to every history sink. Sink failures are logged
// and never undo a recorded swap.
func (w *Waker) recordHistory(ctx context.Context, log zerolog.Logger, exec *domain.SwapExecution) {
	for _, h := range w.history {
		if err := storage.IgnoreDuplicate(h.Insert(ctx, exec)); err != nil {
			log.Warn().Err(err).Str("execution_id", exec.ExecutionID).Msg("write execution history")
		}
	}
}

// Notify queues a plan for re-evaluation. It never blocks; when the queue is
// full the plan is picked up by the next scheduled pass.
func (w *Waker) Notify(id domain.PlanID) {
	select {
	case w.wake <- id:
	default:
		w.logger.Debug().Str("plan_id", string(id)).Msg("wake queue full, deferring to next pass")
	}
}

// Watch forwards plan account notifications to Notify until notifications
// is closed or ctx is done. Accounts that do not decode as plans are ignored.
func (w *Waker) Watch(ctx context.Context, notifications <-chan solana.AccountNotification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			id := domain.PlanID(n.Pubkey)
			if _, _, err := solana.DecodePlanAccountBase64(id, n.Account.Data); err != nil {
				continue
			}
			w.Notify(id)
		}
	}
}

// Run performs an initial pass, then runs passes on the cron schedule and
// serves Notify requests until ctx is done. Returns nil on cancellation.
func (w *Waker) Run(ctx context.Context) error {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Msg("initial pass")
	}

	cronLog := cronLogger{w.logger}
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.SkipIfStillRunning(cronLog)),
	)
	c.Schedule(w.schedule, cron.FuncJob(func() {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("scheduled pass")
		}
	}))
	c.Start()
	w.logger.Info().Str("schedule", w.spec).Bool("observe_only", w.ObserveOnly()).Msg("waker started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case id := <-w.wake:
					if _, err := w.Wake(gctx, id); err != nil && gctx.Err() == nil {
						w.logger.Error().Err(err).Str("plan_id", string(id)).Msg("wake plan")
					}
				}
			}
		})
	}

	err := g.Wait()
	<-c.Stop().Done()
	w.logger.Info().Msg("waker stopped")
	return err
}

func (w *Waker) acquire(id domain.PlanID) bool {
	w.inflightMu.Lock()
	defer w.inflightMu.Unlock()
	if _, busy := w.inflight[id]; busy {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *Waker) release(id domain.PlanID) {
	w.inflightMu.Lock()
	delete(w.inflight, id)
	w.inflightMu.Unlock()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
