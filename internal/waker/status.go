package waker

import (
	"sort"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/schedule"
)

// Outcome is the result of evaluating one plan.
type Outcome string

// Plan outcomes.
const (
	OutcomeWaiting             Outcome = "waiting"
	OutcomePaused              Outcome = "paused"
	OutcomeExhausted           Outcome = "exhausted"
	OutcomeDue                 Outcome = "due" // due, but the waker only observes
	OutcomeExecuted            Outcome = "executed"
	OutcomeStale               Outcome = "stale" // another actor handled the window
	OutcomeInsufficient        Outcome = "insufficient"
	OutcomeFailed              Outcome = "failed"
	OutcomeChronologyViolation Outcome = "chronology_violation"
	OutcomeInvalid             Outcome = "invalid_configuration" // unusable swap terms
	OutcomeClosed              Outcome = "closed"
	OutcomeBusy                Outcome = "busy" // evaluation already in flight
)

// PlanStatus is the latest evaluation of a plan, served by /status.
type PlanStatus struct {
	PlanID              domain.PlanID         `json:"plan_id"`
	Outcome             Outcome               `json:"outcome"`
	CheckedAt           int64                 `json:"checked_at"`
	IsPaused            bool                  `json:"is_paused"`
	FromBalance         uint64                `json:"from_balance"`
	AmountPerSwap       uint64                `json:"amount_per_swap"`
	IntervalSeconds     int64                 `json:"interval_seconds"`
	LastCompletedSwapTs int64                 `json:"last_completed_swap_ts"`
	Decision            *schedule.Decision    `json:"decision,omitempty"`
	Projection          *schedule.Projection  `json:"projection,omitempty"`
	LastExecution       *domain.SwapExecution `json:"last_execution,omitempty"`
	Error               string                `json:"error,omitempty"`
}

func (st *PlanStatus) observe(s domain.PlanSnapshot) {
	st.IsPaused = s.IsPaused
	st.FromBalance = s.FromBalance
	st.AmountPerSwap = s.AmountPerSwap
	st.IntervalSeconds = s.IntervalSeconds
	st.LastCompletedSwapTs = s.LastCompletedSwapTimestamp
}

func (st *PlanStatus) setEvaluation(s schedule.Status) {
	d, p := s.Decision, s.Projection
	st.Decision = &d
	st.Projection = &p
}

func (st PlanStatus) fail(o Outcome, err error) PlanStatus {
	st.Outcome = o
	st.Error = err.Error()
	return st
}

// Snapshot is the waker state exposed over HTTP.
type Snapshot struct {
	ObserveOnly bool         `json:"observe_only"`
	Schedule    string       `json:"schedule"`
	Runs        int          `json:"runs"`
	LastRun     *RunSummary  `json:"last_run,omitempty"`
	Plans       []PlanStatus `json:"plans"`
}

// Snapshot returns the current status of every tracked plan, ordered by ID.
func (w *Waker) Snapshot() Snapshot {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()

	plans := make([]PlanStatus, 0, len(w.status))
	for _, st := range w.status {
		plans = append(plans, st)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].PlanID < plans[j].PlanID })

	var last *RunSummary
	if w.lastRun != nil {
		cp := *w.lastRun
		last = &cp
	}
	return Snapshot{
		ObserveOnly: w.ObserveOnly(),
		Schedule:    w.spec,
		Runs:        w.runs,
		LastRun:     last,
		Plans:       plans,
	}
}

// PlanStatus returns the latest status of one plan.
func (w *Waker) PlanStatus(id domain.PlanID) (PlanStatus, bool) {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	st, ok := w.status[id]
	return st, ok
}

func (w *Waker) store(st PlanStatus) {
	w.statusMu.Lock()
	w.status[st.PlanID] = st
	w.statusMu.Unlock()
}

func (w *Waker) forget(id domain.PlanID) {
	w.statusMu.Lock()
	delete(w.status, id)
	w.statusMu.Unlock()
}

// retain drops status entries of plans no longer listed.
func (w *Waker) retain(ids []domain.PlanID) {
	keep := make(map[domain.PlanID]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	for id := range w.status {
		if _, ok := keep[id]; !ok {
			delete(w.status, id)
		}
	}
}
