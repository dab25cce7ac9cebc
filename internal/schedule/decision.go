// Package schedule reconciles a DDCA plan's checkpoint schedule against a
// reference time. Every function here is pure: no I/O, no shared state.
package schedule

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates a Decision.
type Kind uint8

// Decision kinds.
const (
	KindWaiting Kind = iota
	KindDue
)

func (k Kind) String() string {
	switch k {
	case KindDue:
		return "due"
	case KindWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Decision is the tagged result of Reconcile.
// Exactly one of CheckpointTs (due) or NextScheduledTs (waiting) is meaningful.
// NextScheduledTs is unset for an indefinite wait.
type Decision struct {
	Kind            Kind
	CheckpointTs    int64 // checkpoint to record on successful execution
	NextScheduledTs int64 // next checkpoint worth waking up for
	indefinite      bool
}

// Due returns a decision to execute the swap for checkpointTs.
func Due(checkpointTs int64) Decision {
	return Decision{Kind: KindDue, CheckpointTs: checkpointTs}
}

// Waiting returns a decision to wait until nextScheduledTs.
func Waiting(nextScheduledTs int64) Decision {
	return Decision{Kind: KindWaiting, NextScheduledTs: nextScheduledTs}
}

// WaitingIndefinitely returns a waiting decision with no next time, which
// only paused plans produce.
func WaitingIndefinitely() Decision {
	return Decision{Kind: KindWaiting, indefinite: true}
}

// IsDue reports whether a swap should be executed now.
func (d Decision) IsDue() bool { return d.Kind == KindDue }

// Indefinite reports whether the decision waits without a next time.
func (d Decision) Indefinite() bool {
	return d.Kind == KindWaiting && d.indefinite
}

func (d Decision) String() string {
	switch {
	case d.IsDue():
		return fmt.Sprintf("due(checkpoint=%d)", d.CheckpointTs)
	case d.Indefinite():
		return "waiting(indefinite)"
	default:
		return fmt.Sprintf("waiting(next=%d)", d.NextScheduledTs)
	}
}

// decisionJSON is the wire form of Decision.
type decisionJSON struct {
	Kind            string `json:"kind"`
	CheckpointTs    *int64 `json:"checkpoint_ts,omitempty"`
	NextScheduledTs *int64 `json:"next_scheduled_ts,omitempty"`
}

// MarshalJSON encodes the decision as {"kind":"due","checkpoint_ts":N} or
// {"kind":"waiting","next_scheduled_ts":N}.
func (d Decision) MarshalJSON() ([]byte, error) {
	w := decisionJSON{Kind: d.Kind.String()}
	switch {
	case d.IsDue():
		ts := d.CheckpointTs
		w.CheckpointTs = &ts
	case !d.Indefinite():
		ts := d.NextScheduledTs
		w.NextScheduledTs = &ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var w decisionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "due":
		if w.CheckpointTs == nil {
			return fmt.Errorf("due decision without checkpoint_ts")
		}
		*d = Due(*w.CheckpointTs)
	case "waiting":
		if w.NextScheduledTs == nil {
			*d = WaitingIndefinitely()
		} else {
			*d = Waiting(*w.NextScheduledTs)
		}
	default:
		return fmt.Errorf("unknown decision kind %q", w.Kind)
	}
	return nil
}
