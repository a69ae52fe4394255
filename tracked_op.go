package optrack

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// OpState is the lifecycle state of a TrackedOp.
type OpState int32

const (
	// StateUninitialized is the state of a TrackedOp before it has been
	// registered with an OpTracker. Observation hooks on an uninitialized op
	// are no-ops.
	StateUninitialized OpState = iota

	// StateLive is the state of a TrackedOp that is registered with a
	// LiveRegistry.
	StateLive

	// StateHistory is the state of a TrackedOp that has been unregistered
	// and, if tracking is enabled, inserted into an OpHistory.
	StateHistory
)

// TrackedOp wraps a caller-supplied Op with the identity, timestamps, event
// log, and membership bookkeeping the tracker needs. TrackedOps are created
// uninitialized; OpTracker.RegisterInflight assigns their seq and transitions
// them to StateLive.
type TrackedOp struct {
	op Op

	seq         uint64
	initiatedAt time.Time

	state atomic.Int32

	mtx              sync.Mutex
	completedAt      time.Time
	log              eventLog
	warnIntervalMult int64

	elem *list.Element // this op's node in its ShardSlot's list, set by the registry
}

// NewTrackedOp wraps op for tracking. The returned TrackedOp is
// StateUninitialized until registered.
func NewTrackedOp(op Op) *TrackedOp {
	return &TrackedOp{
		op:               op,
		warnIntervalMult: 1,
	}
}

// Seq returns the op's registration sequence number. Zero until registered.
func (t *TrackedOp) Seq() uint64 { return t.seq }

// InitiatedAt returns the time the op was registered. Zero until registered.
func (t *TrackedOp) InitiatedAt() time.Time { return t.initiatedAt }

// State returns the op's current lifecycle state.
func (t *TrackedOp) State() OpState { return OpState(t.state.Load()) }

// markRegistered stamps the op's seq and initiated_at and transitions it to
// StateLive. Called by LiveRegistry.Register while holding the registry's
// admission path; must happen before the op is made visible to readers.
func (t *TrackedOp) markRegistered(seq uint64, now time.Time) {
	t.seq = seq
	t.initiatedAt = now
	t.state.Store(int32(StateLive))
}

// markCompleted freezes completed_at and transitions the op to StateHistory.
// Called by OpTracker.UnregisterInflight after the op has been removed from
// the live registry.
func (t *TrackedOp) markCompleted(now time.Time) {
	t.mtx.Lock()
	t.completedAt = now
	t.mtx.Unlock()
	t.state.Store(int32(StateHistory))
}

// Description returns the op's caller-supplied description.
func (t *TrackedOp) Description() string { return t.op.Describe() }

// Current returns the label of the most recently marked event.
func (t *TrackedOp) Current() string {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.log.current
}

// Events returns a snapshot of the op's event log.
func (t *TrackedOp) Events() []Event {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.log.snapshot()
}

// Duration returns the op's duration. While live, this is now minus
// InitiatedAt; once completed, it is the frozen completedAt minus
// InitiatedAt.
func (t *TrackedOp) Duration(now time.Time) time.Duration {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.State() == StateHistory {
		return t.completedAt.Sub(t.initiatedAt)
	}
	return now.Sub(t.initiatedAt)
}

// Age returns now minus InitiatedAt, the standard "how long has this been
// running" measure used for live ops.
func (t *TrackedOp) Age(now time.Time) time.Duration {
	return now.Sub(t.initiatedAt)
}

// WarnIntervalMultiplier returns the op's current backoff multiplier.
func (t *TrackedOp) WarnIntervalMultiplier() int64 {
	return atomic.LoadInt64(&t.warnIntervalMult)
}

// doubleWarnIntervalMultiplier doubles the backoff multiplier. Called by the
// slow-op detector exactly once per emitted warning.
func (t *TrackedOp) doubleWarnIntervalMultiplier() {
	for {
		old := atomic.LoadInt64(&t.warnIntervalMult)
		if atomic.CompareAndSwapInt64(&t.warnIntervalMult, old, old*2) {
			return
		}
	}
}

// MarkEvent appends (stamp, label) to the op's event log and invokes the
// underlying Op's OnEvent hook. It is a no-op if the op is uninitialized.
func (t *TrackedOp) MarkEvent(stamp time.Time, label string) {
	if t.State() == StateUninitialized {
		return
	}

	t.mtx.Lock()
	t.log.append(stamp, label)
	t.mtx.Unlock()

	logrus.WithFields(logrus.Fields{
		"seq":   t.seq,
		"event": label,
	}).Debug("optrack: event marked")

	t.op.OnEvent(label)
}

// FilterMatch reports whether the op matches every filter string. An empty
// filter set matches everything.
func (t *TrackedOp) FilterMatch(filters []string) bool {
	return matchFilters(t.op, filters)
}

// Dump emits the op's standard fields (description, initiated_at, age,
// duration) plus a nested type_data section populated by the underlying Op.
func (t *TrackedOp) Dump(now time.Time, e Emitter) {
	e.OpenObject("")
	e.DumpString("description", t.op.Describe())
	e.DumpFloat("initiated_at", float64(t.initiatedAt.UnixNano())/1e9)
	e.DumpFloat("age", t.Age(now).Seconds())
	e.DumpFloat("duration", t.Duration(now).Seconds())
	e.OpenObject("type_data")
	t.op.DumpTypeData(e)
	e.CloseSection()
	e.CloseSection()
}
