package optrack

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/justincmoy/optrack/internal/optdebug"
)

// Config holds OpTracker's runtime-tunable knobs. All fields are accessed
// atomically, mirroring the lock-free mutable tunable pattern this package
// generalizes from a package-level global to a per-instance value, since an
// OpTracker is a constructed object with its own lifetime, not a process
// singleton.
type Config struct {
	NumShards int // construction-time only; not mutable after NewOpTracker

	TrackingEnabled atomic.Bool
	ComplaintTime   atomic.Int64 // nanoseconds
	LogThreshold    atomic.Int64

	History *HistoryConfig

	// LegacyOldestHeuristic reproduces the original shard-0-only "oldest"
	// heuristic in VisitOpsInFlight, instead of computing the true minimum
	// across shards. Default off.
	LegacyOldestHeuristic atomic.Bool
}

// DefaultConfig returns a Config with reasonable defaults: tracking enabled,
// a 30 second complaint time, a log threshold of 5, a history of 20 entries
// over 10 minutes, and a slow sub-history of 10 entries at a 5 second
// threshold.
func DefaultConfig(numShards int) *Config {
	c := &Config{
		NumShards: numShards,
		History:   NewHistoryConfig(20, 10*time.Minute, 5*time.Second, 10),
	}
	c.TrackingEnabled.Store(true)
	c.ComplaintTime.Store(int64(30 * time.Second))
	c.LogThreshold.Store(5)
	return c
}

// OpTracker composes a LiveRegistry and an OpHistory behind a single
// facade, holding the top-level reader-writer lifecycle lock described in
// SPEC_FULL.md §5. All public operations take that lock in shared mode
// except Shutdown and SetLifecycleSubscriber, which take it exclusively.
type OpTracker struct {
	cfg   *Config
	clock Clock

	lifecycle sync.RWMutex
	registry  *LiveRegistry
	history   *OpHistory
	detector  *SlowOpDetector

	lifecycleSub lifecycleSubscriber
}

// lifecycleSubscriber lets a consumer (e.g. the admin SSE stream) observe
// register/unregister/warn events without coupling OpTracker to any
// particular transport. Nil by default.
type lifecycleSubscriber interface {
	Publish(LifecycleEvent)
}

// LifecycleEvent describes a single register, unregister, or slow-warning
// occurrence, published for admin-surface consumers.
type LifecycleEvent struct {
	Kind string    `json:"kind"` // "register", "unregister", "warn"
	Seq  uint64    `json:"seq"`
	When time.Time `json:"when"`
	Text string    `json:"text,omitempty"`
}

// NewOpTracker returns an OpTracker governed by cfg, using clock as its time
// source.
func NewOpTracker(cfg *Config, clock Clock) *OpTracker {
	registry := NewLiveRegistry(cfg.NumShards)
	return &OpTracker{
		cfg:      cfg,
		clock:    clock,
		registry: registry,
		history:  NewOpHistory(cfg.History),
		detector: NewSlowOpDetector(registry),
	}
}

// SetLifecycleSubscriber installs a subscriber that receives a
// LifecycleEvent for every register, unregister, and slow-op warning. Pass
// nil to detach.
func (t *OpTracker) SetLifecycleSubscriber(sub lifecycleSubscriber) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.lifecycleSub = sub
}

func (t *OpTracker) publish(ev LifecycleEvent) {
	if t.lifecycleSub != nil {
		t.lifecycleSub.Publish(ev)
	}
}

// RegisterInflight registers op with the live registry. It returns false,
// leaving op untouched, if tracking is disabled.
func (t *OpTracker) RegisterInflight(op *TrackedOp) bool {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if !t.cfg.TrackingEnabled.Load() {
		return false
	}

	now := t.clock.Now()
	ok := t.registry.Register(op, now)
	if ok {
		optdebug.Global.Registered.Add(1)
		t.publish(LifecycleEvent{Kind: "register", Seq: op.Seq(), When: now})
	}
	return ok
}

// UnregisterInflight removes op from the live registry, invokes
// op.OnUnregistered() exactly once, and, if tracking is enabled, transitions
// op to history and inserts it into the OpHistory. If tracking is disabled,
// op is simply dropped.
func (t *OpTracker) UnregisterInflight(op *TrackedOp) {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	now := t.clock.Now()

	t.registry.Unregister(op)
	op.op.OnUnregistered()

	optdebug.Global.Unregistered.Add(1)
	t.publish(LifecycleEvent{Kind: "unregister", Seq: op.Seq(), When: now})

	if !t.cfg.TrackingEnabled.Load() {
		return
	}

	op.markCompleted(now)
	t.history.Insert(now, op)
}

// DumpOpsInFlight writes an ops_in_flight dump to e. It returns false if
// tracking is disabled.
func (t *OpTracker) DumpOpsInFlight(e Emitter, onlyBlocked bool, filters []string) bool {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if !t.cfg.TrackingEnabled.Load() {
		return false
	}

	now := t.clock.Now()
	complaintTime := time.Duration(t.cfg.ComplaintTime.Load())
	t.registry.DumpInFlight(now, e, onlyBlocked, filters, complaintTime)
	return true
}

// DumpHistoricOps writes an op_history dump to e, in arrival order or, if
// byDuration is set, slowest-first duration order. It returns false if
// tracking is disabled.
func (t *OpTracker) DumpHistoricOps(e Emitter, byDuration bool, filters []string) bool {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if !t.cfg.TrackingEnabled.Load() {
		return false
	}

	now := t.clock.Now()
	if byDuration {
		t.history.DumpByDuration(now, e, filters)
	} else {
		t.history.Dump(now, e, filters)
	}
	return true
}

// DumpHistoricSlowOps writes the slow sub-history dump to e. It returns
// false if tracking is disabled.
func (t *OpTracker) DumpHistoricSlowOps(e Emitter, filters []string) bool {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if !t.cfg.TrackingEnabled.Load() {
		return false
	}

	now := t.clock.Now()
	t.history.DumpSlow(now, e, filters)
	return true
}

// VisitOpsInFlight invokes visitor over every live op, shard by shard. It
// returns false without invoking visitor if tracking is disabled, if there
// are no live ops, or if the oldest live op is younger than complaintTime
// (nothing to report).
func (t *OpTracker) VisitOpsInFlight(complaintTime time.Duration, visitor func(*TrackedOp) VisitResult) (oldest time.Time, ok bool) {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if !t.cfg.TrackingEnabled.Load() {
		return time.Time{}, false
	}

	t.registry.SetLegacyOldestHeuristic(t.cfg.LegacyOldestHeuristic.Load())

	now := t.clock.Now()
	oldestAt, _, any := t.registry.Visit(func(*TrackedOp) VisitResult { return VisitStop })
	if !any {
		return time.Time{}, false
	}
	if now.Sub(oldestAt) < complaintTime {
		return time.Time{}, false
	}
	t.registry.Visit(visitor)
	return oldestAt, true
}

// CheckOpsInFlight runs the slow-op detector and returns a human-readable
// summary and the list of per-op warning lines. It returns false if
// tracking is disabled.
func (t *OpTracker) CheckOpsInFlight() (summary string, warnings []string, numSlow int, ok bool) {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	if !t.cfg.TrackingEnabled.Load() {
		return "", nil, 0, false
	}

	now := t.clock.Now()
	complaintTime := time.Duration(t.cfg.ComplaintTime.Load())
	logThreshold := int(t.cfg.LogThreshold.Load())

	slowCount, warnedCount, oldestAge := t.detector.Check(now, complaintTime, logThreshold, func(op *TrackedOp) {
		line := WarningLine(now, op)
		warnings = append(warnings, line)
		optdebug.Global.Warned.Add(1)
		logrus.Warn(line)
		t.publish(LifecycleEvent{Kind: "warn", Seq: op.Seq(), When: now, Text: line})
	})

	return Summary(slowCount, warnedCount, oldestAge), warnings, slowCount, true
}

// GetAgeMsHistogram returns a histogram of live op ages in milliseconds.
func (t *OpTracker) GetAgeMsHistogram() *Pow2Histogram {
	t.lifecycle.RLock()
	defer t.lifecycle.RUnlock()

	return t.registry.AgeHistogram(t.clock.Now())
}

// Shutdown tears the tracker down: it takes the lifecycle lock exclusively,
// asserts every shard is empty (callers must have unregistered every
// in-flight op first), and shuts down the history.
func (t *OpTracker) Shutdown() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	for _, n := range t.registry.shardLens() {
		if n != 0 {
			panic(fmt.Sprintf("optrack: Shutdown called with %d ops still in flight", n))
		}
	}

	t.history.Shutdown()
	logrus.Info("optrack: tracker shut down")
}
