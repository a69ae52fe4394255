package optrack

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"

	"github.com/justincmoy/optrack/internal/optdebug"
)

// arrivalKey orders ops by (initiated_at, seq), using seq as a tiebreaker so
// two ops with identical timestamps still have a total order in the tree.
type arrivalKey struct {
	op *TrackedOp
}

func arrivalLess(a, b arrivalKey) bool {
	ai, bi := a.op.InitiatedAt(), b.op.InitiatedAt()
	if !ai.Equal(bi) {
		return ai.Before(bi)
	}
	return a.op.Seq() < b.op.Seq()
}

// durationKey orders ops by (duration, seq) as observed at insertion time,
// since duration is frozen once an op is in history.
type durationKey struct {
	op       *TrackedOp
	duration time.Duration
}

func durationLess(a, b durationKey) bool {
	if a.duration != b.duration {
		return a.duration < b.duration
	}
	return a.op.Seq() < b.op.Seq()
}

// HistoryConfig holds OpHistory's runtime-tunable knobs. All fields are
// accessed atomically; changes take effect on the next Insert or Dump.
type HistoryConfig struct {
	HistorySize     atomic.Int64
	HistoryDuration atomic.Int64 // nanoseconds
	SlowThreshold   atomic.Int64 // nanoseconds
	SlowHistorySize atomic.Int64
}

// NewHistoryConfig returns a HistoryConfig seeded with the given values.
func NewHistoryConfig(historySize int, historyDuration time.Duration, slowThreshold time.Duration, slowHistorySize int) *HistoryConfig {
	c := &HistoryConfig{}
	c.HistorySize.Store(int64(historySize))
	c.HistoryDuration.Store(int64(historyDuration))
	c.SlowThreshold.Store(int64(slowThreshold))
	c.SlowHistorySize.Store(int64(slowHistorySize))
	return c
}

// OpHistory is a bounded, dual-indexed history of completed operations, plus
// a separate slow-op sub-history, with eviction ordered exactly as
// OpHistory::cleanup in the source this tracker generalizes: age sweep,
// then size-by-duration sweep (evicting the fastest first), then slow
// sub-history sweep (evicting the oldest arrival first).
type OpHistory struct {
	cfg *HistoryConfig

	mtx        sync.Mutex
	byArrival  *btree.BTreeG[arrivalKey]
	byDuration *btree.BTreeG[durationKey]
	slow       *btree.BTreeG[arrivalKey]
	shutdown   bool
}

// NewOpHistory returns an OpHistory governed by cfg.
func NewOpHistory(cfg *HistoryConfig) *OpHistory {
	return &OpHistory{
		cfg:        cfg,
		byArrival:  btree.NewG(32, arrivalLess),
		byDuration: btree.NewG(32, durationLess),
		slow:       btree.NewG(32, arrivalLess),
	}
}

// Insert adds op to history and runs eviction. If the history has been shut
// down, the insert is dropped silently.
func (h *OpHistory) Insert(now time.Time, op *TrackedOp) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.shutdown {
		return
	}

	dur := op.Duration(now)

	h.byArrival.ReplaceOrInsert(arrivalKey{op: op})
	h.byDuration.ReplaceOrInsert(durationKey{op: op, duration: dur})

	slowThreshold := time.Duration(h.cfg.SlowThreshold.Load())
	if dur >= slowThreshold {
		h.slow.ReplaceOrInsert(arrivalKey{op: op})
	}

	h.evictLocked(now)
}

// evictLocked runs the three-step eviction policy. Callers must hold h.mtx.
func (h *OpHistory) evictLocked(now time.Time) {
	historyDuration := time.Duration(h.cfg.HistoryDuration.Load())
	historySize := h.cfg.HistorySize.Load()
	slowHistorySize := h.cfg.SlowHistorySize.Load()

	// 1. Age sweep.
	for {
		min, ok := h.byArrival.Min()
		if !ok {
			break
		}
		if now.Sub(min.op.InitiatedAt()) <= historyDuration {
			break
		}
		h.removeFromArrivalAndDuration(min.op)
		optdebug.Global.Evicted.Add(1)
	}

	// 2. Size sweep by duration: evict the smallest duration first.
	for int64(h.byDuration.Len()) > historySize {
		min, ok := h.byDuration.Min()
		if !ok {
			break
		}
		h.removeFromArrivalAndDuration(min.op)
		optdebug.Global.Evicted.Add(1)
	}

	// 3. Slow sub-history sweep: evict the oldest arrival first.
	for int64(h.slow.Len()) > slowHistorySize {
		min, ok := h.slow.Min()
		if !ok {
			break
		}
		h.slow.Delete(min)
		optdebug.Global.EvictedSlow.Add(1)
	}
}

func (h *OpHistory) removeFromArrivalAndDuration(op *TrackedOp) {
	h.byArrival.Delete(arrivalKey{op: op})
	// durationKey needs the duration used at insertion; we stored it on the
	// op implicitly via its frozen Duration, which is stable post-completion.
	h.byDuration.Delete(durationKey{op: op, duration: op.Duration(time.Time{})})
}

// Dump runs eviction, then emits op_history (§6 schema) in ascending
// arrival order.
func (h *OpHistory) Dump(now time.Time, e Emitter, filters []string) {
	h.mtx.Lock()
	h.evictLocked(now)
	e.OpenObject("")
	e.DumpInt("size", h.cfg.HistorySize.Load())
	e.DumpInt("duration", int64(time.Duration(h.cfg.HistoryDuration.Load())/time.Second))
	e.OpenArray("ops")
	h.byArrival.Ascend(func(k arrivalKey) bool {
		if matchFilters(k.op, filters) {
			k.op.Dump(now, e)
		}
		return true
	})
	e.CloseSection() // ops
	e.CloseSection()
	h.mtx.Unlock()
}

// DumpByDuration runs eviction, then emits ops in strictly non-increasing
// duration order (slowest first).
func (h *OpHistory) DumpByDuration(now time.Time, e Emitter, filters []string) {
	h.mtx.Lock()
	h.evictLocked(now)

	type pair struct {
		op  *TrackedOp
		dur time.Duration
	}
	var pairs []pair
	h.byDuration.Ascend(func(k durationKey) bool {
		if matchFilters(k.op, filters) {
			pairs = append(pairs, pair{op: k.op, dur: k.duration})
		}
		return true
	})
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dur < pairs[j].dur })

	e.OpenObject("")
	e.DumpInt("size", h.cfg.HistorySize.Load())
	e.DumpInt("duration", int64(time.Duration(h.cfg.HistoryDuration.Load())/time.Second))
	e.OpenArray("ops")
	for i := len(pairs) - 1; i >= 0; i-- {
		pairs[i].op.Dump(now, e)
	}
	e.CloseSection() // ops
	e.CloseSection()
	h.mtx.Unlock()
}

// DumpSlow runs eviction, then emits the slow sub-history (legacy-cased
// schema per §6) in ascending arrival order.
func (h *OpHistory) DumpSlow(now time.Time, e Emitter, filters []string) {
	h.mtx.Lock()
	h.evictLocked(now)

	e.OpenObject("")
	e.DumpInt("num to keep", h.cfg.SlowHistorySize.Load())
	e.DumpInt("threshold to keep", int64(time.Duration(h.cfg.SlowThreshold.Load())/time.Second))
	e.OpenArray("Ops")
	h.slow.Ascend(func(k arrivalKey) bool {
		if matchFilters(k.op, filters) {
			k.op.Dump(now, e)
		}
		return true
	})
	e.CloseSection() // Ops
	e.CloseSection()
	h.mtx.Unlock()
}

// Shutdown marks the history shut down: every set is cleared, and further
// Inserts are dropped silently.
func (h *OpHistory) Shutdown() {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.shutdown = true
	h.byArrival.Clear(false)
	h.byDuration.Clear(false)
	h.slow.Clear(false)
}

// sizes returns (|by_arrival|, |by_duration|, |slow|), used by tests
// asserting the invariants in SPEC_FULL.md §8.
func (h *OpHistory) sizes() (int, int, int) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.byArrival.Len(), h.byDuration.Len(), h.slow.Len()
}
