package optrack

import (
	"strings"
	"testing"
	"time"
)

func completedOp(name string, initiatedAt time.Time, dur time.Duration) *TrackedOp {
	op := newTestTrackedOp(name)
	op.markRegistered(0, initiatedAt)
	op.markCompleted(initiatedAt.Add(dur))
	return op
}

func TestOpHistoryInsertAndDumpOrder(t *testing.T) {
	cfg := NewHistoryConfig(10, time.Hour, time.Hour, 10)
	h := NewOpHistory(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base.Add(time.Minute)

	h.Insert(now, completedOp("first", base, time.Second))
	h.Insert(now, completedOp("second", base.Add(time.Second), 2*time.Second))

	e := NewJSONEmitter()
	h.Dump(now, e, nil)
	out := e.String()

	firstIdx := strings.Index(out, `"first"`)
	secondIdx := strings.Index(out, `"second"`)
	if firstIdx < 0 || secondIdx < 0 || firstIdx > secondIdx {
		t.Fatalf("expected ascending arrival order, got: %s", out)
	}
}

func TestOpHistorySizeEvictionBySmallestDuration(t *testing.T) {
	cfg := NewHistoryConfig(1, time.Hour, time.Hour, 10)
	h := NewOpHistory(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base.Add(time.Minute)

	fast := completedOp("fast", base, time.Second)
	slow := completedOp("slow", base.Add(time.Second), 10*time.Second)

	h.Insert(now, fast)
	h.Insert(now, slow)

	byArrival, byDuration, _ := h.sizes()
	assertEqual(t, byArrival, 1)
	assertEqual(t, byDuration, 1)

	e := NewJSONEmitter()
	h.Dump(now, e, nil)
	out := e.String()
	if strings.Index(out, `"slow"`) < 0 {
		t.Fatalf("expected the slower op to survive eviction: %s", out)
	}
	if strings.Index(out, `"fast"`) >= 0 {
		t.Fatalf("expected the faster op to be evicted: %s", out)
	}
}

func TestOpHistoryAgeEviction(t *testing.T) {
	cfg := NewHistoryConfig(10, time.Minute, time.Hour, 10)
	h := NewOpHistory(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.Insert(base, completedOp("old", base, time.Second))

	later := base.Add(2 * time.Minute)
	h.Insert(later, completedOp("new", later, time.Second))

	byArrival, _, _ := h.sizes()
	assertEqual(t, byArrival, 1)
}

func TestOpHistorySlowSubHistory(t *testing.T) {
	cfg := NewHistoryConfig(10, time.Hour, 5*time.Second, 1)
	h := NewOpHistory(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base.Add(time.Minute)

	h.Insert(now, completedOp("not-slow", base, time.Second))
	h.Insert(now, completedOp("slow-1", base.Add(time.Second), 10*time.Second))
	h.Insert(now, completedOp("slow-2", base.Add(2*time.Second), 20*time.Second))

	_, _, slow := h.sizes()
	assertEqual(t, slow, 1)

	e := NewJSONEmitter()
	h.DumpSlow(now, e, nil)
	out := e.String()
	if strings.Index(out, `"slow-2"`) < 0 {
		t.Fatalf("expected the most recently arrived slow op to survive: %s", out)
	}
}

func TestOpHistoryShutdownDropsInserts(t *testing.T) {
	cfg := NewHistoryConfig(10, time.Hour, time.Hour, 10)
	h := NewOpHistory(cfg)
	h.Shutdown()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.Insert(base, completedOp("dropped", base, time.Second))

	byArrival, byDuration, slow := h.sizes()
	assertEqual(t, byArrival, 0)
	assertEqual(t, byDuration, 0)
	assertEqual(t, slow, 0)
}
