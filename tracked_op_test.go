package optrack

import (
	"strings"
	"testing"
	"time"
)

func TestTrackedOpLifecycle(t *testing.T) {
	op := newTestTrackedOp("alpha")
	assertEqual(t, op.State(), StateUninitialized)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	op.markRegistered(7, base)
	assertEqual(t, op.State(), StateLive)
	assertEqual(t, op.Seq(), uint64(7))
	assertEqual(t, op.InitiatedAt(), base)

	live := base.Add(3 * time.Second)
	assertEqual(t, op.Duration(live), 3*time.Second)
	assertEqual(t, op.Age(live), 3*time.Second)

	op.markCompleted(live)
	assertEqual(t, op.State(), StateHistory)

	// Duration is frozen once completed, regardless of the now passed in.
	assertEqual(t, op.Duration(live.Add(time.Hour)), 3*time.Second)
}

func TestTrackedOpMarkEvent(t *testing.T) {
	op := newTestTrackedOp("alpha")
	op.markRegistered(1, time.Now())

	op.MarkEvent(time.Now(), "started")
	op.MarkEvent(time.Now(), "finished")

	assertEqual(t, op.Current(), "finished")
	events := op.Events()
	assertEqual(t, len(events), 2)
	assertEqual(t, events[0].Label, "started")
	assertEqual(t, events[1].Label, "finished")
}

func TestTrackedOpMarkEventNoopUninitialized(t *testing.T) {
	op := newTestTrackedOp("alpha")
	op.MarkEvent(time.Now(), "ignored")
	assertEqual(t, len(op.Events()), 0)
}

func TestTrackedOpWarnIntervalMultiplierDoubles(t *testing.T) {
	op := newTestTrackedOp("alpha")
	assertEqual(t, op.WarnIntervalMultiplier(), int64(1))
	op.doubleWarnIntervalMultiplier()
	assertEqual(t, op.WarnIntervalMultiplier(), int64(2))
	op.doubleWarnIntervalMultiplier()
	assertEqual(t, op.WarnIntervalMultiplier(), int64(4))
}

func TestTrackedOpDumpIncludesTypeData(t *testing.T) {
	op := newTestTrackedOp("alpha")
	op.markRegistered(1, time.Now())

	e := NewJSONEmitter()
	op.Dump(time.Now(), e)
	out := e.String()

	for _, want := range []string{`"description":"alpha"`, `"name":"alpha"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q: %s", want, out)
		}
	}
}
