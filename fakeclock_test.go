package optrack

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeClock is a Clock whose Now advances only when told to, giving tests
// deterministic control over age, duration, and eviction-by-time behavior.
type fakeClock struct {
	mtx sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
}

var trackedOpIdentity = cmp.Comparer(func(a, b *TrackedOp) bool { return a == b })

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want, trackedOpIdentity) {
		t.Fatal(cmp.Diff(have, want, trackedOpIdentity))
	}
}
