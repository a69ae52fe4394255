package optrack

import "time"

// Clock abstracts the wall-clock reader the tracker consumes. Production
// code uses SystemClock; tests inject a fake to exercise scenarios that
// depend on the passage of time.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
