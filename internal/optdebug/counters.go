// Package optdebug holds process-wide atomic counters used for introspection
// of tracker activity, read by the admin surface's debug endpoint.
package optdebug

import "sync/atomic"

// OpCounters tracks lifecycle events for a single OpTracker instance.
type OpCounters struct {
	Registered   atomic.Uint64
	Unregistered atomic.Uint64
	Evicted      atomic.Uint64
	EvictedSlow  atomic.Uint64
	Warned       atomic.Uint64
}

// Values returns a snapshot of the counters.
func (c *OpCounters) Values() (registered, unregistered, evicted, evictedSlow, warned uint64) {
	return c.Registered.Load(), c.Unregistered.Load(), c.Evicted.Load(), c.EvictedSlow.Load(), c.Warned.Load()
}

// Global holds the process-wide counters, for processes that run a single
// OpTracker and want package-level counter variables rather than threading
// an OpCounters reference through call sites.
var Global OpCounters
