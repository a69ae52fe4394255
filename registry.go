package optrack

import (
	"sync/atomic"
	"time"
)

// VisitResult is returned by a LiveRegistry visitor for each op, indicating
// whether the current shard's traversal should continue or stop.
type VisitResult int

const (
	// VisitContinue continues iterating the current shard.
	VisitContinue VisitResult = iota
	// VisitStop ends the current shard's traversal early; the outer walk
	// proceeds to the next shard.
	VisitStop
)

// LiveRegistry is an N-way sharded set of in-flight TrackedOps. Shard
// selection is seq mod N, so an op's shard is derivable from its own
// identity with no lookup, and registration order within a shard is FIFO.
type LiveRegistry struct {
	shards  []shardSlot
	seq     atomic.Uint64
	enabled atomic.Bool

	legacyOldestHeuristic atomic.Bool
}

// NewLiveRegistry returns a LiveRegistry with numShards shards. numShards
// should typically match expected producer parallelism; a single shard is
// correctness-equivalent but serializes all registrations.
func NewLiveRegistry(numShards int) *LiveRegistry {
	if numShards < 1 {
		numShards = 1
	}
	r := &LiveRegistry{
		shards: make([]shardSlot, numShards),
	}
	r.enabled.Store(true)
	return r
}

// SetEnabled toggles whether Register admits new ops.
func (r *LiveRegistry) SetEnabled(enabled bool) { r.enabled.Store(enabled) }

// Enabled reports whether the registry currently admits new ops.
func (r *LiveRegistry) Enabled() bool { return r.enabled.Load() }

// SetLegacyOldestHeuristic toggles the compatibility mode described in
// SPEC_FULL.md's Open Question resolution: when enabled, Visit reports
// shard 0's front timestamp as "oldest" instead of the true minimum across
// shards.
func (r *LiveRegistry) SetLegacyOldestHeuristic(enabled bool) {
	r.legacyOldestHeuristic.Store(enabled)
}

// Register admits op into the registry. It returns false without touching
// op if the registry is disabled, in which case the caller retains sole
// ownership of op. On success, op is assigned a sequence number, placed on
// its shard, and transitioned to StateLive.
func (r *LiveRegistry) Register(op *TrackedOp, now time.Time) bool {
	if !r.enabled.Load() {
		return false
	}

	seq := r.seq.Add(1)
	op.markRegistered(seq, now)

	shard := r.shardFor(seq)
	r.shards[shard].push(op)

	return true
}

// Unregister removes op from its shard in O(1). It does not call any hook on
// op; callers invoke op.OnUnregistered() exactly once, per the tracker
// facade's contract.
func (r *LiveRegistry) Unregister(op *TrackedOp) {
	shard := r.shardFor(op.Seq())
	r.shards[shard].remove(op)
}

func (r *LiveRegistry) shardFor(seq uint64) int {
	return int(seq % uint64(len(r.shards)))
}

// Visit walks every shard in index order, calling fn for each live op until
// fn returns VisitStop for a shard (which ends that shard's traversal; the
// walk continues to the next shard) or every shard has been visited. It
// returns the true minimum InitiatedAt across all shards' front (oldest) op
// (or, with the legacy oldest heuristic enabled, shard 0's front op's
// InitiatedAt), the number of ops visited, and whether any live ops exist
// at all.
func (r *LiveRegistry) Visit(fn func(*TrackedOp) VisitResult) (oldest time.Time, total int, any bool) {
	if r.legacyOldestHeuristic.Load() {
		if front := r.shards[0].front(); front != nil {
			oldest = front.InitiatedAt()
			any = true
		}
	}

	for i := range r.shards {
		shard := &r.shards[i]

		if front := shard.front(); front != nil {
			if !r.legacyOldestHeuristic.Load() {
				if !any || front.InitiatedAt().Before(oldest) {
					oldest = front.InitiatedAt()
				}
			}
			any = true
		}

		count := 0
		shard.visit(func(op *TrackedOp) bool {
			count++
			return fn(op) != VisitStop
		})
		total += count
	}

	return oldest, total, any
}

// DumpInFlight writes ops_in_flight dump (§6 schema) into e. When
// onlyBlocked is true, a shard's traversal stops as soon as it reaches an op
// younger than complaintTime, relying on FIFO order within the shard;
// filtered-out ops are skipped but do not stop iteration.
func (r *LiveRegistry) DumpInFlight(now time.Time, e Emitter, onlyBlocked bool, filters []string, complaintTime time.Duration) {
	e.OpenObject("")
	e.OpenArray("ops")

	var numOps, numBlocked int
	for i := range r.shards {
		shard := &r.shards[i]
		shard.visit(func(op *TrackedOp) bool {
			if onlyBlocked && op.Age(now) <= complaintTime {
				return false
			}
			if !matchFilters(op, filters) {
				return true
			}
			op.Dump(now, e)
			numOps++
			if onlyBlocked {
				numBlocked++
			}
			return true
		})
	}

	e.CloseSection() // ops

	if onlyBlocked {
		e.DumpFloat("complaint_time", complaintTime.Seconds())
		e.DumpInt("num_blocked_ops", int64(numBlocked))
	} else {
		e.DumpInt("num_ops", int64(numOps))
	}

	e.CloseSection()
}

// AgeHistogram returns a Pow2Histogram of now-InitiatedAt, in milliseconds,
// across all live ops.
func (r *LiveRegistry) AgeHistogram(now time.Time) *Pow2Histogram {
	h := &Pow2Histogram{}
	for i := range r.shards {
		r.shards[i].visit(func(op *TrackedOp) bool {
			h.Add(op.Age(now).Milliseconds())
			return true
		})
	}
	return h
}

// shardLens returns the number of ops in each shard, used by tests asserting
// roughly-uniform distribution.
func (r *LiveRegistry) shardLens() []int {
	out := make([]int, len(r.shards))
	for i := range r.shards {
		out[i] = r.shards[i].len()
	}
	return out
}
