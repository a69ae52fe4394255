package optrack

import (
	"fmt"
	"time"
)

// SlowOpDetector is a stateless policy, built on LiveRegistry.Visit, that
// finds in-flight ops older than complaintTime and emits backoff-limited
// warnings for them.
type SlowOpDetector struct {
	registry *LiveRegistry
}

// NewSlowOpDetector returns a detector over the given registry.
func NewSlowOpDetector(registry *LiveRegistry) *SlowOpDetector {
	return &SlowOpDetector{registry: registry}
}

// Check walks live ops older than complaintTime, invoking onWarn for each
// one that is due to warn (i.e. has exited its backoff window), up to
// logThreshold emitted warnings. It returns the total count of slow ops
// observed, the count of warnings emitted, and the age of the oldest slow
// op observed.
func (d *SlowOpDetector) Check(now time.Time, complaintTime time.Duration, logThreshold int, onWarn func(*TrackedOp)) (slowCount, warnedCount int, oldestAge time.Duration) {
	tooOld := now.Add(-complaintTime)

	d.registry.Visit(func(op *TrackedOp) VisitResult {
		if !op.InitiatedAt().Before(tooOld) {
			return VisitStop
		}

		slowCount++
		if age := op.Age(now); age > oldestAge {
			oldestAge = age
		}

		if warnedCount >= logThreshold {
			return VisitContinue
		}

		nextComplaint := op.InitiatedAt().Add(complaintTime * time.Duration(op.WarnIntervalMultiplier()))
		if !nextComplaint.Before(now) {
			return VisitContinue // still in this op's backoff window
		}

		onWarn(op)
		op.doubleWarnIntervalMultiplier()
		warnedCount++

		return VisitContinue
	})

	return slowCount, warnedCount, oldestAge
}

// WarningLine formats the standard per-op warning line, per §6:
// "slow request <age> seconds old, received at <initiated_at>: <description> currently <current-or-state>".
func WarningLine(now time.Time, op *TrackedOp) string {
	current := op.Current()
	if current == "" {
		current = stateLabel(op.State())
	}
	return fmt.Sprintf(
		"slow request %.3f seconds old, received at %s: %s currently %s",
		op.Age(now).Seconds(),
		op.InitiatedAt().Format(time.RFC3339Nano),
		op.Description(),
		current,
	)
}

func stateLabel(s OpState) string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLive:
		return "live"
	case StateHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Summary formats the single-line check summary, per §4.5.
func Summary(slowCount, warnedCount int, oldestAge time.Duration) string {
	return fmt.Sprintf(
		"%d slow requests, %d included below; oldest blocked for > %.0f secs",
		slowCount, warnedCount, oldestAge.Seconds(),
	)
}
