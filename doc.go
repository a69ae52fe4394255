// Package optrack implements an in-flight operation tracker for
// high-concurrency services. It answers three questions under load: what is
// currently running and for how long, which running operations are
// pathologically slow, and what finished recently, with emphasis on the
// slowest completions.
//
// The tracker is built from three collaborating pieces: a sharded
// LiveRegistry of in-flight operations, a bounded dual-indexed OpHistory of
// completed operations, and a SlowOpDetector that emits backoff-limited
// warnings. OpTracker composes all three behind a single facade.
//
// optrack does not define what an operation is. Callers implement the Op
// interface and wrap it in a TrackedOp; optrack only ever invokes hooks on
// that interface, never constructs a concrete operation itself.
package optrack
