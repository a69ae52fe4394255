package optrack

import "testing"

func TestShardSlotFIFO(t *testing.T) {
	var s shardSlot

	a := newTestTrackedOp("a")
	b := newTestTrackedOp("b")
	c := newTestTrackedOp("c")

	s.push(a)
	s.push(b)
	s.push(c)

	assertEqual(t, s.len(), 3)
	assertEqual(t, s.front(), a)

	s.remove(b)
	assertEqual(t, s.len(), 2)

	var order []*TrackedOp
	s.visit(func(op *TrackedOp) bool {
		order = append(order, op)
		return true
	})
	assertEqual(t, order, []*TrackedOp{a, c})
}

func TestShardSlotRemoveIsIdempotent(t *testing.T) {
	var s shardSlot
	a := newTestTrackedOp("a")
	s.push(a)
	s.remove(a)
	s.remove(a) // must not panic or corrupt state
	assertEqual(t, s.len(), 0)
	assertEqual(t, s.front(), (*TrackedOp)(nil))
}

func TestShardSlotVisitStopsEarly(t *testing.T) {
	var s shardSlot
	a, b, c := newTestTrackedOp("a"), newTestTrackedOp("b"), newTestTrackedOp("c")
	s.push(a)
	s.push(b)
	s.push(c)

	var seen []*TrackedOp
	s.visit(func(op *TrackedOp) bool {
		seen = append(seen, op)
		return op != b
	})
	assertEqual(t, seen, []*TrackedOp{a, b})
}
