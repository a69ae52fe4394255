package optrack

// filterMatcher is satisfied by anything exposing FilterMatch, which is all
// matchFilters needs from either an Op or a *TrackedOp.
type filterMatcher interface {
	FilterMatch(filters []string) bool
}

// matchFilters reports whether every filter string in filters is accepted by
// op.FilterMatch. An empty or nil filters slice always matches, per the
// tracker's filter_match contract: concrete ops are only ever asked about a
// non-empty set.
func matchFilters(op filterMatcher, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	return op.FilterMatch(filters)
}
