package optrack

// Op is the capability contract the tracker requires of any tracked
// operation. Callers provide concrete implementations; the tracker invokes
// these hooks but never constructs an Op itself.
type Op interface {
	// Describe returns a short human-readable description of the operation.
	Describe() string

	// DumpTypeData writes operation-specific fields into an already-open
	// object section. The tracker opens and closes the section; DumpTypeData
	// must not open or close it.
	DumpTypeData(e Emitter)

	// FilterMatch reports whether the operation matches every given filter
	// string. An empty filters slice always matches.
	FilterMatch(filters []string) bool

	// OnEvent is called after an event is appended to the operation's event
	// log. Implementations must not block.
	OnEvent(label string)

	// OnUnregistered is called exactly once, after the operation has been
	// removed from the live registry and before it is inserted into history.
	OnUnregistered()
}
