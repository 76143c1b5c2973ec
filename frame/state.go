package frame

// State is the lifecycle position of an in-flight frame.
//
// Transitions are monotonic:
//
//	Captured → Enqueued → Dequeued → Filtered → Displayed → Discarded
//
// A frame dropped by an overflow policy jumps from Enqueued to Discarded.
type State int

const (
	StateCaptured State = iota
	StateEnqueued
	StateDequeued
	StateFiltered
	StateDisplayed
	StateDiscarded
)

// String returns a human-readable string representation of the state
func (s State) String() string {
	switch s {
	case StateCaptured:
		return "captured"
	case StateEnqueued:
		return "enqueued"
	case StateDequeued:
		return "dequeued"
	case StateFiltered:
		return "filtered"
	case StateDisplayed:
		return "displayed"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// CanAdvance reports whether moving from s to next respects the lifecycle order.
func (s State) CanAdvance(next State) bool {
	return next > s
}
