package stream

// State is the lifecycle position of one Consume call.
type State int

const (
	StateIdle State = iota
	StateReading
	StateDraining
	StateCancelled
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDraining:
		return "draining"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the read loop.
func (s State) Terminal() bool {
	return s == StateDraining || s == StateCancelled || s == StateErrored || s == StateClosed
}
