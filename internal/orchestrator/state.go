package orchestrator

// State is the lifecycle phase of an [Orchestrator]. Transitions only move
// forward: Idle → Connecting → Running → Draining → Closed.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateDraining
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
