package bridge

// State is the lifecycle state of a Client
type State int32

const (
	// StateConstructed means ports and callback are installed, not yet activated
	StateConstructed State = iota
	// StateActivated means the server delivers block notifications
	StateActivated
	// StateDeactivated means delivery is stopped and can be restarted
	StateDeactivated
	// StateClosed is terminal, the connection has been released
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateActivated:
		return "activated"
	case StateDeactivated:
		return "deactivated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
