package session

// State is the lifecycle position of one orchestrator.
type State int

const (
	Disconnected State = iota
	Opening
	AwaitingAuthentication
	Connecting
	Connected
	Degraded
	Recovering
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Opening:
		return "opening"
	case AwaitingAuthentication:
		return "awaiting_authentication"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	case Recovering:
		return "recovering"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == Failed }
