package session

// State is the lifecycle stage of a session
type State int

const (
	StateConstructed State = iota
	StateHandshaking
	StateStreaming
	StateStopping
	StateTerminated
	StateFailed
)

var stateNames = []string{
	StateConstructed: "constructed",
	StateHandshaking: "handshaking",
	StateStreaming:   "streaming",
	StateStopping:    "stopping",
	StateTerminated:  "terminated",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
