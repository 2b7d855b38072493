package session

// State is the session lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingPairing
	StateConnected
	StateReconnecting
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the session. PairingChallenge is
// only present while the state is StateAwaitingPairing.
type Status struct {
	State            State
	PairingChallenge []byte
	ReconnectAttempt int
	LastError        string
}

// Ready reports whether sends are currently possible.
func (s Status) Ready() bool {
	return s.State == StateConnected
}
