package connection

// State is the protocol state of a connection.
type State int

const (
	StateInit State = iota
	StateHandshakeParse
	StateHandshakeOK
	StateChannelParse
	StateChannelOK
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHandshakeParse:
		return "HANDSHAKE_PARSE"
	case StateHandshakeOK:
		return "HANDSHAKE_OK"
	case StateChannelParse:
		return "CHANNEL_PARSE"
	case StateChannelOK:
		return "CHANNEL_OK"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether a connection in state from may move to state to.
// Each state may only advance to the one directly after it, or to StateClosed.
// StateClosed is absorbing.
func CanTransition(from, to State) bool {
	if from == StateClosed || from < StateInit || from > StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	return to == from+1
}
