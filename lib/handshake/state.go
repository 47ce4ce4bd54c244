package handshake

import "fmt"

// Role selects which side of the exchange a Machine plays.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// State is a handshake state.
type State int

const (
	// server path
	StateAwaitingAccept State = iota
	StateAwaitingPeerKey

	// client path
	StateConnected
	StateAwaitingServerKey

	// shared
	StateSentPublicKey
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingAccept:
		return "AwaitingAccept"
	case StateAwaitingPeerKey:
		return "AwaitingPeerKey"
	case StateConnected:
		return "Connected"
	case StateAwaitingServerKey:
		return "AwaitingServerKey"
	case StateSentPublicKey:
		return "SentPublicKey"
	case StateEstablished:
		return "SecureChannelEstablished"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateEstablished || s == StateFailed
}

// transitions lists the legal moves for each role.
var transitions = map[Role]map[State][]State{
	RoleServer: {
		StateAwaitingAccept:  {StateSentPublicKey, StateFailed},
		StateSentPublicKey:   {StateAwaitingPeerKey, StateFailed},
		StateAwaitingPeerKey: {StateEstablished, StateFailed},
	},
	RoleClient: {
		StateConnected:         {StateAwaitingServerKey, StateFailed},
		StateAwaitingServerKey: {StateSentPublicKey, StateFailed},
		StateSentPublicKey:     {StateEstablished, StateFailed},
	},
}

func initialState(r Role) State {
	if r == RoleServer {
		return StateAwaitingAccept
	}
	return StateConnected
}

func legal(r Role, from, to State) bool {
	for _, s := range transitions[r][from] {
		if s == to {
			return true
		}
	}
	return false
}
