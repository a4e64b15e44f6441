// Package model defines the core domain types shared by the rendezvous
// server, client and presence log.
package model

import "time"

// SessionState is the lifecycle state of a relay session.
type SessionState int

const (
	StateConnected  SessionState = iota // accepted, no username bound yet
	StateRegistered                     // REGISTER succeeded at least once
	StateClosed                         // terminal
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerDirection tells whether a peer link was dialed or accepted locally.
type PeerDirection int

const (
	PeerInitiated PeerDirection = iota
	PeerAccepted
)

func (d PeerDirection) String() string {
	if d == PeerAccepted {
		return "accepted"
	}
	return "initiated"
}

// EventKind names a directory change recorded in the presence log.
type EventKind string

const (
	EventRegister   EventKind = "register"
	EventReplace    EventKind = "replace" // register that displaced another session's entry
	EventUnregister EventKind = "unregister"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventRegister, EventReplace, EventUnregister:
		return true
	default:
		return false
	}
}

// PresenceEvent is one audit record of a directory change.
type PresenceEvent struct {
	ID        int64     `json:"id" yaml:"id"`
	Kind      EventKind `json:"kind" yaml:"kind"`
	Username  string    `json:"username" yaml:"username"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	IP        string    `json:"ip,omitempty" yaml:"ip,omitempty"`
	Port      string    `json:"port,omitempty" yaml:"port,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// PresenceFilters narrows a presence log query. Nil fields are unset.
type PresenceFilters struct {
	Username *string
	Kind     *EventKind
	PageSize *int64
	Offset   *int64
}
