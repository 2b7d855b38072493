package session

import "context"

// EventKind labels one transport event.
type EventKind int

const (
	// EventPairing carries a pairing challenge; the network wants the
	// account holder to confirm this process.
	EventPairing EventKind = iota
	// EventConnected reports an authenticated, ready connection.
	EventConnected
	// EventCredentials reports refreshed credential material that must be
	// persisted for the next dial.
	EventCredentials
	// EventDisconnected reports connection loss. Intentional is true only
	// when the local side asked for the closure.
	EventDisconnected
	// EventLoggedOut reports that the network invalidated the credential
	// (remote logout); re-pairing is required.
	EventLoggedOut
)

// Event is one occurrence on the wire, reported by the transport adapter
// and consumed by the manager's state-owning goroutine.
type Event struct {
	Kind        EventKind
	PairingCode []byte
	Credentials []byte
	Intentional bool
	Err         error
}

// Transport dials the messaging network. The wire protocol is an opaque
// external dependency; adapters translate its callbacks into Events.
type Transport interface {
	Dial(ctx context.Context, creds []byte) (Conn, error)
}

// Conn is one live connection attempt. The Events channel is closed when
// the connection is finished reporting.
type Conn interface {
	Events() <-chan Event
	Send(ctx context.Context, recipient, body string) error
	Logout(ctx context.Context) error
	Close() error
}
