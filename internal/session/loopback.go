package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errConnClosed = errors.New("session: loopback connection closed")

// Loopback is an in-process Transport. It stands in for the real
// messaging network in tests and in the dev transport mode; pairing is
// confirmed either programmatically or automatically after AutoPairDelay.
type Loopback struct {
	// PairingCode is offered when dialing without usable credentials.
	PairingCode []byte
	// AutoPairDelay confirms pairing automatically when positive.
	AutoPairDelay time.Duration
	// DialErr fails every dial when set.
	DialErr error
	// RejectStored treats presented credentials as invalid when true.
	RejectStored bool

	mu    sync.Mutex
	seq   int
	conns []*LoopbackConn
}

// NewLoopback returns a transport that auto-confirms pairing, which keeps
// a dev instance usable without a real account link.
func NewLoopback() *Loopback {
	return &Loopback{
		PairingCode:   []byte("loopback-pairing-code"),
		AutoPairDelay: 2 * time.Second,
	}
}

func (l *Loopback) Dial(_ context.Context, creds []byte) (Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.DialErr != nil {
		return nil, l.DialErr
	}
	l.seq++
	conn := &LoopbackConn{
		id:     l.seq,
		events: make(chan Event, 8),
	}
	l.conns = append(l.conns, conn)

	if len(creds) > 0 && !l.RejectStored {
		conn.emit(Event{Kind: EventConnected, Credentials: creds})
	} else {
		conn.emit(Event{Kind: EventPairing, PairingCode: append([]byte(nil), l.PairingCode...)})
		if l.AutoPairDelay > 0 {
			time.AfterFunc(l.AutoPairDelay, conn.ConfirmPairing)
		}
	}
	return conn, nil
}

// LastConn returns the most recently dialed connection.
func (l *Loopback) LastConn() (*LoopbackConn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.conns) == 0 {
		return nil, false
	}
	return l.conns[len(l.conns)-1], true
}

// DialCount reports how many dials the transport has served.
func (l *Loopback) DialCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// SentMessage is one message delivered through a loopback connection.
type SentMessage struct {
	Recipient string
	Body      string
}

// LoopbackConn is one live loopback connection.
type LoopbackConn struct {
	mu     sync.Mutex
	id     int
	events chan Event
	closed bool

	// SendErr fails every Send when set.
	SendErr error

	sent      []SentMessage
	loggedOut bool
}

func (c *LoopbackConn) Events() <-chan Event {
	return c.events
}

func (c *LoopbackConn) Send(_ context.Context, recipient, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, SentMessage{Recipient: recipient, Body: body})
	return nil
}

func (c *LoopbackConn) Logout(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut = true
	return nil
}

func (c *LoopbackConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

// ConfirmPairing simulates the account holder accepting the pairing
// challenge; fresh credential material is issued with the connection.
func (c *LoopbackConn) ConfirmPairing() {
	c.emit(Event{
		Kind:        EventConnected,
		Credentials: []byte(fmt.Sprintf("loopback-creds-%d-%d", c.id, time.Now().UnixNano())),
	})
}

// Drop simulates an unintended network closure.
func (c *LoopbackConn) Drop(cause error) {
	c.emit(Event{Kind: EventDisconnected, Err: cause})
}

// RemoteLogout simulates the network invalidating the credential.
func (c *LoopbackConn) RemoteLogout() {
	c.emit(Event{Kind: EventLoggedOut})
}

// Sent returns a copy of the messages delivered so far.
func (c *LoopbackConn) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// LoggedOut reports whether a network-side logout was requested.
func (c *LoopbackConn) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

func (c *LoopbackConn) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
