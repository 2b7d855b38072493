package session

import "errors"

var (
	// ErrNotReady is returned by Send whenever the session is not
	// connected. Callers decide whether to retry; nothing is queued.
	ErrNotReady = errors.New("session: whatsapp not ready")

	// ErrTransport wraps a network-level send failure.
	ErrTransport = errors.New("session: transport failure")

	// ErrClosed is returned once the manager has been shut down.
	ErrClosed = errors.New("session: manager closed")
)
