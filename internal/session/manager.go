package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wanotify/internal/observability"
)

// Config tunes the reconnect and re-initialization policy.
type Config struct {
	// ReconnectDelay seeds the backoff between connection attempts.
	ReconnectDelay time.Duration
	// ReinitDelay is the pause between logout and automatic re-init.
	ReinitDelay time.Duration
	Backoff     BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 5 * time.Second,
		ReinitDelay:    time.Second,
	}
}

func (c Config) WithDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.ReinitDelay <= 0 {
		c.ReinitDelay = time.Second
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = c.ReconnectDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = 1.0
	}
	return c
}

// Manager owns the session. It is the sole writer of the state, the
// pairing challenge, and the credential material; everything else reads
// point-in-time snapshots through Status.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	transport Transport
	creds     CredentialStore

	state   State
	pairing []byte
	attempt int
	lastErr string

	conn       Conn
	gen        int
	connecting bool
	closed     bool
	retryTimer *time.Timer

	rng *rand.Rand
}

func NewManager(transport Transport, creds CredentialStore, cfg Config) *Manager {
	return &Manager{
		cfg:       cfg.WithDefaults(),
		transport: transport,
		creds:     creds,
		state:     StateUninitialized,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Initialize starts a connection attempt. It is idempotent: a no-op while
// connected, awaiting pairing, or while another attempt is in flight.
// Failures are retried after the configured backoff and are never fatal.
func (m *Manager) Initialize() {
	m.mu.Lock()
	if m.closed || m.connecting {
		m.mu.Unlock()
		return
	}
	switch m.state {
	case StateConnected, StateAwaitingPairing:
		m.mu.Unlock()
		return
	}
	m.connecting = true
	m.attempt++
	attempt := m.attempt
	m.stopRetryLocked()
	m.mu.Unlock()

	observability.RecordReconnectAttempt()
	go m.connect(attempt)
}

func (m *Manager) connect(attempt int) {
	creds, ok, err := m.creds.Load()
	if err != nil {
		log.Error().Int("attempt", attempt).Err(err).Msg("session_credential_load_failed")
		m.connectFailed(attempt, err)
		return
	}
	if !ok {
		creds = nil
	}

	conn, err := m.transport.Dial(context.Background(), creds)
	if err != nil {
		log.Warn().Int("attempt", attempt).Err(err).Msg("session_dial_failed")
		m.connectFailed(attempt, err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.gen++
	gen := m.gen
	m.conn = conn
	m.connecting = false
	m.mu.Unlock()

	go m.consume(conn, gen)
}

func (m *Manager) connectFailed(attempt int, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connecting = false
	m.lastErr = cause.Error()
	if m.closed {
		return
	}
	m.scheduleRetryLocked(NextBackoffDelay(m.cfg.Backoff, attempt, m.rng))
}

// consume is the single state-owning loop for one connection generation.
// Events from a superseded generation are ignored.
func (m *Manager) consume(conn Conn, gen int) {
	for ev := range conn.Events() {
		switch ev.Kind {
		case EventPairing:
			m.mu.Lock()
			if m.gen == gen && !m.closed {
				m.setStateLocked(StateAwaitingPairing)
				m.pairing = append([]byte(nil), ev.PairingCode...)
				log.Info().Msg("session_pairing_challenge")
			}
			m.mu.Unlock()

		case EventConnected:
			m.mu.Lock()
			current := m.gen == gen && !m.closed
			if current {
				m.setStateLocked(StateConnected)
				m.attempt = 0
				m.lastErr = ""
				log.Info().Msg("session_connected")
			}
			m.mu.Unlock()
			if current && len(ev.Credentials) > 0 {
				m.saveCredentials(ev.Credentials)
			}

		case EventCredentials:
			m.saveCredentials(ev.Credentials)

		case EventLoggedOut:
			// The network invalidated the credential; wipe it so the next
			// dial starts a fresh pairing.
			log.Warn().Msg("session_remote_logout")
			if err := m.creds.Delete(); err != nil {
				log.Error().Err(err).Msg("session_credential_delete_failed")
			}
			m.dropConn(conn, gen, ev.Err)
			return

		case EventDisconnected:
			if ev.Intentional {
				_ = conn.Close()
				return
			}
			log.Warn().Err(ev.Err).Msg("session_disconnected")
			m.dropConn(conn, gen, ev.Err)
			return
		}
	}
	// Channel closed without a disconnect event.
	m.dropConn(conn, gen, nil)
}

func (m *Manager) saveCredentials(creds []byte) {
	if len(creds) == 0 {
		return
	}
	if err := m.creds.Save(creds); err != nil {
		log.Error().Err(err).Msg("session_credential_save_failed")
	}
}

func (m *Manager) dropConn(conn Conn, gen int, cause error) {
	_ = conn.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.gen != gen {
		return
	}
	m.conn = nil
	m.setStateLocked(StateReconnecting)
	if cause != nil {
		m.lastErr = cause.Error()
	}
	m.scheduleRetryLocked(NextBackoffDelay(m.cfg.Backoff, m.attempt+1, m.rng))
}

// Status is a pure read; safe to poll frequently.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:            m.state,
		ReconnectAttempt: m.attempt,
		LastError:        m.lastErr,
	}
	if len(m.pairing) > 0 {
		st.PairingChallenge = append([]byte(nil), m.pairing...)
	}
	return st
}

// Send forwards one message. It fails fast with ErrNotReady in every
// state but connected; nothing is queued and no network I/O happens.
func (m *Manager) Send(ctx context.Context, recipient, body string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotReady
	}
	conn := m.conn
	m.mu.Unlock()

	if err := conn.Send(ctx, recipient, body); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Logout terminates the network session, destroys the persisted
// credential, and re-initializes after a short delay. Safe to call when
// no session exists.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	m.connecting = false
	m.stopRetryLocked()
	m.setStateLocked(StateLoggedOut)
	m.attempt = 0
	m.lastErr = ""
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("session_network_logout_failed")
		}
		_ = conn.Close()
	}
	if err := m.creds.Delete(); err != nil {
		log.Error().Err(err).Msg("session_credential_delete_failed")
	}
	log.Info().Msg("session_logged_out")

	m.mu.Lock()
	if !m.closed {
		m.scheduleRetryLocked(m.cfg.ReinitDelay)
	}
	m.mu.Unlock()
	return nil
}

// Close tears the session down for process shutdown. Credential material
// is kept so the next start reconnects without re-pairing.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.gen++
	m.stopRetryLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	if s != StateAwaitingPairing {
		m.pairing = nil
	}
	observability.RecordSessionState(int(s))
}

func (m *Manager) scheduleRetryLocked(delay time.Duration) {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(delay, m.Initialize)
}

func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}
