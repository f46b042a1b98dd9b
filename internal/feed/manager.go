// Package feed maintains WebSocket connections to venues and routes decoded
// book updates into a sink.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/venue"
)

const (
	// DefaultReconnectDelay is the base backoff before the first retry.
	DefaultReconnectDelay = 2 * time.Second

	// DefaultMaxReconnectAttempts bounds consecutive retries before the
	// connection is declared dead.
	DefaultMaxReconnectAttempts = 5
)

// Config tunes connection retry behavior.
type Config struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return c
}

// Sink receives decoded book updates and venue-level errors.
type Sink interface {
	Apply(venue domain.Venue, mut *domain.BookMutation)
	SetError(venue domain.Venue, err error)
}

// Notifier forwards operational alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Manager owns one connection per feed key, with keepalives and capped
// exponential reconnect backoff.
type Manager struct {
	cfg      Config
	sink     Sink
	notifier Notifier
	logger   *slog.Logger
	dial     DialFunc

	// afterFunc is swappable so tests can drive timers manually.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex
	adapters map[domain.Venue]venue.Adapter
	conns    map[domain.FeedKey]*conn
}

// NewManager builds a manager over the given venue adapters. notifier may be
// nil.
func NewManager(cfg Config, adapters []venue.Adapter, sink Sink, notifier Notifier, logger *slog.Logger) *Manager {
	byVenue := make(map[domain.Venue]venue.Adapter, len(adapters))
	for _, a := range adapters {
		byVenue[a.Venue()] = a
	}
	return &Manager{
		cfg:       cfg.withDefaults(),
		sink:      sink,
		notifier:  notifier,
		logger:    logger,
		dial:      GorillaDial,
		afterFunc: time.AfterFunc,
		adapters:  byVenue,
		conns:     make(map[domain.FeedKey]*conn),
	}
}

// SetDialFunc overrides the transport dialer. Call before Connect.
func (m *Manager) SetDialFunc(dial DialFunc) { m.dial = dial }

// Connect opens (or reopens) the feed for key. A connection that is already
// connecting or open is left alone; a dead or closing record is replaced and
// its retry budget reset.
func (m *Manager) Connect(ctx context.Context, key domain.FeedKey) error {
	adapter, ok := m.adapters[key.Venue]
	if !ok {
		return fmt.Errorf("connect %s: %w", key, domain.ErrUnknownVenue)
	}

	m.mu.Lock()
	if existing, ok := m.conns[key]; ok {
		if existing.status == StatusConnecting || existing.status == StatusOpen {
			m.mu.Unlock()
			return nil
		}
		m.teardownLocked(existing)
	}
	c := &conn{
		key:     key,
		adapter: adapter,
		ctx:     ctx,
		status:  StatusConnecting,
		done:    make(chan struct{}),
	}
	m.conns[key] = c
	m.mu.Unlock()

	m.logger.Info("feed connecting", "feed", key.String())
	go m.dialAndRun(c)
	return nil
}

// Disconnect closes every connection for the venue, cancelling any pending
// reconnect. Unknown venues are a no-op.
func (m *Manager) Disconnect(v domain.Venue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, c := range m.conns {
		if key.Venue == v {
			m.teardownLocked(c)
		}
	}
}

// DisconnectAll closes every connection.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		m.teardownLocked(c)
	}
}

// States reports the bookkeeping of every known connection.
func (m *Manager) States() []ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConnState, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, ConnState{
			Key:             c.key,
			Status:          c.status,
			Attempts:        c.attempts,
			LastPayloadTime: c.lastPayloadTime,
		})
	}
	return out
}

// teardownLocked stops a connection's loops and timers and drops its record.
// Caller holds m.mu.
func (m *Manager) teardownLocked(c *conn) {
	c.status = StatusClosing
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	m.closeDoneLocked(c)
	if c.sock != nil {
		c.writeMu.Lock()
		c.sock.SetWriteDeadline(time.Now().Add(writeWait))
		c.sock.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.sock.Close()
		c.sock = nil
	}
	delete(m.conns, c.key)
	m.logger.Info("feed disconnected", "feed", c.key.String())
}

func (m *Manager) closeDoneLocked(c *conn) {
	if !c.doneClosed {
		close(c.done)
		c.doneClosed = true
	}
}

// dialAndRun performs one connection attempt and, on success, starts the
// keepalive and read loops for the new socket session.
func (m *Manager) dialAndRun(c *conn) {
	sock, err := m.dial(c.ctx, c.adapter.URL())
	if err != nil {
		m.logger.Warn("feed dial failed", "feed", c.key.String(), "error", err)
		m.scheduleReconnect(c)
		return
	}

	m.mu.Lock()
	if m.conns[c.key] != c || c.status != StatusConnecting {
		// Superseded or torn down while dialing.
		m.mu.Unlock()
		sock.Close()
		return
	}
	c.sock = sock
	c.status = StatusOpen
	c.attempts = 0
	done := c.done
	m.mu.Unlock()

	m.logger.Info("feed open", "feed", c.key.String())

	for _, frame := range c.adapter.OnConnect(c.key.Symbol) {
		if err := c.write(sock, frame); err != nil {
			m.logger.Warn("feed setup frame failed", "feed", c.key.String(), "error", err)
			sock.Close()
			m.scheduleReconnect(c)
			return
		}
	}

	go m.keepaliveLoop(c, sock, done)
	go m.readLoop(c, sock, done)
}

// keepaliveLoop writes the venue's keepalive frame on its interval until the
// session ends.
func (m *Manager) keepaliveLoop(c *conn, sock Conn, done chan struct{}) {
	interval := c.adapter.KeepaliveInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(sock, c.adapter.Keepalive()); err != nil {
				m.logger.Debug("feed keepalive write failed", "feed", c.key.String(), "error", err)
				return
			}
		}
	}
}

// readLoop pumps inbound frames through the adapter until the socket dies or
// the session is torn down.
func (m *Manager) readLoop(c *conn, sock Conn, done chan struct{}) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate teardown; nothing to do.
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Info("feed closed by venue", "feed", c.key.String())
				m.forget(c)
				return
			}
			m.logger.Warn("feed read failed", "feed", c.key.String(), "error", err)
			m.scheduleReconnect(c)
			return
		}

		m.mu.Lock()
		if m.conns[c.key] == c {
			c.lastPayloadTime = time.Now()
		}
		m.mu.Unlock()

		if reply := c.adapter.Reply(raw); reply != nil {
			if err := c.write(sock, reply); err != nil {
				m.logger.Debug("feed reply write failed", "feed", c.key.String(), "error", err)
			}
			continue
		}

		mut, err := c.adapter.Parse(raw)
		if err != nil {
			var verr *domain.VenueError
			if errors.As(err, &verr) {
				m.logger.Warn("venue reported error", "feed", c.key.String(), "error", verr.Msg)
				m.sink.SetError(c.key.Venue, verr)
				continue
			}
			m.logger.Debug("feed payload dropped", "feed", c.key.String(), "error", err)
			continue
		}
		if mut != nil {
			m.sink.Apply(c.key.Venue, mut)
		}
	}
}

// forget drops a connection record without scheduling a retry.
func (m *Manager) forget(c *conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[c.key] != c {
		return
	}
	c.status = StatusDisconnected
	m.closeDoneLocked(c)
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	delete(m.conns, c.key)
}

// scheduleReconnect ends the current session and arms a retry with
// exponential backoff, or declares the connection dead once the retry budget
// is spent.
func (m *Manager) scheduleReconnect(c *conn) {
	m.mu.Lock()
	if m.conns[c.key] != c {
		m.mu.Unlock()
		return
	}
	m.closeDoneLocked(c)
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}

	if c.attempts >= m.cfg.MaxReconnectAttempts {
		delete(m.conns, c.key)
		attempts := c.attempts
		m.mu.Unlock()
		err := fmt.Errorf("failed to connect to %s after %d attempts: %w",
			c.key, attempts, domain.ErrRetriesExhausted)
		m.logger.Error("feed gave up", "feed", c.key.String(), "attempts", attempts)
		m.sink.SetError(c.key.Venue, err)
		if m.notifier != nil {
			m.notifier.Notify(c.ctx, "connectivity", "Feed connection lost",
				fmt.Sprintf("Gave up on %s after %d attempts", c.key, attempts))
		}
		return
	}

	delay := m.cfg.ReconnectDelay * (1 << c.attempts)
	c.attempts++
	c.status = StatusConnecting
	c.done = make(chan struct{})
	c.doneClosed = false
	attempt := c.attempts
	c.reconnect = m.afterFunc(delay, func() { m.redial(c) })
	m.mu.Unlock()

	m.logger.Info("feed reconnect scheduled",
		"feed", c.key.String(), "attempt", attempt, "delay", delay)
}

// redial re-enters the dial path when the backoff timer fires.
func (m *Manager) redial(c *conn) {
	m.mu.Lock()
	if m.conns[c.key] != c || c.status != StatusConnecting {
		m.mu.Unlock()
		return
	}
	c.reconnect = nil
	m.mu.Unlock()
	m.dialAndRun(c)
}
