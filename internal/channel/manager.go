package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/ordersync/internal/metrics"
)

// DefaultTopic is the order service's admin order topic.
const DefaultTopic = "/topic/admin/pedidos"

// Config tunes a Manager.
type Config struct {
	Topic      string
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// HeartbeatInterval is the outbound heartbeat period. HeartbeatTimeout
	// is the shortest silence that drops the connection. On a connection
	// that negotiated its heartbeats the watchdog runs only when the broker
	// agreed to send them, and allows at least two of its periods.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// Jitter is the backoff randomization factor in [0, 1).
	Jitter float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Topic:             DefaultTopic,
		MinBackoff:        200 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		Jitter:            0.2,
	}
}

// MessageHandler receives the body of every inbound message, in arrival
// order, on the manager goroutine.
type MessageHandler func(body []byte)

// StatusHandler receives every connection state change on the manager
// goroutine. ctx is cancelled when the manager stops; work the handler does
// must honor it. A handler must not call Start or Stop.
type StatusHandler func(ctx context.Context, st Status)

// Manager keeps the push channel connected while started.
//
// Thread-safety: Start, Stop and Status are safe from any goroutine.
// Start and Stop are serialized: a Start issued during a Stop runs after
// the previous manager goroutine has exited.
type Manager struct {
	dialer    Dialer
	cfg       Config
	onMessage MessageHandler
	onStatus  StatusHandler

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
}

// NewManager creates a stopped manager. Zero topic and backoff fields take
// their defaults; zero heartbeat fields disable that side of the heartbeat.
// Nil handlers are ignored.
func NewManager(d Dialer, cfg Config, onMessage MessageHandler, onStatus StatusHandler) *Manager {
	def := DefaultConfig()
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.MinBackoff)
	}
	if onMessage == nil {
		onMessage = func([]byte) {}
	}
	if onStatus == nil {
		onStatus = func(context.Context, Status) {}
	}
	return &Manager{
		dialer:    d,
		cfg:       cfg,
		onMessage: onMessage,
		onStatus:  onStatus,
	}
}

// Start begins connecting in the background. Calling Start on a running
// manager is a no-op.
func (m *Manager) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop cancels any pending reconnect or dial, closes the connection and
// waits for the manager goroutine to exit. The manager ends DISCONNECTED.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(ctx context.Context, st Status) {
	m.mu.Lock()
	if m.status == st {
		m.mu.Unlock()
		return
	}
	m.status = st
	m.mu.Unlock()

	metrics.ChannelState.Set(float64(st))
	m.onStatus(ctx, st)
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.MinBackoff
	b.MaxInterval = m.cfg.MaxBackoff
	b.RandomizationFactor = m.cfg.Jitter
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// run ends DISCONNECTED before it closes done.
func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	b := m.newBackoff()

	for {
		m.setStatus(ctx, StatusConnecting)
		conn, err := m.dialer.Dial(ctx, m.cfg.Topic)
		if err == nil {
			slog.Info("push channel connected", "topic", m.cfg.Topic)
			m.setStatus(ctx, StatusConnected)
			b.Reset()
			err = m.serve(ctx, conn)
			if cerr := conn.Close(); cerr != nil {
				slog.Debug("push channel close failed", "error", cerr)
			}
		}
		m.setStatus(ctx, StatusDisconnected)

		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = m.cfg.MaxBackoff
		}
		slog.Warn("push channel lost, reconnecting",
			"error", err,
			"backoff", wait,
		)
		metrics.ReconnectsTotal.Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// heartbeats returns the outbound period and the inbound silence window for
// conn. Zero disables either.
func (m *Manager) heartbeats(conn Conn) (send, window time.Duration) {
	n, ok := conn.(HeartbeatNegotiator)
	if !ok {
		return m.cfg.HeartbeatInterval, m.cfg.HeartbeatTimeout
	}
	send, expect := n.Heartbeats()
	if expect <= 0 || m.cfg.HeartbeatTimeout <= 0 {
		return send, 0
	}
	return send, max(m.cfg.HeartbeatTimeout, 2*expect)
}

// serve pumps one connection until it is lost or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, conn Conn) error {
	inbound := make(chan Frame)
	errc := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		for {
			f, err := conn.Receive()
			if err != nil {
				errc <- err
				return
			}
			select {
			case inbound <- f:
			case <-quit:
				return
			}
		}
	}()

	send, window := m.heartbeats(conn)
	slog.Debug("push channel heartbeats", "send", send, "window", window)

	var beat <-chan time.Time
	if send > 0 {
		ticker := time.NewTicker(send)
		defer ticker.Stop()
		beat = ticker.C
	}

	var watchdog <-chan time.Time
	var timer *time.Timer
	if window > 0 {
		timer = time.NewTimer(window)
		defer timer.Stop()
		watchdog = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errc:
			return err

		case f := <-inbound:
			if timer != nil {
				timer.Reset(window)
			}
			if f.Heartbeat {
				continue
			}
			metrics.ChannelMessagesTotal.Inc()
			m.onMessage(f.Body)

		case <-beat:
			if err := conn.SendHeartbeat(); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}

		case <-watchdog:
			metrics.HeartbeatTimeoutsTotal.Inc()
			return ErrHeartbeatTimeout
		}
	}
}
