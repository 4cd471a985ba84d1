package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrRetriesExhausted is reported once the reconnect budget is spent.
	ErrRetriesExhausted = errors.New("stream: reconnect retries exhausted")
	// ErrNoURL is returned by Reconnect before the first Open.
	ErrNoURL = errors.New("stream: no url to reconnect to")
)

// State of the managed connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateRetryPending
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetryPending:
		return "retry_pending"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Policy controls reconnect backoff.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	CapDelay    time.Duration
	DialTimeout time.Duration
}

// DefaultPolicy returns 5 retries with 1s linear steps capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  5,
		BaseDelay:   time.Second,
		CapDelay:    5 * time.Second,
		DialTimeout: 10 * time.Second,
	}
}

// Delay is min(BaseDelay*attempt, CapDelay).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt)
	if p.CapDelay > 0 && d > p.CapDelay {
		return p.CapDelay
	}
	return d
}

// Handlers receive lifecycle events. Any field may be nil. Handlers run on the
// connection's goroutines and must not call back into the Manager synchronously
// except through Reconnect/Close.
type Handlers struct {
	OnOpen    func()
	OnMessage func(frame []byte)
	OnError   func(err error)
	OnClose   func(reason string, code int)
	// OnRetry fires after a reconnect was scheduled.
	OnRetry func(attempt int, delay time.Duration)
	// OnExhausted fires once when no further attempt will be scheduled.
	OnExhausted func(err error)
	// OnState fires on every state transition.
	OnState func(State)
}

// Manager owns one logical streaming connection and reconnects it with a bounded,
// linear-capped backoff. A single timer slot holds the next pending attempt.
type Manager struct {
	dialer   Dialer
	clock    Clock
	policy   Policy
	handlers Handlers
	logger   *zap.Logger

	mu       sync.Mutex
	url      string
	state    State
	attempts int
	conn     Conn
	timer    Timer
	// gen changes on every Open/Close so callbacks from a replaced connection are ignored.
	gen uint64
}

// NewManager builds a connection manager.
func NewManager(dialer Dialer, clock Clock, policy Policy, handlers Handlers, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.DialTimeout <= 0 {
		policy.DialTimeout = DefaultPolicy().DialTimeout
	}
	return &Manager{
		dialer:   dialer,
		clock:    clock,
		policy:   policy,
		handlers: handlers,
		logger:   logger,
	}
}

// Open starts connecting to url. An existing connection or pending retry is torn down
// first. The dial itself happens on the clock's goroutine, Open never blocks on I/O.
func (m *Manager) Open(url string) {
	m.mu.Lock()
	m.teardownLocked()
	m.gen++
	m.url = url
	m.attempts = 0
	m.setStateLocked(StateConnecting)
	m.scheduleLocked(0, m.gen)
	m.mu.Unlock()

	m.logger.Info("stream opening", zap.String("url", redact(url)))
	m.emitState(StateConnecting)
}

// Reconnect is the manual way out of the exhausted state: it resets the retry counter
// and opens the last URL again.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	url := m.url
	m.mu.Unlock()
	if url == "" {
		return ErrNoURL
	}
	m.Open(url)
	return nil
}

// Close tears down the connection and cancels any pending reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	m.teardownLocked()
	m.gen++
	changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if changed {
		m.emitState(StateDisconnected)
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnects scheduled since the last successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *Manager) connect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	url := m.url
	changed := m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if changed {
		m.emitState(StateConnecting)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.policy.DialTimeout)
	conn, err := m.dialer.Dial(ctx, url)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("stream dial failed", zap.Error(err))
		if m.handlers.OnError != nil {
			m.handlers.OnError(err)
		}
		m.handleClose(gen, CloseAbnormal, err.Error())
		return
	}
	m.conn = conn
	m.attempts = 0
	m.setStateLocked(StateOpen)
	m.mu.Unlock()

	m.logger.Info("stream open")
	m.emitState(StateOpen)
	if m.handlers.OnOpen != nil {
		m.handlers.OnOpen()
	}

	go m.readLoop(gen, conn)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			code, reason := CloseAbnormal, err.Error()
			var closeErr *CloseError
			if errors.As(err, &closeErr) {
				code, reason = closeErr.Code, closeErr.Reason
			} else if m.current(gen) && m.handlers.OnError != nil {
				m.handlers.OnError(err)
			}
			m.handleClose(gen, code, reason)
			return
		}
		if !m.current(gen) {
			return
		}
		if m.handlers.OnMessage != nil {
			m.handlers.OnMessage(frame)
		}
	}
}

func (m *Manager) handleClose(gen uint64, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	exhausted := m.attempts >= m.policy.MaxRetries
	var (
		attempt int
		delay   time.Duration
		next    State
	)
	if exhausted {
		next = StateExhausted
	} else {
		m.attempts++
		attempt = m.attempts
		delay = m.policy.Delay(attempt)
		next = StateRetryPending
		m.scheduleLocked(delay, gen)
	}
	m.setStateLocked(next)
	m.mu.Unlock()

	m.emitState(next)
	if m.handlers.OnClose != nil {
		m.handlers.OnClose(reason, code)
	}

	if exhausted {
		m.logger.Error("stream reconnect retries exhausted", zap.Int("max_retries", m.policy.MaxRetries))
		if m.handlers.OnExhausted != nil {
			m.handlers.OnExhausted(ErrRetriesExhausted)
		}
		return
	}

	m.logger.Warn("stream closed, reconnect scheduled",
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.Int("attempt", attempt),
		zap.Int("max_retries", m.policy.MaxRetries),
		zap.Duration("delay", delay),
	)
	if m.handlers.OnRetry != nil {
		m.handlers.OnRetry(attempt, delay)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// scheduleLocked replaces the single pending timer slot.
func (m *Manager) scheduleLocked(delay time.Duration, gen uint64) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.clock.AfterFunc(delay, func() { m.connect(gen) })
}

func (m *Manager) teardownLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

func (m *Manager) emitState(s State) {
	if m.handlers.OnState != nil {
		m.handlers.OnState(s)
	}
}

// redact strips query strings, which may carry tokens, before logging.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
