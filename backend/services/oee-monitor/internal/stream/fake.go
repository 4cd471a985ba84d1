package stream

import (
	"context"
	"sync"
	"time"
)

// FakeClock records scheduled calls and runs them only when told to.
type FakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// NewFakeClock returns a clock with no pending timers.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

// AfterFunc records f; it runs on FireNext.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns the delays of timers that were neither stopped nor fired.
func (c *FakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

// Scheduled returns the delays of every timer ever created, in order.
func (c *FakeClock) Scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

// FireNext runs the oldest pending timer on the calling goroutine.
// It reports false when nothing is pending.
func (c *FakeClock) FireNext() bool {
	c.mu.Lock()
	var next *fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	c.mu.Unlock()

	next.fn()
	return true
}

// FakeDialer hands out FakeConns. Script entries are consumed one per Dial; a nil entry
// means success. When the script is empty Err decides.
type FakeDialer struct {
	mu     sync.Mutex
	Script []error
	Err    error
	URLs   []string
	Conns  []*FakeConn
}

// NewFakeDialer returns a dialer that always succeeds.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// Dial records the url and returns a new FakeConn or the scripted error.
func (d *FakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.URLs = append(d.URLs, url)

	err := d.Err
	if len(d.Script) > 0 {
		err = d.Script[0]
		d.Script = d.Script[1:]
	}
	if err != nil {
		return nil, err
	}
	conn := NewFakeConn()
	d.Conns = append(d.Conns, conn)
	return conn, nil
}

// SetErr changes the fallback error.
func (d *FakeDialer) SetErr(err error) {
	d.mu.Lock()
	d.Err = err
	d.mu.Unlock()
}

// Dials returns how many times Dial was called.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.URLs)
}

// Last returns the most recently handed out connection.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Conns) == 0 {
		return nil
	}
	return d.Conns[len(d.Conns)-1]
}

type readResult struct {
	frame []byte
	err   error
}

// FakeConn is a scripted connection. Frames and failures are delivered in push order.
type FakeConn struct {
	reads     chan readResult
	closed    chan struct{}
	closeOnce sync.Once
}

// NewFakeConn returns an open connection.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		reads:  make(chan readResult, 64),
		closed: make(chan struct{}),
	}
}

// Push queues an inbound frame.
func (c *FakeConn) Push(frame []byte) {
	c.reads <- readResult{frame: frame}
}

// Fail queues a read error, e.g. a *CloseError.
func (c *FakeConn) Fail(err error) {
	c.reads <- readResult{err: err}
}

// ReadMessage returns queued frames and errors in order.
func (c *FakeConn) ReadMessage() ([]byte, error) {
	select {
	case r := <-c.reads:
		return r.frame, r.err
	case <-c.closed:
		return nil, &CloseError{Code: CloseNormal, Reason: "closed locally"}
	}
}

// Close unblocks any pending read.
func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// IsClosed reports whether Close was called.
func (c *FakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
