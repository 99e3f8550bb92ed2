package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// ============================================================================
// Fake transport
// ============================================================================

type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// When gate is set, Write signals entered and blocks until gate or
	// the connection is closed.
	gate    chan struct{}
	entered chan struct{}

	mu        sync.Mutex
	written   [][]byte
	closeCode int
	readErr   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case p := <-c.inbound:
		return p, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Write(ctx context.Context, text []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	if c.gate != nil {
		select {
		case c.entered <- struct{}{}:
		default:
		}
		select {
		case <-c.gate:
		case <-c.closed:
			return errors.New("write on closed connection")
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), text...))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closeCode == 0 {
		c.closeCode = code
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the transport failing with err.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *fakeConn) push(t *testing.T, msg any) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c.inbound <- payload
}

func (c *fakeConn) envelopes() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, 0, len(c.written))
	for _, w := range c.written {
		var env domain.Envelope
		_ = json.Unmarshal(w, &env)
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) raw() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, w := range c.written {
		out = append(out, string(w))
	}
	return out
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

type fakeDialer struct {
	mu         sync.Mutex
	failFirst  int
	failAlways bool
	dials      int
	conns      []*fakeConn

	// writeGate and writeEntered are handed to every dialed connection.
	writeGate    chan struct{}
	writeEntered chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failAlways || d.dials <= d.failFirst {
		return nil, errors.New("dial tcp 127.0.0.1:443: connect: connection refused")
	}
	c := newFakeConn()
	c.gate = d.writeGate
	c.entered = d.writeEntered
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// ============================================================================
// Helpers
// ============================================================================

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type statusRecorder struct {
	mu          sync.Mutex
	transitions []string
}

func (r *statusRecorder) record(from, to Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}

func (r *statusRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...)
}

func fastConfig() Config {
	cfg := DefaultConfig
	cfg.Backoff.InitialInterval = 5 * time.Millisecond
	cfg.Backoff.MaxInterval = 20 * time.Millisecond
	cfg.HeartbeatInterval = time.Hour
	return cfg
}

func boolPtr(b bool) *bool { return &b }
