package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/metrics"
	"github.com/vietddude/medlingo/internal/resilience/backoff"
	"github.com/vietddude/medlingo/internal/resilience/classify"
)

// Config controls reconnection, heartbeat, request timeouts and queueing.
type Config struct {
	Backoff              backoff.Config
	MaxReconnectAttempts int
	DialTimeout          time.Duration
	HeartbeatInterval    time.Duration
	RequestTimeout       time.Duration
	MaxQueueSize         int
}

// DefaultConfig reconnects up to 10 times on the default backoff curve.
var DefaultConfig = Config{
	Backoff:              backoff.Default,
	MaxReconnectAttempts: 10,
	DialTimeout:          10 * time.Second,
	HeartbeatInterval:    30 * time.Second,
	RequestTimeout:       10 * time.Second,
	MaxQueueSize:         1000,
}

func (c Config) withDefaults() Config {
	c.Backoff = c.Backoff.WithDefaults()
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultConfig.MaxReconnectAttempts
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultConfig.DialTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultConfig.HeartbeatInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultConfig.RequestTimeout
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultConfig.MaxQueueSize
	}
	return c
}

// ResponseError is a correlated response that reported failure.
type ResponseError struct {
	Action    string
	RequestID string
	Message   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

type result struct {
	data json.RawMessage
	err  error
}

type pendingRequest struct {
	id       string
	action   string
	issuedAt time.Time
	done     chan result
}

type transition struct {
	from, to Status
}

// Manager owns the duplex channel: connect, reconnect with backoff,
// heartbeat, outbound queueing and request correlation.
type Manager struct {
	dialer     Dialer
	cfg        Config
	dispatcher *Dispatcher
	logger     *slog.Logger
	newID      func() string

	mu             sync.Mutex
	status         Status
	conn           Conn
	gen            uint64
	attempts       int
	dialing        bool
	reconnectTimer *time.Timer
	reconnectSeq   uint64
	heartbeatStop  chan struct{}
	queue          []domain.Envelope

	// transitions are delivered in the order they were recorded. Only one
	// goroutine drains them at a time.
	transitions []transition
	notifying   bool

	// writeMu serializes transport writes. Acquired after mu when both
	// are held.
	writeMu sync.Mutex

	pending sync.Map // request id -> *pendingRequest
	expired *expirable.LRU[string, struct{}]

	listenersMu sync.Mutex
	listeners   []statusSubscriber
	nextID      uint64
}

type statusSubscriber struct {
	id uint64
	fn StatusListener
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a disconnected manager.
func NewManager(dialer Dialer, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		dialer:  dialer,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default().With("component", "channel"),
		newID:   func() string { return uuid.New().String() },
		status:  StatusDisconnected,
		expired: expirable.NewLRU[string, struct{}](1024, nil, 5*time.Minute),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dispatcher = NewDispatcher(m.logger)
	publishStatus(StatusDisconnected)
	return m
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ReconnectAttempts returns the attempts made since the last successful connect.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// QueueLength returns the number of messages waiting for a connection.
func (m *Manager) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// PendingRequests returns the number of requests awaiting a response.
func (m *Manager) PendingRequests() int {
	n := 0
	m.pending.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// OnStatusChange registers a listener called once per transition. The
// returned function removes it.
func (m *Manager) OnStatusChange(fn StatusListener) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, statusSubscriber{id: id, fn: fn})
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, s := range m.listeners {
			if s.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Subscribe registers a listener for unsolicited messages of action.
func (m *Manager) Subscribe(action string, fn Listener) Subscription {
	return m.dispatcher.Subscribe(action, fn)
}

// Unsubscribe removes a listener registered with Subscribe.
func (m *Manager) Unsubscribe(sub Subscription) {
	m.dispatcher.Unsubscribe(sub)
}

// Dispatcher exposes the inbound fan-out for typed subscriptions.
func (m *Manager) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// Connect dials the peer. On failure the manager moves to RECONNECTING,
// schedules a retry and returns the dial error.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.status == StatusError:
		m.mu.Unlock()
		return ErrReconnectExhausted
	case m.status == StatusConnected, m.dialing:
		m.mu.Unlock()
		return nil
	}
	m.stopReconnectLocked()
	if m.status == StatusDisconnected {
		m.setStatusLocked(StatusConnecting)
	}
	m.dialing = true
	gen := m.gen
	m.mu.Unlock()
	m.notify()

	return m.dial(ctx, gen)
}

// Disconnect closes the channel with a normal closure. Pending requests are
// rejected immediately and no reconnect is attempted.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.teardownLocked()
	m.attempts = 0
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(CloseNormal, "client disconnect"); err != nil {
			m.logger.Debug("Close failed", "error", err)
		}
	}
	m.rejectAll(ErrDisconnected)
	m.notify()
}

// Reset clears the ERROR state so Connect can be called again.
func (m *Manager) Reset() {
	m.mu.Lock()
	conn := m.teardownLocked()
	m.attempts = 0
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(CloseNormal, "reset")
	}
	m.notify()
	m.logger.Info("Channel reset")
}

// Send writes env if connected, otherwise queues it for the next
// connection. When the queue is full the oldest message is dropped.
func (m *Manager) Send(env domain.Envelope) error {
	m.mu.Lock()
	if m.status != StatusConnected {
		m.enqueueLocked(env)
		m.mu.Unlock()
		return nil
	}
	conn := m.conn
	m.writeMu.Lock()
	m.mu.Unlock()
	defer m.writeMu.Unlock()

	return m.write(conn, env)
}

// Request sends env and waits for the response carrying the same request
// id. It fails on a failed response, after the request timeout, when ctx
// ends or when the channel is disconnected.
func (m *Manager) Request(ctx context.Context, env domain.Envelope) (json.RawMessage, error) {
	if env.RequestID == "" {
		env.RequestID = m.newID()
	}
	p := &pendingRequest{
		id:       env.RequestID,
		action:   env.Action,
		issuedAt: time.Now(),
		done:     make(chan result, 1),
	}
	if _, loaded := m.pending.LoadOrStore(p.id, p); loaded {
		return nil, fmt.Errorf("request id %s already pending", p.id)
	}
	metrics.ChannelPendingRequests.Inc()

	timer := time.NewTimer(m.cfg.RequestTimeout)
	defer timer.Stop()

	if err := m.Send(env); err != nil {
		m.complete(p.id, result{err: err})
	}

	select {
	case r := <-p.done:
		return r.data, r.err
	case <-timer.C:
		m.complete(p.id, result{err: classify.Tag(
			classify.CategoryTimeout,
			domain.DependencyChannel,
			fmt.Errorf("%w: %s after %s", ErrRequestTimeout, env.Action, m.cfg.RequestTimeout),
		)})
	case <-ctx.Done():
		m.complete(p.id, result{err: ctx.Err()})
	}
	r := <-p.done
	return r.data, r.err
}

// complete settles a pending request. Only the first caller for an id wins.
func (m *Manager) complete(id string, r result) bool {
	v, ok := m.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	p := v.(*pendingRequest)
	if r.err != nil {
		m.expired.Add(id, struct{}{})
	}
	metrics.ChannelPendingRequests.Dec()
	p.done <- r
	return true
}

func (m *Manager) rejectAll(err error) {
	m.pending.Range(func(key, _ any) bool {
		m.complete(key.(string), result{err: err})
		return true
	})
}

// dial connects on behalf of generation gen. A Disconnect or Reset while
// dialing bumps the generation and the new connection is discarded.
func (m *Manager) dial(ctx context.Context, gen uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()
	conn, err := m.dialer.Dial(dialCtx)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close(CloseNormal, "client disconnect")
		}
		return ErrDisconnected
	}

	m.dialing = false

	if err != nil {
		m.setStatusLocked(StatusReconnecting)
		m.scheduleReconnectLocked()
		attempts := m.attempts
		m.mu.Unlock()

		m.notify()
		m.logger.Warn("Channel connect failed", "attempts", attempts, "error", err)
		return classify.Tag(classify.CategoryNetwork, domain.DependencyChannel, err)
	}

	m.conn = conn
	m.gen++
	gen = m.gen
	m.attempts = 0
	m.setStatusLocked(StatusConnected)
	m.startHeartbeatLocked(gen)
	queued := m.queue
	m.queue = nil

	m.writeMu.Lock()
	m.mu.Unlock()

	for _, env := range queued {
		if err := m.write(conn, env); err != nil {
			m.logger.Warn("Failed to flush queued message", "action", env.Action, "error", err)
		}
	}
	m.writeMu.Unlock()

	m.logger.Info("Channel connected", "flushed", len(queued))
	m.notify()
	go m.readLoop(conn, gen)
	return nil
}

// scheduleReconnectLocked arms the single reconnect timer, or moves to
// ERROR once the attempt budget is spent.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Error("Reconnect attempts exhausted", "attempts", m.attempts)
		m.setStatusLocked(StatusError)
		return
	}

	delay := m.cfg.Backoff.Delay(m.attempts)
	m.attempts++
	metrics.ChannelReconnects.Inc()
	m.logger.Info("Reconnect scheduled", "attempt", m.attempts, "delay", delay)
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnectTimer = time.AfterFunc(delay, func() { m.reconnect(seq) })
}

// reconnect runs when timer seq fires. A timer that was stopped or
// replaced after it fired does nothing.
func (m *Manager) reconnect(seq uint64) {
	m.mu.Lock()
	if m.reconnectTimer == nil || seq != m.reconnectSeq {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	if m.status != StatusReconnecting || m.dialing {
		m.mu.Unlock()
		return
	}
	m.dialing = true
	gen := m.gen
	m.mu.Unlock()

	_ = m.dial(context.Background(), gen)
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// teardownLocked stops timers and detaches the current connection.
func (m *Manager) teardownLocked() Conn {
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	m.dialing = false
	m.gen++
	return conn
}

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		payload, err := conn.Read(context.Background())
		if err != nil {
			m.handleDrop(gen, err)
			return
		}
		m.handleInbound(payload)
	}
}

// handleDrop reacts to the transport failing. Drops of superseded
// connections are ignored.
func (m *Manager) handleDrop(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusConnected {
		m.mu.Unlock()
		return
	}
	conn := m.teardownLocked()

	var closeErr *CloseError
	if errors.As(err, &closeErr) && closeErr.Normal() {
		m.setStatusLocked(StatusDisconnected)
		m.mu.Unlock()

		_ = conn.Close(CloseNormal, "")
		m.logger.Info("Channel closed by peer")
		m.rejectAll(ErrDisconnected)
		m.notify()
		return
	}

	m.setStatusLocked(StatusReconnecting)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	_ = conn.Close(CloseGoingAway, "")
	m.logger.Warn("Channel dropped", "error", err)
	m.notify()
}

func (m *Manager) handleInbound(payload []byte) {
	var msg domain.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		m.logger.Warn("Dropping malformed message", "error", err, "size", len(payload))
		return
	}

	if msg.RequestID != "" {
		r := result{data: msg.Data}
		if !msg.Succeeded() {
			r = result{err: &ResponseError{Action: msg.Action, RequestID: msg.RequestID, Message: msg.Error}}
		}
		if m.complete(msg.RequestID, r) {
			return
		}
		if m.expired.Contains(msg.RequestID) {
			m.logger.Debug("Dropping late response", "action", msg.Action, "request_id", msg.RequestID)
			return
		}
	}

	m.dispatcher.Dispatch(msg)
}

func (m *Manager) startHeartbeatLocked(gen uint64) {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(m.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.ping(gen)
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// ping sends a heartbeat on connection gen without queueing.
func (m *Manager) ping(gen uint64) {
	m.mu.Lock()
	if m.status != StatusConnected || m.gen != gen {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.writeMu.Lock()
	m.mu.Unlock()
	defer m.writeMu.Unlock()

	if err := m.write(conn, domain.Envelope{Action: domain.ActionPing, Data: struct{}{}}); err != nil {
		m.logger.Debug("Heartbeat failed", "error", err)
	}
}

// write encodes and sends env. Callers hold writeMu.
func (m *Manager) write(conn Conn, env domain.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Action, err)
	}
	if err := conn.Write(context.Background(), payload); err != nil {
		return classify.Tag(classify.CategoryNetwork, domain.DependencyChannel, err)
	}
	return nil
}

func (m *Manager) enqueueLocked(env domain.Envelope) {
	if len(m.queue) >= m.cfg.MaxQueueSize {
		dropped := m.queue[0]
		m.queue = m.queue[1:]
		metrics.ChannelDroppedMessages.Inc()
		m.logger.Warn("Outbound queue full, dropping oldest message",
			"action", dropped.Action,
			"error", ErrQueueFull,
			"max", m.cfg.MaxQueueSize,
		)
	}
	m.queue = append(m.queue, env)
}

// setStatusLocked records a transition for the next notify; same-status
// sets are no-ops.
func (m *Manager) setStatusLocked(to Status) {
	if m.status == to {
		return
	}
	m.transitions = append(m.transitions, transition{from: m.status, to: to})
	m.status = to
}

// notify delivers recorded transitions to metrics and listeners in order.
// Called without mu. If another goroutine is already delivering, it picks
// up whatever was recorded here.
func (m *Manager) notify() {
	m.mu.Lock()
	if m.notifying {
		m.mu.Unlock()
		return
	}
	m.notifying = true
	for len(m.transitions) > 0 {
		batch := m.transitions
		m.transitions = nil
		m.mu.Unlock()

		for _, t := range batch {
			m.emit(t)
		}
		m.mu.Lock()
	}
	m.notifying = false
	m.mu.Unlock()
}

func (m *Manager) emit(t transition) {
	publishStatus(t.to)
	m.logger.Debug("Channel status changed", "from", t.from, "to", t.to)

	m.listenersMu.Lock()
	listeners := m.listeners
	m.listenersMu.Unlock()

	for _, s := range listeners {
		s.fn(t.from, t.to)
	}
}

func publishStatus(current Status) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.ChannelStatus.WithLabelValues(string(s)).Set(v)
	}
}
