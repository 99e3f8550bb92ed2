package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/metrics"
	"github.com/vietddude/medlingo/internal/resilience/backoff"
	"github.com/vietddude/medlingo/internal/resilience/breaker"
	"github.com/vietddude/medlingo/internal/resilience/classify"
	"github.com/vietddude/medlingo/internal/resilience/healthmon"
)

// CircuitReader exposes breaker records without mutating them.
type CircuitReader interface {
	Snapshot(dep domain.Dependency) (breaker.Snapshot, bool)
}

// HealthReader exposes probe-derived health.
type HealthReader interface {
	Status(dep domain.Dependency) healthmon.Status
}

// Config controls retry bookkeeping and fallback routing.
type Config struct {
	MaxRetries int
	Backoff    backoff.Config
	RetryTTL   time.Duration
	MaxTracked int

	// RateLimitDelay is the back-off used when a throttled or unavailable
	// dependency gave no retry hint.
	RateLimitDelay time.Duration

	// Fallbacks maps a dependency to the one that can stand in for it.
	Fallbacks map[domain.Dependency]domain.Dependency

	// DegradationMessages overrides the built-in per-dependency messages.
	DegradationMessages map[domain.Dependency]string
}

// DefaultConfig allows three retries on the reconnection backoff curve.
var DefaultConfig = Config{
	MaxRetries:     3,
	Backoff:        backoff.Default,
	RetryTTL:       10 * time.Minute,
	MaxTracked:     10000,
	RateLimitDelay: 60 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultConfig.MaxRetries
	}
	c.Backoff = c.Backoff.WithDefaults()
	if c.RetryTTL <= 0 {
		c.RetryTTL = DefaultConfig.RetryTTL
	}
	if c.MaxTracked <= 0 {
		c.MaxTracked = DefaultConfig.MaxTracked
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = DefaultConfig.RateLimitDelay
	}
	return c
}

// Manager selects a recovery strategy per classified failure. It reads
// breaker and health state but never records outcomes into them.
type Manager struct {
	cfg      Config
	circuits CircuitReader
	health   HealthReader
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	attempts *expirable.LRU[string, int]
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a recovery manager. circuits and health may be nil, in
// which case every breaker reads CLOSED and every dependency UNKNOWN.
func NewManager(cfg Config, circuits CircuitReader, health HealthReader, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:      cfg,
		circuits: circuits,
		health:   health,
		now:      time.Now,
		logger:   slog.Default().With("component", "recovery"),
		attempts: expirable.NewLRU[string, int](cfg.MaxTracked, nil, cfg.RetryTTL),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AttemptRecovery decides how to recover from err.
func (m *Manager) AttemptRecovery(ctx context.Context, err *classify.EnhancedError) Decision {
	if err == nil {
		return Decision{
			Strategy: StrategyGracefulDegradation,
			Success:  true,
			Message:  genericDegradationMessage,
		}
	}

	var d Decision
	switch StrategyFor(err.Category) {
	case StrategyManualIntervention:
		d = Decision{
			Strategy: StrategyManualIntervention,
			Success:  false,
			Message:  err.UserMessage,
		}
	case StrategyRetry:
		d = m.retry(err)
	case StrategyCircuitBreaker:
		d = m.circuitBreaker(err)
	case StrategyFallback:
		d = m.fallback(err)
	default:
		d = m.degrade(err.Dependency)
	}

	metrics.RecoveryDecisions.WithLabelValues(
		string(err.Dependency), string(d.Strategy), strconv.FormatBool(d.Success),
	).Inc()
	m.logger.DebugContext(ctx, "Recovery decision",
		"dependency", err.Dependency,
		"category", err.Category,
		"correlation_id", err.CorrelationID,
		"strategy", d.Strategy,
		"success", d.Success,
		"next_action", d.NextAction,
		"retry_after", d.RetryAfter,
	)
	return d
}

// Complete forgets retry bookkeeping for an operation that succeeded.
func (m *Manager) Complete(correlationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts.Remove(correlationID)
}

// Attempts returns the retries recorded for correlationID.
func (m *Manager) Attempts(correlationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := m.attempts.Peek(correlationID)
	return n
}

// DegradationMessage returns the static message shown when dep degrades.
func (m *Manager) DegradationMessage(dep domain.Dependency) string {
	if msg, ok := m.cfg.DegradationMessages[dep]; ok {
		return msg
	}
	if msg, ok := defaultDegradationMessages[dep]; ok {
		return msg
	}
	return genericDegradationMessage
}

// MaxRetries returns the configured retry bound.
func (m *Manager) MaxRetries() int {
	return m.cfg.MaxRetries
}

func (m *Manager) retry(err *classify.EnhancedError) Decision {
	m.mu.Lock()
	attempts, _ := m.attempts.Get(err.CorrelationID)
	attempts++
	if attempts > m.cfg.MaxRetries {
		m.attempts.Remove(err.CorrelationID)
		m.mu.Unlock()
		return Decision{
			Strategy:   StrategyRetry,
			Success:    false,
			Message:    "Maximum retry attempts exceeded",
			NextAction: StrategyFallback,
			Fallback:   m.cfg.Fallbacks[err.Dependency],
		}
	}
	m.attempts.Add(err.CorrelationID, attempts)
	m.mu.Unlock()

	delay := m.cfg.Backoff.Delay(attempts - 1)
	if err.RetryAfter > delay {
		delay = err.RetryAfter
	}
	return Decision{
		Strategy:   StrategyRetry,
		Success:    true,
		Message:    fmt.Sprintf("Retrying (attempt %d of %d)", attempts, m.cfg.MaxRetries),
		RetryAfter: delay,
	}
}

func (m *Manager) circuitBreaker(err *classify.EnhancedError) Decision {
	if snap, ok := m.snapshot(err.Dependency); ok && snap.State == breaker.StateOpen {
		remaining := snap.NextAttemptTime.Sub(m.now())
		if remaining < 0 {
			remaining = 0
		}
		d := Decision{
			Strategy:   StrategyCircuitBreaker,
			Success:    false,
			Message:    fmt.Sprintf("Circuit open for %s", err.Dependency),
			NextAction: StrategyGracefulDegradation,
			RetryAfter: remaining,
		}
		if fb, ok := m.cfg.Fallbacks[err.Dependency]; ok {
			d.NextAction = StrategyFallback
			d.Fallback = fb
		}
		return d
	}

	delay := err.RetryAfter
	if delay <= 0 {
		delay = m.cfg.RateLimitDelay
	}
	return Decision{
		Strategy:   StrategyCircuitBreaker,
		Success:    true,
		Message:    fmt.Sprintf("Backing off %s before retrying", err.Dependency),
		NextAction: StrategyRetry,
		RetryAfter: delay,
	}
}

func (m *Manager) fallback(err *classify.EnhancedError) Decision {
	fb, ok := m.cfg.Fallbacks[err.Dependency]
	if !ok || m.circuitState(fb) != breaker.StateClosed {
		return m.circuitBreaker(err)
	}
	if m.health != nil && m.health.Status(fb) == healthmon.StatusUnhealthy {
		return m.degrade(err.Dependency)
	}
	return Decision{
		Strategy: StrategyFallback,
		Success:  true,
		Message:  fmt.Sprintf("Switching to %s", fb),
		Fallback: fb,
	}
}

func (m *Manager) degrade(dep domain.Dependency) Decision {
	return Decision{
		Strategy: StrategyGracefulDegradation,
		Success:  true,
		Message:  m.DegradationMessage(dep),
	}
}

func (m *Manager) snapshot(dep domain.Dependency) (breaker.Snapshot, bool) {
	if m.circuits == nil {
		return breaker.Snapshot{}, false
	}
	return m.circuits.Snapshot(dep)
}

func (m *Manager) circuitState(dep domain.Dependency) breaker.State {
	snap, ok := m.snapshot(dep)
	if !ok {
		return breaker.StateClosed
	}
	return snap.State
}
