package healthmon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/metrics"
)

// ErrUnknownDependency is returned for dependencies the monitor was not built with.
var ErrUnknownDependency = errors.New("dependency not monitored")

// Target pairs a dependency's probe with its schedule.
type Target struct {
	Prober Prober
	Config Config
}

// TransitionFunc observes health status changes. It runs after the record
// lock is released.
type TransitionFunc func(dep domain.Dependency, from, to Status)

type entry struct {
	dep    domain.Dependency
	cfg    Config
	prober Prober

	mu        sync.Mutex
	status    Status
	successes int
	failures  int
	lastCheck time.Time
	lastMsg   string
	history   []CheckResult // ring buffer of cfg.HistorySize
	next      int
	filled    bool
}

// Monitor keeps one health record per dependency and probes each on its own
// goroutine once started.
type Monitor struct {
	entries map[domain.Dependency]*entry
	now     func() time.Time
	notify  TransitionFunc
	logger  *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTransitionFunc registers a status change observer.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(m *Monitor) { m.notify = fn }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a monitor for the given dependencies. Every record
// starts UNKNOWN.
func NewMonitor(targets map[domain.Dependency]Target, opts ...Option) *Monitor {
	m := &Monitor{
		entries: make(map[domain.Dependency]*entry, len(targets)),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	for dep, t := range targets {
		cfg := t.Config.withDefaults()
		m.entries[dep] = &entry{
			dep:     dep,
			cfg:     cfg,
			prober:  t.Prober,
			status:  StatusUnknown,
			history: make([]CheckResult, cfg.HistorySize),
		}
		metrics.DependencyHealth.WithLabelValues(string(dep)).Set(statusGauge(StatusUnknown))
	}
	return m
}

// Start launches one probe loop per dependency. Each loop probes
// immediately, then every CheckInterval until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	for _, e := range m.entries {
		m.wg.Add(1)
		go m.loop(ctx, e)
	}
	m.logger.Info("Health monitor started", "dependencies", len(m.entries))
}

// Stop cancels every probe loop and waits for them to exit. No probe is
// scheduled after Stop returns.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.logger.Info("Health monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, e *entry) {
	defer m.wg.Done()

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		m.check(ctx, e)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckHealth probes dep immediately and returns its updated record.
func (m *Monitor) CheckHealth(ctx context.Context, dep domain.Dependency) (Record, error) {
	e, ok := m.entries[dep]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownDependency, dep)
	}
	if !m.check(ctx, e) {
		return e.snapshot(), ctx.Err()
	}
	return e.snapshot(), nil
}

// Record returns the current record for dep without probing.
func (m *Monitor) Record(dep domain.Dependency) (Record, bool) {
	e, ok := m.entries[dep]
	if !ok {
		return Record{}, false
	}
	return e.snapshot(), true
}

// Status returns the current status for dep, UNKNOWN if not monitored.
func (m *Monitor) Status(dep domain.Dependency) Status {
	e, ok := m.entries[dep]
	if !ok {
		return StatusUnknown
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Records returns every record sorted by dependency.
func (m *Monitor) Records() []Record {
	out := make([]Record, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dependency < out[j].Dependency })
	return out
}

// SystemHealth aggregates the current records.
func (m *Monitor) SystemHealth() SystemHealth {
	records := m.Records()
	overall, score := Aggregate(records)
	services := make(map[domain.Dependency]Record, len(records))
	for _, r := range records {
		services[r.Dependency] = r
	}
	metrics.SystemHealthScore.Set(score)
	return SystemHealth{
		OverallStatus: overall,
		HealthScore:   score,
		Services:      services,
		CheckedAt:     m.now(),
	}
}

// check runs one probe and applies its result. It reports false when ctx
// ended before the probe finished; such probes are not recorded.
func (m *Monitor) check(ctx context.Context, e *entry) bool {
	start := m.now()
	res, ok := m.probe(ctx, e)
	if !ok {
		return false
	}
	res.CheckedAt = m.now()
	res.Duration = res.CheckedAt.Sub(start)

	label := "success"
	if !res.Healthy {
		label = "failure"
	}
	metrics.ProbeLatency.WithLabelValues(string(e.dep), label).Observe(res.Duration.Seconds())

	from, to := e.apply(res)
	if from != to {
		metrics.DependencyHealth.WithLabelValues(string(e.dep)).Set(statusGauge(to))
		m.logTransition(e, from, to, res.Message)
		if m.notify != nil {
			m.notify(e.dep, from, to)
		}
	}
	return true
}

type probeOutcome struct {
	res ProbeResult
	err error
}

// probe races the prober against the dependency's timeout.
func (m *Monitor) probe(ctx context.Context, e *entry) (CheckResult, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	done := make(chan probeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeOutcome{err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		res, err := e.prober.Probe(probeCtx)
		done <- probeOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return CheckResult{Healthy: false, Message: out.err.Error()}, true
		}
		return CheckResult{Healthy: out.res.Healthy, Message: out.res.Message}, true
	case <-probeCtx.Done():
		if ctx.Err() != nil {
			return CheckResult{}, false
		}
		return CheckResult{
			Healthy: false,
			Message: fmt.Sprintf("health check timed out after %s", e.cfg.Timeout),
		}, true
	}
}

// apply updates counters and status with hysteresis.
func (e *entry) apply(res CheckResult) (from, to Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from = e.status
	if res.Healthy {
		e.successes++
		e.failures = 0
		switch e.status {
		case StatusUnknown:
			e.status = StatusHealthy
		case StatusDegraded, StatusUnhealthy:
			if e.successes >= e.cfg.HealthyThreshold {
				e.status = StatusHealthy
			}
		}
	} else {
		e.failures++
		e.successes = 0
		switch {
		case e.failures >= e.cfg.UnhealthyThreshold:
			e.status = StatusUnhealthy
		case e.status == StatusHealthy || e.status == StatusUnknown:
			e.status = StatusDegraded
		}
	}

	e.lastCheck = res.CheckedAt
	e.lastMsg = res.Message
	e.history[e.next] = res
	e.next = (e.next + 1) % len(e.history)
	if e.next == 0 {
		e.filled = true
	}
	return from, e.status
}

func (e *entry) snapshot() Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	var history []CheckResult
	if e.filled {
		history = make([]CheckResult, 0, len(e.history))
		history = append(history, e.history[e.next:]...)
		history = append(history, e.history[:e.next]...)
	} else {
		history = append([]CheckResult(nil), e.history[:e.next]...)
	}

	return Record{
		Dependency:           e.dep,
		Status:               e.status,
		Critical:             e.cfg.Critical,
		ConsecutiveSuccesses: e.successes,
		ConsecutiveFailures:  e.failures,
		LastCheck:            e.lastCheck,
		LastMessage:          e.lastMsg,
		History:              history,
	}
}

func (m *Monitor) logTransition(e *entry, from, to Status, msg string) {
	attrs := []any{"dependency", e.dep, "from", from, "to", to, "message", msg}
	switch to {
	case StatusUnhealthy:
		m.logger.Error("Dependency unhealthy", attrs...)
	case StatusDegraded:
		m.logger.Warn("Dependency degraded", attrs...)
	default:
		m.logger.Info("Dependency health changed", attrs...)
	}
}

func statusGauge(s Status) float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	case StatusUnhealthy:
		return 0
	default:
		return -1
	}
}
