package healthmon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// ============================================================================
// Test helpers
// ============================================================================

// scriptedProber returns results in order, repeating the last one.
type scriptedProber struct {
	mu      sync.Mutex
	results []bool
	calls   int
}

func (p *scriptedProber) Probe(ctx context.Context) (ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.calls++
	if p.results[i] {
		return ProbeResult{Healthy: true, Message: "ok"}, nil
	}
	return ProbeResult{}, errors.New("connection refused")
}

func (p *scriptedProber) set(results ...bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = results
	p.calls = 0
}

func newTestMonitor(t *testing.T, prober Prober, cfg Config) *Monitor {
	t.Helper()
	return NewMonitor(map[domain.Dependency]Target{
		domain.DependencyTranslation: {Prober: prober, Config: cfg},
	})
}

func checkN(t *testing.T, m *Monitor, dep domain.Dependency, n int) Record {
	t.Helper()
	var rec Record
	for i := 0; i < n; i++ {
		var err error
		rec, err = m.CheckHealth(context.Background(), dep)
		if err != nil {
			t.Fatalf("CheckHealth: %v", err)
		}
	}
	return rec
}

// ============================================================================
// Hysteresis
// ============================================================================

func TestMonitor_InitialStatusUnknown(t *testing.T) {
	m := newTestMonitor(t, &scriptedProber{results: []bool{true}}, Config{})

	rec, ok := m.Record(domain.DependencyTranslation)
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Status != StatusUnknown {
		t.Errorf("expected UNKNOWN, got %s", rec.Status)
	}
	if len(rec.History) != 0 {
		t.Errorf("expected empty history, got %d entries", len(rec.History))
	}
}

func TestMonitor_FirstSuccessIsHealthy(t *testing.T) {
	m := newTestMonitor(t, &scriptedProber{results: []bool{true}}, Config{})

	rec := checkN(t, m, domain.DependencyTranslation, 1)
	if rec.Status != StatusHealthy {
		t.Errorf("expected HEALTHY, got %s", rec.Status)
	}
}

func TestMonitor_FailuresThenRecovery(t *testing.T) {
	p := &scriptedProber{results: []bool{true}}
	m := newTestMonitor(t, p, Config{HealthyThreshold: 2, UnhealthyThreshold: 3})
	dep := domain.DependencyTranslation

	checkN(t, m, dep, 1)

	p.set(false)
	rec := checkN(t, m, dep, 1)
	if rec.Status != StatusDegraded {
		t.Fatalf("after 1 failure: expected DEGRADED, got %s", rec.Status)
	}
	rec = checkN(t, m, dep, 2)
	if rec.Status != StatusUnhealthy {
		t.Fatalf("after 3 failures: expected UNHEALTHY, got %s", rec.Status)
	}
	if rec.ConsecutiveFailures != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", rec.ConsecutiveFailures)
	}

	p.set(true)
	rec = checkN(t, m, dep, 1)
	if rec.Status != StatusUnhealthy {
		t.Fatalf("one success must not recover: got %s", rec.Status)
	}
	if rec.ConsecutiveFailures != 0 || rec.ConsecutiveSuccesses != 1 {
		t.Errorf("unexpected counters: successes=%d failures=%d",
			rec.ConsecutiveSuccesses, rec.ConsecutiveFailures)
	}
	rec = checkN(t, m, dep, 1)
	if rec.Status != StatusHealthy {
		t.Fatalf("after 2 successes: expected HEALTHY, got %s", rec.Status)
	}
}

func TestMonitor_DegradedNeedsHealthyThreshold(t *testing.T) {
	p := &scriptedProber{results: []bool{true, false, true}}
	m := newTestMonitor(t, p, Config{HealthyThreshold: 2, UnhealthyThreshold: 3})
	dep := domain.DependencyTranslation

	rec := checkN(t, m, dep, 3)
	if rec.Status != StatusDegraded {
		t.Fatalf("expected DEGRADED after one success, got %s", rec.Status)
	}
	rec = checkN(t, m, dep, 1)
	if rec.Status != StatusHealthy {
		t.Fatalf("expected HEALTHY, got %s", rec.Status)
	}
}

func TestMonitor_TransitionCallback(t *testing.T) {
	p := &scriptedProber{results: []bool{true, false, false, false}}
	var got []string
	m := NewMonitor(map[domain.Dependency]Target{
		domain.DependencyTranslation: {Prober: p, Config: Config{UnhealthyThreshold: 3}},
	}, WithTransitionFunc(func(dep domain.Dependency, from, to Status) {
		got = append(got, string(from)+"->"+string(to))
	}))

	checkN(t, m, domain.DependencyTranslation, 4)

	want := []string{"UNKNOWN->HEALTHY", "HEALTHY->DEGRADED", "DEGRADED->UNHEALTHY"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

// ============================================================================
// Probing
// ============================================================================

func TestMonitor_ProbeTimeout(t *testing.T) {
	blocking := ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return ProbeResult{Healthy: true}, nil
	})
	m := newTestMonitor(t, blocking, Config{Timeout: 20 * time.Millisecond})

	rec := checkN(t, m, domain.DependencyTranslation, 1)
	if rec.Status != StatusDegraded {
		t.Errorf("expected DEGRADED after timeout, got %s", rec.Status)
	}
	if !strings.Contains(rec.LastMessage, "timed out") {
		t.Errorf("expected timeout message, got %q", rec.LastMessage)
	}
}

func TestMonitor_ProbePanicCountsAsFailure(t *testing.T) {
	panicking := ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		panic("boom")
	})
	m := newTestMonitor(t, panicking, Config{})

	rec := checkN(t, m, domain.DependencyTranslation, 1)
	if rec.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 failure, got %d", rec.ConsecutiveFailures)
	}
}

func TestMonitor_UnhealthyProbeResult(t *testing.T) {
	p := ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		return ProbeResult{Healthy: false, Message: "pool exhausted"}, nil
	})
	m := newTestMonitor(t, p, Config{})

	rec := checkN(t, m, domain.DependencyTranslation, 1)
	if rec.Status != StatusDegraded || rec.LastMessage != "pool exhausted" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestMonitor_CancelledCheckNotRecorded(t *testing.T) {
	p := ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		<-ctx.Done()
		return ProbeResult{}, ctx.Err()
	})
	m := newTestMonitor(t, p, Config{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := m.CheckHealth(ctx, domain.DependencyTranslation)
	if err == nil {
		t.Fatal("expected context error")
	}
	if rec.Status != StatusUnknown || len(rec.History) != 0 {
		t.Errorf("cancelled probe should not be recorded: %+v", rec)
	}
}

func TestMonitor_HistoryBounded(t *testing.T) {
	p := &scriptedProber{results: []bool{true}}
	m := newTestMonitor(t, p, Config{HistorySize: 3})

	rec := checkN(t, m, domain.DependencyTranslation, 5)
	if len(rec.History) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(rec.History))
	}
	for i := 1; i < len(rec.History); i++ {
		if rec.History[i].CheckedAt.Before(rec.History[i-1].CheckedAt) {
			t.Errorf("history not chronological at %d", i)
		}
	}
}

func TestMonitor_UnknownDependency(t *testing.T) {
	m := newTestMonitor(t, &scriptedProber{results: []bool{true}}, Config{})

	_, err := m.CheckHealth(context.Background(), domain.DependencyCache)
	if !errors.Is(err, ErrUnknownDependency) {
		t.Errorf("expected ErrUnknownDependency, got %v", err)
	}
	if m.Status(domain.DependencyCache) != StatusUnknown {
		t.Error("unmonitored dependency should report UNKNOWN")
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestMonitor_StartStop(t *testing.T) {
	var calls atomic.Int64
	p := ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		calls.Add(1)
		return ProbeResult{Healthy: true}, nil
	})
	m := NewMonitor(map[domain.Dependency]Target{
		domain.DependencyTranslation: {Prober: p, Config: Config{CheckInterval: 5 * time.Millisecond}},
		domain.DependencyIdentity:    {Prober: p, Config: Config{CheckInterval: 5 * time.Millisecond}},
	})

	m.Start(context.Background())
	deadline := time.Now().Add(time.Second)
	for calls.Load() < 6 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	m.Stop()

	after := calls.Load()
	if after < 6 {
		t.Fatalf("expected probes to run, got %d", after)
	}
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("probes ran after Stop: %d -> %d", after, calls.Load())
	}

	// Stop is idempotent.
	m.Stop()
}

func TestMonitor_IndependentDependencies(t *testing.T) {
	bad := &scriptedProber{results: []bool{false}}
	good := &scriptedProber{results: []bool{true}}
	m := NewMonitor(map[domain.Dependency]Target{
		domain.DependencyTranslation: {Prober: bad, Config: Config{UnhealthyThreshold: 3}},
		domain.DependencyIdentity:    {Prober: good},
	})

	checkN(t, m, domain.DependencyTranslation, 3)
	checkN(t, m, domain.DependencyIdentity, 1)

	if s := m.Status(domain.DependencyTranslation); s != StatusUnhealthy {
		t.Errorf("translation: expected UNHEALTHY, got %s", s)
	}
	if s := m.Status(domain.DependencyIdentity); s != StatusHealthy {
		t.Errorf("identity: expected HEALTHY, got %s", s)
	}
}

// ============================================================================
// Aggregation
// ============================================================================

func TestAggregate(t *testing.T) {
	tests := []struct {
		name       string
		records    []Record
		wantStatus Status
		wantScore  float64
	}{
		{"empty", nil, StatusHealthy, 100},
		{
			"all healthy",
			[]Record{{Status: StatusHealthy}, {Status: StatusHealthy}},
			StatusHealthy, 100,
		},
		{
			"critical unhealthy",
			[]Record{{Status: StatusUnhealthy, Critical: true}, {Status: StatusHealthy}},
			StatusUnhealthy, 50,
		},
		{
			"non-critical unhealthy",
			[]Record{{Status: StatusUnhealthy}, {Status: StatusHealthy}, {Status: StatusHealthy}, {Status: StatusHealthy}},
			StatusDegraded, 75,
		},
		{
			"degraded",
			[]Record{{Status: StatusDegraded, Critical: true}, {Status: StatusHealthy}},
			StatusDegraded, 50,
		},
		{
			"unknown counts against score only",
			[]Record{{Status: StatusUnknown}, {Status: StatusHealthy}},
			StatusHealthy, 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, score := Aggregate(tt.records)
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if score != tt.wantScore {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
		})
	}
}

func TestMonitor_SystemHealth(t *testing.T) {
	m := NewMonitor(map[domain.Dependency]Target{
		domain.DependencyTranslation: {
			Prober: &scriptedProber{results: []bool{false}},
			Config: Config{UnhealthyThreshold: 1, Critical: true},
		},
		domain.DependencyIdentity: {Prober: &scriptedProber{results: []bool{true}}},
	})

	checkN(t, m, domain.DependencyTranslation, 1)
	checkN(t, m, domain.DependencyIdentity, 1)

	sh := m.SystemHealth()
	if sh.OverallStatus != StatusUnhealthy {
		t.Errorf("expected UNHEALTHY, got %s", sh.OverallStatus)
	}
	if sh.HealthScore != 50 {
		t.Errorf("expected score 50, got %v", sh.HealthScore)
	}
	if len(sh.Services) != 2 {
		t.Errorf("expected 2 services, got %d", len(sh.Services))
	}
}
