// Package control builds the resilience components from configuration and
// runs them as one unit.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/medlingo/internal/core/config"
	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/infra/channel"
	"github.com/vietddude/medlingo/internal/infra/probe"
	redisclient "github.com/vietddude/medlingo/internal/infra/redis"
	"github.com/vietddude/medlingo/internal/infra/storage/postgres"
	"github.com/vietddude/medlingo/internal/metrics"
	"github.com/vietddude/medlingo/internal/resilience/backoff"
	"github.com/vietddude/medlingo/internal/resilience/breaker"
	"github.com/vietddude/medlingo/internal/resilience/classify"
	"github.com/vietddude/medlingo/internal/resilience/healthmon"
	"github.com/vietddude/medlingo/internal/resilience/recovery"
	"github.com/vietddude/medlingo/internal/server"
)

// Runtime owns every resilience component. It is built once at startup and
// passed by reference to whatever needs it.
type Runtime struct {
	Classifier *classify.Classifier
	Breakers   *breaker.Registry
	Health     *healthmon.Monitor
	Recovery   *recovery.Manager
	Executor   *recovery.Executor

	// Channel is nil when no channel url is configured.
	Channel *channel.Manager

	cfg     *config.AppConfig
	server  *server.Server
	db      *postgres.DB
	cache   *redisclient.Client
	closers []io.Closer
	log     *slog.Logger
}

// NewRuntime creates a Runtime from cfg. Nothing is dialed until Start.
func NewRuntime(cfg *config.AppConfig) (*Runtime, error) {
	rt := &Runtime{
		cfg: cfg,
		log: slog.Default().With("component", "runtime"),
	}

	// 1. Stores
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		rt.db = db
	}
	if cfg.Redis.URL != "" {
		cache, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			rt.closeStores()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		rt.cache = cache
	}

	// 2. Duplex channel
	if cfg.Channel.URL != "" {
		rt.Channel = channel.NewManager(&channel.WebSocketDialer{
			URL:              cfg.Channel.URL,
			HandshakeTimeout: cfg.Channel.DialTimeout,
		}, channelConfig(cfg.Channel))
		rt.Channel.OnStatusChange(func(from, to channel.Status) {
			rt.log.Info("Channel status changed", "from", from, "to", to)
		})
	}

	// 3. Breakers and probes
	breakerCfgs := make(map[domain.Dependency]breaker.Config, len(cfg.Dependencies))
	targets := make(map[domain.Dependency]healthmon.Target, len(cfg.Dependencies))
	for _, d := range cfg.Dependencies {
		breakerCfgs[d.Name] = breaker.Config{
			FailureThreshold: d.FailureThreshold,
			RecoveryTimeout:  d.RecoveryTimeout,
		}

		prober, err := rt.buildProber(d)
		if err != nil {
			rt.closeStores()
			return nil, err
		}
		targets[d.Name] = healthmon.Target{
			Prober: prober,
			Config: healthmon.Config{
				CheckInterval:      d.CheckInterval,
				Timeout:            d.ProbeTimeout,
				HealthyThreshold:   d.HealthyThreshold,
				UnhealthyThreshold: d.UnhealthyThreshold,
				Critical:           d.Critical,
				HistorySize:        d.HistorySize,
			},
		}
	}

	rt.Breakers = breaker.NewRegistry(breakerCfgs, time.Now, onCircuitTransition)
	for _, dep := range breakerDependencies(cfg) {
		metrics.CircuitState.WithLabelValues(string(dep)).Set(0)
	}
	rt.Health = healthmon.NewMonitor(targets, healthmon.WithLogger(slog.Default().With("component", "health")))

	// 4. Classification and recovery
	rt.Classifier = classify.NewClassifier(cfg.Critical())
	rt.Recovery = recovery.NewManager(recovery.Config{
		MaxRetries:          cfg.Recovery.MaxRetries,
		RetryTTL:            cfg.Recovery.RetryTTL,
		MaxTracked:          cfg.Recovery.MaxTracked,
		RateLimitDelay:      cfg.Recovery.RateLimitDelay,
		Fallbacks:           cfg.Fallbacks(),
		DegradationMessages: cfg.Recovery.DegradationMessages,
	}, rt.Breakers, rt.Health)
	rt.Executor = recovery.NewExecutor(rt.Breakers, rt.Classifier, rt.Recovery)

	// 5. HTTP surface
	var chSource server.ChannelSource
	if rt.Channel != nil {
		chSource = rt.Channel
	}
	rt.server = server.NewServer(rt.Health, rt.Breakers, chSource, cfg.Server.Port)

	return rt, nil
}

func channelConfig(c config.ChannelConfig) channel.Config {
	return channel.Config{
		Backoff: backoff.Config{
			InitialInterval: c.InitialInterval,
			Multiplier:      c.Multiplier,
			MaxInterval:     c.MaxInterval,
		},
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		DialTimeout:          c.DialTimeout,
		HeartbeatInterval:    c.HeartbeatInterval,
		RequestTimeout:       c.RequestTimeout,
		MaxQueueSize:         c.MaxQueueSize,
	}
}

func breakerDependencies(cfg *config.AppConfig) []domain.Dependency {
	deps := make([]domain.Dependency, 0, len(cfg.Dependencies))
	for _, d := range cfg.Dependencies {
		deps = append(deps, d.Name)
	}
	return deps
}

func (rt *Runtime) buildProber(d config.DependencyConfig) (healthmon.Prober, error) {
	switch d.Probe.Type {
	case config.ProbeHTTP:
		header := make(http.Header, len(d.Probe.Headers))
		for k, v := range d.Probe.Headers {
			header.Set(k, v)
		}
		return probe.NewHTTP(d.Probe.URL, header), nil
	case config.ProbeGRPC:
		p := probe.NewGRPC(d.Probe.URL, d.Probe.Service)
		rt.closers = append(rt.closers, p)
		return p, nil
	case config.ProbeSQL:
		if rt.db == nil {
			return nil, fmt.Errorf("dependency %s: sql probe without database", d.Name)
		}
		return &probe.SQL{DB: rt.db}, nil
	case config.ProbeRedis:
		if rt.cache == nil {
			return nil, fmt.Errorf("dependency %s: redis probe without redis", d.Name)
		}
		return &probe.Redis{Client: rt.cache}, nil
	case config.ProbeChannel:
		if rt.Channel == nil {
			return nil, fmt.Errorf("dependency %s: channel probe without channel", d.Name)
		}
		return &probe.Channel{Source: rt.Channel}, nil
	default:
		return nil, fmt.Errorf("dependency %s: unknown probe type %q", d.Name, d.Probe.Type)
	}
}

func onCircuitTransition(dep domain.Dependency, from, to breaker.State) {
	metrics.CircuitState.WithLabelValues(string(dep)).Set(float64(to))
	metrics.CircuitTransitions.WithLabelValues(string(dep), from.String(), to.String()).Inc()

	log := slog.With("component", "breaker", "dependency", dep, "from", from, "to", to)
	if to == breaker.StateOpen {
		log.Warn("Circuit opened")
	} else {
		log.Info("Circuit state changed")
	}
}

// Start launches the HTTP server, health probes and the channel. It does
// not block.
func (rt *Runtime) Start(ctx context.Context) error {
	go func() {
		if err := rt.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error("Health server failed", "error", err)
		}
	}()

	if rt.db != nil {
		rt.db.StartMetricsCollector(ctx)
	}

	// Dial before probing starts. A failed dial is retried in the background.
	if rt.Channel != nil {
		if err := rt.Channel.Connect(ctx); err != nil {
			rt.log.Warn("Initial channel connect failed", "error", err)
		}
	}

	rt.Health.Start(ctx)

	rt.log.Info("Runtime started",
		"port", rt.cfg.Server.Port,
		"dependencies", len(rt.cfg.Dependencies),
	)
	return nil
}

// Stop shuts every component down.
func (rt *Runtime) Stop(ctx context.Context) error {
	rt.log.Info("Stopping runtime...")

	if rt.Channel != nil {
		rt.Channel.Disconnect()
	}
	rt.Health.Stop()

	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			rt.log.Warn("Failed to close probe", "error", err)
		}
	}
	rt.closeStores()

	return rt.server.Stop(ctx)
}

func (rt *Runtime) closeStores() {
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			rt.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.log.Warn("Failed to close database", "error", err)
		}
	}
}
