package probe

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vietddude/medlingo/internal/resilience/healthmon"
)

// VersionedStore is a database that can report its server version.
type VersionedStore interface {
	Health(ctx context.Context) (string, error)
}

// SQL probes the session store.
type SQL struct {
	DB VersionedStore
}

// Probe implements healthmon.Prober.
func (p *SQL) Probe(ctx context.Context) (healthmon.ProbeResult, error) {
	start := time.Now()
	version, err := p.DB.Health(ctx)
	if err != nil {
		return healthmon.ProbeResult{}, err
	}
	return healthmon.ProbeResult{
		Healthy: true,
		Message: "session store reachable",
		Details: map[string]any{
			"server_version": version,
			"latency_ms":     elapsedMillis(start),
		},
	}, nil
}

// Pinger is a cache that answers pings and exposes pool counters.
type Pinger interface {
	Ping(ctx context.Context) error
	PoolStats() *goredis.PoolStats
}

// Redis probes the session cache.
type Redis struct {
	Client Pinger
}

// Probe implements healthmon.Prober.
func (p *Redis) Probe(ctx context.Context) (healthmon.ProbeResult, error) {
	start := time.Now()
	if err := p.Client.Ping(ctx); err != nil {
		return healthmon.ProbeResult{}, err
	}

	details := map[string]any{"latency_ms": elapsedMillis(start)}
	if stats := p.Client.PoolStats(); stats != nil {
		details["total_conns"] = stats.TotalConns
		details["idle_conns"] = stats.IdleConns
		details["timeouts"] = stats.Timeouts
	}
	return healthmon.ProbeResult{Healthy: true, Message: "PONG", Details: details}, nil
}
