// Package probe implements health probes for each kind of dependency the
// gateway talks to.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/medlingo/internal/infra/channel"
	"github.com/vietddude/medlingo/internal/resilience/healthmon"
)

// StatusSource reports the duplex channel status.
type StatusSource interface {
	Status() channel.Status
}

// Channel is healthy while the duplex channel is connected.
type Channel struct {
	Source StatusSource
}

// Probe implements healthmon.Prober.
func (p *Channel) Probe(ctx context.Context) (healthmon.ProbeResult, error) {
	status := p.Source.Status()
	return healthmon.ProbeResult{
		Healthy: status == channel.StatusConnected,
		Message: fmt.Sprintf("channel %s", status),
		Details: map[string]any{"status": string(status)},
	}, nil
}

func elapsedMillis(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
