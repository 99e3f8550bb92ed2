package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/medlingo/internal/resilience/healthmon"
)

// GRPC probes a service through the standard gRPC health protocol.
type GRPC struct {
	endpoint string
	service  string

	once    sync.Once
	conn    *grpc.ClientConn
	connErr error
}

// NewGRPC creates a probe for endpoint. service is the name passed to
// Health/Check; empty checks the server as a whole.
func NewGRPC(endpoint, service string) *GRPC {
	return &GRPC{endpoint: endpoint, service: service}
}

// NewGRPCWithConn creates a probe over an existing connection.
func NewGRPCWithConn(conn *grpc.ClientConn, service string) *GRPC {
	p := &GRPC{service: service, conn: conn}
	p.once.Do(func() {})
	return p
}

func (p *GRPC) dial() (*grpc.ClientConn, error) {
	p.once.Do(func() {
		target := p.endpoint
		var opts []grpc.DialOption

		if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
			creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
			opts = append(opts, grpc.WithTransportCredentials(creds))
			target = strings.TrimPrefix(target, "https://")
		} else {
			opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
			target = strings.TrimPrefix(target, "http://")
		}

		p.conn, p.connErr = grpc.NewClient(target, opts...)
		if p.connErr != nil {
			p.connErr = fmt.Errorf("failed to create grpc client for %s: %w", target, p.connErr)
		}
	})
	return p.conn, p.connErr
}

// Probe implements healthmon.Prober.
func (p *GRPC) Probe(ctx context.Context) (healthmon.ProbeResult, error) {
	conn, err := p.dial()
	if err != nil {
		return healthmon.ProbeResult{}, err
	}

	start := time.Now()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return healthmon.ProbeResult{}, err
	}

	status := resp.GetStatus()
	return healthmon.ProbeResult{
		Healthy: status == healthpb.HealthCheckResponse_SERVING,
		Message: status.String(),
		Details: map[string]any{
			"service":    p.service,
			"latency_ms": elapsedMillis(start),
		},
	}, nil
}

// Close releases the connection.
func (p *GRPC) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
