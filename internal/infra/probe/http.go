package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/medlingo/internal/resilience/healthmon"
)

// HTTP probes a REST service by fetching a health URL. 2xx and 3xx
// responses are healthy.
type HTTP struct {
	URL    string
	Header http.Header
	Client *http.Client
}

// NewHTTP creates an HTTP probe.
func NewHTTP(url string, header http.Header) *HTTP {
	return &HTTP{
		URL:    url,
		Header: header,
		Client: &http.Client{
			// Redirects are reported, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe implements healthmon.Prober.
func (p *HTTP) Probe(ctx context.Context) (healthmon.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return healthmon.ProbeResult{}, fmt.Errorf("build health request: %w", err)
	}
	for k, vs := range p.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return healthmon.ProbeResult{}, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	details := map[string]any{
		"status_code": resp.StatusCode,
		"latency_ms":  elapsedMillis(start),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return healthmon.ProbeResult{Healthy: true, Message: resp.Status, Details: details}, nil
	}
	return healthmon.ProbeResult{
		Healthy: false,
		Message: fmt.Sprintf("unexpected status %s", resp.Status),
		Details: details,
	}, nil
}
