package deploy

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HealthProber performs the post-deploy reachability check.
type HealthProber interface {
	Probe(ctx context.Context, url string) error
}

// HTTPProber is the production prober: one GET, short timeout, 200 = healthy.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber builds a prober with the given per-probe timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// Probe GETs the health endpoint. Anything but HTTP 200 is a failure.
func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
