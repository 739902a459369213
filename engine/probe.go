package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ProbeFunc checks once whether the worker endpoint is accepting
// connections. A nil return means reachable.
type ProbeFunc func(ctx context.Context, endpoint string) error

const probeRequestTimeout = 2 * time.Second

// HTTPProbe issues a GET against the endpoint. Any HTTP response counts
// as ready, including non-2xx statuses: the check is "port is listening",
// not application-level success.
func HTTPProbe(ctx context.Context, endpoint string) error {
	reqCtx, cancel := context.WithTimeout(ctx, probeRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// waitReady probes at a fixed interval for a bounded number of attempts.
// With N attempts and interval T the engine gives up after at most N*T.
func (e *Engine) waitReady(ctx context.Context, endpoint string) error {
	check := func() error {
		return e.probe(ctx, endpoint)
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(e.probeInterval), uint64(e.probeAttempts)-1)
	if err := backoff.Retry(check, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %d attempts: %v", ErrReadinessTimeout, e.probeAttempts, err)
	}
	return nil
}
