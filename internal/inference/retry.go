package inference

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"docpipe/internal/port"
)

// RetryingClient wraps an InferenceClient with a shared rate limiter and a
// bounded transport-level retry. This bound is distinct from and outside the
// correction loop's max_attempts: it covers the backend being unreachable,
// not the backend being wrong.
type RetryingClient struct {
	inner      port.InferenceClient
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewRetryingClient wraps inner with maxRetries transport retries and a
// requests-per-second limiter shared across all workers.
func NewRetryingClient(inner port.InferenceClient, maxRetries int, perSecond float64, burst int) *RetryingClient {
	if burst <= 0 {
		burst = 1
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return &RetryingClient{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

func (c *RetryingClient) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			log.Printf("inference.RetryingClient: transport failure, retry %d/%d in %s: %v",
				attempt, c.maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		out, err := c.inner.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		if !IsTransport(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
