package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/abadealex/scriptmark/internal/observability"
)

// withRetry runs fn against an external dependency with a per-call timeout
// and exponential backoff between attempts. Backoff waits are interruptible
// by the batch context.
func (p *Pipeline) withRetry(ctx context.Context, dependency string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.opts.RetryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
		start := time.Now()
		err := fn(callCtx)
		cancel()
		observability.ExternalCallDuration().WithLabelValues(dependency).Observe(time.Since(start).Seconds())

		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < p.opts.RetryAttempts {
			backoff := p.opts.RetryBackoff * time.Duration(1<<(attempt-1))
			p.logger.Warn().
				Err(err).
				Str("dependency", dependency).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("external call failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	observability.ExternalFailures().WithLabelValues(dependency).Inc()
	return fmt.Errorf("%s failed after %d attempts: %w", dependency, p.opts.RetryAttempts, lastErr)
}
