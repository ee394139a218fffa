package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBaseWait = 1 * time.Second
	retryJitterFraction  = 0.25
)

// retryBackoff returns the wait before the attempt after the given one
// (0-indexed): 1s, 2s, 4s, each with ±25% jitter.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := defaultRetryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter
	return base + jitter
}

// retrier runs an operation up to attempts times, sleeping wait(i) between
// tries. The zero value is not usable; see newRetrier.
type retrier struct {
	attempts int
	wait     func(attempt int) time.Duration
	logger   *slog.Logger
	// retryable decides whether an error is worth another attempt. nil
	// retries everything.
	retryable func(error) bool
}

func newRetrier(logger *slog.Logger) *retrier {
	return &retrier{attempts: defaultRetryAttempts, wait: retryBackoff, logger: logger}
}

// do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. name appears in logs and in the final error.
func (r *retrier) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if r.retryable != nil && !r.retryable(err) {
			return err
		}
		if attempt == r.attempts-1 {
			break
		}

		wait := r.wait(attempt)
		if r.logger != nil {
			r.logger.WarnContext(ctx, name+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", r.attempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: context canceled during retry: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", name, r.attempts, err)
}

// isConnectionError reports whether err looks like a transient network
// problem rather than a statement or constraint error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"connect: connection",
		"dial tcp",
		"EOF",
		"connection timed out",
		"server closed the connection unexpectedly",
		"could not connect",
		"server selection error",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
