package repository

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"
)

// RetryConfig bounds the retry wrapper around database writes.
type RetryConfig struct {
	Attempts int           // total attempts, default 3
	Backoff  time.Duration // linear backoff unit, default 200ms
}

// WithRetry runs fn, retrying only transient connection failures
// (reset/timeout/DNS) with linear backoff. Any other error propagates
// immediately, as does the last error once attempts are exhausted.
func WithRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, op string, fn func(context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == cfg.Attempts {
			return err
		}
		wait := time.Duration(attempt) * cfg.Backoff
		logger.Warn("db.retry",
			"op", op,
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	// pgx surfaces broken connections with this prefix.
	return strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "unexpected EOF")
}
