package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

const (
	maxAttempts = 5
	retryBase   = 1 * time.Second
	retryCap    = 30 * time.Second
)

// retryableError marks a failure that is worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	return retryableError{err: err}
}

// withRetry calls fn until it succeeds, returns an error not marked retryable,
// or maxAttempts is reached. Waits between attempts honour ctx.
func withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Printf("[Storage] %s succeeded on attempt %d", op, attempt)
			}
			return nil
		}

		var re retryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = re.err
		if attempt == maxAttempts {
			break
		}

		delay := backoff(attempt)
		log.Printf("[Storage] %s attempt %d/%d failed, retrying in %v: %s",
			op, attempt, maxAttempts, delay.Round(time.Millisecond), clip(lastErr.Error(), 200))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, maxAttempts, lastErr)
}

// backoff doubles from retryBase up to retryCap and adds up to 25% jitter.
func backoff(attempt int) time.Duration {
	d := retryCap
	if attempt < 16 {
		d = min(retryBase<<(attempt-1), retryCap)
	}
	return d + time.Duration(rand.Int63n(int64(d/4)+1))
}

// transient reports whether a transport error is likely to clear on retry.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
