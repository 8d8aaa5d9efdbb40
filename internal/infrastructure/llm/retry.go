package llm

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = time.Second
)

// retryableStatus reports whether an HTTP status is worth another attempt.
// Rate limits and server-side failures are transient; other client errors
// (bad key, bad request) will not heal on retry.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// permanentError marks a failure another attempt cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// sleepBackoff waits the exponential delay for the given zero-based attempt,
// honoring context cancellation.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	if attempt < 0 {
		attempt = 0
	}

	delay := base << attempt
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
