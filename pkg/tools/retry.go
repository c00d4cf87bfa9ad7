package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RetryPolicy controls automatic retry of transient tool failures.
// Attempt i (0-based) waits Backoff·2^i before retrying.
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy mirrors the configuration defaults: three attempts with
// a one second initial backoff.
var DefaultRetryPolicy = RetryPolicy{Enabled: true, MaxAttempts: 3, Backoff: time.Second}

func (p RetryPolicy) attempts() int {
	if !p.Enabled || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// TransientError marks an error as retryable. Tools wrap provider rate
// limits and upstream 5xx responses in this so the registry retries them.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transientf builds a retryable error.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// TimeoutError is a distinguished failure for per-tool timeouts; it is
// transient for retry purposes but keeps its own type so callers can report
// "timeout" rather than a generic failure.
type TimeoutError struct {
	Tool    string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %s", e.Tool, e.Elapsed.Round(time.Millisecond))
}

// Transient reports whether err is worth retrying: explicitly marked
// transient errors, tool timeouts, network timeouts, and deadline expiry.
// Context cancellation is never transient — the caller is going away.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var to *TimeoutError
	if errors.As(err, &to) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
