package stage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// StatusError reports a non-2xx HTTP response from a scrape or crawl.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

// PermanentError marks a failure that must not be retried. Collaborators
// wrap errors with Permanent when they know retrying is pointless.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Classify treats it as a terminal failure.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.As(err, new(*PermanentError))
}

// Classify maps a collaborator error onto the failure taxonomy. Network
// timeouts, server errors, and rate limiting are transient; not-found and
// client errors are permanent. Unknown errors default to retryable so a
// flaky upstream gets its retry budget before the task is abandoned.
func Classify(err error) ResultClass {
	if err == nil {
		return ClassNone
	}
	if IsPermanent(err) {
		return ClassTerminal
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusTooManyRequests:
			return ClassRetryable
		case statusErr.Code >= 400 && statusErr.Code < 500:
			return ClassTerminal
		default:
			return ClassRetryable
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}
	return ClassRetryable
}

// ResultClass is the coarse failure classification used by the adapters.
type ResultClass int

// Classification outcomes.
const (
	ClassNone ResultClass = iota
	ClassRetryable
	ClassTerminal
)
