package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// RequestError describes a failed remote call. StatusCode is zero for
// transport-level failures that never produced a response.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
	Retryable  bool
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s: %d %s", e.Op, e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error is transient (network failure,
// timeout, 5xx, rate limit) and the operation should be retried with
// backoff. Everything else is terminal for the entry that caused it.
func IsRetryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// ServerMessage extracts the server-provided error message, if any, so the
// pusher can store an actionable reason on the failed outbox entry.
func ServerMessage(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return err.Error()
}
