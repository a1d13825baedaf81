package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ValidationError indicates a request was missing required fields. It is
// raised before any network call is made.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return fmt.Sprintf("%s: invalid request: %s", e.Op, strings.Join(msgs, "; "))
}

// StatusError indicates the server answered with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// InvalidResponseError indicates the server returned a body that could not be
// decoded or did not match the expected payload shape.
type InvalidResponseError struct {
	Op  string
	Err error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("%s: invalid response: %v", e.Op, e.Err)
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// UnavailableError indicates the server could not be reached.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: delivery service unavailable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: delivery service unavailable", e.Op)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure. Validation errors,
// client-side 4xx responses, malformed payloads and context cancellation are
// permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var ir *InvalidResponseError
	if errors.As(err, &ir) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}

	// Network failures and anything unclassified are treated as transient.
	return true
}
