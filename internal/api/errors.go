package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass partitions remote call failures by how the sync engine
// must react to them.
type ErrorClass int

const (
	// ClassConnectivity covers calls that did not complete: network
	// errors, timeouts, and server-side 5xx. Retryable; the engine
	// stops draining the affected queue for the current pass.
	ClassConnectivity ErrorClass = iota

	// ClassValidation covers completed calls whose payload the server
	// rejected (4xx business-rule errors). Blind retry will not
	// succeed; the entry is marked failed and siblings continue.
	ClassValidation

	// ClassAuth covers calls rejected because credentials could not be
	// attached or refreshed. Fatal for the current pass.
	ClassAuth
)

// String returns a human-readable representation of the class.
func (c ErrorClass) String() string {
	switch c {
	case ClassConnectivity:
		return "connectivity"
	case ClassValidation:
		return "validation"
	case ClassAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a classified remote API failure.
type Error struct {
	Class      ErrorClass
	StatusCode int // 0 when the call never completed
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api %s error (HTTP %d): %s", e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api %s error: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is a retryable transport-level
// failure (network error, timeout, 5xx).
func IsConnectivity(err error) bool {
	return classOf(err) == ClassConnectivity
}

// IsValidation reports whether err is a server-side payload rejection.
func IsValidation(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Class == ClassValidation
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Class == ClassAuth
}

// classOf treats anything that is not an explicit Error as a
// connectivity failure: raw net errors, context deadlines and
// cancellations all mean the call did not complete.
func classOf(err error) ErrorClass {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassConnectivity
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassConnectivity
	}
	return ClassConnectivity
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 401 || status == 403:
		return ClassAuth
	case status >= 400 && status < 500:
		return ClassValidation
	default:
		return ClassConnectivity
	}
}
