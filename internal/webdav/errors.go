// Package webdav provides a minimal WebDAV client for the remote
// operation store: collection listing via PROPFIND, immutable file
// upload via PUT with If-None-Match, and download via GET. Requests
// retry with exponential backoff and errors classify to sentinels.
package webdav

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, webdav.ErrNotFound) to check.
var (
	ErrBadRequest    = errors.New("webdav: bad request")
	ErrUnauthorized  = errors.New("webdav: unauthorized")
	ErrForbidden     = errors.New("webdav: forbidden")
	ErrNotFound      = errors.New("webdav: not found")
	ErrConflict      = errors.New("webdav: conflict")
	ErrPrecondition  = errors.New("webdav: precondition failed")
	ErrLocked        = errors.New("webdav: resource locked")
	ErrInsufficient  = errors.New("webdav: insufficient storage")
	ErrServerError   = errors.New("webdav: server error")
)

// RequestError wraps a sentinel error with the HTTP status code and
// the response body for debugging.
type RequestError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("webdav: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrPrecondition
	case http.StatusLocked:
		return ErrLocked
	case http.StatusInsufficientStorage:
		return ErrInsufficient
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
