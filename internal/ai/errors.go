package ai

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrBackendUnavailable = errors.New("ai backend unavailable")
	ErrRequestRejected    = errors.New("ai backend rejected request")
	ErrMalformedResponse  = errors.New("ai backend returned malformed response")
	ErrCallTimeout        = errors.New("ai call timeout")
)

// StatusCoder is implemented by provider errors that carry the HTTP status
// returned by the backend.
type StatusCoder interface {
	StatusCode() int
}

// statusOf extracts the backend HTTP status from err, if any.
func statusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// retryableStatus reports whether a backend status is worth another attempt:
// rate limited or a server-side failure.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// retryable reports whether a failed attempt should be retried. Timeouts and
// transport errors are retried; so are 429 and 5xx responses.
func retryable(err error) bool {
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrRequestRejected) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if code, ok := statusOf(err); ok {
		return retryableStatus(code)
	}
	return true
}
