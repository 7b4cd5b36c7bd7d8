package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request failure for caller branching.
type Kind string

const (
	// KindAuthRequired means the session is unrecoverable and the user
	// must sign in again.
	KindAuthRequired Kind = "AUTH_REQUIRED"
	// KindNoRefreshToken means there was no credential to attempt
	// recovery with. Callers treat it the same as KindAuthRequired.
	KindNoRefreshToken Kind = "NO_REFRESH_TOKEN"
	// KindTimeout is a request that exceeded its deadline. Transient.
	KindTimeout Kind = "TIMEOUT"
	// KindNetwork is a transport-level failure. Transient.
	KindNetwork Kind = "NETWORK_ERROR"
	// KindRequestFailed means the server rejected the request on its
	// merits. Not retried automatically.
	KindRequestFailed Kind = "REQUEST_FAILED"
	// KindUnknown is the catch-all for unexpected conditions.
	KindUnknown Kind = "UNKNOWN_ERROR"
)

// Error is the typed failure returned by the client. Every expected
// failure mode surfaces as an *Error; only programmer mistakes such as
// an unencodable request body escape as plain errors.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status when the server answered, else 0
	Code    string // machine-readable code reported by the server
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the failure kind, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsAuthRequired reports whether the caller must route the user to a
// fresh sign-in.
func IsAuthRequired(err error) bool {
	k := KindOf(err)
	return k == KindAuthRequired || k == KindNoRefreshToken
}

// IsRetryable reports transient transport failures worth retrying.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTimeout || k == KindNetwork
}

// IsRateLimited reports a server 429, which callers present as a
// "slow down" message rather than the generic failure text.
func IsRateLimited(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}
