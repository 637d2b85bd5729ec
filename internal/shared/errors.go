package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// Configuration errors
	ErrConfiguration = fmt.Errorf("configuration error")
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrMissingState     = fmt.Errorf("missing OAuth state")
	ErrMissingVerifier  = fmt.Errorf("PKCE verifier not found or expired")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Service errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation failed")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// UpstreamError describes a failed call to a third-party API.
//
// Status is the HTTP status the upstream returned, or 0 for transport failures.
// RetryAfter is only set for rate-limited (429) responses that carried a hint.
type UpstreamError struct {
	Service    string
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	if e.Status != 0 {
		fmt.Fprintf(&b, " returned %d", e.Status)
	} else {
		b.WriteString(" request failed")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	} else if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NeedsReauth reports whether the user has to log in again for the call to succeed.
func (e *UpstreamError) NeedsReauth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// InsufficientScope reports a 403 caused by a token that lacks a required scope.
func (e *UpstreamError) InsufficientScope() bool {
	return e.Status == http.StatusForbidden && strings.Contains(strings.ToLower(e.Message), "scope")
}

// IsRateLimited reports an HTTP 429.
func (e *UpstreamError) IsRateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// Transient reports whether retrying the same call may succeed.
func (e *UpstreamError) Transient() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// AsUpstream unwraps err into an [UpstreamError] when it carries one.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// NeedsReauth reports whether err means the caller must (re)authenticate.
func NeedsReauth(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	if ue, ok := AsUpstream(err); ok {
		return ue.NeedsReauth()
	}
	return false
}
