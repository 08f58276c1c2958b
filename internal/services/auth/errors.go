package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks timeouts and connection failures while talking to
	// the portal. The session manager retries these a bounded number of
	// times; nothing else is retried.
	ErrTransport = errors.New("transport failure talking to portal")

	// ErrSessionUnavailable is the caller-facing umbrella when Acquire
	// cannot produce a usable client.
	ErrSessionUnavailable = errors.New("portal session unavailable")

	// ErrLoginThrottled is returned when the per-user login rate cap is hit.
	ErrLoginThrottled = errors.New("login attempts throttled")
)

// LoginFailedError reports a login run that terminated unauthenticated:
// the form was missing, or the final classification after the SSO chain
// still showed a login page. Carries the last observed URL and hop count
// for diagnostics. Never retried automatically.
type LoginFailedError struct {
	LastURL string
	Hops    int
	Reason  string
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf("login failed: %s (last url: %s, hops: %d)", e.Reason, e.LastURL, e.Hops)
}
