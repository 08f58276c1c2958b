package models

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookie is one persisted cookie entry. Domain and Path record where
// the cookie was issued so a restored jar never leaks it across unrelated
// domains.
type SessionCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
	Expires  int64  `json:"expires"` // unix seconds, 0 = session cookie
}

// PortalSession is the durable artifact of a successful portal login: the
// cookie set plus the user agent it was captured under. The live HTTP client
// is rebuilt from this on process start.
type PortalSession struct {
	UserID     string          `json:"user_id" badgerhold:"unique"`
	Cookies    []SessionCookie `json:"cookies"`
	UserAgent  string          `json:"user_agent"`
	CapturedAt int64           `json:"captured_at"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// HTTPCookie converts a persisted entry back to a net/http cookie.
// Cookies that expired long ago are downgraded to session cookies so the
// jar does not reject them outright; actual validity is decided by probing.
func (c SessionCookie) HTTPCookie() *http.Cookie {
	var expires time.Time
	if c.Expires > 0 {
		expires = time.Unix(c.Expires, 0)
		if expires.Before(time.Now().Add(-24 * time.Hour)) {
			expires = time.Time{}
		}
	}

	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
}

// BareDomain returns the cookie's domain without a leading dot.
func (c SessionCookie) BareDomain() string {
	return strings.TrimPrefix(c.Domain, ".")
}
