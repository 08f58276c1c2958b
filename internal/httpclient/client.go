// Package httpclient builds the HTTP clients used to talk to the portal:
// fresh clients for new logins and clients rebuilt from persisted cookies.
package httpclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/aryandika/campusgate/internal/models"
)

// Options controls client construction.
type Options struct {
	Timeout   time.Duration
	ProxyURL  string // optional outbound proxy
	UserAgent string
}

// browserTransport decorates every request with browser-shaped headers.
// Several portal endpoints reject requests that do not look like a browser.
type browserTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9,id;q=0.8")
	}
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	return t.base.RoundTrip(req)
}

// New creates an HTTP client with a fresh cookie jar, timeout, optional
// proxy, and browser-shaped default headers.
func New(opts Options) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		Transport: &browserTransport{
			base:      transport,
			userAgent: opts.UserAgent,
		},
	}, nil
}

// NewFromSession rebuilds a client from a persisted cookie set. Cookies are
// grouped by their recorded domain and installed against a URL for that
// domain, so entries from unrelated domains are never merged into one scope.
// The session's captured user agent takes precedence over the configured one.
func NewFromSession(opts Options, session *models.PortalSession) (*http.Client, error) {
	if session.UserAgent != "" {
		opts.UserAgent = session.UserAgent
	}

	client, err := New(opts)
	if err != nil {
		return nil, err
	}

	cookiesByDomain := make(map[string][]*http.Cookie)
	for _, c := range session.Cookies {
		domain := c.BareDomain()
		if domain == "" {
			continue
		}
		cookiesByDomain[domain] = append(cookiesByDomain[domain], c.HTTPCookie())
	}

	for domain, domainCookies := range cookiesByDomain {
		domainURL, err := url.Parse(fmt.Sprintf("https://%s/", domain))
		if err != nil {
			continue
		}
		client.Jar.SetCookies(domainURL, domainCookies)
	}

	return client, nil
}

// SnapshotCookies captures the client's cookies for the given page URLs,
// recording each cookie against the host it was read from. Duplicate
// name/domain pairs collapse to the last value seen.
func SnapshotCookies(client *http.Client, pageURLs ...string) []models.SessionCookie {
	if client.Jar == nil {
		return nil
	}

	seen := make(map[string]int)
	var cookies []models.SessionCookie

	for _, raw := range pageURLs {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, c := range client.Jar.Cookies(u) {
			entry := models.SessionCookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: u.Hostname(),
				Path:   "/",
			}
			key := entry.Name + "|" + entry.Domain
			if i, ok := seen[key]; ok {
				cookies[i] = entry
				continue
			}
			seen[key] = len(cookies)
			cookies = append(cookies, entry)
		}
	}

	return cookies
}
