package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// Automaton walks the portal's SSO login flow: fetch the login form, submit
// credentials, then follow the chain of auto-posting relay forms until an
// authenticated page appears or the hop budget runs out.
//
// The automaton never retries; retry policy belongs to the session manager,
// which can tell a transport fault apart from wrong credentials.
type Automaton struct {
	cfg      Config
	classify *classifier
	logger   arbor.ILogger
}

// NewAutomaton creates a login automaton for the configured portal.
func NewAutomaton(cfg Config, logger arbor.ILogger) (*Automaton, error) {
	if cfg.MaxHops <= 0 {
		return nil, fmt.Errorf("max hops must be positive")
	}
	classify, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	return &Automaton{
		cfg:      cfg,
		classify: classify,
		logger:   logger,
	}, nil
}

// Run performs one complete login attempt with the given client. On success
// the client's jar holds an authenticated cookie set.
func (a *Automaton) Run(ctx context.Context, client *http.Client, username, password string) error {
	doc, pageURL, err := a.fetch(ctx, client, a.cfg.loginURL())
	if err != nil {
		return fmt.Errorf("%w: fetching login form: %v", ErrTransport, err)
	}

	// The login entry point redirects to the dashboard when the jar already
	// carries a live session; nothing to submit then.
	if a.classify.Authenticated(pageURL, doc) {
		a.logger.Info().
			Str("user", username).
			Str("final_url", pageURL.String()).
			Msg("Session already active, skipping credential submission")
		return nil
	}

	form, ok := findLoginForm(doc, pageURL)
	if !ok {
		return &LoginFailedError{
			LastURL: pageURL.String(),
			Reason:  "no login form on gate page",
		}
	}

	form.fillCredentials(username, password)

	doc, pageURL, err = a.submit(ctx, client, form, pageURL)
	if err != nil {
		return fmt.Errorf("%w: submitting credentials: %v", ErrTransport, err)
	}

	hops := 0
	for {
		relay, ok := findForm(doc, pageURL)
		if !ok {
			break
		}
		if hops >= a.cfg.MaxHops {
			return &LoginFailedError{
				LastURL: pageURL.String(),
				Hops:    hops,
				Reason:  "SSO relay budget exhausted",
			}
		}

		a.logger.Debug().
			Str("action", relay.action).
			Int("hop", hops+1).
			Msg("Auto-posting SSO relay form")

		// Relay fields are opaque tokens; re-submit them untouched.
		doc, pageURL, err = a.submit(ctx, client, relay, pageURL)
		if err != nil {
			return fmt.Errorf("%w: SSO relay hop %d: %v", ErrTransport, hops+1, err)
		}
		hops++
	}

	if !a.classify.Authenticated(pageURL, doc) {
		return &LoginFailedError{
			LastURL: pageURL.String(),
			Hops:    hops,
			Reason:  "still unauthenticated after SSO chain",
		}
	}

	a.logger.Info().
		Str("user", username).
		Str("final_url", pageURL.String()).
		Int("hops", hops).
		Msg("Portal login succeeded")
	return nil
}

// fetch GETs a page and parses it. The returned URL is the final one after
// redirects.
func (a *Automaton) fetch(ctx context.Context, client *http.Client, rawURL string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return doc, resp.Request.URL, nil
}

// submit sends a form per its declared method. Referer and Origin are set
// from the page the form was scraped off; the gate rejects credential posts
// that look cross-origin.
func (a *Automaton) submit(ctx context.Context, client *http.Client, form *portalForm, referer *url.URL) (*goquery.Document, *url.URL, error) {
	var req *http.Request
	var err error

	if form.method == "get" {
		actionURL, perr := url.Parse(form.action)
		if perr != nil {
			return nil, nil, perr
		}
		actionURL.RawQuery = form.fields.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, actionURL.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, form.action, strings.NewReader(form.fields.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("Referer", referer.String())
	req.Header.Set("Origin", fmt.Sprintf("%s://%s", referer.Scheme, referer.Host))

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return doc, resp.Request.URL, nil
}
