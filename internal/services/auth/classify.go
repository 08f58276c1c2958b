package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// classifier decides whether a landed page represents an authenticated
// session. The login automaton and the validity probe share the same rules:
// probing and logging in are both "fetch a page, inspect it" operations.
type classifier struct {
	gateHost   string
	targetHost string
}

func newClassifier(cfg Config) (*classifier, error) {
	gate, err := url.Parse(cfg.GateURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gate URL %q: %w", cfg.GateURL, err)
	}
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL %q: %w", cfg.TargetURL, err)
	}
	if gate.Host == "" || target.Host == "" {
		return nil, fmt.Errorf("gate and target URLs must be absolute")
	}
	return &classifier{
		gateHost:   gate.Host,
		targetHost: target.Host,
	}, nil
}

// Authenticated applies the classification rules:
//  1. landed on the target service -> authenticated;
//  2. landed on the gate outside its login pages, and the markup shows no
//     login affordance -> authenticated (a live gate session is transitively
//     valid for the target service);
//  3. anything else -> unauthenticated.
func (c *classifier) Authenticated(finalURL *url.URL, doc *goquery.Document) bool {
	switch finalURL.Host {
	case c.targetHost:
		return true
	case c.gateHost:
		if strings.Contains(strings.ToLower(finalURL.Path), "login") {
			return false
		}
		return !hasLoginWidget(doc)
	default:
		return false
	}
}

// hasLoginWidget reports whether the page still offers a way to log in.
// The gate renders a #login-dropdown on its anonymous homepage; a form with
// a password input is a login form anywhere.
func hasLoginWidget(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	if doc.Find("#login-dropdown").Length() > 0 {
		return true
	}
	return doc.Find("form input[type='password']").Length() > 0
}
