package auth

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Field-name heuristics for the login form. The portal's form is scraped,
// not specified, so identity and secret inputs are located by trying a
// fixed ordered list of candidate names; the first structural match wins
// and only that field is overwritten.
var (
	userFieldCandidates     = []string{"userid", "username", "user", "email", "nim", "identity", "login"}
	passwordFieldCandidates = []string{"password", "pass", "passwd", "pwd"}
)

// portalForm is one HTML form lifted off a portal page, with its action
// resolved against the page URL.
type portalForm struct {
	action string
	method string // "get" or "post"
	fields url.Values

	firstTextInput     string
	firstPasswordInput string
}

// findLoginForm locates the gate's login form: the known form IDs first
// (the gate has a primary and an alternate-ID variant), then the first
// form on the page.
func findLoginForm(doc *goquery.Document, pageURL *url.URL) (*portalForm, bool) {
	for _, selector := range []string{"form#gate-login-form", "form#gate-login-form-2"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return extractForm(sel, pageURL), true
		}
	}
	return findForm(doc, pageURL)
}

// findForm returns the first form on the page. SSO relay pages contain at
// most one auto-submitting form of opaque hidden fields.
func findForm(doc *goquery.Document, pageURL *url.URL) (*portalForm, bool) {
	sel := doc.Find("form").First()
	if sel.Length() == 0 {
		return nil, false
	}
	return extractForm(sel, pageURL), true
}

// extractForm collects every named input verbatim so hidden CSRF and SSO
// state tokens survive resubmission untouched.
func extractForm(sel *goquery.Selection, pageURL *url.URL) *portalForm {
	form := &portalForm{
		method: "post",
		fields: url.Values{},
	}

	if method, ok := sel.Attr("method"); ok && method != "" {
		if m := normalizeMethod(method); m != "" {
			form.method = m
		}
	}

	action := pageURL.String()
	if attr, ok := sel.Attr("action"); ok && attr != "" {
		if resolved, err := pageURL.Parse(attr); err == nil {
			action = resolved.String()
		}
	}
	form.action = action

	sel.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := input.Attr("value")
		form.fields.Set(name, value)

		inputType, _ := input.Attr("type")
		switch inputType {
		case "password":
			if form.firstPasswordInput == "" {
				form.firstPasswordInput = name
			}
		case "text", "":
			if form.firstTextInput == "" {
				form.firstTextInput = name
			}
		}
	})

	return form
}

func normalizeMethod(method string) string {
	switch method {
	case "get", "GET", "Get":
		return "get"
	case "post", "POST", "Post":
		return "post"
	default:
		return ""
	}
}

// fillCredentials writes the username and password into the form. The first
// candidate name present in the form wins; when none matches, the form's
// first text/password input is used; as a last resort a conventional field
// is injected. All other fields keep their scraped values.
func (f *portalForm) fillCredentials(username, password string) {
	if !setFirstMatch(f.fields, userFieldCandidates, username) {
		if f.firstTextInput != "" {
			f.fields.Set(f.firstTextInput, username)
		} else {
			f.fields.Set("username", username)
		}
	}

	if !setFirstMatch(f.fields, passwordFieldCandidates, password) {
		if f.firstPasswordInput != "" {
			f.fields.Set(f.firstPasswordInput, password)
		} else {
			f.fields.Set("password", password)
		}
	}
}

func setFirstMatch(fields url.Values, candidates []string, value string) bool {
	for _, name := range candidates {
		if _, ok := fields[name]; ok {
			fields.Set(name, value)
			return true
		}
	}
	return false
}
