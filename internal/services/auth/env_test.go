package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// portalEnv is a synthetic two-host portal: an SSO gate that issues a
// session cookie after a credential post, an optional chain of auto-post
// relay forms, and a target service that only serves its dashboard to
// clients carrying the handoff cookie.
type portalEnv struct {
	gate   *httptest.Server
	target *httptest.Server

	validUser string
	validPass string
	chainLen  int

	loginPosts int64
	gateHits   int64
	targetHits int64
}

const (
	envCSRFToken = "tok-777"
	envTicket    = "tkt-1"
)

func newPortalEnv(t *testing.T, chainLen int) *portalEnv {
	t.Helper()

	env := &portalEnv{
		validUser: "191080001",
		validPass: "s3cret",
		chainLen:  chainLen,
	}

	env.target = httptest.NewServer(http.HandlerFunc(env.handleTarget))
	env.gate = httptest.NewServer(http.HandlerFunc(env.handleGate))

	t.Cleanup(func() {
		env.gate.Close()
		env.target.Close()
	})
	return env
}

func (e *portalEnv) config() Config {
	return Config{
		GateURL:               e.gate.URL,
		LoginPath:             "/login",
		TargetURL:             e.target.URL,
		ProbePath:             "/dashboard",
		UserAgent:             "campusgate-test",
		Timeout:               5 * time.Second,
		MaxHops:               5,
		ValidityCheckInterval: time.Hour,
		CookieMaxAge:          12 * time.Hour,
		LoginsPerMinute:       60,
	}
}

func (e *portalEnv) handleGate(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&e.gateHits, 1)

	switch {
	case r.URL.Path == "/login" && r.Method == http.MethodGet:
		if c, err := r.Cookie("gate_session"); err == nil && c.Value == "ok" {
			http.Redirect(w, r, "/home", http.StatusFound)
			return
		}
		fmt.Fprint(w, `<html><body>
			<div id="login-dropdown">Sign in</div>
			<form id="gate-login-form" action="/login" method="post">
				<input type="hidden" name="_token" value="`+envCSRFToken+`"/>
				<input type="text" name="userid"/>
				<input type="password" name="password"/>
			</form>
			</body></html>`)

	case r.URL.Path == "/login" && r.Method == http.MethodPost:
		atomic.AddInt64(&e.loginPosts, 1)
		r.ParseForm()
		if r.PostForm.Get("_token") != envCSRFToken {
			http.Error(w, "csrf token mismatch", http.StatusForbidden)
			return
		}
		if r.PostForm.Get("userid") != e.validUser || r.PostForm.Get("password") != e.validPass {
			fmt.Fprint(w, `<html><body><p>Invalid username or password.</p></body></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "gate_session", Value: "ok", Path: "/"})
		e.relayOrHandoff(w, r, 1)

	case strings.HasPrefix(r.URL.Path, "/relay/") && r.Method == http.MethodPost:
		hop, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/relay/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		if r.PostForm.Get("relay_state") != fmt.Sprintf("st-%d", hop) {
			http.Error(w, "relay state lost", http.StatusForbidden)
			return
		}
		e.relayOrHandoff(w, r, hop+1)

	case r.URL.Path == "/home":
		fmt.Fprint(w, `<html><body><div id="user-menu">`+e.validUser+`</div></body></html>`)

	default:
		http.NotFound(w, r)
	}
}

// relayOrHandoff emits relay form number hop, or redirects to the target
// service once the chain is exhausted.
func (e *portalEnv) relayOrHandoff(w http.ResponseWriter, r *http.Request, hop int) {
	if hop <= e.chainLen {
		fmt.Fprintf(w, `<html><body onload="document.forms[0].submit()">
			<form action="/relay/%d" method="post">
				<input type="hidden" name="relay_state" value="st-%d"/>
			</form>
			</body></html>`, hop, hop)
		return
	}
	http.Redirect(w, r, e.target.URL+"/sso?ticket="+envTicket, http.StatusFound)
}

func (e *portalEnv) handleTarget(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&e.targetHits, 1)

	switch r.URL.Path {
	case "/sso":
		if r.URL.Query().Get("ticket") != envTicket {
			http.Error(w, "bad ticket", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "target_session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/dashboard", http.StatusFound)

	case "/dashboard":
		if c, err := r.Cookie("target_session"); err != nil || c.Value != "ok" {
			http.Redirect(w, r, e.gate.URL+"/login", http.StatusFound)
			return
		}
		fmt.Fprint(w, `<html><body><div class="tabletitle">JADWAL KEGIATAN MINGGU INI</div></body></html>`)

	default:
		http.NotFound(w, r)
	}
}

func (e *portalEnv) loginCount() int64  { return atomic.LoadInt64(&e.loginPosts) }
func (e *portalEnv) totalHits() int64   { return atomic.LoadInt64(&e.gateHits) + atomic.LoadInt64(&e.targetHits) }
