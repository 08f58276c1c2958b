package auth

import (
	"time"

	"github.com/aryandika/campusgate/internal/common"
)

// Config carries everything the session manager needs to know about the
// portal and its own caching discipline.
type Config struct {
	GateURL      string // SSO identity provider root
	LoginPath    string // login entry point on the gate
	TargetURL    string // academic service root
	ProbePath    string // authenticated-only path on the target service
	UserAgent    string
	ProxyURL     string
	Timeout      time.Duration // per-call HTTP timeout
	MaxHops      int           // auto-post SSO relay budget
	ValidityCheckInterval time.Duration
	CookieMaxAge          time.Duration // staleness window for persisted cookies
	LoginRetries          int           // transport-error retries beyond the first attempt
	RetryBackoff          time.Duration
	LoginsPerMinute       int // per-user cap on full login runs
}

// ConfigFromApp derives the session manager configuration from the
// application configuration.
func ConfigFromApp(cfg *common.Config) Config {
	return Config{
		GateURL:               cfg.Portal.GateURL,
		LoginPath:             cfg.Portal.LoginPath,
		TargetURL:             cfg.Portal.TargetURL,
		ProbePath:             cfg.Portal.ProbePath,
		UserAgent:             cfg.Portal.UserAgent,
		ProxyURL:              cfg.Portal.ProxyURL,
		Timeout:               common.ParseDuration(cfg.Portal.RequestTimeout, 30*time.Second),
		MaxHops:               cfg.Session.MaxHops,
		ValidityCheckInterval: common.ParseDuration(cfg.Session.ValidityCheckInterval, 5*time.Minute),
		CookieMaxAge:          common.ParseDuration(cfg.Session.CookieMaxAge, 12*time.Hour),
		LoginRetries:          cfg.Session.LoginRetries,
		RetryBackoff:          common.ParseDuration(cfg.Session.RetryBackoff, 500*time.Millisecond),
		LoginsPerMinute:       cfg.Session.LoginsPerMinute,
	}
}

func (c Config) loginURL() string {
	return trimSlash(c.GateURL) + c.LoginPath
}

func (c Config) probeURL() string {
	return trimSlash(c.TargetURL) + c.ProbePath
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
