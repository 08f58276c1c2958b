package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Portal      PortalConfig  `toml:"portal"`
	Session     SessionConfig `toml:"session"`
	Scraper     ScraperConfig `toml:"scraper"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// PortalConfig describes the remote university portal: the SSO gate that
// issues sessions and the academic service that consumes them.
// Durations are Go duration strings ("30s", "5m"), parsed at wiring time.
type PortalConfig struct {
	GateURL        string `toml:"gate_url" validate:"required,url"`   // SSO identity provider root
	LoginPath      string `toml:"login_path"`                         // login entry point on the gate
	TargetURL      string `toml:"target_url" validate:"required,url"` // academic service root
	ProbePath      string `toml:"probe_path"`                         // authenticated-only path used for validity probes
	SchedulePath   string `toml:"schedule_path"`                      // weekly schedule page on the target service
	UserAgent      string `toml:"user_agent"`
	ProxyURL       string `toml:"proxy_url" validate:"omitempty,url"`
	RequestTimeout string `toml:"request_timeout"`
}

// SessionConfig controls the authenticated session manager.
type SessionConfig struct {
	EncryptionKey         string `toml:"encryption_key"` // base64-encoded 32-byte key for credential secrets
	ValidityCheckInterval string `toml:"validity_check_interval"`
	MaxHops               int    `toml:"max_hops" validate:"gt=0"` // auto-post SSO relay budget
	CookieMaxAge          string `toml:"cookie_max_age"`           // staleness window for persisted cookies
	LoginRetries          int    `toml:"login_retries"`            // transport-error retries on top of the first attempt
	RetryBackoff          string `toml:"retry_backoff"`
	LoginsPerMinute       int    `toml:"logins_per_minute"` // per-user cap on full login runs
}

// ScraperConfig controls the daily schedule scrape job.
type ScraperConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression
}

// NewDefaultConfig returns a configuration populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/campusgate",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Portal: PortalConfig{
			GateURL:        "https://gate.dinamika.ac.id",
			LoginPath:      "/login",
			TargetURL:      "https://sicyca.dinamika.ac.id",
			ProbePath:      "/dashboard",
			SchedulePath:   "/akademik",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
		},
		Session: SessionConfig{
			ValidityCheckInterval: "5m",
			MaxHops:               5,
			CookieMaxAge:          "12h",
			LoginRetries:          2,
			RetryBackoff:          "500ms",
			LoginsPerMinute:       3,
		},
		Scraper: ScraperConfig{
			Enabled:  false,
			Schedule: "0 6 * * *",
		},
	}
}

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CAMPUSGATE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CAMPUSGATE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CAMPUSGATE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("CAMPUSGATE_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("CAMPUSGATE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// The encryption key is a secret and normally arrives via environment
	if key := os.Getenv("CAMPUSGATE_ENCRYPTION_KEY"); key != "" {
		config.Session.EncryptionKey = key
	}

	if proxy := os.Getenv("CAMPUSGATE_PROXY_URL"); proxy != "" {
		config.Portal.ProxyURL = proxy
	}
	if gate := os.Getenv("CAMPUSGATE_GATE_URL"); gate != "" {
		config.Portal.GateURL = gate
	}
	if target := os.Getenv("CAMPUSGATE_TARGET_URL"); target != "" {
		config.Portal.TargetURL = target
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints on the configuration
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"portal.request_timeout":          config.Portal.RequestTimeout,
		"session.validity_check_interval": config.Session.ValidityCheckInterval,
		"session.cookie_max_age":          config.Session.CookieMaxAge,
		"session.retry_backoff":           config.Session.RetryBackoff,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", field, err)
		}
	}

	return nil
}

// ParseDuration parses a Go duration string, falling back to def when the
// value is empty or malformed. Validate already rejects malformed values in
// loaded configs, so the fallback only fires for hand-built ones.
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
