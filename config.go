package authsync

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a Reconciler and its surrounding tooling.
//
// Config values are copied into the Reconciler by Builder.Build and treated
// as immutable afterwards.
type Config struct {
	Retry   RetryConfig   `yaml:"retry"`
	Routes  RoutesConfig  `yaml:"routes"`
	Session SessionConfig `yaml:"session"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

/*
====================================
RETRY CONFIG
====================================
*/

// RetryConfig bounds the profile lookup loop run by Initialize. Attempts are
// separated by a constant Delay with no jitter.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig names the locations the guard redirects to.
//
// AuthEntry lists the pages a signed-in visitor is bounced away from when a
// view requires an unauthenticated caller.
type RoutesConfig struct {
	SignIn    string   `yaml:"sign_in"`
	Home      string   `yaml:"home"`
	AuthEntry []string `yaml:"auth_entry"`
}

// IsAuthEntry reports whether path is one of the configured auth-entry pages.
func (r RoutesConfig) IsAuthEntry(path string) bool {
	for _, p := range r.AuthEntry {
		if p == path {
			return true
		}
	}
	return false
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig describes the Redis backend the session and profile stores
// share, and the device name this process subscribes under.
type SessionConfig struct {
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	Device      string        `yaml:"device"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	ProfileDB   string        `yaml:"profile_db"` // sqlite path; empty selects the Redis profile store

	// SigningSecret is the HS256 key shared with the emulated backend.
	// Prefer AUTHSYNC_SIGNING_SECRET over writing it to a file.
	SigningSecret string `yaml:"signing_secret"`

	// SignInLimit caps sessions issued per user within SignInWindow by the
	// demo server. 0 disables the cap.
	SignInLimit  int           `yaml:"sign_in_limit"`
	SignInWindow time.Duration `yaml:"sign_in_window"`
}

/*
====================================
AUDIT / METRICS / LOG CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles the in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LogConfig selects the slog handler built by the CLI.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" (default) or "json"
}

// DefaultConfig returns the configuration the reconciler is specified
// against: three profile attempts 500ms apart.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       500 * time.Millisecond,
		},
		Routes: RoutesConfig{
			SignIn:    "/login",
			Home:      "/",
			AuthEntry: []string{"/login", "/register", "/confirm-email"},
		},
		Session: SessionConfig{
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "qa",
			Device:      "default",
			TokenTTL:    time.Hour,

			SignInLimit:  10,
			SignInWindow: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Routes.AuthEntry = append([]string(nil), cfg.Routes.AuthEntry...)
	return out
}

// Validate rejects configurations the reconciler cannot run with.
func (c *Config) Validate() error {
	// Retry
	if c.Retry.MaxAttempts < 1 {
		return errors.New("Retry MaxAttempts must be >= 1")
	}
	if c.Retry.MaxAttempts > 10 {
		return errors.New("Retry MaxAttempts must be <= 10")
	}
	if c.Retry.Delay < 0 {
		return errors.New("Retry Delay must be >= 0")
	}
	if c.Retry.Delay > 30*time.Second {
		return errors.New("Retry Delay must be <= 30s")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.SignIn, "/") {
		return errors.New("Routes SignIn must be an absolute path")
	}
	if !strings.HasPrefix(c.Routes.Home, "/") {
		return errors.New("Routes Home must be an absolute path")
	}
	for _, p := range c.Routes.AuthEntry {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Routes AuthEntry %q must be an absolute path", p)
		}
	}
	if !c.Routes.IsAuthEntry(c.Routes.SignIn) {
		return errors.New("Routes SignIn must be listed in AuthEntry")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, ": ") {
		return errors.New("Session RedisPrefix must not contain ':' or spaces")
	}
	if strings.TrimSpace(c.Session.Device) == "" {
		return errors.New("Session Device must not be empty")
	}
	if c.Session.TokenTTL <= 0 {
		return errors.New("Session TokenTTL must be > 0")
	}
	if c.Session.SignInLimit < 0 {
		return errors.New("Session SignInLimit must be >= 0")
	}
	if c.Session.SignInLimit > 0 && c.Session.SignInWindow <= 0 {
		return errors.New("Session SignInWindow must be > 0 when SignInLimit is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Log
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("Log Format %q must be text or json", c.Log.Format)
	}

	return nil
}

// LoadConfig reads a YAML file over DefaultConfig and applies environment
// overrides. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AUTHSYNC_REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("AUTHSYNC_SIGNING_SECRET"); v != "" {
		cfg.Session.SigningSecret = v
	}
	if v := os.Getenv("AUTHSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
