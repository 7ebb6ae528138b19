package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	platformstrings "authgate/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devSessionSecret = "dev-session-secret-change-in-production"
)

// Config is the full gateway configuration. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	Env      string         `yaml:"env"`
	Server   Server         `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Provider ProviderConfig `yaml:"provider"`
	Session  SessionConfig  `yaml:"session"`
	Hosted   HostedConfig   `yaml:"hosted"`
	Redis    RedisConfig    `yaml:"redis"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig points at the web application and the backend API.
type UpstreamConfig struct {
	AppURL     string        `yaml:"app_url"`
	BackendURL string        `yaml:"backend_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ProviderConfig controls provider resolution.
type ProviderConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// SessionConfig controls the session cookies and the navigation gate.
type SessionConfig struct {
	Secret      string        `yaml:"secret"`
	MaxAge      time.Duration `yaml:"max_age"`
	SignInPath  string        `yaml:"sign_in_path"`
	PublicPaths []string      `yaml:"public_paths"`
}

// HostedConfig configures the hosted OIDC provider. It is only used when the
// backend reports the hosted provider.
type HostedConfig struct {
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	CookieName   string   `yaml:"cookie_name"`
}

// Enabled reports whether enough hosted configuration exists to build a provider.
func (h HostedConfig) Enabled() bool {
	return h.Issuer != "" && h.ClientID != ""
}

// RedisConfig backs the logout revocation list. Empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuditConfig selects where audit events go. Every configured sink receives
// each event; with none set events stay in memory.
type AuditConfig struct {
	DatabaseURL  string   `yaml:"database_url"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	BufferSize   int      `yaml:"buffer_size"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IsProduction reports whether production hardening (secure cookies, required
// secrets) applies.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Env: EnvDevelopment,
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Upstream: UpstreamConfig{
			AppURL:     "http://localhost:3000",
			BackendURL: "http://localhost:8000",
			Timeout:    10 * time.Second,
		},
		Provider: ProviderConfig{
			TTL:          300 * time.Second,
			ProbeTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			MaxAge:      30 * 24 * time.Hour,
			SignInPath:  "/sign-in",
			PublicPaths: []string{"/sign-in", "/sign-up"},
		},
		Hosted: HostedConfig{
			Scopes:     []string{"openid", "profile", "email"},
			CookieName: "hosted_session",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			KafkaTopic: "authgate.audit",
			BufferSize: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FromEnv loads configuration using AUTHGATE_CONFIG as the optional file path.
func FromEnv() (Config, error) {
	return Load(os.Getenv("AUTHGATE_CONFIG"))
}

// Load builds a Config from defaults, the YAML file at path (if any) and the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("AUTHGATE_ENV", &cfg.Env)
	str("AUTHGATE_ADDR", &cfg.Server.Addr)
	str("AUTHGATE_UPSTREAM_URL", &cfg.Upstream.AppURL)
	str("AUTHGATE_BACKEND_URL", &cfg.Upstream.BackendURL)
	str("AUTHGATE_SESSION_SECRET", &cfg.Session.Secret)
	str("AUTHGATE_SIGN_IN_PATH", &cfg.Session.SignInPath)
	list("AUTHGATE_PUBLIC_PATHS", &cfg.Session.PublicPaths)
	str("AUTHGATE_HOSTED_ISSUER", &cfg.Hosted.Issuer)
	str("AUTHGATE_HOSTED_CLIENT_ID", &cfg.Hosted.ClientID)
	str("AUTHGATE_HOSTED_CLIENT_SECRET", &cfg.Hosted.ClientSecret)
	str("AUTHGATE_HOSTED_REDIRECT_URL", &cfg.Hosted.RedirectURL)
	str("AUTHGATE_REDIS_URL", &cfg.Redis.URL)
	str("AUTHGATE_DATABASE_URL", &cfg.Audit.DatabaseURL)
	list("AUTHGATE_KAFKA_BROKERS", &cfg.Audit.KafkaBrokers)
	str("AUTHGATE_KAFKA_TOPIC", &cfg.Audit.KafkaTopic)
	str("AUTHGATE_LOG_LEVEL", &cfg.Log.Level)
	str("AUTHGATE_LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("AUTHGATE_AUDIT_BUFFER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse AUTHGATE_AUDIT_BUFFER: %w", err)
		}
		cfg.Audit.BufferSize = n
	}

	return errors.Join(
		dur("AUTHGATE_PROVIDER_TTL", &cfg.Provider.TTL),
		dur("AUTHGATE_PROBE_TIMEOUT", &cfg.Provider.ProbeTimeout),
		dur("AUTHGATE_UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout),
		dur("AUTHGATE_SESSION_MAX_AGE", &cfg.Session.MaxAge),
	)
}

func (c *Config) finalize() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if c.Session.Secret == "" {
		if c.IsProduction() {
			return errors.New("AUTHGATE_SESSION_SECRET is required in production")
		}
		c.Session.Secret = devSessionSecret
	}
	if c.IsProduction() && len(c.Session.Secret) < 32 {
		return errors.New("session secret must be at least 32 bytes in production")
	}
	if c.Upstream.BackendURL == "" {
		return errors.New("backend url is required")
	}
	if c.Provider.TTL <= 0 {
		return errors.New("provider ttl must be positive")
	}
	if c.Session.MaxAge <= 0 {
		return errors.New("session max age must be positive")
	}
	if !strings.HasPrefix(c.Session.SignInPath, "/") {
		return fmt.Errorf("sign-in path %q must be absolute", c.Session.SignInPath)
	}
	return nil
}

func splitList(v string) []string {
	return platformstrings.DedupeAndTrim(strings.Split(v, ","))
}
