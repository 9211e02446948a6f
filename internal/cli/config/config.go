package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yndnr/dinegate/internal/auth/gate"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/infra/tlsroots"
	"github.com/yndnr/dinegate/internal/storage"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// Config is the configuration for dinegate-cli.
type Config struct {
	API     APIConfig     `koanf:"api" yaml:"api" json:"api"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth" json:"auth"`
	Storage StorageConfig `koanf:"storage" yaml:"storage" json:"storage"`
	Log     LogConfig     `koanf:"log" yaml:"log" json:"log"`
	Health  HealthConfig  `koanf:"health" yaml:"health" json:"health"`
	Output  string        `koanf:"output" yaml:"output" json:"output"` // table, json, yaml
}

// APIConfig configures the backend client.
type APIConfig struct {
	BaseURL   string        `koanf:"base_url" yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `koanf:"timeout" yaml:"timeout" json:"timeout"`
	RateLimit float64       `koanf:"rate_limit" yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 disables
	Burst     int           `koanf:"burst" yaml:"burst" json:"burst"`

	// TLS material for https backends. Empty fields use the system roots
	// and no client certificate.
	CAFile     string `koanf:"ca_file" yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	ClientCert string `koanf:"client_cert" yaml:"client_cert,omitempty" json:"client_cert,omitempty"`
	ClientKey  string `koanf:"client_key" yaml:"client_key,omitempty" json:"client_key,omitempty"`
}

// AuthConfig configures the gate and the session lifecycle.
type AuthConfig struct {
	PollInterval     time.Duration `koanf:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	WarningThreshold time.Duration `koanf:"warning_threshold" yaml:"warning_threshold" json:"warning_threshold"`
	RedirectDelay    time.Duration `koanf:"redirect_delay" yaml:"redirect_delay" json:"redirect_delay"`
	LoginPath        string        `koanf:"login_path" yaml:"login_path" json:"login_path"`
	PublicPaths      []string      `koanf:"public_paths" yaml:"public_paths" json:"public_paths"`
}

// StorageConfig selects the local credential store.
type StorageConfig struct {
	Engine     string `koanf:"engine" yaml:"engine" json:"engine"` // memory, badger
	Dir        string `koanf:"dir" yaml:"dir" json:"dir"`
	Passphrase string `koanf:"passphrase" yaml:"passphrase,omitempty" json:"passphrase,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}

// HealthConfig configures the backend health monitor.
type HealthConfig struct {
	Interval time.Duration `koanf:"interval" yaml:"interval" json:"interval"`
}

// Home returns the dinegate directory in the user's home.
func Home() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		homeDir = os.TempDir()
	}
	return filepath.Join(homeDir, ".dinegate")
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	return filepath.Join(Home(), "cli.yaml")
}

// Default returns the default CLI configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8080/api",
			Timeout:   10 * time.Second,
			RateLimit: 20,
			Burst:     10,
		},
		Auth: AuthConfig{
			PollInterval:     60 * time.Second,
			WarningThreshold: 15 * time.Minute,
			RedirectDelay:    time.Second,
			LoginPath:        "/auth/login",
			PublicPaths:      append([]string(nil), gate.DefaultPublicPaths...),
		},
		Storage: StorageConfig{
			Engine: storage.EngineBadger,
			Dir:    filepath.Join(Home(), "data"),
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Health: HealthConfig{
			Interval: 60 * time.Second,
		},
		Output: OutputTable,
	}
}

// defaultsMap flattens Default into dotted keys for the loader.
func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"api.base_url":           d.API.BaseURL,
		"api.timeout":            d.API.Timeout,
		"api.rate_limit":         d.API.RateLimit,
		"api.burst":              d.API.Burst,
		"auth.poll_interval":     d.Auth.PollInterval,
		"auth.warning_threshold": d.Auth.WarningThreshold,
		"auth.redirect_delay":    d.Auth.RedirectDelay,
		"auth.login_path":        d.Auth.LoginPath,
		"auth.public_paths":      d.Auth.PublicPaths,
		"storage.engine":         d.Storage.Engine,
		"storage.dir":            d.Storage.Dir,
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
		"health.interval":        d.Health.Interval,
		"output":                 d.Output,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("api.base_url %q is not an http(s) URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		return domain.ErrInvalidArgument.WithDetails("api.timeout must be positive")
	}
	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		return domain.ErrInvalidArgument.WithDetails("api.rate_limit and api.burst must not be negative")
	}
	if (c.API.ClientCert == "") != (c.API.ClientKey == "") {
		return domain.ErrInvalidArgument.WithDetails("api.client_cert and api.client_key must be set together")
	}

	if c.Auth.PollInterval <= 0 {
		return domain.ErrInvalidArgument.WithDetails("auth.poll_interval must be positive")
	}
	if c.Auth.WarningThreshold <= 0 {
		return domain.ErrInvalidArgument.WithDetails("auth.warning_threshold must be positive")
	}
	if c.Auth.RedirectDelay < 0 {
		return domain.ErrInvalidArgument.WithDetails("auth.redirect_delay must not be negative")
	}
	if !strings.HasPrefix(c.Auth.LoginPath, "/") {
		return domain.ErrInvalidArgument.WithDetails("auth.login_path must be an absolute path")
	}

	switch c.Storage.Engine {
	case storage.EngineMemory:
	case storage.EngineBadger:
		if c.Storage.Dir == "" {
			return domain.ErrInvalidArgument.WithDetails("storage.dir is required for the badger engine")
		}
	default:
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown storage.engine %q", c.Storage.Engine))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}

	if c.Health.Interval <= 0 {
		return domain.ErrInvalidArgument.WithDetails("health.interval must be positive")
	}

	switch c.Output {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown output format %q", c.Output))
	}
	return nil
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Config {
	cfg := storage.DefaultConfig(c.Storage.Dir)
	cfg.Engine = c.Storage.Engine
	cfg.Passphrase = c.Storage.Passphrase
	return cfg
}

// TLSOptions converts the TLS fields of the api section.
func (c *Config) TLSOptions() tlsroots.Options {
	return tlsroots.Options{
		CAFile:   c.API.CAFile,
		CertFile: c.API.ClientCert,
		KeyFile:  c.API.ClientKey,
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Auth.PublicPaths = append([]string(nil), c.Auth.PublicPaths...)
	if out.Storage.Passphrase != "" {
		out.Storage.Passphrase = "[REDACTED]"
	}
	return &out
}
