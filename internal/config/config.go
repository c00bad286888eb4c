package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Upstream retry bounds.
const (
	DefaultRetries = 1
	MaxRetries     = 5
)

// Config holds the searchgate configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Actions  ActionsConfig  `yaml:"actions"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// UpstreamConfig holds settings for the upstream search service.
type UpstreamConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIToken   string `yaml:"api_token"`
	AuthScheme string `yaml:"auth_scheme"` // Authorization scheme, "Bearer" unless set
	SelectPath string `yaml:"select_path"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	// Retries is the number of attempts after the first one. nil means DefaultRetries.
	Retries        *int `yaml:"retries"`
	FailFastOnAuth bool `yaml:"fail_fast_on_auth"`

	DefaultModel   string   `yaml:"default_model"`
	DefaultFilters []string `yaml:"default_filters"`

	RateLimit float64 `yaml:"rate_limit"` // attempts per second, 0 = unlimited
	RateBurst int     `yaml:"rate_burst"`
}

// ActionsConfig holds settings for the single-shot action endpoints.
type ActionsConfig struct {
	APIKey string `yaml:"api_key"` // empty disables /gpt-actions
}

// SessionsConfig holds session registry settings.
type SessionsConfig struct {
	Store SessionStoreConfig `yaml:"store"`
}

// SessionStoreConfig configures the optional session presence mirror.
type SessionStoreConfig struct {
	Driver           string   `yaml:"driver"` // none, redis, valkey (default: none)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML file path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Upstream.AuthScheme == "" {
		c.Upstream.AuthScheme = "Bearer"
	}
	if c.Upstream.SelectPath == "" {
		c.Upstream.SelectPath = "/select"
	}
	if c.Upstream.TimeoutMs == 0 {
		c.Upstream.TimeoutMs = 8000
	}
	if c.Upstream.Retries == nil {
		r := DefaultRetries
		c.Upstream.Retries = &r
	}
	if c.Upstream.RateLimit > 0 && c.Upstream.RateBurst <= 0 {
		c.Upstream.RateBurst = 1
	}
	if c.Sessions.Store.Driver == "" {
		c.Sessions.Store.Driver = "none"
	}
	if c.Sessions.Store.TTLSec <= 0 {
		c.Sessions.Store.TTLSec = 86400
	}
	if c.Sessions.Store.ReadinessTimeout <= 0 {
		c.Sessions.Store.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an absolute http(s) URL, got %q", c.Upstream.BaseURL)
	}
	if c.Upstream.APIToken == "" {
		return fmt.Errorf("upstream.api_token is required")
	}
	if c.Upstream.TimeoutMs <= 0 {
		return fmt.Errorf("upstream.timeout_ms must be positive, got %d", c.Upstream.TimeoutMs)
	}
	if r := c.Upstream.RetryCount(); r < 0 || r > MaxRetries {
		return fmt.Errorf("upstream.retries must be between 0 and %d, got %d", MaxRetries, r)
	}
	if c.Upstream.RateLimit < 0 {
		return fmt.Errorf("upstream.rate_limit must not be negative, got %g", c.Upstream.RateLimit)
	}
	switch c.Sessions.Store.Driver {
	case "none":
		// ok
	case "redis", "valkey":
		if len(c.Sessions.Store.Addrs) == 0 {
			return fmt.Errorf("sessions.store.addrs is required for driver %q", c.Sessions.Store.Driver)
		}
	default:
		return fmt.Errorf(
			"sessions.store.driver must be \"none\", \"redis\" or \"valkey\", got %q",
			c.Sessions.Store.Driver,
		)
	}
	return nil
}

// RetryCount returns the configured retry count.
func (u UpstreamConfig) RetryCount() int {
	if u.Retries == nil {
		return DefaultRetries
	}
	return *u.Retries
}

// Timeout returns the per-attempt upstream timeout.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutMs) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
