package searchgate

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	baseURL    string
	token      string
	authScheme string
	selectPath string

	timeout        time.Duration
	retries        int
	failFastOnAuth bool

	defaultModel   string
	defaultFilters []string

	httpClient *http.Client
	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithUpstream sets the upstream base URL and its API token. Required.
func WithUpstream(baseURL, token string) Option {
	return optionFunc(func(c *clientConfig) {
		c.baseURL = baseURL
		c.token = token
	})
}

// WithAuthScheme overrides the Authorization scheme. Default: "Bearer".
func WithAuthScheme(scheme string) Option {
	return optionFunc(func(c *clientConfig) {
		c.authScheme = scheme
	})
}

// WithSelectPath overrides the upstream query path. Default: "/select".
func WithSelectPath(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.selectPath = path
	})
}

// WithTimeout sets the per-attempt timeout. Default: 8s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithRetries sets the number of attempts after the first one. Default: 1.
func WithRetries(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.retries = n
	})
}

// WithFailFastOnAuth stops at the first 401/403 response.
// By default auth failures are retried like any other failure.
func WithFailFastOnAuth() Option {
	return optionFunc(func(c *clientConfig) {
		c.failFastOnAuth = true
	})
}

// WithDefaults sets the ranking model and filter queries applied when a request omits them.
// Request values replace these, they are never merged.
func WithDefaults(model string, filters ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultModel = model
		c.defaultFilters = filters
	})
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
