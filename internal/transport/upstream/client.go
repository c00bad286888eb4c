// Package upstream is the HTTP client for the upstream search service.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
	"github.com/kailas-cloud/searchgate/internal/domain/search/request"
	"github.com/kailas-cloud/searchgate/internal/domain/search/result"
	"github.com/kailas-cloud/searchgate/internal/metrics"
)

const (
	defaultSelectPath = "/select"
	defaultAuthScheme = "Bearer"
	defaultTimeout    = 8 * time.Second
	maxBodyBytes      = 32 << 20
)

// Config holds the upstream client settings.
type Config struct {
	BaseURL    string
	APIToken   string
	AuthScheme string // "Bearer" unless set
	SelectPath string // "/select" unless set
	Timeout    time.Duration
	// Retries is the number of attempts after the first one.
	Retries int
	// FailFastOnAuth stops after the first 401/403 instead of spending the remaining attempts.
	FailFastOnAuth bool

	DefaultModel   string
	DefaultFilters []string

	RateLimit float64 // attempts per second, 0 = unlimited
	RateBurst int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client queries the upstream search endpoint with per-attempt timeout and bounded retries.
type Client struct {
	endpoint       string
	authHeader     string
	token          string
	timeout        time.Duration
	retries        int
	failFastOnAuth bool
	defaultModel   string
	defaultFilters []string
	limiter        *rate.Limiter
	httpClient        *http.Client
	tracer            trace.Tracer
	logger            *zap.Logger
}

// NewClient creates an upstream client.
func NewClient(cfg *Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errors.Newf("upstream base url must be an absolute http(s) URL, got %q", cfg.BaseURL)
	}
	if cfg.APIToken == "" {
		return nil, errors.New("upstream api token is required")
	}
	if cfg.Retries < 0 {
		return nil, errors.Newf("upstream retries must not be negative, got %d", cfg.Retries)
	}

	selectPath := cfg.SelectPath
	if selectPath == "" {
		selectPath = defaultSelectPath
	}
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = defaultAuthScheme
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		endpoint:       strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.TrimPrefix(selectPath, "/"),
		authHeader:     scheme + " " + cfg.APIToken,
		token:          cfg.APIToken,
		timeout:        timeout,
		retries:        cfg.Retries,
		failFastOnAuth: cfg.FailFastOnAuth,
		defaultModel:   cfg.DefaultModel,
		defaultFilters: append([]string(nil), cfg.DefaultFilters...),
		limiter:        limiter,
		httpClient:     httpClient,
		tracer:         otel.Tracer("searchgate-upstream"),
		logger:         logger,
	}, nil
}

// Search runs the query against the upstream service. Every returned error is a *fault.Error.
func (c *Client) Search(ctx context.Context, req request.Request) (result.Result, error) {
	ctx, span := c.tracer.Start(ctx, "upstream.search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("search.rows", req.Rows()),
			attribute.Int("upstream.max_attempts", c.retries+1),
		),
	)
	defer span.End()

	target := c.endpoint + "?" + c.queryParams(req).Encode()

	var lastErr *fault.Error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		if err := c.wait(ctx); err != nil {
			lastErr = err
			break
		}

		res, ferr := c.attempt(ctx, target, attempt)
		if ferr == nil {
			metrics.UpstreamSearchesTotal.WithLabelValues("ok").Inc()
			span.SetAttributes(attribute.Int("upstream.attempts", attempt))
			span.SetStatus(codes.Ok, "")
			return res, nil
		}
		lastErr = ferr

		c.logger.Warn("upstream attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retries+1),
			zap.String("category", string(ferr.Category)),
			zap.Int("status", ferr.StatusCode),
		)

		if ferr.Category == fault.Auth && c.failFastOnAuth {
			break
		}
	}

	metrics.UpstreamSearchesTotal.WithLabelValues(string(lastErr.Category)).Inc()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, string(lastErr.Category))
	return result.Result{}, lastErr
}

// Ping issues a rows=0 query to check upstream reachability and credentials.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("q", "*:*")
	q.Set("wt", "json")
	q.Set("rows", "0")
	_, ferr := c.attempt(ctx, c.endpoint+"?"+q.Encode(), 1)
	if ferr != nil {
		return ferr
	}
	return nil
}

// queryParams serializes the request. Caller-supplied model and filters replace the defaults.
func (c *Client) queryParams(req request.Request) url.Values {
	q := url.Values{}
	q.Set("q", req.Query())
	q.Set("wt", "json")
	q.Set("rows", strconv.Itoa(req.Rows()))
	if start, ok := req.Start(); ok {
		q.Set("start", strconv.Itoa(start))
	}

	model, ok := req.Model()
	if !ok {
		model = c.defaultModel
	}
	if model != "" {
		q.Set("model", model)
	}

	filters, ok := req.Filters()
	if !ok {
		filters = c.defaultFilters
	}
	for _, fq := range filters {
		q.Add("fq", fq)
	}
	return q
}

// wait blocks on the rate limiter and checks the caller context between attempts.
func (c *Client) wait(ctx context.Context) *fault.Error {
	if err := ctx.Err(); err != nil {
		return contextFault(err)
	}
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contextFault(ctxErr)
		}
		return fault.New(fault.RateLimit, "upstream rate limit would exceed request deadline")
	}
	return nil
}

// attempt performs exactly one network call bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, target string, n int) (result.Result, *fault.Error) {
	ctx, span := c.tracer.Start(ctx, "upstream.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("upstream.attempt", n)),
	)
	defer span.End()

	start := time.Now()
	res, ferr := c.do(ctx, target)

	outcome := "ok"
	if ferr != nil {
		outcome = string(ferr.Category)
		span.RecordError(ferr)
		span.SetStatus(codes.Error, outcome)
		if ferr.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.status_code", ferr.StatusCode))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	metrics.UpstreamAttemptsTotal.WithLabelValues(outcome).Inc()
	metrics.UpstreamAttemptDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return res, ferr
}

func (c *Client) do(parent context.Context, target string) (result.Result, *fault.Error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return result.Result{}, fault.New(fault.Upstream, "failed to build upstream request")
	}
	httpReq.Header.Set("Authorization", c.authHeader)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return result.Result{}, c.transportFault(parent, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return result.Result{}, classifyStatus(resp.StatusCode)
	}

	res, err := decode(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return result.Result{}, c.transportFault(parent, ctx, err)
		}
		return result.Result{}, fault.New(fault.Upstream, "invalid upstream response body")
	}
	return res, nil
}

// transportFault maps a failed round trip: an expired attempt deadline is a timeout.
func (c *Client) transportFault(parent, attemptCtx context.Context, err error) *fault.Error {
	if parent.Err() != nil {
		return contextFault(parent.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fault.Newf(fault.Timeout, "upstream request timed out after %s", c.timeout)
	}

	msg := err.Error()
	var ue *url.Error
	if errors.As(err, &ue) {
		msg = ue.Err.Error()
	}
	return fault.New(fault.Upstream, "upstream request failed: "+fault.Redact(msg, c.token))
}

func contextFault(err error) *fault.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.New(fault.Timeout, "upstream request deadline exceeded")
	}
	return fault.New(fault.Upstream, "upstream request canceled")
}

func classifyStatus(status int) *fault.Error {
	msg := fmt.Sprintf("upstream request failed with status %d", status)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fault.WithStatus(fault.Auth, status, msg)
	case http.StatusTooManyRequests:
		return fault.WithStatus(fault.RateLimit, status, msg)
	default:
		return fault.WithStatus(fault.Upstream, status, msg)
	}
}
