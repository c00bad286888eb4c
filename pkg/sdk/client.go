package searchgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
	"github.com/kailas-cloud/searchgate/internal/domain/search/request"
	"github.com/kailas-cloud/searchgate/internal/domain/search/result"
	"github.com/kailas-cloud/searchgate/internal/transport/upstream"
)

const defaultRetries = 1

// Internal interface for substitution in tests.
type searcher interface {
	Search(ctx context.Context, req request.Request) (result.Result, error)
	Ping(ctx context.Context) error
}

// Client is the searchgate SDK entry point.
type Client struct {
	upstream searcher
	token    string
	obs      *observer
}

// New creates a Client. WithUpstream is required.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{retries: defaultRetries}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.baseURL == "" || cfg.token == "" {
		return nil, errors.New("searchgate: upstream base URL and token required (use WithUpstream)")
	}

	up, err := upstream.NewClient(&upstream.Config{
		BaseURL:        cfg.baseURL,
		APIToken:       cfg.token,
		AuthScheme:     cfg.authScheme,
		SelectPath:     cfg.selectPath,
		Timeout:        cfg.timeout,
		Retries:        cfg.retries,
		FailFastOnAuth: cfg.failFastOnAuth,
		DefaultModel:   cfg.defaultModel,
		DefaultFilters: cfg.defaultFilters,
		HTTPClient:     cfg.httpClient,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		return nil, fmt.Errorf("searchgate: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return &Client{upstream: up, token: cfg.token, obs: obs}, nil
}

// Search validates req and queries the upstream service.
// A non-nil error is always an *Error with one of the five categories.
func (c *Client) Search(ctx context.Context, req SearchRequest) (res *SearchResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	r, err := request.New(request.Params{
		Query:   req.Query,
		Rows:    req.Rows,
		Start:   req.Start,
		Model:   req.Model,
		Filters: req.Filters,
	})
	if err != nil {
		return nil, fault.Classify(err, c.token)
	}

	out, err := c.upstream.Search(ctx, r)
	if err != nil {
		return nil, fault.Classify(err, c.token)
	}

	docs := make([]map[string]any, len(out.Documents()))
	for i, d := range out.Documents() {
		docs[i] = d
	}
	return &SearchResult{Documents: docs, Total: out.Total(), TookMs: out.TookMs()}, nil
}

// Ping sends a zero-row query to the upstream service.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.upstream.Ping(ctx); err != nil {
		return fault.Classify(err, c.token)
	}
	return nil
}
