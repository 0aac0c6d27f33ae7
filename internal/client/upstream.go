// Package client provides the upstream HTTP client for the Binance API.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"binance-proxy-go/internal/config"
	"binance-proxy-go/internal/metrics"
	"binance-proxy-go/internal/model"
)

// TransportError reports a failure to reach the upstream or to receive its
// response headers: DNS, refused connections, TLS, timeouts and cancellation.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamClient sends requests to the upstream API.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	slots      *semaphore.Weighted // nil when concurrency is unbounded
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// A zero upstream timeout leaves requests unbounded in time and a zero
// max_concurrent leaves them unbounded in number.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
	if cfg.Upstream.MaxConcurrent > 0 {
		c.slots = semaphore.NewWeighted(cfg.Upstream.MaxConcurrent)
	}
	return c
}

// Get issues a GET for target with exactly the given headers.
// The caller is responsible for closing the response body.
// The context controls the lifetime of the upstream request: when it is
// canceled (e.g. client disconnects), the upstream request is also canceled.
func (c *UpstreamClient) Get(ctx context.Context, target string, header http.Header) (*model.ForwardResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}

// Do executes an HTTP request against the upstream and returns the raw response.
// Failures to obtain a response are returned as *TransportError.
// The caller is responsible for closing the response body, which also frees
// the request's concurrency slot.
func (c *UpstreamClient) Do(req *http.Request) (*model.ForwardResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	release, err := c.acquire(req.Context())
	if err != nil {
		c.countError()
		return nil, &TransportError{Err: fmt.Errorf("wait for upstream slot: %w", err)}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ForwardResponse
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(duration)
	}

	if err != nil {
		release()
		c.countError()
		return nil, &TransportError{Err: err}
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		c.metrics.UpstreamInFlight.Inc()
	}

	return &model.ForwardResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body: &releasingBody{
			ReadCloser: resp.Body,
			release: func() {
				if c.metrics != nil {
					c.metrics.UpstreamInFlight.Dec()
				}
				release()
			},
		},
	}, nil
}

// acquire blocks until a concurrency slot is free or ctx ends.
func (c *UpstreamClient) acquire(ctx context.Context) (func(), error) {
	if c.slots == nil {
		return func() {}, nil
	}
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.slots.Release(1) }, nil
}

func (c *UpstreamClient) countError() {
	if c.metrics != nil {
		c.metrics.UpstreamErrors.Inc()
	}
}

// CloseIdleConnections closes pooled upstream connections.
func (c *UpstreamClient) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// releasingBody runs release exactly once, on the first Close.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
