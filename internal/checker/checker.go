package checker

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/cache"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single probe when the http client config does not set one.
const DefaultTimeout = 30 * time.Second

// maxDrainBytes is how much of a response body is read before closing so the connection can be reused.
const maxDrainBytes = 64 << 10

// Checker probes a URL and classifies the outcome. Transport failures are reported inside the
// result, never as a returned error.
type Checker interface {
	Check(ctx context.Context, url string) model.ReachabilityResult
}

type HttpChecker struct {
	HttpClient  *http.Client
	RateLimiter *rate.Limiter
	UserAgent   string
	Cache       cache.ResultCache
	Metrics     *telemetry.CheckerMetrics
	now         func() time.Time
}

func NewHttpChecker(client *http.Client, cfg *config.CheckerConfig, resultCache cache.ResultCache,
	metrics *telemetry.CheckerMetrics) *HttpChecker {
	return &HttpChecker{
		HttpClient:  client,
		RateLimiter: NewRateLimiter(cfg),
		UserAgent:   cfg.UserAgent,
		Cache:       resultCache,
		Metrics:     metrics,
		now:         time.Now,
	}
}

// NewRateLimiter allows RequestsLimit probes per TimeInterval. A non-positive limit disables limiting.
func NewRateLimiter(cfg *config.CheckerConfig) *rate.Limiter {
	if cfg.RequestsLimit <= 0 || cfg.TimeInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(cfg.TimeInterval/time.Duration(cfg.RequestsLimit)), cfg.RequestsLimit)
}

// NewHttpClient builds the probe client. Redirects are followed so the status of the final
// response is reported.
func NewHttpClient(cfg *config.HttpClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.MaxIdleConnectionsPerHost,
		MaxConnsPerHost:     cfg.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.IdleConnectionTimeout,
		TLSHandshakeTimeout: cfg.TlsHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.DialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TlsInsecureSkipVerify,
		},
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (c *HttpChecker) Check(ctx context.Context, url string) model.ReachabilityResult {
	if c.Cache != nil {
		if cached, ok := c.Cache.GetResult(url); ok {
			slog.Debug("reachability result found in cache.", slog.String("url", url))
			c.count(*cached)
			return *cached
		}
	}

	result := c.probe(ctx, url)
	c.count(result)
	// Only status codes are cached.
	if c.Cache != nil && ctx.Err() == nil && !result.IsError() {
		c.Cache.SetResult(&result)
	}

	return result
}

func (c *HttpChecker) probe(ctx context.Context, url string) model.ReachabilityResult {
	result := model.ReachabilityResult{URL: url}

	if err := c.RateLimiter.Wait(ctx); err != nil {
		result.Error = errorMessage(err)
		result.CheckedAt = c.now()
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Debug("failed to create a request.", slog.String("url", url), slog.String("err", err.Error()))
		result.Error = errorMessage(err)
		result.CheckedAt = c.now()
		return result
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HttpClient.Do(req)
	result.CheckedAt = c.now()
	if err != nil {
		slog.Debug("link is unreachable.", slog.String("url", url), slog.String("err", err.Error()))
		result.Error = errorMessage(err)
		return result
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
		if err = resp.Body.Close(); err != nil {
			slog.Warn("failed to close the response body.", slog.String("err", err.Error()))
		}
	}()

	slog.Debug("link checked.", slog.String("url", url), slog.Int("status code", resp.StatusCode))
	result.StatusCode = resp.StatusCode
	return result
}

func (c *HttpChecker) count(result model.ReachabilityResult) {
	if c.Metrics == nil {
		return
	}
	switch {
	case result.IsError():
		c.Metrics.ErrorCnt(1)
	case result.IsBroken():
		c.Metrics.BrokenCnt(1)
	default:
		c.Metrics.HealthyCnt(1)
	}
}

func errorMessage(err error) string {
	return "Error: " + err.Error()
}
