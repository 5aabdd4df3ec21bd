// Package fetcher performs bounded single-URL retrievals with retry using
// gocolly.
package fetcher

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/lumira/research-crawler/internal/pipeline"
	"github.com/lumira/research-crawler/internal/telemetry"
)

// Config controls fetch behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Fetcher implements pipeline.Fetcher. Transient failures (timeouts,
// connection resets, 5xx) are retried with jittered exponential backoff up
// to MaxRetries; 4xx responses are permanent. Exhausting retries is never
// fatal to the run: the FetchResult carries the error and the last status.
type Fetcher struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 5 * time.Second
	}

	// NewCollector is synchronous by default; colly v2.1.0's Async option
	// ignores its argument (Async(false) would enable async mode), so the
	// default is relied on instead of passing the option.
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	// Retries re-visit the same URL, so the visited-URL check must be off.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, base: c, logger: logger}
}

// Fetch retrieves one URL, retrying transient failures. The returned error,
// when non-nil, matches the FetchResult's Err.
func (f *Fetcher) Fetch(ctx context.Context, desc pipeline.SourceDescriptor) (pipeline.FetchResult, error) {
	site := pipeline.TargetKey(desc.URL)
	result := pipeline.FetchResult{Descriptor: desc}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		start := time.Now()
		body, contentType, status, err := f.fetchOnce(ctx, desc.URL)
		elapsed := time.Since(start)

		result.HTTPStatus = status
		result.Duration += elapsed
		result.Attempts = attempt + 1

		if err == nil {
			result.RawBytes = body
			result.ContentType = contentType
			telemetry.ObserveFetchAttempt(site, "success", len(body), elapsed)
			return result, nil
		}
		telemetry.ObserveFetchAttempt(site, "error", 0, elapsed)
		lastErr = err

		if !pipeline.IsTransient(err) || ctx.Err() != nil {
			break
		}
		if attempt == f.cfg.MaxRetries {
			break
		}

		wait := f.backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", desc.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			result.Err = fmt.Errorf("fetch canceled: %w", ctx.Err())
			return result, result.Err
		case <-time.After(wait):
		}
	}

	result.Err = lastErr
	return result, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (body []byte, contentType string, status int, err error) {
	collector := f.base.Clone()
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		respBody   []byte
		respType   string
		respStatus int
		respErr    error
	)
	collector.OnResponse(func(r *colly.Response) {
		respStatus = r.StatusCode
		respType = r.Headers.Get("Content-Type")
		respBody = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, cbErr error) {
		if r != nil {
			respStatus = r.StatusCode
		}
		respErr = cbErr
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The visit goroutine may still be running its callbacks; the
		// captured variables must not be read on this branch.
		return nil, "", 0, &pipeline.TransientFetchError{
			Err: fmt.Errorf("fetch canceled: %w", ctx.Err()),
		}
	case visitErr := <-done:
		if respErr == nil && visitErr != nil {
			respErr = visitErr
		}
	}

	if respErr != nil {
		return nil, "", respStatus, classify(respStatus, respErr)
	}
	return respBody, respType, respStatus, nil
}

// classify sorts a fetch failure into the retryable or permanent class.
func classify(status int, err error) error {
	if status >= 400 && status < 500 {
		return &pipeline.PermanentFetchError{Status: status, Err: err}
	}
	// 5xx and network-level failures (timeouts, resets, refused
	// connections) are all worth another attempt.
	return &pipeline.TransientFetchError{Status: status, Err: err}
}

// backoff returns base*2^attempt capped at max, jittered to half-fixed,
// half-random.
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := f.cfg.BackoffInitial << uint(attempt)
	if delay > f.cfg.BackoffMax || delay <= 0 {
		delay = f.cfg.BackoffMax
	}
	half := delay / 2
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
