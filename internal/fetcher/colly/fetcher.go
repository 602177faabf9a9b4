// Package collyfetcher implements bank.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/metrics"
)

const defaultTimeout = 60 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// InsecureSkipVerify disables certificate checks; the bank host serves a
	// chain most trust stores reject.
	InsecureSkipVerify bool
}

// Fetcher implements bank.Fetcher on top of a Colly collector and retries
// transient failures according to a bank.RetryPolicy.
type Fetcher struct {
	cfg           Config
	policy        bank.RetryPolicy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil policy falls back to bank.NewDefaultRetryPolicy.
func New(cfg Config, policy bank.RetryPolicy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = bank.NewDefaultRetryPolicy()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := colly.NewCollector(
		colly.Async(false),
		// Retries hit the same URL; the visited store must not block them.
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(0),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))

	return &Fetcher{
		cfg:           cfg,
		policy:        policy,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch issues a GET and retries status 500 and connection failures until the
// policy gives up. Other statuses are returned to the caller as received.
func (f *Fetcher) Fetch(ctx context.Context, request bank.FetchRequest) (bank.FetchResponse, error) {
	target := request.FullURL()
	start := time.Now()
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		resp, err := f.fetchOnce(ctx, target)
		if err == nil && resp.StatusCode == http.StatusInternalServerError {
			err = &bank.StatusError{StatusCode: resp.StatusCode}
		}
		if err == nil {
			resp.Attempts = attempt
			resp.Duration = time.Since(start)
			metrics.ObserveFetch("ok", len(resp.Body))
			f.logger.Debug("fetched page",
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt),
			)
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ObserveFetch("canceled", 0)
			return bank.FetchResponse{}, fmt.Errorf("fetch %s canceled: %w", target, ctxErr)
		}
		if !f.policy.ShouldRetry(err, attempt) {
			if bank.IsTransient(err) {
				metrics.ObserveFetch("exhausted", 0)
				return bank.FetchResponse{}, &bank.FetchError{URL: target, Attempts: attempt, Err: err}
			}
			metrics.ObserveFetch("error", 0)
			return bank.FetchResponse{}, fmt.Errorf("fetch %s: %w", target, err)
		}

		delay := f.policy.Backoff(attempt)
		waited += delay
		metrics.ObserveFetchRetry()
		f.logger.Warn("transient fetch failure, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Duration("waited_total", waited),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			metrics.ObserveFetch("canceled", 0)
			return bank.FetchResponse{}, fmt.Errorf("fetch %s canceled during backoff: %w", target, err)
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) (bank.FetchResponse, error) {
	var (
		result   bank.FetchResponse
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := runCollector(ctx, collector, target, &fetchErr); err != nil {
		return bank.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *bank.FetchResponse, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = bank.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport(insecure bool) *http.Transport {
	transport := &http.Transport{
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
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // bank host chain is not verifiable
	}
	return transport
}

var _ bank.Fetcher = (*Fetcher)(nil)
