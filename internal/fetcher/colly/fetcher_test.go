package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

func newTestFetcher(maxAttempts int) *Fetcher {
	return New(
		Config{UserAgent: "fipibank-test", Timeout: 5 * time.Second, InsecureSkipVerify: true},
		bank.NewJitterRetryPolicy(maxAttempts, 0, 0),
		nil,
	)
}

func TestFetchRetriesServerErrorThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("proj") != "ABC" {
			t.Errorf("expected query to be forwarded, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(5)
	resp, err := f.Fetch(context.Background(), bank.FetchRequest{
		URL:   srv.URL + "/bank/index.php",
		Query: url.Values{"proj": {"ABC"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", resp.Attempts)
	}
}

func TestFetchRetriesDroppedConnection(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Errorf("response writer cannot hijack")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(5)
	resp, err := f.Fetch(context.Background(), bank.FetchRequest{URL: srv.URL + "/bank/questions.php"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected body: %q", resp.Body)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", hits.Load())
	}
	if resp.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", resp.Attempts)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	_, err := f.Fetch(context.Background(), bank.FetchRequest{URL: srv.URL})
	if !errors.Is(err, bank.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	var fetchErr *bank.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Attempts != 3 {
		t.Fatalf("expected FetchError with 3 attempts, got %#v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", hits.Load())
	}
}

func TestFetchPassesThroughNonRetryableStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer srv.Close()

	f := newTestFetcher(5)
	resp, err := f.Fetch(context.Background(), bank.FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound || string(resp.Body) != "missing" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single request, got %d", hits.Load())
	}
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(
		Config{Timeout: time.Second, InsecureSkipVerify: true},
		bank.NewJitterRetryPolicy(0, time.Hour, time.Hour),
		nil,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, bank.FetchRequest{URL: srv.URL})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, bank.ErrRetriesExhausted) {
		t.Fatal("cancellation must not be reported as exhausted retries")
	}
}

func TestFetchRejectsUntrustedCertificateWhenVerifying(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second}, bank.NewJitterRetryPolicy(1, 0, 0), nil)
	_, err := f.Fetch(context.Background(), bank.FetchRequest{URL: srv.URL})
	if err == nil {
		t.Fatal("expected certificate verification failure")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(1)
	var result bank.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	if hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	body := []byte("body")
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       body,
		Request: &colly.Request{
			URL: mustParseURL(t, "https://ege.fipi.ru/bank"),
		},
	})
	body[0] = 'B'
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.URL != "https://ege.fipi.ru/bank" {
		t.Fatalf("unexpected url: %q", result.URL)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
