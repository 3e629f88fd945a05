package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/echigo-image-server/internal/resolver"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent"})
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
	require.Equal(t, defaultMaxBodySize, f.cfg.MaxBodySize)
	require.Equal(t, "coverage-agent", f.baseCollector.UserAgent)
	require.True(t, f.baseCollector.AllowURLRevisit)
	require.True(t, f.baseCollector.ParseHTTPErrorResponse)
}

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", AllowedDomains: []string{"example.com"}})
	ctx := context.Background()

	collector := f.buildCollector(ctx)
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.Equal(t, []string{"example.com"}, collector.AllowedDomains)
	require.Equal(t, ctx, collector.Context)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := resolver.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	start := time.Unix(0, 0)
	var result resolver.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com"),
		},
	})
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Headers.Get("X-Resp") != "ok" {
		t.Fatalf("expected headers copied, got %+v", result.Headers)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(resolver.FetchRequest{}, collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func TestCopyHeadersReplacesExisting(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{"User-Agent": {"colly"}}}
	f.copyHeaders(resolver.FetchRequest{Headers: http.Header{"User-Agent": {"browser"}}}, collyReq)
	require.Equal(t, []string{"browser"}, collyReq.Headers.Values("User-Agent"))
}

func TestFetchReturnsBodyAndSendsUserAgent(t *testing.T) {
	t.Parallel()

	uaCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uaCh <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><body>ok</body></html>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: resolver.UserAgent, Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: srv.URL + "/view/item/1"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "ok")
	require.False(t, resp.Truncated)
	require.Equal(t, resolver.UserAgent, <-uaCh)
}

func TestFetchFlagsBodyCutAtSizeCap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, strings.Repeat("a", 4096))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{MaxBodySize: 1024, Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, resp.Body, 1024)
	require.True(t, resp.Truncated)
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "<html></html>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: srv.URL})
		require.NoError(t, err, "attempt %d", i+1)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   string
	}{
		{"not found", http.StatusNotFound, "404 Client Error: Not Found for url: "},
		{"server error", http.StatusBadGateway, "502 Server Error: Bad Gateway for url: "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			t.Cleanup(srv.Close)

			f := New(Config{Timeout: 2 * time.Second})
			_, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: srv.URL + "/x"})
			require.Error(t, err)
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, tc.status, statusErr.StatusCode)
			require.Contains(t, err.Error(), tc.want)
			require.Contains(t, err.Error(), srv.URL+"/x")
		})
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: addr})
	require.Error(t, err)
}

func TestFetchRejectsDisallowedDomain(t *testing.T) {
	t.Parallel()

	f := New(Config{AllowedDomains: []string{"www.echigo.sake-harasho.com"}})
	_, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: "http://127.0.0.1:1/"})
	require.ErrorIs(t, err, colly.ErrForbiddenDomain)
}

func TestFetchBlocksRedirectOffAllowedHost(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "internal")
	}))
	t.Cleanup(target.Close)
	targetURL := mustParseURL(t, target.URL)
	targetURL.Host = "localhost:" + targetURL.Port()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, targetURL.String(), http.StatusFound)
	}))
	t.Cleanup(redirector.Close)

	f := New(Config{AllowedDomains: []string{"127.0.0.1"}, Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: redirector.URL})
	require.Error(t, err)
}

func TestFetchFollowsRedirectBetweenAllowedHosts(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "product page")
	}))
	t.Cleanup(target.Close)
	targetURL := mustParseURL(t, target.URL)
	targetURL.Host = "localhost:" + targetURL.Port()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, targetURL.String(), http.StatusMovedPermanently)
	}))
	t.Cleanup(redirector.Close)

	f := New(Config{AllowedDomains: []string{"127.0.0.1", "localhost"}, Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), resolver.FetchRequest{URL: redirector.URL})
	require.NoError(t, err)
	require.Equal(t, "product page", string(resp.Body))
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, resolver.FetchRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestStatusErrorUnexpectedClass(t *testing.T) {
	t.Parallel()

	err := &StatusError{StatusCode: http.StatusNotModified, URL: "https://example.com"}
	require.Equal(t, "304 Unexpected Status: Not Modified for url: https://example.com", err.Error())
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
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
