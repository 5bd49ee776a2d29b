package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sitechat/internal/config"
	"github.com/raphaelgruber/sitechat/internal/metrics"
)

// site serves a small link graph and records every request path.
type site struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		s.mu.Unlock()

		body, ok := pages[r.URL.Path]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func page(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><p>Content of %s.</p>", title, title)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func graph() map[string]string {
	return map[string]string{
		"/":      page("Root page", "/a", "/b?ref=nav", "/login", "https://other.com/x", "/c"),
		"/a":     page("Page A", "/a1", "/b#section"),
		"/a1":    page("Page A1", "/"),
		"/b":     page("Page B", "/a"),
		"/login": page("Login"),
	}
}

func newTestCrawler() *Crawler {
	return New(NewHTTPFetcher(5*time.Second, "test"), WithExcludePatterns(config.DefaultExcludePatterns))
}

func pageURLs(base string, paths ...string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = strings.TrimRight(base+p, "/")
	}
	return out
}

func TestCrawl_DepthFirstOrder(t *testing.T) {
	s := newSite(t, graph())

	pages, err := newTestCrawler().Crawl(context.Background(), s.URL, 50, 3)
	require.NoError(t, err)

	var got []string
	for _, p := range pages {
		got = append(got, p.URL)
	}
	assert.Equal(t, pageURLs(s.URL, "/", "/a", "/a1", "/b"), got)
	assert.Equal(t, []string{"/", "/a", "/a1", "/b", "/c"}, s.paths(), "each url fetched once, failing /c last")
}

func TestCrawl_MaxPagesOne(t *testing.T) {
	s := newSite(t, graph())

	pages, err := newTestCrawler().Crawl(context.Background(), s.URL+"/", 1, 3)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, s.URL, pages[0].URL)
	assert.Equal(t, "Root page", pages[0].Title)
	assert.Equal(t, []string{"/"}, s.paths())
}

func TestCrawl_MaxDepth(t *testing.T) {
	s := newSite(t, graph())

	pages, err := newTestCrawler().Crawl(context.Background(), s.URL, 50, 1)
	require.NoError(t, err)

	var got []string
	for _, p := range pages {
		got = append(got, p.URL)
	}
	assert.Equal(t, pageURLs(s.URL, "/", "/a", "/b"), got)
	assert.NotContains(t, s.paths(), "/a1")
}

func TestCrawl_NeverFollowsExcludedOrCrossDomain(t *testing.T) {
	s := newSite(t, graph())

	pages, err := newTestCrawler().Crawl(context.Background(), s.URL, 50, 5)
	require.NoError(t, err)

	assert.NotContains(t, s.paths(), "/login")
	for _, p := range pages {
		assert.True(t, strings.HasPrefix(p.URL, s.URL), p.URL)
	}
}

func TestCrawl_LinksPerPageCap(t *testing.T) {
	pages := map[string]string{"/": page("Hub", "/1", "/2", "/3")}
	for _, p := range []string{"/1", "/2", "/3"} {
		pages[p] = page("Leaf " + p)
	}
	s := newSite(t, pages)

	c := New(NewHTTPFetcher(5*time.Second, "test"), WithLinksPerPage(2))
	got, err := c.Crawl(context.Background(), s.URL, 50, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.NotContains(t, s.paths(), "/3")
}

func TestCrawl_AllPagesFail(t *testing.T) {
	s := newSite(t, map[string]string{})

	pages, err := newTestCrawler().Crawl(context.Background(), s.URL, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestCrawl_Cancelled(t *testing.T) {
	s := newSite(t, graph())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages, err := newTestCrawler().Crawl(ctx, s.URL, 10, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pages)
}

func TestCrawl_RecordsMetrics(t *testing.T) {
	s := newSite(t, graph())
	mc := metrics.NewCollector()

	c := New(NewHTTPFetcher(5*time.Second, "test"), WithExcludePatterns(config.DefaultExcludePatterns), WithMetrics(mc))
	_, err := c.Crawl(context.Background(), s.URL, 50, 3)
	require.NoError(t, err)

	op := mc.Snapshot().Operations[metrics.OpPageFetch]
	require.NotNil(t, op)
	assert.EqualValues(t, 4, op.Count)
	assert.EqualValues(t, 1, op.Errors)
}

func TestNormalizeSeed(t *testing.T) {
	tests := []struct{ in, want string }{
		{"example.com/docs/", "https://example.com/docs"},
		{"  http://Example.com/?utm=1 ", "http://example.com"},
		{"https://example.com/a#b", "https://example.com/a"},
	}
	for _, tt := range tests {
		got, err := NormalizeSeed(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := NormalizeSeed("   ")
	assert.Error(t, err)
}

func TestShouldCrawl(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/docs/intro", true},
		{"https://example.com/login", false},
		{"https://example.com/Admin/users", false},
		{"https://example.com/files/report.PDF", false},
		{"https://example.com/api/v1", false},
		{"mailto:me@example.com", false},
		{"https://example.com/uploads/img", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldCrawl(tt.url, config.DefaultExcludePatterns), tt.url)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "sitechat-test", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<p>ok</p>")
		case "/moved":
			http.Redirect(w, r, "/docs/ok", http.StatusMovedPermanently)
		case "/docs/ok":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<p>moved</p>")
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, "%PDF")
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			fmt.Fprint(w, "late")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(50*time.Millisecond, "sitechat-test")
	ctx := context.Background()

	resp, err := f.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", string(resp.Body))
	assert.Equal(t, srv.URL+"/ok", resp.URL)

	resp, err = f.Fetch(ctx, srv.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, "<p>moved</p>", string(resp.Body))
	assert.Equal(t, srv.URL+"/docs/ok", resp.URL)

	_, err = f.Fetch(ctx, srv.URL+"/pdf")
	assert.ErrorContains(t, err, "unsupported content type")

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")

	_, err = f.Fetch(ctx, srv.URL+"/slow")
	assert.Error(t, err)
}

func TestCrawl_RedirectedPageResolvesLinksAgainstFinalURL(t *testing.T) {
	pages := map[string]string{
		"/":           page("Root page", "/old"),
		"/docs/guide": page("Guide page", "intro"),
		"/docs/intro": page("Intro page"),
	}
	var mu sync.Mutex
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/docs/guide", http.StatusFound)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	got, err := newTestCrawler().Crawl(context.Background(), srv.URL, 10, 3)
	require.NoError(t, err)

	var urls []string
	for _, p := range got {
		urls = append(urls, p.URL)
	}
	assert.Equal(t, pageURLs(srv.URL, "/", "/old", "/docs/intro"), urls, "redirected page keeps the requested URL")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, requests, "/docs/intro")
	assert.NotContains(t, requests, "/intro")
}
