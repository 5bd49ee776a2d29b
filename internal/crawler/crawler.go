// Package crawler acquires page content: a bounded same-site website crawl and
// text extraction from uploaded files.
package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/parser"
)

// DefaultLinksPerPage is how many links of a page are considered for expansion.
const DefaultLinksPerPage = 10

// ErrExtraction marks a page or file that could not be fetched or parsed.
var ErrExtraction = errors.New("extraction failed")

// Crawler walks a website depth-first. It holds no per-crawl state, so one
// Crawler may serve concurrent crawls.
type Crawler struct {
	fetcher      Fetcher
	exclude      []string
	linksPerPage int
	log          *slog.Logger
	metrics      *metrics.Collector
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithExcludePatterns replaces the link exclusion patterns.
func WithExcludePatterns(patterns []string) Option {
	return func(c *Crawler) { c.exclude = patterns }
}

// WithLinksPerPage sets how many links per page are considered.
func WithLinksPerPage(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.linksPerPage = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Crawler) { c.log = log }
}

// WithMetrics records page fetch timings.
func WithMetrics(mc *metrics.Collector) Option {
	return func(c *Crawler) { c.metrics = mc }
}

// New creates a crawler that fetches pages through fetcher.
func New(fetcher Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:      fetcher,
		linksPerPage: DefaultLinksPerPage,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type task struct {
	url   string
	depth int
}

// Crawl collects up to maxPages pages reachable from seed within maxDepth
// link hops. The traversal order matches recursive depth-first expansion: the
// first link of a page is crawled completely before its next sibling.
// Pages that fail to load are skipped. Cancellation returns the pages
// collected so far together with the context error.
func (c *Crawler) Crawl(ctx context.Context, seed string, maxPages, maxDepth int) ([]models.Page, error) {
	seedURL, err := NormalizeSeed(seed)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	stack := []task{{url: seedURL, depth: 0}}
	var pages []models.Page

	for len(stack) > 0 && len(pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[t.url] || t.depth > maxDepth {
			continue
		}
		visited[t.url] = true

		page, err := c.visit(ctx, t.url)
		if err != nil {
			c.log.Warn("skipping page", "url", t.url, "depth", t.depth, "error", err)
			continue
		}
		pages = append(pages, page)
		c.log.Debug("page crawled", "url", t.url, "depth", t.depth, "links", len(page.Links), "pages", len(pages))

		candidates := page.Links
		if len(candidates) > c.linksPerPage {
			candidates = candidates[:c.linksPerPage]
		}
		// Reverse push so the first link is popped first.
		for i := len(candidates) - 1; i >= 0; i-- {
			if ShouldCrawl(candidates[i], c.exclude) {
				stack = append(stack, task{url: candidates[i], depth: t.depth + 1})
			}
		}
	}

	c.log.Info("crawl finished", "seed", seedURL, "pages", len(pages), "visited", len(visited))
	return pages, nil
}

func (c *Crawler) visit(ctx context.Context, pageURL string) (models.Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return models.Page{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	start := time.Now()
	resp, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.metrics.RecordError(metrics.OpPageFetch)
		return models.Page{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	c.metrics.RecordTiming(metrics.OpPageFetch, time.Since(start))

	// Relative links resolve against the page that was actually served.
	base := u
	if resp.URL != "" {
		if final, err := url.Parse(resp.URL); err == nil {
			base = final
		}
	}

	page, err := parser.ParseHTML(base, bytes.NewReader(resp.Body))
	if err != nil {
		return models.Page{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	page.URL = u.String()
	if !parser.SameSite(u, base) {
		c.log.Debug("redirected off site, not following links", "url", pageURL, "final_url", base.String())
		page.Links = nil
	}
	return page, nil
}

// NormalizeSeed adds https:// to scheme-less input and canonicalizes the URL.
func NormalizeSeed(seed string) (string, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return "", errors.New("seed url is empty")
	}
	if !strings.HasPrefix(seed, "http://") && !strings.HasPrefix(seed, "https://") {
		seed = "https://" + seed
	}
	canonical, err := parser.CanonicalURL(seed)
	if err != nil {
		return "", fmt.Errorf("invalid seed url: %w", err)
	}
	return canonical, nil
}
