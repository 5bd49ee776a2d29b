package parser

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/raphaelgruber/sitechat/internal/models"
)

// nonContent lists elements dropped before text extraction.
const nonContent = "script, style, noscript, template, nav, header, footer, aside"

// titleSeparators split a <title> into page name and site name.
var titleSeparators = []string{" | ", " - ", " – ", " — "}

// minH1Len is the length an <h1> must exceed to be used as the title.
const minH1Len = 10

// minTitlePrefixLen is the length a <title> prefix must exceed to replace the full title.
const minTitlePrefixLen = 5

// ParseHTML extracts the readable text, title and same-site links of a page.
// Links are canonical, deduplicated and in document order.
func ParseHTML(pageURL *url.URL, r io.Reader) (models.Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return models.Page{}, fmt.Errorf("parse html: %w", err)
	}

	doc.Find(nonContent).Remove()

	return models.Page{
		URL:     pageURL.String(),
		Title:   pageTitle(doc, pageURL),
		Content: extractText(doc.Selection),
		Links:   extractLinks(doc, pageURL),
	}, nil
}

func pageTitle(doc *goquery.Document, pageURL *url.URL) string {
	if h1 := collapseSpace(doc.Find("h1").First().Text()); len([]rune(h1)) > minH1Len {
		return h1
	}
	if title := collapseSpace(doc.Find("title").First().Text()); title != "" {
		return trimTitle(title)
	}
	return TitleFromURL(pageURL)
}

// trimTitle cuts the title at its earliest separator when the part before it
// is long enough to stand on its own.
func trimTitle(title string) string {
	cut := -1
	for _, sep := range titleSeparators {
		if i := strings.Index(title, sep); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut < 0 {
		return title
	}
	if prefix := strings.TrimSpace(title[:cut]); len([]rune(prefix)) > minTitlePrefixLen {
		return prefix
	}
	return title
}

// TitleFromURL derives a readable title from the last path segment,
// falling back to the host name.
func TitleFromURL(u *url.URL) string {
	seg := path.Base(strings.Trim(u.Path, "/"))
	if seg == "" || seg == "." || seg == "/" {
		return u.Hostname()
	}
	seg = strings.TrimSuffix(seg, path.Ext(seg))
	seg = strings.NewReplacer("-", " ", "_", " ").Replace(seg)
	seg = collapseSpace(seg)
	if seg == "" {
		return u.Hostname()
	}
	return cases.Title(language.English).String(seg)
}

// extractText joins every text node as its own line, whitespace collapsed.
func extractText(sel *goquery.Selection) string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				if line = collapseSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !SameSite(base, abs) {
			return
		}
		canonical, err := CanonicalURL(abs.String())
		if err != nil || seen[canonical] {
			return
		}
		seen[canonical] = true
		links = append(links, canonical)
	})
	return links
}

// CanonicalURL lowercases scheme and host and drops the fragment, query and
// trailing slash so that equivalent links compare equal.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment, u.RawFragment = "", ""
	u.RawQuery, u.ForceQuery = "", false
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// SameSite reports whether both URLs belong to the same registered domain.
// IP addresses and single-label hosts must match exactly.
func SameSite(a, b *url.URL) bool {
	ha, hb := strings.ToLower(a.Hostname()), strings.ToLower(b.Hostname())
	if ha == hb {
		return true
	}
	if net.ParseIP(ha) != nil || net.ParseIP(hb) != nil || !strings.Contains(ha, ".") || !strings.Contains(hb, ".") {
		return false
	}
	da, err := publicsuffix.EffectiveTLDPlusOne(ha)
	if err != nil {
		return false
	}
	db, err := publicsuffix.EffectiveTLDPlusOne(hb)
	if err != nil {
		return false
	}
	return da == db
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
