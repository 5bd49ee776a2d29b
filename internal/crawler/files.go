package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/parser"
)

// FileExtractor turns uploaded documents into pages.
type FileExtractor struct {
	log *slog.Logger
}

// NewFileExtractor creates a file extractor.
func NewFileExtractor(log *slog.Logger) *FileExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &FileExtractor{log: log}
}

// Extract reads one file into a page with url file://<path>. PDFs are read
// page by page; other files are decoded as UTF-8, or Latin-1 when not valid
// UTF-8. Markdown frontmatter is stripped and supplies the title.
func (e *FileExtractor) Extract(ctx context.Context, path string) (models.Page, error) {
	if err := ctx.Err(); err != nil {
		return models.Page{}, err
	}

	page := models.Page{URL: "file://" + path, Title: filepath.Base(path)}
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		page.Content, err = e.extractPDF(path)
	case ".md", ".markdown":
		page.Content, err = extractText(path)
		if err == nil {
			doc := parser.ParseMarkdown(page.Content)
			page.Content = doc.Content
			if doc.Title != "" {
				page.Title = doc.Title
			}
		}
	default:
		page.Content, err = extractText(path)
	}
	if err != nil {
		return models.Page{}, fmt.Errorf("%w: %s: %w", ErrExtraction, path, err)
	}
	return page, nil
}

// ExtractAll extracts every file, skipping the unreadable and the empty.
func (e *FileExtractor) ExtractAll(ctx context.Context, paths []string) []models.Page {
	var pages []models.Page
	for _, path := range paths {
		page, err := e.Extract(ctx, path)
		if err != nil {
			e.log.Warn("skipping file", "path", path, "error", err)
			continue
		}
		if strings.TrimSpace(page.Content) == "" {
			e.log.Warn("skipping empty file", "path", path)
			continue
		}
		pages = append(pages, page)
	}
	return pages
}

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(decoded), nil
}

func (e *FileExtractor) extractPDF(path string) (content string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			content, err = "", fmt.Errorf("read pdf: %v", rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var parts []string
	for i := 1; i <= r.NumPage(); i++ {
		text := e.pdfPageText(r, i, path)
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// pdfPageText returns "" for a page that fails to decode.
func (e *FileExtractor) pdfPageText(r *pdf.Reader, n int, path string) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Warn("pdf page extraction panicked", "path", path, "page", n, "panic", rec)
			text = ""
		}
	}()

	page := r.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		e.log.Warn("pdf page extraction failed", "path", path, "page", n, "error", err)
		return ""
	}
	return text
}
