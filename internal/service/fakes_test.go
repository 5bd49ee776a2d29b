package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/parser"
	"github.com/raphaelgruber/sitechat/internal/store"
	"github.com/raphaelgruber/sitechat/internal/vectorindex"
)

type fakeCrawler struct {
	mu    sync.Mutex
	pages []models.Page
	err   error
	seeds []string
}

func (f *fakeCrawler) Crawl(_ context.Context, seed string, _, _ int) ([]models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeds = append(f.seeds, seed)
	return f.pages, f.err
}

type fakeFiles struct {
	pages map[string]models.Page
}

func (f *fakeFiles) ExtractAll(_ context.Context, paths []string) []models.Page {
	var out []models.Page
	for _, p := range paths {
		if page, ok := f.pages[p]; ok {
			out = append(out, page)
		}
	}
	return out
}

// fakeEmbedder returns a 2-d vector per text and nil for texts containing "FAIL".
type fakeEmbedder struct {
	mu       sync.Mutex
	batches  int
	queryErr error
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if strings.Contains(text, "FAIL") {
		return nil
	}
	return []float32{1, float32(len(text) % 7)}
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.vector(text), nil
}

// fakeIndex returns canned search results and records the last filter.
type fakeIndex struct {
	*vectorindex.Memory
	results   []models.QueryResult
	searchErr error
	addErr    error
	filter    vectorindex.Filter
	topK      int
}

func (f *fakeIndex) Add(ctx context.Context, docs []models.Document) error {
	if f.addErr != nil {
		return f.addErr
	}
	return f.Memory.Add(ctx, docs)
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, topK int, filter vectorindex.Filter) ([]models.QueryResult, error) {
	f.filter = filter
	f.topK = topK
	return f.results, f.searchErr
}

type fakeGenerator struct {
	reply       string
	err         error
	query       string
	contextText string
	history     []models.ChatMessage
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, query, contextText string, history []models.ChatMessage, _ string) (string, error) {
	f.query = query
	f.contextText = contextText
	f.history = history
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

var errBoom = errors.New("boom")

// stores returns a constructor per store backend so service tests run
// against both.
func stores() map[string]func(t *testing.T) store.Store {
	return map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return store.NewMemory() },
		"sqlite": func(t *testing.T) store.Store {
			s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "service.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func newSegmenter(t *testing.T) *parser.Segmenter {
	t.Helper()
	seg, err := parser.NewSegmenter(20, 5, nil)
	require.NoError(t, err)
	return seg
}

func page(url, content string) models.Page {
	return models.Page{URL: url, Title: "Title of " + url, Content: content}
}
