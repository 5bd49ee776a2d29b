package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sitechat/internal/models"
)

// runeTokenizer treats every rune as one token, so decode(encode(x)) == x.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, r := range text {
		out = append(out, int(r))
	}
	return out
}

func (runeTokenizer) Decode(tokens []int) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteRune(rune(t))
	}
	return b.String()
}

func TestNewSegmenter_RejectsNonAdvancingWindow(t *testing.T) {
	tests := []struct {
		name      string
		size, ovl int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"negative overlap", 100, -1},
		{"zero size", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSegmenter(tt.size, tt.ovl, nil)
			assert.ErrorIs(t, err, ErrInvalidChunkConfig)
		})
	}
}

func TestSegment_EmptyContent(t *testing.T) {
	for _, tok := range []Tokenizer{nil, runeTokenizer{}} {
		seg, err := NewSegmenter(10, 2, tok)
		require.NoError(t, err)
		for _, text := range []string{"", "   ", "\n\n\t  "} {
			assert.Empty(t, seg.Segment(text, models.Metadata{}), "text %q", text)
		}
	}
}

func TestSegment_TokenWindowOverlap(t *testing.T) {
	sizes := []struct{ size, overlap int }{
		{10, 0}, {10, 3}, {10, 9}, {7, 2}, {100, 20},
	}
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	tok := runeTokenizer{}

	for _, s := range sizes {
		seg, err := NewSegmenter(s.size, s.overlap, tok)
		require.NoError(t, err)
		assert.True(t, seg.TokenizerAvailable())

		chunks := seg.Segment(text, models.Metadata{SourceURL: "https://example.com"})
		require.NotEmpty(t, chunks)

		for i, c := range chunks {
			assert.LessOrEqual(t, c.TokenCount, s.size)
			assert.Equal(t, len(tok.Encode(c.Text)), c.TokenCount)
			if i == 0 {
				continue
			}
			prev := tok.Encode(chunks[i-1].Text)
			cur := tok.Encode(c.Text)
			if s.overlap > 0 {
				assert.Equal(t, prev[len(prev)-s.overlap:], cur[:s.overlap], "chunk %d overlap (size=%d overlap=%d)", i, s.size, s.overlap)
			}
		}

		// Chunks reassemble to the original text once overlaps are removed.
		var rebuilt strings.Builder
		rebuilt.WriteString(chunks[0].Text)
		for _, c := range chunks[1:] {
			rebuilt.WriteString(string([]rune(c.Text)[s.overlap:]))
		}
		assert.Equal(t, text, rebuilt.String())
	}
}

func TestSegment_NoTrailingSubsetChunk(t *testing.T) {
	seg, err := NewSegmenter(10, 5, runeTokenizer{})
	require.NoError(t, err)

	chunks := seg.Segment(strings.Repeat("a", 20), models.Metadata{})
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, chunks[2].TokenCount)
}

func TestSegment_ApproximatePath(t *testing.T) {
	seg, err := NewSegmenter(10, 2, nil)
	require.NoError(t, err)
	assert.False(t, seg.TokenizerAvailable())

	text := strings.Repeat("héllo wörld ", 30) // 360 runes
	chunks := seg.Segment(text, models.Metadata{Title: "T"})
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		runes := []rune(c.Text)
		assert.LessOrEqual(t, len(runes), 40)
		assert.LessOrEqual(t, c.TokenCount, 10)
		assert.Equal(t, "T", c.Metadata.Title)
		if i > 0 {
			prev := []rune(chunks[i-1].Text)
			assert.Equal(t, string(prev[len(prev)-8:]), string(runes[:8]))
		}
	}
	last := []rune(chunks[len(chunks)-1].Text)
	assert.True(t, strings.HasSuffix(text, string(last)))
}

func TestSegmentPages(t *testing.T) {
	seg, err := NewSegmenter(100, 20, runeTokenizer{})
	require.NoError(t, err)

	pages := []models.Page{
		{URL: "https://example.com/a", Title: "A", Content: strings.Repeat("alpha ", 40)},
		{URL: "https://example.com/empty", Title: "Empty", Content: "  \n "},
		{URL: "https://example.com/b", Content: "beta"},
	}
	chunks := seg.SegmentPages(pages, models.Metadata{ClientID: "acme", JobID: "job1", SourceURL: "ignored"})
	require.GreaterOrEqual(t, len(chunks), 3)

	assert.Equal(t, "https://example.com/a", chunks[0].Metadata.SourceURL)
	assert.Equal(t, "A", chunks[0].Metadata.Title)

	last := chunks[len(chunks)-1]
	assert.Equal(t, "https://example.com/b", last.Metadata.SourceURL)
	assert.Equal(t, UntitledPage, last.Metadata.Title)
	for _, c := range chunks {
		assert.Equal(t, "acme", c.Metadata.ClientID)
		assert.Equal(t, "job1", c.Metadata.JobID)
		assert.NotEqual(t, "https://example.com/empty", c.Metadata.SourceURL)
	}
}

func TestSegment_TiktokenRepeatedSentence(t *testing.T) {
	tok, err := LoadTokenizer("cl100k_base")
	require.NoError(t, err)

	seg, err := NewSegmenter(100, 20, tok)
	require.NoError(t, err)

	page := models.Page{URL: "https://example.com/test", Title: "Test", Content: strings.Repeat("test sentence. ", 50)}
	chunks := seg.SegmentPages([]models.Page{page}, models.Metadata{})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, page.URL, c.Metadata.SourceURL)
		assert.LessOrEqual(t, c.TokenCount, 100)
	}
}

func TestLoadTokenizer_UnknownEncoding(t *testing.T) {
	_, err := LoadTokenizer("no_such_encoding")
	assert.Error(t, err)
	assert.Nil(t, ResolveTokenizer("no_such_encoding", nil))
}
