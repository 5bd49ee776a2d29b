// Package parser turns raw content into retrievable text. It extracts HTML
// and Markdown and segments text into token windows.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/sitechat/internal/models"
)

// charsPerToken approximates token length when no tokenizer is available.
const charsPerToken = 4

// UntitledPage is the title given to pages that have none.
const UntitledPage = "Untitled"

// ErrInvalidChunkConfig is returned for window settings that cannot advance.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// Segmenter splits text into overlapping chunks of at most ChunkSize tokens.
type Segmenter struct {
	tokenizer Tokenizer
	chunkSize int
	overlap   int
}

// NewSegmenter validates the window settings. A nil tokenizer selects the
// character approximation.
func NewSegmenter(chunkSize, overlap int, tokenizer Tokenizer) (*Segmenter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidChunkConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunkConfig, overlap, chunkSize)
	}
	return &Segmenter{tokenizer: tokenizer, chunkSize: chunkSize, overlap: overlap}, nil
}

// TokenizerAvailable reports whether exact token counting is in use.
func (s *Segmenter) TokenizerAvailable() bool {
	return s.tokenizer != nil
}

// ChunkSize returns the maximum tokens per chunk.
func (s *Segmenter) ChunkSize() int { return s.chunkSize }

// Overlap returns the tokens shared by consecutive chunks.
func (s *Segmenter) Overlap() int { return s.overlap }

// Segment splits text into chunks carrying meta. Blank text yields no chunks.
func (s *Segmenter) Segment(text string, meta models.Metadata) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.tokenizer != nil {
		return s.segmentTokens(text, meta)
	}
	return s.segmentChars(text, meta)
}

func (s *Segmenter) segmentTokens(text string, meta models.Metadata) []models.Chunk {
	tokens := s.tokenizer.Encode(text)
	var chunks []models.Chunk
	for _, w := range windows(len(tokens), s.chunkSize, s.chunkSize-s.overlap) {
		window := tokens[w[0]:w[1]]
		chunks = append(chunks, models.Chunk{
			Text:       s.tokenizer.Decode(window),
			TokenCount: len(window),
			Metadata:   meta,
		})
	}
	return chunks
}

func (s *Segmenter) segmentChars(text string, meta models.Metadata) []models.Chunk {
	runes := []rune(text)
	size := s.chunkSize * charsPerToken
	step := (s.chunkSize - s.overlap) * charsPerToken
	var chunks []models.Chunk
	for _, w := range windows(len(runes), size, step) {
		n := w[1] - w[0]
		chunks = append(chunks, models.Chunk{
			Text:       string(runes[w[0]:w[1]]),
			TokenCount: (n + charsPerToken - 1) / charsPerToken,
			Metadata:   meta,
		})
	}
	return chunks
}

// windows returns [start, end) pairs covering n items. The last window is the
// first one that reaches n.
func windows(n, size, step int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += step {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
		if end == n {
			break
		}
	}
	return out
}

// SegmentPages segments every page in order. Each chunk gets the page's url and
// title, with extra (tenant and job ids) merged on top.
func (s *Segmenter) SegmentPages(pages []models.Page, extra models.Metadata) []models.Chunk {
	var chunks []models.Chunk
	for _, page := range pages {
		title := page.Title
		if title == "" {
			title = UntitledPage
		}
		meta := models.Metadata{SourceURL: page.URL, Title: title}.Merge(models.Metadata{
			ClientID: extra.ClientID,
			JobID:    extra.JobID,
		})
		chunks = append(chunks, s.Segment(page.Content, meta)...)
	}
	return chunks
}
