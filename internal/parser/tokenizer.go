package parser

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var loaderOnce sync.Once

// Tokenizer converts text to token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// LoadTokenizer resolves the named BPE encoding (e.g. "cl100k_base") from
// the ranks files embedded by the offline loader.
func LoadTokenizer(encoding string) (Tokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", encoding, err)
	}
	return tiktokenTokenizer{enc: enc}, nil
}

// ResolveTokenizer returns the tokenizer when it can be loaded and nil
// otherwise. A nil tokenizer selects approximate segmentation.
func ResolveTokenizer(encoding string, log *slog.Logger) Tokenizer {
	if log == nil {
		log = slog.Default()
	}
	tok, err := LoadTokenizer(encoding)
	if err != nil {
		log.Warn("tokenizer unavailable, using character approximation", "encoding", encoding, "error", err)
		return nil
	}
	log.Info("tokenizer loaded", "encoding", encoding)
	return tok
}
