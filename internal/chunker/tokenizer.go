package chunker

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const fallbackEncoding = "cl100k_base"

type Tokenizer interface {
	Count(text string) int
}

// EstimateTokenizer approximates one token per four characters.
type EstimateTokenizer struct{}

func (EstimateTokenizer) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	if n < 4 {
		return 1
	}
	return n / 4
}

type TiktokenTokenizer struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// NewTokenizer loads the BPE encoding for model and falls back to the
// estimator when no encoding can be loaded.
func NewTokenizer(model string, logger *zap.Logger) Tokenizer {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		logger.Warn("Tokenizer unavailable, using length estimate",
			zap.String("model", model),
			zap.Error(err),
		)
		return EstimateTokenizer{}
	}
	return &TiktokenTokenizer{enc: enc}
}
