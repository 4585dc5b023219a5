// Package chunker splits extracted document text into scored, bounded pieces.
package chunker

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"ragvault/internal/models"
)

type Strategy string

const (
	StrategyRecursive     Strategy = "recursive"
	StrategySemantic      Strategy = "semantic"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyToken         Strategy = "token"
)

// DefaultQualityThreshold drops pieces that are mostly markup or numbers.
const DefaultQualityThreshold = 0.3

var ErrInvalidConfig = errors.New("invalid chunking configuration")

// Options describes one chunking run. Sizes are in characters, except for
// StrategyToken where ChunkSize and Overlap are token counts.
type Options struct {
	Strategy     Strategy
	ChunkSize    int
	Overlap      int
	MinChunkSize int
	// MaxChunkSize is a hard character ceiling. Zero disables it.
	MaxChunkSize int
}

func (o Options) Validate() error {
	switch o.Strategy {
	case StrategyRecursive, StrategySemantic, StrategySlidingWindow, StrategyToken:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, o.Strategy)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if o.Overlap < 0 || o.Overlap >= o.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, chunk size)", ErrInvalidConfig)
	}
	if o.MinChunkSize < 0 || o.MaxChunkSize < 0 {
		return fmt.Errorf("%w: min and max chunk size must not be negative", ErrInvalidConfig)
	}
	if o.MaxChunkSize > 0 {
		if o.MinChunkSize > o.MaxChunkSize {
			return fmt.Errorf("%w: min chunk size exceeds max chunk size", ErrInvalidConfig)
		}
		if o.Strategy != StrategyToken && o.ChunkSize > o.MaxChunkSize {
			return fmt.Errorf("%w: chunk size exceeds max chunk size", ErrInvalidConfig)
		}
	}
	return nil
}

// Piece is one chunk of text. Start and End are byte offsets, so
// Content == text[Start:End].
type Piece struct {
	Index       int
	Start       int
	End         int
	Content     string
	ContentHash string
	TokenCount  int
	Quality     float64
}

type Engine struct {
	tokenizer        Tokenizer
	qualityThreshold float64
	logger           *zap.Logger
}

type Option func(*Engine)

func WithTokenizer(t Tokenizer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tokenizer = t
		}
	}
}

func WithQualityThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold >= 0 && threshold <= 1 {
			e.qualityThreshold = threshold
		}
	}
}

func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		tokenizer:        EstimateTokenizer{},
		qualityThreshold: DefaultQualityThreshold,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Tokenizer() Tokenizer {
	return e.tokenizer
}

// Chunk splits text with the configured strategy. Empty or whitespace-only
// text yields no pieces; only an invalid configuration is an error.
func (e *Engine) Chunk(text string, opts Options) ([]Piece, error) {
	if err := opts.Validate(); err != nil {
		return nil, &models.ChunkingError{Reason: "invalid options", Err: err}
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	if strings.TrimSpace(text) == "" {
		return []Piece{}, nil
	}

	var spans []span
	overlapped := false
	switch opts.Strategy {
	case StrategyRecursive:
		spans = recursiveSpans(text, span{0, len(text)}, opts.ChunkSize, defaultSeparators)
	case StrategySemantic:
		spans = semanticSpans(text, opts.ChunkSize)
	case StrategySlidingWindow:
		spans = slidingWindowSpans(text, opts.ChunkSize, opts.Overlap)
		overlapped = true
	case StrategyToken:
		spans = tokenSpans(text, e.tokenizer, opts.ChunkSize, opts.Overlap)
		overlapped = true
	}

	spans = enforceMax(text, spans, opts.MaxChunkSize)
	spans = mergeSmall(text, spans, opts.MinChunkSize, opts.MaxChunkSize)
	if !overlapped && opts.Overlap > 0 {
		spans = applyOverlap(text, spans, opts.Overlap, opts.MaxChunkSize)
	}

	pieces := make([]Piece, 0, len(spans))
	dropped := 0
	for _, s := range spans {
		s = trimSpan(text, s)
		if s.start >= s.end {
			continue
		}
		content := text[s.start:s.end]
		quality := Quality(content)
		if quality < e.qualityThreshold {
			dropped++
			continue
		}
		pieces = append(pieces, Piece{
			Index:       len(pieces),
			Start:       s.start,
			End:         s.end,
			Content:     content,
			ContentHash: ContentHash(content),
			TokenCount:  e.tokenizer.Count(content),
			Quality:     quality,
		})
	}

	if e.logger != nil {
		e.logger.Debug("Text chunked",
			zap.String("strategy", string(opts.Strategy)),
			zap.Int("chunks", len(pieces)),
			zap.Int("dropped_low_quality", dropped),
		)
	}
	return pieces, nil
}

// ContentHash is the hex blake2b-256 digest used for chunk deduplication.
func ContentHash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func trimSpan(text string, s span) span {
	for s.start < s.end {
		r, size := utf8.DecodeRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.start += size
	}
	for s.end > s.start {
		r, size := utf8.DecodeLastRuneInString(text[s.start:s.end])
		if !unicode.IsSpace(r) {
			break
		}
		s.end -= size
	}
	return s
}
