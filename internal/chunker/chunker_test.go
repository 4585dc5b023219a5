package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragvault/internal/models"
)

const threeParagraphs = "Retrieval pipelines split long documents into smaller passages so that each passage can be embedded and searched on its own.\n\n" +
	"Every passage inherits the disclosure flag of its source document, which decides whether the answer may quote it later.\n\n" +
	"The assembler packs the best passages into a bounded prompt budget and marks private material as context that must never be cited."

func longText() string {
	sentences := []string{
		"The embedding service keeps a cache of vectors keyed by the model name and a hash of the normalized text.",
		"Identical texts inside one batch are sent upstream only once and the vector is copied to every position.",
		"A daily budget guards the provider account, and calls are rejected once the ceiling has been reached.",
		"Search results carry a citable flag that the assembler uses to separate quotable evidence from private notes.",
		"Streaming clients receive progress events before the answer arrives in small groups of words.",
	}
	var b strings.Builder
	for p := 0; p < 8; p++ {
		for i := range sentences {
			b.WriteString(sentences[(i+p)%len(sentences)])
			b.WriteString(" ")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// wordTokenizer counts whitespace-separated words, which is additive across
// sentence boundaries.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int { return len(strings.Fields(text)) }

func nonSpaceCoverage(text string, pieces []Piece) float64 {
	covered := make([]bool, len(text))
	for _, p := range pieces {
		for i := p.Start; i < p.End; i++ {
			covered[i] = true
		}
	}
	total, hit := 0, 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if covered[i] {
			hit++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(hit) / float64(total)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"valid recursive", Options{Strategy: StrategyRecursive, ChunkSize: 200, Overlap: 20, MinChunkSize: 50, MaxChunkSize: 400}, true},
		{"unknown strategy", Options{Strategy: "magic", ChunkSize: 200}, false},
		{"zero size", Options{Strategy: StrategySemantic}, false},
		{"overlap equals size", Options{Strategy: StrategySlidingWindow, ChunkSize: 100, Overlap: 100}, false},
		{"negative min", Options{Strategy: StrategyRecursive, ChunkSize: 100, MinChunkSize: -1}, false},
		{"min above max", Options{Strategy: StrategyRecursive, ChunkSize: 100, MinChunkSize: 300, MaxChunkSize: 200}, false},
		{"size above max", Options{Strategy: StrategyRecursive, ChunkSize: 500, MaxChunkSize: 200}, false},
		{"token size is not compared to max chars", Options{Strategy: StrategyToken, ChunkSize: 500, MaxChunkSize: 200}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestEngine_Chunk_InvalidOptions(t *testing.T) {
	e := NewEngine(zap.NewNop())
	_, err := e.Chunk("some text", Options{Strategy: StrategyRecursive})
	require.Error(t, err)

	var chunkErr *models.ChunkingError
	require.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, models.KindChunking, chunkErr.Kind())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_Chunk_EmptyInput(t *testing.T) {
	e := NewEngine(zap.NewNop())
	for _, text := range []string{"", "   ", "\n\n\t"} {
		pieces, err := e.Chunk(text, Options{Strategy: StrategyRecursive, ChunkSize: 100})
		require.NoError(t, err)
		assert.Empty(t, pieces)
	}
}

func TestEngine_Chunk_ThreeParagraphs(t *testing.T) {
	e := NewEngine(zap.NewNop())
	for _, strategy := range []Strategy{StrategyRecursive, StrategySemantic, StrategySlidingWindow, StrategyToken} {
		t.Run(string(strategy), func(t *testing.T) {
			opts := Options{Strategy: strategy, ChunkSize: 200, Overlap: 20, MinChunkSize: 50, MaxChunkSize: 400}
			if strategy == StrategyToken {
				opts.ChunkSize, opts.Overlap = 50, 10
			}
			pieces, err := e.Chunk(threeParagraphs, opts)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, len(pieces), 2)
			assert.LessOrEqual(t, len(pieces), 5)
			for i, p := range pieces {
				assert.Equal(t, i, p.Index)
				assert.LessOrEqual(t, utf8.RuneCountInString(p.Content), 400)
				assert.Greater(t, p.Quality, 0.0)
				assert.Equal(t, threeParagraphs[p.Start:p.End], p.Content)
				assert.Equal(t, ContentHash(p.Content), p.ContentHash)
				assert.Positive(t, p.TokenCount)
			}
		})
	}
}

func TestEngine_Chunk_Coverage(t *testing.T) {
	text := longText()
	e := NewEngine(zap.NewNop(), WithTokenizer(wordTokenizer{}))
	for _, strategy := range []Strategy{StrategyRecursive, StrategySemantic, StrategySlidingWindow, StrategyToken} {
		t.Run(string(strategy), func(t *testing.T) {
			opts := Options{Strategy: strategy, ChunkSize: 300, Overlap: 40, MinChunkSize: 40, MaxChunkSize: 600}
			if strategy == StrategyToken {
				opts.ChunkSize, opts.Overlap = 60, 20
			}
			pieces, err := e.Chunk(text, opts)
			require.NoError(t, err)
			require.NotEmpty(t, pieces)
			assert.GreaterOrEqual(t, nonSpaceCoverage(text, pieces), 0.95)
		})
	}
}

func TestEngine_Chunk_RecursiveRespectsSize(t *testing.T) {
	text := longText()
	e := NewEngine(zap.NewNop())
	pieces, err := e.Chunk(text, Options{Strategy: StrategyRecursive, ChunkSize: 150})
	require.NoError(t, err)
	require.Greater(t, len(pieces), 5)
	for _, p := range pieces {
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Content), 150)
	}
}

func TestEngine_Chunk_OverlapIsSharedSuffix(t *testing.T) {
	text := longText()
	e := NewEngine(zap.NewNop(), WithTokenizer(wordTokenizer{}))
	for _, strategy := range []Strategy{StrategyRecursive, StrategySlidingWindow, StrategyToken} {
		t.Run(string(strategy), func(t *testing.T) {
			opts := Options{Strategy: strategy, ChunkSize: 200, Overlap: 60}
			if strategy == StrategyToken {
				opts.ChunkSize, opts.Overlap = 50, 25
			}
			pieces, err := e.Chunk(text, opts)
			require.NoError(t, err)

			overlapping := 0
			for i := 1; i < len(pieces); i++ {
				prev, cur := pieces[i-1], pieces[i]
				if cur.Start >= prev.End {
					continue
				}
				overlapping++
				shared := text[cur.Start:prev.End]
				assert.True(t, strings.HasSuffix(prev.Content, shared))
				assert.True(t, strings.HasPrefix(cur.Content, shared))
			}
			assert.Positive(t, overlapping)
		})
	}
}

func TestEngine_Chunk_SlidingWindowBounds(t *testing.T) {
	text := longText()
	e := NewEngine(zap.NewNop())
	pieces, err := e.Chunk(text, Options{Strategy: StrategySlidingWindow, ChunkSize: 480, Overlap: 50})
	require.NoError(t, err)
	require.Greater(t, len(pieces), 3)
	for _, p := range pieces[:len(pieces)-1] {
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Content), 480)
		last := p.Content[len(p.Content)-1]
		assert.Contains(t, ".!?", string(last), "window should end on a sentence boundary: %q", p.Content)
	}
}

func TestEngine_Chunk_TokenCeiling(t *testing.T) {
	text := longText()
	e := NewEngine(zap.NewNop(), WithTokenizer(wordTokenizer{}))
	pieces, err := e.Chunk(text, Options{Strategy: StrategyToken, ChunkSize: 45, Overlap: 20})
	require.NoError(t, err)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, p.TokenCount, 45)
	}
}

func TestEngine_Chunk_TokenSplitsOversizedSentence(t *testing.T) {
	sentence := strings.Repeat("word ", 30) + "end."
	e := NewEngine(zap.NewNop(), WithTokenizer(wordTokenizer{}), WithQualityThreshold(0))
	pieces, err := e.Chunk(sentence, Options{Strategy: StrategyToken, ChunkSize: 10})
	require.NoError(t, err)
	require.Len(t, pieces, 4)
	for _, p := range pieces {
		assert.LessOrEqual(t, p.TokenCount, 10)
	}
}

func TestEngine_Chunk_DropsLowQuality(t *testing.T) {
	e := NewEngine(zap.NewNop())
	pieces, err := e.Chunk("1234 5678 !!!! #### $$$$", Options{Strategy: StrategyRecursive, ChunkSize: 100})
	require.NoError(t, err)
	assert.Empty(t, pieces)

	lenient := NewEngine(zap.NewNop(), WithQualityThreshold(0))
	pieces, err = lenient.Chunk("1234 5678 !!!! #### $$$$", Options{Strategy: StrategyRecursive, ChunkSize: 100})
	require.NoError(t, err)
	assert.Len(t, pieces, 1)
}

func TestQuality(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"prose", "The quick brown fox jumps over the lazy dog near the quiet river bank today.", 1.0},
		{"short prose", "Just a few words here.", 0.8},
		{"numbers and symbols", "1234 5678 !!!! #### $$$$", 0.1},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Quality(tt.content), 1e-9)
		})
	}
}

func TestMergeSmall(t *testing.T) {
	text := "alpha beta gamma delta"
	spans := []span{{0, 11}, {11, 17}, {17, 22}}

	assert.Equal(t, []span{{0, 22}}, mergeSmall(text, spans, 7, 0))
	assert.Equal(t, []span{{0, 11}, {11, 22}}, mergeSmall(text, spans, 7, 15))
	assert.Equal(t, spans, mergeSmall(text, spans, 0, 0))
}

func TestHardSplit(t *testing.T) {
	assert.Equal(t, []span{{0, 4}, {4, 8}, {8, 10}}, hardSplit("abcdefghij", span{0, 10}, 4))

	text := "жжжжж"
	got := hardSplit(text, span{0, len(text)}, 2)
	require.Len(t, got, 3)
	assert.Equal(t, "жж", text[got[0].start:got[0].end])
}

func TestSentenceSpans(t *testing.T) {
	text := "One. Two? Three!\nFour"
	got := sentenceSpans(text)
	want := []string{"One. ", "Two? ", "Three!\n", "Four"}
	require.Len(t, got, len(want))
	for i, s := range got {
		assert.Equal(t, want[i], text[s.start:s.end])
	}
}

func TestEstimateTokenizer(t *testing.T) {
	tok := EstimateTokenizer{}
	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 1, tok.Count("ab"))
	assert.Equal(t, 25, tok.Count(strings.Repeat("a", 100)))
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("same text"), ContentHash("same text"))
	assert.NotEqual(t, ContentHash("same text"), ContentHash("other text"))
	assert.Len(t, ContentHash("x"), 64)
}
