package service

import (
	"testing"

	"ragvault/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestValidator(t *testing.T) {
	private := []models.SourceExcerpt{{
		ChunkID: uuid.New(),
		Content: "Our negotiated supplier discount is thirty percent.",
	}}
	v := NewValidator(zap.NewNop())

	t.Run("clean answer", func(t *testing.T) {
		verdict := v.Validate("We offer competitive pricing [CITE-1].", private)
		assert.True(t, verdict.Valid)
	})

	t.Run("verbatim phrase", func(t *testing.T) {
		verdict := v.Validate("Note: the NEGOTIATED SUPPLIER DISCOUNT applies.", private)
		assert.False(t, verdict.Valid)
		assert.Equal(t, 1, verdict.LeakedPhrases)
		assert.Equal(t, []uuid.UUID{private[0].ChunkID}, verdict.LeakingSources)
	})

	t.Run("short phrases are ignored", func(t *testing.T) {
		short := []models.SourceExcerpt{{ChunkID: uuid.New(), Content: "it is a go"}}
		assert.True(t, v.Validate("well it is a go then", short).Valid)
	})

	t.Run("context marker", func(t *testing.T) {
		verdict := v.Validate("As stated in [CONTEXT], yes.", nil)
		assert.False(t, verdict.Valid)
		assert.True(t, verdict.ContextMarker)
	})
}

func TestPrivatePhrases(t *testing.T) {
	phrases := privatePhrases("alpha beta gamma delta alpha beta gamma")
	assert.Equal(t, []string{"alpha beta gamma", "beta gamma delta", "gamma delta alpha", "delta alpha beta"}, phrases)
	assert.Empty(t, privatePhrases("two words"))
}
