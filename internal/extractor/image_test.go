package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragvault/internal/models"
)

type stubRecognizer struct {
	text     string
	err      error
	mimeType string
}

func (s *stubRecognizer) ExtractText(_ context.Context, _ []byte, _, mimeType string) (string, error) {
	s.mimeType = mimeType
	return s.text, s.err
}

func TestImageExtractor(t *testing.T) {
	rec := &stubRecognizer{text: "Total:   12.50\n\n\n\nThank you!!!"}
	reg := newRegistry()
	reg.Register(NewImageExtractor(rec))

	res, err := reg.Extract(context.Background(), Document{Bytes: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/PNG", Filename: "receipt.png"})
	require.NoError(t, err)

	assert.Equal(t, models.ContentKindImage, res.Kind)
	assert.Equal(t, "Total: 12.50\n\nThank you!", res.Text)
	assert.Equal(t, "vision_ocr", res.Metadata["method"])
	assert.Equal(t, "image/png", rec.mimeType)
}

func TestImageExtractorFailures(t *testing.T) {
	t.Run("recognizer error", func(t *testing.T) {
		reg := newRegistry()
		reg.Register(NewImageExtractor(&stubRecognizer{err: errors.New("upstream down")}))

		_, err := reg.Extract(context.Background(), Document{Bytes: []byte{1}, MIMEType: "image/jpeg"})
		require.Error(t, err)
		assert.Equal(t, models.KindExtraction, models.ErrorKind(err))
	})

	t.Run("blank transcription", func(t *testing.T) {
		reg := newRegistry()
		reg.Register(NewImageExtractor(&stubRecognizer{text: "   "}))

		_, err := reg.Extract(context.Background(), Document{Bytes: []byte{1}, MIMEType: "image/jpeg"})
		assert.ErrorIs(t, err, ErrNoText)
	})
}
