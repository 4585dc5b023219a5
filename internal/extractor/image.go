package extractor

import (
	"context"
	"fmt"

	"ragvault/internal/models"
)

// TextRecognizer transcribes the text visible in an image.
type TextRecognizer interface {
	ExtractText(ctx context.Context, data []byte, filename, mimeType string) (string, error)
}

// ImageExtractor handles scans, receipts and screenshots through an OCR
// capable model. It is registered only when such a model is configured.
type ImageExtractor struct {
	recognizer TextRecognizer
}

func NewImageExtractor(recognizer TextRecognizer) *ImageExtractor {
	return &ImageExtractor{recognizer: recognizer}
}

func (e *ImageExtractor) Kind() models.ContentKind { return models.ContentKindImage }

func (e *ImageExtractor) SupportedMIMETypes() []string {
	return []string{"image/png", "image/jpeg", "image/tiff", "image/bmp"}
}

func (e *ImageExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	if len(doc.Bytes) == 0 {
		return nil, &models.ExtractionError{ContentKind: string(models.ContentKindImage), Reason: "empty image", Err: ErrNoText}
	}

	filename := doc.Filename
	if filename == "" {
		filename = "image"
	}
	text, err := e.recognizer.ExtractText(ctx, doc.Bytes, filename, baseMIME(doc.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("failed to recognize image text: %w", err)
	}

	return &Result{
		Text: text,
		Kind: models.ContentKindImage,
		Metadata: map[string]string{
			"method": "vision_ocr",
		},
	}, nil
}
