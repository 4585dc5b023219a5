package extractor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"ragvault/internal/models"
)

type PDFExtractor struct {
	logger *zap.Logger
}

func NewPDFExtractor(logger *zap.Logger) *PDFExtractor {
	return &PDFExtractor{logger: logger}
}

func (e *PDFExtractor) Kind() models.ContentKind { return models.ContentKindPDF }

func (e *PDFExtractor) SupportedMIMETypes() []string {
	return []string{MIMEPDF, "application/x-pdf"}
}

// Extract reads the text layer of every page with go-fitz. Scanned PDFs
// without a text layer come back empty and are rejected by the registry.
func (e *PDFExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	pdf, err := fitz.NewFromMemory(doc.Bytes)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, &models.ExtractionError{ContentKind: string(models.ContentKindPDF), Reason: "document is encrypted", Err: err}
		}
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer pdf.Close()

	var textBuilder strings.Builder
	pages := pdf.NumPage()
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageText, err := pdf.Text(i)
		if err != nil {
			e.logger.Warn("Failed to extract text from page",
				zap.Int("page", i+1),
				zap.String("file", doc.Filename),
				zap.Error(err),
			)
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n\n")
		}
	}

	meta := map[string]string{"page_count": strconv.Itoa(pages)}
	for key, value := range pdf.Metadata() {
		switch key {
		case "title", "author", "format", "subject", "creator":
			if value != "" {
				meta[key] = value
			}
		}
	}

	return &Result{
		Text:     textBuilder.String(),
		Kind:     models.ContentKindPDF,
		Metadata: meta,
	}, nil
}
