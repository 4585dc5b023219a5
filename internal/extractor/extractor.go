// Package extractor turns uploaded bytes or a crawled URL into normalized text.
package extractor

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ragvault/internal/models"
)

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrNoText          = errors.New("document contains no extractable text")
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText = "text/plain"
	MIMEHTML = "text/html"
)

// Document is the raw input handed over by the upload or crawl layer.
// Exactly one of Bytes or URL is expected.
type Document struct {
	Bytes    []byte
	URL      string
	MIMEType string
	Filename string
}

type Result struct {
	Text     string
	Kind     models.ContentKind
	Metadata map[string]string
}

type Extractor interface {
	Kind() models.ContentKind
	SupportedMIMETypes() []string
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// Registry dispatches documents to the extractor registered for their MIME
// type and normalizes whatever text comes back.
type Registry struct {
	byMIME map[string]Extractor
	url    Extractor
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger, extractors ...Extractor) *Registry {
	r := &Registry{
		byMIME: make(map[string]Extractor),
		logger: logger,
	}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// NewDefaultRegistry wires every built-in extractor.
func NewDefaultRegistry(fetcher *URLFetcher, logger *zap.Logger) *Registry {
	return NewRegistry(logger,
		NewPDFExtractor(logger),
		NewDOCXExtractor(),
		NewPlainTextExtractor(),
		NewHTMLExtractor(),
		NewURLExtractor(fetcher),
	)
}

func (r *Registry) Register(e Extractor) {
	if e.Kind() == models.ContentKindURL {
		r.url = e
		return
	}
	for _, m := range e.SupportedMIMETypes() {
		r.byMIME[strings.ToLower(m)] = e
	}
}

func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.byMIME[baseMIME(mimeType)]
	return ok
}

func (r *Registry) Extract(ctx context.Context, doc Document) (*Result, error) {
	var (
		ext  Extractor
		kind = doc.MIMEType
	)
	if doc.URL != "" && len(doc.Bytes) == 0 {
		ext, kind = r.url, string(models.ContentKindURL)
	} else {
		mimeType := baseMIME(doc.MIMEType)
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = baseMIME(mime.TypeByExtension(strings.ToLower(filepath.Ext(doc.Filename))))
		}
		ext = r.byMIME[mimeType]
	}
	if ext == nil {
		return nil, &models.ExtractionError{ContentKind: kind, Reason: "no extractor for content type", Err: ErrUnsupportedType}
	}

	res, err := ext.Extract(ctx, doc)
	if err != nil {
		var extErr *models.ExtractionError
		if errors.As(err, &extErr) {
			return nil, err
		}
		return nil, &models.ExtractionError{ContentKind: string(ext.Kind()), Reason: "extraction failed", Err: err}
	}

	res.Text = Normalize(res.Text)
	if strings.TrimSpace(res.Text) == "" {
		return nil, &models.ExtractionError{ContentKind: string(ext.Kind()), Reason: "empty document", Err: ErrNoText}
	}
	if res.Metadata == nil {
		res.Metadata = make(map[string]string)
	}

	r.logger.Info("Document extracted",
		zap.String("kind", string(res.Kind)),
		zap.String("filename", doc.Filename),
		zap.Int("text_length", len(res.Text)),
	)
	return res, nil
}

// baseMIME lowercases a MIME type and drops its parameters.
func baseMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
