package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"ragvault/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) Kind() models.ContentKind { return models.ContentKindPlainText }

func (e *PlainTextExtractor) SupportedMIMETypes() []string {
	return []string{MIMEText, "text/markdown", "text/x-markdown", "text/csv", "application/json"}
}

func (e *PlainTextExtractor) Extract(_ context.Context, doc Document) (*Result, error) {
	text, enc, err := decodeText(doc.Bytes)
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:     text,
		Kind:     models.ContentKindPlainText,
		Metadata: map[string]string{"encoding": enc},
	}, nil
}

// decodeText tries UTF-8, then UTF-16 with a byte order mark, then
// Windows-1252, then ISO-8859-1, which accepts any input.
func decodeText(data []byte) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
	}
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	if len(data) >= 2 && ((data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF)) {
		text, err := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), data)
		if err == nil {
			return text, "utf-16", nil
		}
	}

	if text, err := decodeWith(charmap.Windows1252, data); err == nil && !strings.ContainsRune(text, utf8.RuneError) {
		return text, "windows-1252", nil
	}

	text, err := decodeWith(charmap.ISO8859_1, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode text: %w", err)
	}
	return text, "iso-8859-1", nil
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
