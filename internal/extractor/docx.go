package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"ragvault/internal/models"
)

const (
	docxBody = "word/document.xml"
	docxCore = "docProps/core.xml"
)

type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

func (e *DOCXExtractor) Kind() models.ContentKind { return models.ContentKindDOCX }

func (e *DOCXExtractor) SupportedMIMETypes() []string {
	return []string{MIMEDOCX}
}

func (e *DOCXExtractor) Extract(_ context.Context, doc Document) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(doc.Bytes), int64(len(doc.Bytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX archive: %w", err)
	}

	body, err := readZipFile(reader, docxBody)
	if err != nil {
		return nil, err
	}
	text, err := parseDocumentXML(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", docxBody, err)
	}

	meta := map[string]string{}
	if core, err := readZipFile(reader, docxCore); err == nil {
		var props coreProperties
		if xml.Unmarshal(core, &props) == nil {
			if t := strings.TrimSpace(props.Title); t != "" {
				meta["title"] = t
			}
			if a := strings.TrimSpace(props.Creator); a != "" {
				meta["author"] = a
			}
		}
	}

	return &Result{Text: text, Kind: models.ContentKindDOCX, Metadata: meta}, nil
}

type coreProperties struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// parseDocumentXML walks WordprocessingML tokens. Paragraphs nested in
// tables are picked up as well as top-level ones.
func parseDocumentXML(content []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	var (
		result strings.Builder
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				result.WriteByte('\t')
			case "br", "cr":
				result.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				result.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				result.Write(t)
			}
		}
	}
	return result.String(), nil
}
