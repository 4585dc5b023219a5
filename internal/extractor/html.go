package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"ragvault/internal/models"
)

// Elements whose content is navigation, chrome or code rather than text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Template: true,
	atom.Head:     true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.Aside: true, atom.Blockquote: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Tr: true, atom.Form: true,
}

type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Kind() models.ContentKind { return models.ContentKindHTML }

func (e *HTMLExtractor) SupportedMIMETypes() []string {
	return []string{MIMEHTML, "application/xhtml+xml"}
}

func (e *HTMLExtractor) Extract(_ context.Context, doc Document) (*Result, error) {
	text, meta, err := htmlToText(doc.Bytes)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Kind: models.ContentKindHTML, Metadata: meta}, nil
}

// htmlToText flattens a page to paragraphs of text and collects the title
// and meta description.
func htmlToText(data []byte) (string, map[string]string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta := map[string]string{}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if n.FirstChild != nil && meta["title"] == "" {
					meta["title"] = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case atom.Meta:
				if strings.EqualFold(attr(n, "name"), "description") {
					meta["description"] = strings.TrimSpace(attr(n, "content"))
				}
				return
			case atom.Br:
				b.WriteByte('\n')
				return
			case atom.Li:
				b.WriteString("\n- ")
			}
			if skippedElements[n.DataAtom] {
				// Head is skipped for text, but title and meta live there.
				if n.DataAtom == atom.Head {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.DataAtom == atom.Title || c.DataAtom == atom.Meta {
							walk(c)
						}
					}
				}
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteString("\n\n")
		}
	}
	walk(root)

	return b.String(), meta, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
