package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragvault/internal/models"
)

const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "ragvault-crawler/1.0"
)

var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// URLFetcher downloads a single page for ingestion.
type URLFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewURLFetcher(timeout time.Duration, maxBytes int64) *URLFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return &URLFetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: defaultUserAgent,
	}
}

// Fetch returns the body and base MIME type of rawURL.
func (f *URLFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("invalid URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u.Host)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", ErrBodyTooLarge
	}

	contentType := baseMIME(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = baseMIME(http.DetectContentType(body))
	}
	return body, contentType, nil
}

// URLExtractor crawls one page and flattens it like an uploaded HTML file.
type URLExtractor struct {
	fetcher *URLFetcher
}

func NewURLExtractor(fetcher *URLFetcher) *URLExtractor {
	if fetcher == nil {
		fetcher = NewURLFetcher(0, 0)
	}
	return &URLExtractor{fetcher: fetcher}
}

func (e *URLExtractor) Kind() models.ContentKind { return models.ContentKindURL }

func (e *URLExtractor) SupportedMIMETypes() []string { return nil }

func (e *URLExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	body, contentType, err := e.fetcher.Fetch(ctx, doc.URL)
	if err != nil {
		return nil, err
	}

	var (
		text string
		meta map[string]string
	)
	switch {
	case contentType == MIMEHTML || contentType == "application/xhtml+xml":
		text, meta, err = htmlToText(body)
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(contentType, "text/"):
		text, _, err = decodeText(body)
		if err != nil {
			return nil, err
		}
		meta = map[string]string{}
	default:
		return nil, &models.ExtractionError{
			ContentKind: string(models.ContentKindURL),
			Reason:      "unsupported remote content type " + contentType,
			Err:         ErrUnsupportedType,
		}
	}

	meta["url"] = doc.URL
	meta["content_type"] = contentType
	return &Result{Text: text, Kind: models.ContentKindURL, Metadata: meta}, nil
}
