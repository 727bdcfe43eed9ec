package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
)

// HTTPExtractor fetches an article page and extracts its main text. The page
// is fetched once; trafilatura is tried first, then a selector-based fallback
// over common article containers.
type HTTPExtractor struct {
	client    *http.Client
	userAgent string
	minLength int
}

// NewHTTPExtractor creates a new content extractor
func NewHTTPExtractor(timeout time.Duration, userAgent string, minLength int) *HTTPExtractor {
	return &HTTPExtractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		minLength: minLength,
	}
}

// Extract retrieves and extracts text content from the given URL
func (e *HTTPExtractor) Extract(ctx context.Context, urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", urlStr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for URL %s", resp.StatusCode, urlStr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read body from %s: %w", urlStr, err)
	}

	if text, err := e.extractTrafilatura(body, parsedURL); err == nil {
		return text, nil
	}

	// selector fallback over common article containers
	text, err := e.extractSelectors(body)
	if err != nil {
		return "", fmt.Errorf("extract content from %s: %w", urlStr, err)
	}
	return text, nil
}

// extractTrafilatura runs the main extraction path
func (e *HTTPExtractor) extractTrafilatura(body []byte, pageURL *url.URL) (string, error) {
	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		Deduplicate:     true,
		OriginalURL:     pageURL,
	}

	result, err := trafilatura.Extract(bytes.NewReader(body), opts)
	if err != nil {
		return "", fmt.Errorf("trafilatura: %w", err)
	}
	if result == nil || strings.TrimSpace(result.ContentText) == "" {
		return "", fmt.Errorf("no content extracted")
	}

	text := strings.TrimSpace(result.ContentText)
	if len(text) < e.minLength {
		return "", fmt.Errorf("extracted text too short: %d chars", len(text))
	}
	return text, nil
}

// articleSelectors are tried in order when trafilatura finds nothing
var articleSelectors = []string{
	"article",
	`[role="main"]`,
	".post-content",
	".article-content",
	".entry-content",
	"main",
}

// extractSelectors pulls text from common article containers
func (e *HTTPExtractor) extractSelectors(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	for _, sel := range articleSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		container.Find("script, style, nav, footer, aside").Remove()

		var parts []string
		for _, line := range strings.Split(container.Text(), "\n") {
			if t := strings.TrimSpace(line); t != "" {
				parts = append(parts, t)
			}
		}
		text := strings.Join(parts, "\n")
		if len(text) >= e.minLength {
			return text, nil
		}
	}

	return "", fmt.Errorf("no article container matched")
}
