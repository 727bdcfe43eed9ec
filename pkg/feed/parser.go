package feed

import (
	"context"
	"crypto/md5" //nolint:gosec // md5 is used as a dedup key, not for security
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/briefdelights/briefly/pkg/domain"
)

// Parser fetches and parses a single RSS/Atom feed into articles
type Parser struct {
	client    *http.Client
	userAgent string
}

// NewParser creates a new feed parser
func NewParser(timeout time.Duration, userAgent string) *Parser {
	return &Parser{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

// Parse fetches a feed and converts its entries to articles tagged with the
// given category. Entries without a link are skipped.
func (p *Parser) Parse(ctx context.Context, url, category string) ([]domain.Article, error) {
	body, err := p.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	parser := gofeed.NewParser()
	feed, err := parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	sourceName := feed.Title
	if sourceName == "" {
		sourceName = url
	}

	articles := make([]domain.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}

		a := domain.Article{
			ID:       ArticleID(item.Link),
			Title:    item.Title,
			URL:      item.Link,
			Desc:     item.Description,
			Source:   sourceName,
			Category: category,
		}
		if a.Title == "" {
			a.Title = "No Title"
		}

		// prefer full content when the feed carries it
		if item.Content != "" {
			a.RawContent = item.Content
		} else {
			a.RawContent = item.Description
		}

		// published time with updated fallback
		switch {
		case item.PublishedParsed != nil:
			a.Published = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			a.Published = *item.UpdatedParsed
		default:
			a.Published = time.Now()
		}

		a.SourceType = detectSourceType(a.URL, sourceName)
		articles = append(articles, a)
	}

	return articles, nil
}

// ArticleID derives the dedup key from the canonical URL
func ArticleID(url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec // dedup key, not a security boundary
	return hex.EncodeToString(sum[:])
}

// fetch retrieves content from a URL
func (p *Parser) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)

	// add browser-like headers
	addBrowserHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
