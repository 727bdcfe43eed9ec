package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/domain"
)

type stubFetcher struct {
	feeds map[string][]domain.Article // keyed by url
	errs  map[string]error
}

func (s *stubFetcher) Parse(_ context.Context, url, category string) ([]domain.Article, error) {
	if err := s.errs[url]; err != nil {
		return nil, err
	}
	articles := s.feeds[url]
	for i := range articles {
		articles[i].Category = category
	}
	return articles, nil
}

func feedsConfig(urls map[string][]string) config.FeedsConfig {
	return config.FeedsConfig{
		Lookback:         24 * time.Hour,
		ExtendedLookback: 48 * time.Hour,
		MinArticles:      20,
		Timeout:          time.Second,
		MaxConcurrent:    4,
		Categories:       urls,
	}
}

func article(url string, age time.Duration, now time.Time) domain.Article {
	return domain.Article{
		ID:        ArticleID(url),
		Title:     "story " + url,
		URL:       url,
		Published: now.Add(-age),
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
}

func TestAggregator_Aggregate_DedupByURL(t *testing.T) {
	now := fixedNow()
	// same story syndicated on both feeds
	shared := article("https://example.com/shared", time.Hour, now)
	fetcher := &stubFetcher{feeds: map[string][]domain.Article{
		"https://a.example/rss": {shared, article("https://a.example/1", 2*time.Hour, now)},
		"https://b.example/rss": {shared, article("https://b.example/1", 3*time.Hour, now)},
	}}

	cfg := feedsConfig(map[string][]string{"dev": {"https://a.example/rss", "https://b.example/rss"}})
	cfg.MinArticles = 1
	agg := NewAggregator(fetcher, cfg)
	agg.now = fixedNow

	res, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Fetched)
	require.Len(t, res.Articles, 3, "duplicate URL collapsed")

	ids := map[string]int{}
	for _, a := range res.Articles {
		ids[a.ID]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %s appears once", id)
	}
}

func TestAggregator_Aggregate_NewestFirst(t *testing.T) {
	now := fixedNow()
	fetcher := &stubFetcher{feeds: map[string][]domain.Article{
		"https://a.example/rss": {
			article("https://a.example/old", 10*time.Hour, now),
			article("https://a.example/new", time.Hour, now),
			article("https://a.example/mid", 5*time.Hour, now),
		},
	}}
	cfg := feedsConfig(map[string][]string{"dev": {"https://a.example/rss"}})
	cfg.MinArticles = 1
	agg := NewAggregator(fetcher, cfg)
	agg.now = fixedNow

	res, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Articles, 3)
	assert.Equal(t, "https://a.example/new", res.Articles[0].URL)
	assert.Equal(t, "https://a.example/mid", res.Articles[1].URL)
	assert.Equal(t, "https://a.example/old", res.Articles[2].URL)
}

func TestAggregator_Aggregate_FailingFeedSkipped(t *testing.T) {
	now := fixedNow()
	fetcher := &stubFetcher{
		feeds: map[string][]domain.Article{
			"https://good.example/rss": {article("https://good.example/1", time.Hour, now)},
		},
		errs: map[string]error{"https://bad.example/rss": errors.New("connection refused")},
	}
	cfg := feedsConfig(map[string][]string{"dev": {"https://good.example/rss", "https://bad.example/rss"}})
	cfg.MinArticles = 1
	agg := NewAggregator(fetcher, cfg)
	agg.now = fixedNow

	res, err := agg.Aggregate(context.Background())
	require.NoError(t, err, "one broken feed never fails the run")
	assert.Len(t, res.Articles, 1)
}

func TestAggregator_Aggregate_WideningBoundary(t *testing.T) {
	now := fixedNow()

	// build a pool with n articles inside 24h and more between 24h and 48h
	makeFetcher := func(fresh int) *stubFetcher {
		var articles []domain.Article
		for i := 0; i < fresh; i++ {
			articles = append(articles, article(fmt.Sprintf("https://x.example/fresh-%d", i), time.Duration(i+1)*time.Minute, now))
		}
		for i := 0; i < 10; i++ {
			articles = append(articles, article(fmt.Sprintf("https://x.example/stale-%d", i), 30*time.Hour, now))
		}
		return &stubFetcher{feeds: map[string][]domain.Article{"https://x.example/rss": articles}}
	}

	cfg := feedsConfig(map[string][]string{"dev": {"https://x.example/rss"}})

	t.Run("19 fresh articles widens to 48h", func(t *testing.T) {
		agg := NewAggregator(makeFetcher(19), cfg)
		agg.now = fixedNow

		res, err := agg.Aggregate(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Widened)
		assert.Len(t, res.Articles, 29, "stale articles included after widening")
	})

	t.Run("20 fresh articles stays at 24h", func(t *testing.T) {
		agg := NewAggregator(makeFetcher(20), cfg)
		agg.now = fixedNow

		res, err := agg.Aggregate(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Widened)
		assert.Len(t, res.Articles, 20, "stale articles stay excluded")
	})
}

func TestAggregator_Aggregate_EmptyPoolFails(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{"https://a.example/rss": errors.New("down")}}
	cfg := feedsConfig(map[string][]string{"dev": {"https://a.example/rss"}})
	agg := NewAggregator(fetcher, cfg)
	agg.now = fixedNow

	_, err := agg.Aggregate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recent articles")
}

func TestArticleID(t *testing.T) {
	a := ArticleID("https://example.com/story")
	b := ArticleID("https://example.com/story")
	c := ArticleID("https://example.com/other")

	assert.Equal(t, a, b, "same URL yields the same id")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32, "hex md5")
}

func TestDetectSourceType(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		source   string
		expected domain.SourceType
	}{
		{"official blog domain", "https://blog.google/ai/update", "Google Blog", domain.SourcePrimary},
		{"github release", "https://github.com/golang/go/releases/tag/go1.25", "GitHub", domain.SourcePrimary},
		{"news coverage", "https://techcrunch.com/2026/09/01/some-startup", "TechCrunch", domain.SourceSecondary},
		{"unknown defaults to secondary", "https://random.example/post", "Random", domain.SourceSecondary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, detectSourceType(tt.url, tt.source))
		})
	}
}
