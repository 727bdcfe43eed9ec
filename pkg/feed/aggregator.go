package feed

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/domain"
)

// Fetcher retrieves and parses a single feed
type Fetcher interface {
	Parse(ctx context.Context, url, category string) ([]domain.Article, error)
}

// Aggregator pulls all configured feeds, deduplicates by URL and applies the
// recency filter. One shared article set is produced per run and used by all
// segments.
type Aggregator struct {
	fetcher Fetcher
	cfg     config.FeedsConfig
	now     func() time.Time
}

// Result is the outcome of one aggregation pass
type Result struct {
	Articles  []domain.Article
	FeedCount int
	Fetched   int  // before dedup and recency filtering
	Widened   bool // extended lookback was applied
}

// NewAggregator creates an aggregator over the configured feed categories
func NewAggregator(fetcher Fetcher, cfg config.FeedsConfig) *Aggregator {
	return &Aggregator{fetcher: fetcher, cfg: cfg, now: time.Now}
}

// Aggregate fetches all feeds concurrently and returns the deduplicated,
// recency-filtered article set. A failing feed is logged and skipped; an empty
// final set is an error and fatal to the run.
func (a *Aggregator) Aggregate(ctx context.Context) (*Result, error) {
	type feedRef struct {
		url      string
		category string
	}

	var feeds []feedRef
	for category, urls := range a.cfg.Categories {
		for _, u := range urls {
			feeds = append(feeds, feedRef{url: u, category: category})
		}
	}

	log.Printf("[INFO] aggregating %d feeds in %d categories", len(feeds), len(a.cfg.Categories))

	// bounded fan-out, merged post-hoc to avoid interleaving
	sem := make(chan struct{}, a.cfg.MaxConcurrent)
	results := make(chan []domain.Article, len(feeds))
	var wg sync.WaitGroup

	for _, f := range feeds {
		wg.Add(1)
		go func(f feedRef) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()

			articles, err := a.fetcher.Parse(fetchCtx, f.url, f.category)
			if err != nil {
				log.Printf("[WARN] failed to fetch %s: %v", f.url, err)
				return
			}
			results <- articles
		}(f)
	}

	wg.Wait()
	close(results)

	var all []domain.Article
	for articles := range results {
		all = append(all, articles...)
	}

	// dedup by URL-derived ID, first occurrence wins
	seen := make(map[string]struct{}, len(all))
	deduped := make([]domain.Article, 0, len(all))
	for _, art := range all {
		if _, ok := seen[art.ID]; ok {
			continue
		}
		seen[art.ID] = struct{}{}
		deduped = append(deduped, art)
	}

	// newest first
	sort.Slice(deduped, func(i, j int) bool { return deduped[i].Published.After(deduped[j].Published) })

	res := &Result{FeedCount: len(feeds), Fetched: len(all)}
	res.Articles = a.filterRecent(deduped, a.cfg.Lookback)

	// widen once when below the minimum, re-filtering only
	if len(res.Articles) < a.cfg.MinArticles {
		log.Printf("[WARN] only %d articles within %v, widening lookback to %v",
			len(res.Articles), a.cfg.Lookback, a.cfg.ExtendedLookback)
		res.Articles = a.filterRecent(deduped, a.cfg.ExtendedLookback)
		res.Widened = true
	}

	log.Printf("[INFO] aggregation: %d fetched, %d unique, %d within window (widened=%v)",
		res.Fetched, len(deduped), len(res.Articles), res.Widened)

	if len(res.Articles) == 0 {
		return nil, fmt.Errorf("no recent articles from %d feeds", len(feeds))
	}
	return res, nil
}

// filterRecent keeps articles published within the lookback window
func (a *Aggregator) filterRecent(articles []domain.Article, lookback time.Duration) []domain.Article {
	cutoff := a.now().Add(-lookback)
	res := make([]domain.Article, 0, len(articles))
	for _, art := range articles {
		if art.Published.After(cutoff) {
			res = append(res, art)
		}
	}
	return res
}
