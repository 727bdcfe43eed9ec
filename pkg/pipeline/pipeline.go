package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/domain"
	"github.com/briefdelights/briefly/pkg/feed"
)

// how many segments run their LLM stages at once
const segmentConcurrency = 2

// Aggregator produces the day's article pool
type Aggregator interface {
	Aggregate(ctx context.Context) (*feed.Result, error)
}

// Selector picks and tiers stories for one segment
type Selector interface {
	Select(ctx context.Context, segName string, seg config.Segment, articles []domain.Article) (*domain.TieredSet, error)
}

// Summarizer fills summaries for a tiered set in place
type Summarizer interface {
	Summarize(ctx context.Context, seg config.Segment, set *domain.TieredSet) error
}

// Preparer resolves the full text for one article
type Preparer interface {
	Prepare(ctx context.Context, article *domain.Article)
}

// Composer renders a tiered set into newsletter HTML
type Composer interface {
	Compose(set *domain.TieredSet, segmentName, emoji string, date time.Time) (string, error)
}

// SponsorInjector fills or strips the sponsor block and records the send
type SponsorInjector interface {
	Inject(ctx context.Context, html string, date time.Time, segment string) (string, *domain.ResolvedSponsor, error)
	MarkSent(ctx context.Context, resolved *domain.ResolvedSponsor, slug string) error
}

// Deliverer sends the newsletter to a segment's recipients
type Deliverer interface {
	Send(ctx context.Context, segment, subject, html string, subscribers []domain.Subscriber, dryRun bool) domain.SegmentSendResult
}

// SubscriberStore lists recipients
type SubscriberStore interface {
	ListConfirmed(ctx context.Context, segment string) ([]domain.Subscriber, error)
}

// SendLogStore persists the per-run delivery record
type SendLogStore interface {
	SaveSendLog(ctx context.Context, sendLog domain.SendLog) error
}

// Pipeline wires the daily run: aggregate once, then select, summarize,
// compose, inject and send per segment. One segment failing never stops the
// others; an empty aggregation stops everything.
type Pipeline struct {
	cfg         *config.Config
	aggregator  Aggregator
	selector    Selector
	summarizer  Summarizer
	preparer    Preparer
	composer    Composer
	injector    SponsorInjector
	deliverer   Deliverer
	subscribers SubscriberStore
	sendLogs    SendLogStore
	artifacts   *Artifacts

	now   func() time.Time
	runID func() string
}

// Deps bundles the pipeline's collaborators
type Deps struct {
	Aggregator  Aggregator
	Selector    Selector
	Summarizer  Summarizer
	Preparer    Preparer
	Composer    Composer
	Injector    SponsorInjector
	Deliverer   Deliverer
	Subscribers SubscriberStore
	SendLogs    SendLogStore
}

// New creates a pipeline
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		aggregator:  deps.Aggregator,
		selector:    deps.Selector,
		summarizer:  deps.Summarizer,
		preparer:    deps.Preparer,
		composer:    deps.Composer,
		injector:    deps.Injector,
		deliverer:   deps.Deliverer,
		subscribers: deps.Subscribers,
		sendLogs:    deps.SendLogs,
		artifacts:   NewArtifacts(cfg.Pipeline.ArtifactsDir),
		now:         time.Now,
		runID:       uuid.NewString,
	}
}

// Run executes the whole daily pipeline for the given segments (all configured
// segments when empty). Returns the delivery record; the error is non-nil only
// for run-fatal conditions, per-segment failures live in the record.
func (p *Pipeline) Run(ctx context.Context, segments []string, dryRun bool) (*domain.SendLog, error) {
	date := p.now().UTC()
	day := date.Format("2006-01-02")

	articles, err := p.RunAggregate(ctx)
	if err != nil {
		return nil, err
	}

	segNames, err := p.resolveSegments(segments)
	if err != nil {
		return nil, err
	}

	sendLog := &domain.SendLog{
		RunID:     p.runID(),
		Date:      day,
		Timestamp: date,
		Segments:  make(map[string]domain.SegmentSendResult, len(segNames)),
	}

	results := make([]domain.SegmentSendResult, len(segNames))
	var g errgroup.Group
	g.SetLimit(segmentConcurrency)
	for i, name := range segNames {
		g.Go(func() error {
			results[i] = p.runSegment(ctx, name, articles, date, dryRun)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // segment errors are captured in results

	for i, name := range segNames {
		sendLog.Segments[name] = results[i]
		sendLog.TotalSent += results[i].Sent
		sendLog.TotalFailed += results[i].Failed
	}

	if err := p.artifacts.SaveSendLog(day, sendLog); err != nil {
		log.Printf("[WARN] failed to save send log artifact: %v", err)
	}
	if p.sendLogs != nil && !dryRun {
		if err := p.sendLogs.SaveSendLog(ctx, *sendLog); err != nil {
			log.Printf("[WARN] failed to persist send log: %v", err)
		}
	}

	log.Printf("[INFO] run %s done: %d sent, %d failed across %d segments",
		sendLog.RunID, sendLog.TotalSent, sendLog.TotalFailed, len(segNames))
	return sendLog, nil
}

// runSegment takes one segment from selection through delivery. Any stage
// failing marks the segment and leaves the others alone.
func (p *Pipeline) runSegment(ctx context.Context, name string, articles []domain.Article, date time.Time, dryRun bool) domain.SegmentSendResult {
	day := date.Format("2006-01-02")
	seg := p.cfg.Segments[name]

	fail := func(stage string, err error) domain.SegmentSendResult {
		log.Printf("[WARN] segment %s failed at %s: %v", name, stage, err)
		return domain.SegmentSendResult{Segment: name, ErrorMsg: fmt.Sprintf("%s: %v", stage, err)}
	}

	set, err := p.SelectSegment(ctx, name, articles, day)
	if err != nil {
		return fail("select", err)
	}

	if err := p.SummarizeSegment(ctx, name, set, day); err != nil {
		return fail("summarize", err)
	}

	html, err := p.ComposeSegment(set, name, date)
	if err != nil {
		return fail("compose", err)
	}

	html, resolved, err := p.injector.Inject(ctx, html, date, name)
	if err != nil {
		return fail("sponsor", err)
	}

	subs, err := p.subscribers.ListConfirmed(ctx, name)
	if err != nil {
		return fail("subscribers", err)
	}

	subject := fmt.Sprintf("%s %s - %s", seg.Emoji, p.cfg.Newsletter.Name, date.Format("Jan 2, 2006"))
	result := p.deliverer.Send(ctx, name, subject, html, subs, dryRun)

	if resolved != nil {
		result.Sponsor = resolved.Company
		result.SponsorDefault = resolved.FromDefault
		if !dryRun && result.Sent > 0 {
			slug := fmt.Sprintf("%s-%s", name, day)
			if err := p.injector.MarkSent(ctx, resolved, slug); err != nil {
				log.Printf("[WARN] sponsor bookkeeping failed for segment %s: %v", name, err)
			}
		}
	}
	return result
}

// RunAggregate fetches all feeds and writes the raw article artifact. An empty
// pool is fatal to the run.
func (p *Pipeline) RunAggregate(ctx context.Context) ([]domain.Article, error) {
	res, err := p.aggregator.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	day := p.now().UTC().Format("2006-01-02")
	if err := p.artifacts.SaveRawArticles(day, res.Articles); err != nil {
		return nil, fmt.Errorf("save raw articles: %w", err)
	}
	log.Printf("[INFO] aggregated %d articles from %d feeds (widened=%v)", len(res.Articles), res.Fetched, res.Widened)
	return res.Articles, nil
}

// SelectSegment runs story selection for one segment and writes its artifact
func (p *Pipeline) SelectSegment(ctx context.Context, name string, articles []domain.Article, day string) (*domain.TieredSet, error) {
	seg, ok := p.cfg.Segments[name]
	if !ok {
		return nil, fmt.Errorf("unknown segment %q", name)
	}

	timeout := p.cfg.LLM.Selection.Timeout
	selCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	set, err := p.selector.Select(selCtx, name, seg, articles)
	if err != nil {
		return nil, err
	}
	if err := p.artifacts.SaveSelected(name, day, set); err != nil {
		return nil, fmt.Errorf("save selection: %w", err)
	}
	log.Printf("[INFO] segment %s: selected %d full, %d quick, %d trending",
		name, len(set.Full), len(set.Quick), len(set.Trending))
	return set, nil
}

// SummarizeSegment resolves article content, summarizes the set and writes its artifact
func (p *Pipeline) SummarizeSegment(ctx context.Context, name string, set *domain.TieredSet, day string) error {
	seg := p.cfg.Segments[name]

	// full and quick tiers need text, trending does not
	for i := range set.Full {
		p.preparer.Prepare(ctx, &set.Full[i])
	}
	for i := range set.Quick {
		p.preparer.Prepare(ctx, &set.Quick[i])
	}

	if err := p.summarizer.Summarize(ctx, seg, set); err != nil {
		return err
	}
	if err := p.artifacts.SaveSummaries(name, day, set); err != nil {
		return fmt.Errorf("save summaries: %w", err)
	}
	return nil
}

// ComposeSegment renders the newsletter HTML and writes its artifact
func (p *Pipeline) ComposeSegment(set *domain.TieredSet, name string, date time.Time) (string, error) {
	seg := p.cfg.Segments[name]

	html, err := p.composer.Compose(set, seg.Name, seg.Emoji, date)
	if err != nil {
		return "", err
	}
	if err := p.artifacts.SaveNewsletter(name, date.Format("2006-01-02"), html); err != nil {
		return "", fmt.Errorf("save newsletter: %w", err)
	}
	return html, nil
}

// Artifacts exposes the artifact store for step-wise CLI commands
func (p *Pipeline) Artifacts() *Artifacts {
	return p.artifacts
}

// resolveSegments validates requested segment names, defaulting to all
func (p *Pipeline) resolveSegments(requested []string) ([]string, error) {
	if len(requested) == 0 {
		names := make([]string, 0, len(p.cfg.Segments))
		for name := range p.cfg.Segments {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}
	for _, name := range requested {
		if _, ok := p.cfg.Segments[name]; !ok {
			return nil, fmt.Errorf("unknown segment %q", name)
		}
	}
	return requested, nil
}
