package sponsor

import (
	"context"
	"fmt"
	"html"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/briefdelights/briefly/pkg/domain"
)

// sponsor block boundaries left in place by the composer
const (
	markerStart = "<!-- sponsor:start -->"
	markerEnd   = "<!-- sponsor:end -->"
)

// Store is the sponsor persistence the injector needs
type Store interface {
	GetSponsorForNewsletter(ctx context.Context, date time.Time, segment string) (*domain.ResolvedSponsor, error)
	MarkScheduleSent(ctx context.Context, scheduleID int64, slug string) error
	IncrementImpressions(ctx context.Context, scheduleID int64) error
}

// Injector fills the newsletter's sponsor block from the schedule, falling
// back to the default sponsor, or strips the block when no sponsor applies.
type Injector struct {
	store        Store
	trackingBase string
}

// NewInjector creates a sponsor injector. trackingBase is the sponsor
// click-redirect endpoint.
func NewInjector(store Store, trackingBase string) *Injector {
	return &Injector{store: store, trackingBase: trackingBase}
}

// Inject resolves the sponsor for the date and segment and substitutes the
// placeholder block. Returns the final HTML and the resolved sponsor (nil
// when the block was stripped). Substitution is idempotent: HTML without the
// markers passes through unchanged.
func (inj *Injector) Inject(ctx context.Context, htmlBody string, date time.Time, segment string) (string, *domain.ResolvedSponsor, error) {
	if !strings.Contains(htmlBody, markerStart) {
		return htmlBody, nil, nil
	}

	resolved, err := inj.store.GetSponsorForNewsletter(ctx, date, segment)
	if err != nil {
		return "", nil, fmt.Errorf("resolve sponsor for %s/%s: %w", date.Format("2006-01-02"), segment, err)
	}
	if resolved == nil {
		log.Printf("[INFO] no sponsor for %s/%s, stripping sponsor block", date.Format("2006-01-02"), segment)
		return stripBlock(htmlBody), nil, nil
	}

	if resolved.FromDefault {
		log.Printf("[INFO] using default sponsor %q for %s/%s", resolved.Company, date.Format("2006-01-02"), segment)
	}

	out := inj.substitute(htmlBody, resolved, date, segment)
	return out, resolved, nil
}

// MarkSent records post-send sponsor bookkeeping: the schedule entry moves to
// sent with the newsletter slug and gets one impression. Default sponsors have
// no schedule entry and only exist in the rendered HTML.
func (inj *Injector) MarkSent(ctx context.Context, resolved *domain.ResolvedSponsor, slug string) error {
	if resolved == nil || resolved.FromDefault {
		return nil
	}
	if err := inj.store.MarkScheduleSent(ctx, resolved.ScheduleID, slug); err != nil {
		return fmt.Errorf("mark sponsor schedule %d sent: %w", resolved.ScheduleID, err)
	}
	if err := inj.store.IncrementImpressions(ctx, resolved.ScheduleID); err != nil {
		return fmt.Errorf("record sponsor impression for schedule %d: %w", resolved.ScheduleID, err)
	}
	return nil
}

// substitute fills every sponsor placeholder in the block
func (inj *Injector) substitute(htmlBody string, sp *domain.ResolvedSponsor, date time.Time, segment string) string {
	replacer := strings.NewReplacer(
		"{{ sponsor_company }}", html.EscapeString(sp.Company),
		"{{ sponsor_headline }}", html.EscapeString(sp.Headline),
		"{{ sponsor_description }}", html.EscapeString(sp.Desc),
		"{{ sponsor_cta_text }}", html.EscapeString(sp.CTAText),
		"{{ sponsor_cta_url }}", html.EscapeString(inj.trackedCTA(sp, date, segment)),
	)
	return replacer.Replace(htmlBody)
}

// trackedCTA wraps the sponsor's CTA link through the sponsor click redirect
func (inj *Injector) trackedCTA(sp *domain.ResolvedSponsor, date time.Time, segment string) string {
	q := url.Values{}
	q.Set("url", sp.CTAURL)
	q.Set("s", segment)
	q.Set("d", date.Format("2006-01-02"))
	if !sp.FromDefault {
		q.Set("sched", strconv.FormatInt(sp.ScheduleID, 10))
	}
	return inj.trackingBase + "?" + q.Encode()
}

// stripBlock removes the sponsor block, markers included
func stripBlock(htmlBody string) string {
	start := strings.Index(htmlBody, markerStart)
	end := strings.Index(htmlBody, markerEnd)
	if start == -1 || end == -1 || end < start {
		return htmlBody
	}
	return htmlBody[:start] + htmlBody[end+len(markerEnd):]
}
