package compose

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/briefdelights/briefly/pkg/domain"
)

//go:embed template.html
var newsletterTemplate string

// gmail clips messages above roughly this many bytes
const clipWarnBytes = 102 * 1024

// quick-hit sections appear in this order, unknown tags follow alphabetically
var sectionOrder = []string{"ai", "dev", "cloud", "security", "data", "startups", "business"}

// Composer renders a segment's tiered article set into the final newsletter HTML.
// Go template actions use [[ ]] delimiters so the sponsor placeholder block
// survives rendering verbatim for the injector to fill in later.
type Composer struct {
	name           string
	siteURL        string
	unsubscribeURL string
	trackingBase   string
	tmpl           *template.Template
}

// NewComposer creates a composer. trackingBase is the click-redirect endpoint
// all article links are routed through.
func NewComposer(name, siteURL, unsubscribeURL, trackingBase string) (*Composer, error) {
	tmpl, err := template.New("newsletter").Delims("[[", "]]").Parse(newsletterTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse newsletter template: %w", err)
	}
	return &Composer{
		name:           name,
		siteURL:        siteURL,
		unsubscribeURL: unsubscribeURL,
		trackingBase:   trackingBase,
		tmpl:           tmpl,
	}, nil
}

// quickSection groups quick-tier articles under one topic tag
type quickSection struct {
	Tag   string
	Items []domain.Article
}

// templateData is what the newsletter template renders from
type templateData struct {
	Name           string
	Emoji          string
	SegmentName    string
	Date           string
	StoryCount     int
	SiteURL        string
	UnsubscribeURL string
	Full           []domain.Article
	QuickSections  []quickSection
	Trending       []domain.Article
}

// Compose renders the newsletter HTML for one segment and date. Empty tiers
// are omitted entirely; an entirely empty set is an error.
func (c *Composer) Compose(set *domain.TieredSet, segmentName, emoji string, date time.Time) (string, error) {
	if len(set.Full) == 0 && len(set.Quick) == 0 && len(set.Trending) == 0 {
		return "", fmt.Errorf("nothing to compose for segment %s", set.Segment)
	}

	day := date.Format("2006-01-02")
	data := templateData{
		Name:           c.name,
		Emoji:          emoji,
		SegmentName:    segmentName,
		Date:           date.Format("Monday, January 2, 2006"),
		StoryCount:     len(set.Full) + len(set.Quick) + len(set.Trending),
		SiteURL:        c.siteURL,
		UnsubscribeURL: c.unsubscribeURL,
		Full:           c.wrapLinks(set.Full, set.Segment, day),
		QuickSections:  c.groupQuick(c.wrapLinks(set.Quick, set.Segment, day)),
		Trending:       c.wrapLinks(set.Trending, set.Segment, day),
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render newsletter for %s: %w", set.Segment, err)
	}
	html := buf.String()

	for part, want := range map[string]string{
		"unsubscribe link": c.unsubscribeURL,
		"brand name":       c.name,
		"site link":        c.siteURL,
	} {
		if !strings.Contains(html, want) {
			log.Printf("[WARN] newsletter for %s is missing the %s", set.Segment, part)
		}
	}
	if len(html) > clipWarnBytes {
		log.Printf("[WARN] newsletter for %s is %d bytes, email clients may clip it", set.Segment, len(html))
	}
	return html, nil
}

// wrapLinks fills TrackedURL for each article, routing through the redirect endpoint
func (c *Composer) wrapLinks(articles []domain.Article, segment, day string) []domain.Article {
	out := make([]domain.Article, len(articles))
	for i, a := range articles {
		q := url.Values{}
		q.Set("url", a.URL)
		q.Set("s", segment)
		q.Set("d", day)
		q.Set("t", string(a.Tier))
		a.TrackedURL = c.trackingBase + "?" + q.Encode()
		out[i] = a
	}
	return out
}

// groupQuick buckets quick-tier articles by category tag, ordered by the fixed
// section priority with unknown tags trailing alphabetically
func (c *Composer) groupQuick(articles []domain.Article) []quickSection {
	byTag := make(map[string][]domain.Article)
	for _, a := range articles {
		tag := a.CategoryTag
		if tag == "" {
			tag = a.Category
		}
		byTag[tag] = append(byTag[tag], a)
	}

	rank := make(map[string]int, len(sectionOrder))
	for i, tag := range sectionOrder {
		rank[tag] = i
	}

	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		ri, iKnown := rank[tags[i]]
		rj, jKnown := rank[tags[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return tags[i] < tags[j]
		}
	})

	sections := make([]quickSection, 0, len(tags))
	for _, tag := range tags {
		sections = append(sections, quickSection{Tag: strings.ToUpper(tag), Items: byTag[tag]})
	}
	return sections
}
