package domain

import "time"

// Tier is an article's treatment level within an edition
type Tier string

// tier values assigned by the story selector
const (
	TierFull     Tier = "full"     // deep summary with editorial context
	TierQuick    Tier = "quick"    // one-liner only
	TierTrending Tier = "trending" // topic-only, no summary
)

// Valid reports whether the tier is one of the known values
func (t Tier) Valid() bool {
	return t == TierFull || t == TierQuick || t == TierTrending
}

// SourceType marks an article as an original announcement or news coverage of one
type SourceType string

// source type values, detected heuristically at aggregation time
const (
	SourcePrimary   SourceType = "primary"
	SourceSecondary SourceType = "secondary"
)

// Article is a single story flowing through the pipeline. Created by the
// aggregator, enriched by the selector (tier and selection metadata) and the
// summarizer (summary fields), read-only afterwards. Lives for one run and is
// persisted only as an intermediate artifact.
type Article struct {
	ID         string     `json:"id"` // md5 of the canonical URL, the dedup key
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Published  time.Time  `json:"published_date"`
	Source     string     `json:"source"` // publisher name from the feed
	Category   string     `json:"category"`
	SourceType SourceType `json:"source_type"`
	Desc       string     `json:"description"`
	RawContent string     `json:"raw_content,omitempty"`

	// selection metadata, set by the selector
	Tier            Tier   `json:"tier,omitempty"`
	SelectionReason string `json:"selection_reason,omitempty"`
	AudienceValue   string `json:"audience_value,omitempty"`
	UrgencyScore    int    `json:"urgency_score,omitempty"`
	CategoryTag     string `json:"category_tag,omitempty"`

	// summary fields, set by the summarizer
	Summary       string `json:"summary,omitempty"`
	KeyTakeaway   string `json:"key_takeaway,omitempty"`
	WhyItMatters  string `json:"why_this_matters,omitempty"`
	ReadTimeMin   int    `json:"read_time_minutes,omitempty"`
	FullContent   string `json:"full_content,omitempty"` // scraped text, when available
	TrackedURL    string `json:"tracked_url,omitempty"`  // set by the composer
	SummaryFailed bool   `json:"-"`                      // per-article summarization failure marker
}

// TieredSet holds one segment's selected articles split by treatment level
type TieredSet struct {
	Segment  string    `json:"segment"`
	Full     []Article `json:"full"`
	Quick    []Article `json:"quick"`
	Trending []Article `json:"trending"`
}

// All returns articles from all tiers, full first
func (s *TieredSet) All() []Article {
	res := make([]Article, 0, len(s.Full)+len(s.Quick)+len(s.Trending))
	res = append(res, s.Full...)
	res = append(res, s.Quick...)
	res = append(res, s.Trending...)
	return res
}

// Split distributes a flat selected list into tiers preserving order
func Split(segment string, articles []Article) *TieredSet {
	set := &TieredSet{Segment: segment}
	for _, a := range articles {
		switch a.Tier {
		case TierQuick:
			set.Quick = append(set.Quick, a)
		case TierTrending:
			set.Trending = append(set.Trending, a)
		default:
			set.Full = append(set.Full, a)
		}
	}
	return set
}
