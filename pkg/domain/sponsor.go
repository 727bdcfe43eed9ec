package domain

import "time"

// SponsorContent is a reusable ad creative managed via the admin API.
// Schedule entries reference it, they never copy it.
type SponsorContent struct {
	ID        int64     `json:"id"`
	Company   string    `json:"company"`
	Headline  string    `json:"headline"`
	Desc      string    `json:"description"`
	CTAText   string    `json:"cta_text"`
	CTAURL    string    `json:"cta_url"`
	Segments  []string  `json:"segments"` // target segments, empty means all
	Active    bool      `json:"active"`
	IsDefault bool      `json:"is_default"` // fallback creative when nothing is scheduled
	CreatedAt time.Time `json:"created_at"`
}

// schedule entry statuses
const (
	ScheduleStatusScheduled = "scheduled"
	ScheduleStatusSent      = "sent"
	ScheduleStatusCancelled = "cancelled"
)

// ScheduleEntry assigns a sponsor creative to one (date, segment) edition.
// At most one entry exists per (date, segment). Once sent it is a historical
// record carrying impression and click counters.
type ScheduleEntry struct {
	ID             int64     `json:"id"`
	Date           string    `json:"date"` // YYYY-MM-DD
	Segment        string    `json:"segment"`
	SponsorID      int64     `json:"sponsor_id"`
	Status         string    `json:"status"`
	Impressions    int64     `json:"impressions"`
	Clicks         int64     `json:"clicks"`
	NewsletterSlug string    `json:"newsletter_slug,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResolvedSponsor is the scheduled-or-default lookup result used at injection
// time. ScheduleID is zero when the creative came from the segment default.
type ResolvedSponsor struct {
	SponsorContent
	ScheduleID  int64 `json:"schedule_id,omitempty"`
	FromDefault bool  `json:"from_default"`
}
