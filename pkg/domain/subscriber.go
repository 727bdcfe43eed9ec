package domain

import "time"

// subscriber statuses
const (
	SubscriberPending      = "pending"
	SubscriberConfirmed    = "confirmed"
	SubscriberUnsubscribed = "unsubscribed"
)

// Subscriber is a newsletter recipient owned by the database. Created on
// signup, mutated on confirm/unsubscribe, never physically deleted except by
// explicit admin action.
type Subscriber struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Segment      string     `json:"segment"`
	Status       string     `json:"status"`
	ReferralCode string     `json:"referral_code,omitempty"`
	ReferredBy   string     `json:"referred_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

// SendOutcome records a single delivery attempt result
type SendOutcome struct {
	Email     string    `json:"email"`
	Status    string    `json:"status"` // success or failed
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SegmentSendResult aggregates outcomes for one segment's send
type SegmentSendResult struct {
	Segment        string        `json:"segment"`
	Sent           int           `json:"sent"`
	Failed         int           `json:"failed"`
	Sponsor        string        `json:"sponsor,omitempty"`         // company name or "none"
	SponsorDefault bool          `json:"sponsor_default,omitempty"` // creative came from the segment default, not a schedule
	Details        []SendOutcome `json:"details"`
	Skipped        bool          `json:"skipped,omitempty"` // no confirmed subscribers
	ErrorMsg       string        `json:"error,omitempty"`
}

// SendLog is the write-once per-run delivery record
type SendLog struct {
	RunID       string                       `json:"run_id"`
	Date        string                       `json:"date"`
	Timestamp   time.Time                    `json:"timestamp"`
	TotalSent   int                          `json:"total_sent"`
	TotalFailed int                          `json:"total_failed"`
	Segments    map[string]SegmentSendResult `json:"segments"`
}
