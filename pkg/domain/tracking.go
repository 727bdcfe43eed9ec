package domain

import "time"

// ClickEvent is one article click-through captured by the redirect endpoint
type ClickEvent struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Segment   string    `json:"segment"`
	Date      string    `json:"date"` // newsletter date YYYY-MM-DD
	Tier      string    `json:"tier"`
	ClickedAt time.Time `json:"clicked_at"`
}
