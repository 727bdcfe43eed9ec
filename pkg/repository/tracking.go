package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/briefdelights/briefly/pkg/domain"
)

// TrackingRepository persists click events and per-run send logs
type TrackingRepository struct {
	db *sqlx.DB
}

// NewTrackingRepository creates a new tracking repository
func NewTrackingRepository(db *sqlx.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// RecordClick stores one article click-through event
func (r *TrackingRepository) RecordClick(ctx context.Context, click domain.ClickEvent) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := `INSERT INTO article_clicks (url, segment, newsletter_date, tier) VALUES (?, ?, ?, ?)`
		_, err := r.db.ExecContext(ctx, query, click.URL, click.Segment, click.Date, click.Tier)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("record click: %w", err)}
		}
		return nil
	})
}

// CountClicks returns the number of clicks recorded for a newsletter date
func (r *TrackingRepository) CountClicks(ctx context.Context, date string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM article_clicks WHERE newsletter_date = ?`, date)
	if err != nil {
		return 0, fmt.Errorf("count clicks: %w", err)
	}
	return count, nil
}

// SaveSendLog persists the per-run delivery record, one row per run
func (r *TrackingRepository) SaveSendLog(ctx context.Context, sendLog domain.SendLog) error {
	payload, err := json.Marshal(sendLog)
	if err != nil {
		return fmt.Errorf("marshal send log: %w", err)
	}

	query := `
		INSERT INTO send_logs (run_id, date, total_sent, total_failed, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			total_sent = excluded.total_sent,
			total_failed = excluded.total_failed,
			payload = excluded.payload
	`
	if _, err := r.db.ExecContext(ctx, query, sendLog.RunID, sendLog.Date, sendLog.TotalSent, sendLog.TotalFailed, string(payload)); err != nil {
		return fmt.Errorf("save send log: %w", err)
	}
	return nil
}

// GetSendLog returns the delivery record for one run
func (r *TrackingRepository) GetSendLog(ctx context.Context, runID string) (*domain.SendLog, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM send_logs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get send log: %w", err)
	}

	var sendLog domain.SendLog
	if err := json.Unmarshal([]byte(payload), &sendLog); err != nil {
		return nil, fmt.Errorf("unmarshal send log: %w", err)
	}
	return &sendLog, nil
}
