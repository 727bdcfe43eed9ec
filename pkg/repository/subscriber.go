package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/briefdelights/briefly/pkg/domain"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// SubscriberRepository handles subscriber-related database operations
type SubscriberRepository struct {
	db *sqlx.DB
}

// NewSubscriberRepository creates a new subscriber repository
func NewSubscriberRepository(db *sqlx.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// subscriberRow is the database representation of a subscriber
type subscriberRow struct {
	ID           int64        `db:"id"`
	Email        string       `db:"email"`
	Segment      string       `db:"segment"`
	Status       string       `db:"status"`
	ReferralCode string       `db:"referral_code"`
	ReferredBy   string       `db:"referred_by"`
	CreatedAt    time.Time    `db:"created_at"`
	ConfirmedAt  sql.NullTime `db:"confirmed_at"`
}

func (r *subscriberRow) toDomain() domain.Subscriber {
	s := domain.Subscriber{
		ID:           r.ID,
		Email:        r.Email,
		Segment:      r.Segment,
		Status:       r.Status,
		ReferralCode: r.ReferralCode,
		ReferredBy:   r.ReferredBy,
		CreatedAt:    r.CreatedAt,
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time
		s.ConfirmedAt = &t
	}
	return s
}

// Create adds a new pending subscriber. Email is normalized to lower case.
func (r *SubscriberRepository) Create(ctx context.Context, email, segment, referralCode, referredBy string) (int64, error) {
	query := `
		INSERT INTO subscribers (email, segment, status, referral_code, referred_by)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query, strings.ToLower(strings.TrimSpace(email)), segment, domain.SubscriberPending, referralCode, referredBy)
	if err != nil {
		return 0, fmt.Errorf("create subscriber: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get subscriber id: %w", err)
	}
	return id, nil
}

// Confirm moves a subscriber to confirmed and stamps the confirmation time
func (r *SubscriberRepository) Confirm(ctx context.Context, email string) error {
	query := `
		UPDATE subscribers
		SET status = ?, confirmed_at = datetime('now')
		WHERE email = ? AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query, domain.SubscriberConfirmed, strings.ToLower(email), domain.SubscriberPending)
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("confirm subscriber %s: %w", email, ErrNotFound)
	}
	return nil
}

// Unsubscribe marks a subscriber as unsubscribed, keeping the record
func (r *SubscriberRepository) Unsubscribe(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE subscribers SET status = ? WHERE email = ?`,
		domain.SubscriberUnsubscribed, strings.ToLower(email))
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unsubscribe %s: %w", email, ErrNotFound)
	}
	return nil
}

// GetByEmail returns one subscriber
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	var row subscriberRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM subscribers WHERE email = ?`, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	s := row.toDomain()
	return &s, nil
}

// Filter narrows subscriber listings, zero values mean no constraint
type Filter struct {
	Segment string
	Status  string
	Limit   uint64
}

// List returns subscribers matching the filter, oldest first
func (r *SubscriberRepository) List(ctx context.Context, filter Filter) ([]domain.Subscriber, error) {
	builder := sq.Select("*").From("subscribers").OrderBy("created_at", "id")
	if filter.Segment != "" {
		builder = builder.Where(sq.Eq{"segment": filter.Segment})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subscriber query: %w", err)
	}

	var rows []subscriberRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	subscribers := make([]domain.Subscriber, len(rows))
	for i := range rows {
		subscribers[i] = rows[i].toDomain()
	}
	return subscribers, nil
}

// ListConfirmed returns the confirmed recipients for one segment
func (r *SubscriberRepository) ListConfirmed(ctx context.Context, segment string) ([]domain.Subscriber, error) {
	return r.List(ctx, Filter{Segment: segment, Status: domain.SubscriberConfirmed})
}

// CountBySegment returns confirmed subscriber counts keyed by segment
func (r *SubscriberRepository) CountBySegment(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Segment string `db:"segment"`
		Count   int    `db:"count"`
	}
	query := `SELECT segment, COUNT(*) as count FROM subscribers WHERE status = ? GROUP BY segment`
	if err := r.db.SelectContext(ctx, &rows, query, domain.SubscriberConfirmed); err != nil {
		return nil, fmt.Errorf("count subscribers: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Segment] = row.Count
	}
	return counts, nil
}

// Delete removes a subscriber record entirely
func (r *SubscriberRepository) Delete(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = ?`, strings.ToLower(email))
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", email, ErrNotFound)
	}
	return nil
}
