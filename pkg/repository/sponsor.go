package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/briefdelights/briefly/pkg/domain"
)

// ErrScheduleConflict is returned when a (date, segment) slot is already taken
var ErrScheduleConflict = errors.New("schedule slot already taken")

// SponsorRepository handles sponsor creatives and the placement schedule
type SponsorRepository struct {
	db *sqlx.DB
}

// NewSponsorRepository creates a new sponsor repository
func NewSponsorRepository(db *sqlx.DB) *SponsorRepository {
	return &SponsorRepository{db: db}
}

// sponsorRow is the database representation of a sponsor creative
type sponsorRow struct {
	ID        int64     `db:"id"`
	Company   string    `db:"company"`
	Headline  string    `db:"headline"`
	Desc      string    `db:"description"`
	CTAText   string    `db:"cta_text"`
	CTAURL    string    `db:"cta_url"`
	Segments  string    `db:"segments"`
	Active    bool      `db:"active"`
	IsDefault bool      `db:"is_default"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *sponsorRow) toDomain() domain.SponsorContent {
	var segments []string
	if r.Segments != "" {
		segments = strings.Split(r.Segments, ",")
	}
	return domain.SponsorContent{
		ID:        r.ID,
		Company:   r.Company,
		Headline:  r.Headline,
		Desc:      r.Desc,
		CTAText:   r.CTAText,
		CTAURL:    r.CTAURL,
		Segments:  segments,
		Active:    r.Active,
		IsDefault: r.IsDefault,
		CreatedAt: r.CreatedAt,
	}
}

// CreateContent adds a sponsor creative
func (r *SponsorRepository) CreateContent(ctx context.Context, c domain.SponsorContent) (int64, error) {
	query := `
		INSERT INTO sponsor_content (company, headline, description, cta_text, cta_url, segments, active, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query, c.Company, c.Headline, c.Desc, c.CTAText, c.CTAURL,
		strings.Join(c.Segments, ","), c.Active, c.IsDefault)
	if err != nil {
		return 0, fmt.Errorf("create sponsor content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get sponsor content id: %w", err)
	}
	return id, nil
}

// GetContent returns one sponsor creative
func (r *SponsorRepository) GetContent(ctx context.Context, id int64) (*domain.SponsorContent, error) {
	var row sponsorRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM sponsor_content WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sponsor content: %w", err)
	}
	c := row.toDomain()
	return &c, nil
}

// ListContent returns sponsor creatives, optionally only active ones
func (r *SponsorRepository) ListContent(ctx context.Context, activeOnly bool) ([]domain.SponsorContent, error) {
	query := `SELECT * FROM sponsor_content ORDER BY created_at DESC, id DESC`
	if activeOnly {
		query = `SELECT * FROM sponsor_content WHERE active = 1 ORDER BY created_at DESC, id DESC`
	}
	var rows []sponsorRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list sponsor content: %w", err)
	}
	result := make([]domain.SponsorContent, len(rows))
	for i := range rows {
		result[i] = rows[i].toDomain()
	}
	return result, nil
}

// SetContentActive toggles a creative on or off
func (r *SponsorRepository) SetContentActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sponsor_content SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("set sponsor active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sponsor content %d: %w", id, ErrNotFound)
	}
	return nil
}

// Schedule books a creative for one (date, segment) edition. A second booking
// for the same slot fails with ErrScheduleConflict.
func (r *SponsorRepository) Schedule(ctx context.Context, date, segment string, sponsorID int64) (int64, error) {
	query := `INSERT INTO sponsor_schedule (date, segment, sponsor_id) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, date, segment, sponsorID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("slot %s/%s: %w", date, segment, ErrScheduleConflict)
		}
		return 0, fmt.Errorf("schedule sponsor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get schedule id: %w", err)
	}
	return id, nil
}

// CancelSchedule marks a scheduled entry cancelled, freeing nothing: the
// unique slot stays occupied as a historical record
func (r *SponsorRepository) CancelSchedule(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sponsor_schedule SET status = ? WHERE id = ? AND status = ?`,
		domain.ScheduleStatusCancelled, id, domain.ScheduleStatusScheduled)
	if err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

// scheduleRow is the database representation of a schedule entry
type scheduleRow struct {
	ID             int64     `db:"id"`
	Date           string    `db:"date"`
	Segment        string    `db:"segment"`
	SponsorID      int64     `db:"sponsor_id"`
	Status         string    `db:"status"`
	Impressions    int64     `db:"impressions"`
	Clicks         int64     `db:"clicks"`
	NewsletterSlug string    `db:"newsletter_slug"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *scheduleRow) toDomain() domain.ScheduleEntry {
	return domain.ScheduleEntry{
		ID:             r.ID,
		Date:           r.Date,
		Segment:        r.Segment,
		SponsorID:      r.SponsorID,
		Status:         r.Status,
		Impressions:    r.Impressions,
		Clicks:         r.Clicks,
		NewsletterSlug: r.NewsletterSlug,
		CreatedAt:      r.CreatedAt,
	}
}

// ListSchedule returns schedule entries in the inclusive date range
func (r *SponsorRepository) ListSchedule(ctx context.Context, from, to string) ([]domain.ScheduleEntry, error) {
	var rows []scheduleRow
	query := `SELECT * FROM sponsor_schedule WHERE date >= ? AND date <= ? ORDER BY date, segment`
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("list schedule: %w", err)
	}
	result := make([]domain.ScheduleEntry, len(rows))
	for i := range rows {
		result[i] = rows[i].toDomain()
	}
	return result, nil
}

// GetSponsorForNewsletter resolves the creative for one edition: the scheduled
// entry when one exists for the date and segment, otherwise the active default
// creative targeting the segment. Returns nil when neither applies.
func (r *SponsorRepository) GetSponsorForNewsletter(ctx context.Context, date time.Time, segment string) (*domain.ResolvedSponsor, error) {
	day := date.Format("2006-01-02")

	var row struct {
		sponsorRow
		ScheduleID int64 `db:"schedule_id"`
	}
	query := `
		SELECT c.*, s.id AS schedule_id
		FROM sponsor_schedule s
		JOIN sponsor_content c ON c.id = s.sponsor_id
		WHERE s.date = ? AND s.segment = ? AND s.status = ? AND c.active = 1
	`
	err := r.db.GetContext(ctx, &row, query, day, segment, domain.ScheduleStatusScheduled)
	if err == nil {
		return &domain.ResolvedSponsor{SponsorContent: row.toDomain(), ScheduleID: row.ScheduleID}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get scheduled sponsor: %w", err)
	}

	// no booking, fall back to the default creative
	var defaults []sponsorRow
	defQuery := `SELECT * FROM sponsor_content WHERE active = 1 AND is_default = 1 ORDER BY created_at DESC, id DESC`
	if err := r.db.SelectContext(ctx, &defaults, defQuery); err != nil {
		return nil, fmt.Errorf("get default sponsor: %w", err)
	}
	for i := range defaults {
		c := defaults[i].toDomain()
		if len(c.Segments) == 0 || slices.Contains(c.Segments, segment) {
			return &domain.ResolvedSponsor{SponsorContent: c, FromDefault: true}, nil
		}
	}
	return nil, nil
}

// MarkScheduleSent transitions an entry to sent and records the newsletter slug
func (r *SponsorRepository) MarkScheduleSent(ctx context.Context, scheduleID int64, slug string) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		query := `UPDATE sponsor_schedule SET status = ?, newsletter_slug = ? WHERE id = ?`
		_, err := r.db.ExecContext(ctx, query, domain.ScheduleStatusSent, slug, scheduleID)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("mark schedule sent: %w", err)}
		}
		return nil
	})
}

// IncrementImpressions bumps the impression counter atomically
func (r *SponsorRepository) IncrementImpressions(ctx context.Context, scheduleID int64) error {
	return r.increment(ctx, "impressions", scheduleID)
}

// IncrementClicks bumps the click counter atomically
func (r *SponsorRepository) IncrementClicks(ctx context.Context, scheduleID int64) error {
	return r.increment(ctx, "clicks", scheduleID)
}

func (r *SponsorRepository) increment(ctx context.Context, column string, scheduleID int64) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		// column is one of two fixed names, never user input
		query := fmt.Sprintf(`UPDATE sponsor_schedule SET %s = %s + 1 WHERE id = ?`, column, column)
		res, err := r.db.ExecContext(ctx, query, scheduleID)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("increment %s: %w", column, err)}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &criticalError{err: fmt.Errorf("schedule %d: %w", scheduleID, ErrNotFound)}
		}
		return nil
	})
}
