package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quotewell/email-scheduler/internal/domain"
)

// BehaviorRepository implements domain.BehaviorRepository over the
// tracking_clicks and contact_events tables.
type BehaviorRepository struct {
	db *sql.DB
}

// NewBehaviorRepository creates a BehaviorRepository.
func NewBehaviorRepository(db *sql.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

// LastClick returns the most recent click at or after since, or nil.
func (r *BehaviorRepository) LastClick(ctx context.Context, contactID int64, since time.Time) (*time.Time, error) {
	query := `
		SELECT MAX(clicked_at)
		FROM tracking_clicks
		WHERE contact_id = ?
		AND clicked_at >= ?`

	var clickedAt sql.NullString
	err := r.db.QueryRowContext(ctx, query, contactID, formatDate(since)).Scan(&clickedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query clicks: %w", err)
	}
	if !clickedAt.Valid || clickedAt.String == "" {
		return nil, nil
	}

	t, err := parseDatetime(clickedAt.String)
	if err != nil {
		return nil, fmt.Errorf("contact %d click: %w", contactID, err)
	}
	return &t, nil
}

// LatestEligibility returns the most recent eligibility_answered event
// at or after since, or nil.
func (r *BehaviorRepository) LatestEligibility(ctx context.Context, contactID int64, since time.Time) (*domain.EligibilityEvent, error) {
	query := `
		SELECT metadata, MAX(created_at)
		FROM contact_events
		WHERE contact_id = ?
		AND event_type = 'eligibility_answered'
		AND created_at >= ?
		GROUP BY contact_id`

	var metadata sql.NullString
	var createdAt sql.NullString
	err := r.db.QueryRowContext(ctx, query, contactID, formatDate(since)).Scan(&metadata, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query eligibility events: %w", err)
	}
	if !createdAt.Valid {
		return nil, nil
	}

	t, err := parseDatetime(createdAt.String)
	if err != nil {
		return nil, fmt.Errorf("contact %d eligibility: %w", contactID, err)
	}
	return &domain.EligibilityEvent{
		Metadata:  metadata.String,
		CreatedAt: t,
	}, nil
}
