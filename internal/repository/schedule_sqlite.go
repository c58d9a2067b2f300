package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/quotewell/email-scheduler/internal/domain"
)

// ScheduleRepository implements domain.ScheduleRepository.
type ScheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository creates a ScheduleRepository.
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// SQLite caps bound parameters per statement; chunk sizes stay well
// under the limit.
const (
	clearChunkSize  = 500
	insertChunkSize = 200
)

// ClearPending deletes pre-scheduled and skipped rows for the given
// contacts, chunked to respect the parameter limit.
func (r *ScheduleRepository) ClearPending(ctx context.Context, contactIDs []int64) error {
	if len(contactIDs) == 0 {
		return nil
	}

	for start := 0; start < len(contactIDs); start += clearChunkSize {
		end := start + clearChunkSize
		if end > len(contactIDs) {
			end = len(contactIDs)
		}
		chunk := contactIDs[start:end]

		ids := make([]interface{}, len(chunk))
		for i, id := range chunk {
			ids[i] = id
		}

		query, args, err := psql.
			Delete("email_schedules").
			Where(sq.Eq{"status": []string{domain.StatusPreScheduled, domain.StatusSkipped}}).
			Where(sq.Eq{"contact_id": ids}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build delete: %w", err)
		}

		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear schedules: %w", err)
		}
	}
	return nil
}

var scheduleInsertColumns = []string{
	"contact_id", "email_type", "scheduled_send_date", "scheduled_send_time",
	"status", "skip_reason", "priority", "campaign_instance_id",
	"email_template", "sms_template", "scheduler_run_id",
	"event_year", "event_month", "event_day", "batch_id", "catchup_note",
}

// SaveBatch inserts all rows in one transaction. Collisions on
// (contact_id, email_type, scheduled_send_date) are silently ignored,
// which makes re-runs without a wipe idempotent.
func (r *ScheduleRepository) SaveBatch(ctx context.Context, schedules []*domain.EmailSchedule) error {
	if len(schedules) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(schedules); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(schedules) {
			end = len(schedules)
		}

		builder := psql.
			Insert("email_schedules").
			Options("OR IGNORE").
			Columns(scheduleInsertColumns...)

		for _, s := range schedules[start:end] {
			builder = builder.Values(
				s.ContactID, s.EmailType, formatDate(s.ScheduledSendDate), s.ScheduledSendTime,
				s.Status, nullString(s.SkipReason), s.Priority, nullInt64(s.CampaignInstanceID),
				nullString(s.EmailTemplate), nullString(s.SMSTemplate), s.SchedulerRunID,
				nullInt(s.EventYear), nullInt(s.EventMonth), nullInt(s.EventDay),
				nullString(s.BatchID), nullString(s.Metadata),
			)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert schedules: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentCounts returns per-contact counts of non-follow-up messages
// with send dates in [from, to) and status sent, delivered or
// pre-scheduled.
func (r *ScheduleRepository) RecentCounts(ctx context.Context, from, to time.Time) (map[int64]int, error) {
	query, args, err := psql.
		Select("contact_id", "COUNT(*)").
		From("email_schedules").
		Where("scheduled_send_date >= ?", formatDate(from)).
		Where("scheduled_send_date < ?", formatDate(to)).
		Where(sq.Eq{"status": []string{domain.StatusSent, domain.StatusDelivered, domain.StatusPreScheduled}}).
		Where("email_type NOT LIKE ?", domain.FollowupEmailTypePrefix+"%").
		GroupBy("contact_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var contactID int64
		var count int
		if err := rows.Scan(&contactID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[contactID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counts: %w", err)
	}
	return counts, nil
}

// EligibleForFollowup returns up to limit sent/delivered anniversary
// and campaign rows in [from, to], excluding contacts that already
// have a follow-up scheduled on or after from.
func (r *ScheduleRepository) EligibleForFollowup(ctx context.Context, from, to time.Time, limit int) ([]*domain.SentEmail, error) {
	query := `
		SELECT es.id, es.contact_id, es.email_type, es.scheduled_send_date,
		       es.campaign_instance_id, es.event_year, es.event_month, es.event_day
		FROM email_schedules es
		WHERE es.status IN (?, ?)
		AND es.scheduled_send_date >= ?
		AND es.scheduled_send_date <= ?
		AND (
			es.email_type IN (?, ?, ?, ?)
			OR (es.email_type LIKE ? AND es.campaign_instance_id IS NOT NULL)
		)
		AND es.contact_id NOT IN (
			SELECT DISTINCT contact_id FROM email_schedules
			WHERE email_type LIKE ?
			AND scheduled_send_date >= ?
		)
		LIMIT ?`
	args := []interface{}{
		domain.StatusSent, domain.StatusDelivered,
		formatDate(from), formatDate(to),
		domain.EmailTypeBirthday, domain.EmailTypeEffectiveDate,
		domain.EmailTypeAEP, domain.EmailTypePostWindow,
		domain.CampaignEmailTypePrefix + "%",
		domain.FollowupEmailTypePrefix + "%",
		formatDate(from),
		limit,
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible emails: %w", err)
	}
	defer rows.Close()

	var emails []*domain.SentEmail
	for rows.Next() {
		var email domain.SentEmail
		var sendDate string
		var instanceID sql.NullInt64
		var eventYear, eventMonth, eventDay sql.NullInt64

		if err := rows.Scan(&email.ID, &email.ContactID, &email.EmailType, &sendDate,
			&instanceID, &eventYear, &eventMonth, &eventDay); err != nil {
			return nil, fmt.Errorf("failed to scan sent email: %w", err)
		}

		if email.ScheduledSendDate, err = parseDate(sendDate); err != nil {
			return nil, fmt.Errorf("schedule %d: %w", email.ID, err)
		}
		if instanceID.Valid {
			email.CampaignInstanceID = &instanceID.Int64
		}
		if eventYear.Valid {
			y := int(eventYear.Int64)
			email.EventYear = &y
		}
		if eventMonth.Valid {
			m := int(eventMonth.Int64)
			email.EventMonth = &m
		}
		if eventDay.Valid {
			d := int(eventDay.Int64)
			email.EventDay = &d
		}
		emails = append(emails, &email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read eligible emails: %w", err)
	}
	return emails, nil
}
