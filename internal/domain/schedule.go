package domain

import (
	"context"
	"strings"
	"time"
)

// Schedule statuses. pre-scheduled and skipped rows are owned by the
// engine and wiped at the start of each run; sent and delivered rows are
// immutable history written by the delivery worker.
const (
	StatusPreScheduled = "pre-scheduled"
	StatusSkipped      = "skipped"
	StatusSent         = "sent"
	StatusDelivered    = "delivered"
)

// Skip reasons attached to skipped rows.
const (
	SkipReasonExclusionWindow = "exclusion_window"
	SkipReasonFrequencyLimit  = "frequency_limit"
)

// Anniversary email types.
const (
	EmailTypeBirthday      = "birthday"
	EmailTypeEffectiveDate = "effective_date"
	EmailTypeAEP           = "aep"
	EmailTypePostWindow    = "post_window"
)

// Prefixes for derived email types.
const (
	CampaignEmailTypePrefix = "campaign_"
	FollowupEmailTypePrefix = "followup_"
)

// EmailSchedule is one row of the engine's output table.
type EmailSchedule struct {
	ID                 int64
	ContactID          int64
	EmailType          string
	ScheduledSendDate  time.Time
	ScheduledSendTime  string
	Status             string
	SkipReason         *string
	Priority           int
	CampaignInstanceID *int64
	EmailTemplate      *string
	SMSTemplate        *string
	SchedulerRunID     string
	EventYear          *int
	EventMonth         *int
	EventDay           *int
	BatchID            *string
	Metadata           *string
}

// IsFollowup reports whether the row is a follow-up message.
func (s *EmailSchedule) IsFollowup() bool {
	return strings.HasPrefix(s.EmailType, FollowupEmailTypePrefix)
}

// SetEvent records the anchor date for anniversary types.
func (s *EmailSchedule) SetEvent(d time.Time) {
	y, m, day := d.Year(), int(d.Month()), d.Day()
	s.EventYear = &y
	s.EventMonth = &m
	s.EventDay = &day
}

// MarkSkipped transitions the row to skipped with the given reason.
func (s *EmailSchedule) MarkSkipped(reason string) {
	s.Status = StatusSkipped
	s.SkipReason = &reason
}

// SentEmail is a sent/delivered row eligible for a follow-up.
type SentEmail struct {
	ID                 int64
	ContactID          int64
	EmailType          string
	ScheduledSendDate  time.Time
	CampaignInstanceID *int64
	EventYear          *int
	EventMonth         *int
	EventDay           *int
}

// ScheduleRepository persists and queries the email_schedules table.
type ScheduleRepository interface {
	// ClearPending deletes pre-scheduled and skipped rows for the given
	// contacts. Sent and delivered history is never touched.
	ClearPending(ctx context.Context, contactIDs []int64) error

	// SaveBatch inserts the rows in a single transaction. Rows that
	// collide on (contact_id, email_type, scheduled_send_date) are
	// silently ignored.
	SaveBatch(ctx context.Context, schedules []*EmailSchedule) error

	// RecentCounts returns, per contact, the number of non-follow-up
	// rows with status sent, delivered or pre-scheduled whose send date
	// lies in [from, to).
	RecentCounts(ctx context.Context, from, to time.Time) (map[int64]int, error)

	// EligibleForFollowup returns up to limit sent/delivered rows in
	// [from, to] that are anniversary emails or campaign emails,
	// excluding contacts that already have a follow-up scheduled on or
	// after from.
	EligibleForFollowup(ctx context.Context, from, to time.Time, limit int) ([]*SentEmail, error)
}
