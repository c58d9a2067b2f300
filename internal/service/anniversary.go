package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

// Anniversary email priorities. Post-window catch-up mails outrank the
// standard anniversary mails they replace.
const (
	anniversaryPriority = 5
	postWindowPriority  = 3
)

// anniversaryConcurrency bounds the per-contact fan-out. Contacts are
// independent, so the computation parallelises freely; the merge
// preserves contact order to keep runs deterministic.
const anniversaryConcurrency = 8

// AnniversaryScheduler produces birthday, effective-date, AEP and
// post-window messages for each contact.
type AnniversaryScheduler struct {
	cfg    config.SchedulerConfig
	calc   *domain.WindowCalculator
	logger logger.Logger
}

// NewAnniversaryScheduler creates an AnniversaryScheduler.
func NewAnniversaryScheduler(cfg config.SchedulerConfig, calc *domain.WindowCalculator, log logger.Logger) *AnniversaryScheduler {
	return &AnniversaryScheduler{cfg: cfg, calc: calc, logger: log}
}

// Schedule computes anniversary rows for all contacts.
func (s *AnniversaryScheduler) Schedule(ctx context.Context, contacts []*domain.Contact, today time.Time, runID string) ([]*domain.EmailSchedule, error) {
	perContact := make([][]*domain.EmailSchedule, len(contacts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(anniversaryConcurrency)
	for i, contact := range contacts {
		i, contact := i, contact
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			perContact[i] = s.scheduleContact(contact, today, runID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var schedules []*domain.EmailSchedule
	for _, rows := range perContact {
		schedules = append(schedules, rows...)
	}
	return schedules, nil
}

func (s *AnniversaryScheduler) scheduleContact(contact *domain.Contact, today time.Time, runID string) []*domain.EmailSchedule {
	var rows []*domain.EmailSchedule
	window := s.calc.ExclusionWindow(contact, today)

	if contact.BirthDate != nil {
		anchor := domain.NextAnniversary(*contact.BirthDate, today)
		sendDate := anchor.AddDate(0, 0, -s.cfg.BirthdayEmailDaysBefore)
		if !sendDate.Before(today) {
			row := s.newRow(contact, domain.EmailTypeBirthday, sendDate, anchor, runID, "birthday_default", today)
			rows = append(rows, row)
		}
	}

	if contact.EffectiveDate != nil {
		anchor := domain.NextAnniversary(*contact.EffectiveDate, today)
		sendDate := anchor.AddDate(0, 0, -s.cfg.EffectiveDateDaysBefore)
		if !sendDate.Before(today) {
			row := s.newRow(contact, domain.EmailTypeEffectiveDate, sendDate, anchor, runID, "effective_date_default", today)
			rows = append(rows, row)
		}
	}

	// AEP is a fixed calendar event, always emitted.
	aepDate := domain.Date(today.Year(), time.Month(s.cfg.AEPMonth), s.cfg.AEPDay)
	if !aepDate.After(today) {
		aepDate = domain.Date(today.Year()+1, time.Month(s.cfg.AEPMonth), s.cfg.AEPDay)
	}
	rows = append(rows, s.newRow(contact, domain.EmailTypeAEP, aepDate, aepDate, runID, "aep_default", today))

	// When an anniversary mail was suppressed by the window, schedule a
	// catch-up for the day after the window closes.
	anySkipped := false
	for _, row := range rows {
		if row.Status == domain.StatusSkipped {
			anySkipped = true
			break
		}
	}
	if anySkipped && window != nil {
		postWindowDate := window.End.AddDate(0, 0, 1)
		if !postWindowDate.Before(today) {
			template := "post_window_default"
			row := &domain.EmailSchedule{
				ContactID:         contact.ID,
				EmailType:         domain.EmailTypePostWindow,
				ScheduledSendDate: postWindowDate,
				ScheduledSendTime: s.cfg.SendTime,
				Status:            domain.StatusPreScheduled,
				Priority:          postWindowPriority,
				EmailTemplate:     &template,
				SchedulerRunID:    runID,
			}
			row.SetEvent(postWindowDate)
			rows = append(rows, row)
		}
	}

	return rows
}

// newRow builds an anniversary row, marking it skipped when the send
// date falls inside the contact's exclusion window. Skipped rows are
// still persisted to document the suppression.
func (s *AnniversaryScheduler) newRow(contact *domain.Contact, emailType string, sendDate, anchor time.Time, runID, template string, today time.Time) *domain.EmailSchedule {
	row := &domain.EmailSchedule{
		ContactID:         contact.ID,
		EmailType:         emailType,
		ScheduledSendDate: sendDate,
		ScheduledSendTime: s.cfg.SendTime,
		Status:            domain.StatusPreScheduled,
		Priority:          anniversaryPriority,
		EmailTemplate:     &template,
		SchedulerRunID:    runID,
	}
	row.SetEvent(anchor)

	if s.calc.InWindow(sendDate, contact, today) {
		row.MarkSkipped(domain.SkipReasonExclusionWindow)
	}
	return row
}
