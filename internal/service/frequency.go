package service

import (
	"context"
	"sort"
	"time"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

// FrequencyLimiter enforces the per-contact message ceiling over the
// rolling period, preferring higher-priority rows.
type FrequencyLimiter struct {
	cfg       config.SchedulerConfig
	schedules domain.ScheduleRepository
	logger    logger.Logger
}

// NewFrequencyLimiter creates a FrequencyLimiter.
func NewFrequencyLimiter(cfg config.SchedulerConfig, schedules domain.ScheduleRepository, log logger.Logger) *FrequencyLimiter {
	return &FrequencyLimiter{cfg: cfg, schedules: schedules, logger: log}
}

// Apply sorts the proposals by (priority, date) and admits rows per
// contact until the carry-over count plus admissions reaches the
// ceiling; the rest are marked skipped with reason frequency_limit.
// Follow-up messages are exempt from counting. The traversal order is
// fully deterministic for a given input set.
func (l *FrequencyLimiter) Apply(ctx context.Context, schedules []*domain.EmailSchedule, today time.Time) ([]*domain.EmailSchedule, error) {
	periodStart := today.AddDate(0, 0, -l.cfg.PeriodDays)
	recentCounts, err := l.schedules.RecentCounts(ctx, periodStart, today)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(schedules, func(i, j int) bool {
		a, b := schedules[i], schedules[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledSendDate.Equal(b.ScheduledSendDate) {
			return a.ScheduledSendDate.Before(b.ScheduledSendDate)
		}
		if a.ContactID != b.ContactID {
			return a.ContactID < b.ContactID
		}
		return a.EmailType < b.EmailType
	})

	admitted := make(map[int64]int)
	for _, s := range schedules {
		// Only live proposals compete for the budget; rows already
		// skipped for an exclusion window keep their reason.
		if s.IsFollowup() || s.Status != domain.StatusPreScheduled {
			continue
		}
		total := recentCounts[s.ContactID] + admitted[s.ContactID]
		if total < l.cfg.MaxEmailsPerPeriod {
			admitted[s.ContactID]++
			continue
		}
		s.MarkSkipped(domain.SkipReasonFrequencyLimit)
	}

	return schedules, nil
}
