package service

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"time"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

// LoadBalancer smooths effective-date send dates and monitors the
// organisational daily cap.
type LoadBalancer struct {
	cfg    config.SchedulerConfig
	logger logger.Logger
}

// NewLoadBalancer creates a LoadBalancer.
func NewLoadBalancer(cfg config.SchedulerConfig, log logger.Logger) *LoadBalancer {
	return &LoadBalancer{cfg: cfg, logger: log}
}

// Apply mutates the schedules in place and returns them. Smoothing is
// hash-based so two runs over identical input produce identical dates.
func (b *LoadBalancer) Apply(schedules []*domain.EmailSchedule, totalContacts int, today time.Time) []*domain.EmailSchedule {
	if len(schedules) == 0 {
		return schedules
	}

	edDailyCounts := make(map[string]int)
	for _, s := range schedules {
		if s.Status == domain.StatusPreScheduled && s.EmailType == domain.EmailTypeEffectiveDate {
			edDailyCounts[s.ScheduledSendDate.Format("2006-01-02")]++
		}
	}

	dailyCap := int(float64(totalContacts) * b.cfg.DailySendPercentageCap)
	edSoftLimit := b.cfg.EDDailySoftLimit
	if capped := int(float64(dailyCap) * 0.3); capped < edSoftLimit {
		edSoftLimit = capped
	}

	b.logger.WithFields(map[string]interface{}{
		"daily_cap":     dailyCap,
		"ed_soft_limit": edSoftLimit,
	}).Info("Applying load balancing")

	for _, s := range schedules {
		if s.EmailType != domain.EmailTypeEffectiveDate || s.Status != domain.StatusPreScheduled {
			continue
		}
		if edDailyCounts[s.ScheduledSendDate.Format("2006-01-02")] <= edSoftLimit {
			continue
		}

		offset := b.smoothingOffset(s)
		shifted := s.ScheduledSendDate.AddDate(0, 0, offset)
		if !shifted.Before(today) {
			s.ScheduledSendDate = shifted
		}
	}

	// Recount after smoothing and warn about days still over the cap.
	// Overflow is not redistributed; see the checkpoint log for the
	// affected days.
	dailyCounts := make(map[string]int)
	for _, s := range schedules {
		if s.Status == domain.StatusPreScheduled {
			dailyCounts[s.ScheduledSendDate.Format("2006-01-02")]++
		}
	}
	for day, count := range dailyCounts {
		if float64(count) > float64(dailyCap)*b.cfg.OverageThreshold {
			b.logger.WithFields(map[string]interface{}{
				"date":      day,
				"count":     count,
				"daily_cap": dailyCap,
			}).Warn("Daily send cap exceeded")
		}
	}

	return schedules
}

// smoothingOffset derives a deterministic jitter in
// [-2, window-3] days from a content digest of the row's identity.
// The digest bytes are interpreted as one big-endian integer, so any
// implementation that agrees on the MD5 of the ASCII key agrees on the
// offset.
func (b *LoadBalancer) smoothingOffset(s *domain.EmailSchedule) int {
	eventYear := 0
	if s.EventYear != nil {
		eventYear = *s.EventYear
	}
	key := fmt.Sprintf("%d_%s_%d", s.ContactID, s.EmailType, eventYear)
	sum := md5.Sum([]byte(key))

	hash := new(big.Int).SetBytes(sum[:])
	window := big.NewInt(int64(b.cfg.EDSmoothingWindowDays))
	return int(new(big.Int).Mod(hash, window).Int64()) - 2
}
