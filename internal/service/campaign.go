package service

import (
	"context"
	"time"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

// CampaignScheduler produces campaign-instance messages for contacts
// with pending memberships.
type CampaignScheduler struct {
	cfg       config.SchedulerConfig
	calc      *domain.WindowCalculator
	campaigns domain.CampaignRepository
	logger    logger.Logger
}

// NewCampaignScheduler creates a CampaignScheduler.
func NewCampaignScheduler(cfg config.SchedulerConfig, calc *domain.WindowCalculator, campaigns domain.CampaignRepository, log logger.Logger) *CampaignScheduler {
	return &CampaignScheduler{cfg: cfg, calc: calc, campaigns: campaigns, logger: log}
}

// Schedule computes campaign rows for the contact batch.
func (s *CampaignScheduler) Schedule(ctx context.Context, contacts []*domain.Contact, today time.Time, runID string) ([]*domain.EmailSchedule, error) {
	instances, err := s.campaigns.ActiveInstances(ctx, today)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		s.logger.Info("No active campaign instances found")
		return nil, nil
	}

	var schedules []*domain.EmailSchedule
	for _, instance := range instances {
		campaignType, err := s.campaigns.GetType(ctx, instance.CampaignType)
		if err != nil {
			return nil, err
		}
		if campaignType == nil {
			s.logger.WithField("campaign_type", instance.CampaignType).
				Warn("Campaign type not found or inactive")
			continue
		}

		memberships, err := s.campaigns.PendingMemberships(ctx, instance.ID)
		if err != nil {
			return nil, err
		}

		triggers := make(map[int64]*time.Time, len(memberships))
		for _, m := range memberships {
			triggers[m.ContactID] = m.TriggerDate
		}

		for _, contact := range contacts {
			trigger, targeted := triggers[contact.ID]
			if !targeted {
				continue
			}
			if trigger == nil {
				s.logger.WithFields(map[string]interface{}{
					"contact_id": contact.ID,
					"campaign":   instance.InstanceName,
				}).Warn("No trigger date for campaign membership")
				continue
			}

			sendDate := trigger.AddDate(0, 0, -campaignType.DaysBeforeEvent)
			if sendDate.Before(today) {
				s.logger.WithFields(map[string]interface{}{
					"contact_id": contact.ID,
					"send_date":  sendDate.Format("2006-01-02"),
				}).Warn("Campaign send date is in the past")
				continue
			}

			row := &domain.EmailSchedule{
				ContactID:          contact.ID,
				EmailType:          domain.CampaignEmailTypePrefix + campaignType.Name,
				ScheduledSendDate:  sendDate,
				ScheduledSendTime:  s.cfg.SendTime,
				Status:             domain.StatusPreScheduled,
				Priority:           campaignType.Priority,
				CampaignInstanceID: &instance.ID,
				EmailTemplate:      instance.EmailTemplate,
				SMSTemplate:        instance.SMSTemplate,
				SchedulerRunID:     runID,
			}
			row.SetEvent(*trigger)

			if campaignType.RespectExclusionWindows && s.calc.InWindow(sendDate, contact, today) {
				row.MarkSkipped(domain.SkipReasonExclusionWindow)
			}

			schedules = append(schedules, row)
		}
	}

	return schedules, nil
}
