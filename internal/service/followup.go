package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

// FollowupScheduler runs the second pass: it classifies each eligible
// sent message into a behaviour tier and schedules the matching
// follow-up.
type FollowupScheduler struct {
	cfg         config.FollowupConfig
	calc        *domain.WindowCalculator
	contacts    domain.ContactRepository
	campaigns   domain.CampaignRepository
	schedules   domain.ScheduleRepository
	behavior    domain.BehaviorRepository
	checkpoints domain.CheckpointRepository
	logger      logger.Logger

	now func() time.Time
}

// NewFollowupScheduler wires a FollowupScheduler.
func NewFollowupScheduler(
	cfg config.FollowupConfig,
	calc *domain.WindowCalculator,
	contacts domain.ContactRepository,
	campaigns domain.CampaignRepository,
	schedules domain.ScheduleRepository,
	behavior domain.BehaviorRepository,
	checkpoints domain.CheckpointRepository,
	log logger.Logger,
) *FollowupScheduler {
	return &FollowupScheduler{
		cfg:         cfg,
		calc:        calc,
		contacts:    contacts,
		campaigns:   campaigns,
		schedules:   schedules,
		behavior:    behavior,
		checkpoints: checkpoints,
		logger:      log,
		now:         time.Now,
	}
}

// Run executes the follow-up pass under its own run identifier and
// checkpoint row.
func (s *FollowupScheduler) Run(ctx context.Context) error {
	runID := uuid.New().String()
	log := s.logger.WithField("scheduler_run_id", runID)
	log.Info("Starting follow-up scheduler run")

	if err := s.checkpoints.Start(ctx, runID); err != nil {
		return err
	}

	counts, err := s.run(ctx, runID, log)
	if err != nil {
		log.WithField("error", err.Error()).Error("Follow-up run failed")
		if cpErr := s.checkpoints.Fail(ctx, runID, err.Error()); cpErr != nil {
			log.WithField("error", cpErr.Error()).Error("Failed to record failure checkpoint")
		}
		return err
	}

	if err := s.checkpoints.Complete(ctx, runID, counts); err != nil {
		return err
	}

	log.Info("Follow-up scheduler run completed")
	return nil
}

func (s *FollowupScheduler) run(ctx context.Context, runID string, log logger.Logger) (domain.RunCounts, error) {
	today := domain.DateOnly(s.now())
	lookbackStart := today.AddDate(0, 0, -s.cfg.LookbackDays)

	initialEmails, err := s.schedules.EligibleForFollowup(ctx, lookbackStart, today, s.cfg.BatchSize)
	if err != nil {
		return domain.RunCounts{}, err
	}
	log.WithField("eligible_emails", len(initialEmails)).Info("Found eligible initial emails")
	if len(initialEmails) == 0 {
		return domain.RunCounts{}, nil
	}

	var followups []*domain.EmailSchedule
	for _, email := range initialEmails {
		row, err := s.scheduleFollowup(ctx, email, today, runID)
		if err != nil {
			return domain.RunCounts{}, err
		}
		if row != nil {
			followups = append(followups, row)
		}
	}

	log.WithField("followups", len(followups)).Info("Generated follow-up schedules")
	counts := domain.RunCounts{
		ContactsProcessed: len(initialEmails),
		EmailsScheduled:   len(followups),
		EmailsSkipped:     len(initialEmails) - len(followups),
	}
	if len(followups) == 0 {
		return counts, nil
	}

	if err := s.schedules.SaveBatch(ctx, followups); err != nil {
		return domain.RunCounts{}, err
	}

	tierCounts := make(map[string]int)
	for _, f := range followups {
		tierCounts[f.EmailType]++
	}
	tiers := make([]string, 0, len(tierCounts))
	for tier := range tierCounts {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		log.WithFields(map[string]interface{}{
			"tier":  tier,
			"count": tierCounts[tier],
		}).Info("Follow-up breakdown")
	}

	return counts, nil
}

// scheduleFollowup builds the follow-up row for one sent message, or
// nil when the message is filtered out (campaign without follow-ups,
// missing contact, exclusion window).
func (s *FollowupScheduler) scheduleFollowup(ctx context.Context, email *domain.SentEmail, today time.Time, runID string) (*domain.EmailSchedule, error) {
	if email.CampaignInstanceID != nil {
		enabled, err := s.campaigns.FollowupsEnabled(ctx, *email.CampaignInstanceID)
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, nil
		}
	}

	behavior, err := s.classifyBehavior(ctx, email)
	if err != nil {
		return nil, err
	}
	tier := behavior.FollowupTier()

	sendDate := email.ScheduledSendDate.AddDate(0, 0, s.cfg.DaysAfter)
	tomorrow := today.AddDate(0, 0, 1)
	if sendDate.Before(tomorrow) {
		sendDate = tomorrow
	}

	contact, err := s.contacts.GetByID(ctx, email.ContactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		s.logger.WithField("contact_id", email.ContactID).
			Warn("Contact not found for follow-up")
		return nil, nil
	}

	// Follow-ups always respect exclusion windows; in-window messages
	// are dropped rather than persisted as skipped.
	if s.excluded(sendDate, contact, today) {
		s.logger.WithField("contact_id", contact.ID).
			Info("Follow-up skipped due to exclusion window")
		return nil, nil
	}

	var instance *domain.CampaignInstance
	if email.CampaignInstanceID != nil {
		if instance, err = s.campaigns.GetInstance(ctx, *email.CampaignInstanceID); err != nil {
			return nil, err
		}
	}

	emailTemplate, smsTemplate := resolveFollowupTemplates(tier, instance)
	priority, err := s.followupPriority(ctx, tier, instance)
	if err != nil {
		return nil, err
	}

	metadata, err := followupMetadata(email, behavior, instance)
	if err != nil {
		return nil, err
	}

	row := &domain.EmailSchedule{
		ContactID:          email.ContactID,
		EmailType:          tier,
		ScheduledSendDate:  sendDate,
		ScheduledSendTime:  s.cfg.SendTime,
		Status:             domain.StatusPreScheduled,
		Priority:           priority,
		CampaignInstanceID: email.CampaignInstanceID,
		EmailTemplate:      &emailTemplate,
		SMSTemplate:        smsTemplate,
		SchedulerRunID:     runID,
		Metadata:           &metadata,
	}
	return row, nil
}

func (s *FollowupScheduler) classifyBehavior(ctx context.Context, email *domain.SentEmail) (*domain.ContactBehavior, error) {
	behavior := &domain.ContactBehavior{ContactID: email.ContactID}

	lastClick, err := s.behavior.LastClick(ctx, email.ContactID, email.ScheduledSendDate)
	if err != nil {
		return nil, err
	}
	if lastClick != nil {
		behavior.ClickedLinks = true
		behavior.LastClickAt = lastClick
	}

	eligibility, err := s.behavior.LatestEligibility(ctx, email.ContactID, email.ScheduledSendDate)
	if err != nil {
		return nil, err
	}
	if eligibility != nil {
		behavior.AnsweredHealthQuestions = true
		behavior.LastEligibilityAt = &eligibility.CreatedAt
		behavior.HasMedicalConditions = domain.HasConditionsInMetadata(eligibility.Metadata)
	}

	return behavior, nil
}

// excluded applies the full window calculus, or only the year-round
// check when the legacy option is set.
func (s *FollowupScheduler) excluded(sendDate time.Time, contact *domain.Contact, today time.Time) bool {
	if s.cfg.LegacyYearRoundOnly {
		rule, ok := s.calc.Rule(contact.State)
		return ok && rule.Kind == domain.RuleYearRound
	}
	return s.calc.InWindow(sendDate, contact, today)
}

// resolveFollowupTemplates starts from the tier defaults and applies
// any followup_templates override from the instance metadata.
func resolveFollowupTemplates(tier string, instance *domain.CampaignInstance) (string, *string) {
	emailTemplate := domain.FollowupTemplates[tier]
	var smsTemplate *string

	if instance == nil || instance.Metadata == nil || !gjson.Valid(*instance.Metadata) {
		return emailTemplate, smsTemplate
	}

	override := gjson.Get(*instance.Metadata, "followup_templates."+tier)
	if !override.Exists() {
		return emailTemplate, smsTemplate
	}
	if v := override.Get("email"); v.Exists() {
		emailTemplate = v.String()
	}
	if v := override.Get("sms"); v.Exists() {
		sms := v.String()
		smsTemplate = &sms
	}
	return emailTemplate, smsTemplate
}

// followupPriority blends the tier priority with the campaign's when
// the source message came from a campaign.
func (s *FollowupScheduler) followupPriority(ctx context.Context, tier string, instance *domain.CampaignInstance) (int, error) {
	priority := domain.FollowupPriorities[tier]
	if instance == nil {
		return priority, nil
	}

	campaignType, err := s.campaigns.GetType(ctx, instance.CampaignType)
	if err != nil {
		return 0, err
	}
	if campaignType != nil && campaignType.Priority+1 < priority {
		priority = campaignType.Priority + 1
	}
	return priority, nil
}

// followupMetadata records the source message, the behaviour snapshot
// and the campaign name for audit.
func followupMetadata(email *domain.SentEmail, behavior *domain.ContactBehavior, instance *domain.CampaignInstance) (string, error) {
	var lastClick, lastEligibility *string
	if behavior.LastClickAt != nil {
		v := behavior.LastClickAt.UTC().Format(time.RFC3339)
		lastClick = &v
	}
	if behavior.LastEligibilityAt != nil {
		v := behavior.LastEligibilityAt.UTC().Format(time.RFC3339)
		lastEligibility = &v
	}

	var campaignName *string
	if instance != nil {
		campaignName = &instance.InstanceName
	}

	payload := map[string]interface{}{
		"initial_email_id":   email.ID,
		"initial_email_type": email.EmailType,
		"followup_behavior": map[string]interface{}{
			"clicked_links":             behavior.ClickedLinks,
			"answered_health_questions": behavior.AnsweredHealthQuestions,
			"has_medical_conditions":    behavior.HasMedicalConditions,
			"last_click_date":           lastClick,
			"last_eligibility_date":     lastEligibility,
		},
		"campaign_name": campaignName,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal follow-up metadata: %w", err)
	}
	return string(raw), nil
}
