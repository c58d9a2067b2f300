package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

// Scheduler orchestrates one main scheduling pass: checkpoint, contact
// batch, wipe, pipelines, balancing, frequency limiting, persistence.
type Scheduler struct {
	cfg         config.SchedulerConfig
	contacts    domain.ContactRepository
	schedules   domain.ScheduleRepository
	checkpoints domain.CheckpointRepository
	anniversary *AnniversaryScheduler
	campaign    *CampaignScheduler
	balancer    *LoadBalancer
	frequency   *FrequencyLimiter
	logger      logger.Logger

	now func() time.Time
}

// NewScheduler wires a Scheduler from its collaborators.
func NewScheduler(
	cfg config.SchedulerConfig,
	contacts domain.ContactRepository,
	schedules domain.ScheduleRepository,
	checkpoints domain.CheckpointRepository,
	anniversary *AnniversaryScheduler,
	campaign *CampaignScheduler,
	balancer *LoadBalancer,
	frequency *FrequencyLimiter,
	log logger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		contacts:    contacts,
		schedules:   schedules,
		checkpoints: checkpoints,
		anniversary: anniversary,
		campaign:    campaign,
		balancer:    balancer,
		frequency:   frequency,
		logger:      log,
		now:         time.Now,
	}
}

// Run executes the pass. Any error marks the checkpoint failed and
// propagates; rows already written stay in place and are subsumed by
// the next run's wipe.
func (s *Scheduler) Run(ctx context.Context) error {
	runID := uuid.New().String()
	log := s.logger.WithField("scheduler_run_id", runID)
	log.Info("Starting email scheduler run")

	if err := s.checkpoints.Start(ctx, runID); err != nil {
		return err
	}

	counts, err := s.run(ctx, runID, log)
	if err != nil {
		log.WithField("error", err.Error()).Error("Scheduler run failed")
		if cpErr := s.checkpoints.Fail(ctx, runID, err.Error()); cpErr != nil {
			log.WithField("error", cpErr.Error()).Error("Failed to record failure checkpoint")
		}
		return err
	}

	if err := s.checkpoints.Complete(ctx, runID, counts); err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"contacts_processed": counts.ContactsProcessed,
		"emails_scheduled":   counts.EmailsScheduled,
		"emails_skipped":     counts.EmailsSkipped,
	}).Info("Scheduler run completed")
	return nil
}

func (s *Scheduler) run(ctx context.Context, runID string, log logger.Logger) (domain.RunCounts, error) {
	today := domain.DateOnly(s.now())

	contacts, err := s.contacts.ListEligible(ctx, s.cfg.BatchSize)
	if err != nil {
		return domain.RunCounts{}, err
	}
	log.WithField("contacts", len(contacts)).Info("Processing contact batch")
	if len(contacts) == 0 {
		return domain.RunCounts{}, nil
	}

	contactIDs := make([]int64, len(contacts))
	for i, c := range contacts {
		contactIDs[i] = c.ID
	}
	if err := s.schedules.ClearPending(ctx, contactIDs); err != nil {
		return domain.RunCounts{}, err
	}
	log.WithField("contacts", len(contactIDs)).Info("Cleared existing schedules")

	anniversaryRows, err := s.anniversary.Schedule(ctx, contacts, today, runID)
	if err != nil {
		return domain.RunCounts{}, err
	}

	campaignRows, err := s.campaign.Schedule(ctx, contacts, today, runID)
	if err != nil {
		return domain.RunCounts{}, err
	}

	all := append(anniversaryRows, campaignRows...)
	log.WithField("schedules", len(all)).Info("Generated schedules")

	totalContacts, err := s.contacts.CountAll(ctx)
	if err != nil {
		return domain.RunCounts{}, err
	}
	all = s.balancer.Apply(all, totalContacts, today)

	all, err = s.frequency.Apply(ctx, all, today)
	if err != nil {
		return domain.RunCounts{}, err
	}

	if err := s.schedules.SaveBatch(ctx, all); err != nil {
		return domain.RunCounts{}, err
	}

	counts := domain.RunCounts{ContactsProcessed: len(contacts)}
	for _, row := range all {
		switch row.Status {
		case domain.StatusPreScheduled:
			counts.EmailsScheduled++
		case domain.StatusSkipped:
			counts.EmailsSkipped++
		}
	}
	return counts, nil
}
