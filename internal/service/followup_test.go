package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/domain"
)

func testFollowupConfig() config.FollowupConfig {
	return config.FollowupConfig{
		SendTime:     "08:30:00",
		DaysAfter:    2,
		LookbackDays: 35,
		BatchSize:    1000,
	}
}

func newFollowupScheduler(cfg config.FollowupConfig, contacts *fakeContactRepo, campaigns *fakeCampaignRepo, schedules *fakeScheduleRepo, behavior *fakeBehaviorRepo, today time.Time) *FollowupScheduler {
	calc := domain.NewWindowCalculator(nil, 60)
	s := NewFollowupScheduler(cfg, calc, contacts, campaigns, schedules, behavior, &fakeCheckpointRepo{}, nopLogger{})
	s.now = func() time.Time { return today }
	return s
}

func TestFollowupScheduler(t *testing.T) {
	ctx := context.Background()

	t.Run("click plus eligibility with conditions yields tier four", func(t *testing.T) {
		today := domain.Date(2024, time.June, 20)
		clickAt := domain.Date(2024, time.June, 18)
		eligibilityAt := domain.Date(2024, time.June, 19)

		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 42, State: "TX"}}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 100, ContactID: 42, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 17)},
			},
		}
		behavior := &fakeBehaviorRepo{
			clicks: map[int64]*time.Time{42: &clickAt},
			eligibility: map[int64]*domain.EligibilityEvent{
				42: {Metadata: `{"main_questions_yes_count": 2}`, CreatedAt: eligibilityAt},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), contacts, &fakeCampaignRepo{}, schedules, behavior, today)

		require.NoError(t, scheduler.Run(ctx))
		require.Len(t, schedules.saved, 1)

		row := schedules.saved[0]
		assert.Equal(t, domain.FollowupHQWithYes, row.EmailType)
		assert.Equal(t, 1, row.Priority)
		// source + 2 days is before tomorrow, so tomorrow wins
		assert.Equal(t, domain.Date(2024, time.June, 21), row.ScheduledSendDate)
		assert.Equal(t, domain.StatusPreScheduled, row.Status)

		require.NotNil(t, row.Metadata)
		meta := gjson.Parse(*row.Metadata)
		assert.Equal(t, int64(100), meta.Get("initial_email_id").Int())
		assert.Equal(t, domain.EmailTypeBirthday, meta.Get("initial_email_type").String())
		assert.True(t, meta.Get("followup_behavior.has_medical_conditions").Bool())
		assert.True(t, meta.Get("followup_behavior.clicked_links").Bool())
	})

	t.Run("no activity yields cold tier with default template", func(t *testing.T) {
		today := domain.Date(2024, time.July, 1)
		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "TX"}}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 101, ContactID: 7, EmailType: domain.EmailTypeAEP, ScheduledSendDate: domain.Date(2024, time.June, 25)},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), contacts, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		require.Len(t, schedules.saved, 1)

		row := schedules.saved[0]
		assert.Equal(t, domain.FollowupCold, row.EmailType)
		assert.Equal(t, 4, row.Priority)
		require.NotNil(t, row.EmailTemplate)
		assert.Equal(t, "followup_cold_template", *row.EmailTemplate)
		assert.Nil(t, row.SMSTemplate)
	})

	t.Run("source plus delay in the future is honoured", func(t *testing.T) {
		today := domain.Date(2024, time.June, 17)
		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "TX"}}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 102, ContactID: 7, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 17)},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), contacts, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		require.Len(t, schedules.saved, 1)
		assert.Equal(t, domain.Date(2024, time.June, 19), schedules.saved[0].ScheduledSendDate)
	})

	t.Run("campaign metadata overrides the tier template", func(t *testing.T) {
		today := domain.Date(2024, time.July, 1)
		instanceID := int64(5)
		metadata := `{"followup_templates": {"followup_1_cold": {"email": "rate_cold_v2", "sms": "rate_cold_sms"}}}`

		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "TX"}}}
		campaigns := &fakeCampaignRepo{
			instances: []*domain.CampaignInstance{
				{ID: instanceID, CampaignType: "rate_increase", InstanceName: "rates_q2", Metadata: &metadata},
			},
			types: map[string]*domain.CampaignType{
				"rate_increase": {Name: "rate_increase", EnableFollowups: true, Priority: 1},
			},
			followupsEnabled: map[int64]bool{instanceID: true},
		}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 103, ContactID: 7, EmailType: "campaign_rate_increase", ScheduledSendDate: domain.Date(2024, time.June, 25), CampaignInstanceID: &instanceID},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), contacts, campaigns, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		require.Len(t, schedules.saved, 1)

		row := schedules.saved[0]
		require.NotNil(t, row.EmailTemplate)
		assert.Equal(t, "rate_cold_v2", *row.EmailTemplate)
		require.NotNil(t, row.SMSTemplate)
		assert.Equal(t, "rate_cold_sms", *row.SMSTemplate)

		// Campaign priority 1 blends to min(4, 1+1) = 2.
		assert.Equal(t, 2, row.Priority)

		require.NotNil(t, row.Metadata)
		assert.Equal(t, "rates_q2", gjson.Get(*row.Metadata, "campaign_name").String())
	})

	t.Run("campaign without follow-ups enabled produces nothing", func(t *testing.T) {
		today := domain.Date(2024, time.July, 1)
		instanceID := int64(6)

		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "TX"}}}
		campaigns := &fakeCampaignRepo{followupsEnabled: map[int64]bool{instanceID: false}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 104, ContactID: 7, EmailType: "campaign_initial_blast", ScheduledSendDate: domain.Date(2024, time.June, 25), CampaignInstanceID: &instanceID},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), contacts, campaigns, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		assert.Empty(t, schedules.saved)
	})

	t.Run("year-round state drops the follow-up", func(t *testing.T) {
		today := domain.Date(2024, time.July, 1)
		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "NY"}}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 105, ContactID: 7, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 25)},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), contacts, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		assert.Empty(t, schedules.saved)
	})

	t.Run("full window check catches birthday-window states", func(t *testing.T) {
		today := domain.Date(2024, time.June, 1)
		birth := domain.Date(1960, time.July, 1)
		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "CA", BirthDate: &birth}}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 106, ContactID: 7, EmailType: domain.EmailTypeAEP, ScheduledSendDate: domain.Date(2024, time.May, 30)},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), contacts, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		assert.Empty(t, schedules.saved)
	})

	t.Run("legacy option only excludes year-round states", func(t *testing.T) {
		cfg := testFollowupConfig()
		cfg.LegacyYearRoundOnly = true

		today := domain.Date(2024, time.June, 1)
		birth := domain.Date(1960, time.July, 1)
		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "CA", BirthDate: &birth}}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 107, ContactID: 7, EmailType: domain.EmailTypeAEP, ScheduledSendDate: domain.Date(2024, time.May, 30)},
			},
		}
		scheduler := newFollowupScheduler(cfg, contacts, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		// CA is not year-round, so the legacy check lets it through
		// even though the date sits inside the birthday window.
		assert.Len(t, schedules.saved, 1)
	})

	t.Run("missing contact is skipped", func(t *testing.T) {
		today := domain.Date(2024, time.July, 1)
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 108, ContactID: 999, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 25)},
			},
		}
		scheduler := newFollowupScheduler(testFollowupConfig(), &fakeContactRepo{}, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		assert.Empty(t, schedules.saved)
	})

	t.Run("batch size caps the eligibility query", func(t *testing.T) {
		cfg := testFollowupConfig()
		cfg.BatchSize = 2

		today := domain.Date(2024, time.July, 1)
		contacts := &fakeContactRepo{contacts: []*domain.Contact{
			{ID: 1, State: "TX"}, {ID: 2, State: "TX"}, {ID: 3, State: "TX"},
		}}
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 110, ContactID: 1, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 25)},
				{ID: 111, ContactID: 2, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 25)},
				{ID: 112, ContactID: 3, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 25)},
			},
		}
		scheduler := newFollowupScheduler(cfg, contacts, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, today)

		require.NoError(t, scheduler.Run(ctx))
		assert.Equal(t, 2, schedules.eligibleLimit)
		assert.Len(t, schedules.saved, 2)
	})
}

func TestFollowupSchedulerCheckpoints(t *testing.T) {
	ctx := context.Background()
	today := domain.Date(2024, time.July, 1)

	newScheduler := func(schedules *fakeScheduleRepo, checkpoints *fakeCheckpointRepo) *FollowupScheduler {
		calc := domain.NewWindowCalculator(nil, 60)
		contacts := &fakeContactRepo{contacts: []*domain.Contact{{ID: 7, State: "TX"}}}
		s := NewFollowupScheduler(testFollowupConfig(), calc, contacts, &fakeCampaignRepo{}, schedules, &fakeBehaviorRepo{}, checkpoints, nopLogger{})
		s.now = func() time.Time { return today }
		return s
	}

	t.Run("successful run records a completed checkpoint", func(t *testing.T) {
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 120, ContactID: 7, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 25)},
			},
		}
		checkpoints := &fakeCheckpointRepo{}

		require.NoError(t, newScheduler(schedules, checkpoints).Run(ctx))

		require.Len(t, checkpoints.started, 1)
		require.Len(t, checkpoints.completed, 1)
		assert.Equal(t, checkpoints.started[0], checkpoints.completed[0])
		assert.Empty(t, checkpoints.failed)
		assert.Equal(t, 1, checkpoints.counts.ContactsProcessed)
		assert.Equal(t, 1, checkpoints.counts.EmailsScheduled)
		assert.Equal(t, 0, checkpoints.counts.EmailsSkipped)
	})

	t.Run("save failure records a failed checkpoint", func(t *testing.T) {
		saveErr := errors.New("disk full")
		schedules := &fakeScheduleRepo{
			eligible: []*domain.SentEmail{
				{ID: 121, ContactID: 7, EmailType: domain.EmailTypeBirthday, ScheduledSendDate: domain.Date(2024, time.June, 25)},
			},
			saveErr: saveErr,
		}
		checkpoints := &fakeCheckpointRepo{}

		err := newScheduler(schedules, checkpoints).Run(ctx)
		require.ErrorIs(t, err, saveErr)

		require.Len(t, checkpoints.started, 1)
		require.Len(t, checkpoints.failed, 1)
		assert.Equal(t, checkpoints.started[0], checkpoints.failed[0])
		assert.Empty(t, checkpoints.completed)
	})

	t.Run("empty eligible set still completes", func(t *testing.T) {
		schedules := &fakeScheduleRepo{}
		checkpoints := &fakeCheckpointRepo{}

		require.NoError(t, newScheduler(schedules, checkpoints).Run(ctx))
		require.Len(t, checkpoints.completed, 1)
		assert.Equal(t, domain.RunCounts{}, checkpoints.counts)
	})
}
