package service

import (
	"context"
	"time"

	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

type nopLogger struct{}

func (nopLogger) Debug(string)                                    {}
func (nopLogger) Info(string)                                     {}
func (nopLogger) Warn(string)                                     {}
func (nopLogger) Error(string)                                    {}
func (nopLogger) Fatal(string)                                    {}
func (l nopLogger) WithField(string, interface{}) logger.Logger   { return l }
func (l nopLogger) WithFields(map[string]interface{}) logger.Logger { return l }

type fakeContactRepo struct {
	contacts []*domain.Contact
}

func (f *fakeContactRepo) ListEligible(_ context.Context, limit int) ([]*domain.Contact, error) {
	if len(f.contacts) > limit {
		return f.contacts[:limit], nil
	}
	return f.contacts, nil
}

func (f *fakeContactRepo) CountAll(context.Context) (int, error) {
	return len(f.contacts), nil
}

func (f *fakeContactRepo) GetByID(_ context.Context, id int64) (*domain.Contact, error) {
	for _, c := range f.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

type fakeScheduleRepo struct {
	recentCounts  map[int64]int
	eligible      []*domain.SentEmail
	eligibleLimit int
	saved         []*domain.EmailSchedule
	cleared       []int64
	saveErr       error
}

func (f *fakeScheduleRepo) ClearPending(_ context.Context, contactIDs []int64) error {
	f.cleared = append(f.cleared, contactIDs...)
	return nil
}

func (f *fakeScheduleRepo) SaveBatch(_ context.Context, schedules []*domain.EmailSchedule) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, schedules...)
	return nil
}

func (f *fakeScheduleRepo) RecentCounts(context.Context, time.Time, time.Time) (map[int64]int, error) {
	if f.recentCounts == nil {
		return map[int64]int{}, nil
	}
	return f.recentCounts, nil
}

func (f *fakeScheduleRepo) EligibleForFollowup(_ context.Context, _, _ time.Time, limit int) ([]*domain.SentEmail, error) {
	f.eligibleLimit = limit
	if len(f.eligible) > limit {
		return f.eligible[:limit], nil
	}
	return f.eligible, nil
}

type fakeCampaignRepo struct {
	instances        []*domain.CampaignInstance
	types            map[string]*domain.CampaignType
	memberships      map[int64][]*domain.CampaignMembership
	followupsEnabled map[int64]bool
}

func (f *fakeCampaignRepo) ActiveInstances(context.Context, time.Time) ([]*domain.CampaignInstance, error) {
	return f.instances, nil
}

func (f *fakeCampaignRepo) GetType(_ context.Context, name string) (*domain.CampaignType, error) {
	return f.types[name], nil
}

func (f *fakeCampaignRepo) PendingMemberships(_ context.Context, instanceID int64) ([]*domain.CampaignMembership, error) {
	return f.memberships[instanceID], nil
}

func (f *fakeCampaignRepo) GetInstance(_ context.Context, id int64) (*domain.CampaignInstance, error) {
	for _, inst := range f.instances {
		if inst.ID == id {
			return inst, nil
		}
	}
	return nil, nil
}

func (f *fakeCampaignRepo) FollowupsEnabled(_ context.Context, instanceID int64) (bool, error) {
	return f.followupsEnabled[instanceID], nil
}

type fakeBehaviorRepo struct {
	clicks      map[int64]*time.Time
	eligibility map[int64]*domain.EligibilityEvent
}

func (f *fakeBehaviorRepo) LastClick(_ context.Context, contactID int64, _ time.Time) (*time.Time, error) {
	return f.clicks[contactID], nil
}

func (f *fakeBehaviorRepo) LatestEligibility(_ context.Context, contactID int64, _ time.Time) (*domain.EligibilityEvent, error) {
	return f.eligibility[contactID], nil
}

type fakeCheckpointRepo struct {
	started   []string
	completed []string
	failed    []string
	counts    domain.RunCounts
}

func (f *fakeCheckpointRepo) Start(_ context.Context, runID string) error {
	f.started = append(f.started, runID)
	return nil
}

func (f *fakeCheckpointRepo) Complete(_ context.Context, runID string, counts domain.RunCounts) error {
	f.completed = append(f.completed, runID)
	f.counts = counts
	return nil
}

func (f *fakeCheckpointRepo) Fail(_ context.Context, runID string, _ string) error {
	f.failed = append(f.failed, runID)
	return nil
}
