package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotewell/email-scheduler/internal/domain"
)

var instanceCols = []string{"id", "campaign_type", "instance_name", "email_template",
	"sms_template", "active_start_date", "active_end_date", "metadata"}

func TestCampaignRepository_ActiveInstances(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(instanceCols).
		AddRow(int64(1), "rate_increase", "rates_q2", "rate_template", nil, "2024-04-01", "2024-06-30", nil).
		AddRow(int64(2), "seasonal_promo", "summer", nil, nil, nil, nil, `{"theme":"summer"}`)
	mock.ExpectQuery("SELECT id, campaign_type, instance_name").
		WithArgs("2024-06-01", "2024-06-01").
		WillReturnRows(rows)

	repo := NewCampaignRepository(db)
	instances, err := repo.ActiveInstances(context.Background(), time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, instances, 2)

	assert.Equal(t, "rates_q2", instances[0].InstanceName)
	require.NotNil(t, instances[0].EmailTemplate)
	assert.Equal(t, "rate_template", *instances[0].EmailTemplate)
	require.NotNil(t, instances[0].ActiveStartDate)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), *instances[0].ActiveStartDate)

	assert.Nil(t, instances[1].ActiveStartDate)
	require.NotNil(t, instances[1].Metadata)
}

func TestCampaignRepository_GetType(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"name", "respect_exclusion_windows", "enable_followups",
			"days_before_event", "target_all_contacts", "priority"}).
			AddRow("rate_increase", true, true, 14, false, 1)
		mock.ExpectQuery("SELECT name, respect_exclusion_windows").
			WithArgs("rate_increase").
			WillReturnRows(rows)

		repo := NewCampaignRepository(db)
		ct, err := repo.GetType(context.Background(), "rate_increase")
		require.NoError(t, err)
		require.NotNil(t, ct)
		assert.True(t, ct.RespectExclusionWindows)
		assert.Equal(t, 14, ct.DaysBeforeEvent)
		assert.Equal(t, 1, ct.Priority)
	})

	t.Run("inactive or unknown returns nil", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT name, respect_exclusion_windows").
			WithArgs("retired").
			WillReturnRows(sqlmock.NewRows([]string{"name"}))

		repo := NewCampaignRepository(db)
		ct, err := repo.GetType(context.Background(), "retired")
		require.NoError(t, err)
		assert.Nil(t, ct)
	})
}

func TestCampaignRepository_PendingMemberships(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"contact_id", "trigger_date"}).
		AddRow(int64(10), "2024-07-01").
		AddRow(int64(11), nil).
		AddRow(int64(12), "not-a-date")
	mock.ExpectQuery("SELECT contact_id, trigger_date FROM contact_campaigns").
		WithArgs(int64(3), domain.MembershipStatusPending).
		WillReturnRows(rows)

	repo := NewCampaignRepository(db)
	memberships, err := repo.PendingMemberships(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, memberships, 3)

	require.NotNil(t, memberships[0].TriggerDate)
	assert.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), *memberships[0].TriggerDate)
	assert.Nil(t, memberships[1].TriggerDate)
	// malformed trigger surfaces as absent so the pipeline can skip it
	assert.Nil(t, memberships[2].TriggerDate)
}

func TestCampaignRepository_FollowupsEnabled(t *testing.T) {
	t.Run("reads the type flag through the join", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT ct.enable_followups").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"enable_followups"}).AddRow(true))

		repo := NewCampaignRepository(db)
		enabled, err := repo.FollowupsEnabled(context.Background(), 3)
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("unknown instance reports false", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT ct.enable_followups").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"enable_followups"}))

		repo := NewCampaignRepository(db)
		enabled, err := repo.FollowupsEnabled(context.Background(), 99)
		require.NoError(t, err)
		assert.False(t, enabled)
	})
}
