package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/quotewell/email-scheduler/internal/domain"
)

// CampaignRepository implements domain.CampaignRepository.
type CampaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a CampaignRepository.
func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const instanceColumns = "id, campaign_type, instance_name, email_template, sms_template, active_start_date, active_end_date, metadata"

// ActiveInstances returns instances whose activity window contains
// today; null bounds are open-ended.
func (r *CampaignRepository) ActiveInstances(ctx context.Context, today time.Time) ([]*domain.CampaignInstance, error) {
	day := formatDate(today)
	query, args, err := psql.
		Select(instanceColumns).
		From("campaign_instances").
		Where("(active_start_date IS NULL OR active_start_date <= ?)", day).
		Where("(active_end_date IS NULL OR active_end_date >= ?)", day).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign instances: %w", err)
	}
	defer rows.Close()

	var instances []*domain.CampaignInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read campaign instances: %w", err)
	}
	return instances, nil
}

// GetType returns the active campaign type with the given name, or nil.
func (r *CampaignRepository) GetType(ctx context.Context, name string) (*domain.CampaignType, error) {
	query, args, err := psql.
		Select("name", "respect_exclusion_windows", "enable_followups",
			"days_before_event", "target_all_contacts", "priority").
		From("campaign_types").
		Where("name = ?", name).
		Where("active = TRUE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var ct domain.CampaignType
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&ct.Name, &ct.RespectExclusionWindows, &ct.EnableFollowups,
		&ct.DaysBeforeEvent, &ct.TargetAllContacts, &ct.Priority)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign type: %w", err)
	}
	return &ct, nil
}

// PendingMemberships returns pending memberships for an instance.
func (r *CampaignRepository) PendingMemberships(ctx context.Context, instanceID int64) ([]*domain.CampaignMembership, error) {
	query, args, err := psql.
		Select("contact_id", "trigger_date").
		From("contact_campaigns").
		Where(sq.Eq{"campaign_instance_id": instanceID}).
		Where(sq.Eq{"status": domain.MembershipStatusPending}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*domain.CampaignMembership
	for rows.Next() {
		var m domain.CampaignMembership
		var trigger sql.NullString
		if err := rows.Scan(&m.ContactID, &trigger); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		if m.TriggerDate, err = parseNullDate(trigger); err != nil {
			// Malformed trigger dates are reported as absent; the
			// pipeline logs and skips the membership.
			m.TriggerDate = nil
		}
		memberships = append(memberships, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memberships: %w", err)
	}
	return memberships, nil
}

// GetInstance returns the instance with the given id, or nil.
func (r *CampaignRepository) GetInstance(ctx context.Context, id int64) (*domain.CampaignInstance, error) {
	query, args, err := psql.
		Select(instanceColumns).
		From("campaign_instances").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// FollowupsEnabled reports whether the instance's campaign type has
// follow-ups enabled. Unknown instances report false.
func (r *CampaignRepository) FollowupsEnabled(ctx context.Context, instanceID int64) (bool, error) {
	query := `
		SELECT ct.enable_followups
		FROM campaign_instances ci
		JOIN campaign_types ct ON ci.campaign_type = ct.name
		WHERE ci.id = ?`

	var enabled bool
	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query followup flag: %w", err)
	}
	return enabled, nil
}

func scanInstance(row rowScanner) (*domain.CampaignInstance, error) {
	var instance domain.CampaignInstance
	var emailTemplate, smsTemplate, metadata sql.NullString
	var activeStart, activeEnd sql.NullString

	err := row.Scan(&instance.ID, &instance.CampaignType, &instance.InstanceName,
		&emailTemplate, &smsTemplate, &activeStart, &activeEnd, &metadata)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan campaign instance: %w", err)
	}

	if emailTemplate.Valid {
		instance.EmailTemplate = &emailTemplate.String
	}
	if smsTemplate.Valid {
		instance.SMSTemplate = &smsTemplate.String
	}
	if metadata.Valid {
		instance.Metadata = &metadata.String
	}
	if instance.ActiveStartDate, err = parseNullDate(activeStart); err != nil {
		return nil, fmt.Errorf("instance %d: %w", instance.ID, err)
	}
	if instance.ActiveEndDate, err = parseNullDate(activeEnd); err != nil {
		return nil, fmt.Errorf("instance %d: %w", instance.ID, err)
	}
	return &instance, nil
}
