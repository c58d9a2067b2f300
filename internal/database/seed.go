package database

import (
	"database/sql"
	"fmt"
	"time"
)

// SeedTestCampaigns populates sample campaign types, instances and
// contact memberships for manual verification. Returns the number of
// contacts targeted.
func SeedTestCampaigns(db *sql.DB, today time.Time) (int, error) {
	campaignTypes := []struct {
		name                    string
		respectExclusionWindows bool
		enableFollowups         bool
		daysBeforeEvent         int
		targetAllContacts       bool
		priority                int
	}{
		{"rate_increase", true, true, 14, false, 1},
		{"seasonal_promo", true, true, 7, false, 5},
		{"initial_blast", false, false, 0, true, 10},
	}

	for _, ct := range campaignTypes {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO campaign_types (
				name, respect_exclusion_windows, enable_followups, days_before_event,
				target_all_contacts, priority, active
			) VALUES (?, ?, ?, ?, ?, ?, TRUE)`,
			ct.name, ct.respectExclusionWindows, ct.enableFollowups,
			ct.daysBeforeEvent, ct.targetAllContacts, ct.priority)
		if err != nil {
			return 0, fmt.Errorf("failed to seed campaign type %s: %w", ct.name, err)
		}
	}

	start := today.Format("2006-01-02")
	end := today.AddDate(0, 0, 90).Format("2006-01-02")

	instances := []struct {
		campaignType  string
		instanceName  string
		emailTemplate string
		smsTemplate   string
	}{
		{"rate_increase", "rate_increase_q1", "rate_increase_template_v1", "rate_increase_sms_v1"},
		{"seasonal_promo", "spring_enrollment", "spring_promo_template", "spring_promo_sms"},
	}

	instanceIDs := make([]int64, 0, len(instances))
	for _, inst := range instances {
		_, err := db.Exec(`
			INSERT OR REPLACE INTO campaign_instances (
				campaign_type, instance_name, email_template, sms_template,
				active_start_date, active_end_date, metadata
			) VALUES (?, ?, ?, ?, ?, ?, NULL)`,
			inst.campaignType, inst.instanceName, inst.emailTemplate, inst.smsTemplate,
			start, end)
		if err != nil {
			return 0, fmt.Errorf("failed to seed campaign instance %s: %w", inst.instanceName, err)
		}

		var id int64
		err = db.QueryRow(`SELECT id FROM campaign_instances WHERE instance_name = ?`, inst.instanceName).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to look up instance %s: %w", inst.instanceName, err)
		}
		instanceIDs = append(instanceIDs, id)
	}

	rows, err := db.Query(`SELECT id FROM contacts LIMIT 50`)
	if err != nil {
		return 0, fmt.Errorf("failed to select test contacts: %w", err)
	}
	defer rows.Close()

	var contactIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan contact id: %w", err)
		}
		contactIDs = append(contactIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read test contacts: %w", err)
	}

	// First half targets the rate-increase campaign, second half the
	// seasonal promo.
	triggerDate := today.AddDate(0, 0, 30).Format("2006-01-02")
	for i, contactID := range contactIDs {
		instanceID := instanceIDs[0]
		if i >= len(contactIDs)/2 {
			instanceID = instanceIDs[1]
		}
		_, err := db.Exec(`
			INSERT OR REPLACE INTO contact_campaigns (
				contact_id, campaign_instance_id, trigger_date, status, metadata
			) VALUES (?, ?, ?, 'pending', NULL)`,
			contactID, instanceID, triggerDate)
		if err != nil {
			return 0, fmt.Errorf("failed to seed contact campaign: %w", err)
		}
	}

	return len(contactIDs), nil
}
