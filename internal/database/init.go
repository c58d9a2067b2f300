package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// tableDefinitions creates every table the engine reads or writes. All
// statements are idempotent so init can run before every pass.
var tableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT,
		state TEXT,
		zip_code TEXT,
		birth_date DATE,
		effective_date DATE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_types (
		name TEXT PRIMARY KEY,
		respect_exclusion_windows BOOLEAN DEFAULT TRUE,
		enable_followups BOOLEAN DEFAULT TRUE,
		days_before_event INTEGER DEFAULT 0,
		target_all_contacts BOOLEAN DEFAULT FALSE,
		priority INTEGER DEFAULT 10,
		active BOOLEAN DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		campaign_type TEXT NOT NULL,
		instance_name TEXT NOT NULL,
		email_template TEXT,
		sms_template TEXT,
		active_start_date DATE,
		active_end_date DATE,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(campaign_type, instance_name),
		FOREIGN KEY (campaign_type) REFERENCES campaign_types(name)
	)`,
	`CREATE TABLE IF NOT EXISTS contact_campaigns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id INTEGER NOT NULL,
		campaign_instance_id INTEGER NOT NULL,
		trigger_date DATE,
		status TEXT DEFAULT 'pending',
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(contact_id, campaign_instance_id, trigger_date),
		FOREIGN KEY (campaign_instance_id) REFERENCES campaign_instances(id),
		FOREIGN KEY (contact_id) REFERENCES contacts(id)
	)`,
	`CREATE TABLE IF NOT EXISTS email_schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id INTEGER NOT NULL,
		email_type TEXT NOT NULL,
		scheduled_send_date DATE NOT NULL,
		scheduled_send_time TIME,
		status TEXT DEFAULT 'pre-scheduled',
		skip_reason TEXT,
		actual_send_datetime DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(contact_id, email_type, scheduled_send_date),
		FOREIGN KEY (contact_id) REFERENCES contacts(id)
	)`,
	`CREATE TABLE IF NOT EXISTS scheduler_checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_timestamp DATETIME NOT NULL,
		scheduler_run_id TEXT UNIQUE NOT NULL,
		contacts_checksum TEXT NOT NULL,
		schedules_before_checksum TEXT,
		schedules_after_checksum TEXT,
		contacts_processed INTEGER,
		emails_scheduled INTEGER,
		emails_skipped INTEGER,
		status TEXT NOT NULL,
		error_message TEXT,
		completed_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS tracking_clicks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id INTEGER NOT NULL,
		clicked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (contact_id) REFERENCES contacts(id)
	)`,
	`CREATE TABLE IF NOT EXISTS contact_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (contact_id) REFERENCES contacts(id)
	)`,
}

// migrationStatements add columns introduced after the first release.
// Duplicate-column errors are expected on databases that already carry
// them.
var migrationStatements = []string{
	`ALTER TABLE email_schedules ADD COLUMN priority INTEGER DEFAULT 10`,
	`ALTER TABLE email_schedules ADD COLUMN campaign_instance_id INTEGER`,
	`ALTER TABLE email_schedules ADD COLUMN email_template TEXT`,
	`ALTER TABLE email_schedules ADD COLUMN sms_template TEXT`,
	`ALTER TABLE email_schedules ADD COLUMN scheduler_run_id TEXT`,
	`ALTER TABLE email_schedules ADD COLUMN event_year INTEGER`,
	`ALTER TABLE email_schedules ADD COLUMN event_month INTEGER`,
	`ALTER TABLE email_schedules ADD COLUMN event_day INTEGER`,
	`ALTER TABLE email_schedules ADD COLUMN batch_id TEXT`,
	`ALTER TABLE email_schedules ADD COLUMN catchup_note TEXT`,
}

// Initialize creates or upgrades the schema.
func Initialize(db *sql.DB) error {
	for _, query := range tableDefinitions {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, query := range migrationStatements {
		if _, err := db.Exec(query); err != nil {
			if isDuplicateColumnErr(err) {
				continue
			}
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}

func isDuplicateColumnErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
