package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quotewell/email-scheduler/internal/domain"
)

// CheckpointRepository implements domain.CheckpointRepository.
type CheckpointRepository struct {
	db *sql.DB
}

// NewCheckpointRepository creates a CheckpointRepository.
func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Start inserts the run's checkpoint row in status started.
func (r *CheckpointRepository) Start(ctx context.Context, runID string) error {
	query, args, err := psql.
		Insert("scheduler_checkpoints").
		Columns("run_timestamp", "scheduler_run_id", "contacts_checksum", "status").
		Values(time.Now().UTC().Format(time.RFC3339), runID, "tbd", domain.CheckpointStarted).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build checkpoint insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// Complete updates the run's row to completed with final counts.
func (r *CheckpointRepository) Complete(ctx context.Context, runID string, counts domain.RunCounts) error {
	return r.finish(ctx, runID, domain.CheckpointCompleted, counts, nil)
}

// Fail updates the run's row to failed with the error message.
func (r *CheckpointRepository) Fail(ctx context.Context, runID string, errMsg string) error {
	return r.finish(ctx, runID, domain.CheckpointFailed, domain.RunCounts{}, &errMsg)
}

func (r *CheckpointRepository) finish(ctx context.Context, runID, status string, counts domain.RunCounts, errMsg *string) error {
	query, args, err := psql.
		Update("scheduler_checkpoints").
		Set("status", status).
		Set("contacts_processed", counts.ContactsProcessed).
		Set("emails_scheduled", counts.EmailsScheduled).
		Set("emails_skipped", counts.EmailsSkipped).
		Set("error_message", nullString(errMsg)).
		Set("completed_at", time.Now().UTC().Format(time.RFC3339)).
		Where("scheduler_run_id = ?", runID).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build checkpoint update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update checkpoint: %w", err)
	}
	return nil
}
