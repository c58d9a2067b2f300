package domain

import "context"

// Checkpoint statuses.
const (
	CheckpointStarted   = "started"
	CheckpointCompleted = "completed"
	CheckpointFailed    = "failed"
)

// RunCounts summarises one scheduler pass for the audit trail.
type RunCounts struct {
	ContactsProcessed int
	EmailsScheduled   int
	EmailsSkipped     int
}

// CheckpointRepository records start, completion and failure of runs.
// One row per scheduler_run_id; Complete and Fail update the started
// row in place.
type CheckpointRepository interface {
	Start(ctx context.Context, runID string) error
	Complete(ctx context.Context, runID string, counts RunCounts) error
	Fail(ctx context.Context, runID string, errMsg string) error
}
