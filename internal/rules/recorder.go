package rules

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder persists execution logs and updates rule run statistics in the
// same transaction. Statistics use store-level increments so concurrent
// invocations never lose updates.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates an execution recorder.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record inserts the log row and bumps the rule's counters atomically.
// The log insert and the statistics update commit together or not at all.
// A returned error is a persistence failure and must surface to the
// caller; audit data is never silently dropped.
func (r *Recorder) Record(ctx context.Context, entry *ExecutionLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	if entry.SentCount+entry.FailedCount != entry.RecipientsCount {
		return fmt.Errorf("record: counter mismatch: sent %d + failed %d != recipients %d",
			entry.SentCount, entry.FailedCount, entry.RecipientsCount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO automation_execution_logs
			(id, rule_id, executed_at, status, action_type,
			 recipients_count, sent_count, failed_count, trigger_context, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))`,
		entry.ID, entry.RuleID, entry.ExecutedAt, entry.Status, entry.ActionType,
		entry.RecipientsCount, entry.SentCount, entry.FailedCount,
		[]byte(entry.TriggerContext), entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("record: insert log: %w", err)
	}

	successDelta := 0
	failureDelta := 0
	if entry.Status == StatusFailed {
		failureDelta = 1
	} else {
		successDelta = 1
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE automation_rules
		SET run_count = run_count + 1,
			success_count = success_count + $2,
			failure_count = failure_count + $3,
			last_run_at = $4,
			updated_at = NOW()
		WHERE id = $1`,
		entry.RuleID, successDelta, failureDelta, entry.ExecutedAt)
	if err != nil {
		return fmt.Errorf("record: update stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record: commit: %w", err)
	}
	return nil
}
