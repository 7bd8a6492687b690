package rules

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store handles reads of automation_rules and automation_execution_logs.
// Rule writes belong to the admin CRUD service; the engine only reads
// rules and appends logs (via Recorder).
type Store struct {
	db *sql.DB
}

// NewStore creates a rule store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const ruleColumns = `id, name, COALESCE(description,''), rule_type, trigger_event,
	COALESCE(trigger_conditions, '{}'::jsonb), action_type,
	COALESCE(template_name,''), COALESCE(email_subject,''), COALESCE(email_body,''), COALESCE(sms_body,''),
	target_audience, COALESCE(target_filters, '{}'::jsonb), COALESCE(target_ids, '{}'),
	enabled, COALESCE(timezone,'UTC'),
	last_run_at, next_run_at, run_count, success_count, failure_count`

func scanRule(scan func(dest ...interface{}) error) (*Rule, error) {
	var r Rule
	var conditionsJSON, filtersJSON []byte
	var targetIDs pq.StringArray

	err := scan(
		&r.ID, &r.Name, &r.Description, &r.RuleType, &r.TriggerEvent,
		&conditionsJSON, &r.ActionType,
		&r.TemplateName, &r.EmailSubject, &r.EmailBody, &r.SMSBody,
		&r.Audience, &filtersJSON, &targetIDs,
		&r.Enabled, &r.Timezone,
		&r.LastRunAt, &r.NextRunAt, &r.RunCount, &r.SuccessCount, &r.FailureCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditionsJSON, &r.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filtersJSON, &r.TargetFilters); err != nil {
		return nil, err
	}
	for _, raw := range targetIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		r.TargetIDs = append(r.TargetIDs, id)
	}
	return &r, nil
}

// Get fetches a single rule by ID. Returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules WHERE id = $1`, id)
	r, err := scanRule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListByTrigger returns the enabled rules declaring interest in the given
// trigger event. This is the snapshot an invocation evaluates against.
func (s *Store) ListByTrigger(ctx context.Context, triggerEvent string) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules
		WHERE enabled = true AND trigger_event = $1
		ORDER BY created_at`, triggerEvent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListTimeWindow returns the enabled rules carrying an hours_before
// condition, for the sweep's session lookahead.
func (s *Store) ListTimeWindow(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules
		WHERE enabled = true AND trigger_conditions ? 'hours_before'
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// List returns all rules, for the read-only dashboard surface.
func (s *Store) List(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]Rule, error) {
	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListLogs returns the most recent execution logs for a rule.
func (s *Store) ListLogs(ctx context.Context, ruleID uuid.UUID, limit int) ([]ExecutionLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_id, executed_at, status, action_type,
			recipients_count, sent_count, failed_count,
			COALESCE(trigger_context, '{}'::jsonb), COALESCE(error_message,'')
		FROM automation_execution_logs
		WHERE rule_id = $1
		ORDER BY executed_at DESC
		LIMIT $2`, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ExecutionLog
	for rows.Next() {
		var l ExecutionLog
		if err := rows.Scan(
			&l.ID, &l.RuleID, &l.ExecutedAt, &l.Status, &l.ActionType,
			&l.RecipientsCount, &l.SentCount, &l.FailedCount,
			&l.TriggerContext, &l.ErrorMessage,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
