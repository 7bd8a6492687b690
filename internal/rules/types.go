// Package rules defines the persisted automation rule model, its condition
// predicate language, and the execution audit log.
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RuleType classifies what a rule automates. It selects the built-in
// default message content when a rule carries none of its own.
type RuleType string

const (
	RuleSessionReminder RuleType = "session_reminder"
	RulePaymentReminder RuleType = "payment_reminder"
	RuleBirthday        RuleType = "birthday"
	RuleReEngagement    RuleType = "re_engagement"
	RuleCustom          RuleType = "custom"
)

// ActionType selects the delivery channel(s) for a rule.
type ActionType string

const (
	ActionEmail ActionType = "email"
	ActionSMS   ActionType = "sms"
	ActionBoth  ActionType = "both"
)

// NeedsEmail reports whether the action requires an email address.
func (a ActionType) NeedsEmail() bool { return a == ActionEmail || a == ActionBoth }

// NeedsSMS reports whether the action requires a phone number.
func (a ActionType) NeedsSMS() bool { return a == ActionSMS || a == ActionBoth }

// Audience selects how a rule's recipients are resolved.
type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceClients  Audience = "clients"
	AudienceTrainers Audience = "trainers"
	AudienceSpecific Audience = "specific"
)

// Rule is a persisted automation definition pairing a trigger condition
// with an audience and an action.
type Rule struct {
	ID           uuid.UUID
	Name         string
	Description  string
	RuleType     RuleType
	TriggerEvent string
	Conditions   Conditions
	ActionType   ActionType

	// Message content: a named template reference, overridden by any
	// literal per-channel text set directly on the rule.
	TemplateName string
	EmailSubject string
	EmailBody    string
	SMSBody      string

	Audience      Audience
	TargetFilters map[string]string
	TargetIDs     []uuid.UUID

	Enabled  bool
	Timezone string

	// Run statistics, updated by the recorder with store-level increments.
	LastRunAt    *time.Time
	NextRunAt    *time.Time
	RunCount     int
	SuccessCount int
	FailureCount int
}

// Predicate is a single typed condition checked against entity fields.
type Predicate struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// Predicate operators.
const (
	OpEq  = "eq"
	OpNeq = "neq"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
	OpIn  = "in"
)

// Conditions is the parsed form of a rule's trigger_conditions JSON. All
// entries combine with AND semantics; absent keys impose no constraint.
//
// The stored JSON accepts both an explicit predicate list and the compact
// shorthand keys the rule editor writes ("status", "min_amount"):
//
//	{"hours_before": 24, "status": "scheduled"}
//	{"predicates": [{"field": "amount", "op": "gte", "value": 50}]}
type Conditions struct {
	HoursBefore *float64
	Predicates  []Predicate
}

// Empty reports whether the conditions impose no constraint at all.
func (c Conditions) Empty() bool {
	return c.HoursBefore == nil && len(c.Predicates) == 0
}

// UnmarshalJSON parses both shorthand keys and explicit predicate lists.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*c = Conditions{}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("trigger_conditions: %w", err)
	}

	out := Conditions{}
	for key, val := range raw {
		switch key {
		case "hours_before":
			var hours float64
			if err := json.Unmarshal(val, &hours); err != nil {
				return fmt.Errorf("trigger_conditions.hours_before: %w", err)
			}
			out.HoursBefore = &hours
		case "predicates":
			var preds []Predicate
			if err := json.Unmarshal(val, &preds); err != nil {
				return fmt.Errorf("trigger_conditions.predicates: %w", err)
			}
			out.Predicates = append(out.Predicates, preds...)
		case "min_amount":
			var min float64
			if err := json.Unmarshal(val, &min); err != nil {
				return fmt.Errorf("trigger_conditions.min_amount: %w", err)
			}
			out.Predicates = append(out.Predicates, Predicate{Field: "amount", Op: OpGte, Value: min})
		default:
			// Any other scalar key is an equality check on that field.
			var v interface{}
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("trigger_conditions.%s: %w", key, err)
			}
			out.Predicates = append(out.Predicates, Predicate{Field: key, Op: OpEq, Value: v})
		}
	}

	*c = out
	return nil
}

// MarshalJSON writes the normalized form.
func (c Conditions) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	if c.HoursBefore != nil {
		out["hours_before"] = *c.HoursBefore
	}
	if len(c.Predicates) > 0 {
		out["predicates"] = c.Predicates
	}
	return json.Marshal(out)
}

// Matches evaluates the predicate against a flat field map. A missing
// field fails closed.
func (p Predicate) Matches(fields map[string]interface{}) bool {
	val, ok := fields[p.Field]
	if !ok {
		return false
	}

	switch p.Op {
	case OpEq, "":
		return fmt.Sprint(val) == fmt.Sprint(p.Value)
	case OpNeq:
		return fmt.Sprint(val) != fmt.Sprint(p.Value)
	case OpGt, OpGte, OpLt, OpLte:
		have, ok1 := toFloat(val)
		want, ok2 := toFloat(p.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch p.Op {
		case OpGt:
			return have > want
		case OpGte:
			return have >= want
		case OpLt:
			return have < want
		default:
			return have <= want
		}
	case OpIn:
		options, ok := p.Value.([]interface{})
		if !ok {
			return false
		}
		for _, opt := range options {
			if fmt.Sprint(val) == fmt.Sprint(opt) {
				return true
			}
		}
		return false
	default:
		// Unknown operator fails closed.
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Execution log statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// ExecutionLog is one immutable audit row per rule invocation that reached
// the dispatch phase. sent + failed always equals recipients.
type ExecutionLog struct {
	ID              uuid.UUID
	RuleID          uuid.UUID
	ExecutedAt      time.Time
	Status          string
	ActionType      ActionType
	RecipientsCount int
	SentCount       int
	FailedCount     int
	TriggerContext  json.RawMessage
	ErrorMessage    string
}

// DeriveStatus computes the log status from dispatch counters. aborted
// marks invocations that failed before dispatch (e.g. no transport
// configured for the rule's channel).
func DeriveStatus(sentCount, failedCount int, aborted bool) string {
	switch {
	case aborted:
		return StatusFailed
	case failedCount == 0:
		return StatusSuccess
	default:
		return StatusPartial
	}
}
