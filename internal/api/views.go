package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fitpulse/studio-automation/internal/rules"
)

type ruleView struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	RuleType     rules.RuleType    `json:"rule_type"`
	TriggerEvent string            `json:"trigger_event"`
	Conditions   rules.Conditions  `json:"trigger_conditions"`
	ActionType   rules.ActionType  `json:"action_type"`
	Audience     rules.Audience    `json:"target_audience"`
	Enabled      bool              `json:"enabled"`
	LastRunAt    *time.Time        `json:"last_run_at,omitempty"`
	RunCount     int               `json:"run_count"`
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
}

func toRuleView(r *rules.Rule) ruleView {
	return ruleView{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		RuleType:     r.RuleType,
		TriggerEvent: r.TriggerEvent,
		Conditions:   r.Conditions,
		ActionType:   r.ActionType,
		Audience:     r.Audience,
		Enabled:      r.Enabled,
		LastRunAt:    r.LastRunAt,
		RunCount:     r.RunCount,
		SuccessCount: r.SuccessCount,
		FailureCount: r.FailureCount,
	}
}

type logView struct {
	ID              uuid.UUID        `json:"id"`
	RuleID          uuid.UUID        `json:"rule_id"`
	ExecutedAt      time.Time        `json:"executed_at"`
	Status          string           `json:"status"`
	ActionType      rules.ActionType `json:"action_type"`
	RecipientsCount int              `json:"recipients_count"`
	SentCount       int              `json:"sent_count"`
	FailedCount     int              `json:"failed_count"`
	TriggerContext  json.RawMessage  `json:"trigger_context,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

func toLogView(l *rules.ExecutionLog) logView {
	return logView{
		ID:              l.ID,
		RuleID:          l.RuleID,
		ExecutedAt:      l.ExecutedAt,
		Status:          l.Status,
		ActionType:      l.ActionType,
		RecipientsCount: l.RecipientsCount,
		SentCount:       l.SentCount,
		FailedCount:     l.FailedCount,
		TriggerContext:  l.TriggerContext,
		ErrorMessage:    l.ErrorMessage,
	}
}
