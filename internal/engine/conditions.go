package engine

import (
	"time"

	"github.com/fitpulse/studio-automation/internal/pkg/logger"
	"github.com/fitpulse/studio-automation/internal/rules"
)

// Evaluator decides whether a rule fires for a given context. Evaluation
// never errors: anything it cannot resolve (missing entity, unknown field
// or operator) fails closed and the rule simply does not fire.
type Evaluator struct {
	tolerance time.Duration
	now       func() time.Time
}

// Evaluate checks the rule's trigger event and every stored condition
// against the context. All conditions combine with AND semantics; a rule
// with empty conditions fires on the bare event match.
func (ev *Evaluator) Evaluate(rule *rules.Rule, ec EventContext, ents *entityBundle) bool {
	if !rule.Enabled {
		return false
	}
	if rule.TriggerEvent != ec.TriggerEvent {
		return false
	}

	if hb := rule.Conditions.HoursBefore; hb != nil {
		if ents.session == nil {
			logger.Debug("hours_before condition without session, rule not fired", "rule_id", rule.ID)
			return false
		}
		target := ents.session.StartsAt.Add(-time.Duration(*hb * float64(time.Hour)))
		diff := ev.now().Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if diff > ev.tolerance {
			return false
		}
	}

	if len(rule.Conditions.Predicates) > 0 {
		fields := ents.fields()
		for _, p := range rule.Conditions.Predicates {
			if !p.Matches(fields) {
				return false
			}
		}
	}

	return true
}
