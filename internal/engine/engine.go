// Package engine implements the automation rule pipeline: condition
// evaluation, audience resolution, rendering, dispatch and execution
// recording, for both discrete business events and periodic time sweeps.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitpulse/studio-automation/internal/channel"
	"github.com/fitpulse/studio-automation/internal/pkg/distlock"
	"github.com/fitpulse/studio-automation/internal/pkg/logger"
	"github.com/fitpulse/studio-automation/internal/rules"
	"github.com/fitpulse/studio-automation/internal/store"
)

// DefaultTolerance bounds how far from the computed trigger instant a
// time-window condition still fires. The sweep interval must stay at or
// below twice this value or qualifying instants can fall between sweeps.
const DefaultTolerance = time.Hour

// RuleSource provides the rule snapshots an invocation evaluates against.
type RuleSource interface {
	ListByTrigger(ctx context.Context, triggerEvent string) ([]rules.Rule, error)
	ListTimeWindow(ctx context.Context) ([]rules.Rule, error)
}

// EntityReader provides read access to the studio entity store.
type EntityReader interface {
	Client(ctx context.Context, id uuid.UUID) (*store.Client, error)
	Trainer(ctx context.Context, id uuid.UUID) (*store.Trainer, error)
	Session(ctx context.Context, id uuid.UUID) (*store.Session, error)
	Payment(ctx context.Context, id uuid.UUID) (*store.Payment, error)
	ListClients(ctx context.Context, filters map[string]string) ([]store.Client, error)
	ListTrainers(ctx context.Context, filters map[string]string) ([]store.Trainer, error)
	ClientsByBirthday(ctx context.Context, month time.Month, day int) ([]store.Client, error)
	PaymentsByStatus(ctx context.Context, statuses ...string) ([]store.Payment, error)
	SessionsStartingBetween(ctx context.Context, from, to time.Time) ([]store.Session, error)
}

// ContentRenderer renders a rule's message for one recipient.
type ContentRenderer interface {
	Render(ctx context.Context, rule *rules.Rule, vars map[string]interface{}) (channel.Content, error)
}

// MessageDispatcher fans rendered content out to recipients.
type MessageDispatcher interface {
	Supports(action rules.ActionType) bool
	Dispatch(ctx context.Context, action rules.ActionType, deliveries []channel.Delivery) channel.Tally
}

// ExecutionRecorder persists one audit log per invocation and updates the
// rule's run statistics atomically.
type ExecutionRecorder interface {
	Record(ctx context.Context, entry *rules.ExecutionLog) error
}

// EventContext carries the entity references of one business occurrence
// through the pipeline.
type EventContext struct {
	TriggerEvent string                 `json:"trigger_event"`
	ClientID     *uuid.UUID             `json:"client_id,omitempty"`
	TrainerID    *uuid.UUID             `json:"trainer_id,omitempty"`
	SessionID    *uuid.UUID             `json:"session_id,omitempty"`
	PaymentID    *uuid.UUID             `json:"payment_id,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// Recipient is a resolved addressable target.
type Recipient struct {
	Kind        string    `json:"kind"` // "client" or "trainer"
	SourceID    uuid.UUID `json:"source_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
}

// Engine drives the rule pipeline. It is safe for concurrent use: event
// triggers and sweep ticks may run simultaneously, and statistics updates
// happen at the store level.
type Engine struct {
	rules      RuleSource
	entities   EntityReader
	renderer   ContentRenderer
	dispatcher MessageDispatcher
	recorder   ExecutionRecorder

	evaluator *Evaluator
	resolver  *Resolver

	sweepLock distlock.DistLock
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTolerance overrides the time-window matching tolerance.
func WithTolerance(d time.Duration) Option {
	return func(e *Engine) { e.evaluator.tolerance = d }
}

// WithSweepLock sets the distributed lock serializing sweep ticks across
// processes.
func WithSweepLock(lock distlock.DistLock) Option {
	return func(e *Engine) { e.sweepLock = lock }
}

// WithClock overrides the engine clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.evaluator.now = now
	}
}

// New assembles an engine from its collaborators.
func New(ruleSource RuleSource, entities EntityReader, renderer ContentRenderer,
	dispatcher MessageDispatcher, recorder ExecutionRecorder, opts ...Option) *Engine {

	e := &Engine{
		rules:      ruleSource,
		entities:   entities,
		renderer:   renderer,
		dispatcher: dispatcher,
		recorder:   recorder,
		now:        time.Now,
	}
	e.evaluator = &Evaluator{tolerance: DefaultTolerance, now: time.Now}
	e.resolver = &Resolver{entities: entities}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tolerance returns the configured time-window matching tolerance.
func (e *Engine) Tolerance() time.Duration { return e.evaluator.tolerance }

// Trigger runs the pipeline for one business event. It is called by event
// producers after their entity mutation commits, and by the sweep for
// synthesized contexts. Only persistence failures are returned; everything
// else is captured in counters and log rows.
func (e *Engine) Trigger(ctx context.Context, triggerEvent string, ec EventContext) error {
	ec.TriggerEvent = triggerEvent

	matched, err := e.rules.ListByTrigger(ctx, triggerEvent)
	if err != nil {
		return fmt.Errorf("engine: list rules for %q: %w", triggerEvent, err)
	}
	if len(matched) == 0 {
		return nil
	}

	ents := e.loadEntities(ctx, ec)
	if len(ents.unresolved) > 0 {
		// The context names a subject that no longer exists (or could not
		// be read). Firing anyway would fall through to a broadcast, so
		// the whole event fails closed instead.
		logger.Warn("event subject unresolved, no rules fired",
			"trigger_event", triggerEvent, "unresolved", strings.Join(ents.unresolved, ","))
		return nil
	}

	var errs []error
	for i := range matched {
		rule := &matched[i]
		if !e.evaluator.Evaluate(rule, ec, ents) {
			continue
		}
		if err := e.runRule(ctx, rule, ec, ents); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runRule executes the dispatch phase for one fired rule and records the
// outcome. The returned error is always a persistence failure.
func (e *Engine) runRule(ctx context.Context, rule *rules.Rule, ec EventContext, ents *entityBundle) error {
	trigCtx, _ := json.Marshal(ec)
	entry := &rules.ExecutionLog{
		RuleID:         rule.ID,
		ActionType:     rule.ActionType,
		TriggerContext: trigCtx,
	}

	if !e.dispatcher.Supports(rule.ActionType) {
		entry.Status = rules.StatusFailed
		entry.ErrorMessage = fmt.Sprintf("no transport configured for action %q", rule.ActionType)
		logger.Warn("rule skipped: missing transport", "rule_id", rule.ID, "action", string(rule.ActionType))
		return e.recorder.Record(ctx, entry)
	}

	recipients, err := e.resolver.Resolve(ctx, rule, ec, ents)
	if err != nil {
		// Audience lookup failed: the rule does not fire this time. The
		// next event or sweep re-evaluates it.
		logger.Warn("audience resolution failed, rule not fired", "rule_id", rule.ID, "error", err.Error())
		return nil
	}

	var deliveries []channel.Delivery
	preFailed := 0
	var errMsgs []string
	for _, rcpt := range recipients {
		content, err := e.renderer.Render(ctx, rule, e.templateVars(rcpt, ec, ents))
		if err != nil {
			preFailed++
			errMsgs = append(errMsgs, fmt.Sprintf("render for %s: %v", rcpt.Kind, err))
			continue
		}
		deliveries = append(deliveries, channel.Delivery{
			Email:   rcpt.Email,
			Phone:   rcpt.Phone,
			Content: content,
		})
	}

	tally := e.dispatcher.Dispatch(ctx, rule.ActionType, deliveries)
	errMsgs = append(errMsgs, tally.Errors...)

	entry.RecipientsCount = len(recipients)
	entry.SentCount = tally.Sent
	entry.FailedCount = tally.Failed + preFailed
	entry.Status = rules.DeriveStatus(entry.SentCount, entry.FailedCount, false)
	entry.ErrorMessage = joinErrors(errMsgs)

	log.Printf("[Engine] Rule %q fired: %d recipients, %d sent, %d failed (%s)",
		rule.Name, entry.RecipientsCount, entry.SentCount, entry.FailedCount, entry.Status)

	if err := e.recorder.Record(ctx, entry); err != nil {
		return fmt.Errorf("engine: record execution of rule %s: %w", rule.ID, err)
	}
	return nil
}

// entityBundle holds the entities referenced by one event context.
// unresolved lists context ids that did not dereference (deleted entity
// or lookup failure); any entry makes the event fail closed.
type entityBundle struct {
	client  *store.Client
	trainer *store.Trainer
	session *store.Session
	payment *store.Payment

	unresolved []string
}

// loadEntities dereferences the context's entity ids. A missing or
// unreadable entity is recorded in unresolved rather than silently left
// nil, so Trigger can refuse to fire instead of widening the audience.
func (e *Engine) loadEntities(ctx context.Context, ec EventContext) *entityBundle {
	b := &entityBundle{}
	if ec.ClientID != nil {
		c, err := e.entities.Client(ctx, *ec.ClientID)
		if err != nil {
			logger.Warn("client lookup failed", "client_id", ec.ClientID.String(), "error", err.Error())
		}
		if c == nil {
			b.unresolved = append(b.unresolved, "client:"+ec.ClientID.String())
		}
		b.client = c
	}
	if ec.TrainerID != nil {
		t, err := e.entities.Trainer(ctx, *ec.TrainerID)
		if err != nil {
			logger.Warn("trainer lookup failed", "trainer_id", ec.TrainerID.String(), "error", err.Error())
		}
		if t == nil {
			b.unresolved = append(b.unresolved, "trainer:"+ec.TrainerID.String())
		}
		b.trainer = t
	}
	if ec.SessionID != nil {
		s, err := e.entities.Session(ctx, *ec.SessionID)
		if err != nil {
			logger.Warn("session lookup failed", "session_id", ec.SessionID.String(), "error", err.Error())
		}
		if s == nil {
			b.unresolved = append(b.unresolved, "session:"+ec.SessionID.String())
		}
		b.session = s
	}
	if ec.PaymentID != nil {
		p, err := e.entities.Payment(ctx, *ec.PaymentID)
		if err != nil {
			logger.Warn("payment lookup failed", "payment_id", ec.PaymentID.String(), "error", err.Error())
		}
		if p == nil {
			b.unresolved = append(b.unresolved, "payment:"+ec.PaymentID.String())
		}
		b.payment = p
	}
	return b
}

// fields merges entity attributes for predicate checks. Later entries win,
// so the most event-specific entity (payment, then session) provides
// ambiguous fields like "status".
func (b *entityBundle) fields() map[string]interface{} {
	merged := map[string]interface{}{}
	if b.client != nil {
		for k, v := range b.client.Fields() {
			merged[k] = v
		}
	}
	if b.trainer != nil {
		for k, v := range b.trainer.Fields() {
			merged[k] = v
		}
	}
	if b.session != nil {
		for k, v := range b.session.Fields() {
			merged[k] = v
		}
	}
	if b.payment != nil {
		for k, v := range b.payment.Fields() {
			merged[k] = v
		}
	}
	return merged
}

// templateVars builds the variable map for rendering one recipient.
func (e *Engine) templateVars(rcpt Recipient, ec EventContext, ents *entityBundle) map[string]interface{} {
	vars := ents.fields()
	for k, v := range ec.Extra {
		vars[k] = v
	}
	vars["name"] = rcpt.DisplayName
	if first, _, found := strings.Cut(rcpt.DisplayName, " "); found || first != "" {
		vars["first_name"] = first
	}
	vars["email"] = rcpt.Email
	vars["phone"] = rcpt.Phone
	return vars
}

func joinErrors(msgs []string) string {
	if len(msgs) == 0 {
		return ""
	}
	joined := strings.Join(msgs, "; ")
	if len(joined) > 1000 {
		joined = joined[:1000] + "..."
	}
	return joined
}
