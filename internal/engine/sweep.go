package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Sweep trigger events synthesized for time-based rules.
const (
	EventBirthday   = "birthday"
	EventPaymentDue = "payment_due"
)

// Payment statuses that still owe money and therefore qualify for
// reminders.
var reminderPaymentStatuses = []string{"pending", "overdue"}

// SweepResult summarizes one sweep tick.
type SweepResult struct {
	Birthdays        int      `json:"birthdays"`
	PaymentReminders int      `json:"payment_reminders"`
	SessionReminders int      `json:"session_reminders"`
	Skipped          bool     `json:"skipped,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// RunSweep scans for time-based occurrences (birthdays, payments due,
// sessions entering a reminder window) and routes each through the same
// Trigger pipeline as discrete events. When a distributed lock is
// configured and another process holds it, the tick is skipped; the next
// tick picks up anything missed, and recorded log rows keep re-fires
// idempotent at the audit level.
//
// Store scan failures are collected per category and never abort the other
// categories. The returned error carries only persistence failures
// propagated out of Trigger.
func (e *Engine) RunSweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	if e.sweepLock != nil {
		acquired, err := e.sweepLock.Acquire(ctx)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sweep lock: %v", err))
			return result, nil
		}
		if !acquired {
			log.Printf("[Sweep] Another process holds the sweep lock, skipping tick")
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if err := e.sweepLock.Release(ctx); err != nil {
				log.Printf("[Sweep] Lock release failed: %v", err)
			}
		}()
	}

	now := e.now().UTC()
	var persistErrs []error

	e.sweepBirthdays(ctx, now, result, &persistErrs)
	e.sweepPayments(ctx, result, &persistErrs)
	e.sweepSessions(ctx, now, result, &persistErrs)

	log.Printf("[Sweep] Tick complete: %d birthdays, %d payment reminders, %d session reminders, %d errors",
		result.Birthdays, result.PaymentReminders, result.SessionReminders, len(result.Errors))

	return result, errors.Join(persistErrs...)
}

func (e *Engine) sweepBirthdays(ctx context.Context, now time.Time, result *SweepResult, persistErrs *[]error) {
	clients, err := e.entities.ClientsByBirthday(ctx, now.Month(), now.Day())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("birthday scan: %v", err))
		return
	}
	for i := range clients {
		clientID := clients[i].ID
		ec := EventContext{ClientID: &clientID}
		if err := e.Trigger(ctx, EventBirthday, ec); err != nil {
			result.Errors = append(result.Errors, err.Error())
			*persistErrs = append(*persistErrs, err)
			continue
		}
		result.Birthdays++
	}
}

func (e *Engine) sweepPayments(ctx context.Context, result *SweepResult, persistErrs *[]error) {
	payments, err := e.entities.PaymentsByStatus(ctx, reminderPaymentStatuses...)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("payment scan: %v", err))
		return
	}
	for i := range payments {
		p := payments[i]
		clientID := p.ClientID
		paymentID := p.ID
		ec := EventContext{ClientID: &clientID, PaymentID: &paymentID}
		if err := e.Trigger(ctx, EventPaymentDue, ec); err != nil {
			result.Errors = append(result.Errors, err.Error())
			*persistErrs = append(*persistErrs, err)
			continue
		}
		result.PaymentReminders++
	}
}

// sweepSessions finds sessions whose reminder instant falls inside this
// tick's tolerance window. Each time-window rule defines its own window
// via hours_before; contexts are deduplicated per (event, session) so two
// rules sharing a trigger event evaluate once against each session.
func (e *Engine) sweepSessions(ctx context.Context, now time.Time, result *SweepResult, persistErrs *[]error) {
	windowRules, err := e.rules.ListTimeWindow(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("window rule scan: %v", err))
		return
	}

	type fired struct {
		event     string
		sessionID string
	}
	seen := map[fired]bool{}

	for i := range windowRules {
		rule := &windowRules[i]
		if rule.Conditions.HoursBefore == nil {
			continue
		}
		offset := time.Duration(*rule.Conditions.HoursBefore * float64(time.Hour))
		center := now.Add(offset)
		sessions, err := e.entities.SessionsStartingBetween(ctx,
			center.Add(-e.evaluator.tolerance), center.Add(e.evaluator.tolerance))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("session scan for rule %s: %v", rule.ID, err))
			continue
		}
		for j := range sessions {
			s := sessions[j]
			key := fired{event: rule.TriggerEvent, sessionID: s.ID.String()}
			if seen[key] {
				continue
			}
			seen[key] = true

			sessionID := s.ID
			clientID := s.ClientID
			ec := EventContext{ClientID: &clientID, SessionID: &sessionID}
			if s.TrainerID.Valid {
				trainerID := s.TrainerID.UUID
				ec.TrainerID = &trainerID
			}
			if err := e.Trigger(ctx, rule.TriggerEvent, ec); err != nil {
				result.Errors = append(result.Errors, err.Error())
				*persistErrs = append(*persistErrs, err)
				continue
			}
			result.SessionReminders++
		}
	}
}

// Sweeper runs RunSweep on a fixed interval until stopped.
type Sweeper struct {
	engine   *Engine
	interval time.Duration

	mu        sync.Mutex
	lastRunAt time.Time
	lastErr   error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a periodic sweeper. The interval should not exceed
// twice the engine's tolerance or reminder instants can be missed.
func NewSweeper(e *Engine, interval time.Duration) *Sweeper {
	return &Sweeper{engine: e, interval: interval}
}

// Start launches the sweep loop. The first tick runs immediately.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log.Printf("[Sweep] Loop started, interval %s", s.interval)

		s.tick(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[Sweep] Loop stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Sweeper) tick(ctx context.Context) {
	_, err := s.engine.RunSweep(ctx)
	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		log.Printf("[Sweep] Tick finished with persistence errors: %v", err)
	}
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Status reports the last tick time and error, for health checks.
func (s *Sweeper) Status() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt, s.lastErr
}
