package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/studio-automation/internal/rules"
	"github.com/fitpulse/studio-automation/internal/store"
)

func sweepEntities() *fakeEntities {
	birthdayA := newClient("Anna", "anna@example.com", "")
	birthdayB := newClient("Boris", "boris@example.com", "")
	payer := newClient("Clara", "clara@example.com", "")
	sessClient := newClient("Dina", "dina@example.com", "")

	session := store.Session{
		ID:       uuid.New(),
		ClientID: sessClient.ID,
		Title:    "Yoga",
		StartsAt: time.Now().Add(24 * time.Hour),
		Status:   "scheduled",
	}
	payment := store.Payment{ID: uuid.New(), ClientID: payer.ID, Amount: 100, Status: "pending"}

	return &fakeEntities{
		clients: map[uuid.UUID]*store.Client{
			birthdayA.ID: birthdayA,
			birthdayB.ID: birthdayB,
			payer.ID:     payer,
			sessClient.ID: sessClient,
		},
		sessions:        map[uuid.UUID]*store.Session{session.ID: &session},
		payments:        map[uuid.UUID]*store.Payment{payment.ID: &payment},
		birthdayClients: []store.Client{*birthdayA, *birthdayB},
		duePayments:     []store.Payment{payment},
		windowSessions:  []store.Session{session},
	}
}

func windowRule(event string, hours float64) rules.Rule {
	r := enabledRule(event, rules.ActionEmail, rules.AudienceClients)
	r.RuleType = rules.RuleSessionReminder
	r.Conditions = hoursBefore(hours)
	return r
}

func TestRunSweepCountsCategories(t *testing.T) {
	ents := sweepEntities()
	src := &fakeRules{
		byTrigger: map[string][]rules.Rule{},
		window:    []rules.Rule{windowRule("session_upcoming", 24)},
	}
	// Window rules are also returned by trigger lookup once a context is
	// synthesized.
	src.byTrigger["session_upcoming"] = src.window

	e := New(src, ents, &fakeRenderer{}, &fakeDispatcher{emailOK: true}, &fakeRecorder{})
	result, err := e.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Birthdays)
	assert.Equal(t, 1, result.PaymentReminders)
	assert.Equal(t, 1, result.SessionReminders)
	assert.False(t, result.Skipped)
	assert.Empty(t, result.Errors)
}

func TestRunSweepRecordsExecutions(t *testing.T) {
	ents := sweepEntities()
	birthday := enabledRule(EventBirthday, rules.ActionEmail, rules.AudienceClients)
	birthday.RuleType = rules.RuleBirthday
	src := &fakeRules{byTrigger: map[string][]rules.Rule{EventBirthday: {birthday}}}
	rec := &fakeRecorder{}

	e := New(src, ents, &fakeRenderer{}, &fakeDispatcher{emailOK: true}, rec)
	result, err := e.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Birthdays)
	entries := rec.all()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, rules.StatusSuccess, entry.Status)
		assert.Equal(t, 1, entry.SentCount)
	}
}

func TestRunSweepSkipsWhenLockHeld(t *testing.T) {
	lock := &fakeLock{acquired: false}
	e := New(&fakeRules{}, sweepEntities(), &fakeRenderer{}, &fakeDispatcher{emailOK: true},
		&fakeRecorder{}, WithSweepLock(lock))

	result, err := e.RunSweep(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Birthdays)
	assert.Zero(t, result.PaymentReminders)
	assert.Zero(t, result.SessionReminders)
	assert.False(t, lock.released)
}

func TestRunSweepReleasesLock(t *testing.T) {
	lock := &fakeLock{acquired: true}
	e := New(&fakeRules{}, sweepEntities(), &fakeRenderer{}, &fakeDispatcher{emailOK: true},
		&fakeRecorder{}, WithSweepLock(lock))

	_, err := e.RunSweep(context.Background())
	require.NoError(t, err)
	assert.True(t, lock.released)
}

func TestRunSweepDeduplicatesSessionContexts(t *testing.T) {
	ents := sweepEntities()
	ruleA := windowRule("session_upcoming", 24)
	ruleB := windowRule("session_upcoming", 24.5)
	src := &fakeRules{
		window:    []rules.Rule{ruleA, ruleB},
		byTrigger: map[string][]rules.Rule{"session_upcoming": {ruleA, ruleB}},
	}

	e := New(src, ents, &fakeRenderer{}, &fakeDispatcher{emailOK: true}, &fakeRecorder{})
	result, err := e.RunSweep(context.Background())
	require.NoError(t, err)

	// Both rules see the same session but the context fires only once per
	// trigger event.
	assert.Equal(t, 1, result.SessionReminders)
}

func TestRunSweepScanErrorsAreIsolated(t *testing.T) {
	ents := sweepEntities()
	ents.birthdayErr = fmt.Errorf("birthday scan broke")
	src := &fakeRules{window: []rules.Rule{windowRule("session_upcoming", 24)}}

	e := New(src, ents, &fakeRenderer{}, &fakeDispatcher{emailOK: true}, &fakeRecorder{})
	result, err := e.RunSweep(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.Birthdays)
	assert.Equal(t, 1, result.PaymentReminders)
	assert.Equal(t, 1, result.SessionReminders)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "birthday scan")
}

func TestRunSweepPersistenceErrorPropagates(t *testing.T) {
	ents := sweepEntities()
	birthday := enabledRule(EventBirthday, rules.ActionEmail, rules.AudienceClients)
	src := &fakeRules{byTrigger: map[string][]rules.Rule{EventBirthday: {birthday}}}
	rec := &fakeRecorder{err: fmt.Errorf("log insert failed")}

	e := New(src, ents, &fakeRenderer{}, &fakeDispatcher{emailOK: true}, rec)
	result, err := e.RunSweep(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, result.Errors)
}

func TestSweeperStartStop(t *testing.T) {
	e := New(&fakeRules{}, &fakeEntities{}, &fakeRenderer{}, &fakeDispatcher{emailOK: true}, &fakeRecorder{})
	s := NewSweeper(e, time.Hour)

	s.Start()
	// First tick runs immediately.
	deadline := time.After(2 * time.Second)
	for {
		lastRun, _ := s.Status()
		if !lastRun.IsZero() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper never ticked")
		case <-time.After(10 * time.Millisecond):
		}
	}
	s.Stop()
}
