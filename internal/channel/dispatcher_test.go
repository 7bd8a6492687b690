package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/studio-automation/internal/rules"
)

type fakeEmailSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
	delay   time.Duration
}

func (f *fakeEmailSender) SendEmail(ctx context.Context, to, subject, text, html string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failFor[to] {
		return "", fmt.Errorf("mailbox unavailable")
	}
	f.mu.Lock()
	f.sent = append(f.sent, to)
	f.mu.Unlock()
	return "msg-" + to, nil
}

type fakeSMSSender struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
	calls   int64
}

func (f *fakeSMSSender) SendSMS(ctx context.Context, to, text string) (string, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.failFor[to] {
		return "", fmt.Errorf("carrier rejected")
	}
	f.mu.Lock()
	f.sent = append(f.sent, to)
	f.mu.Unlock()
	return "sms-" + to, nil
}

func TestDispatchAllSucceed(t *testing.T) {
	email := &fakeEmailSender{}
	d := NewDispatcher(email, nil, 4, time.Second)

	deliveries := []Delivery{
		{Email: "a@example.com", Content: Content{Subject: "Hi", Text: "hello"}},
		{Email: "b@example.com", Content: Content{Subject: "Hi", Text: "hello"}},
		{Email: "c@example.com", Content: Content{Subject: "Hi", Text: "hello"}},
	}

	tally := d.Dispatch(context.Background(), rules.ActionEmail, deliveries)
	assert.Equal(t, 3, tally.Recipients)
	assert.Equal(t, 3, tally.Sent)
	assert.Equal(t, 0, tally.Failed)
	assert.Empty(t, tally.Errors)
	assert.Len(t, email.sent, 3)
}

func TestDispatchPartialFailure(t *testing.T) {
	email := &fakeEmailSender{failFor: map[string]bool{"b@example.com": true}}
	d := NewDispatcher(email, nil, 2, time.Second)

	deliveries := []Delivery{
		{Email: "a@example.com"},
		{Email: "b@example.com"},
		{Email: "c@example.com"},
	}

	tally := d.Dispatch(context.Background(), rules.ActionEmail, deliveries)
	assert.Equal(t, 3, tally.Recipients)
	assert.Equal(t, 2, tally.Sent)
	assert.Equal(t, 1, tally.Failed)
	require.Len(t, tally.Errors, 1)
	// Error strings must not leak the full address.
	assert.NotContains(t, tally.Errors[0], "b@example.com")
	assert.Equal(t, tally.Recipients, tally.Sent+tally.Failed)
}

func TestDispatchBothChannelsIndependent(t *testing.T) {
	email := &fakeEmailSender{failFor: map[string]bool{"a@example.com": true}}
	sms := &fakeSMSSender{}
	d := NewDispatcher(email, sms, 1, time.Second)

	deliveries := []Delivery{
		{Email: "a@example.com", Phone: "+15550001111", Content: Content{SMS: "hi"}},
	}

	tally := d.Dispatch(context.Background(), rules.ActionBoth, deliveries)

	// Email failed but the SMS still went out; the recipient tallies failed.
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 0, tally.Sent)
	assert.Len(t, sms.sent, 1)
}

func TestDispatchTimeoutIsAFailureNotACrash(t *testing.T) {
	email := &fakeEmailSender{delay: 200 * time.Millisecond}
	d := NewDispatcher(email, nil, 1, 20*time.Millisecond)

	tally := d.Dispatch(context.Background(), rules.ActionEmail, []Delivery{{Email: "slow@example.com"}})
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 0, tally.Sent)
	require.Len(t, tally.Errors, 1)
	assert.Contains(t, tally.Errors[0], "context deadline exceeded")
}

func TestDispatchEmptyDeliveries(t *testing.T) {
	d := NewDispatcher(&fakeEmailSender{}, nil, 5, time.Second)
	tally := d.Dispatch(context.Background(), rules.ActionEmail, nil)
	assert.Equal(t, Tally{}, tally)
}

func TestDispatchManyRecipientsThreadSafeTallies(t *testing.T) {
	sms := &fakeSMSSender{failFor: map[string]bool{}}
	var deliveries []Delivery
	for i := 0; i < 100; i++ {
		phone := fmt.Sprintf("+1555000%04d", i)
		if i%10 == 0 {
			sms.failFor[phone] = true
		}
		deliveries = append(deliveries, Delivery{Phone: phone, Content: Content{SMS: "hi"}})
	}

	d := NewDispatcher(nil, sms, 20, time.Second)
	tally := d.Dispatch(context.Background(), rules.ActionSMS, deliveries)

	assert.Equal(t, 100, tally.Recipients)
	assert.Equal(t, 90, tally.Sent)
	assert.Equal(t, 10, tally.Failed)
	assert.Equal(t, int64(100), atomic.LoadInt64(&sms.calls))
}

func TestSupports(t *testing.T) {
	emailOnly := NewDispatcher(&fakeEmailSender{}, nil, 1, time.Second)
	assert.True(t, emailOnly.Supports(rules.ActionEmail))
	assert.False(t, emailOnly.Supports(rules.ActionSMS))
	assert.False(t, emailOnly.Supports(rules.ActionBoth))

	both := NewDispatcher(&fakeEmailSender{}, &fakeSMSSender{}, 1, time.Second)
	assert.True(t, both.Supports(rules.ActionBoth))
}

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "jo***@example.com", maskAddress("john@example.com"))
	assert.Equal(t, "***4567", maskAddress("+15551234567"))
	assert.Equal(t, "***", maskAddress("911"))
}
