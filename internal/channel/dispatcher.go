package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fitpulse/studio-automation/internal/rules"
)

const (
	defaultWorkers = 5
	defaultTimeout = 15 * time.Second
	maxPoolWorkers = 20
)

// Dispatcher fans deliveries out across a bounded worker pool. Each
// recipient is processed independently: a channel failure is tallied and
// never aborts sibling dispatches, and the returned tally is only built
// after every worker has finished.
type Dispatcher struct {
	email   EmailSender
	sms     SMSSender
	workers int
	timeout time.Duration
}

// NewDispatcher creates a dispatcher. A nil sender means that channel has
// no configured transport.
func NewDispatcher(email EmailSender, sms SMSSender, workers int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > maxPoolWorkers {
		workers = maxPoolWorkers
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{email: email, sms: sms, workers: workers, timeout: timeout}
}

// Supports reports whether every channel the action requires has a
// configured transport.
func (d *Dispatcher) Supports(action rules.ActionType) bool {
	if action.NeedsEmail() && d.email == nil {
		return false
	}
	if action.NeedsSMS() && d.sms == nil {
		return false
	}
	return true
}

// recipientResult is the outcome for a single delivery. A recipient is
// sent only when all of its requested channel calls succeeded.
type recipientResult struct {
	ok   bool
	errs []string
}

// Dispatch sends every delivery through the channels the action requires.
// It blocks until all dispatches complete and returns the final tally;
// sent + failed always equals the number of deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, action rules.ActionType, deliveries []Delivery) Tally {
	tally := Tally{Recipients: len(deliveries)}
	if len(deliveries) == 0 {
		return tally
	}

	results := make([]recipientResult, len(deliveries))

	workers := d.workers
	if workers > len(deliveries) {
		workers = len(deliveries)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = d.sendOne(ctx, action, deliveries[i])
			}
		}()
	}
	for i := range deliveries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, res := range results {
		if res.ok {
			tally.Sent++
		} else {
			tally.Failed++
		}
		tally.Errors = append(tally.Errors, res.errs...)
	}
	return tally
}

// sendOne dispatches all requested channels for a single recipient. Each
// channel is attempted independently; an email failure never blocks the
// SMS attempt and vice versa.
func (d *Dispatcher) sendOne(parent context.Context, action rules.ActionType, del Delivery) recipientResult {
	res := recipientResult{ok: true}

	if action.NeedsEmail() {
		if err := d.withTimeout(parent, func(ctx context.Context) error {
			_, err := d.email.SendEmail(ctx, del.Email, del.Content.Subject, del.Content.Text, del.Content.HTML)
			return err
		}); err != nil {
			res.ok = false
			res.errs = append(res.errs, fmt.Sprintf("email to %s: %v", maskAddress(del.Email), err))
		}
	}

	if action.NeedsSMS() {
		if err := d.withTimeout(parent, func(ctx context.Context) error {
			_, err := d.sms.SendSMS(ctx, del.Phone, del.Content.SMS)
			return err
		}); err != nil {
			res.ok = false
			res.errs = append(res.errs, fmt.Sprintf("sms to %s: %v", maskAddress(del.Phone), err))
		}
	}

	return res
}

func (d *Dispatcher) withTimeout(parent context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	return fn(ctx)
}

// maskAddress keeps error strings free of full contact details; they end
// up in execution log rows.
func maskAddress(addr string) string {
	if at := strings.IndexByte(addr, '@'); at > 0 {
		keep := 2
		if at < keep {
			keep = at
		}
		return addr[:keep] + "***" + addr[at:]
	}
	if len(addr) > 4 {
		return "***" + addr[len(addr)-4:]
	}
	return "***"
}
