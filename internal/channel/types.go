// Package channel contains the delivery transports and the dispatcher
// that fans rendered messages out to recipients with per-recipient
// failure isolation.
package channel

import "context"

// Content is the rendered message for one recipient across channels.
type Content struct {
	Subject string
	Text    string
	HTML    string
	SMS     string
}

// Delivery is one recipient's addresses plus their rendered content.
type Delivery struct {
	Email   string
	Phone   string
	Content Content
}

// Tally aggregates dispatch outcomes for one rule invocation. A recipient
// counts as sent only when every requested channel delivered; any channel
// failure marks the whole recipient failed.
type Tally struct {
	Recipients int
	Sent       int
	Failed     int
	Errors     []string
}

// EmailSender delivers a single email. It returns a provider reference on
// success.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, text, html string) (string, error)
}

// SMSSender delivers a single SMS. It returns a provider reference on
// success.
type SMSSender interface {
	SendSMS(ctx context.Context, to, text string) (string, error)
}
