package render

import (
	"github.com/fitpulse/studio-automation/internal/channel"
	"github.com/fitpulse/studio-automation/internal/rules"
)

// defaultContent returns the built-in message for a rule type, so a rule
// can omit custom content entirely. Placeholders resolve at render time.
func defaultContent(ruleType rules.RuleType) channel.Content {
	switch ruleType {
	case rules.RuleSessionReminder:
		return channel.Content{
			Subject: "Reminder: your upcoming session",
			Text:    "Hi {name},\n\nThis is a reminder that your session {session_title} is scheduled for {session_date} at {session_time}.\n\nSee you there!",
			SMS:     "Hi {name}, reminder: {session_title} on {session_date} at {session_time}.",
		}
	case rules.RulePaymentReminder:
		return channel.Content{
			Subject: "Payment reminder",
			Text:    "Hi {name},\n\nYou have a payment of ${amount} due on {due_date}. Please settle it at your earliest convenience.\n\nThank you!",
			SMS:     "Hi {name}, your payment of ${amount} is due on {due_date}.",
		}
	case rules.RuleBirthday:
		return channel.Content{
			Subject: "Happy birthday, {name}!",
			Text:    "Happy birthday, {name}!\n\nEveryone at the studio wishes you a fantastic day. Come celebrate with a workout on us!",
			SMS:     "Happy birthday, {name}! Best wishes from everyone at the studio.",
		}
	case rules.RuleReEngagement:
		return channel.Content{
			Subject: "We miss you, {name}!",
			Text:    "Hi {name},\n\nIt's been a while since your last visit. Book your next session and get back on track!",
			SMS:     "Hi {name}, we miss you at the studio! Book your next session anytime.",
		}
	default:
		return channel.Content{
			Subject: "A message from your studio",
			Text:    "Hi {name},\n\nYou have a new notification from the studio.",
			SMS:     "Hi {name}, you have a new notification from the studio.",
		}
	}
}
