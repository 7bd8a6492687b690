package render

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitpulse/studio-automation/internal/rules"
)

type fakeTemplateSource struct {
	templates map[string]*Template
	err       error
}

func (f *fakeTemplateSource) Template(ctx context.Context, name string) (*Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.templates[name], nil
}

func TestRenderLiteralPlaceholders(t *testing.T) {
	r := New(nil)
	rule := &rules.Rule{
		RuleType:     rules.RuleSessionReminder,
		ActionType:   rules.ActionSMS,
		SMSBody:      "Hi {name}, your {session_title} starts at {session_time}.",
	}

	content, err := r.Render(context.Background(), rule, map[string]interface{}{
		"name":          "Anna",
		"session_title": "Yoga flow",
		"session_time":  "6:30 PM",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Anna, your Yoga flow starts at 6:30 PM.", content.SMS)
}

func TestRenderUnresolvedPlaceholdersLeftVerbatim(t *testing.T) {
	r := New(nil)
	rule := &rules.Rule{
		RuleType: rules.RuleCustom,
		SMSBody:  "Hi {name}, code {promo_code} expires soon.",
	}

	content, err := r.Render(context.Background(), rule, map[string]interface{}{"name": "Boris"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Boris, code {promo_code} expires soon.", content.SMS)
}

func TestRenderDefaultsPerRuleType(t *testing.T) {
	r := New(nil)
	vars := map[string]interface{}{
		"name":     "Anna",
		"amount":   59.90,
		"due_date": "September 1, 2026",
	}

	tests := []struct {
		ruleType rules.RuleType
		wantSub  string
		wantText string
	}{
		{rules.RuleBirthday, "Happy birthday, Anna!", "Happy birthday, Anna!"},
		{rules.RulePaymentReminder, "Payment reminder", "$59.9 due on September 1, 2026"},
		{rules.RuleReEngagement, "We miss you, Anna!", "It's been a while"},
	}

	for _, tt := range tests {
		t.Run(string(tt.ruleType), func(t *testing.T) {
			content, err := r.Render(context.Background(), &rules.Rule{RuleType: tt.ruleType}, vars)
			require.NoError(t, err)
			assert.Contains(t, content.Subject, tt.wantSub)
			assert.Contains(t, content.Text, tt.wantText)
		})
	}
}

func TestRenderTemplateReference(t *testing.T) {
	src := &fakeTemplateSource{templates: map[string]*Template{
		"welcome": {
			Name:     "welcome",
			Subject:  "Welcome, {{ name }}!",
			TextBody: "Hello {{ name | default: \"there\" }}, glad to have you.",
			HTMLBody: "<p>Hello {{ name }}</p>",
			SMSBody:  "Welcome aboard, {{ name }}!",
		},
	}}

	r := New(src)
	rule := &rules.Rule{RuleType: rules.RuleCustom, TemplateName: "welcome"}

	content, err := r.Render(context.Background(), rule, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Anna!", content.Subject)
	assert.Equal(t, "Hello Anna, glad to have you.", content.Text)
	assert.Equal(t, "<p>Hello Anna</p>", content.HTML)
	assert.Equal(t, "Welcome aboard, Anna!", content.SMS)
}

func TestRenderLiteralOverridesTemplate(t *testing.T) {
	src := &fakeTemplateSource{templates: map[string]*Template{
		"welcome": {Name: "welcome", Subject: "From template", TextBody: "template body"},
	}}

	r := New(src)
	rule := &rules.Rule{
		RuleType:     rules.RuleCustom,
		TemplateName: "welcome",
		EmailSubject: "Literal subject for {name}",
		EmailBody:    "Literal body",
	}

	content, err := r.Render(context.Background(), rule, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "Literal subject for Anna", content.Subject)
	assert.Equal(t, "Literal body", content.Text)
}

func TestRenderMissingTemplateFallsBackToDefaults(t *testing.T) {
	src := &fakeTemplateSource{templates: map[string]*Template{}}
	r := New(src)
	rule := &rules.Rule{RuleType: rules.RuleBirthday, TemplateName: "ghost"}

	content, err := r.Render(context.Background(), rule, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	assert.Contains(t, content.Subject, "Happy birthday")
}

func TestRenderTemplateStoreErrorPropagates(t *testing.T) {
	src := &fakeTemplateSource{err: fmt.Errorf("connection refused")}
	r := New(src)
	rule := &rules.Rule{RuleType: rules.RuleCustom, TemplateName: "welcome"}

	_, err := r.Render(context.Background(), rule, nil)
	require.Error(t, err)
}

func TestRenderBrokenLiquidDegradesToRawBody(t *testing.T) {
	src := &fakeTemplateSource{templates: map[string]*Template{
		"broken": {Name: "broken", TextBody: "Hello {% if %} oops"},
	}}
	r := New(src)
	rule := &rules.Rule{RuleType: rules.RuleCustom, TemplateName: "broken"}

	content, err := r.Render(context.Background(), rule, map[string]interface{}{"name": "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "Hello {% if %} oops", content.Text)
}

func TestSubstitutePlaceholders(t *testing.T) {
	vars := map[string]interface{}{"name": "Anna", "amount": 42}
	tests := []struct {
		in   string
		want string
	}{
		{"Hi {name}", "Hi Anna"},
		{"Pay {amount} now", "Pay 42 now"},
		{"No placeholders", "No placeholders"},
		{"{unknown} stays", "{unknown} stays"},
		{"{name} and {name}", "Anna and Anna"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, substitutePlaceholders(tt.in, vars))
	}
}
