package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"normal email", "anna.petrov@example.com", "an***@example.com"},
		{"short local part", "ab@example.com", "***@example.com"},
		{"not an email", "no-at-sign", "***@***"},
		{"empty", "", "***@***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactEmail(tt.email); got != tt.want {
				t.Errorf("RedactEmail(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"e164 number", "+15551234567", "***4567"},
		{"short number", "911", "***"},
		{"empty", "", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactPhone(tt.phone); got != tt.want {
				t.Errorf("RedactPhone(%q) = %q, want %q", tt.phone, got, tt.want)
			}
		})
	}
}

func TestRedactValueByKey(t *testing.T) {
	if got := redactValue("recipient_email", "john@gym.io"); got != "jo***@gym.io" {
		t.Errorf("redactValue email key = %q", got)
	}
	if got := redactValue("phone", "+15551234567"); got != "***4567" {
		t.Errorf("redactValue phone key = %q", got)
	}
	// Embedded email in a generic field still gets masked
	if got := redactValue("error", "bounce for john@gym.io"); got != "bounce for jo***@gym.io" {
		t.Errorf("redactValue embedded email = %q", got)
	}
}
