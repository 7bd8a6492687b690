package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fitpulse/studio-automation/internal/pkg/httpretry"
	"github.com/fitpulse/studio-automation/internal/pkg/logger"
)

// HTTPSMSSender sends SMS through a JSON-over-HTTP provider API
// (SMSLeopard-compatible message endpoint).
type HTTPSMSSender struct {
	apiKey   string
	baseURL  string
	senderID string
	client   httpretry.HTTPDoer
}

// NewHTTPSMSSender creates an SMS sender targeting the provider's v1 API.
// Transient provider errors (429, 5xx) are retried with backoff inside
// the per-call timeout.
func NewHTTPSMSSender(apiKey, baseURL, senderID string, timeout time.Duration) *HTTPSMSSender {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSMSSender{
		apiKey:   apiKey,
		baseURL:  baseURL,
		senderID: senderID,
		client:   httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

// SendSMS delivers a single SMS to an E.164 number.
func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, text string) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("SMS API key not configured")
	}

	payload := map[string]interface{}{
		"source":      s.senderID,
		"destination": []string{to},
		"message":     text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v1/sms/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("SMS provider error %d: %s", resp.StatusCode, string(body))
	}

	// Providers that omit or garble message_id still delivered; the 2xx
	// status is authoritative, so the parse error is dropped.
	var result struct {
		MessageID string `json:"message_id"`
	}
	_ = json.Unmarshal(body, &result)

	log.Printf("[SMS] Sent to %s (id: %s)", logger.RedactPhone(to), result.MessageID)
	return result.MessageID, nil
}
