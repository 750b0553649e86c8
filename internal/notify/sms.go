package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, to string, body string) error
}

// gatewaySMSSender posts messages to an HTTP SMS gateway with a bearer
// token.
type gatewaySMSSender struct {
	url    string
	token  string
	client *http.Client
}

func NewGatewaySMSSender(url, token string) SMSSender {
	return &gatewaySMSSender{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type smsPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *gatewaySMSSender) Send(ctx context.Context, to string, body string) error {
	data, err := json.Marshal(smsPayload{To: to, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call SMS gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("SMS gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// noopSMSSender is used when no gateway is configured.
type noopSMSSender struct{}

func NewNoopSMSSender() SMSSender {
	return noopSMSSender{}
}

func (noopSMSSender) Send(context.Context, string, string) error {
	return nil
}
