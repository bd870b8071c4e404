package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// TwilioConfig holds the credentials and sender number for the Twilio
// Messages API.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the E.164 sender number or messaging service identifier.
	From string
	// BaseURL overrides the Twilio API endpoint, mainly for tests.
	BaseURL string
	// HTTPClient overrides the default client (10s timeout).
	HTTPClient *http.Client
}

// TwilioSMSSender delivers verification codes through the Twilio REST
// API.
type TwilioSMSSender struct {
	config TwilioConfig
	client *http.Client
}

func NewTwilioSMSSender(cfg TwilioConfig) (*TwilioSMSSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio credentials required")
	}
	if cfg.From == "" {
		return nil, errors.New("twilio from number required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioDefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &TwilioSMSSender{config: cfg, client: client}, nil
}

// Send posts one message to the Twilio Messages endpoint. Any non-2xx
// response is a delivery failure.
func (s *TwilioSMSSender) Send(ctx context.Context, to, message string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.config.BaseURL, "/"), url.PathEscape(s.config.AccountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.config.From)
	form.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
