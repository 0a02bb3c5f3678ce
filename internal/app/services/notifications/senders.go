package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getdatasurge/frostguard/internal/app/domain/notification"
	"github.com/getdatasurge/frostguard/pkg/logger"
)

// Messenger delivers one queued notification.
type Messenger interface {
	Send(ctx context.Context, n notification.Notification) error
}

// SMSSender delivers SMS through the messaging provider's v2 API.
type SMSSender struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	from     string
	log      *logger.Logger
}

// NewSMSSender constructs an SMS messenger. from is the provider-assigned
// sending number in E.164.
func NewSMSSender(client *http.Client, endpoint, apiKey, from string, log *logger.Logger) (*SMSSender, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "https://api.telnyx.com/v2/messages"
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse sms endpoint: %w", err)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("sms api key required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, fmt.Errorf("sms sender number required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("sms-sender")
	}
	return &SMSSender{client: client, endpoint: parsed, apiKey: apiKey, from: from, log: log}, nil
}

func (s *SMSSender) Send(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(map[string]string{
		"from": s.from,
		"to":   n.Destination,
		"text": n.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// EmailSender delivers email through a transactional email HTTP API.
type EmailSender struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	from     string
	log      *logger.Logger
}

// NewEmailSender constructs an email messenger.
func NewEmailSender(client *http.Client, endpoint, apiKey, from string, log *logger.Logger) (*EmailSender, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "https://api.resend.com/emails"
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse email endpoint: %w", err)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("email api key required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = "alerts@frostguard.io"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("email-sender")
	}
	return &EmailSender{client: client, endpoint: parsed, apiKey: apiKey, from: from, log: log}, nil
}

func (s *EmailSender) Send(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(map[string]any{
		"from":    s.from,
		"to":      []string{n.Destination},
		"subject": n.Subject,
		"text":    n.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
