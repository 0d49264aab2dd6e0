package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/utils"
)

// SMSChannel sends through a REST SMS gateway. Recipient numbers are
// validated and normalized to E.164 before the provider sees them.
type SMSChannel struct {
	apiURL     string
	apiKey     string
	fromNumber string
	recipients []string
	http       *http.Client
}

func NewSMSChannelFromEnv() *SMSChannel {
	var recipients []string
	for _, r := range strings.Split(os.Getenv("SMS_RECIPIENTS"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return &SMSChannel{
		apiURL:     strings.TrimSpace(os.Getenv("SMS_API_URL")),
		apiKey:     strings.TrimSpace(os.Getenv("SMS_API_KEY")),
		fromNumber: strings.TrimSpace(os.Getenv("SMS_FROM_NUMBER")),
		recipients: recipients,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SMSChannel) Name() string { return models.NotificationChannelSMS }

func (c *SMSChannel) Recipients() []string {
	if c.apiURL == "" {
		return nil
	}
	return c.recipients
}

func (c *SMSChannel) Send(ctx context.Context, event Event, recipient string) error {
	to, err := utils.FormatPhoneE164(recipient, utils.CountryCode)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}

	payload, err := json.Marshal(map[string]string{
		"to":   to,
		"from": c.fromNumber,
		"body": event.Subject + ": " + event.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
