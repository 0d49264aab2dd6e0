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

// EmailChannel sends through a transactional email REST provider.
type EmailChannel struct {
	apiURL     string
	apiKey     string
	fromAddr   string
	recipients []string
	http       *http.Client
}

func NewEmailChannelFromEnv() *EmailChannel {
	var recipients []string
	for _, r := range strings.Split(os.Getenv("EMAIL_RECIPIENTS"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return &EmailChannel{
		apiURL:     strings.TrimSpace(os.Getenv("EMAIL_API_URL")),
		apiKey:     strings.TrimSpace(os.Getenv("EMAIL_API_KEY")),
		fromAddr:   strings.TrimSpace(os.Getenv("EMAIL_FROM_ADDRESS")),
		recipients: recipients,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *EmailChannel) Name() string { return models.NotificationChannelEmail }

func (c *EmailChannel) Recipients() []string {
	if c.apiURL == "" {
		return nil
	}
	return c.recipients
}

func (c *EmailChannel) Send(ctx context.Context, event Event, recipient string) error {
	if !utils.IsValidEmail(recipient) {
		return fmt.Errorf("invalid recipient %q", recipient)
	}

	text := event.Body
	for _, f := range event.Fields {
		text += fmt.Sprintf("\n%s: %s", f.Label, f.Value)
	}

	payload, err := json.Marshal(map[string]string{
		"to":      recipient,
		"from":    c.fromAddr,
		"subject": event.Subject,
		"text":    text,
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
		return fmt.Errorf("email provider error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
