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
)

// SlackChannel posts Block Kit messages to an incoming webhook. The webhook
// URL is the recipient, so one channel instance covers multiple workspaces.
type SlackChannel struct {
	webhookURLs []string
	http        *http.Client
}

func NewSlackChannelFromEnv() *SlackChannel {
	var urls []string
	for _, u := range strings.Split(os.Getenv("SLACK_WEBHOOK_URLS"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return &SlackChannel{
		webhookURLs: urls,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SlackChannel) Name() string { return models.NotificationChannelSlack }

func (c *SlackChannel) Recipients() []string { return c.webhookURLs }

func (c *SlackChannel) Send(ctx context.Context, event Event, recipient string) error {
	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{"type": "plain_text", "text": event.Subject},
		},
		{
			"type": "section",
			"text": map[string]interface{}{"type": "mrkdwn", "text": event.Body},
		},
	}
	if len(event.Fields) > 0 {
		var fields []map[string]interface{}
		for _, f := range event.Fields {
			fields = append(fields, map[string]interface{}{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s:* %s", f.Label, f.Value),
			})
		}
		blocks = append(blocks, map[string]interface{}{
			"type":   "section",
			"fields": fields,
		})
	}

	payload, err := json.Marshal(map[string]interface{}{"blocks": blocks})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
