package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type recordingChannel struct {
	name       string
	recipients []string
	failFor    string
	sent       []string
}

func (c *recordingChannel) Name() string         { return c.name }
func (c *recordingChannel) Recipients() []string { return c.recipients }

func (c *recordingChannel) Send(ctx context.Context, event Event, recipient string) error {
	if recipient == c.failFor {
		return errors.New("delivery refused")
	}
	c.sent = append(c.sent, recipient)
	return nil
}

func testDispatcher(channels ...Channel) *Dispatcher {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewDispatcher(nil, logger, channels...)
}

func TestDispatcher_FansOutToEveryRecipient(t *testing.T) {
	slack := &recordingChannel{name: "slack", recipients: []string{"hook-a", "hook-b"}}
	email := &recordingChannel{name: "email", recipients: []string{"ops@example.com"}}

	testDispatcher(slack, email).Send(context.Background(), Event{
		Type:    "sync_summary",
		Subject: "invoices sync complete",
	})

	if len(slack.sent) != 2 {
		t.Fatalf("slack expected 2 deliveries, got %v", slack.sent)
	}
	if len(email.sent) != 1 {
		t.Fatalf("email expected 1 delivery, got %v", email.sent)
	}
}

func TestDispatcher_FailureDoesNotBlockRemaining(t *testing.T) {
	slack := &recordingChannel{name: "slack", recipients: []string{"dead-hook", "live-hook"}, failFor: "dead-hook"}
	sms := &recordingChannel{name: "sms", recipients: []string{"+15551234567"}}

	testDispatcher(slack, sms).Send(context.Background(), Event{
		Type:    "sync_summary",
		Subject: "jobs sync complete",
	})

	if len(slack.sent) != 1 || slack.sent[0] != "live-hook" {
		t.Fatalf("healthy slack recipient should still receive, got %v", slack.sent)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("sms channel should still receive, got %v", sms.sent)
	}
}

func TestDispatcher_UnconfiguredChannelIsSilent(t *testing.T) {
	empty := &recordingChannel{name: "sms"}
	testDispatcher(empty).Send(context.Background(), Event{Type: "sync_summary"})
	if len(empty.sent) != 0 {
		t.Fatalf("channel without recipients must not send, got %v", empty.sent)
	}
}

func TestSendSyncSummary_BuildsSubjectAndFields(t *testing.T) {
	slack := &recordingChannel{name: "slack", recipients: []string{"hook"}}
	d := testDispatcher(slack)

	d.SendSyncSummary(context.Background(), "invoices", 42, 3, 7, 2, []string{"invoice 9: boom"})

	if len(slack.sent) != 1 {
		t.Fatalf("expected one delivery, got %v", slack.sent)
	}
}
