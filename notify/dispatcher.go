package notify

import (
	"context"
	"fmt"

	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Field is one label/value pair rendered by every channel.
type Field struct {
	Label string
	Value string
}

// Event is a domain event to fan out. Channels render it their own way.
type Event struct {
	Type    string
	Subject string
	Body    string
	Fields  []Field
}

// Channel delivers an event to one recipient. Implementations live in
// slack.go, sms.go and email.go.
type Channel interface {
	Name() string
	Recipients() []string
	Send(ctx context.Context, event Event, recipient string) error
}

// Dispatcher fans an event out to every configured channel/recipient pair,
// sequentially. Each attempt gets a NotificationLog row; individual failures
// are logged and swallowed so one dead webhook can't block the rest.
type Dispatcher struct {
	db       *gorm.DB
	logger   *logrus.Logger
	channels []Channel
}

func NewDispatcher(db *gorm.DB, logger *logrus.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{db: db, logger: logger, channels: channels}
}

// conn resolves the shared connection at call time so the dispatcher can be
// wired before the database finishes connecting.
func (d *Dispatcher) conn() *gorm.DB {
	if d.db != nil {
		return d.db
	}
	return config.GetDB()
}

func (d *Dispatcher) Send(ctx context.Context, event Event) {
	for _, channel := range d.channels {
		for _, recipient := range channel.Recipients() {
			err := channel.Send(ctx, event, recipient)

			row := models.NotificationLog{
				EventType: event.Type,
				Channel:   channel.Name(),
				Recipient: recipient,
				Subject:   event.Subject,
				Status:    models.NotificationStatusSent,
			}
			if err != nil {
				row.Status = models.NotificationStatusFailed
				row.Error = err.Error()
				d.logger.WithFields(logrus.Fields{
					"channel":   channel.Name(),
					"recipient": recipient,
					"eventType": event.Type,
				}).Warnf("notification failed: %v", err)
			}
			if db := d.conn(); db != nil {
				if logErr := db.WithContext(ctx).Create(&row).Error; logErr != nil {
					d.logger.Warnf("notification log write failed: %v", logErr)
				}
			}
		}
	}
}

// SendSyncSummary posts the result of a scheduled sync run to every channel.
func (d *Dispatcher) SendSyncSummary(ctx context.Context, syncType string, processed, created, updated, closed int, errs []string) {
	subject := fmt.Sprintf("%s sync complete", syncType)
	body := fmt.Sprintf("%d processed, %d new, %d updated, %d closed", processed, created, updated, closed)
	if len(errs) > 0 {
		body = fmt.Sprintf("%s, %d errors", body, len(errs))
	}

	fields := []Field{
		{Label: "Processed", Value: fmt.Sprintf("%d", processed)},
		{Label: "Created", Value: fmt.Sprintf("%d", created)},
		{Label: "Updated", Value: fmt.Sprintf("%d", updated)},
		{Label: "Closed", Value: fmt.Sprintf("%d", closed)},
		{Label: "Errors", Value: fmt.Sprintf("%d", len(errs))},
	}

	d.Send(ctx, Event{
		Type:    "sync_summary",
		Subject: subject,
		Body:    body,
		Fields:  fields,
	})
}
