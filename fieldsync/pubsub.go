package fieldsync

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/sirupsen/logrus"
)

// PubSubPushHandler serves Cloud Scheduler-driven runs pushed through a
// Pub/Sub subscription. Always 204: a malformed message must be dropped, not
// redelivered forever; a failed run is recorded in its own sync log row.
func (s *Service) PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var msg config.SyncRequestMessage
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			c.Status(204)
			return
		}

		lock := s.obtainSyncLock(c.Request.Context(), msg.SyncType)
		if lock != nil {
			defer func() { _ = lock.Release(c.Request.Context()) }()
		}

		var result Result
		switch msg.SyncType {
		case models.SyncTypeInvoices:
			result, err = s.Invoices.Run(c.Request.Context(), models.SyncTriggeredScheduler)
		case models.SyncTypeJobs:
			result, err = s.Jobs.Run(c.Request.Context(), msg.WindowHours, models.SyncTriggeredScheduler)
		default:
			c.Status(204)
			return
		}
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"field":     "PubSubPushHandler",
				"syncType":  msg.SyncType,
				"messageId": envelope.Message.MessageId,
			}).Errorf("scheduled sync failed: %v", err)
		}

		if config.SyncNotificationsEnabled() && s.notifier != nil {
			s.notifier.SendSyncSummary(c.Request.Context(), msg.SyncType,
				result.RecordsProcessed, result.RecordsCreated, result.RecordsUpdated, result.RecordsClosed, result.Errors)
		}

		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
