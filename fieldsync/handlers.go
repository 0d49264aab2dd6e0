package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/utils"
	"github.com/sirupsen/logrus"
)

// Notifier receives a summary after a scheduler-driven run. Kept as a local
// interface so this package stays decoupled from the notify wiring.
type Notifier interface {
	SendSyncSummary(ctx context.Context, syncType string, processed, created, updated, closed int, errs []string)
}

// Service bundles the two syncers behind the HTTP trigger surface.
type Service struct {
	Invoices *InvoiceSyncer
	Jobs     *JobSyncer

	notifier Notifier
	logger   *logrus.Logger
}

func NewService(invoices *InvoiceSyncer, jobs *JobSyncer, notifier Notifier, logger *logrus.Logger) *Service {
	return &Service{
		Invoices: invoices,
		Jobs:     jobs,
		notifier: notifier,
		logger:   logger,
	}
}

// TriggerInvoicesHandler runs the invoice reconciliation inline and returns
// its summary. Completion with per-record errors is still a 200; only a
// job-level failure is a 500.
func (s *Service) TriggerInvoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		triggeredBy, err := authorizeTrigger(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		lock := s.obtainSyncLock(c.Request.Context(), models.SyncTypeInvoices)
		if lock != nil {
			defer func() { _ = lock.Release(c.Request.Context()) }()
		}

		result, err := s.Invoices.Run(c.Request.Context(), triggeredBy)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Service) TriggerJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		triggeredBy, err := authorizeTrigger(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerSyncRequest
		_ = c.ShouldBindJSON(&req) // body is optional

		lock := s.obtainSyncLock(c.Request.Context(), models.SyncTypeJobs)
		if lock != nil {
			defer func() { _ = lock.Release(c.Request.Context()) }()
		}

		result, err := s.Jobs.Run(c.Request.Context(), req.WindowHours, triggeredBy)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// RequestSyncHandler enqueues a run through the Pub/Sub topic instead of
// executing inline; the push subscription delivers it back to
// PubSubPushHandler. Useful when the caller can't hold the connection open
// for a full run.
func (s *Service) RequestSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := authorizeTrigger(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req struct {
			SyncType    string `json:"sync_type"`
			WindowHours int    `json:"window_hours"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.SyncType != models.SyncTypeInvoices && req.SyncType != models.SyncTypeJobs {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sync_type must be invoices or jobs"})
			return
		}

		requestedBy, _ := utils.GetUsernameFromContext(c.Request.Context())
		correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		messageId, err := config.PublishSyncRequestWithResult(c.Request.Context(), config.SyncRequestMessage{
			SyncType:      req.SyncType,
			WindowHours:   req.WindowHours,
			RequestedBy:   requestedBy,
			RequestedAt:   time.Now().UTC(),
			CorrelationId: correlationId,
		})
		if err != nil {
			s.logger.Errorf("sync request publish failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "message_id": messageId})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())
		query := db.Model(&models.SyncLog{}).Order("id desc").Limit(limit)
		if syncType := strings.TrimSpace(c.Query("sync_type")); syncType != "" {
			query = query.Where("sync_type = ?", syncType)
		}

		var logs []models.SyncLog
		if err := query.Find(&logs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncLogResponse, 0, len(logs))
		for _, l := range logs {
			items = append(items, mapSyncLogToResponse(l))
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func SyncLogDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var syncLog models.SyncLog
		if err := db.Where("id = ?", id).Take(&syncLog).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, mapSyncLogToResponse(syncLog))
	}
}

// authorizeTrigger accepts either the scheduler bearer credential or an
// authenticated admin/manager session. Returns who triggered, for the log row.
func authorizeTrigger(c *gin.Context) (string, error) {
	schedulerToken := strings.TrimSpace(os.Getenv("SYNC_SCHEDULER_TOKEN"))
	auth := c.Request.Header.Get("Authorization")
	if schedulerToken != "" && auth == "Bearer "+schedulerToken {
		c.Request = c.Request.WithContext(utils.SetSchedulerRunInContext(c.Request.Context(), true))
		return models.SyncTriggeredScheduler, nil
	}

	role, ok := utils.GetUserRoleFromContext(c.Request.Context())
	if !ok {
		return "", errors.New("unauthorized")
	}
	if role != models.UserRoleAdmin && role != models.UserRoleManager {
		return "", utils.ErrorForbidden
	}
	return models.SyncTriggeredManual, nil
}

// obtainSyncLock is best-effort: overlapping runs waste work recomputing the
// same upserts but every write is idempotent, so a missing lock is a warning,
// never a refusal.
func (s *Service) obtainSyncLock(ctx context.Context, syncType string) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		s.logger.WithFields(logrus.Fields{
			"field":    "obtainSyncLock",
			"syncType": syncType,
		}).Warn("redis lock not ready; proceeding without redis lock")
		return nil
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:sync:%s", syncType), 10*time.Minute, nil)
	if err == redislock.ErrNotObtained {
		s.logger.WithFields(logrus.Fields{
			"field":    "obtainSyncLock",
			"syncType": syncType,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return nil
	} else if err != nil {
		s.logger.WithFields(logrus.Fields{
			"field":    "obtainSyncLock",
			"syncType": syncType,
		}).Warnf("error obtaining redis lock (%v); proceeding without redis lock", err)
		return nil
	}
	return lock
}

func mapSyncLogToResponse(l models.SyncLog) SyncLogResponse {
	var finished *string
	if l.FinishedAt != nil {
		s := l.FinishedAt.UTC().Format(time.RFC3339)
		finished = &s
	}
	return SyncLogResponse{
		ID:               l.ID,
		SyncType:         l.SyncType,
		Status:           l.Status,
		TriggeredBy:      l.TriggeredBy,
		StartedAt:        l.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:       finished,
		RecordsProcessed: l.RecordsProcessed,
		RecordsCreated:   l.RecordsCreated,
		RecordsUpdated:   l.RecordsUpdated,
		RecordsClosed:    l.RecordsClosed,
		Errors:           l.Errors(),
	}
}
