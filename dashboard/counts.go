package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/utils"
)

type bucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// DashboardCountsHandler returns the headline numbers the landing page shows:
// open invoices by aging bucket, tickets pending debrief, last sync per type.
func DashboardCountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		var agingCounts []bucketCount
		if err := db.Model(&models.ArInvoice{}).
			Select("aging_bucket as bucket, count(*) as count").
			Where("status = ?", models.InvoiceStatusOpen).
			Group("aging_bucket").
			Scan(&agingCounts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var pendingDebrief int64
		if err := db.Model(&models.JobTicket{}).
			Where("debrief_status = ?", models.DebriefStatusPending).
			Count(&pendingDebrief).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var unassigned int64
		if err := db.Model(&models.ArInvoice{}).
			Where("status = ? AND owner_id IS NULL", models.InvoiceStatusOpen).
			Count(&unassigned).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		lastSyncs := map[string]*models.SyncLog{}
		for _, syncType := range []string{models.SyncTypeInvoices, models.SyncTypeJobs} {
			var log models.SyncLog
			err := db.Where("sync_type = ?", syncType).Order("id desc").Take(&log).Error
			if err == nil {
				lastSyncs[syncType] = &log
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"aging":           agingCounts,
			"pending_debrief": pendingDebrief,
			"unassigned_open": unassigned,
			"last_syncs":      lastSyncs,
		})
	}
}
