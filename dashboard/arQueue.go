package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/utils"
	"gorm.io/gorm"
)

// ArQueueHandler lists mirror invoices for the collections queue. Filters:
// aging_bucket, owner_id, status, workflow_status, trade_type, segment.
func ArQueueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		query := db.Model(&models.ArInvoice{})

		if v := strings.TrimSpace(c.Query("aging_bucket")); v != "" {
			query = query.Where("aging_bucket = ?", v)
		}
		if v := strings.TrimSpace(c.Query("status")); v != "" {
			query = query.Where("status = ?", v)
		}
		if v := strings.TrimSpace(c.Query("workflow_status")); v != "" {
			query = query.Where("workflow_status = ?", v)
		}
		if v := strings.TrimSpace(c.Query("trade_type")); v != "" {
			query = query.Where("trade_type = ?", v)
		}
		if v := strings.TrimSpace(c.Query("segment")); v != "" {
			query = query.Where("customer_segment = ?", v)
		}
		if v := strings.TrimSpace(c.Query("owner_id")); v != "" {
			if v == "unassigned" {
				query = query.Where("owner_id IS NULL")
			} else if id, err := strconv.Atoi(v); err == nil {
				query = query.Where("owner_id = ?", id)
			}
		}

		limit := config.SearchLimit
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		offset := 0
		if v := strings.TrimSpace(c.Query("offset")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var invoices []models.ArInvoice
		if err := query.Order("balance desc").Limit(limit).Offset(offset).Find(&invoices).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": invoices, "total": total})
	}
}

func ArInvoiceDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		invoiceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var invoice models.ArInvoice
		if err := db.Where("invoice_id = ?", invoiceId).Take(&invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var ownership models.InvoiceOwnership
		if err := db.Where("invoice_id = ?", invoiceId).Take(&ownership).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"invoice": invoice, "ownership": ownership})
	}
}

// AssignOwnerHandler sets or clears the locally-owned OwnerId and keeps the
// ownership tracking row in step.
func AssignOwnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		invoiceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
			return
		}

		var req struct {
			OwnerId *int `json:"owner_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		if req.OwnerId != nil {
			var owner models.User
			if err := db.Where("id = ? AND is_active = ?", *req.OwnerId, true).Take(&owner).Error; err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown owner"})
				return
			}
		}

		if err := db.Model(&models.ArInvoice{}).
			Where("invoice_id = ?", invoiceId).
			Update("owner_id", req.OwnerId).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		ownershipUpdates := map[string]interface{}{
			"assigned_user_id": req.OwnerId,
			"ownership_bucket": models.OwnershipBucketUnassigned,
			"assigned_at":      nil,
		}
		if req.OwnerId != nil {
			now := time.Now()
			ownershipUpdates["ownership_bucket"] = "assigned"
			ownershipUpdates["assigned_at"] = &now
		}
		if err := db.Model(&models.InvoiceOwnership{}).
			Where("invoice_id = ?", invoiceId).
			Updates(ownershipUpdates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// SetWorkflowStatusHandler mutates the locally-owned collections state,
// enforcing the transition table.
func SetWorkflowStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		invoiceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
			return
		}

		var req struct {
			WorkflowStatus models.WorkflowStatus `json:"workflow_status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || !req.WorkflowStatus.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow status"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var invoice models.ArInvoice
		if err := db.Where("invoice_id = ?", invoiceId).Take(&invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if !invoice.WorkflowStatus.CanTransition(req.WorkflowStatus) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "invalid transition " + string(invoice.WorkflowStatus) + " -> " + string(req.WorkflowStatus),
			})
			return
		}

		if err := db.Model(&invoice).Update("workflow_status", req.WorkflowStatus).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// SetNotesHandler updates the free-text notes and optional promised date.
func SetNotesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		invoiceId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
			return
		}

		var req struct {
			Notes        *string    `json:"notes"`
			PromisedDate *time.Time `json:"promised_date"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		updates := map[string]interface{}{}
		if req.Notes != nil {
			updates["notes"] = *req.Notes
		}
		if req.PromisedDate != nil {
			updates["promised_date"] = req.PromisedDate
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		res := db.Model(&models.ArInvoice{}).Where("invoice_id = ?", invoiceId).Updates(updates)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
