package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/utils"
	"gorm.io/gorm"
)

// DebriefQueueHandler lists completed job tickets for the morning debrief.
// Filters: debrief_status, business_unit_id, job_category, technician.
func DebriefQueueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		query := db.Model(&models.JobTicket{})

		if v := strings.TrimSpace(c.Query("debrief_status")); v != "" {
			query = query.Where("debrief_status = ?", v)
		}
		if v := strings.TrimSpace(c.Query("business_unit_id")); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				query = query.Where("business_unit_id = ?", id)
			}
		}
		if v := strings.TrimSpace(c.Query("job_category")); v != "" {
			query = query.Where("job_category = ?", v)
		}
		if v := strings.TrimSpace(c.Query("technician")); v != "" {
			query = query.Where("technician_name LIKE ?", "%"+v+"%")
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

		var tickets []models.JobTicket
		if err := query.Order("completed_at desc").Limit(limit).Offset(offset).Find(&tickets).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": tickets, "total": total})
	}
}

func JobTicketDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		jobId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var ticket models.JobTicket
		if err := db.Where("job_id = ?", jobId).Take(&ticket).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, ticket)
	}
}

// SetDebriefStatusHandler advances a ticket through the debrief workflow,
// enforcing the transition table. Completing a debrief stamps who and when.
func SetDebriefStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		jobId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
			return
		}

		var req struct {
			DebriefStatus models.DebriefStatus `json:"debrief_status" binding:"required"`
			DebriefNotes  *string              `json:"debrief_notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			var validationErrs validator.ValidationErrors
			if errors.As(err, &validationErrs) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !req.DebriefStatus.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid debrief status"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var ticket models.JobTicket
		if err := db.Where("job_id = ?", jobId).Take(&ticket).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if !ticket.DebriefStatus.CanTransition(req.DebriefStatus) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "invalid transition " + string(ticket.DebriefStatus) + " -> " + string(req.DebriefStatus),
			})
			return
		}

		updates := map[string]interface{}{"debrief_status": req.DebriefStatus}
		if req.DebriefNotes != nil {
			updates["debrief_notes"] = *req.DebriefNotes
		}
		if req.DebriefStatus == models.DebriefStatusCompleted {
			now := time.Now()
			updates["debriefed_by"] = userId
			updates["debriefed_at"] = &now
		}

		if err := db.Model(&ticket).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
