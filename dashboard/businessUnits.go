package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/fieldline"
	"github.com/hearthside/fieldops_backend/fieldsync"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/utils"
	"github.com/sirupsen/logrus"
)

// Handlers groups the endpoints that need the upstream API client.
type Handlers struct {
	client *fieldline.Client
	logger *logrus.Logger
}

func NewHandlers(client *fieldline.Client, logger *logrus.Logger) *Handlers {
	return &Handlers{client: client, logger: logger}
}

func ListBusinessUnitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		var units []models.BusinessUnit
		if err := db.Order("business_unit_id").Find(&units).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": units})
	}
}

// ToggleBusinessUnitHandler enables or disables a unit for the job sync.
// Admin or manager only; disabled units keep their existing tickets.
func ToggleBusinessUnitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := utils.GetUserRoleFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if role != models.UserRoleAdmin && role != models.UserRoleManager {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		buId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid business unit id"})
			return
		}

		var req struct {
			IsEnabled *bool `json:"is_enabled"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.IsEnabled == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_enabled is required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		res := db.Model(&models.BusinessUnit{}).
			Where("business_unit_id = ?", buId).
			Update("is_enabled", *req.IsEnabled)
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

// RefreshBusinessUnitsHandler pulls the current unit list from upstream and
// upserts it, outside the normal sync cycle. Newly discovered units come in
// enabled.
func (h *Handlers) RefreshBusinessUnitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := utils.GetUserRoleFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if role != models.UserRoleAdmin && role != models.UserRoleManager {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		units, err := h.client.BusinessUnits(c.Request.Context())
		if err != nil {
			h.logger.Errorf("business unit refresh failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
			return
		}

		store := fieldsync.NewGormStore(config.GetDB())
		seenAt := time.Now()
		refreshed := 0
		for _, unit := range units {
			if err := store.UpsertBusinessUnit(c.Request.Context(), unit, seenAt); err != nil {
				h.logger.Warnf("business unit %d upsert failed: %v", unit.Id, err)
				continue
			}
			refreshed++
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "refreshed": refreshed})
	}
}
