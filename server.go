package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/dashboard"
	"github.com/hearthside/fieldops_backend/fieldline"
	"github.com/hearthside/fieldops_backend/fieldsync"
	"github.com/hearthside/fieldops_backend/middlewares"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/hearthside/fieldops_backend/notify"
	"github.com/hearthside/fieldops_backend/reports"
	"github.com/hearthside/fieldops_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// serviceTokenHandler issues a JWT carrying the caller's id and role, for
// Cloud Scheduler jobs and scripts that can't hold a session. Admin only.
func serviceTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := utils.GetUserRoleFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if role != models.UserRoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())

		token, err := utils.JwtGenerate(userId, role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// Upstream client and sync service. The store resolves the shared DB
	// connection lazily, so wiring here before the DB is up is safe.
	creds, err := fieldline.CredentialsFromEnv()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "fieldline"}).
			Warn("fieldline credentials incomplete; sync triggers will fail: " + err.Error())
	}
	client := fieldline.NewClient(creds, logger)
	store := fieldsync.NewGormStore(nil)
	notifier := notify.NewDispatcher(nil, logger,
		notify.NewSlackChannelFromEnv(),
		notify.NewSMSChannelFromEnv(),
		notify.NewEmailChannelFromEnv(),
	)
	syncService := fieldsync.NewService(
		fieldsync.NewInvoiceSyncer(client, store, logger),
		fieldsync.NewJobSyncer(client, store, logger),
		notifier,
		logger,
	)
	dashboardHandlers := dashboard.NewHandlers(client, logger)

	r.POST("/api/auth/service-token", serviceTokenHandler())

	// Sync triggers and history.
	r.POST("/api/sync/invoices", syncService.TriggerInvoicesHandler())
	r.POST("/api/sync/jobs", syncService.TriggerJobsHandler())
	r.POST("/api/sync/request", syncService.RequestSyncHandler())
	r.GET("/api/sync/history", fieldsync.SyncHistoryHandler())
	r.GET("/api/sync/history/:id", fieldsync.SyncLogDetailHandler())
	// Cloud Scheduler push subscription endpoint.
	r.POST("/pubsub/fieldline-sync", syncService.PubSubPushHandler())

	// Collections queue.
	r.GET("/api/ar/invoices", dashboard.ArQueueHandler())
	r.GET("/api/ar/invoices/:id", dashboard.ArInvoiceDetailHandler())
	r.POST("/api/ar/invoices/:id/owner", dashboard.AssignOwnerHandler())
	r.POST("/api/ar/invoices/:id/workflow-status", dashboard.SetWorkflowStatusHandler())
	r.POST("/api/ar/invoices/:id/notes", dashboard.SetNotesHandler())

	// Debrief queue.
	r.GET("/api/jobs/tickets", dashboard.DebriefQueueHandler())
	r.GET("/api/jobs/tickets/:id", dashboard.JobTicketDetailHandler())
	r.POST("/api/jobs/tickets/:id/debrief-status", dashboard.SetDebriefStatusHandler())
	r.POST("/api/jobs/tickets/:id/archive-photos", dashboardHandlers.ArchiveJobPhotosHandler())

	// Business unit registry.
	r.GET("/api/business-units", dashboard.ListBusinessUnitsHandler())
	r.POST("/api/business-units/:id/toggle", dashboard.ToggleBusinessUnitHandler())
	r.POST("/api/business-units/refresh", dashboardHandlers.RefreshBusinessUnitsHandler())

	// Dashboard and reports.
	r.GET("/api/dashboard/counts", dashboard.DashboardCountsHandler())
	r.GET("/api/reports/ar-aging", reports.ArAgingReportHandler())
	r.GET("/api/reports/ar-aging/export", reports.ArAgingExportHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
