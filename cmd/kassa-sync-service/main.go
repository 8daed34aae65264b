package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ristobook/ristobook_backend/config"
	"github.com/ristobook/ristobook_backend/kassasync"
	"github.com/ristobook/ristobook_backend/models"
	"github.com/ristobook/ristobook_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("KASSA_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Restaurant-Id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// API endpoints (KassaCloud sync)
	r.GET("/api/integrations/kassa/status", kassasync.StatusHandler())
	r.POST("/api/integrations/kassa/connect", kassasync.ConnectHandler())
	r.POST("/api/integrations/kassa/disconnect", kassasync.DisconnectHandler())
	r.POST("/api/integrations/kassa/settings", kassasync.UpdateSettingsHandler())
	r.POST("/api/integrations/kassa/sync", kassasync.TriggerSyncHandler())
	r.POST("/api/integrations/kassa/sync-now", kassasync.SyncNowHandler())
	r.GET("/api/integrations/kassa/sync-runs", kassasync.SyncHistoryHandler())
	r.GET("/api/integrations/kassa/sync-runs/:id", kassasync.SyncRunDetailHandler())
	r.POST("/api/integrations/kassa/sync-runs/:id/retry", kassasync.RetrySyncRunHandler())

	// Pub/Sub push endpoint for the sync worker.
	r.POST("/pubsub/kassa-sync", kassasync.PubSubPushHandler())

	// Cloud Scheduler cron endpoint, reachable only through internal routing.
	r.POST("/internal/kassa-sync/scheduled", kassasync.ScheduledSyncHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Provision the sync topic and push subscription for local and dev
	// environments. Production infrastructure is created out of band.
	if strings.EqualFold(strings.TrimSpace(os.Getenv("KASSA_SYNC_CREATE_SUBSCRIPTION")), "true") {
		ensureSyncSubscription(sigCtx, logger)
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func ensureSyncSubscription(ctx context.Context, logger *logrus.Logger) {
	client, err := config.GetClient(ctx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Error(err)
		return
	}

	topicName := strings.TrimSpace(os.Getenv("KASSA_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "kassa-sync"
	}
	topic, err := config.CreateTopicIfNotExists(client, topicName)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Error(err)
		return
	}
	if _, err := config.CreateSubscriptionIfNotExists(client, topicName+"-push", topic); err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Error(err)
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

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
