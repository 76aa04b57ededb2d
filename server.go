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

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/middlewares"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("recon-backend")

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.POST("/auth/login", loginHandler())
	api.POST("/auth/logout", logoutHandler())
	api.GET("/users", listUsersHandler())

	api.POST("/ingest/batches", ingestBatchHandler())
	api.GET("/ingest/batches", listBatchesHandler())
	api.GET("/ingest/balance/:date", sourceBalanceHandler())

	api.POST("/runs", createRunHandler())
	api.GET("/runs", listRunsHandler())
	api.GET("/runs/latest", latestRunHandler())
	api.GET("/runs/:id", getRunHandler())
	api.GET("/runs/:id/summary", runSummaryHandler())
	api.GET("/runs/:id/results", runResultsHandler())
	api.GET("/runs/:id/diagnostics", runDiagnosticsHandler())
	api.GET("/runs/:id/export/xlsx", runWorkbookHandler())
	api.GET("/runs/:id/export/unmatched.csv", unmatchedCsvHandler())

	api.GET("/results/:rowId", resultDetailHandler())
	api.GET("/results/:rowId/candidates", resultCandidatesHandler())

	api.GET("/cases", listCasesHandler())
	api.GET("/cases/:id", getCaseHandler())
	api.POST("/cases/:id/assign", assignCaseHandler())
	api.POST("/cases/:id/comments", commentCaseHandler())
	api.POST("/cases/:id/status", caseStatusHandler())
	api.POST("/cases/:id/close", closeCaseHandler())

	api.GET("/exports/open-exceptions.csv", openExceptionsCsvHandler())

	api.GET("/rulesets", listRulesetsHandler())
	api.POST("/rulesets", activateRulesetHandler())
	api.GET("/audit", auditTrailHandler())
	api.GET("/analytics", analyticsHandler())
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server before the dependencies are ready; app
	// endpoints answer 503 until the DB connects.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	// Root span per request; the otelgorm spans hang off it.
	r.Use(func(c *gin.Context) {
		name := c.Request.Method + " " + c.FullPath()
		ctx, span := tracer.Start(c.Request.Context(), name)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
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
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins, ",")
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.SessionMiddleware())
	r.Use(gin.Recovery())
	registerRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open. Redis stays optional;
	// a missing redis only loses caching and the best-effort run lock.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

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

	if err := models.EnsureDefaultRuleset(context.Background()); err != nil {
		logger.WithFields(logrus.Fields{"field": "ruleset"}).Panic("failed to seed default ruleset: " + err.Error())
	}

	// Conditional run transitions assume READ COMMITTED.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/api")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
