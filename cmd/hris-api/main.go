package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/samudra-hr/hris-api/api/swagger"
	"github.com/samudra-hr/hris-api/internal/handler"
	"github.com/samudra-hr/hris-api/internal/middleware"
	"github.com/samudra-hr/hris-api/internal/models"
	"github.com/samudra-hr/hris-api/internal/repository"
	"github.com/samudra-hr/hris-api/internal/service"
	"github.com/samudra-hr/hris-api/pkg/artifact"
	"github.com/samudra-hr/hris-api/pkg/cache"
	"github.com/samudra-hr/hris-api/pkg/config"
	"github.com/samudra-hr/hris-api/pkg/database"
	"github.com/samudra-hr/hris-api/pkg/lease"
	"github.com/samudra-hr/hris-api/pkg/logger"
	corsmiddleware "github.com/samudra-hr/hris-api/pkg/middleware/cors"
	reqidmiddleware "github.com/samudra-hr/hris-api/pkg/middleware/requestid"
)

// @title Samudra HRIS Workflow API
// @version 1.0.0
// @description Request/approval workflow engine for document requests, salary advances and contract lifecycle
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	storage, err := artifact.NewLocalStorage(cfg.Artifacts.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare artifact storage", "error", err)
	}
	generator := artifact.NewGenerator(artifact.NewPDFRenderer(), storage)
	signer := artifact.NewSigner(cfg.Artifacts.SignedURLSecret, cfg.Artifacts.SignedURLTTL)

	instanceRepo := repository.NewWorkflowInstanceRepository(db)
	repaymentRepo := repository.NewRepaymentRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()
	notifier := service.NewLogNotifier(logr)
	dispatcher := service.NewDispatcher(instanceRepo, repaymentRepo, employeeRepo, generator, notifier, metricsSvc, cfg.Workflow, cfg.Advances, logr)

	locker := lease.NewRedisLocker(redisClient, "hris")
	validate := validator.New()
	workflowSvc := service.NewWorkflowService(instanceRepo, employeeRepo, repaymentRepo, auditRepo, dispatcher, metricsSvc, locker, validate, cfg.Workflow, cfg.Advances, logr)
	tokenSvc := service.NewTokenService(cfg.JWT)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(rootCtx)
	defer dispatcher.Stop()

	if cfg.Artifacts.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Artifacts.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					deleted, err := storage.CleanupOlderThan(cfg.Artifacts.SignedURLTTL * 2)
					if err != nil {
						logr.Sugar().Warnw("artifact cleanup failed", "error", err)
					} else if len(deleted) > 0 {
						logr.Sugar().Infow("expired artifacts removed", "count", len(deleted))
					}
				}
			}
		}()
	}

	workflowHandler := handler.NewWorkflowHandler(workflowSvc)
	documentHandler := handler.NewDocumentHandler(workflowSvc, signer, storage)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api/v1")

	// Downloads are authorised by the signed token, not a session.
	api.GET("/documents/:token", documentHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(tokenSvc))

	workflows := authed.Group("/workflows")
	{
		workflows.POST("/:domain", workflowHandler.Submit)
		workflows.GET("/:domain", workflowHandler.List)
	}

	instances := authed.Group("/workflows/instances")
	{
		instances.GET("/:id", workflowHandler.Get)
		instances.POST("/:id/transitions", workflowHandler.Transition)
		instances.GET("/:id/document", documentHandler.Link)
		instances.GET("/:id/repayments", workflowHandler.Schedule)
		instances.PUT("/:id/contract",
			middleware.RequireRoles(models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin),
			middleware.Audit(auditRepo, models.AuditActionContractEdit, "workflow_instance"),
			workflowHandler.UpdateContract)
		instances.POST("/:id/repayments",
			middleware.RequireRoles(models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin),
			middleware.Audit(auditRepo, models.AuditActionRepaymentPosted, "workflow_instance"),
			workflowHandler.RecordRepayment)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
