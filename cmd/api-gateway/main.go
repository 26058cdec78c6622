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
	"go.uber.org/zap"

	_ "github.com/cpmappstudio/cpca-teachers/api/swagger"
	"github.com/cpmappstudio/cpca-teachers/internal/handler"
	"github.com/cpmappstudio/cpca-teachers/internal/middleware"
	"github.com/cpmappstudio/cpca-teachers/internal/models"
	"github.com/cpmappstudio/cpca-teachers/internal/repository"
	"github.com/cpmappstudio/cpca-teachers/internal/service"
	"github.com/cpmappstudio/cpca-teachers/pkg/cache"
	"github.com/cpmappstudio/cpca-teachers/pkg/config"
	"github.com/cpmappstudio/cpca-teachers/pkg/database"
	"github.com/cpmappstudio/cpca-teachers/pkg/jobs"
	"github.com/cpmappstudio/cpca-teachers/pkg/logger"
	corsmiddleware "github.com/cpmappstudio/cpca-teachers/pkg/middleware/cors"
	reqidmiddleware "github.com/cpmappstudio/cpca-teachers/pkg/middleware/requestid"
)

// @title CPCA Teachers API
// @version 0.1.0
// @description Curriculum assignment reconciliation and lesson progress tracking
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if err := database.NewMigrator(db, logr).Migrate(ctx); err != nil {
		logr.Fatal("failed to apply migrations", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}

	metrics := service.NewMetricsService()

	var (
		cacheRepo  service.CacheRepository
		cachePing  handler.Pinger
		cacheStore *repository.CacheRepository
	)
	if redisClient != nil {
		cacheStore = repository.NewCacheRepository(redisClient, logr)
		defer cacheStore.Close() //nolint:errcheck
		cacheRepo = cacheStore
		cachePing = handler.PingFunc(cacheStore.Ping)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Progress.CacheTTL, logr, cfg.Progress.CacheEnabled)

	curriculumRepo := repository.NewCurriculumRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	assignmentRepo := repository.NewTeacherAssignmentRepository(db)
	progressRepo := repository.NewLessonProgressRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	validate := validator.New()

	aggregator := service.NewAggregatorService(service.AggregatorServiceParams{
		Assignments: assignmentRepo,
		Lessons:     lessonRepo,
		Progress:    progressRepo,
		Curricula:   curriculumRepo,
		Audit:       auditRepo,
		Cache:       cacheSvc,
		Metrics:     metrics,
		CacheTTL:    cfg.Progress.CacheTTL,
		Logger:      logr,
	})
	reconciler := service.NewReconcilerService(service.ReconcilerServiceParams{
		Curricula:   curriculumRepo,
		Lessons:     lessonRepo,
		Assignments: assignmentRepo,
		Progress:    progressRepo,
		Summaries:   aggregator,
		Audit:       auditRepo,
		Metrics:     metrics,
		Logger:      logr,
		Config: service.ReconcilerConfig{
			AcademicYear:   cfg.Assignments.AcademicYear,
			AssignmentType: models.AssignmentType(cfg.Assignments.DefaultType),
		},
	})
	progressSvc := service.NewProgressService(assignmentRepo, lessonRepo, progressRepo, aggregator, auditRepo, metrics, validate, logr)
	curriculumSvc := service.NewCurriculumService(curriculumRepo, lessonRepo, reconciler, auditRepo, validate, logr)
	exportSvc := service.NewExportService(aggregator, service.ExportConfig{
		Enabled: cfg.Exports.Enabled,
		MaxRows: cfg.Exports.MaxRows,
	}, logr, nil, nil)

	scheduler := service.NewRecomputeScheduler(aggregator, logr)
	recomputeQueue := jobs.NewQueue("curriculum-recompute", scheduler.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.RecomputeWorkers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	scheduler.UseQueue(recomputeQueue)
	metrics.TrackQueueDepth("curriculum-recompute", recomputeQueue.Pending)
	recomputeQueue.Start(ctx)
	defer recomputeQueue.Stop()

	curriculumHandler := handler.NewCurriculumHandler(curriculumSvc, aggregator, scheduler)
	progressHandler := handler.NewProgressHandler(progressSvc, aggregator, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db, cachePing)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	registerRoutes(api, curriculumHandler, progressHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}

func registerRoutes(api *gin.RouterGroup, curricula *handler.CurriculumHandler, progress *handler.ProgressHandler) {
	api.GET("/curricula", curricula.List)
	api.POST("/curricula", curricula.Create)
	api.GET("/curricula/:id", curricula.Get)
	api.GET("/curricula/:id/lessons", curricula.ListLessons)
	api.POST("/curricula/:id/lessons", curricula.CreateLesson)
	api.PUT("/curricula/:id/assignments", curricula.UpdateAssignments)
	api.POST("/curricula/:id/progress/recompute", curricula.Recompute)
	api.GET("/curricula/:id/audit", curricula.Audit)

	api.POST("/progress", progress.Record)
	api.POST("/progress/:id/verify", progress.Verify)
	api.GET("/teachers/:id/progress", progress.TeacherProgress)
	api.GET("/assignments/:id/progress", progress.AssignmentCompletion)
	api.GET("/assignments/:id/progress/export", progress.Export)
	api.GET("/assignments/:id/lessons/progress", progress.AssignmentLessons)
	api.GET("/lessons/:lessonId/assignments/:id/completion", progress.LessonCompletion)
}
