package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/rc-quote-api/api/swagger"
	"github.com/noah-isme/rc-quote-api/internal/handler"
	internalmiddleware "github.com/noah-isme/rc-quote-api/internal/middleware"
	"github.com/noah-isme/rc-quote-api/internal/models"
	"github.com/noah-isme/rc-quote-api/internal/repository"
	"github.com/noah-isme/rc-quote-api/internal/service"
	"github.com/noah-isme/rc-quote-api/pkg/cache"
	"github.com/noah-isme/rc-quote-api/pkg/config"
	"github.com/noah-isme/rc-quote-api/pkg/database"
	"github.com/noah-isme/rc-quote-api/pkg/jobs"
	"github.com/noah-isme/rc-quote-api/pkg/logger"
	"github.com/noah-isme/rc-quote-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/rc-quote-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/rc-quote-api/pkg/middleware/requestid"
	"github.com/noah-isme/rc-quote-api/pkg/storage"
	"github.com/noah-isme/rc-quote-api/pkg/webhook"
)

// @title RC Quote API
// @version 1.0.0
// @description Quote request intake for RC Construções: validation, attachments and email delivery.
// @BasePath /
// @schemes http https

const (
	signatureTolerance = 5 * time.Minute
	shutdownTimeout    = 15 * time.Second
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	files := storage.NewOSFileStore(cfg.Retention.Root)
	checks := map[string]handler.ReadinessCheck{
		"storage": func(context.Context) error { return files.EnsureDir(cfg.Upload.Dir) },
	}

	limiter, redisClient, err := buildRateLimiter(ctx, cfg, metricsSvc, logr)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var submissionLog *repository.SubmissionRepository
	if cfg.Database.Enabled {
		db, err := openSubmissionLog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck
		submissionLog = repository.NewSubmissionRepository(db)
		checks["database"] = db.PingContext
	}

	signer := webhook.NewSigner(cfg.Webhook.Secret, signatureTolerance)
	hook := webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.Timeout, signer, logr)
	transport := mailer.NewSMTPTransport(cfg.Mail)

	followUps := newFollowUpHandlers(cfg, files, hook, submissionLog, logr)
	mux := jobs.NewMux()
	followUps.Register(mux)
	queue := jobs.NewQueue("post-submission", mux.Dispatch, jobs.QueueConfig{
		Workers:      cfg.Jobs.Workers,
		MaxRetries:   cfg.Jobs.MaxRetries,
		RetryDelay:   cfg.Jobs.RetryDelay,
		DrainTimeout: cfg.Jobs.DrainTimeout,
		Logger:       logr.Named("jobs"),
	})
	queue.Start(ctx)
	defer queue.Stop()

	submissions := service.NewSubmissionService(service.SubmissionDeps{
		Spam:      service.NewSpamGuard(cfg.Spam),
		Limiter:   limiter,
		Form:      service.NewQuoteFormValidator(nil),
		Cities:    service.NewCityResolver(nil, ""),
		Uploads:   service.NewUploadValidator(files, cfg.Upload, metricsSvc, logr),
		Composer:  service.NewQuoteComposer(cfg.Mail),
		Transport: transport,
		Jobs:      queue,
		FollowUps: followUps.Options(),
		Metrics:   metricsSvc,
		Logger:    logr,
	})

	if cfg.Retention.Cron != "" {
		scheduler, err := scheduleRetention(ctx, cfg, files, transport, hook, metricsSvc, logr)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	quoteHandler := handler.NewQuoteHandler(submissions, files, cfg.Upload, cfg.Form, logr)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.SecurityHeaders())
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Summary)

	// Legacy form action kept for existing static pages.
	r.POST("/enviar-email", quoteHandler.Submit)
	r.GET("/enviar-email", quoteHandler.Reject)

	api := r.Group(cfg.APIPrefix)
	api.POST("/quotes", quoteHandler.Submit)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildRateLimiter picks the window store for the configured backend. The redis client is
// returned so the caller can close it and probe it for readiness.
func buildRateLimiter(ctx context.Context, cfg *config.Config, metricsSvc *service.MetricsService, logr *zap.Logger) (*service.RateLimiter, *redis.Client, error) {
	switch cfg.RateLimit.Backend {
	case config.RateLimitBackendRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := repository.NewRateWindowRedisStore(client, cfg.RateLimit.Window)
		return service.NewRateLimiter(store, cfg.RateLimit, metricsSvc, logr), client, nil
	case config.RateLimitBackendFile, "":
		store, err := repository.NewRateWindowFileStore(cfg.RateLimit.StateDir, logr)
		if err != nil {
			return nil, nil, fmt.Errorf("open rate state: %w", err)
		}
		return service.NewRateLimiter(store, cfg.RateLimit, metricsSvc, logr), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
}

func openSubmissionLog(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := repository.NewSubmissionRepository(db).EnsureSchema(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("prepare submission log: %w", err)
	}
	return db, nil
}

// newFollowUpHandlers passes untyped nils for disabled collaborators so Options sees them as absent.
func newFollowUpHandlers(cfg *config.Config, files *storage.FileStore, hook *webhook.Client, repo *repository.SubmissionRepository, logr *zap.Logger) *service.PostSubmissionHandlers {
	var backups interface {
		EnsureDir(dir string) error
		WriteFileAtomic(name string, data []byte, perm os.FileMode) error
	}
	if cfg.Backup.Enabled {
		backups = files
	}
	var submissionLog interface {
		Insert(ctx context.Context, record *models.SubmissionRecord) error
	}
	if repo != nil {
		submissionLog = repo
	}
	return service.NewPostSubmissionHandlers(backups, cfg.Backup.Dir, hook, submissionLog, logr.Named("follow-up"))
}

func scheduleRetention(ctx context.Context, cfg *config.Config, files *storage.FileStore, transport mailer.Transport, hook *webhook.Client, metricsSvc *service.MetricsService, logr *zap.Logger) (*cron.Cron, error) {
	deps := service.RetentionDeps{
		Files:   files,
		Disk:    storage.StatfsProbe{},
		Metrics: metricsSvc,
		Logger:  logr.Named("retention"),
	}
	if notifier := service.NewRetentionNotifier(cfg.Mail, transport, hook); cfg.Retention.NotifyEnabled && notifier.Enabled() {
		deps.Notifier = notifier
	}
	retention, err := service.NewRetentionService(cfg.Retention, deps)
	if err != nil {
		return nil, err
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = scheduler.AddFunc(cfg.Retention.Cron, func() {
		if _, err := retention.Run(ctx, service.RunOptions{}); err != nil {
			logr.Warn("scheduled retention run interrupted", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid RETENTION_CRON %q: %w", cfg.Retention.Cron, err)
	}
	return scheduler, nil
}
