// Command server runs the review quality service: HTTP API, analysis worker
// pool, and cron scheduler.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	analyticsapi "github.com/openjournal-dev/review-quality-service/internal/api/analytics"
	"github.com/openjournal-dev/review-quality-service/internal/api/trigger"
	"github.com/openjournal-dev/review-quality-service/internal/cache"
	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/mailer"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/internal/repository"
	analyticssvc "github.com/openjournal-dev/review-quality-service/internal/service/analytics"
	"github.com/openjournal-dev/review-quality-service/internal/service/consistency"
	"github.com/openjournal-dev/review-quality-service/internal/service/invitations"
	"github.com/openjournal-dev/review-quality-service/internal/service/notifications"
	"github.com/openjournal-dev/review-quality-service/internal/service/profile"
	"github.com/openjournal-dev/review-quality-service/internal/service/queue"
	"github.com/openjournal-dev/review-quality-service/internal/service/scheduler"
	"github.com/openjournal-dev/review-quality-service/internal/service/scoring"
	"github.com/openjournal-dev/review-quality-service/internal/smsgateway"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().Str("environment", cfg.Server.Environment).Msg("Starting review quality service")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Service exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	db, err := repository.NewDB(&cfg.Database.Postgres, log.Component("database"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis, log.Component("cache"))
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisCache.Close()

	// Repositories
	reportRepo := repository.NewReportRepository(db)
	configRepo := repository.NewMetricConfigRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	jobRepo := repository.NewJobRepository(db)
	consistencyRepo := repository.NewConsistencyRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Channels
	mailClient := mailer.NewClient(&cfg.Notifications.Email, log.Component("mailer"))
	smsClient := smsgateway.NewClient(&cfg.Notifications.SMS, log.Component("smsgateway"))

	// Services
	queueService := queue.NewService(&cfg.Queue, jobRepo, reviewRepo, log.Component("queue"))
	dispatcher := notifications.NewDispatcher(
		&cfg.Notifications, mailClient, smsClient, notificationRepo, queueService,
		log.Component("notifications"),
	)
	profileService := profile.NewService(
		&cfg.Profiles, reportRepo, configRepo, profileRepo, log.Component("profile"),
	)

	var nlpProvider scoring.NLPProvider
	if cfg.Scoring.NLP.Enabled {
		nlpProvider = scoring.NewHTTPNLPProvider(&cfg.Scoring.NLP, log.Component("nlp"))
	}
	scoringService := scoring.NewService(
		&cfg.Scoring, reportRepo, configRepo, reviewRepo,
		nlpProvider, profileService, dispatcher, log.Component("scoring"),
	)
	consistencyService := consistency.NewService(
		&cfg.Consistency, reviewRepo, consistencyRepo, reportRepo,
		scoringService, log.Component("consistency"),
	)
	invitationService := invitations.NewService(
		&cfg.Reminders, invitationRepo, reviewRepo, dispatcher, log.Component("invitations"),
	)
	analyticsService := analyticssvc.NewService(
		invitationRepo, reportRepo, jobRepo, profileRepo, reviewRepo,
		redisCache, log.Component("analytics"),
	)

	// Worker pool
	pool := queue.NewPool(queueService, log)
	pool.Register(models.JobTypeFull, analysisHandler(scoringService, queueService))
	pool.Register(models.JobTypeQuick, analysisHandler(scoringService, queueService))
	pool.Register(models.JobTypeConsistency, consistencyHandler(consistencyService, reviewRepo))
	pool.Register(models.JobTypeNotify, notifyHandler(dispatcher))

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(rootCtx)
	defer pool.Stop()

	// Scheduler
	sched := scheduler.NewService(
		cfg, invitationService, queueService, jobRepo, analyticsService, dispatcher,
		log.Component("scheduler"),
	)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP
	router := buildRouter(cfg, db, log,
		queueService, consistencyService, scoringService, sched, dispatcher,
		analyticsService, profileService, configRepo,
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}

func buildRouter(
	cfg *config.Config,
	db *repository.DB,
	log *logger.Logger,
	queueService *queue.Service,
	consistencyService *consistency.Service,
	scoringService *scoring.Service,
	sched *scheduler.Service,
	dispatcher *notifications.Dispatcher,
	analyticsService *analyticssvc.Service,
	profileService *profile.Service,
	configRepo *repository.MetricConfigRepository,
) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	triggerHandler := trigger.NewHandler(
		queueService, consistencyService, scoringService, sched, dispatcher,
		configRepo, log.Component("api-trigger"),
	)
	analyticsHandler := analyticsapi.NewHandler(
		analyticsService, profileService, log.Component("api-analytics"),
	)

	api := router.Group("/api/v1")
	api.Use(trigger.RoleMiddleware())
	{
		api.POST("/trigger", triggerHandler.Trigger)
		api.GET("/jobs/:id", triggerHandler.GetJob)

		analytics := api.Group("/analytics", trigger.RequireEditor())
		analytics.GET("/invitations", analyticsHandler.GetInvitationAnalytics)
		analytics.GET("/quality", analyticsHandler.GetQualityOverview)
		analytics.GET("/leaderboard", analyticsHandler.GetLeaderboard)
		analytics.GET("/reviewers/:id", analyticsHandler.GetReviewerProfile)
	}

	return router
}

// analysisHandler adapts the scoring service to the worker pool contract.
// Successful passes chain a consistency recompute for the same review's
// manuscript.
func analysisHandler(svc *scoring.Service, q *queue.Service) queue.Handler {
	return func(ctx context.Context, job *models.AnalysisJob) ([]byte, error) {
		report, err := svc.AnalyzeReview(ctx, job.ReviewID, job.JobType)
		if err != nil {
			return nil, err
		}
		if _, err := q.Enqueue(job.ReviewID, models.JobTypeConsistency, job.Priority); err != nil {
			return nil, fmt.Errorf("failed to chain consistency job: %w", err)
		}
		return json.Marshal(map[string]any{
			"report_id": report.ID,
			"status":    report.Status,
			"score":     report.QualityScore,
		})
	}
}

// consistencyHandler adapts the consistency service to the worker pool
// contract. The job targets a review; the manuscript is resolved at run time.
func consistencyHandler(svc *consistency.Service, reviews *repository.ReviewRepository) queue.Handler {
	return func(ctx context.Context, job *models.AnalysisJob) ([]byte, error) {
		review, err := reviews.GetByID(job.ReviewID)
		if err != nil {
			return nil, err
		}
		score, err := svc.Analyze(ctx, review.ManuscriptID)
		if errors.Is(err, consistency.ErrInsufficientReviews) {
			return json.Marshal(map[string]any{"computed": false, "reason": err.Error()})
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"computed":            true,
			"review_count":        score.ReviewCount,
			"overall_consistency": score.OverallConsistency,
		})
	}
}

// notifyHandler delivers deferred notification jobs.
func notifyHandler(d *notifications.Dispatcher) queue.Handler {
	return func(ctx context.Context, job *models.AnalysisJob) ([]byte, error) {
		req, err := notifications.DecodeRequest(job.Payload)
		if err != nil {
			return nil, err
		}
		result := d.DeliverNow(ctx, req)
		data, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			return data, fmt.Errorf("notification delivery failed on %d channel(s)", failedChannels(result))
		}
		return data, nil
	}
}

func failedChannels(result *notifications.Result) int {
	failed := 0
	for _, ch := range result.Channels {
		if !ch.Success {
			failed++
		}
	}
	return failed
}
