package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/resaflow/platform/cmd/mainconfig"
	"github.com/resaflow/platform/internal/accounts"
	"github.com/resaflow/platform/internal/api/router"
	"github.com/resaflow/platform/internal/calendar"
	appconfig "github.com/resaflow/platform/internal/config"
	"github.com/resaflow/platform/internal/conversation"
	"github.com/resaflow/platform/internal/flow"
	"github.com/resaflow/platform/internal/http/handlers"
	"github.com/resaflow/platform/internal/notify"
	"github.com/resaflow/platform/internal/observability/metrics"
	"github.com/resaflow/platform/internal/reservations"
	"github.com/resaflow/platform/internal/review"
	"github.com/resaflow/platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting resaflow API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres: pgx pool for the stores, database/sql for the conversation
	// repository's transactional commits.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	flowStore := flow.NewStore(pool)
	reservationStore := reservations.NewStore(pool)
	reviewStore := review.NewStore(pool)
	conversationStore := conversation.NewStore(sqlDB)
	accountStore := accounts.NewStore(redisClient)

	calendarClient := calendar.NewClient(cfg.CalendarBaseURL, calendar.StaticToken(cfg.CalendarToken), logger)
	busyCache := calendar.NewBusyCache(redisClient)
	resolver := calendar.NewResolver(calendarClient, busyCache, bookingMetrics, logger)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			emailSender = s
		}
	default:
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			emailSender = s
		}
	}
	if emailSender == nil {
		emailSender = notify.NewStubEmailSender(logger)
		logger.Warn("no email provider configured, booking notifications are logged only")
	}
	notifier := notify.NewService(emailSender, logger)

	reviewScheduler := review.NewScheduler(reviewStore, logger)
	creator := reservations.NewCreator(resolver, calendarClient, reservationStore, notifier, reviewScheduler, bookingMetrics, logger)
	service := conversation.NewService(flowStore, conversationStore, accountStore, creator, bookingMetrics, logger)

	var sender conversation.ReplySender
	if cfg.DeliveryWebhookURL != "" {
		sender = conversation.NewHTTPReplySender(cfg.DeliveryWebhookURL, logger)
	} else {
		sender = conversation.NewLogReplySender(logger)
		logger.Warn("DELIVERY_WEBHOOK_URL not set, replies are logged only")
	}

	var (
		publisher *conversation.Publisher
		worker    *conversation.Worker
	)
	if cfg.UseMemoryQueue {
		queue := conversation.NewMemoryQueue(0)
		publisher = conversation.NewPublisher(queue)
		worker = conversation.NewWorker(service, queue, sender, logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
		)
		logger.Info("using in-memory turn queue")
	} else {
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnQueueURL)
		publisher = conversation.NewPublisher(queue)
		worker = conversation.NewWorker(service, queue, sender, logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
		)
	}
	worker.Start(ctx)

	dispatcher := review.NewDispatcher(reviewStore, reservationStore, accountStore, service, sender, bookingMetrics, logger)

	routerCfg := &router.Config{
		Logger:         logger,
		ChatWebhook:    handlers.NewChatWebhookHandler(publisher, service, logger),
		ReviewRating:   handlers.NewReviewRatingHandler(dispatcher, logger),
		FlowHandler:    handlers.NewFlowHandler(flowStore, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	worker.Wait()
	logger.Info("server stopped")
}
