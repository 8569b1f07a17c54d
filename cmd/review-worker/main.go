package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/resaflow/platform/internal/accounts"
	appconfig "github.com/resaflow/platform/internal/config"
	"github.com/resaflow/platform/internal/conversation"
	"github.com/resaflow/platform/internal/flow"
	"github.com/resaflow/platform/internal/observability/metrics"
	"github.com/resaflow/platform/internal/reservations"
	"github.com/resaflow/platform/internal/review"
	"github.com/resaflow/platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting review worker",
		"env", cfg.Env,
		"sweep_interval", cfg.ReviewSweepInterval.String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	bookingMetrics := metrics.NewBookingMetrics(nil)

	flowStore := flow.NewStore(pool)
	reservationStore := reservations.NewStore(pool)
	reviewStore := review.NewStore(pool)
	conversationStore := conversation.NewStore(sqlDB)
	accountStore := accounts.NewStore(redisClient)

	// The review sweep only starts flows; it never books, so no Booker is
	// wired here.
	service := conversation.NewService(flowStore, conversationStore, accountStore, nil, bookingMetrics, logger)

	var sender conversation.ReplySender
	if cfg.DeliveryWebhookURL != "" {
		sender = conversation.NewHTTPReplySender(cfg.DeliveryWebhookURL, logger)
	} else {
		sender = conversation.NewLogReplySender(logger)
		logger.Warn("DELIVERY_WEBHOOK_URL not set, review invitations are logged only")
	}

	dispatcher := review.NewDispatcher(reviewStore, reservationStore, accountStore, service, sender, bookingMetrics, logger)

	go dispatcher.Run(ctx, cfg.ReviewSweepInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down review worker...")
	cancel()
	logger.Info("review worker stopped")
}
