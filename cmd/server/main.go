package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
	"github.com/iliyamo/rental-hold-engine/internal/channel"
	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/config"
	"github.com/iliyamo/rental-hold-engine/internal/database"
	"github.com/iliyamo/rental-hold-engine/internal/handler"
	"github.com/iliyamo/rental-hold-engine/internal/locker"
	"github.com/iliyamo/rental-hold-engine/internal/middleware"
	"github.com/iliyamo/rental-hold-engine/internal/queue"
	"github.com/iliyamo/rental-hold-engine/internal/repository"
	"github.com/iliyamo/rental-hold-engine/internal/router"
	"github.com/iliyamo/rental-hold-engine/internal/scheduler"
	"github.com/iliyamo/rental-hold-engine/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}
	cfg := config.Load()
	logger := config.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	dialect := database.Dialect(cfg.DBDriver)
	db, err := database.Connect(dialect, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db, dialect); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	clk := clock.Real()
	repo := repository.NewReservationRepo(db, dialect)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis: unavailable, rate limit and sync lease disabled")
	} else {
		defer rdb.Close()
	}

	var channelClient booking.ChannelClient
	chCfg := channel.Config{
		BaseURL:   cfg.ChannelBaseURL,
		APIKey:    cfg.ChannelAPIKey,
		ChannelID: cfg.ChannelID,
		Timeout:   cfg.ChannelTimeout,
	}
	if chCfg.Configured() {
		channelClient = channel.NewClient(chCfg)
	} else {
		logger.Warn("channel: CHANNEL_API_KEY not set, sync attempts will fail validation")
	}

	syncOpts := booking.SyncOptions{ChannelID: cfg.ChannelID}
	if rdb != nil {
		syncOpts.Locker = locker.NewRedisLocker(rdb, cfg.SyncLockTTL, "hold-engine:lock")
	}

	holds := booking.NewHoldManager(repo, clk, booking.HoldOptions{DefaultTTL: cfg.HoldTTL, MaxTTL: cfg.HoldMaxTTL}, logger)
	coord := booking.NewCoordinator(repo, clk, logger)
	sweeper := booking.NewSweeper(repo, clk, logger)
	syncAgent := booking.NewSyncAgent(repo, channelClient, clk, syncOpts, logger)

	var notifier handler.ConfirmNotifier
	var direct *service.DirectSync
	if cfg.QueueEnabled {
		notifier = service.NewPublisher(cfg.RabbitURL, logger)
		consumer := queue.NewSyncConsumer(cfg.RabbitURL, syncAgent, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rabbitmq: consumer stopped", "err", err)
			}
		}()
	} else {
		direct = service.NewDirectSync(syncAgent, cfg.ChannelTimeout+5*time.Second, logger)
		notifier = direct
	}

	sched := scheduler.New(scheduler.Config{
		SweepSchedule:  cfg.SweepSchedule,
		ResyncSchedule: cfg.ResyncSchedule,
		ResyncAfter:    cfg.ResyncAfter,
		ResyncBatch:    cfg.ResyncBatch,
	}, sweeper, syncAgent, logger)
	if err := sched.Start(); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	e := router.New(logger, cfg.CORSAllowedOrigins)
	router.RegisterRoutes(e, db)
	router.RegisterHolds(e, handler.NewHoldHandler(holds), middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger))
	router.RegisterPayments(e, handler.NewPaymentHandler(coord, notifier, cfg.WebhookSecret, cfg.WebhookTolerance, clk, logger))
	router.RegisterOps(e, handler.NewOpsHandler(coord, syncAgent, sweeper, notifier, logger), cfg.JWTSecret, cfg.CronSecretHash)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("server: listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver, "queue", cfg.QueueEnabled)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: shutdown", "err", err)
	}
	sched.Stop()
	if direct != nil {
		direct.Wait()
	}
}
