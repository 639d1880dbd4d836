package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"jobboard/internal/config"
	"jobboard/internal/database"
	"jobboard/internal/mail"
	"jobboard/internal/metrics"
	"jobboard/internal/tasks"
	"jobboard/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
	})

	mailer := mail.NewMailer(cfg.SMTP)
	mailHandler := worker.NewMailTaskHandler(db, mailer, redisClient, logger, cfg.API.SiteURL)
	sweepHandler := worker.NewSweepTaskHandler(db, cfg.Sweep.GraceWindow, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.HandleFunc(tasks.TypeVerificationEmail, mailHandler.HandleVerificationEmail)
	mux.HandleFunc(tasks.TypeApplicationNotify, mailHandler.HandleApplicationNotify)
	mux.Handle(tasks.TypeAccountSweep, sweepHandler)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	interval := "@every " + cfg.Sweep.Interval.String()
	if _, err := scheduler.Register(interval, tasks.NewAccountSweepTask()); err != nil {
		log.Fatalf("register sweep schedule: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer scheduler.Shutdown()

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
