package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"researchhub/internal/handler"
	"researchhub/internal/httpserver"
	"researchhub/internal/notify"
	"researchhub/internal/progress"
	"researchhub/internal/realtime"
	"researchhub/internal/store/postgres"
	"researchhub/internal/workflow"
	"researchhub/pkg/config"
	"researchhub/pkg/db"
	"researchhub/pkg/logger"
	"researchhub/pkg/mq"
	redisclient "researchhub/pkg/redis"
)

func main() {
	cfg, err := config.Load(config.Env(), "config")
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting api service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Database connection established")

	// Redis
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Stores and services
	database := postgres.NewDB(pool, log)

	bus := realtime.NewBus(nil, publisher, cfg.Realtime.BaseURL, log)
	dispatcher := notify.NewDispatcher(database.Notifications(), bus.Async(), rdb, log)
	engine := progress.NewEngine(log)
	workflowSvc := workflow.NewService(database, engine, dispatcher, bus.Async(), log)

	// Handlers
	requestHandler := handler.NewRequestHandler(workflowSvc, log)
	taskHandler := handler.NewTaskHandler(workflowSvc, log)
	notificationHandler := handler.NewNotificationHandler(dispatcher, log)

	router := httpserver.NewRouter(
		requestHandler,
		taskHandler,
		notificationHandler,
		cfg.JWT.Secret,
		pool,
		publisher,
		log,
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("api service is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down api service gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("api service shutdown complete")
}
