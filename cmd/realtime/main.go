package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"researchhub/contracts/events"
	"researchhub/internal/httpserver"
	"researchhub/internal/mqhandler"
	"researchhub/internal/realtime"
	"researchhub/pkg/config"
	"researchhub/pkg/logger"
	"researchhub/pkg/mq"
	redisclient "researchhub/pkg/redis"
	"researchhub/pkg/util"
)

func main() {
	cfg, err := config.Load(config.Env(), "config")
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting realtime service...",
		zap.String("mq_url", cfg.MQ.URL),
	)

	// Redis, for MQ redelivery dedup
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)

	// Hub and HTTP surface
	hub := realtime.NewHub(log)
	server := realtime.NewServer(hub, log)

	// MQ consumer for events published by the API service
	log.Info("Init consumer: realtime.push.q")
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "realtime.push.q", events.RoutingKey, log)
	if err != nil {
		log.Fatal("Realtime consumer init failed", zap.Error(err))
	}
	pushHandler := mqhandler.NewRealtimePushHandler(hub, deduper, log)
	consumer.SetHandler(pushHandler.Handle)

	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Realtime consumer crashed", zap.Error(err))
		}
	}()
	defer consumer.Close()

	router := httpserver.NewRealtimeRouter(server, hub, cfg.JWT.Secret, log)

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

	log.Info("realtime service is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down realtime service gracefully...")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("realtime service shutdown complete")
}
