package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ruuviair/internal/config"
	"ruuviair/internal/consumer"
	"ruuviair/internal/httpapi"
	"ruuviair/internal/logger"
	"ruuviair/internal/mqttclient"
	"ruuviair/internal/pipeline"
	"ruuviair/internal/realtime"
	"ruuviair/internal/store"
	"ruuviair/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format, "ruuviair")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting ruuviair ingestion service",
		zap.String("db_path", cfg.Database.Path),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.Duration("min_interval", cfg.Ingest.MinInterval),
	)

	st, err := store.Open(cfg.Database.Path, zlog)
	if err != nil {
		zlog.Fatal("Failed to open measurement store", zap.Error(err))
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := tracker.New(cfg.Ingest.OfflineAfter, zlog)

	var publisher pipeline.LatestPublisher
	if cfg.Redis.Enabled {
		redisClient, err := realtime.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zlog.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		publisher = realtime.New(redisClient)
	}

	pipe := pipeline.New(st, tr, publisher, cfg.Ingest.MinInterval, zlog)

	// Unique client ID so a restarting instance never collides with its
	// not-yet-expired session on the broker.
	mqttClient, err := mqttclient.NewClient(mqttclient.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, uuid.NewString()[:8]),
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to MQTT broker", zap.Error(err))
	}
	defer mqttClient.Disconnect()

	cons := consumer.New(mqttClient, pipe, cfg.MQTT.Topic, cfg.MQTT.QoS, zlog)
	go func() {
		if err := cons.Start(ctx); err != nil {
			zlog.Fatal("Failed to start consumer", zap.Error(err))
		}
	}()

	router := httpapi.NewRouter(zlog)
	router.RegisterRoutes(httpapi.NewHandler(st, tr, pipe, zlog))
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}
	go func() {
		zlog.Info("HTTP API listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go retentionLoop(ctx, st, cfg, zlog)
	go statusLoop(ctx, pipe, zlog)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	if err := cons.Stop(); err != nil {
		zlog.Error("Error stopping consumer", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zlog.Info("Service stopped")
}

// retentionLoop deletes expired rows on a fixed interval. The delete is
// batched and context-aware, so shutdown never waits on it.
func retentionLoop(ctx context.Context, st *store.Store, cfg *config.Config, zlog *zap.Logger) {
	ticker := time.NewTicker(cfg.Retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := st.DeleteOlderThan(ctx, cfg.Retention.MaxAge)
			if err != nil && ctx.Err() == nil {
				zlog.Error("Retention cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				zlog.Info("Retention cleanup completed",
					zap.Int64("deleted", deleted),
					zap.Duration("max_age", cfg.Retention.MaxAge),
				)
			}
		}
	}
}

// statusLoop logs ingest counters once a minute.
func statusLoop(ctx context.Context, pipe *pipeline.Pipeline, zlog *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := pipe.Stats()
			zlog.Info("Ingest status",
				zap.Int64("advertisements", s.Advertisements),
				zap.Int64("accepted", s.Accepted),
				zap.Int64("duplicates", s.Duplicates),
				zap.Int64("too_soon", s.TooSoon),
				zap.Int64("decode_errors", s.DecodeErrors),
				zap.Int64("store_errors", s.StoreErrors),
			)
		}
	}
}
