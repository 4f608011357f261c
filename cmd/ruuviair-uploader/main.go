package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ruuviair/internal/config"
	"ruuviair/internal/logger"
	"ruuviair/internal/store"
	"ruuviair/internal/uploader"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format, "ruuviair-uploader")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.Uploader.APIKey == "" || cfg.Uploader.TargetMAC == "" {
		zlog.Fatal("UPLOAD_API_KEY and UPLOAD_TARGET_MAC must be set")
	}

	st, err := store.Open(cfg.Database.Path, zlog)
	if err != nil {
		zlog.Fatal("Failed to open measurement store", zap.Error(err))
	}
	defer st.Close()

	up := uploader.New(st, uploader.Options{
		APIKey:    cfg.Uploader.APIKey,
		BaseURL:   cfg.Uploader.BaseURL,
		TargetMAC: cfg.Uploader.TargetMAC,
		Interval:  cfg.Uploader.Interval,
	}, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	zlog.Info("Starting uploader",
		zap.String("target", cfg.Uploader.TargetMAC),
		zap.Duration("interval", cfg.Uploader.Interval),
	)

	if err := up.Run(ctx); err != nil && err != context.Canceled {
		zlog.Fatal("Uploader failed", zap.Error(err))
	}
	zlog.Info("Uploader stopped")
}
