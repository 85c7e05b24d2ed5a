package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	"inbox/internal/api"
	"inbox/internal/auth"
	"inbox/internal/blob"
	"inbox/internal/config"
	"inbox/internal/db"
	"inbox/internal/messaging"
	"inbox/internal/throttle"
	"inbox/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting server", "name", cfg.Server.Name)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	var (
		blobStore   messaging.BlobStore
		localBlobs  *blob.Service
		storageKind = cfg.Storage.Driver
	)
	switch storageKind {
	case config.StorageS3:
		store, err := blob.NewS3Store(backgroundCtx, blob.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKey,
			SecretAccessKey: cfg.Storage.S3.SecretKey,
			PublicURL:       cfg.Storage.S3.PublicURL,
			Prefix:          cfg.Storage.S3.Prefix,
		}, cfg.Storage.MaxUploadBytes)
		if err != nil {
			slog.Error("failed to initialize object storage", "error", err)
			os.Exit(1)
		}
		blobStore = store
		slog.Info("object storage initialized", "bucket", cfg.Storage.S3.Bucket, "upload_max_bytes", cfg.Storage.MaxUploadBytes)
	default:
		localBlobs, err = blob.NewService(cfg.Storage.BlobRoot, cfg.Server.BaseURL, cfg.Storage.MaxUploadBytes)
		if err != nil {
			slog.Error("failed to initialize blob storage", "error", err)
			os.Exit(1)
		}
		blobStore = localBlobs
		slog.Info("blob storage initialized", "root", cfg.Storage.BlobRoot, "upload_max_bytes", cfg.Storage.MaxUploadBytes)

		blobCleanupService := blob.NewCleanupService(database.Queries().Messages, localBlobs)
		go blobCleanupService.Start(backgroundCtx)
	}

	var sendCounter httprate.LimitCounter
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(backgroundCtx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			slog.Error("failed to reach redis", "error", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		sendCounter = throttle.NewRedisCounter(redisClient, "inbox:send:")
		slog.Info("send quota backed by redis", "addr", cfg.Redis.Addr)
	}

	hub := ws.NewHub()
	go hub.Run()

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	service := messaging.NewService(database, messaging.Deps{
		Blobs:    blobStore,
		Notifier: hub,
	}, messaging.Config{
		MaxContentLength:   cfg.Messaging.MaxContentLength,
		MaxAttachmentBytes: cfg.Messaging.MaxAttachmentBytes,
	})

	server, err := api.NewServer(cfg, api.ServerDeps{
		DB:          database,
		Messaging:   service,
		JWT:         jwtService,
		Hub:         hub,
		Blobs:       localBlobs,
		SendCounter: sendCounter,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL, "storage", storageKind)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	backgroundCancel()

	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
