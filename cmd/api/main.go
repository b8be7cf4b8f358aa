package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"editdesk/api/internal/app"
	"editdesk/api/internal/config"
	"editdesk/api/internal/export"
	"editdesk/api/internal/handshake"
	"editdesk/api/internal/logging"
	"editdesk/api/internal/search"
	"editdesk/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.IsDevelopment())
	ctx := context.Background()

	var dataStore app.DataStore
	if cfg.UsesMemoryStore() {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		dataStore = store.NewMemoryStore()
	} else {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		dataStore = store.NewPostgresStore(db)
	}

	var bus handshake.Bus
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisBus, err := handshake.NewRedisBus(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		log.Info().Msg("using redis for cross-window messages")
		bus = redisBus
	} else {
		bus = handshake.NewMemoryBus()
	}
	defer bus.Close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, search.NewFallback(dataStore))
	defer searchService.Close()
	go searchService.ReindexAll(ctx)

	var objects *export.ObjectStore
	if cfg.ObjectStorageConfigured() {
		var err error
		objects, err = export.NewObjectStore(ctx, export.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("object storage unavailable; report publishing disabled")
			objects = nil
		}
	}
	exportService := export.NewService(dataStore, objects)

	service := app.New(cfg, dataStore, searchService, exportService, bus)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Message streams never go idle; end them when shutdown starts.
	streamCtx, stopStreams := context.WithCancel(context.Background())
	server.BaseContext = func(net.Listener) context.Context { return streamCtx }
	server.RegisterOnShutdown(stopStreams)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("editdesk API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
