package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabdocs/internal/api"
	"collabdocs/internal/collab"
	"collabdocs/internal/config"
	"collabdocs/internal/db"
	"collabdocs/internal/identity"
	"collabdocs/internal/logging"
	"collabdocs/internal/repository"
	"collabdocs/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	log.Info().Msg("starting collabdocs server")

	// Tracing first so everything downstream is traced.
	jaegerShutdown, err := telemetry.InitJaeger("collabdocs", cfg.JaegerEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("jaeger init failed, continuing without tracing")
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("jaeger shutdown failed")
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	docRepo := repository.NewDocumentRepository(database.DB)
	userRepo := repository.NewUserRepository(database.DB)

	identityService := identity.NewService(userRepo, cfg.JWTSecret, cfg.TokenTTL)

	saver := collab.NewSaver(docRepo, cfg.SaveDebounce, log)
	hub := collab.NewHub(docRepo, saver, log)
	wsHandler := collab.NewHandler(hub, identityService, log)

	handler := api.NewHandler(docRepo, identityService, userRepo, hub, log)
	router := api.SetupRoutes(handler, wsHandler, identityService, log)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}

	// Disconnect live sessions, then flush any pending saves they left behind.
	hub.Shutdown()
	saver.Close()

	log.Info().Msg("shutdown complete")
}
