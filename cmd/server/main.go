package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/appgallery-cms/internal/api"
	"github.com/appgallery-cms/internal/config"
	"github.com/appgallery-cms/internal/repository"
	"github.com/appgallery-cms/internal/service"
	"github.com/appgallery-cms/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	log.Info().Msg("Starting app gallery server...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage tiers
	st, err := buildStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer st.Close()

	// Initialize repositories and services
	repos := repository.New(st.Tiered)
	services := service.NewServices(repos, st.Tiered, st.Blobs, cfg, log)

	// Start background reconciliation
	if err := services.Sync.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync processor")
	}

	// Initialize router
	router := api.NewRouter(services, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Strs("tiers", st.Tiered.Tiers()).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the scheduler, then give memory-only writes a last chance
	services.Sync.Stop()
	report := services.Sync.RunOnce(shutdownCtx)
	if report.Remaining > 0 {
		log.Warn().Strs("dirty", report.Dirty).Msg("Exiting with collections held only in memory")
	}

	log.Info().Msg("Server exited gracefully")
}
