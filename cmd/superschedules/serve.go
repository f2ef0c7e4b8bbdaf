package superschedules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	database "github.com/SuperSchedules/superschedules/app/db"
	appLogger "github.com/SuperSchedules/superschedules/app/logger"
	"github.com/SuperSchedules/superschedules/app/tracer"
	"github.com/SuperSchedules/superschedules/internal/container"
	"github.com/SuperSchedules/superschedules/internal/router"
)

const serviceName = "superschedules"

var (
	skipMigrations bool
	skipWarmup     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the retrieval HTTP server",
	Long: `Start the HTTP server exposing tiered event retrieval and location lookups.

Migrations run first, the gazetteer and event corpus are loaded into memory
and the embedding provider is warmed up before the server accepts requests.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not run database migrations on startup")
	serveCmd.Flags().BoolVar(&skipWarmup, "skip-warmup", false, "build the embedding provider on first query instead of at startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := tracer.InitTracingAndMetrics(serviceName, cfg.Handlers.Prometheus.Port, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if !skipMigrations {
		dbConfig, err := database.NewDatabaseConfig(cfg, logger)
		if err != nil {
			return err
		}
		if err := database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", slog.Any("error", err))
		}
	}()

	if !c.WaitForDB(ctx) {
		return errors.New("database not ready after waiting")
	}
	if err := c.Load(ctx); err != nil {
		return err
	}
	if !skipWarmup {
		if err := c.Embeddings.Warmup(ctx); err != nil {
			// Queries still work through the fallback search.
			logger.Warn("Embedding warmup failed", slog.Any("error", err))
		}
	}
	go c.Corpus.RunRefresher(ctx, cfg.Corpus.RefreshInterval)

	mainRouter := router.SetupRouter(&router.Config{
		LocationsHandler: c.LocationsHandler,
		RAGHandler:       c.RAGHandler,
	})

	timeout := cfg.Server.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appLogger.StructuredLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5, "application/json"))
	r.Mount("/", mainRouter)

	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}
	logger.Info("Application shut down complete.")
	return nil
}
