package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/config"
	"github.com/Dosada05/bracket-engine/db"
	"github.com/Dosada05/bracket-engine/handlers"
	"github.com/Dosada05/bracket-engine/repositories"
	"github.com/Dosada05/bracket-engine/routes"
	"github.com/Dosada05/bracket-engine/services"
	"github.com/Dosada05/bracket-engine/storage"
	_ "github.com/lib/pq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Duration("auto_confirm_window", cfg.AutoConfirmWindow),
	)

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	var uploader storage.FileUploader
	if cfg.R2Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage not configured, dispute evidence uploads disabled")
	}

	wsHub := brackets.NewHub()
	go wsHub.Run()

	bracketRepo := repositories.NewPostgresBracketRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	submissionRepo := repositories.NewPostgresSubmissionRepository(dbConn)
	disputeRepo := repositories.NewPostgresDisputeRepository(dbConn)

	publisher := services.NewHubPublisher(wsHub)
	engine := services.NewAdvancementEngine(bracketRepo, matchRepo)
	scheduler := services.NewTimerScheduler()

	bracketService := services.NewBracketService(dbConn, bracketRepo, matchRepo, engine, publisher, logger)
	matchService := services.NewMatchService(dbConn, matchRepo, bracketRepo, engine, publisher, logger)
	submissionService := services.NewSubmissionService(
		dbConn, submissionRepo, matchRepo, bracketRepo, engine, scheduler, publisher, logger, cfg.AutoConfirmWindow,
	)
	disputeService := services.NewDisputeService(
		dbConn, disputeRepo, submissionRepo, matchRepo, bracketRepo, engine, submissionService, scheduler, uploader, publisher, logger,
	)
	logger.Info("services initialized")

	// Background sweeper: expired check-in windows and auto-confirm
	// deadlines whose in-process timers were lost across a restart.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		logger.Info("deadline sweeper started", slog.Duration("interval", cfg.SweepInterval))

		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepInterval)
			if n, err := matchService.SweepCheckInDeadlines(ctx); err != nil {
				logger.Error("check-in sweep failed", slog.Any("error", err))
			} else if n > 0 {
				logger.Info("check-in deadlines swept", slog.Int("closed", n))
			}
			if n, err := submissionService.SweepDueAutoConfirms(ctx); err != nil {
				logger.Error("auto-confirm sweep failed", slog.Any("error", err))
			} else if n > 0 {
				logger.Info("overdue submissions auto-confirmed", slog.Int("confirmed", n))
			}
			cancel()
		}
	}()

	router := routes.InitRoutes(routes.Handlers{
		Bracket:    handlers.NewBracketHandler(bracketService),
		Match:      handlers.NewMatchHandler(matchService, cfg.CheckInWindow),
		Submission: handlers.NewSubmissionHandler(submissionService),
		Dispute:    handlers.NewDisputeHandler(disputeService),
		WebSocket:  handlers.NewWebSocketHandler(wsHub, logger),
	})
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
