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

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/Dosada05/arena-tournaments/battles"
	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/config"
	"github.com/Dosada05/arena-tournaments/db"
	"github.com/Dosada05/arena-tournaments/handlers"
	"github.com/Dosada05/arena-tournaments/repositories"
	api "github.com/Dosada05/arena-tournaments/routes"
	"github.com/Dosada05/arena-tournaments/services"
	"github.com/Dosada05/arena-tournaments/tourney"
	"github.com/Dosada05/arena-tournaments/users"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// The tournament archive is optional: without a database finished
	// tournaments are announced and dropped.
	var archiveService *services.ArchiveService
	var sink tourney.ResultSink
	if cfg.DatabaseURL != "" {
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

		recordRepo := repositories.NewPostgresRecordRepository(dbConn)
		archiveService = services.NewArchiveService(recordRepo, logger)
		sink = archiveService
	} else {
		logger.Info("DATABASE_URL not set, tournament archive disabled")
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("websocket hub started")

	registry := users.NewRegistry()
	battleService := battles.NewSim()

	manager := tourney.NewManager(wsHub, battleService, registry, sink, logger, tourney.DefaultOptions())
	logger.Info("tournament manager initialized")

	authHandler := handlers.NewAuthHandler(registry, cfg.JWTSecretKey, cfg.ModPasswordHash)
	tournamentHandler := handlers.NewTournamentHandler(manager, registry, archiveService)
	battleHandler := handlers.NewBattleHandler(battleService, registry)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, manager, registry, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.JWTSecretKey, authHandler, tournamentHandler, battleHandler, webSocketHandler)
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

		// Running tournaments are force ended so their results land in the
		// archive before the process exits.
		for _, roomID := range manager.Rooms() {
			if err := manager.Delete(roomID); err != nil {
				logger.Error("force ending tournament on shutdown failed", slog.String("room", roomID), slog.Any("error", err))
			}
		}

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
