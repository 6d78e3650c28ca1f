package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studieplekken/internal/config"
	"studieplekken/internal/db"
	"studieplekken/internal/logger"
	"studieplekken/internal/notify"
	"studieplekken/internal/reservation"
	"studieplekken/internal/server"
	"studieplekken/internal/user"
)

// @title Studieplekken API
// @version 1.0
// @description API for reserving study seats at university locations.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting Studieplekken application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	mailService := notify.New(
		cfg.MailFrom,
		cfg.MailFromName,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.RedisAddr,
	)
	defer mailService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mailService.Start(ctx)
	logger.Info("Mail worker started")

	reservationRepo := reservation.NewRepository(database)
	userRepo := user.NewRepository(database)

	poolQueue := reservation.NewQueue(cfg.RedisAddr)
	defer poolQueue.Close()

	reservationService := reservation.NewService(
		reservationRepo, userRepo, poolQueue, mailService, cfg.PoolStartGraceMinutes)

	processor := reservation.NewProcessor(
		poolQueue, reservationRepo, userRepo, mailService, cfg.PoolStartGraceMinutes)
	go processor.Start(ctx)

	srv := server.New(database, cfg, mailService, reservationService)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
