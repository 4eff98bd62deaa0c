package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcapi "toolrent-backend/internal/api/grpc"
	httpapi "toolrent-backend/internal/api/http"
	"toolrent-backend/internal/app"
	"toolrent-backend/internal/config"
	"toolrent-backend/internal/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Toolrent Booking Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "grpc_address", cfg.GetGRPCAddress())
	logger.Info("Store configuration", "type", cfg.Store.Type, "seed_file", cfg.Store.SeedFile)
	logger.Info("Booking configuration",
		"late_fee_per_day", cfg.Booking.LateFeePerDay,
		"max_batch_size", cfg.Booking.MaxBatchSize,
		"start_grace_minutes", cfg.Booking.StartGraceMinutes,
		"return_grace_minutes", cfg.Booking.ReturnGraceMinutes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	// HTTP booking API
	handler := httpapi.NewHandler(a.Availability, a.Reservations, a.Loans, a.Clock)
	router := httpapi.NewRouter(handler, a.Tokens, httpapi.RouterOptions{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		IdempotencyTTL:    time.Duration(cfg.Idempotency.TTLMinutes) * time.Minute,
	})
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// gRPC ops server: health and reflection
	var ops *grpcapi.OpsServer
	if addr := cfg.GetGRPCAddress(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", addr)
			log.Fatalf("Failed to listen: %v", err)
		}
		ops = grpcapi.NewOpsServer(a.Tokens)
		go ops.WatchDependencies(ctx, 15*time.Second, a.Ping)
		go func() {
			logger.Info("gRPC ops server listening", "address", addr)
			if err := ops.Server.Serve(lis); err != nil {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		logger.Error("Server error", "error", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if ops != nil {
		ops.Shutdown()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
