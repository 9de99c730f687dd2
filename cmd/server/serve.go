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

	"github.com/ashureev/nero-labs/internal/api"
	"github.com/ashureev/nero-labs/internal/auth"
	"github.com/ashureev/nero-labs/internal/chain"
	"github.com/ashureev/nero-labs/internal/chat"
	"github.com/ashureev/nero-labs/internal/config"
	"github.com/ashureev/nero-labs/internal/controller"
	"github.com/ashureev/nero-labs/internal/device"
	"github.com/ashureev/nero-labs/internal/identity"
	"github.com/ashureev/nero-labs/internal/middleware"
	"github.com/ashureev/nero-labs/internal/notify"
	"github.com/ashureev/nero-labs/internal/platform"
	"github.com/ashureev/nero-labs/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

//nolint:gocyclo // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "payment_mode", cfg.Chain.PaymentMode)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	platforms := platform.NewRegistry()
	if cfg.PlatformsFile != "" {
		platforms, err = platform.Load(cfg.PlatformsFile)
		if err != nil {
			return fmt.Errorf("load platforms: %w", err)
		}
		slog.Info("Platforms loaded", "file", cfg.PlatformsFile, "count", len(platforms.List()))
	}

	var payments chain.PaymentExecutor = &chain.SimulatedExecutor{}
	if cfg.Chain.PaymentMode == config.PaymentModeX402 {
		payments = chain.NewX402Executor(cfg.Chain.X402Endpoint, cfg.Chain.RequestTimeout)
		slog.Info("Using x402 payment rail", "endpoint", cfg.Chain.X402Endpoint)
	}

	chatCfg := chat.LoadConfigFromEnv()
	backend, err := chat.NewBackend(cmd.Context(), chatCfg)
	if err != nil {
		slog.Warn("Chat backend unavailable, answering offline", "error", err)
		backend = chat.Offline{}
	}
	if closer, ok := backend.(*chat.AgentClient); ok {
		defer closer.Close()
	}
	chatSvc := chat.NewService(backend, chatCfg)
	slog.Info("Chat backend ready", "backend", chatSvc.Backend())

	codes := &auth.LogCodeSender{Echo: cfg.Session.EchoCodes}
	secret := []byte(cfg.Session.OAuthSecret)
	hub := notify.NewHub()
	defer hub.Close()

	devices := device.NewRegistry(device.Config{
		Session: auth.Options{
			InitDelay:    cfg.Session.InitDelay,
			EmailLatency: cfg.Session.EmailLatency,
			Store:        repo,
			Codes:        codes,
			OAuth: &auth.SimulatedOAuth{
				Secret:      secret,
				Latency:     cfg.Session.OAuthLatency,
				FailureRate: cfg.Session.OAuthFailureRate,
			},
			Verifier: auth.NewTokenVerifier(secret),
		},
		Controller: controller.Deps{
			Store:     repo,
			Platforms: platforms,
			Minter:    &chain.SimulatedMinter{Latency: cfg.Chain.MintLatency},
			Payments:  payments,
			Balances:  chain.NewRPCBalanceChecker(cfg.Chain.MovementRPC, cfg.Chain.RequestTimeout),
			Recipient: cfg.Chain.Treasury,
			TopUpMin:  cfg.Wallet.TopUpMin,
			TopUpMax:  cfg.Wallet.TopUpMax,
		},
		Notifiers: hub,
	})
	defer devices.Close()

	handler := api.NewHandler(api.Deps{
		Devices:    devices,
		Platforms:  platforms,
		Chat:       chatSvc,
		Codes:      codes,
		AdminToken: cfg.AdminToken,
	})
	healthHandler := api.NewHealthHandler(repo, chatSvc.Backend())
	wsHandler := notify.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		handler.RegisterRoutes(r)
		r.Get("/ws/events", wsHandler.ServeHTTP)
	})

	// WebSocket streams need no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeperDone := device.StartSweeper(ctx, devices, repo, device.SweepConfig{
		Interval:   cfg.Devices.SweepInterval,
		IdleTTL:    cfg.Devices.IdleTTL,
		SessionTTL: cfg.Devices.SessionTTL,
	})

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-sweeperDone
			return fmt.Errorf("server failed: %w", err)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-sweeperDone

	slog.Info("Server stopped successfully")
	return nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
