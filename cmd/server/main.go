package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"spacewh/mis/internal/api"
	"spacewh/mis/internal/common"
	"spacewh/mis/internal/config"
	"spacewh/mis/internal/db"
	"spacewh/mis/internal/gateway"
	"spacewh/mis/internal/jobs"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/routes"
)

const approvalLockTTL = 30 * time.Second

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("SpaceWH membership service starting up",
		"environment", cfg.AppEnv,
		"store_driver", cfg.StoreDriver,
		"timestamp", time.Now().Format(time.RFC3339),
	)

	if err := run(cfg); err != nil {
		logging.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logging.Info("Server stopped")
}

func run(cfg *config.Config) error {
	metricsReg := metrics.NewMetricsRegistry()

	store, err := db.OpenRecordStore(cfg, metricsReg)
	if err != nil {
		return err
	}
	logging.Info("Record store ready", "provider", store.GetProviderType())

	deps := api.InitDependencies(store, buildLocker(cfg), metricsReg)

	origins, err := cfg.Origins()
	if err != nil {
		return err
	}

	gw := gateway.New(deps.Services.Validator, deps.Services.Responder, metricsReg, gateway.Config{
		MaxSessions:    cfg.WSMaxConnections,
		PingInterval:   cfg.WSPingInterval,
		OriginPatterns: gateway.OriginPatterns(origins),
	})

	router := routes.RegisterRoutes(deps, gw, routes.Options{
		AdminUsername:     cfg.AdminUsername,
		AdminPassword:     cfg.AdminPassword,
		AllowedOrigins:    origins,
		RequestsPerMinute: cfg.RateLimitRequestsPerMinute,
		RateLimitBurst:    cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("Server starting", "addr", srv.Addr, "environment", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		jobs.InitializeJobs(gctx, deps.Repo.Invitations, deps.Repo.Onboarding, deps.Repo.Memberships, cfg.ReconcileInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down", "timeout", cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by the server.
		gw.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildLocker shares approval locks through Redis when configured, so
// replicas serialize approvals of the same invitation.
func buildLocker(cfg *config.Config) common.KeyedLocker {
	if cfg.RedisAddr == "" {
		logging.Info("REDIS_ADDR not set, using in-process approval locks")
		return common.NewMemoryLocker()
	}
	client := common.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	return common.NewRedisLocker(client, "mis:approve:", approvalLockTTL)
}
