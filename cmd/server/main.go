package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"endurancy/internal/api"
	"endurancy/internal/api/handlers"
	"endurancy/internal/api/middleware"
	"endurancy/internal/app"
	"endurancy/internal/pkg/logger"
	"endurancy/internal/platform/auth"
	"endurancy/internal/platform/config"
	"endurancy/internal/platform/repositories"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if closer := logger.Init(cfg.Logging); closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	tokenSvc := auth.NewTokenService(cfg.JWT)
	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimit.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid rate limit configuration")
	}
	defer rateLimiter.Stop()

	router := api.NewRouter(&api.Dependencies{
		PaymentHandler:         handlers.NewPaymentHandler(a.Payments),
		EntitlementHandler:     handlers.NewEntitlementHandler(a.Entitlements, a.Audit),
		AuditHandler:           handlers.NewAuditHandler(a.Audit),
		HealthHandler:          handlers.NewHealthHandler(a.DB, a.Redis),
		MetricsHandler:         handlers.NewMetricsHandler(a.Registry),
		AuthMiddleware:         middleware.NewAuthMiddleware(tokenSvc),
		OrganizationMiddleware: middleware.NewOrganizationMiddleware(repositories.NewOrganizationRepository(a.DB)),
		RateLimiter:            rateLimiter,
		RateLimits:             cfg.RateLimit,
		Metrics:                a.Metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
