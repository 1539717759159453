// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the Homedoor authorization service.
//
// Homedoor tracks platform screen door installation across Japanese railway
// stations. This service owns the role-based authorization subsystem: the
// role hierarchy and permission catalog, the server-side checkpoint every
// protected operation passes through, role management with a full audit
// trail, and the HTTP API in front of it all.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, config.yaml, environment)
//  2. Logging (zerolog)
//  3. Database (DuckDB profile store)
//  4. Authorization (registry, enforcer, checkpoint service)
//  5. Authentication (none, basic, or jwt)
//  6. HTTP API (chi router)
//  7. Supervisor tree (suture: HTTP server + role expiry sweeper)
//
// The server shuts down gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/railnav/homedoor/internal/api"
	"github.com/railnav/homedoor/internal/auth"
	"github.com/railnav/homedoor/internal/authz"
	"github.com/railnav/homedoor/internal/config"
	"github.com/railnav/homedoor/internal/database"
	"github.com/railnav/homedoor/internal/logging"
	"github.com/railnav/homedoor/internal/models"
	"github.com/railnav/homedoor/internal/supervisor"
	"github.com/railnav/homedoor/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("auth_mode", cfg.Security.AuthMode).
		Str("listen", cfg.Server.Addr()).
		Msg("Starting Homedoor authorization service")

	db, err := database.New(database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	registry := authz.NewRegistry()

	enforcer, err := authz.NewEnforcer(registry, &authz.EnforcerConfig{
		DefaultRole:  models.Role(cfg.Authz.DefaultRole),
		CacheEnabled: cfg.Authz.CacheEnabled,
		CacheTTL:     cfg.Authz.CacheTTL,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build enforcer")
	}
	defer enforcer.Close()

	service, err := authz.NewService(registry, db, &authz.ServiceConfig{
		DefaultRole:     models.Role(cfg.Authz.DefaultRole),
		CacheEnabled:    cfg.Authz.CacheEnabled,
		CacheTTL:        cfg.Authz.CacheTTL,
		AuditEnabled:    cfg.Authz.AuditEnabled,
		AuditSampleRate: cfg.Authz.AuditSampleRate,
		AuditBufferSize: cfg.Authz.AuditBufferSize,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build authorization service")
	}
	defer service.Close()

	// Without an account holding manage_users nobody can grant the first
	// role, so the configured administrator is promoted before serving.
	if cfg.Security.AuthMode != "none" {
		if err := service.BootstrapAdmin(context.Background(), cfg.Security.AdminUsername, cfg.Security.AdminUsername); err != nil {
			logging.Fatal().Err(err).Msg("Failed to bootstrap administrator role")
		}
	}

	router := buildAPI(cfg, db, service, enforcer)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddMaintenanceService(services.NewRoleExpiryService(db, service, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	if err := <-errCh; err != nil && err != context.Canceled {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		os.Exit(1)
	}

	logging.Info().Msg("Shutdown complete")
}

// buildAPI assembles the authentication stack, API handler, and router.
func buildAPI(cfg *config.Config, db *database.DB, service *authz.Service, enforcer *authz.Enforcer) *api.Router {
	mode, err := auth.ParseAuthMode(cfg.Security.AuthMode)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid auth mode")
	}

	var jwtManager *auth.JWTManager
	var basicManager *auth.BasicAuthManager

	if mode != auth.AuthModeNone {
		basicManager, err = auth.NewBasicAuthManager(cfg.Security.AdminUsername, cfg.Security.AdminPassword)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize basic auth")
		}
	}
	if mode == auth.AuthModeJWT {
		jwtManager, err = auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
	}

	authMW := auth.NewMiddleware(auth.MiddlewareConfig{
		Mode:                 mode,
		JWTManager:           jwtManager,
		BasicAuthManager:     basicManager,
		BasicAuthDefaultRole: cfg.Security.BasicAuthDefaultRole,
		AdminUsername:        cfg.Security.AdminUsername,
	})
	authzMW := authz.NewMiddleware(service, enforcer)

	handler, err := api.NewHandler(api.HandlerConfig{
		Service:          service,
		Enforcer:         enforcer,
		Directory:        db,
		Pinger:           db,
		JWTManager:       jwtManager,
		BasicAuthManager: basicManager,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build API handler")
	}

	chiMW := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization"},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Server.RateLimitRequests,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})

	return api.NewRouter(handler, authMW, authzMW, chiMW)
}
