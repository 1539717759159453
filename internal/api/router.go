// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/railnav/homedoor/internal/auth"
	"github.com/railnav/homedoor/internal/authz"
	"github.com/railnav/homedoor/internal/models"
)

// Router assembles the HTTP surface: middleware stack, authentication, and
// the authorization checkpoint in front of every protected route.
type Router struct {
	handler       *Handler
	authMW        *auth.Middleware
	authzMW       *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router from its collaborators.
func NewRouter(handler *Handler, authMW *auth.Middleware, authzMW *authz.Middleware, chiMW *ChiMiddleware) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		authMW:        authMW,
		authzMW:       authzMW,
		chiMiddleware: chiMW,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(Metrics())

	r.Get("/healthz", router.handler.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Login sits outside the authenticated stack with strict rate limiting.
	r.With(router.chiMiddleware.RateLimitLogin()).
		Post("/api/v1/auth/login", router.handler.Login)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(router.authMW.Authenticate)

		// Identity and check endpoints: any request may ask, the decision
		// payload carries the answer.
		r.Get("/me", router.handler.Me)
		r.Post("/authz/check", router.handler.Check)

		// Catalog endpoints require the basic read permission.
		r.Group(func(r chi.Router) {
			r.Use(router.authzMW.RequirePermission(models.PermViewContent))
			r.Get("/authz/roles", router.handler.Roles)
			r.Get("/authz/permissions", router.handler.Permissions)
		})

		// Role management requires manage_users. Reading one's own
		// assignment is allowed; the checkpoint inside GetUserRoleInfo
		// handles that distinction, so GET is not gated here.
		r.Get("/users/{userID}/role", router.handler.GetUserRole)

		r.Group(func(r chi.Router) {
			r.Use(router.authzMW.RequirePermission(models.PermManageUsers))
			r.Put("/users/{userID}/role", router.handler.SetUserRole)
			r.Delete("/users/{userID}/role", router.handler.DeleteUserRole)
			r.Get("/users/roles", router.handler.ListUserRoles)
			r.Get("/authz/audit", router.handler.RoleAuditLog)
			r.Get("/authz/stats", router.handler.RoleStats)
		})
	})

	return r
}
