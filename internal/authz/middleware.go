// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/railnav/homedoor/internal/auth"
	"github.com/railnav/homedoor/internal/logging"
	"github.com/railnav/homedoor/internal/models"
)

// Middleware provides the enforcement wrappers that gate HTTP handlers
// through the checkpoint. The wrapped handler only runs on a GRANTED
// decision; a denial renders a JSON payload carrying the actor's actual
// role, what was required, and a path back.
type Middleware struct {
	service  *Service
	enforcer *Enforcer
}

// NewMiddleware creates the enforcement middleware.
func NewMiddleware(service *Service, enforcer *Enforcer) *Middleware {
	return &Middleware{
		service:  service,
		enforcer: enforcer,
	}
}

// denialPayload is the body of every 403 response.
type denialPayload struct {
	Error    string   `json:"error"`
	Decision Decision `json:"decision"`
	BackPath string   `json:"back_path"`
}

// RequirePermission gates a route on a permission check.
func (m *Middleware) RequirePermission(permission models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := auth.GetAuthSubject(r.Context())

			decision := m.service.Authorize(r.Context(), subject, permission)
			if !decision.Allowed {
				writeDenial(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireMinimumRole gates a route on a seniority check.
func (m *Middleware) RequireMinimumRole(required models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := auth.GetAuthSubject(r.Context())

			decision := m.service.AuthorizeMinimumRole(r.Context(), subject, required)
			if !decision.Allowed {
				writeDenial(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthorizeRequest gates routes through the route-level policy, mapping the
// HTTP method to an action and the path to the object. Used for whole
// subtrees where per-route permission wiring would be repetitive.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := auth.GetAuthSubject(r.Context())

		decision := m.service.AuthorizeRoute(r.Context(), subject, m.enforcer, r.URL.Path, methodToAction(r.Method))
		if !decision.Allowed {
			writeDenial(w, r, decision)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// methodToAction maps HTTP methods to route policy actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// writeDenial renders the 403 response. Unauthenticated subjects get 401 so
// clients know to log in rather than that they lack a role.
func writeDenial(w http.ResponseWriter, r *http.Request, decision Decision) {
	status := http.StatusForbidden
	if decision.Reason == ReasonUnauthenticated {
		status = http.StatusUnauthorized
	}

	payload := denialPayload{
		Error:    "access denied",
		Decision: decision,
		BackPath: "/",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode denial response")
	}
}
