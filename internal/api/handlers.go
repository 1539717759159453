// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"

	"github.com/railnav/homedoor/internal/auth"
	"github.com/railnav/homedoor/internal/authz"
	"github.com/railnav/homedoor/internal/logging"
	"github.com/railnav/homedoor/internal/models"
)

// validate is the shared request validator.
var validate = validator.New(validator.WithRequiredStructEnabled())

// RoleDirectory is the read side of the role store used by list, stats, and
// audit endpoints. The write side goes through the authorization checkpoint.
type RoleDirectory interface {
	ListUserRoles(ctx context.Context, activeOnly bool, roleFilter models.Role) ([]*models.UserRole, error)
	GetRoleStats(ctx context.Context) (*models.RoleStats, error)
	GetRoleAuditLog(ctx context.Context, userID string, limit, offset int) ([]*models.RoleAuditEntry, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the API endpoint implementations.
type Handler struct {
	service   *authz.Service
	enforcer  *authz.Enforcer
	directory RoleDirectory
	pinger    Pinger
	jwt       *auth.JWTManager
	basic     *auth.BasicAuthManager
}

// HandlerConfig holds Handler construction parameters.
type HandlerConfig struct {
	Service *authz.Service

	// Enforcer answers route checks: the CMS data layer consults the same
	// path bindings the route middleware enforces.
	Enforcer *authz.Enforcer

	Directory RoleDirectory
	Pinger    Pinger

	// JWTManager and BasicAuthManager enable the login endpoint. Both may
	// be nil when auth mode is none or basic-only.
	JWTManager       *auth.JWTManager
	BasicAuthManager *auth.BasicAuthManager
}

// NewHandler creates the API handler set.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("authorization service is required")
	}
	if cfg.Enforcer == nil {
		return nil, errors.New("route enforcer is required")
	}
	return &Handler{
		service:   cfg.Service,
		enforcer:  cfg.Enforcer,
		directory: cfg.Directory,
		pinger:    cfg.Pinger,
		jwt:       cfg.JWTManager,
		basic:     cfg.BasicAuthManager,
	}, nil
}

// decodeJSON decodes a request body, responding with 400 on failure.
// Returns false when an error response was already written.
func decodeJSON(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rw.BadRequest("invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed,
			"request validation failed", err.Error())
		return false
	}
	return true
}

// Healthz reports liveness, and store health when a pinger is configured.
//
// Method: GET
// Path: /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := map[string]string{"status": "ok"}
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "database unreachable")
			return
		}
		status["database"] = "ok"
	}

	rw.Success(status)
}

// Roles returns the role catalog: every role with its level, Japanese
// display name, and effective permission set.
//
// Method: GET
// Path: /api/v1/authz/roles
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	registry := h.service.Registry()

	type roleEntry struct {
		authz.RoleInfo
		Permissions []models.Permission `json:"permissions"`
	}

	roles := registry.Roles()
	entries := make([]roleEntry, 0, len(roles))
	for _, info := range roles {
		entries = append(entries, roleEntry{
			RoleInfo:    info,
			Permissions: registry.PermissionsOf(info.Role),
		})
	}

	rw.Success(map[string]interface{}{"roles": entries})
}

// Permissions returns the permission catalog with the least senior role
// that holds each permission.
//
// Method: GET
// Path: /api/v1/authz/permissions
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	registry := h.service.Registry()

	type permEntry struct {
		Permission  models.Permission `json:"permission"`
		MinimumRole models.Role       `json:"minimum_role"`
	}

	perms := registry.Permissions()
	entries := make([]permEntry, 0, len(perms))
	for _, p := range perms {
		minRole, _ := registry.MinimumRoleFor(p)
		entries = append(entries, permEntry{Permission: p, MinimumRole: minRole})
	}

	rw.Success(map[string]interface{}{"permissions": entries})
}

// checkRequest is the body of POST /api/v1/authz/check.
type checkRequest struct {
	// Check selects the kind: "permission", "minimum_role", or "route".
	Check string `json:"check" validate:"required,oneof=permission minimum_role route"`

	// Permission is required for permission checks.
	Permission string `json:"permission,omitempty"`

	// Role is required for minimum-role checks. Accepts canonical keys and
	// Japanese display names.
	Role string `json:"role,omitempty"`

	// Path and Action are required for route checks. The action vocabulary
	// matches the route policy: read, write, or delete.
	Path   string `json:"path,omitempty"`
	Action string `json:"action,omitempty" validate:"omitempty,oneof=read write delete"`
}

// Check evaluates an authorization check for the calling subject and
// returns the full decision, allowed or not. The endpoint itself always
// responds 200: asking "may I?" is permitted to everyone.
//
// Method: POST
// Path: /api/v1/authz/check
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req checkRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	subject := auth.GetAuthSubject(r.Context())

	var decision authz.Decision
	switch req.Check {
	case authz.CheckPermission:
		if req.Permission == "" {
			rw.BadRequest("permission is required for permission checks")
			return
		}
		decision = h.service.Authorize(r.Context(), subject, models.Permission(req.Permission))
	case authz.CheckMinimumRole:
		if req.Role == "" {
			rw.BadRequest("role is required for minimum-role checks")
			return
		}
		decision = h.service.AuthorizeMinimumRole(r.Context(), subject, models.Role(req.Role))
	case authz.CheckRoute:
		if req.Path == "" || req.Action == "" {
			rw.BadRequest("path and action are required for route checks")
			return
		}
		decision = h.service.AuthorizeRoute(r.Context(), subject, h.enforcer, req.Path, req.Action)
	}

	rw.Success(decision)
}

// Me returns the calling subject together with its resolved role and
// effective permissions.
//
// Method: GET
// Path: /api/v1/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subject := auth.GetAuthSubject(r.Context())
	if subject == nil {
		rw.Unauthorized("not authenticated")
		return
	}

	role, found, err := h.service.ResolveRole(r.Context(), subject)
	if err != nil {
		rw.InternalError("failed to resolve role")
		return
	}

	registry := h.service.Registry()
	payload := map[string]interface{}{
		"subject":     subject,
		"role":        role,
		"permissions": registry.PermissionsOf(role),
	}
	if info, ok := registry.RoleInfo(role); ok {
		payload["role_info"] = info
	}
	if !found {
		payload["role"] = nil
	}

	rw.Success(payload)
}

// loginRequest is the body of POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login verifies credentials and issues a JWT. First login seeds the
// default role so the account exists in the profile store.
//
// Method: POST
// Path: /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.jwt == nil || h.basic == nil {
		rw.Error(http.StatusNotFound, ErrCodeNotFound, "login is not enabled")
		return
	}

	var req loginRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	if !h.basic.Verify(req.Username, req.Password) {
		logging.Ctx(r.Context()).Warn().
			Str("username", req.Username).
			Msg("Login failed")
		rw.Unauthorized("invalid credentials")
		return
	}

	if err := h.service.SeedRole(r.Context(), req.Username, req.Username); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to seed role at login")
	}

	subject := &auth.AuthSubject{ID: req.Username, Username: req.Username}
	role, _, err := h.service.ResolveRole(r.Context(), subject)
	if err != nil {
		rw.InternalError("failed to resolve role")
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, string(role))
	if err != nil {
		rw.InternalError("failed to issue token")
		return
	}

	rw.Success(map[string]interface{}{
		"token": token,
		"role":  role,
	})
}

// queryInt extracts an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
