// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/railnav/homedoor/internal/auth"
	"github.com/railnav/homedoor/internal/authz"
	"github.com/railnav/homedoor/internal/database"
	"github.com/railnav/homedoor/internal/models"
)

// GetUserRole returns one user's role assignment. Users can always read
// their own assignment; reading someone else's requires manage_users.
//
// Method: GET
// Path: /api/v1/users/{userID}/role
func (h *Handler) GetUserRole(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	subject := auth.GetAuthSubject(r.Context())
	userRole, err := h.service.GetUserRoleInfo(r.Context(), subject, userID)
	if err != nil {
		h.respondRoleError(rw, r, err)
		return
	}
	if userRole == nil {
		rw.NotFound("user has no role assignment")
		return
	}

	rw.Success(userRole)
}

// setRoleRequest is the body of PUT /api/v1/users/{userID}/role.
type setRoleRequest struct {
	// Role accepts canonical keys ("editor") and Japanese display names
	// ("編集者").
	Role string `json:"role" validate:"required"`

	// Username is stored alongside the assignment for display.
	Username string `json:"username,omitempty"`

	// Reason is recorded in the audit log.
	Reason string `json:"reason,omitempty"`
}

// SetUserRole assigns or updates a user's role. Requires manage_users and
// forbids changing one's own role; the change takes effect immediately.
//
// Method: PUT
// Path: /api/v1/users/{userID}/role
func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	var req setRoleRequest
	if !decodeJSON(rw, r, &req) {
		return
	}

	username := req.Username
	if username == "" {
		username = userID
	}

	subject := auth.GetAuthSubject(r.Context())
	err := h.service.AssignRole(r.Context(), subject, userID, username, models.Role(req.Role), req.Reason)
	if err != nil {
		h.respondRoleError(rw, r, err)
		return
	}

	rw.Success(map[string]string{
		"user_id": userID,
		"role":    req.Role,
	})
}

// DeleteUserRole revokes a user's role assignment. Requires manage_users
// and forbids revoking one's own role.
//
// Method: DELETE
// Path: /api/v1/users/{userID}/role
func (h *Handler) DeleteUserRole(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	reason := r.URL.Query().Get("reason")
	subject := auth.GetAuthSubject(r.Context())
	if err := h.service.RevokeRole(r.Context(), subject, userID, reason); err != nil {
		h.respondRoleError(rw, r, err)
		return
	}

	rw.NoContent()
}

// ListUserRoles returns role assignments, filterable by active state and
// role. Requires manage_users (enforced by the router).
//
// Method: GET
// Path: /api/v1/users/roles
func (h *Handler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.directory == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "role store not available")
		return
	}

	activeOnly := r.URL.Query().Get("active") != "false"

	var roleFilter models.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, ok := h.service.Registry().ParseRole(raw)
		if !ok {
			rw.BadRequest("unknown role filter")
			return
		}
		roleFilter = parsed
	}

	roles, err := h.directory.ListUserRoles(r.Context(), activeOnly, roleFilter)
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to list role assignments")
		return
	}

	rw.SuccessWithPagination(roles, &PaginationMeta{Count: len(roles)})
}

// RoleStats returns aggregate role assignment counts. Requires
// manage_users (enforced by the router).
//
// Method: GET
// Path: /api/v1/authz/stats
func (h *Handler) RoleStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.directory == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "role store not available")
		return
	}

	stats, err := h.directory.GetRoleStats(r.Context())
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to compute role statistics")
		return
	}

	rw.Success(stats)
}

// RoleAuditLog returns role change audit entries, newest first. Requires
// manage_users (enforced by the router).
//
// Method: GET
// Path: /api/v1/authz/audit
func (h *Handler) RoleAuditLog(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.directory == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "role store not available")
		return
	}

	userID := r.URL.Query().Get("user_id")
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	entries, err := h.directory.GetRoleAuditLog(r.Context(), userID, limit, offset)
	if err != nil {
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to read audit log")
		return
	}

	rw.SuccessWithPagination(entries, &PaginationMeta{
		Count:  len(entries),
		Offset: offset,
		Limit:  limit,
	})
}

// respondRoleError maps role management errors to HTTP responses.
func (h *Handler) respondRoleError(rw *ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrNilSubject):
		rw.Unauthorized("not authenticated")
	case errors.Is(err, authz.ErrNotAuthorized):
		subject := auth.GetAuthSubject(r.Context())
		decision := h.service.Authorize(r.Context(), subject, models.PermManageUsers)
		rw.ForbiddenWithDetails("insufficient permissions", decision)
	case errors.Is(err, authz.ErrSelfRoleChange):
		rw.Error(http.StatusConflict, ErrCodeConflict, "cannot modify own role")
	case errors.Is(err, authz.ErrInvalidRole):
		rw.BadRequest("unknown role")
	case errors.Is(err, database.ErrRoleNotFound):
		rw.NotFound("user has no role assignment")
	default:
		rw.InternalError("role operation failed")
	}
}
