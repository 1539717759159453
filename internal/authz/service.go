// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
service.go - Authorization Checkpoint

The Service is the single server-side checkpoint every protected operation
passes through. It resolves a subject to a stored role, evaluates the check
against the Registry, and returns a Decision that carries both the actor's
actual role and what the check required, so every denial is explainable.

Failure semantics:
  - Nil subject (unauthenticated), missing profile, and unknown role string
    all degrade to a denial with a reason, never an error or panic.
  - Role store failures also surface as denials; the checkpoint fails closed.

Role mutation (AssignRole/RevokeRole) requires the manage_users permission,
forbids changing one's own role, audits every change, and invalidates the
role cache so subsequent checks see the new role immediately.
*/

package authz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/railnav/homedoor/internal/auth"
	"github.com/railnav/homedoor/internal/database"
	"github.com/railnav/homedoor/internal/logging"
	"github.com/railnav/homedoor/internal/models"
)

// Service errors
var (
	// ErrNotAuthorized is returned when an action is denied.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrSelfRoleChange is returned when a user tries to change their own role.
	ErrSelfRoleChange = errors.New("cannot modify own role")

	// ErrNilSubject is returned when the acting AuthSubject is nil.
	ErrNilSubject = errors.New("auth subject is nil")

	// ErrInvalidRole is returned when an invalid role is specified.
	ErrInvalidRole = errors.New("invalid role")
)

// Check kinds for decisions and audit events.
const (
	CheckPermission  = "permission"
	CheckMinimumRole = "minimum_role"
	CheckRoute       = "route"
)

// Denial reasons surfaced to callers.
const (
	ReasonUnauthenticated = "not authenticated"
	ReasonNoRole          = "no role assigned"
	ReasonUnknownRole     = "unrecognized role"
	ReasonInsufficient    = "insufficient permissions"
	ReasonRoleLookup      = "role lookup failed"
	ReasonPolicyError     = "policy evaluation failed"
)

// Decision is the outcome of one authorization check. Denials are data, not
// errors: a denied Decision always carries the actor's actual role (empty
// when absent) and what the check required.
type Decision struct {
	// Allowed reports whether the check passed.
	Allowed bool `json:"allowed"`

	// Check is CheckPermission, CheckMinimumRole, or CheckRoute.
	Check string `json:"check"`

	// Path and Action are set for route checks.
	Path   string `json:"path,omitempty"`
	Action string `json:"action,omitempty"`

	// ActorID identifies the subject, "anonymous" when unauthenticated.
	ActorID string `json:"actor_id,omitempty"`

	// ActorRole is the subject's resolved role. Empty when absent or when
	// no profile record exists.
	ActorRole models.Role `json:"actor_role,omitempty"`

	// RequiredPermission is set for permission checks.
	RequiredPermission models.Permission `json:"required_permission,omitempty"`

	// RequiredRole is the least senior role that satisfies the check.
	RequiredRole models.Role `json:"required_role,omitempty"`

	// Reason explains a denial. Empty when allowed.
	Reason string `json:"reason,omitempty"`

	// CacheHit reports whether the role came from cache. Diagnostic only.
	CacheHit bool `json:"-"`
}

// RoleProvider is the profile store collaborator. The abstraction keeps the
// checkpoint testable without a real database.
type RoleProvider interface {
	GetUserRole(ctx context.Context, userID string) (*models.UserRole, error)
	GetEffectiveRole(ctx context.Context, userID string) (models.Role, error)
	SetUserRole(ctx context.Context, role *models.UserRole, actorID, actorUsername, reason string) (*models.UserRole, error)
	DeleteUserRole(ctx context.Context, userID, actorID, actorUsername, reason string) error
}

// ServiceConfig holds configuration for the authorization checkpoint.
type ServiceConfig struct {
	// DefaultRole seeds new accounts. The checkpoint itself never
	// substitutes it for an absent role.
	DefaultRole models.Role

	// CacheEnabled enables role lookup caching.
	CacheEnabled bool

	// CacheTTL is how long to cache role lookups.
	CacheTTL time.Duration

	// AuditEnabled enables audit logging of authorization decisions.
	AuditEnabled bool

	// AuditSampleRate is the fraction of allowed decisions to audit.
	AuditSampleRate float64

	// AuditBufferSize is the async audit buffer size.
	AuditBufferSize int
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		DefaultRole:     models.RoleViewer,
		CacheEnabled:    true,
		CacheTTL:        5 * time.Minute,
		AuditEnabled:    true,
		AuditSampleRate: 1.0,
		AuditBufferSize: 1000,
	}
}

// Service is the authorization checkpoint.
type Service struct {
	registry    *Registry
	store       RoleProvider
	config      *ServiceConfig
	roleCache   map[string]*roleCacheEntry
	roleCacheMu sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	auditLogger *AuditLogger
}

// roleCacheEntry holds a cached role lookup. found is false for users with
// no profile record, so absence is cached too.
type roleCacheEntry struct {
	role      models.Role
	found     bool
	expiresAt time.Time
}

// NewService creates the authorization checkpoint.
func NewService(registry *Registry, store RoleProvider, config *ServiceConfig) (*Service, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if store == nil {
		return nil, errors.New("role provider is required")
	}
	if config == nil {
		config = DefaultServiceConfig()
	}

	var auditLogger *AuditLogger
	if config.AuditEnabled {
		auditLogger = NewAuditLogger(&AuditLoggerConfig{
			Enabled:    true,
			LogAllowed: true,
			LogDenied:  true,
			SampleRate: config.AuditSampleRate,
			BufferSize: config.AuditBufferSize,
		})
	}

	s := &Service{
		registry:    registry,
		store:       store,
		config:      config,
		roleCache:   make(map[string]*roleCacheEntry),
		stopChan:    make(chan struct{}),
		auditLogger: auditLogger,
	}

	if config.CacheEnabled && config.CacheTTL > 0 {
		go s.cacheCleanup()
	}

	return s, nil
}

// Registry returns the injected registry for read-only consumers.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Close stops the service and cleans up resources.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.auditLogger != nil {
			s.auditLogger.Close()
		}
	})
}

// cacheCleanup periodically removes expired cache entries.
func (s *Service) cacheCleanup() {
	ticker := time.NewTicker(s.config.CacheTTL)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.roleCacheMu.Lock()
			now := time.Now()
			for key, entry := range s.roleCache {
				if now.After(entry.expiresAt) {
					delete(s.roleCache, key)
				}
			}
			s.roleCacheMu.Unlock()
		}
	}
}

// getCachedRole retrieves a role lookup result from cache.
func (s *Service) getCachedRole(userID string) (models.Role, bool, bool) {
	if !s.config.CacheEnabled {
		return "", false, false
	}

	s.roleCacheMu.RLock()
	defer s.roleCacheMu.RUnlock()

	entry, ok := s.roleCache[userID]
	if !ok {
		return "", false, false
	}

	if time.Now().After(entry.expiresAt) {
		return "", false, false
	}

	return entry.role, entry.found, true
}

// setCachedRole stores a role lookup result in cache.
func (s *Service) setCachedRole(userID string, role models.Role, found bool) {
	if !s.config.CacheEnabled {
		return
	}

	s.roleCacheMu.Lock()
	defer s.roleCacheMu.Unlock()

	s.roleCache[userID] = &roleCacheEntry{
		role:      role,
		found:     found,
		expiresAt: time.Now().Add(s.config.CacheTTL),
	}
}

// invalidateRoleCache removes a user's cached role.
func (s *Service) invalidateRoleCache(userID string) {
	s.roleCacheMu.Lock()
	defer s.roleCacheMu.Unlock()
	delete(s.roleCache, userID)
}

// InvalidateAllRoles drops every cached role lookup. Used after bulk
// changes such as expiry sweeps, where individual user IDs are not known
// to the caller.
func (s *Service) InvalidateAllRoles(reason string) {
	s.roleCacheMu.Lock()
	s.roleCache = make(map[string]*roleCacheEntry)
	s.roleCacheMu.Unlock()
	RecordAuthzCacheInvalidation(reason)
}

// ResolveRole resolves a subject to its stored role.
// Returns ("", false, nil) for a nil subject or a missing profile record;
// both are "role absent", not errors. A store failure is the only error path.
func (s *Service) ResolveRole(ctx context.Context, subject *auth.AuthSubject) (models.Role, bool, error) {
	if subject == nil || subject.ID == "" {
		return "", false, nil
	}

	if role, found, ok := s.getCachedRole(subject.ID); ok {
		return role, found, nil
	}

	role, err := s.store.GetEffectiveRole(ctx, subject.ID)
	if err != nil {
		if errors.Is(err, database.ErrRoleNotFound) {
			s.setCachedRole(subject.ID, "", false)
			return "", false, nil
		}
		RecordAuthzError("role_lookup_error")
		return "", false, fmt.Errorf("failed to resolve role: %w", err)
	}

	s.setCachedRole(subject.ID, role, true)
	return role, true, nil
}

// Authorize evaluates a permission check for a subject. Total: every input
// yields a Decision, never an error. Unauthenticated, missing-profile,
// unknown-role, and store-failure paths are all denials with a reason.
func (s *Service) Authorize(ctx context.Context, subject *auth.AuthSubject, permission models.Permission) Decision {
	start := time.Now()

	d := Decision{
		Check:              CheckPermission,
		ActorID:            actorID(subject),
		RequiredPermission: permission,
	}
	if required, ok := s.registry.MinimumRoleFor(permission); ok {
		d.RequiredRole = required
	}

	role, cacheHit, reason := s.resolveForDecision(ctx, subject)
	d.ActorRole = role
	d.CacheHit = cacheHit

	switch {
	case reason != "":
		d.Reason = reason
	case s.registry.HasPermission(role, permission):
		d.Allowed = true
	default:
		d.Reason = ReasonInsufficient
	}

	s.finishDecision(ctx, subject, &d, time.Since(start))
	return d
}

// AuthorizeMinimumRole evaluates a seniority check for a subject. Total in
// the same way as Authorize. The required role may be given as a canonical
// key or a display name; an unresolvable required role denies everything.
func (s *Service) AuthorizeMinimumRole(ctx context.Context, subject *auth.AuthSubject, required models.Role) Decision {
	start := time.Now()

	d := Decision{
		Check:   CheckMinimumRole,
		ActorID: actorID(subject),
	}

	requiredRole, ok := s.registry.ParseRole(string(required))
	if !ok {
		d.RequiredRole = required
		d.Reason = ReasonUnknownRole
		RecordAuthzError("unknown_role")
		s.finishDecision(ctx, subject, &d, time.Since(start))
		return d
	}
	d.RequiredRole = requiredRole

	role, cacheHit, reason := s.resolveForDecision(ctx, subject)
	d.ActorRole = role
	d.CacheHit = cacheHit

	switch {
	case reason != "":
		d.Reason = reason
	case s.registry.HasMinimumRole(role, requiredRole):
		d.Allowed = true
	default:
		d.Reason = ReasonInsufficient
	}

	s.finishDecision(ctx, subject, &d, time.Since(start))
	return d
}

// AuthorizeRoute evaluates the route-level policy for the subject: may this
// identity perform the action (read, write, delete) on the resource path?
// The enforcer supplies the path bindings; the Decision still carries the
// permission backing the matched binding and the least senior role holding
// it, so route denials stay as explainable as permission denials.
func (s *Service) AuthorizeRoute(ctx context.Context, subject *auth.AuthSubject, enforcer *Enforcer, path, action string) Decision {
	start := time.Now()

	d := Decision{
		Check:   CheckRoute,
		ActorID: actorID(subject),
		Path:    path,
		Action:  action,
	}

	if perm, ok := enforcer.RequiredPermissionFor(path, action); ok {
		d.RequiredPermission = perm
		if minRole, ok := s.registry.MinimumRoleFor(perm); ok {
			d.RequiredRole = minRole
		}
	}

	role, cacheHit, reason := s.resolveForDecision(ctx, subject)
	d.ActorRole = role
	d.CacheHit = cacheHit
	d.Reason = reason

	if d.Reason == "" {
		allowed, err := enforcer.EnforceWithRole(role, path, action)
		if err != nil {
			RecordAuthzError("enforcer_error")
			logging.Ctx(ctx).Error().Err(err).
				Str("path", path).
				Str("action", action).
				Msg("Route policy evaluation failed")
			d.Reason = ReasonPolicyError
		} else {
			d.Allowed = allowed
			if !allowed {
				d.Reason = ReasonInsufficient
			}
		}
	}

	s.finishDecision(ctx, subject, &d, time.Since(start))
	return d
}

// resolveForDecision resolves the subject role and classifies the absent
// paths into a denial reason. An empty reason means the role resolved.
func (s *Service) resolveForDecision(ctx context.Context, subject *auth.AuthSubject) (role models.Role, cacheHit bool, reason string) {
	if subject == nil || subject.ID == "" {
		return "", false, ReasonUnauthenticated
	}

	var found bool
	if cached, cachedFound, ok := s.getCachedRole(subject.ID); ok {
		role, found, cacheHit = cached, cachedFound, true
	} else {
		var err error
		role, found, err = s.ResolveRole(ctx, subject)
		if err != nil {
			// Fail closed; the collaborator failure is logged, the caller
			// sees a denial.
			logging.Ctx(ctx).Error().Err(err).Str("user_id", subject.ID).Msg("Role resolution failed")
			return "", false, ReasonRoleLookup
		}
	}

	if !found {
		return "", cacheHit, ReasonNoRole
	}

	if _, ok := s.registry.RoleInfo(role); !ok {
		// Silent downgrade: an unrecognized stored role degrades to no
		// permissions rather than failing loudly, but it is surfaced in
		// logs and metrics as a possible data-integrity problem.
		logging.Ctx(ctx).Warn().
			Str("user_id", subject.ID).
			Str("stored_role", string(role)).
			Msg("Unrecognized role in profile store, treating as no permissions")
		RecordAuthzError("unknown_role")
		return role, cacheHit, ReasonUnknownRole
	}

	return role, cacheHit, ""
}

// finishDecision records metrics and the audit event for a decision.
func (s *Service) finishDecision(ctx context.Context, subject *auth.AuthSubject, d *Decision, duration time.Duration) {
	target := string(d.RequiredPermission)
	if d.Check == CheckMinimumRole {
		target = string(d.RequiredRole)
	}

	RecordAuthzDecision(string(d.ActorRole), d.Check, target, d.Allowed, duration, d.CacheHit)

	if s.auditLogger == nil {
		return
	}

	event := &AuditEvent{
		RequestID:          logging.RequestIDFromContext(ctx),
		ActorID:            d.ActorID,
		ActorRole:          string(d.ActorRole),
		Check:              d.Check,
		RequiredPermission: string(d.RequiredPermission),
		RequiredRole:       string(d.RequiredRole),
		Decision:           d.Allowed,
		Reason:             d.Reason,
		Duration:           duration,
		CacheHit:           d.CacheHit,
	}
	if subject != nil {
		event.ActorUsername = subject.Username
	}
	s.auditLogger.LogDecision(event)
}

// actorID names a subject for decisions and audit entries.
func actorID(subject *auth.AuthSubject) string {
	if subject == nil || subject.ID == "" {
		return "anonymous"
	}
	return subject.ID
}

// RequirePermission returns ErrNotAuthorized if the permission check fails.
// Convenience for handlers that do not need the Decision payload.
func (s *Service) RequirePermission(ctx context.Context, subject *auth.AuthSubject, permission models.Permission) error {
	if d := s.Authorize(ctx, subject, permission); !d.Allowed {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, d.Reason)
	}
	return nil
}

// RequireMinimumRole returns ErrNotAuthorized if the seniority check fails.
func (s *Service) RequireMinimumRole(ctx context.Context, subject *auth.AuthSubject, required models.Role) error {
	if d := s.AuthorizeMinimumRole(ctx, subject, required); !d.Allowed {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, d.Reason)
	}
	return nil
}

// validateRoleChange performs common validation for role mutations.
func (s *Service) validateRoleChange(ctx context.Context, actor *auth.AuthSubject, targetUserID string) error {
	if actor == nil {
		return ErrNilSubject
	}

	// Prevent self role change
	if actor.ID == targetUserID {
		return ErrSelfRoleChange
	}

	if d := s.Authorize(ctx, actor, models.PermManageUsers); !d.Allowed {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, d.Reason)
	}

	return nil
}

// invalidateCachesForUser drops the user's cached role lookup.
func (s *Service) invalidateCachesForUser(userID, reason string) {
	s.invalidateRoleCache(userID)
	RecordAuthzCacheInvalidation(reason)
}

// AssignRole assigns a role to a user. The actor needs manage_users and
// cannot change their own role. The change is audited by the store and the
// role cache invalidated so subsequent checks see the new role immediately.
// The role may be given as a canonical key or a Japanese display name.
func (s *Service) AssignRole(ctx context.Context, actor *auth.AuthSubject, targetUserID, targetUsername string, role models.Role, reason string) error {
	canonical, ok := s.registry.ParseRole(string(role))
	if !ok {
		return ErrInvalidRole
	}

	if err := s.validateRoleChange(ctx, actor, targetUserID); err != nil {
		return err
	}

	userRole := models.NewUserRole(targetUserID, targetUsername, canonical, actor.ID)

	if _, err := s.store.SetUserRole(ctx, userRole, actor.ID, actor.Username, reason); err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}

	s.invalidateCachesForUser(targetUserID, "role_change")
	RecordRoleAssignment(string(canonical), "assign")

	logging.Ctx(ctx).Info().
		Str("actor_id", actor.ID).
		Str("actor_username", actor.Username).
		Str("target_user_id", targetUserID).
		Str("target_username", targetUsername).
		Str("role", string(canonical)).
		Str("reason", reason).
		Msg("Role assigned")

	return nil
}

// RevokeRole removes a user's role assignment. Same preconditions as
// AssignRole. Revoking an absent role is a no-op, not an error.
func (s *Service) RevokeRole(ctx context.Context, actor *auth.AuthSubject, targetUserID, reason string) error {
	if err := s.validateRoleChange(ctx, actor, targetUserID); err != nil {
		return err
	}

	// Old role for metrics; absence is fine.
	oldRole, _, _ := s.ResolveRole(ctx, &auth.AuthSubject{ID: targetUserID}) //nolint:errcheck // metrics only

	if err := s.store.DeleteUserRole(ctx, targetUserID, actor.ID, actor.Username, reason); err != nil {
		if errors.Is(err, database.ErrRoleNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete user role: %w", err)
	}

	s.invalidateCachesForUser(targetUserID, "role_revoke")
	if oldRole != "" {
		RecordRoleAssignment(string(oldRole), "revoke")
	}

	logging.Ctx(ctx).Info().
		Str("actor_id", actor.ID).
		Str("actor_username", actor.Username).
		Str("target_user_id", targetUserID).
		Str("reason", reason).
		Msg("Role revoked")

	return nil
}

// GetUserRoleInfo retrieves the role assignment record for a user. Users may
// inspect their own assignment; anyone else's requires manage_users.
// Returns nil without error when the user has no explicit assignment.
func (s *Service) GetUserRoleInfo(ctx context.Context, subject *auth.AuthSubject, targetUserID string) (*models.UserRole, error) {
	if subject == nil {
		return nil, ErrNilSubject
	}

	if subject.ID != targetUserID {
		if err := s.RequirePermission(ctx, subject, models.PermManageUsers); err != nil {
			return nil, err
		}
	}

	role, err := s.store.GetUserRole(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, database.ErrRoleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return role, nil
}

// SeedRole creates a default-role assignment for a first-seen user. Meant
// for the login path; does nothing if the user already has a role.
func (s *Service) SeedRole(ctx context.Context, userID, username string) error {
	if userID == "" {
		return ErrNilSubject
	}

	if _, err := s.store.GetUserRole(ctx, userID); err == nil {
		return nil
	} else if !errors.Is(err, database.ErrRoleNotFound) {
		return fmt.Errorf("failed to check existing role: %w", err)
	}

	userRole := models.NewUserRole(userID, username, s.config.DefaultRole, "system")
	if _, err := s.store.SetUserRole(ctx, userRole, "system", "system", "default role at first login"); err != nil {
		return fmt.Errorf("failed to seed default role: %w", err)
	}

	s.invalidateCachesForUser(userID, "role_change")
	RecordRoleAssignment(string(s.config.DefaultRole), "assign")
	return nil
}

// BootstrapAdmin guarantees the configured administrator account holds the
// developer role. Role mutation requires manage_users, so without this a
// fresh deployment has no account able to grant the first role. Runs at
// startup as the system actor and is audited like any other assignment.
func (s *Service) BootstrapAdmin(ctx context.Context, userID, username string) error {
	if userID == "" {
		return ErrNilSubject
	}

	if current, err := s.store.GetEffectiveRole(ctx, userID); err == nil {
		if current == models.RoleDeveloper {
			return nil
		}
	} else if !errors.Is(err, database.ErrRoleNotFound) {
		return fmt.Errorf("failed to check administrator role: %w", err)
	}

	userRole := models.NewUserRole(userID, username, models.RoleDeveloper, "system")
	if _, err := s.store.SetUserRole(ctx, userRole, "system", "system", "administrator bootstrap"); err != nil {
		return fmt.Errorf("failed to bootstrap administrator role: %w", err)
	}

	s.invalidateCachesForUser(userID, "role_change")
	RecordRoleAssignment(string(models.RoleDeveloper), "assign")

	logging.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("role", string(models.RoleDeveloper)).
		Msg("Administrator role bootstrapped")
	return nil
}
