// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
rbac.go - Role-Based Access Control Models

This file defines data structures for RBAC user role management and audit logging.

Key Structures:
  - Role / Permission: the closed sets of role and capability tokens
  - UserRole: persistent role assignment for a user
  - RoleAuditEntry: audit log entry for role changes

Role Hierarchy (ascending seniority):
  - viewer (閲覧者): read-only access to published content
  - contributor (提供者): can submit and update station records
  - editor (編集者): full content management across stations, lines, companies, news
  - developer (開発者): system administration including user role management

Usage:
  - Registry and matrix in internal/authz/registry.go
  - Database operations in internal/database/rbac.go
  - Enforcement in internal/authz/service.go
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named authorization tier assigned to a user profile.
// The canonical values are the lowercase English tokens; Japanese display
// names live in the authz registry metadata.
type Role string

// Role constants define the standard roles in the system.
const (
	// RoleViewer is the default role with read-only access to published content.
	RoleViewer Role = "viewer"

	// RoleContributor can submit station installation records and inherits viewer.
	RoleContributor Role = "contributor"

	// RoleEditor has full content management and inherits contributor.
	RoleEditor Role = "editor"

	// RoleDeveloper has full system access including user management and inherits editor.
	RoleDeveloper Role = "developer"
)

// ValidRoles contains all valid roles in ascending seniority order.
var ValidRoles = []Role{RoleViewer, RoleContributor, RoleEditor, RoleDeveloper}

// IsValidRole checks if a role name is one of the known set.
func IsValidRole(role Role) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Permission is an atomic, named capability token checked independently of
// role identity. Permissions have no internal structure; they only appear in
// role grants.
type Permission string

// Permission constants define the capability catalog.
const (
	// PermViewContent grants read access to stations, lines, companies, and news.
	PermViewContent Permission = "view_content"

	// PermViewStatistics grants read access to installation statistics.
	PermViewStatistics Permission = "view_statistics"

	// PermCreateStation grants creation of station installation records.
	PermCreateStation Permission = "create_station"

	// PermUpdateStation grants modification of station installation records.
	PermUpdateStation Permission = "update_station"

	// PermDeleteStation grants deletion of station installation records.
	PermDeleteStation Permission = "delete_station"

	// PermManageLines grants creation, modification, and deletion of line records.
	PermManageLines Permission = "manage_lines"

	// PermManageCompanies grants creation, modification, and deletion of company records.
	PermManageCompanies Permission = "manage_companies"

	// PermManageNews grants management of news entries.
	PermManageNews Permission = "manage_news"

	// PermViewHistory grants read access to content change history.
	PermViewHistory Permission = "view_history"

	// PermManageUsers grants management of user accounts and role assignments.
	PermManageUsers Permission = "manage_users"

	// PermSystemAdmin grants system-level administration.
	PermSystemAdmin Permission = "system_admin"
)

// ValidPermissions contains every permission in the catalog.
var ValidPermissions = []Permission{
	PermViewContent,
	PermViewStatistics,
	PermCreateStation,
	PermUpdateStation,
	PermDeleteStation,
	PermManageLines,
	PermManageCompanies,
	PermManageNews,
	PermViewHistory,
	PermManageUsers,
	PermSystemAdmin,
}

// IsValidPermission checks if a permission token is one of the known set.
func IsValidPermission(p Permission) bool {
	for _, v := range ValidPermissions {
		if v == p {
			return true
		}
	}
	return false
}

// UserRole represents a user's role assignment in the system.
// Roles are persistent and stored in the database for lookup during authorization.
//
// Key Features:
//   - ExpiresAt supports time-limited role assignments
//   - IsActive allows soft-disable without deletion
//   - Metadata stores optional JSON data (e.g., assignment context)
type UserRole struct {
	// ID is the primary key (sequence-generated)
	ID int64 `json:"id"`

	// UserID is the unique identifier for the user (from the identity provider)
	UserID string `json:"user_id"`

	// Username is the display name for the user
	Username string `json:"username"`

	// Role is the assigned role (viewer, contributor, editor, developer)
	Role Role `json:"role"`

	// AssignedBy is the user ID who assigned this role (empty for system assignments)
	AssignedBy string `json:"assigned_by,omitempty"`

	// AssignedAt is when the role was assigned
	AssignedAt time.Time `json:"assigned_at"`

	// ExpiresAt is when the role expires (nil means no expiration)
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// IsActive indicates if the role is currently active
	IsActive bool `json:"is_active"`

	// Metadata contains optional JSON data for the role assignment
	Metadata *string `json:"metadata,omitempty"`
}

// IsExpired checks if the role has expired.
func (ur *UserRole) IsExpired() bool {
	if ur.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*ur.ExpiresAt)
}

// IsEffective checks if the role is currently effective (active and not expired).
func (ur *UserRole) IsEffective() bool {
	return ur.IsActive && !ur.IsExpired()
}

// RoleAuditEntry records a role change event for audit purposes.
// All role assignments, revocations, and modifications are logged.
// Entries are immutable once created (append-only audit log).
type RoleAuditEntry struct {
	// ID is the primary key (UUID for global uniqueness)
	ID uuid.UUID `json:"id"`

	// Timestamp is when the action occurred
	Timestamp time.Time `json:"timestamp"`

	// ActorID is the user who performed the action ("system" for automated changes)
	ActorID string `json:"actor_id"`

	// ActorUsername is the display name of the actor
	ActorUsername string `json:"actor_username,omitempty"`

	// Action is the type of change (assign, revoke, update, expire)
	Action string `json:"action"`

	// TargetUserID is the user whose role was changed
	TargetUserID string `json:"target_user_id"`

	// TargetUsername is the display name of the target user
	TargetUsername string `json:"target_username,omitempty"`

	// OldRole is the previous role (empty for new assignments)
	OldRole Role `json:"old_role,omitempty"`

	// NewRole is the new role (empty for revocations)
	NewRole Role `json:"new_role,omitempty"`

	// Reason is an optional explanation for the change
	Reason string `json:"reason,omitempty"`

	// IPAddress is the client IP address (for web requests)
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the client user agent (for web requests)
	UserAgent string `json:"user_agent,omitempty"`
}

// AuditAction constants define the types of audit log entries.
const (
	// AuditActionAssign indicates a new role was assigned.
	AuditActionAssign = "assign"

	// AuditActionRevoke indicates a role was revoked.
	AuditActionRevoke = "revoke"

	// AuditActionUpdate indicates an existing assignment was updated.
	AuditActionUpdate = "update"

	// AuditActionExpire indicates a role expired automatically.
	AuditActionExpire = "expire"
)

// RoleStats provides statistics about role assignments.
type RoleStats struct {
	// TotalUsers is the number of users with any role
	TotalUsers int `json:"total_users"`

	// ByRole is the count of users per role
	ByRole map[Role]int `json:"by_role"`

	// ActiveRoles is the count of currently effective roles
	ActiveRoles int `json:"active_roles"`

	// ExpiredRoles is the count of expired role assignments
	ExpiredRoles int `json:"expired_roles"`

	// InactiveRoles is the count of deactivated role assignments
	InactiveRoles int `json:"inactive_roles"`
}

// NewUserRole creates a new UserRole with default values.
func NewUserRole(userID, username string, role Role, assignedBy string) *UserRole {
	return &UserRole{
		UserID:     userID,
		Username:   username,
		Role:       role,
		AssignedBy: assignedBy,
		AssignedAt: time.Now(),
		IsActive:   true,
	}
}

// NewRoleAuditEntry creates a new RoleAuditEntry with default values.
func NewRoleAuditEntry(actorID, actorUsername, action, targetUserID, targetUsername string) *RoleAuditEntry {
	return &RoleAuditEntry{
		ID:             uuid.New(),
		Timestamp:      time.Now(),
		ActorID:        actorID,
		ActorUsername:  actorUsername,
		Action:         action,
		TargetUserID:   targetUserID,
		TargetUsername: targetUsername,
	}
}
