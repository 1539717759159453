// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"github.com/railnav/homedoor/internal/models"
)

// RoleInfo holds the static metadata for one role tier.
type RoleInfo struct {
	// Role is the canonical role key.
	Role models.Role `json:"role"`

	// Level is the seniority used for hierarchical comparison.
	// Strictly increasing across the hierarchy, no ties.
	Level int `json:"level"`

	// DisplayName is the Japanese-facing name shown in the UI.
	DisplayName string `json:"display_name"`

	// Description summarizes what the role can do. Display only.
	Description string `json:"description"`

	// ColorTag is a display hint. Irrelevant to authorization logic.
	ColorTag string `json:"color_tag"`
}

// roleGrant declares a role tier together with the permissions it adds on
// top of the tier below it. Effective permission sets are derived by folding
// the grants of every tier at or below a role's level, so a senior role is a
// superset of its juniors by construction rather than by hand-maintained
// duplication.
type roleGrant struct {
	info   RoleInfo
	grants []models.Permission
}

// roleGrants is the authoritative hierarchy definition, ascending by level.
var roleGrants = []roleGrant{
	{
		info: RoleInfo{
			Role:        models.RoleViewer,
			Level:       1,
			DisplayName: "閲覧者",
			Description: "Read-only access to installation records and statistics",
			ColorTag:    "gray",
		},
		grants: []models.Permission{
			models.PermViewContent,
			models.PermViewStatistics,
		},
	},
	{
		info: RoleInfo{
			Role:        models.RoleContributor,
			Level:       2,
			DisplayName: "提供者",
			Description: "Can submit and update station installation records",
			ColorTag:    "blue",
		},
		grants: []models.Permission{
			models.PermCreateStation,
			models.PermUpdateStation,
		},
	},
	{
		info: RoleInfo{
			Role:        models.RoleEditor,
			Level:       3,
			DisplayName: "編集者",
			Description: "Full content management across stations, lines, companies, and news",
			ColorTag:    "green",
		},
		grants: []models.Permission{
			models.PermDeleteStation,
			models.PermManageLines,
			models.PermManageCompanies,
			models.PermManageNews,
			models.PermViewHistory,
		},
	},
	{
		info: RoleInfo{
			Role:        models.RoleDeveloper,
			Level:       4,
			DisplayName: "開発者",
			Description: "System administration including user and role management",
			ColorTag:    "red",
		},
		grants: []models.Permission{
			models.PermManageUsers,
			models.PermSystemAdmin,
		},
	},
}

// Registry is the immutable role registry, permission catalog, and
// role-permission matrix. It is constructed once at process start and
// injected by reference; nothing mutates it afterwards, so it is safe for
// concurrent use without synchronization.
type Registry struct {
	roles     []RoleInfo
	byRole    map[models.Role]RoleInfo
	byDisplay map[string]models.Role
	effective map[models.Role]map[models.Permission]struct{}
}

// NewRegistry builds the registry from the hierarchy definition, folding
// per-tier grants into effective permission sets.
func NewRegistry() *Registry {
	r := &Registry{
		roles:     make([]RoleInfo, 0, len(roleGrants)),
		byRole:    make(map[models.Role]RoleInfo, len(roleGrants)),
		byDisplay: make(map[string]models.Role, len(roleGrants)),
		effective: make(map[models.Role]map[models.Permission]struct{}, len(roleGrants)),
	}

	accumulated := make(map[models.Permission]struct{})
	for _, rg := range roleGrants {
		for _, p := range rg.grants {
			accumulated[p] = struct{}{}
		}

		set := make(map[models.Permission]struct{}, len(accumulated))
		for p := range accumulated {
			set[p] = struct{}{}
		}

		r.roles = append(r.roles, rg.info)
		r.byRole[rg.info.Role] = rg.info
		r.byDisplay[rg.info.DisplayName] = rg.info.Role
		r.effective[rg.info.Role] = set
	}

	return r
}

// Roles returns the role metadata in ascending level order.
func (r *Registry) Roles() []RoleInfo {
	out := make([]RoleInfo, len(r.roles))
	copy(out, r.roles)
	return out
}

// RoleInfo returns the metadata for a role.
// The second return is false for unknown roles.
func (r *Registry) RoleInfo(role models.Role) (RoleInfo, bool) {
	info, ok := r.byRole[role]
	return info, ok
}

// Level returns the seniority level of a role, or 0 for unknown roles.
// 0 sorts below every valid level, so an unknown role is the lowest
// seniority in every comparison.
func (r *Registry) Level(role models.Role) int {
	if info, ok := r.byRole[role]; ok {
		return info.Level
	}
	return 0
}

// ParseRole resolves a role string to its canonical key. Both canonical keys
// ("editor") and Japanese display names ("編集者") resolve. The second return
// is false when the string matches neither.
func (r *Registry) ParseRole(s string) (models.Role, bool) {
	if _, ok := r.byRole[models.Role(s)]; ok {
		return models.Role(s), true
	}
	if role, ok := r.byDisplay[s]; ok {
		return role, true
	}
	return "", false
}

// HasPermission reports whether the role holds the permission.
// Pure and total: an absent or unknown role yields false for every
// permission, never an error.
func (r *Registry) HasPermission(role models.Role, permission models.Permission) bool {
	set, ok := r.effective[role]
	if !ok {
		return false
	}
	_, held := set[permission]
	return held
}

// HasMinimumRole reports whether role is at least as senior as required.
// An absent or unknown role yields false; an unknown required role can
// never be satisfied by a valid role check because both levels degrade
// consistently.
func (r *Registry) HasMinimumRole(role, required models.Role) bool {
	if _, ok := r.byRole[role]; !ok {
		return false
	}
	if _, ok := r.byRole[required]; !ok {
		return false
	}
	return r.Level(role) >= r.Level(required)
}

// PermissionsOf returns the role's effective permission set in catalog
// order. Unknown roles get an empty (non-nil) slice.
func (r *Registry) PermissionsOf(role models.Role) []models.Permission {
	set, ok := r.effective[role]
	if !ok {
		return []models.Permission{}
	}

	out := make([]models.Permission, 0, len(set))
	for _, p := range models.ValidPermissions {
		if _, held := set[p]; held {
			out = append(out, p)
		}
	}
	return out
}

// Permissions returns the full permission catalog.
func (r *Registry) Permissions() []models.Permission {
	out := make([]models.Permission, len(models.ValidPermissions))
	copy(out, models.ValidPermissions)
	return out
}

// RolesWithPermission returns the roles holding a permission, ascending by
// level. Useful for the denial payload's "required" hint.
func (r *Registry) RolesWithPermission(permission models.Permission) []models.Role {
	out := make([]models.Role, 0, len(r.roles))
	for _, info := range r.roles {
		if r.HasPermission(info.Role, permission) {
			out = append(out, info.Role)
		}
	}
	return out
}

// MinimumRoleFor returns the least senior role holding a permission.
// The second return is false for permissions no role holds (unknown tokens).
func (r *Registry) MinimumRoleFor(permission models.Permission) (models.Role, bool) {
	for _, info := range r.roles {
		if r.HasPermission(info.Role, permission) {
			return info.Role, true
		}
	}
	return "", false
}
