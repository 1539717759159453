// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"fmt"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/util"

	"github.com/railnav/homedoor/internal/models"
)

// rbacModel is the Casbin model: RBAC with role inheritance and
// keyMatch path patterns.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && r.act == p.act
`

// routeBinding maps one permission to the route-level objects and actions
// it unlocks. The route policy is generated from the Registry through this
// table, so the HTTP view of the matrix cannot drift from the in-process
// query surface.
type routeBinding struct {
	object  string
	actions []string
}

var routeBindings = map[models.Permission][]routeBinding{
	models.PermViewContent: {
		{object: "/api/v1/stations*", actions: []string{"read"}},
		{object: "/api/v1/lines*", actions: []string{"read"}},
		{object: "/api/v1/companies*", actions: []string{"read"}},
		{object: "/api/v1/news*", actions: []string{"read"}},
	},
	models.PermViewStatistics: {
		{object: "/api/v1/statistics*", actions: []string{"read"}},
	},
	models.PermCreateStation: {
		{object: "/api/v1/stations", actions: []string{"write"}},
	},
	models.PermUpdateStation: {
		{object: "/api/v1/stations/*", actions: []string{"write"}},
	},
	models.PermDeleteStation: {
		{object: "/api/v1/stations/*", actions: []string{"delete"}},
	},
	models.PermManageLines: {
		{object: "/api/v1/lines*", actions: []string{"write", "delete"}},
	},
	models.PermManageCompanies: {
		{object: "/api/v1/companies*", actions: []string{"write", "delete"}},
	},
	models.PermManageNews: {
		{object: "/api/v1/news*", actions: []string{"write", "delete"}},
	},
	models.PermViewHistory: {
		{object: "/api/v1/history*", actions: []string{"read"}},
	},
	models.PermManageUsers: {
		{object: "/api/v1/users*", actions: []string{"read", "write", "delete"}},
	},
	models.PermSystemAdmin: {
		{object: "/api/v1/admin*", actions: []string{"read", "write", "delete"}},
	},
}

// EnforcerConfig holds configuration for the route-level enforcer.
type EnforcerConfig struct {
	// DefaultRole is used for subjects without an explicit role.
	DefaultRole models.Role

	// CacheEnabled enables enforcement decision caching.
	CacheEnabled bool

	// CacheTTL is how long to cache decisions.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns default configuration.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		DefaultRole:  models.RoleViewer,
		CacheEnabled: true,
		CacheTTL:     5 * time.Minute,
	}
}

// Enforcer evaluates route-level policy (resource path and action) on top of
// the Registry. Policies are generated from the Registry's delta grants with
// a grouping chain providing inheritance, mirroring how the effective
// permission sets are folded.
type Enforcer struct {
	config   *EnforcerConfig
	registry *Registry
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// NewEnforcer creates a route-level enforcer with policies derived from the
// registry.
func NewEnforcer(registry *Registry, config *EnforcerConfig) (*Enforcer, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	e := &Enforcer{
		config:   config,
		registry: registry,
		enforcer: enforcer,
	}

	if err := e.loadPolicies(); err != nil {
		return nil, err
	}

	if config.CacheEnabled {
		e.cache = newDecisionCache(config.CacheTTL)
	}

	return e, nil
}

// loadPolicies generates p rules from each role's delta grants and a g chain
// from each role to the one below it. Inheritance through the chain gives a
// senior role every junior rule, matching the folded effective sets.
func (e *Enforcer) loadPolicies() error {
	roles := e.registry.Roles()

	for i, info := range roles {
		for _, p := range deltaGrants(info.Role) {
			for _, binding := range routeBindings[p] {
				for _, action := range binding.actions {
					if _, err := e.enforcer.AddPolicy(string(info.Role), binding.object, action); err != nil {
						return fmt.Errorf("failed to add policy for role %s: %w", info.Role, err)
					}
				}
			}
		}

		if i > 0 {
			if _, err := e.enforcer.AddGroupingPolicy(string(info.Role), string(roles[i-1].Role)); err != nil {
				return fmt.Errorf("failed to add role inheritance for %s: %w", info.Role, err)
			}
		}
	}

	return nil
}

// deltaGrants returns the permissions a role adds on top of the tier below.
func deltaGrants(role models.Role) []models.Permission {
	for _, rg := range roleGrants {
		if rg.info.Role == role {
			return rg.grants
		}
	}
	return nil
}

// Enforce checks if the subject can perform the action on the object.
// The subject is a role name or a user ID with a grouping policy.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(subject, object, action); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.set(subject, object, action, allowed)
	}

	return allowed, nil
}

// EnforceWithRole checks route access for a resolved role. An empty or
// unknown role falls through to deny, never an error. Decisions are cached
// per role, so a user whose role changes sees fresh decisions immediately:
// the new role is a new cache subject.
func (e *Enforcer) EnforceWithRole(role models.Role, object, action string) (bool, error) {
	if _, ok := e.registry.RoleInfo(role); !ok {
		return false, nil
	}
	return e.Enforce(string(role), object, action)
}

// RequiredPermissionFor returns the permission backing the route binding
// matched by the object and action. Lets a denial report what the route
// required, the same way permission checks do. Bindings are scanned in
// catalog order, so overlapping patterns resolve deterministically.
func (e *Enforcer) RequiredPermissionFor(object, action string) (models.Permission, bool) {
	for _, perm := range e.registry.Permissions() {
		for _, binding := range routeBindings[perm] {
			if !util.KeyMatch(object, binding.object) {
				continue
			}
			for _, a := range binding.actions {
				if a == action {
					return perm, true
				}
			}
		}
	}
	return "", false
}

// GetPolicy returns all route policy rules.
func (e *Enforcer) GetPolicy() [][]string {
	//nolint:errcheck // GetPolicy only fails if enforcer is nil, which is a programming error
	policies, _ := e.enforcer.GetPolicy()
	return policies
}

// GetFilteredPolicy returns route policy rules filtered by field.
func (e *Enforcer) GetFilteredPolicy(fieldIndex int, fieldValues ...string) [][]string {
	//nolint:errcheck // GetFilteredPolicy only fails if enforcer is nil, which is a programming error
	policies, _ := e.enforcer.GetFilteredPolicy(fieldIndex, fieldValues...)
	return policies
}

// GetGroupingPolicy returns the role inheritance chain.
func (e *Enforcer) GetGroupingPolicy() [][]string {
	//nolint:errcheck // GetGroupingPolicy only fails if enforcer is nil, which is a programming error
	policies, _ := e.enforcer.GetGroupingPolicy()
	return policies
}

// Close stops the enforcer and cleans up resources.
func (e *Enforcer) Close() {
	if e.cache != nil {
		e.cache.stop()
	}
}
