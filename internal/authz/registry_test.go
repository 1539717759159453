// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"testing"

	"github.com/railnav/homedoor/internal/models"
)

func TestRegistryLevelsStrictlyIncreasing(t *testing.T) {
	r := NewRegistry()

	roles := r.Roles()
	if len(roles) != 4 {
		t.Fatalf("role count = %d, want 4", len(roles))
	}

	for i := 1; i < len(roles); i++ {
		if roles[i].Level <= roles[i-1].Level {
			t.Errorf("level(%s) = %d not greater than level(%s) = %d",
				roles[i].Role, roles[i].Level, roles[i-1].Role, roles[i-1].Level)
		}
	}
}

func TestRegistryLevelInjective(t *testing.T) {
	r := NewRegistry()

	seen := make(map[int]models.Role)
	for _, info := range r.Roles() {
		if prev, ok := seen[info.Level]; ok {
			t.Errorf("level %d assigned to both %s and %s", info.Level, prev, info.Role)
		}
		seen[info.Level] = info.Role
	}
}

// Every permission granted to a role must also be granted to all roles with
// a strictly greater level. The registry derives effective sets by folding
// deltas, but the property is verified over the whole catalog anyway.
func TestRegistryMonotonicity(t *testing.T) {
	r := NewRegistry()
	roles := r.Roles()

	for i := 0; i < len(roles); i++ {
		for j := i + 1; j < len(roles); j++ {
			junior, senior := roles[i].Role, roles[j].Role
			for _, p := range models.ValidPermissions {
				if r.HasPermission(junior, p) && !r.HasPermission(senior, p) {
					t.Errorf("%s holds %s but more senior %s does not", junior, p, senior)
				}
			}
		}
	}
}

func TestRegistryEffectiveSets(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		role models.Role
		want int
	}{
		{models.RoleViewer, 2},
		{models.RoleContributor, 4},
		{models.RoleEditor, 9},
		{models.RoleDeveloper, 11},
	}

	for _, tt := range tests {
		got := r.PermissionsOf(tt.role)
		if len(got) != tt.want {
			t.Errorf("len(PermissionsOf(%s)) = %d, want %d", tt.role, len(got), tt.want)
		}
	}

	// Developer holds the complete catalog
	for _, p := range models.ValidPermissions {
		if !r.HasPermission(models.RoleDeveloper, p) {
			t.Errorf("developer missing %s", p)
		}
	}
}

func TestViewerCannotCreateStation(t *testing.T) {
	r := NewRegistry()

	role, ok := r.ParseRole("閲覧者")
	if !ok {
		t.Fatal("閲覧者 did not resolve")
	}
	if r.HasPermission(role, models.PermCreateStation) {
		t.Error("閲覧者 should not hold create_station")
	}
}

func TestEditorInheritsViewContent(t *testing.T) {
	r := NewRegistry()

	role, ok := r.ParseRole("編集者")
	if !ok {
		t.Fatal("編集者 did not resolve")
	}
	if !r.HasPermission(role, models.PermViewContent) {
		t.Error("編集者 should inherit view_content from lower tiers")
	}
}

func TestMinimumRoleComparisons(t *testing.T) {
	r := NewRegistry()

	editor, ok := r.ParseRole("編集者")
	if !ok {
		t.Fatal("編集者 did not resolve")
	}

	if !r.HasMinimumRole(models.RoleDeveloper, editor) {
		t.Error("開発者 (level 4) should satisfy minimum 編集者 (level 3)")
	}
	if r.HasMinimumRole(models.RoleContributor, editor) {
		t.Error("提供者 (level 2) should not satisfy minimum 編集者 (level 3)")
	}
	if !r.HasMinimumRole(models.RoleEditor, editor) {
		t.Error("a role should satisfy its own minimum")
	}
}

func TestUndefinedRoleSafety(t *testing.T) {
	r := NewRegistry()

	for _, role := range []models.Role{"", "superuser", "ADMIN", "管理者"} {
		for _, p := range models.ValidPermissions {
			if r.HasPermission(role, p) {
				t.Errorf("HasPermission(%q, %s) = true, want false", role, p)
			}
		}
		for _, required := range models.ValidRoles {
			if r.HasMinimumRole(role, required) {
				t.Errorf("HasMinimumRole(%q, %s) = true, want false", role, required)
			}
		}
		if got := r.PermissionsOf(role); got == nil || len(got) != 0 {
			t.Errorf("PermissionsOf(%q) = %v, want empty non-nil slice", role, got)
		}
		if r.Level(role) != 0 {
			t.Errorf("Level(%q) = %d, want 0", role, r.Level(role))
		}
	}
}

func TestQuerySurfaceIdempotent(t *testing.T) {
	r := NewRegistry()

	first := r.HasPermission(models.RoleEditor, models.PermManageNews)
	for i := 0; i < 100; i++ {
		if got := r.HasPermission(models.RoleEditor, models.PermManageNews); got != first {
			t.Fatalf("call %d returned %v, first call returned %v", i, got, first)
		}
	}
}

func TestParseRole(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		input  string
		want   models.Role
		wantOK bool
	}{
		{"viewer", models.RoleViewer, true},
		{"contributor", models.RoleContributor, true},
		{"editor", models.RoleEditor, true},
		{"developer", models.RoleDeveloper, true},
		{"閲覧者", models.RoleViewer, true},
		{"提供者", models.RoleContributor, true},
		{"編集者", models.RoleEditor, true},
		{"開発者", models.RoleDeveloper, true},
		{"admin", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := r.ParseRole(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseRole(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoleInfoMetadata(t *testing.T) {
	r := NewRegistry()

	info, ok := r.RoleInfo(models.RoleDeveloper)
	if !ok {
		t.Fatal("developer not in registry")
	}
	if info.Level != 4 {
		t.Errorf("developer level = %d, want 4", info.Level)
	}
	if info.DisplayName != "開発者" {
		t.Errorf("developer display name = %q, want 開発者", info.DisplayName)
	}
	if info.Description == "" || info.ColorTag == "" {
		t.Error("role metadata should include description and color tag")
	}

	if _, ok := r.RoleInfo("nobody"); ok {
		t.Error("unknown role should not resolve metadata")
	}
}

func TestMinimumRoleFor(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		permission models.Permission
		want       models.Role
	}{
		{models.PermViewContent, models.RoleViewer},
		{models.PermCreateStation, models.RoleContributor},
		{models.PermDeleteStation, models.RoleEditor},
		{models.PermManageUsers, models.RoleDeveloper},
	}

	for _, tt := range tests {
		got, ok := r.MinimumRoleFor(tt.permission)
		if !ok {
			t.Fatalf("MinimumRoleFor(%s) not found", tt.permission)
		}
		if got != tt.want {
			t.Errorf("MinimumRoleFor(%s) = %s, want %s", tt.permission, got, tt.want)
		}
	}

	if _, ok := r.MinimumRoleFor("launch_rockets"); ok {
		t.Error("unknown permission should have no minimum role")
	}
}

func TestRolesWithPermission(t *testing.T) {
	r := NewRegistry()

	got := r.RolesWithPermission(models.PermCreateStation)
	want := []models.Role{models.RoleContributor, models.RoleEditor, models.RoleDeveloper}
	if len(got) != len(want) {
		t.Fatalf("RolesWithPermission(create_station) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RolesWithPermission(create_station)[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPermissionsCatalog(t *testing.T) {
	r := NewRegistry()

	if got := len(r.Permissions()); got != 11 {
		t.Errorf("catalog size = %d, want 11", got)
	}
}
