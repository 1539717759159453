// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/railnav/homedoor/internal/auth"
	"github.com/railnav/homedoor/internal/authz"
	"github.com/railnav/homedoor/internal/database"
	"github.com/railnav/homedoor/internal/models"
)

// mockStore implements authz.RoleProvider, RoleDirectory, and Pinger
// in memory.
type mockStore struct {
	mu     sync.Mutex
	roles  map[string]*models.UserRole
	audits []*models.RoleAuditEntry
}

func newMockStore() *mockStore {
	return &mockStore{roles: make(map[string]*models.UserRole)}
}

func (m *mockStore) GetUserRole(_ context.Context, userID string) (*models.UserRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ur, ok := m.roles[userID]
	if !ok || !ur.IsEffective() {
		return nil, database.ErrRoleNotFound
	}
	return ur, nil
}

func (m *mockStore) GetEffectiveRole(ctx context.Context, userID string) (models.Role, error) {
	ur, err := m.GetUserRole(ctx, userID)
	if err != nil {
		return "", err
	}
	return ur.Role, nil
}

func (m *mockStore) SetUserRole(_ context.Context, role *models.UserRole, actorID, actorUsername, reason string) (*models.UserRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role.IsActive = true
	m.roles[role.UserID] = role
	entry := models.NewRoleAuditEntry(actorID, actorUsername, models.AuditActionAssign, role.UserID, role.Username)
	entry.NewRole = role.Role
	entry.Reason = reason
	m.audits = append(m.audits, entry)
	return role, nil
}

func (m *mockStore) DeleteUserRole(_ context.Context, userID, actorID, actorUsername, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ur, ok := m.roles[userID]
	if !ok {
		return database.ErrRoleNotFound
	}
	delete(m.roles, userID)
	entry := models.NewRoleAuditEntry(actorID, actorUsername, models.AuditActionRevoke, userID, ur.Username)
	entry.OldRole = ur.Role
	entry.Reason = reason
	m.audits = append(m.audits, entry)
	return nil
}

func (m *mockStore) ListUserRoles(_ context.Context, activeOnly bool, roleFilter models.Role) ([]*models.UserRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UserRole
	for _, ur := range m.roles {
		if roleFilter != "" && ur.Role != roleFilter {
			continue
		}
		out = append(out, ur)
	}
	return out, nil
}

func (m *mockStore) GetRoleStats(_ context.Context) (*models.RoleStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.RoleStats{ByRole: make(map[models.Role]int)}
	for _, ur := range m.roles {
		stats.ByRole[ur.Role]++
		stats.TotalUsers++
		stats.ActiveRoles++
	}
	return stats, nil
}

func (m *mockStore) GetRoleAuditLog(_ context.Context, userID string, limit, offset int) ([]*models.RoleAuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RoleAuditEntry
	for _, e := range m.audits {
		if userID != "" && e.TargetUserID != userID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

// seedRole inserts a role assignment directly into the mock.
func (m *mockStore) seedRole(t *testing.T, userID string, role models.Role) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[userID] = models.NewUserRole(userID, userID, role, "system")
}

const testJWTSecret = "test-secret-0123456789abcdef0123456789"

type apiFixture struct {
	handler http.Handler
	store   *mockStore
	service *authz.Service
	jwt     *auth.JWTManager
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	store := newMockStore()
	registry := authz.NewRegistry()

	service, err := authz.NewService(registry, store, &authz.ServiceConfig{
		DefaultRole:  models.RoleViewer,
		CacheEnabled: false,
		AuditEnabled: false,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(service.Close)

	enforcer, err := authz.NewEnforcer(registry, &authz.EnforcerConfig{CacheEnabled: false})
	if err != nil {
		t.Fatalf("NewEnforcer failed: %v", err)
	}
	t.Cleanup(enforcer.Close)

	jm, err := auth.NewJWTManager(testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	bm, err := auth.NewBasicAuthManager("admin", "admin-password")
	if err != nil {
		t.Fatalf("NewBasicAuthManager failed: %v", err)
	}

	handler, err := NewHandler(HandlerConfig{
		Service:          service,
		Enforcer:         enforcer,
		Directory:        store,
		Pinger:           store,
		JWTManager:       jm,
		BasicAuthManager: bm,
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}

	authMW := auth.NewMiddleware(auth.MiddlewareConfig{
		Mode:       auth.AuthModeJWT,
		JWTManager: jm,
	})
	authzMW := authz.NewMiddleware(service, enforcer)

	router := NewRouter(handler, authMW, authzMW, NewChiMiddleware(&ChiMiddlewareConfig{
		RateLimitDisabled: true,
	}))

	return &apiFixture{
		handler: router.Setup(),
		store:   store,
		service: service,
		jwt:     jm,
	}
}

// tokenFor issues a JWT for a user.
func (f *apiFixture) tokenFor(t *testing.T, username string) string {
	t.Helper()
	token, err := f.jwt.GenerateToken(username, "")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return token
}

// do performs a request against the router.
func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// decodeResponse unmarshals an APIResponse envelope.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("expected success")
	}
}

func TestLogin(t *testing.T) {
	f := setupAPI(t)

	t.Run("valid credentials issue token and seed role", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "admin",
			"password": "admin-password",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["token"] == "" {
			t.Error("expected token in response")
		}
		if data["role"] != "viewer" {
			t.Errorf("expected seeded viewer role, got %v", data["role"])
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "admin",
			"password": "wrong-password",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "admin",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestMe(t *testing.T) {
	f := setupAPI(t)
	f.store.seedRole(t, "tanaka", models.RoleEditor)

	t.Run("authenticated user sees role and permissions", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/me", f.tokenFor(t, "tanaka"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["role"] != "editor" {
			t.Errorf("expected editor, got %v", data["role"])
		}
		perms := data["permissions"].([]interface{})
		if len(perms) != 9 {
			t.Errorf("expected 9 editor permissions, got %d", len(perms))
		}
		info := data["role_info"].(map[string]interface{})
		if info["display_name"] != "編集者" {
			t.Errorf("expected 編集者 display name, got %v", info["display_name"])
		}
	})

	t.Run("unauthenticated gets 401", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/me", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestCheckEndpoint(t *testing.T) {
	f := setupAPI(t)
	f.store.seedRole(t, "suzuki", models.RoleViewer)

	t.Run("denied check returns decision with actual and required", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/authz/check", f.tokenFor(t, "suzuki"), map[string]string{
			"check":      "permission",
			"permission": "create_station",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for check query, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["allowed"] != false {
			t.Error("expected denial")
		}
		if data["actor_role"] != "viewer" {
			t.Errorf("expected actor_role viewer, got %v", data["actor_role"])
		}
		if data["required_role"] != "contributor" {
			t.Errorf("expected required_role contributor, got %v", data["required_role"])
		}
	})

	t.Run("minimum role check accepts Japanese name", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/authz/check", f.tokenFor(t, "suzuki"), map[string]string{
			"check": "minimum_role",
			"role":  "編集者",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["allowed"] != false {
			t.Error("expected viewer to fail editor minimum")
		}
		if data["required_role"] != "editor" {
			t.Errorf("expected canonical required_role editor, got %v", data["required_role"])
		}
	})

	t.Run("route check answers from the path bindings", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/authz/check", f.tokenFor(t, "suzuki"), map[string]string{
			"check":  "route",
			"path":   "/api/v1/stations",
			"action": "write",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["allowed"] != false {
			t.Error("expected viewer denied station write")
		}
		if data["required_permission"] != "create_station" {
			t.Errorf("expected required_permission create_station, got %v", data["required_permission"])
		}
		if data["required_role"] != "contributor" {
			t.Errorf("expected required_role contributor, got %v", data["required_role"])
		}
	})

	t.Run("route check allows within the role's bindings", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/authz/check", f.tokenFor(t, "suzuki"), map[string]string{
			"check":  "route",
			"path":   "/api/v1/stations/s-1",
			"action": "read",
		})
		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["allowed"] != true {
			t.Errorf("expected viewer allowed station read, got %v", resp.Data)
		}
	})

	t.Run("route check without path rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/authz/check", f.tokenFor(t, "suzuki"), map[string]string{
			"check":  "route",
			"action": "read",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("route check with unknown action rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/authz/check", f.tokenFor(t, "suzuki"), map[string]string{
			"check":  "route",
			"path":   "/api/v1/stations",
			"action": "execute",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid check kind rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/authz/check", f.tokenFor(t, "suzuki"), map[string]string{
			"check": "wildcard",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRoleCatalog(t *testing.T) {
	f := setupAPI(t)
	f.store.seedRole(t, "viewer-user", models.RoleViewer)

	t.Run("any role with view_content reads the catalog", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/authz/roles", f.tokenFor(t, "viewer-user"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		roles := data["roles"].([]interface{})
		if len(roles) != 4 {
			t.Fatalf("expected 4 roles, got %d", len(roles))
		}

		last := roles[3].(map[string]interface{})
		if last["role"] != "developer" || last["level"] != float64(4) {
			t.Errorf("expected developer at level 4, got %v", last)
		}
		if last["display_name"] != "開発者" {
			t.Errorf("expected 開発者, got %v", last["display_name"])
		}
	})

	t.Run("permission catalog lists 11 entries", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/authz/permissions", f.tokenFor(t, "viewer-user"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		perms := data["permissions"].([]interface{})
		if len(perms) != 11 {
			t.Errorf("expected 11 permissions, got %d", len(perms))
		}
	})

	t.Run("unauthenticated gets 401", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/authz/roles", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestSetUserRole(t *testing.T) {
	f := setupAPI(t)
	f.store.seedRole(t, "admin-user", models.RoleDeveloper)
	f.store.seedRole(t, "target-user", models.RoleViewer)

	t.Run("developer promotes with Japanese role name", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/v1/users/target-user/role", f.tokenFor(t, "admin-user"), map[string]string{
			"role":   "編集者",
			"reason": "station data lead",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		stored := f.store.roles["target-user"]
		if stored.Role != models.RoleEditor {
			t.Errorf("expected stored editor role, got %s", stored.Role)
		}
	})

	t.Run("viewer denied with decision details", func(t *testing.T) {
		f.store.seedRole(t, "lowly", models.RoleViewer)
		rec := f.do(t, http.MethodPut, "/api/v1/users/target-user/role", f.tokenFor(t, "lowly"), map[string]string{
			"role": "editor",
		})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}

		// The route gate writes the checkpoint's denial payload directly.
		var denial struct {
			Error    string         `json:"error"`
			Decision authz.Decision `json:"decision"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &denial); err != nil {
			t.Fatalf("failed to decode denial: %v", err)
		}
		if denial.Decision.ActorRole != models.RoleViewer {
			t.Errorf("expected actor_role viewer in denial, got %v", denial.Decision.ActorRole)
		}
		if denial.Decision.RequiredPermission != models.PermManageUsers {
			t.Errorf("expected required_permission manage_users, got %v", denial.Decision.RequiredPermission)
		}
	})

	t.Run("self change rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/v1/users/admin-user/role", f.tokenFor(t, "admin-user"), map[string]string{
			"role": "viewer",
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409 for self change, got %d", rec.Code)
		}
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/v1/users/target-user/role", f.tokenFor(t, "admin-user"), map[string]string{
			"role": "overlord",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown role, got %d", rec.Code)
		}
	})
}

func TestGetUserRoleEndpoint(t *testing.T) {
	f := setupAPI(t)
	f.store.seedRole(t, "admin-user", models.RoleDeveloper)
	f.store.seedRole(t, "worker", models.RoleContributor)

	t.Run("own role visible", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/users/worker/role", f.tokenFor(t, "worker"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["role"] != "contributor" {
			t.Errorf("expected contributor, got %v", data["role"])
		}
	})

	t.Run("other user requires manage_users", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/users/admin-user/role", f.tokenFor(t, "worker"), nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("developer reads any role", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/users/worker/role", f.tokenFor(t, "admin-user"), nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("absent assignment is 404", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/users/ghost/role", f.tokenFor(t, "admin-user"), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestDeleteUserRole(t *testing.T) {
	f := setupAPI(t)
	f.store.seedRole(t, "admin-user", models.RoleDeveloper)
	f.store.seedRole(t, "leaver", models.RoleContributor)

	rec := f.do(t, http.MethodDelete, "/api/v1/users/leaver/role?reason=offboarding", f.tokenFor(t, "admin-user"), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := f.store.roles["leaver"]; ok {
		t.Error("expected role removed from store")
	}
}

func TestListStatsAudit(t *testing.T) {
	f := setupAPI(t)
	f.store.seedRole(t, "admin-user", models.RoleDeveloper)
	f.store.seedRole(t, "v1", models.RoleViewer)
	f.store.seedRole(t, "v2", models.RoleViewer)

	adminToken := f.tokenFor(t, "admin-user")

	t.Run("list roles", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/users/roles", adminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeResponse(t, rec)
		if resp.Meta == nil || resp.Meta.Pagination == nil || resp.Meta.Pagination.Count != 3 {
			t.Error("expected pagination count 3")
		}
	})

	t.Run("list filters by role", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/users/roles?role=閲覧者", adminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Meta.Pagination.Count != 2 {
			t.Errorf("expected 2 viewers, got %d", resp.Meta.Pagination.Count)
		}
	})

	t.Run("stats", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/authz/stats", adminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]interface{})
		if data["total_users"] != float64(3) {
			t.Errorf("expected 3 users, got %v", data["total_users"])
		}
	})

	t.Run("audit log", func(t *testing.T) {
		// Generate an audited change first.
		f.do(t, http.MethodPut, "/api/v1/users/v1/role", adminToken, map[string]string{
			"role": "contributor", "reason": "promotion",
		})

		rec := f.do(t, http.MethodGet, "/api/v1/authz/audit?user_id=v1", adminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Meta.Pagination.Count < 1 {
			t.Error("expected at least one audit entry")
		}
	})

	t.Run("viewer denied on all management reads", func(t *testing.T) {
		viewerToken := f.tokenFor(t, "v2")
		for _, path := range []string{"/api/v1/users/roles", "/api/v1/authz/stats", "/api/v1/authz/audit"} {
			rec := f.do(t, http.MethodGet, path, viewerToken, nil)
			if rec.Code != http.StatusForbidden {
				t.Errorf("expected 403 for %s, got %d", path, rec.Code)
			}
		}
	})
}

func TestAdminBootstrapUnlocksRoleManagement(t *testing.T) {
	f := setupAPI(t)

	// Startup promotes the configured administrator before any login.
	if err := f.service.BootstrapAdmin(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("BootstrapAdmin() error = %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "admin-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if data["role"] != "developer" {
		t.Fatalf("expected bootstrapped developer role at login, got %v", data["role"])
	}
	token, ok := data["token"].(string)
	if !ok || token == "" {
		t.Fatal("expected token in login response")
	}

	// The first account can now grant the first role.
	rec = f.do(t, http.MethodPut, "/api/v1/users/suzuki/role", token, map[string]string{
		"role":   "編集者",
		"reason": "initial staffing",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for role grant, got %d: %s", rec.Code, rec.Body.String())
	}
	if got, _ := f.store.GetEffectiveRole(context.Background(), "suzuki"); got != models.RoleEditor {
		t.Errorf("granted role = %q, want editor", got)
	}
}
