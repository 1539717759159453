// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/railnav/homedoor/internal/logging"
	"github.com/railnav/homedoor/internal/models"
)

var (
	// ErrRoleNotFound is returned when a user has no effective role
	// assignment. Callers decide what absence means; the store never
	// substitutes a default.
	ErrRoleNotFound = errors.New("role assignment not found")

	// ErrInvalidRole is returned when a role value is not recognized.
	ErrInvalidRole = errors.New("invalid role")
)

// rbacMutex serializes role writes. DuckDB handles concurrent reads well
// but write-write conflicts surface as transaction errors, and the
// MAX(id)+1 ID generation needs the same protection.
var rbacMutex sync.Mutex

// scanUserRoleRow scans a user_roles row into a UserRole.
func scanUserRoleRow(row interface{ Scan(...any) error }) (*models.UserRole, error) {
	var ur models.UserRole
	var assignedBy, metadata sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(
		&ur.ID,
		&ur.UserID,
		&ur.Username,
		&ur.Role,
		&assignedBy,
		&ur.AssignedAt,
		&expiresAt,
		&ur.IsActive,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if assignedBy.Valid {
		ur.AssignedBy = assignedBy.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		ur.ExpiresAt = &t
	}
	if metadata.Valid {
		m := metadata.String
		ur.Metadata = &m
	}

	return &ur, nil
}

const userRoleColumns = `id, user_id, username, role, assigned_by, assigned_at, expires_at, is_active, metadata`

// GetUserRole returns the active role assignment for a user, or
// ErrRoleNotFound when none exists.
func (db *DB) GetUserRole(ctx context.Context, userID string) (*models.UserRole, error) {
	query := `SELECT ` + userRoleColumns + `
		FROM user_roles
		WHERE user_id = ? AND is_active = TRUE
			AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
		ORDER BY assigned_at DESC
		LIMIT 1`

	ur, err := scanUserRoleRow(db.conn.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to query user role: %w", err)
	}

	return ur, nil
}

// GetEffectiveRole returns the role currently in effect for a user:
// active and not past its expiry. Absence is reported as ErrRoleNotFound,
// never papered over with a default.
func (db *DB) GetEffectiveRole(ctx context.Context, userID string) (models.Role, error) {
	ur, err := db.GetUserRole(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ur.IsEffective() {
		return "", ErrRoleNotFound
	}
	return ur.Role, nil
}

// SetUserRole creates or replaces a user's role assignment and records the
// change in the audit log. The previous assignment, if any, is deactivated
// rather than deleted so history survives.
func (db *DB) SetUserRole(ctx context.Context, role *models.UserRole, actorID, actorUsername, reason string) (*models.UserRole, error) {
	if role == nil {
		return nil, errors.New("role assignment is nil")
	}
	if !models.IsValidRole(role.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role.Role)
	}

	rbacMutex.Lock()
	defer rbacMutex.Unlock()

	existing, err := db.GetUserRole(ctx, role.UserID)
	if err != nil && !errors.Is(err, ErrRoleNotFound) {
		return nil, err
	}

	var oldRole models.Role
	action := models.AuditActionAssign
	if existing != nil {
		oldRole = existing.Role
		action = models.AuditActionUpdate
		if _, err := db.conn.ExecContext(ctx,
			`UPDATE user_roles SET is_active = FALSE WHERE user_id = ? AND is_active = TRUE`,
			role.UserID); err != nil {
			return nil, fmt.Errorf("failed to deactivate previous role: %w", err)
		}
	}

	var nextID int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM user_roles`).Scan(&nextID); err != nil {
		return nil, fmt.Errorf("failed to allocate role id: %w", err)
	}

	if role.AssignedAt.IsZero() {
		role.AssignedAt = time.Now().UTC()
	}
	role.ID = nextID
	role.IsActive = true

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO user_roles (`+userRoleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		role.ID,
		role.UserID,
		role.Username,
		string(role.Role),
		nullString(role.AssignedBy),
		role.AssignedAt,
		nullTime(role.ExpiresAt),
		role.IsActive,
		nullStringPtr(role.Metadata),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user role: %w", err)
	}

	entry := models.NewRoleAuditEntry(actorID, actorUsername, action, role.UserID, role.Username)
	entry.OldRole = oldRole
	entry.NewRole = role.Role
	entry.Reason = reason
	if err := db.auditRoleChange(ctx, entry); err != nil {
		logging.Warn().Err(err).Str("user_id", role.UserID).Msg("Failed to write role audit entry")
	}

	logging.Info().
		Str("user_id", role.UserID).
		Str("role", string(role.Role)).
		Str("actor_id", actorID).
		Msg("Role assignment stored")

	return role, nil
}

// DeleteUserRole deactivates a user's role assignment. Returns
// ErrRoleNotFound when the user has no active assignment.
func (db *DB) DeleteUserRole(ctx context.Context, userID, actorID, actorUsername, reason string) error {
	rbacMutex.Lock()
	defer rbacMutex.Unlock()

	existing, err := db.GetUserRole(ctx, userID)
	if err != nil {
		return err
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE user_roles SET is_active = FALSE WHERE user_id = ? AND is_active = TRUE`,
		userID); err != nil {
		return fmt.Errorf("failed to deactivate role: %w", err)
	}

	entry := models.NewRoleAuditEntry(actorID, actorUsername, models.AuditActionRevoke, userID, existing.Username)
	entry.OldRole = existing.Role
	entry.Reason = reason
	if err := db.auditRoleChange(ctx, entry); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("Failed to write role audit entry")
	}

	logging.Info().
		Str("user_id", userID).
		Str("actor_id", actorID).
		Msg("Role assignment revoked")

	return nil
}

// ListUserRoles returns role assignments, optionally restricted to active
// assignments and/or a single role.
func (db *DB) ListUserRoles(ctx context.Context, activeOnly bool, roleFilter models.Role) ([]*models.UserRole, error) {
	query := `SELECT ` + userRoleColumns + ` FROM user_roles WHERE 1=1`
	args := []any{}

	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	if roleFilter != "" {
		if !models.IsValidRole(roleFilter) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, roleFilter)
		}
		query += ` AND role = ?`
		args = append(args, string(roleFilter))
	}
	query += ` ORDER BY assigned_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var result []*models.UserRole
	for rows.Next() {
		ur, err := scanUserRoleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		result = append(result, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user roles: %w", err)
	}

	return result, nil
}

// GetRoleStats returns aggregate counts over role assignments.
func (db *DB) GetRoleStats(ctx context.Context) (*models.RoleStats, error) {
	stats := &models.RoleStats{
		ByRole: make(map[models.Role]int),
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT role, COUNT(*) FROM user_roles WHERE is_active = TRUE GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("failed to query role stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("failed to scan role stats: %w", err)
		}
		stats.ByRole[models.Role(role)] = count
		stats.TotalUsers += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role stats: %w", err)
	}

	now := time.Now().UTC()
	err = db.conn.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE is_active AND (expires_at IS NULL OR expires_at > ?)),
			COUNT(*) FILTER (WHERE is_active AND expires_at IS NOT NULL AND expires_at <= ?),
			COUNT(*) FILTER (WHERE NOT is_active)
		FROM user_roles`, now, now).
		Scan(&stats.ActiveRoles, &stats.ExpiredRoles, &stats.InactiveRoles)
	if err != nil {
		return nil, fmt.Errorf("failed to query role counts: %w", err)
	}

	return stats, nil
}

// auditRoleChange writes an entry to the role audit log. Callers hold
// rbacMutex.
func (db *DB) auditRoleChange(ctx context.Context, entry *models.RoleAuditEntry) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO role_audit_log
			(id, timestamp, actor_id, actor_username, action, target_user_id,
			 target_username, old_role, new_role, reason, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp,
		entry.ActorID,
		nullString(entry.ActorUsername),
		entry.Action,
		entry.TargetUserID,
		nullString(entry.TargetUsername),
		nullString(string(entry.OldRole)),
		nullString(string(entry.NewRole)),
		nullString(entry.Reason),
		nullString(entry.IPAddress),
		nullString(entry.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// AuditRoleChange records a role change event outside the write paths,
// for callers that manage assignments externally.
func (db *DB) AuditRoleChange(ctx context.Context, entry *models.RoleAuditEntry) error {
	rbacMutex.Lock()
	defer rbacMutex.Unlock()
	return db.auditRoleChange(ctx, entry)
}

// ExpireRoles deactivates role assignments past their expiry and records
// an audit entry for each. Intended for a periodic background job.
// Returns the number of assignments expired.
func (db *DB) ExpireRoles(ctx context.Context, systemActorID string) (int, error) {
	rbacMutex.Lock()
	defer rbacMutex.Unlock()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, username, role
		FROM user_roles
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired roles: %w", err)
	}

	type expired struct {
		userID, username, role string
	}
	var found []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.userID, &e.username, &e.role); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expired role: %w", err)
		}
		found = append(found, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to iterate expired roles: %w", err)
	}
	rows.Close()

	for _, e := range found {
		if _, err := db.conn.ExecContext(ctx,
			`UPDATE user_roles SET is_active = FALSE
			WHERE user_id = ? AND is_active = TRUE AND expires_at <= CURRENT_TIMESTAMP`,
			e.userID); err != nil {
			return 0, fmt.Errorf("failed to expire role for %s: %w", e.userID, err)
		}

		entry := models.NewRoleAuditEntry(systemActorID, "system", models.AuditActionExpire, e.userID, e.username)
		entry.OldRole = models.Role(e.role)
		entry.Reason = "role assignment expired"
		if err := db.auditRoleChange(ctx, entry); err != nil {
			logging.Warn().Err(err).Str("user_id", e.userID).Msg("Failed to write role audit entry")
		}
	}

	if len(found) > 0 {
		logging.Info().Int("count", len(found)).Msg("Expired role assignments deactivated")
	}

	return len(found), nil
}

// GetRoleAuditLog returns audit entries newest-first, optionally filtered
// by target user.
func (db *DB) GetRoleAuditLog(ctx context.Context, userID string, limit, offset int) ([]*models.RoleAuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, timestamp, actor_id, actor_username, action, target_user_id,
			target_username, old_role, new_role, reason, ip_address, user_agent
		FROM role_audit_log`
	args := []any{}
	if userID != "" {
		query += ` WHERE target_user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []*models.RoleAuditEntry
	for rows.Next() {
		entry, err := scanAuditEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log: %w", err)
	}

	return result, nil
}

// scanAuditEntryRow scans a role_audit_log row into a RoleAuditEntry.
func scanAuditEntryRow(row interface{ Scan(...any) error }) (*models.RoleAuditEntry, error) {
	var entry models.RoleAuditEntry
	var actorUsername, targetUsername, oldRole, newRole, reason, ipAddress, userAgent sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.Timestamp,
		&entry.ActorID,
		&actorUsername,
		&entry.Action,
		&entry.TargetUserID,
		&targetUsername,
		&oldRole,
		&newRole,
		&reason,
		&ipAddress,
		&userAgent,
	)
	if err != nil {
		return nil, err
	}

	entry.ActorUsername = actorUsername.String
	entry.TargetUsername = targetUsername.String
	entry.OldRole = models.Role(oldRole.String)
	entry.NewRole = models.Role(newRole.String)
	entry.Reason = reason.String
	entry.IPAddress = ipAddress.String
	entry.UserAgent = userAgent.String

	return &entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
