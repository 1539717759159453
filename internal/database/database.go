// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package database provides the DuckDB-backed profile store: persistent role
// assignments and the append-only role audit log consumed by the
// authorization checkpoint.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/railnav/homedoor/internal/logging"
)

// Config holds database connection configuration.
type Config struct {
	// Path is the DuckDB database file. ":memory:" for an in-memory store.
	Path string

	// MaxOpenConns limits the connection pool size.
	MaxOpenConns int
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Path:         "homedoor.db",
		MaxOpenConns: 4,
	}
}

// DB wraps the DuckDB connection and exposes the role store operations.
type DB struct {
	conn *sql.DB
}

// New opens the database, verifies connectivity, and initializes the schema.
func New(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	conn, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database ready")
	return db, nil
}

// initSchema creates the role store tables and indexes.
func (db *DB) initSchema() error {
	queries := []string{
		// Persistent role assignments. ID is assigned manually (MAX(id)+1)
		// since DuckDB does not support IDENTITY with PRIMARY KEY.
		`CREATE TABLE IF NOT EXISTS user_roles (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'viewer',
			assigned_by TEXT,
			assigned_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMPTZ,
			is_active BOOLEAN DEFAULT TRUE,
			metadata JSON
		);`,

		// Append-only audit log of role assignments, revocations, and
		// updates. Entries are immutable once written.
		`CREATE TABLE IF NOT EXISTS role_audit_log (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			actor_id TEXT NOT NULL,
			actor_username TEXT,
			action TEXT NOT NULL,
			target_user_id TEXT NOT NULL,
			target_username TEXT,
			old_role TEXT,
			new_role TEXT,
			reason TEXT,
			ip_address TEXT,
			user_agent TEXT
		);`,

		`CREATE INDEX IF NOT EXISTS idx_user_roles_user_id ON user_roles(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_user_roles_role ON user_roles(role);`,
		`CREATE INDEX IF NOT EXISTS idx_user_roles_active ON user_roles(is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_role_audit_timestamp ON role_audit_log(timestamp DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_role_audit_target ON role_audit_log(target_user_id);`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("schema query failed: %w", err)
		}
	}

	return nil
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// closeQuietly closes a connection, logging any error.
func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database connection")
	}
}
