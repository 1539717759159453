// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides layered configuration for the Homedoor
// authorization service using Koanf v2.
//
// Configuration sources in priority order (highest wins):
//  1. Environment variables
//  2. Config file (config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"

	"github.com/railnav/homedoor/internal/models"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Authz    AuthzConfig    `koanf:"authz"`
	Database DatabaseConfig `koanf:"database"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address (empty means all interfaces).
	Host string `koanf:"host"`

	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout is the grace period for in-flight requests on shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests is the number of requests allowed per window per IP.
	RateLimitRequests int `koanf:"rate_limit_requests"`

	// RateLimitWindow is the rate limiting window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	// AuthMode selects the authentication strategy: none, basic, or jwt.
	AuthMode string `koanf:"auth_mode"`

	// JWTSecret is the HMAC signing secret (32+ characters required for jwt mode).
	JWTSecret string `koanf:"jwt_secret"`

	// SessionTimeout is the JWT token lifetime.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminUsername is the bootstrap administrator account name.
	AdminUsername string `koanf:"admin_username"`

	// AdminPassword is the bootstrap administrator password (8+ characters).
	AdminPassword string `koanf:"admin_password"`

	// BasicAuthDefaultRole is the role granted to basic-auth users that are
	// not the admin account.
	BasicAuthDefaultRole string `koanf:"basic_auth_default_role"`
}

// AuthzConfig holds authorization subsystem settings.
type AuthzConfig struct {
	// DefaultRole is assigned to identities without an explicit role record.
	DefaultRole string `koanf:"default_role"`

	// CacheEnabled enables role and decision caching.
	CacheEnabled bool `koanf:"cache_enabled"`

	// CacheTTL is how long cached role lookups and decisions stay valid.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// AuditEnabled enables audit logging of authorization decisions.
	AuditEnabled bool `koanf:"audit_enabled"`

	// AuditSampleRate is the fraction of allowed decisions to log (0.0-1.0).
	// Denials are always logged.
	AuditSampleRate float64 `koanf:"audit_sample_rate"`

	// AuditBufferSize is the async audit buffer capacity.
	AuditBufferSize int `koanf:"audit_buffer_size"`
}

// DatabaseConfig holds profile store settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file (":memory:" for ephemeral).
	Path string `koanf:"path"`

	// MaxOpenConns limits the connection pool size.
	MaxOpenConns int `koanf:"max_open_conns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes caller file/line in log output.
	Caller bool `koanf:"caller"`
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.Security.AuthMode {
	case "none", "basic", "jwt":
	default:
		return fmt.Errorf("invalid auth_mode %q (must be none, basic, or jwt)", c.Security.AuthMode)
	}

	if c.Security.AuthMode == "jwt" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters in jwt mode")
	}

	if c.Security.AuthMode != "none" {
		if c.Security.AdminUsername == "" {
			return fmt.Errorf("admin_username is required when auth is enabled")
		}
		if len(c.Security.AdminPassword) < 8 {
			return fmt.Errorf("admin_password must be at least 8 characters")
		}
	}

	if !models.IsValidRole(models.Role(c.Authz.DefaultRole)) {
		return fmt.Errorf("invalid default_role %q", c.Authz.DefaultRole)
	}

	if c.Authz.AuditSampleRate < 0 || c.Authz.AuditSampleRate > 1 {
		return fmt.Errorf("audit_sample_rate must be between 0.0 and 1.0")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	return nil
}
