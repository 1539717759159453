// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/homedoor/config.yaml",
	"/etc/homedoor/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all sensible default values.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "",
			Port:              8710,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       nil,
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Security: SecurityConfig{
			AuthMode:             "none",
			JWTSecret:            "",
			SessionTimeout:       24 * time.Hour,
			AdminUsername:        "",
			AdminPassword:        "",
			BasicAuthDefaultRole: "viewer",
		},
		Authz: AuthzConfig{
			DefaultRole:     "viewer",
			CacheEnabled:    true,
			CacheTTL:        5 * time.Minute,
			AuditEnabled:    true,
			AuditSampleRate: 1.0,
			AuditBufferSize: 1000,
		},
		Database: DatabaseConfig{
			Path:         "/data/homedoor.duckdb",
			MaxOpenConns: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional config file, and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// CORS origins arrive as a comma-separated string from the environment.
	if raw := k.String("server.cors_origins"); raw != "" && strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		cfg.Server.CORSOrigins = origins
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the path of the first config file that exists,
// honoring the CONFIG_PATH override.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if fileExists(p) {
			return p
		}
		return ""
	}
	for _, p := range DefaultConfigPaths {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped keys return empty string so random environment variables
// cannot pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_read_timeout":   "server.read_timeout",
		"http_write_timeout":  "server.write_timeout",
		"shutdown_timeout":    "server.shutdown_timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_requests",
		"rate_limit_window":   "server.rate_limit_window",

		// Security mappings
		"auth_mode":               "security.auth_mode",
		"jwt_secret":              "security.jwt_secret",
		"session_timeout":         "security.session_timeout",
		"admin_username":          "security.admin_username",
		"admin_password":          "security.admin_password",
		"basic_auth_default_role": "security.basic_auth_default_role",

		// Authorization mappings
		"authz_default_role":      "authz.default_role",
		"authz_cache_enabled":     "authz.cache_enabled",
		"authz_cache_ttl":         "authz.cache_ttl",
		"authz_audit_enabled":     "authz.audit_enabled",
		"authz_audit_sample_rate": "authz.audit_sample_rate",
		"authz_audit_buffer_size": "authz.audit_buffer_size",

		// Database mappings
		"duckdb_path":        "database.path",
		"db_max_open_conns":  "database.max_open_conns",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
