// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth provides authentication for the Homedoor authorization
// service. It resolves HTTP requests to an AuthSubject ("current identity
// or none") which the authz layer consumes; a request without a subject is
// treated by authorization as "role absent", never as an error.
package auth

import (
	"context"
	"errors"
	"time"
)

// AuthMode represents the authentication strategy.
type AuthMode string

const (
	// AuthModeNone disables authentication.
	AuthModeNone AuthMode = "none"

	// AuthModeBasic uses HTTP Basic Authentication.
	AuthModeBasic AuthMode = "basic"

	// AuthModeJWT uses JWT Bearer tokens.
	AuthModeJWT AuthMode = "jwt"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "none", "":
		return AuthModeNone, nil
	case "basic":
		return AuthModeBasic, nil
	case "jwt":
		return AuthModeJWT, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// String returns the string representation of AuthMode.
func (m AuthMode) String() string {
	return string(m)
}

// Standard authentication errors.
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// AuthSubject represents an authenticated user/entity.
// This struct normalizes claims from the different auth sources (JWT, Basic).
type AuthSubject struct {
	// ID is the unique identifier for this subject.
	// For JWT: the 'sub' claim or username. For Basic: the username.
	ID string `json:"id"`

	// Username is the human-readable username.
	Username string `json:"username"`

	// Role is the role claimed by the authentication token, if any.
	// The authoritative role is resolved from the profile store; this claim
	// only seeds new accounts and diagnostics.
	Role string `json:"role,omitempty"`

	// Issuer identifies the auth source ("local" for JWT and Basic).
	Issuer string `json:"issuer,omitempty"`

	// AuthMethod indicates how the subject was authenticated.
	AuthMethod AuthMode `json:"auth_method"`

	// IssuedAt is when the authentication token was issued (unix seconds).
	IssuedAt int64 `json:"issued_at,omitempty"`

	// ExpiresAt is when the authentication expires (unix seconds, 0 = none).
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// IsExpired checks if the authentication has expired.
func (s *AuthSubject) IsExpired() bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > s.ExpiresAt
}

// subjectContextKey is the context key type for the auth subject.
type subjectContextKey struct{}

// ContextWithSubject stores an AuthSubject in the context.
func ContextWithSubject(ctx context.Context, subject *AuthSubject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// GetAuthSubject retrieves the AuthSubject from context.
// Returns nil if no subject is present (unauthenticated request).
func GetAuthSubject(ctx context.Context) *AuthSubject {
	if s, ok := ctx.Value(subjectContextKey{}).(*AuthSubject); ok {
		return s
	}
	return nil
}
