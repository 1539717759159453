// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"net/http"
	"strings"

	"github.com/railnav/homedoor/internal/logging"
)

// Middleware resolves the request's identity and stores the resulting
// AuthSubject in the request context. It never blocks a request by itself:
// a request that fails to authenticate in jwt/basic mode is rejected with
// 401, but downstream authorization is what decides access for resolved
// identities.
type Middleware struct {
	jwtManager           *JWTManager
	basicAuthManager     *BasicAuthManager
	authMode             AuthMode
	basicAuthDefaultRole string
	adminUsername        string
}

// MiddlewareConfig holds construction parameters for the auth middleware.
type MiddlewareConfig struct {
	// Mode selects the authentication strategy.
	Mode AuthMode

	// JWTManager is required for AuthModeJWT.
	JWTManager *JWTManager

	// BasicAuthManager is required for AuthModeBasic.
	BasicAuthManager *BasicAuthManager

	// BasicAuthDefaultRole is claimed for basic-auth users other than the
	// admin account. Defaults to "viewer" (least privilege).
	BasicAuthDefaultRole string

	// AdminUsername is the account that claims the developer role under
	// basic auth.
	AdminUsername string
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(cfg MiddlewareConfig) *Middleware {
	defaultRole := cfg.BasicAuthDefaultRole
	if defaultRole == "" {
		defaultRole = "viewer"
	}
	return &Middleware{
		jwtManager:           cfg.JWTManager,
		basicAuthManager:     cfg.BasicAuthManager,
		authMode:             cfg.Mode,
		basicAuthDefaultRole: defaultRole,
		adminUsername:        cfg.AdminUsername,
	}
}

// Authenticate is chi-compatible middleware that resolves the request
// identity. In "none" mode requests pass through without a subject.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == AuthModeNone {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")

		if m.authMode == AuthModeBasic {
			m.handleBasicAuth(w, r, next, authHeader)
			return
		}
		m.handleJWTAuth(w, r, next, authHeader)
	})
}

// handleBasicAuth processes Basic Authentication requests.
func (m *Middleware) handleBasicAuth(w http.ResponseWriter, r *http.Request, next http.Handler, authHeader string) {
	if authHeader == "" {
		m.sendBasicAuthChallenge(w, "Unauthorized: authentication required")
		return
	}

	username, err := m.basicAuthManager.ValidateCredentials(authHeader)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Basic auth validation failed")
		m.sendBasicAuthChallenge(w, "Unauthorized: invalid credentials")
		return
	}

	subject := m.basicAuthSubject(username)
	next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
}

// sendBasicAuthChallenge sends a WWW-Authenticate challenge and error response.
func (m *Middleware) sendBasicAuthChallenge(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", m.basicAuthManager.WWWAuthenticateHeader())
	http.Error(w, message, http.StatusUnauthorized)
}

// basicAuthSubject creates a subject for a Basic Auth user with the
// appropriate claimed role.
func (m *Middleware) basicAuthSubject(username string) *AuthSubject {
	role := m.basicAuthDefaultRole
	if m.adminUsername != "" && username == m.adminUsername {
		role = "developer"
	}
	return &AuthSubject{
		ID:         username,
		Username:   username,
		Role:       role,
		Issuer:     "local",
		AuthMethod: AuthModeBasic,
	}
}

// handleJWTAuth processes JWT Bearer authentication requests.
func (m *Middleware) handleJWTAuth(w http.ResponseWriter, r *http.Request, next http.Handler, authHeader string) {
	token, err := extractBearerToken(authHeader)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}

	claims, err := m.jwtManager.ValidateToken(token)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("JWT validation failed")
		http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	subject := SubjectFromClaims(claims)
	next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
}

// extractBearerToken pulls the token out of an Authorization header.
func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrNoCredentials
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", ErrInvalidCredentials
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}
