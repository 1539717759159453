// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/base64"
	"testing"
)

func basicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestNewBasicAuthManagerValidation(t *testing.T) {
	if _, err := NewBasicAuthManager("", "password123"); err == nil {
		t.Error("expected error for empty username")
	}
	if _, err := NewBasicAuthManager("admin", "short"); err == nil {
		t.Error("expected error for short password")
	}
	if _, err := NewBasicAuthManager("admin", "password123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateCredentials(t *testing.T) {
	m, err := NewBasicAuthManager("admin", "password123")
	if err != nil {
		t.Fatalf("NewBasicAuthManager() error = %v", err)
	}

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"valid", basicHeader("admin", "password123"), false},
		{"wrong password", basicHeader("admin", "wrong-password"), true},
		{"wrong username", basicHeader("other", "password123"), true},
		{"missing prefix", "Bearer abc", true},
		{"bad base64", "Basic !!!", true},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin")), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			username, err := m.ValidateCredentials(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if username != "admin" {
				t.Errorf("username = %q, want admin", username)
			}
		})
	}
}

func TestWWWAuthenticateHeader(t *testing.T) {
	m, err := NewBasicAuthManager("admin", "password123")
	if err != nil {
		t.Fatalf("NewBasicAuthManager() error = %v", err)
	}
	if got := m.WWWAuthenticateHeader(); got == "" {
		t.Error("WWW-Authenticate header should not be empty")
	}
}
