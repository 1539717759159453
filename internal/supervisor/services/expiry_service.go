// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"time"

	"github.com/railnav/homedoor/internal/logging"
)

// RoleExpirer deactivates role assignments past their expiry. Satisfied by
// *database.DB.
type RoleExpirer interface {
	ExpireRoles(ctx context.Context, systemActorID string) (int, error)
}

// CacheInvalidator drops cached role lookups after expiry sweeps so revoked
// access does not linger. Satisfied by *authz.Service.
type CacheInvalidator interface {
	InvalidateAllRoles(reason string)
}

// RoleExpiryService periodically sweeps expired role assignments. Expiry is
// enforced at read time as well; the sweep keeps the store and the stats
// honest and writes the audit trail.
type RoleExpiryService struct {
	store       RoleExpirer
	invalidator CacheInvalidator
	interval    time.Duration
}

// NewRoleExpiryService creates the expiry sweeper. A non-positive interval
// defaults to one hour.
func NewRoleExpiryService(store RoleExpirer, invalidator CacheInvalidator, interval time.Duration) *RoleExpiryService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RoleExpiryService{
		store:       store,
		invalidator: invalidator,
		interval:    interval,
	}
}

// Serve implements suture.Service.
func (s *RoleExpiryService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RoleExpiryService) sweep(ctx context.Context) {
	n, err := s.store.ExpireRoles(ctx, "system")
	if err != nil {
		logging.Error().Err(err).Msg("Role expiry sweep failed")
		return
	}
	if n > 0 {
		logging.Info().Int("expired", n).Msg("Role expiry sweep deactivated assignments")
		if s.invalidator != nil {
			s.invalidator.InvalidateAllRoles("role_expiry")
		}
	}
}

// String names the service in supervisor logs.
func (s *RoleExpiryService) String() string {
	return "role-expiry"
}
