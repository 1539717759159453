// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authz implements role-based authorization for Homedoor.
//
// The package has three layers:
//
//   - Registry: the immutable role registry, permission catalog, and
//     role-permission matrix. The matrix is declared as per-tier deltas and
//     folded into effective permission sets at construction, so a senior
//     role is a superset of its juniors structurally rather than by
//     hand-maintained duplication.
//
//   - Service: the server-side checkpoint every protected operation passes
//     through. It resolves a subject to a stored role (with a TTL cache),
//     evaluates permission and minimum-role checks against the Registry,
//     and returns Decisions. Denials are data, not errors: each one carries
//     the actor's actual role and what the check required.
//
//   - Enforcer and Middleware: route-level policy (path and HTTP method)
//     generated from the same Registry, plus chi-compatible wrappers that
//     gate handlers and render the denial payload.
//
// # Hierarchy
//
// Four roles, ascending by level:
//
//	viewer      (閲覧者, level 1) — read content and statistics
//	contributor (提供者, level 2) — submit and update station records
//	editor      (編集者, level 3) — full content management
//	developer   (開発者, level 4) — user and system administration
//
// # Query surface
//
// HasPermission and HasMinimumRole are pure, deterministic, and total: an
// absent or unrecognized role yields false for every check, never a panic
// or error. This makes the surface safe to consult on every request.
//
// # Usage
//
//	registry := authz.NewRegistry()
//	svc, err := authz.NewService(registry, store, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	d := svc.Authorize(ctx, subject, models.PermCreateStation)
//	if !d.Allowed {
//	    // d.ActorRole and d.RequiredRole explain the denial
//	}
//
// Role mutation goes through AssignRole/RevokeRole, which require the
// manage_users permission, forbid self-role-change, audit every change,
// and invalidate caches so the new role takes effect immediately.
package authz
