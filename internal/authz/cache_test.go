// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"testing"
	"time"
)

func TestDecisionCacheGetSet(t *testing.T) {
	c := newDecisionCache(time.Minute)
	defer c.stop()

	if _, ok := c.get("u1", "permission", "create_station"); ok {
		t.Error("empty cache should miss")
	}

	c.set("u1", "permission", "create_station", true)
	allowed, ok := c.get("u1", "permission", "create_station")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !allowed {
		t.Error("cached decision = false, want true")
	}

	c.set("u1", "permission", "delete_station", false)
	allowed, ok = c.get("u1", "permission", "delete_station")
	if !ok || allowed {
		t.Errorf("cached denial: allowed = %v ok = %v, want false true", allowed, ok)
	}
}

func TestDecisionCacheExpiry(t *testing.T) {
	c := newDecisionCache(10 * time.Millisecond)
	defer c.stop()

	c.set("u1", "permission", "view_content", true)
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.get("u1", "permission", "view_content"); ok {
		t.Error("expired entry should miss")
	}
}

func TestDecisionCacheInvalidateUser(t *testing.T) {
	c := newDecisionCache(time.Minute)
	defer c.stop()

	c.set("u1", "permission", "view_content", true)
	c.set("u1", "minimum_role", "editor", false)
	c.set("u2", "permission", "view_content", true)

	c.invalidateUser("u1")

	if _, ok := c.get("u1", "permission", "view_content"); ok {
		t.Error("u1 entries should be invalidated")
	}
	if _, ok := c.get("u1", "minimum_role", "editor"); ok {
		t.Error("all u1 entries should be invalidated")
	}
	if _, ok := c.get("u2", "permission", "view_content"); !ok {
		t.Error("u2 entries should survive u1 invalidation")
	}
}

func TestDecisionCacheClear(t *testing.T) {
	c := newDecisionCache(time.Minute)
	defer c.stop()

	c.set("u1", "permission", "view_content", true)
	c.set("u2", "permission", "view_content", true)

	c.clear()

	if c.size() != 0 {
		t.Errorf("size after clear = %d, want 0", c.size())
	}
}

func TestDecisionCacheStopIdempotent(t *testing.T) {
	c := newDecisionCache(time.Minute)
	c.stop()
	c.stop() // must not panic
}

func TestDecisionCacheDefaultTTL(t *testing.T) {
	c := newDecisionCache(0)
	defer c.stop()

	if c.ttl != 5*time.Minute {
		t.Errorf("default TTL = %v, want 5m", c.ttl)
	}
}
