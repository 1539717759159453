// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Async audit logging of authorization decisions for security monitoring
// and forensic analysis. Every event captures the denial transparency
// pair: the actor's actual role and what the check required.

package authz

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railnav/homedoor/internal/logging"
)

// AuditEvent records one authorization decision.
type AuditEvent struct {
	// ID is a unique identifier for this audit event.
	ID string `json:"id"`

	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`

	// RequestID links this event to an HTTP request (if applicable).
	RequestID string `json:"request_id,omitempty"`

	// ActorID is the subject requesting access. "anonymous" when no
	// identity resolved.
	ActorID string `json:"actor_id"`

	// ActorUsername is the display name of the actor.
	ActorUsername string `json:"actor_username,omitempty"`

	// ActorRole is the effective role used for the decision. Empty when
	// the role was absent.
	ActorRole string `json:"actor_role,omitempty"`

	// Check is the kind of check performed: "permission", "minimum_role",
	// or "route".
	Check string `json:"check"`

	// RequiredPermission is the permission the check required, for
	// permission checks.
	RequiredPermission string `json:"required_permission,omitempty"`

	// RequiredRole is the role the check required, for minimum-role checks.
	RequiredRole string `json:"required_role,omitempty"`

	// Decision is true if access was allowed.
	Decision bool `json:"decision"`

	// Reason provides context for the decision, especially denials.
	Reason string `json:"reason,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ns"`

	// CacheHit indicates if the decision came from cache.
	CacheHit bool `json:"cache_hit"`

	// IPAddress is the client's IP address.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the client's user agent string.
	UserAgent string `json:"user_agent,omitempty"`

	// Resource is the HTTP path being accessed (if applicable).
	Resource string `json:"resource,omitempty"`

	// Method is the HTTP method (if applicable).
	Method string `json:"method,omitempty"`
}

// AuditLoggerConfig configures the audit logger behavior.
type AuditLoggerConfig struct {
	// Enabled controls whether audit logging is active.
	Enabled bool

	// LogAllowed controls whether to log allowed decisions.
	// Set to false to only log denials (reduces log volume).
	LogAllowed bool

	// LogDenied controls whether to log denied decisions.
	LogDenied bool

	// SampleRate is the fraction of allowed decisions to log (0.0 to 1.0).
	// Denials are always logged at full rate when LogDenied is true.
	SampleRate float64

	// BufferSize is the size of the async log buffer.
	// Events are dropped if the buffer is full (non-blocking).
	BufferSize int
}

// DefaultAuditLoggerConfig returns sensible defaults for production.
func DefaultAuditLoggerConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		Enabled:    true,
		LogAllowed: true,
		LogDenied:  true,
		SampleRate: 1.0,
		BufferSize: 1000,
	}
}

// AuditLogger handles async logging of authorization decisions.
type AuditLogger struct {
	config   *AuditLoggerConfig
	events   chan *AuditEvent
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAuditLogger creates a new audit logger with the given configuration.
func NewAuditLogger(config *AuditLoggerConfig) *AuditLogger {
	if config == nil {
		config = DefaultAuditLoggerConfig()
	}

	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 1.0
	}
	if config.SampleRate > 1.0 {
		config.SampleRate = 1.0
	}

	al := &AuditLogger{
		config:   config,
		events:   make(chan *AuditEvent, config.BufferSize),
		stopChan: make(chan struct{}),
	}

	if config.Enabled {
		al.wg.Add(1)
		go al.processEvents()
	}

	return al
}

// LogDecision records an authorization decision asynchronously.
// Non-blocking; events are dropped if the buffer is full.
func (al *AuditLogger) LogDecision(event *AuditEvent) {
	if al == nil || !al.config.Enabled {
		return
	}

	if event.Decision {
		if !al.config.LogAllowed {
			return
		}
		// Deterministic sampling for allowed decisions
		if al.config.SampleRate < 1.0 {
			if len(event.ID) > 0 && (int(event.ID[0])%100) >= int(al.config.SampleRate*100) {
				return
			}
		}
	} else if !al.config.LogDenied {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case al.events <- event:
		RecordAuditEvent(event.Decision)
	default:
		RecordAuditDropped()
		logging.Warn().
			Str("actor_id", event.ActorID).
			Str("check", event.Check).
			Msg("Audit log buffer full, event dropped")
	}
}

// processEvents handles the async event processing.
func (al *AuditLogger) processEvents() {
	defer al.wg.Done()

	for {
		select {
		case <-al.stopChan:
			al.drainEvents()
			return
		case event := <-al.events:
			al.writeEvent(event)
		}
	}
}

// drainEvents processes any remaining events in the buffer.
func (al *AuditLogger) drainEvents() {
	for {
		select {
		case event := <-al.events:
			al.writeEvent(event)
		default:
			return
		}
	}
}

// writeEvent outputs the event to the log.
func (al *AuditLogger) writeEvent(event *AuditEvent) {
	logEvent := logging.Info()
	if !event.Decision {
		// Denials logged as warnings for visibility
		logEvent = logging.Warn()
	}

	logEvent = logEvent.
		Str("event_type", "authz_decision").
		Str("audit_id", event.ID).
		Time("audit_timestamp", event.Timestamp).
		Str("actor_id", event.ActorID).
		Str("check", event.Check).
		Bool("decision", event.Decision).
		Dur("duration", event.Duration).
		Bool("cache_hit", event.CacheHit)

	if event.ActorUsername != "" {
		logEvent = logEvent.Str("actor_username", event.ActorUsername)
	}
	if event.ActorRole != "" {
		logEvent = logEvent.Str("actor_role", event.ActorRole)
	}
	if event.RequiredPermission != "" {
		logEvent = logEvent.Str("required_permission", event.RequiredPermission)
	}
	if event.RequiredRole != "" {
		logEvent = logEvent.Str("required_role", event.RequiredRole)
	}
	if event.RequestID != "" {
		logEvent = logEvent.Str("request_id", event.RequestID)
	}
	if event.Reason != "" {
		logEvent = logEvent.Str("reason", event.Reason)
	}
	if event.IPAddress != "" {
		logEvent = logEvent.Str("ip_address", event.IPAddress)
	}
	if event.UserAgent != "" {
		logEvent = logEvent.Str("user_agent", event.UserAgent)
	}
	if event.Resource != "" {
		logEvent = logEvent.Str("resource", event.Resource)
	}
	if event.Method != "" {
		logEvent = logEvent.Str("method", event.Method)
	}

	if event.Decision {
		logEvent.Msg("Authorization allowed")
	} else {
		logEvent.Msg("Authorization denied")
	}
}

// Close stops the audit logger and flushes remaining events.
func (al *AuditLogger) Close() {
	if al == nil {
		return
	}

	al.stopOnce.Do(func() {
		close(al.stopChan)
	})
	al.wg.Wait()
}

// Stats returns current audit logger statistics.
func (al *AuditLogger) Stats() AuditLoggerStats {
	if al == nil {
		return AuditLoggerStats{}
	}

	return AuditLoggerStats{
		BufferSize: al.config.BufferSize,
		BufferUsed: len(al.events),
		Enabled:    al.config.Enabled,
		LogAllowed: al.config.LogAllowed,
		LogDenied:  al.config.LogDenied,
		SampleRate: al.config.SampleRate,
	}
}

// AuditLoggerStats provides statistics about the audit logger.
type AuditLoggerStats struct {
	BufferSize int     `json:"buffer_size"`
	BufferUsed int     `json:"buffer_used"`
	Enabled    bool    `json:"enabled"`
	LogAllowed bool    `json:"log_allowed"`
	LogDenied  bool    `json:"log_denied"`
	SampleRate float64 `json:"sample_rate"`
}
