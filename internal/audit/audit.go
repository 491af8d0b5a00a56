// SPDX-License-Identifier: Apache-2.0

// Package audit provides structured audit logging for operations that
// change cluster capacity or daemon configuration. Every event answers
// WHO did WHAT to WHICH pool, and with what result.
package audit

import (
	"strconv"
	"time"

	"github.com/clusterman/clusterman/internal/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Scaling events
	EventScaleTarget    EventType = "scale.target"
	EventScalePrune     EventType = "scale.prune"
	EventScaleError     EventType = "scale.error"
	EventScaleHold      EventType = "scale.hold"
	EventGroupMarkStale EventType = "scale.group_stale"

	// Configuration events
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"

	// API access events
	EventAPIAccess    EventType = "api.access"
	EventAPIRateLimit EventType = "api.ratelimit"
)

// Event is one structured audit record.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`    // username, client IP, or "autoscaler"
	Action     string            `json:"action"`   // human-readable action
	Resource   string            `json:"resource"` // "<cluster>/<pool>" or endpoint
	Result     string            `json:"result"`   // success, failure, denied, held
	RemoteAddr string            `json:"remote_addr,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Logger writes audit events through the structured log with a dedicated
// component so they can be routed separately.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger() *Logger {
	return &Logger{
		logger: log.WithComponent("audit").With().
			Str("log_type", "audit").
			Logger(),
	}
}

// Log writes one audit event.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		logEvent.Str("remote_addr", event.RemoteAddr)
	}
	if event.RequestID != "" {
		logEvent.Str("request_id", event.RequestID)
	}
	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// TargetChanged logs an applied target capacity change.
func (l *Logger) TargetChanged(actor, resource string, requested, applied float64, dryRun bool) {
	result := "success"
	if dryRun {
		result = "dry_run"
	}
	l.Log(Event{
		Type:     EventScaleTarget,
		Actor:    actor,
		Action:   "modified target capacity",
		Resource: resource,
		Result:   result,
		Details: map[string]string{
			"requested": formatFloat(requested),
			"applied":   formatFloat(applied),
		},
	})
}

// TargetHeld logs an autoscaling run that decided not to scale.
func (l *Logger) TargetHeld(actor, resource string, current, proposed float64) {
	l.Log(Event{
		Type:     EventScaleHold,
		Actor:    actor,
		Action:   "held target capacity within setpoint margin",
		Resource: resource,
		Result:   "held",
		Details: map[string]string{
			"current":  formatFloat(current),
			"proposed": formatFloat(proposed),
		},
	})
}

// ScaleError logs a failed autoscaling run.
func (l *Logger) ScaleError(actor, resource, reason string) {
	l.Log(Event{
		Type:     EventScaleError,
		Actor:    actor,
		Action:   "autoscaling run failed",
		Resource: resource,
		Result:   "failure",
		Details: map[string]string{
			"error": reason,
		},
	})
}

// Pruned logs instance terminations from a prune pass.
func (l *Logger) Pruned(actor, resource string, instanceIDs []string) {
	l.Log(Event{
		Type:     EventScalePrune,
		Actor:    actor,
		Action:   "terminated excess instances",
		Resource: resource,
		Result:   "success",
		Details: map[string]string{
			"count":        strconv.Itoa(len(instanceIDs)),
			"instance_ids": join(instanceIDs),
		},
	})
}

// GroupMarkedStale logs a resource group being retired.
func (l *Logger) GroupMarkedStale(actor, resource, groupID string) {
	l.Log(Event{
		Type:     EventGroupMarkStale,
		Actor:    actor,
		Action:   "marked resource group stale",
		Resource: resource,
		Result:   "success",
		Details: map[string]string{
			"group_id": groupID,
		},
	})
}

// ConfigReload logs a pool configuration reload.
func (l *Logger) ConfigReload(actor, result string, details map[string]string) {
	eventType := EventConfigReload
	if result == "failure" {
		eventType = EventConfigReloadError
	}
	l.Log(Event{
		Type:     eventType,
		Actor:    actor,
		Action:   "reloaded pool configuration",
		Resource: "pool-config",
		Result:   result,
		Details:  details,
	})
}

// APIAccess logs a mutating API call.
func (l *Logger) APIAccess(remoteAddr, requestID, method, endpoint string, statusCode int) {
	result := "success"
	if statusCode >= 400 {
		result = "failure"
	}
	l.Log(Event{
		Type:       EventAPIAccess,
		Actor:      remoteAddr,
		Action:     method + " " + endpoint,
		Resource:   endpoint,
		Result:     result,
		RemoteAddr: remoteAddr,
		RequestID:  requestID,
		Details: map[string]string{
			"method":      method,
			"status_code": strconv.Itoa(statusCode),
		},
	})
}

// RateLimitExceeded logs rate limit violations.
func (l *Logger) RateLimitExceeded(remoteAddr, endpoint string) {
	l.Log(Event{
		Type:       EventAPIRateLimit,
		Actor:      remoteAddr,
		Action:     "rate limit exceeded",
		Resource:   endpoint,
		Result:     "denied",
		RemoteAddr: remoteAddr,
	})
}

func join(strs []string) string {
	result := ""
	for i, s := range strs {
		if i > 0 {
			result += ","
		}
		result += s
	}
	return result
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
