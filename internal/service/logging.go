package service

import (
	"context"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// Standard field names for structured logging. Use these exact names so
// log aggregation stays consistent across services.
const (
	LogFieldEventID      = "event_id"
	LogFieldSender       = "sender"
	LogFieldGroupID      = "group_id"
	LogFieldSubscriberID = "subscriber_id"
	LogFieldCallbackURL  = "callback_url"

	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"
	LogFieldMethod    = "method"
	LogFieldURL       = "url"
	LogFieldUserAgent = "user_agent"
	LogFieldSize      = "size_bytes"

	LogFieldEvent      = "event"
	LogFieldState      = "state"
	LogFieldAttempt    = "attempt"
	LogFieldDuration   = "duration_ms"
	LogFieldCount      = "count"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
)
