// Package audit emits structured records of administrative mutations:
// account and user creation, deletion, key changes and service endpoint
// updates. Entries go to the shared JSON log so they interleave with
// request logs in order.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"ostiary.org/internal/auth"
	"ostiary.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

var (
	sinkMu sync.RWMutex
	sink   *slog.Logger
)

// SetLogger overrides the audit destination. Passing nil restores the
// shared logger. Intended for tests.
func SetLogger(l *slog.Logger) {
	sinkMu.Lock()
	sink = l
	sinkMu.Unlock()
}

func logger() *slog.Logger {
	sinkMu.RLock()
	l := sink
	sinkMu.RUnlock()
	if l != nil {
		return l
	}
	return obs.Logger()
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if admin, ok := auth.AdminFromContext(ctx); ok {
		attrs = append(attrs,
			slog.String("actor", admin.Actor()),
			slog.String("actor_level", admin.Level.String()),
		)
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		attrs = append(attrs, slog.Any("fields", copyFields))
	}
	logger().LogAttrs(ctx, slog.LevelInfo, event, attrs...)
	return nil
}
