// Package audit emits the security event trail. Events go to a dedicated JSON
// stream so aggregators can index them separately from application logs.
package audit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventRegistered         EventType = "USER_REGISTERED"
	EventLoginSuccess       EventType = "LOGIN_SUCCESS"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventOAuthLogin         EventType = "OAUTH_LOGIN"
	EventTOTPEnabled        EventType = "TOTP_ENABLED"
	EventTokenRefreshed     EventType = "TOKEN_REFRESHED"
	EventTokenReuse         EventType = "TOKEN_REUSE_DETECTED"
	EventFamilyRevoked      EventType = "TOKEN_FAMILY_REVOKED"
	EventLogout             EventType = "LOGOUT"
	EventResetRequested     EventType = "PASSWORD_RESET_REQUESTED"
	EventResetCompleted     EventType = "PASSWORD_RESET_COMPLETED"
	EventServiceRegistered  EventType = "SERVICE_REGISTERED"
	EventServiceTokenIssued EventType = "SERVICE_TOKEN_ISSUED"
	EventPrincipalToggled   EventType = "PRINCIPAL_TOGGLED"
	EventPolicyChanged      EventType = "POLICY_CHANGED"
	EventRBACChanged        EventType = "RBAC_CHANGED"
)

// Logger is the contract for the immutable event trail. Implementations must
// never record credentials, token cleartext, or policy condition text; actors
// and targets are referenced by id.
type Logger interface {
	Log(ctx context.Context, actor uuid.UUID, event EventType, target string, metadata map[string]string)
}

// JSONLogger writes events to stdout on its own slog handler, independent of
// the application logger's level and format.
type JSONLogger struct {
	logger *slog.Logger
}

func NewJSONLogger() *JSONLogger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &JSONLogger{logger: slog.New(handler)}
}

func (l *JSONLogger) Log(ctx context.Context, actor uuid.UUID, event EventType, target string, metadata map[string]string) {
	fields := []interface{}{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("actor_id", actor.String()),
		slog.String("event", string(event)),
		slog.String("target", target),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	for k, v := range metadata {
		fields = append(fields, slog.String("meta_"+k, v))
	}
	l.logger.InfoContext(ctx, "audit_event", fields...)
}

// NopLogger discards events. Tests use it where the trail is irrelevant.
type NopLogger struct{}

func (NopLogger) Log(context.Context, uuid.UUID, EventType, string, map[string]string) {}

// Recorder captures events in memory for assertions.
type Recorder struct {
	Events []RecordedEvent
}

type RecordedEvent struct {
	Actor    uuid.UUID
	Event    EventType
	Target   string
	Metadata map[string]string
}

func (r *Recorder) Log(_ context.Context, actor uuid.UUID, event EventType, target string, metadata map[string]string) {
	r.Events = append(r.Events, RecordedEvent{Actor: actor, Event: event, Target: target, Metadata: metadata})
}
