package metrics

import (
	"context"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
)

// AuditObserver decorates an audit.Logger and counts the security events that
// happen deep inside the services, where handlers cannot see them.
type AuditObserver struct {
	Next audit.Logger
}

func (o AuditObserver) Log(ctx context.Context, actor uuid.UUID, event audit.EventType, target string, metadata map[string]string) {
	switch event {
	case audit.EventTokenReuse:
		TokenReuse.Inc()
	case audit.EventResetRequested:
		ResetRequests.Inc()
	}
	o.Next.Log(ctx, actor, event, target, metadata)
}
