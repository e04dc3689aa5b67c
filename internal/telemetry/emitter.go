// Package telemetry defines the auth event emitter used by the audit logger.
package telemetry

import (
	"context"

	"camp-auth/backend/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}
