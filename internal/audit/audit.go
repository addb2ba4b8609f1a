// Package audit sends login outcomes as OTLP audit events.
package audit

import (
	"context"

	"github.com/google/uuid"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"
)

const eventSource = "pkce session"

// Logger implements session.Auditor on top of an otlpaudit.AuditLogger.
type Logger struct {
	audit *otlpaudit.AuditLogger
}

func NewLogger(auditLogger *otlpaudit.AuditLogger) *Logger {
	return &Logger{audit: auditLogger}
}

func (l *Logger) LoginSucceeded(ctx context.Context, applicationName string) {
	metadata, ok := l.metadata(ctx, applicationName)
	if !ok {
		return
	}

	event, err := otlpaudit.NewUserLoginSuccessEvent(metadata, applicationName, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.MFATYPE_NONE, otlpaudit.USERTYPE_BUSINESS, applicationName)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := l.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login success", "error", err)
		return
	}
	slogctx.Debug(ctx, "sent audit log for user login success")
}

// LoginFailed logs any error encountered while creating or sending the
// event but does not propagate it.
func (l *Logger) LoginFailed(ctx context.Context, applicationName, reason string) {
	metadata, ok := l.metadata(ctx, applicationName)
	if !ok {
		return
	}

	event, err := otlpaudit.NewUserLoginFailureEvent(metadata, applicationName, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.FailReason(reason), applicationName)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := l.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login failure", "error", err)
		return
	}
	slogctx.Debug(ctx, "sent audit log for user login failure")
}

func (l *Logger) metadata(ctx context.Context, applicationName string) (otlpaudit.EventMetadata, bool) {
	if l == nil || l.audit == nil {
		slogctx.Warn(ctx, "audit logger is nil; skipping audit event")
		return otlpaudit.EventMetadata{}, false
	}

	metadata, err := otlpaudit.NewEventMetadata(eventSource, applicationName, uuid.NewString())
	if err != nil {
		slogctx.Error(ctx, "creating audit metadata", "error", err)
		return otlpaudit.EventMetadata{}, false
	}

	return metadata, true
}
