package session

import "context"

// Auditor receives login outcomes. A nil Auditor disables auditing.
type Auditor interface {
	LoginSucceeded(ctx context.Context, applicationName string)
	LoginFailed(ctx context.Context, applicationName, reason string)
}

func (m *Manager) auditLoginSuccess(ctx context.Context) {
	if m.audit == nil {
		return
	}
	m.audit.LoginSucceeded(ctx, m.applicationName)
}

func (m *Manager) auditLoginFailure(ctx context.Context, reason string) {
	if m.audit == nil {
		return
	}
	m.audit.LoginFailed(ctx, m.applicationName, reason)
}
