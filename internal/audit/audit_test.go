package audit_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"

	"github.com/openkcm/pkce-session/internal/audit"
	"github.com/openkcm/pkce-session/pkg/session"
)

var _ session.Auditor = (*audit.Logger)(nil)

func startAuditServer(t *testing.T, posts *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success": true}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server
}

func TestLogger(t *testing.T) {
	var posts atomic.Int32
	server := startAuditServer(t, &posts)

	auditLogger, err := otlpaudit.NewLogger(&commoncfg.Audit{Endpoint: server.URL})
	require.NoError(t, err)

	l := audit.NewLogger(auditLogger)

	assert.NotPanics(t, func() {
		l.LoginSucceeded(t.Context(), "cmk")
		l.LoginFailed(t.Context(), "cmk", "invalid state")
	})
}

func TestLogger_Nil(t *testing.T) {
	var l *audit.Logger

	assert.NotPanics(t, func() {
		l.LoginSucceeded(t.Context(), "cmk")
		l.LoginFailed(t.Context(), "cmk", "invalid state")
	})
	assert.NotPanics(t, func() {
		audit.NewLogger(nil).LoginSucceeded(t.Context(), "cmk")
	})
}
