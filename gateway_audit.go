package tollgate

import (
	"context"

	"github.com/kmweir/tollgate/internal/audit"
)

// Audit event types emitted by the gateway.
const (
	AuditBasicLogin       = "basic_login"
	AuditBasicLockout     = "basic_lockout"
	AuditTokenIssued      = "token_issued"
	AuditTokenVerified    = "token_verified"
	AuditTokenRejected    = "token_rejected"
	AuditTokenRefreshed   = "token_refreshed"
	AuditTokenRevoked     = "token_revoked"
	AuditSessionRevoked   = "session_revoked"
	AuditSessionsRevoked  = "sessions_revoked_all"
	AuditSessionEvicted   = "session_evicted"
	AuditCleanupCompleted = "cleanup_completed"
)

func (g *Gateway) emitAudit(ctx context.Context, event audit.Event) {
	if g == nil || g.audit == nil {
		return
	}
	event.Timestamp = g.now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	g.audit.Emit(ctx, event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
