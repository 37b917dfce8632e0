package aegis

import (
	"context"

	"github.com/aegisauth/aegis/audit"
)

// Audit event types emitted by the engine.
const (
	EventRegister             = "register"
	EventEmailVerified        = "email.verified"
	EventLoginSuccess         = "login.success"
	EventLoginFailure         = "login.failure"
	EventLoginLocked          = "login.locked"
	EventLoginNewLocation     = "login.new_location"
	EventMFAChallenge         = "mfa.challenge"
	EventMFASuccess           = "mfa.success"
	EventMFAFailure           = "mfa.failure"
	EventMFAEnabled           = "mfa.enabled"
	EventMFADisabled          = "mfa.disabled"
	EventRefreshSuccess       = "refresh.success"
	EventRefreshFailure       = "refresh.failure"
	EventRefreshReuse         = "refresh.reuse"
	EventLogout               = "logout"
	EventLogoutAll            = "logout.all"
	EventSessionRevoked       = "session.revoked"
	EventPasswordChange       = "password.change"
	EventPasswordResetRequest = "password.reset.request"
	EventPasswordResetConfirm = "password.reset.confirm"
)

// auditEvent is the builder for one emitted event. Fields are set by
// the with* chain and flushed by emit.
type auditEvent struct {
	engine    *Engine
	eventType string
	userID    string
	sessionID string
	familyID  string
	ipAddr    string
	success   bool
	err       error
	reason    string
}

func (e *Engine) event(eventType string) *auditEvent {
	return &auditEvent{engine: e, eventType: eventType, success: true}
}

func (a *auditEvent) user(id string) *auditEvent      { a.userID = id; return a }
func (a *auditEvent) session(id string) *auditEvent   { a.sessionID = id; return a }
func (a *auditEvent) family(id string) *auditEvent    { a.familyID = id; return a }
func (a *auditEvent) ip(addr string) *auditEvent      { a.ipAddr = addr; return a }
func (a *auditEvent) why(reason string) *auditEvent   { a.reason = reason; return a }
func (a *auditEvent) failed(err error) *auditEvent {
	a.success = false
	a.err = err
	return a
}

func (a *auditEvent) emit(ctx context.Context) {
	d := a.engine.auditor
	if d == nil {
		return
	}
	event := audit.Event{
		Timestamp: a.engine.clock(),
		EventType: a.eventType,
		UserID:    a.userID,
		SessionID: a.sessionID,
		FamilyID:  a.familyID,
		IP:        a.ipAddr,
		Success:   a.success,
		Reason:    a.reason,
	}
	if a.err != nil {
		event.Error = a.err.Error()
	}
	d.Emit(ctx, event)
}
