package aegis

import (
	"context"
	"testing"
	"time"

	"github.com/aegisauth/aegis/audit"
)

func TestAuditEventBuilderCarriesAllFields(t *testing.T) {
	sink := audit.NewChannelSink(4)
	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{BufferSize: 4}, sink)

	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Engine{
		auditor: dispatcher,
		clock:   func() time.Time { return stamp },
	}

	e.event(EventLoginFailure).
		user("u1").
		session("s1").
		family("f1").
		ip("203.0.113.10").
		why("wrong password").
		failed(ErrInvalidCredentials).
		emit(context.Background())
	dispatcher.Close()

	got := <-sink.Events()
	if got.EventType != EventLoginFailure || got.UserID != "u1" ||
		got.SessionID != "s1" || got.FamilyID != "f1" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.IP != "203.0.113.10" {
		t.Fatalf("ip not carried through: %q", got.IP)
	}
	if got.Success || got.Error == "" || got.Reason != "wrong password" {
		t.Fatalf("failure context lost: %+v", got)
	}
	if !got.Timestamp.Equal(stamp) {
		t.Fatalf("timestamp not taken from the clock: %v", got.Timestamp)
	}
}
