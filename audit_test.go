package authlife

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func withAudit(sink AuditSink) func(*Config, *Builder) {
	return func(cfg *Config, b *Builder) {
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
		b.WithAuditSink(sink)
	}
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditSecretRotatedEvent(t *testing.T) {
	sink := NewChannelSink(16)
	f := newTestEngine(t, withAudit(sink))

	res, err := f.engine.Secrets().RotateSecret(context.Background(), "scheduled_maintenance")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	ev := nextEvent(t, sink)
	if ev.EventType != AuditEventSecretRotated || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	md := ev.Metadata
	if md["reason"] != "scheduled_maintenance" || md["rotation_count"] != "1" || md["environment"] != "test" {
		t.Fatalf("unexpected metadata %v", md)
	}
	if md["rotated_at"] == "" || md["fingerprint"] != res.Fingerprint {
		t.Fatalf("missing timestamp or fingerprint: %v", md)
	}
	for _, v := range md {
		if strings.Contains(v, res.Secret) {
			t.Fatal("audit event carries secret material")
		}
	}
}

func TestAuditEmergencyAndStopEvents(t *testing.T) {
	sink := NewChannelSink(16)
	f := newTestEngine(t, func(cfg *Config, b *Builder) {
		withAudit(sink)(cfg, b)
		cfg.Secrets.RotationInterval = time.Hour
		cfg.Secrets.AutoRotate = true
	})
	ctx := context.Background()

	if _, err := f.engine.Secrets().EmergencyRotation(ctx); err != nil {
		t.Fatalf("emergency: %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.EventType != AuditEventSecretEmergency || ev.Metadata["reason"] != ReasonEmergency {
		t.Fatalf("unexpected event %+v", ev)
	}

	f.engine.Secrets().StopAutomaticRotation(ctx)
	if ev := nextEvent(t, sink); ev.EventType != AuditEventRotationStopped {
		t.Fatalf("expected rotation stopped event, got %s", ev.EventType)
	}
}

func TestAuditSessionEvents(t *testing.T) {
	sink := NewChannelSink(16)
	f := newTestEngine(t, withAudit(sink))
	ctx := WithClientIP(context.Background(), "203.0.113.9")
	sm := f.engine.Sessions()

	s, err := sm.CreateSession(ctx, "u-1", "tenant-1", "member", "", RequestMeta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.EventType != AuditEventSessionCreated || ev.UserID != "u-1" || ev.SessionID != s.ID || ev.IP != "203.0.113.9" || ev.TenantID != "tenant-1" {
		t.Fatalf("unexpected create event %+v", ev)
	}

	if err := sm.InvalidateSession(ctx, s.ID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != AuditEventSessionInvalidated || ev.SessionID != s.ID {
		t.Fatalf("unexpected invalidate event %+v", ev)
	}

	if _, err := sm.InvalidateAllUserSessions(ctx, "u-1"); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if ev := nextEvent(t, sink); ev.EventType != AuditEventUserSessionsInvalidate || ev.Metadata["count"] != "0" {
		t.Fatalf("unexpected bulk invalidate event %+v", ev)
	}
}

func TestAuditExpiredSessionEvent(t *testing.T) {
	sink := NewChannelSink(16)
	f := newTestEngine(t, withAudit(sink))
	sm := f.engine.Sessions()
	ctx := context.Background()

	s, err := sm.CreateSession(ctx, "u-1", "", "", "", RequestMeta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = nextEvent(t, sink)

	f.clock.Advance(45 * time.Minute)
	if _, err := sm.GetSession(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.EventType != AuditEventSessionExpired || ev.Metadata["reason"] != "idle_timeout" {
		t.Fatalf("unexpected expiry event %+v", ev)
	}
}

func TestAuditSinkFailureDoesNotFailOperation(t *testing.T) {
	failing := AuditSinkFunc(func(context.Context, AuditEvent) error {
		return errors.New("disk full")
	})
	f := newTestEngine(t, withAudit(failing))

	if _, err := f.engine.Secrets().RotateSecret(context.Background(), "manual"); err != nil {
		t.Fatalf("rotation failed because of audit sink: %v", err)
	}
	if _, err := f.engine.Sessions().CreateSession(context.Background(), "u-1", "", "", "", RequestMeta{}); err != nil {
		t.Fatalf("session creation failed because of audit sink: %v", err)
	}

	waitFor(t, "audit failures", func() bool { return f.engine.AuditFailed() == 2 })
	waitFor(t, "audit failure metric", func() bool {
		return f.engine.MetricsSnapshot().Counters[MetricAuditSinkFailed] == 2
	})
}

func TestAuditJSONWriterSinkThroughEngine(t *testing.T) {
	var buf bytes.Buffer
	f := newTestEngine(t, withAudit(NewJSONWriterSink(&buf)))

	if _, err := f.engine.Secrets().RotateSecret(context.Background(), "manual"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	f.engine.Close()

	out := buf.String()
	if !strings.Contains(out, `"event_type":"jwt_secret_rotated"`) || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected JSON output %q", out)
	}
}
