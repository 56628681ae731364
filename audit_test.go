package tollgate

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newAuditedGateway(t *testing.T, sink AuditSink) (*Gateway, *fakeClock) {
	t.Helper()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	clock := newFakeClock()
	dir := newFakeDirectory()
	dir.add(UserRecord{
		ID:           "u1",
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: testHash(t, testPassword),
		Role:         "user",
		Active:       true,
	})

	gw, err := New().
		WithConfig(cfg).
		WithDirectory(dir).
		WithAuditSink(sink).
		WithTimeSource(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(gw.Close)
	return gw, clock
}

func TestAudit_BasicLoginEmitsEvent(t *testing.T) {
	sink := NewChannelAuditSink(16)
	gw, clock := newAuditedGateway(t, sink)

	ctx := WithClientIP(context.Background(), "10.1.1.1")
	if _, err := gw.AuthenticateBasic(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != AuditBasicLogin || !ev.Success {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.UserID != "u1" || ev.IP != "10.1.1.1" {
			t.Fatalf("event missing identity fields: %+v", ev)
		}
		if !ev.Timestamp.Equal(clock.Now()) {
			t.Fatalf("timestamp %v, want %v", ev.Timestamp, clock.Now())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

func TestAudit_FailedLoginCarriesError(t *testing.T) {
	sink := NewChannelAuditSink(16)
	gw, _ := newAuditedGateway(t, sink)

	_, _ = gw.AuthenticateBasic(context.Background(), "alice@example.com", "wrong-password")

	select {
	case ev := <-sink.Events():
		if ev.Success || ev.Error == "" {
			t.Fatalf("failure event malformed: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

func TestAudit_JSONWriterSinkProducesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	gw, _ := newAuditedGateway(t, NewJSONWriterSink(&buf))

	if _, err := gw.AuthenticateBasic(context.Background(), "alice@example.com", testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	gw.Close() // drains the dispatcher

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 audit line, got %d", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal(lines[0], &ev); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	if ev.EventType != AuditBasicLogin {
		t.Fatalf("unexpected event type %q", ev.EventType)
	}
}

func TestAudit_DisabledEmitsNothing(t *testing.T) {
	gw, _, _ := newTestGateway(t, testConfig()) // audit disabled by default

	if _, err := gw.AuthenticateBasic(context.Background(), "alice@example.com", testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if gw.AuditDropped() != 0 {
		t.Fatalf("dropped = %d, want 0", gw.AuditDropped())
	}
}
