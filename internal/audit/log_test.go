package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/stream"
)

func TestEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{UserID: "user-42", Username: "alice"})

	if err := l.Event(ctx, EventRoleCreated, zap.String("role", "AUDITOR")); err != nil {
		t.Fatalf("Event failed: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.LoggerName != "audit" {
		t.Fatalf("unexpected logger name: %q", entry.LoggerName)
	}
	fields := entry.ContextMap()
	if fields["type"] != "audit" || fields["event"] != EventRoleCreated {
		t.Fatalf("unexpected type/event: %v", fields)
	}
	if fields["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", fields["request_id"])
	}
	if fields["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", fields["user_id"])
	}
	nested, ok := fields["fields"].(map[string]any)
	if !ok || nested["role"] != "AUDITOR" {
		t.Fatalf("fields missing or incorrect: %v", fields["fields"])
	}
}

func TestEventRequiresName(t *testing.T) {
	l := New(nil)
	if err := l.Event(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestDenied(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core))
	l.Denied(context.Background(), auth.Instance(auth.ResourceRack, "r1"), auth.ActionDelete, errors.New("nope"))

	entries := logs.FilterField(zap.String("event", EventAccessDenied)).All()
	if len(entries) != 1 {
		t.Fatalf("expected one denial entry, got %d", len(entries))
	}
	nested, _ := entries[0].ContextMap()["fields"].(map[string]any)
	if nested["target"] != "RACK/r1" || nested["action"] != "DELETE" {
		t.Fatalf("unexpected denial fields: %v", nested)
	}
}

func TestEventPublishesToBroker(t *testing.T) {
	broker := stream.New(4)
	l := New(zap.NewNop(), WithPublisher(broker))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	ctx = auth.ContextWithPrincipal(WithRequestID(ctx, "req-9"), auth.Principal{UserID: "u1", Username: "root"})
	if err := l.Event(ctx, EventOwnerAdded, zap.String("target", "RACK:r1"), zap.Int("count", 2)); err != nil {
		t.Fatalf("Event: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Name != EventOwnerAdded || evt.RequestID != "req-9" || evt.Username != "root" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Fields["target"] != "RACK:r1" || evt.Fields["count"] != int64(2) {
			t.Fatalf("unexpected fields: %v", evt.Fields)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not published")
	}
}
