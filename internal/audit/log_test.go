package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"coursehub.org/internal/auth"
	"coursehub.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	ctx := WithRequestID(context.Background(), "req-123")
	claims := &auth.Claims{Role: auth.RoleAdmin}
	claims.Subject = "user-42"
	ctx = auth.ContextWithClaims(ctx, claims)

	if err := LogEvent(ctx, "course.created", map[string]any{"course_id": "c1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["type"] != "audit" {
		t.Fatalf("unexpected type: %v", fields["type"])
	}
	if fields["event"] != "course.created" {
		t.Fatalf("unexpected event: %v", fields["event"])
	}
	if fields["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", fields["request_id"])
	}
	if fields["user_id"] != "user-42" || fields["role"] != "Admin" {
		t.Fatalf("unexpected caller: %v / %v", fields["user_id"], fields["role"])
	}
	if fields["course_id"] != "c1" {
		t.Fatalf("unexpected field: %v", fields["course_id"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
	Record(context.Background(), "", nil)
	if logs.FilterMessage("audit event dropped").Len() != 1 {
		t.Fatal("expected dropped-event warning")
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("unexpected request id %q", got)
	}
}
