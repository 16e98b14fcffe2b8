package obs

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLoggerRestores(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := SetLogger(zap.New(core))

	Logger().Info("hello", zap.String("k", "v"))
	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["k"]; got != "v" {
		t.Fatalf("unexpected field value: %v", got)
	}

	restore()
	Logger().Info("dropped")
	if logs.Len() != 1 {
		t.Fatalf("restored logger should not write into observer, got %d entries", logs.Len())
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		l, err := NewLogger(env)
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", env, err)
		}
		_ = l.Sync()
	}
}
