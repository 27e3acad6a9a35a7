package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("json"), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	Get().With(String("user_id", "u1")).Named("ledger").Info(context.Background(), "points awarded",
		Int64("amount", 50),
		Bool("level_up", true),
		Duration("took", time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "points awarded" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["user_id"] != "u1" {
		t.Errorf("missing bound field: %v", entry)
	}
	group, ok := entry["ledger"].(map[string]any)
	if !ok || group["amount"] != float64(50) {
		t.Errorf("missing named group fields: %v", entry)
	}
	if src, _ := group["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level: %q", buf.String())
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	Get().Debug(ctx, "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug should be logged after SetLevelString: %q", buf.String())
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "discarded", String("k", "v"))
	if l.Named("x").With(Int("n", 1)) == nil {
		t.Fatal("nop logger should chain")
	}
}
