package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return entry
}

func TestFieldsAccumulateThroughContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.DebugLevel, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-1")
	ctx = log.WithOrderID(ctx, "ORD_1")
	ctx = log.WithFields(ctx, map[string]any{"attempt": 2})
	log.Error(ctx, "settlement failed", errors.New("declined"))

	entry := decode(t, buf)
	for key, want := range map[string]any{
		"service":    "api",
		"request_id": "req-1",
		"order_id":   "ORD_1",
		"attempt":    float64(2),
		"error":      "declined",
		"level":      "error",
	} {
		if entry[key] != want {
			t.Fatalf("%s: expected %v got %v", key, want, entry[key])
		}
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatal("errors must carry a stack")
	}
}

func TestParentContextIsUntouched(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})
	parent := log.WithUserID(context.Background(), "u-1")
	_ = log.WithPrincipalKind(parent, "admin")

	log.Info(parent, "hello")
	if _, ok := decode(t, buf)["principal_kind"]; ok {
		t.Fatal("child fields leaked into parent")
	}
}

func TestWarnStackToggle(t *testing.T) {
	for _, withStack := range []bool{true, false} {
		buf := &bytes.Buffer{}
		New(Options{ServiceName: "api", Output: buf, WarnStack: withStack}).Warn(context.Background(), "slow")
		if got := bytes.Contains(buf.Bytes(), []byte(`"stack"`)); got != withStack {
			t.Fatalf("warnStack=%v: stack present=%v", withStack, got)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.WarnLevel, Output: buf})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected suppression, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v got %v", in, want, got)
		}
	}
}
