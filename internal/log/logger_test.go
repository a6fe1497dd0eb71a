package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Output: buf, Component: ComponentApp})
}

func TestWithComponentReplacesTag(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf).With(FieldUserID, "u1").WithComponent(ComponentLedger)

	logger.Info("saved")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=ledger") {
		t.Errorf("expected a single ledger component tag, got %q", out)
	}
	if !strings.Contains(out, "user_id=u1") {
		t.Errorf("expected attributes to survive WithComponent, got %q", out)
	}
	if logger.Component() != ComponentLedger {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	var got *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context()).With(FieldRequestID, "req_1")
		got.Info("inside")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("expected request id on context logger, got %q", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Errorf("FromContext without logger should fall back to unknown component")
	}
}

func TestLogRequestEndLevel(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "level=INFO"},
		{404, "level=WARN"},
		{503, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(newBufferLogger(&buf))
		sl.LogRequestEnd(context.Background(), httptest.NewRequest(http.MethodGet, "/x", nil), tt.status, 5*time.Millisecond, "1.2.3.4")
		out := buf.String()
		if !strings.Contains(out, tt.level) || !strings.Contains(out, "duration_ms=5") {
			t.Errorf("status %d: expected %s in %q", tt.status, tt.level, out)
		}
	}
}

func TestLogTransactionWrite(t *testing.T) {
	tests := []struct {
		op   string
		want string
	}{
		{"create", "Transaction created"},
		{"update", "Transaction updated"},
		{"delete", "Transaction deleted"},
		{"import", "Transaction written"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(newBufferLogger(&buf))
		sl.LogTransactionWrite(context.Background(), tt.op, "u1", "t1", "expense", 4500, "2024-05-03")
		out := buf.String()
		if !strings.Contains(out, tt.want) || !strings.Contains(out, "amount=4500") || !strings.Contains(out, "operation="+tt.op) {
			t.Errorf("%s: unexpected output %q", tt.op, out)
		}
	}
}

func TestLogErrorAcceptsNilFields(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))
	sl.LogError(context.Background(), "boom", errors.New("bad"), ComponentStorage, OpRead, nil)
	if !strings.Contains(buf.String(), "error=bad") || !strings.Contains(buf.String(), "component=storage") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
