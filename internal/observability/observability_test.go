package observability

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/ticketflow/internal/config"
)

func TestNewLogger_Levels(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "DEBUG"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug level not enabled")
	}

	logger, err = NewLogger(config.LoggerConfig{Level: "chatty"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) || !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("unknown level should fall back to info")
	}
}

func TestNewLogger_JSONFormatCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggerConfig{Level: "info"}, zapcore.AddSync(&buf), zap.String("service", "ticketflow"))
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("ticket created", zap.String("ticket_id", "AB12CD34"))
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one entry, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry["message"] != "ticket created" || entry["level"] != "info" || entry["service"] != "ticketflow" || entry["ticket_id"] != "AB12CD34" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if caller, _ := entry["caller"].(string); !strings.Contains(caller, "observability_test.go") {
		t.Fatalf("caller = %v", entry["caller"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("timestamp missing: %v", entry)
	}
}

func TestNewLogger_ConsoleFormatAndStacktraces(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggerConfig{Level: "warn", Format: "Console"}, zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Warn("slow store")
	logger.Error("store unavailable")

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "ERROR") {
		t.Fatalf("console output missing levels: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("console format produced JSON: %q", out)
	}
	if !strings.Contains(out, "TestNewLogger_ConsoleFormatAndStacktraces") {
		t.Fatalf("error entry should carry a stacktrace: %q", out)
	}
}

func TestNewLogger_RejectsUnknownFormat(t *testing.T) {
	if _, err := NewLogger(config.LoggerConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", "GET", 200, time.Millisecond)
	m.RecordError("/x", "GET", "NOT_FOUND")
	m.RecordTicketOperation("create", "ok")
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have nil registry")
	}
}

func TestMetrics_TicketOperations(t *testing.T) {
	m := NewMetrics()
	m.RecordTicketOperation("update_status", "ok")
	m.RecordTicketOperation("update_status", "ok")
	m.RecordTicketOperation("update_status", "not_found")

	if got := testutil.ToFloat64(m.ticketOps.WithLabelValues("update_status", "ok")); got != 2 {
		t.Fatalf("ok count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ticketOps.WithLabelValues("update_status", "not_found")); got != 1 {
		t.Fatalf("not_found count = %v, want 1", got)
	}
}

func TestRequestLogger_RecordsRoutePattern(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/tickets/:id", func(c *fiber.Ctx) error {
		return c.SendString(c.Params("id"))
	})

	for _, id := range []string{"A", "B"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/tickets/"+id, nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("unexpected status %d", resp.StatusCode)
		}
	}

	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/tickets/:id", "200")); got != 2 {
		t.Fatalf("request count = %v, want 2", got)
	}
}
