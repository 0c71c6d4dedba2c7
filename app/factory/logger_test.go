package factory

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestNewModuleLogger(t *testing.T) {
	logger := NewModuleLogger("payments-controller")
	if logger == nil {
		t.Fatal("expected logger")
	}
}

func TestLoggerWithContextAddsRequestID(t *testing.T) {
	base, hook := test.NewNullLogger()
	e := echo.New()
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	logger := LoggerWithContext(base.WithField("module", "payments-controller"), ctx)
	logger.Info("hello")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected log entry")
	}
	if entry.Data["request_id"] != "req-123" {
		t.Fatalf("expected request_id field, got %v", entry.Data)
	}
}

func TestLoggerWithContextWithoutRequestID(t *testing.T) {
	base, hook := test.NewNullLogger()
	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest("GET", "/health", nil), httptest.NewRecorder())

	LoggerWithContext(logrus.NewEntry(base), ctx).Info("hello")
	if _, ok := hook.LastEntry().Data["request_id"]; ok {
		t.Fatal("did not expect request_id field")
	}
}
