package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/events"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		if got := events.CorrelationIDFromContext(c.Request().Context()); got != "my-custom-id" {
			t.Errorf("expected correlation id my-custom-id, got %q", got)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	h(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Logger(logger)
	h := mw(handler)
	err := h(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestContext(http.MethodPost, "/api/v1/invoices")
	c.Set("request_id", "rid-42")

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("nil map write")
	})(c)

	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusInternalServerError, he.Code)
	assert.NotContains(t, fmt.Sprint(he.Message), "nil map")

	logged := buf.String()
	assert.Contains(t, logged, `"panic":"nil map write"`)
	assert.Contains(t, logged, `"request_id":"rid-42"`)
	assert.Contains(t, logged, `"path":"/api/v1/invoices"`)
	assert.Contains(t, logged, `"stack"`)
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/v1/inventory/export")
	h := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() { _ = h(c) })
}

func TestRecovery_PassesThrough(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/health")
	err := Recovery(zerolog.Nop())(okHandler)(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogger_AttachesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-42")

	handler := func(c echo.Context) error {
		zerolog.Ctx(c.Request().Context()).Info().Msg("inside handler")
		return c.String(http.StatusOK, "ok")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "inside handler") || !strings.Contains(out, `"request_id":"req-42"`) {
		t.Errorf("expected handler log line with request id, got %s", out)
	}
}

func TestLogger_HandsErrorToErrorHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return apperr.NotFound("patient", "x")
	}

	if err := Logger(zerolog.Nop())(handler)(c); err != nil {
		t.Fatalf("expected error to be handled, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

type shortageErr struct{}

func (shortageErr) Error() string   { return "insufficient stock" }
func (shortageErr) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (shortageErr) Details() map[string]any {
	return map[string]any{"current": 3, "requested": 5}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{"not found", fmt.Errorf("get: %w", apperr.NotFound("doctor", "d1")), http.StatusNotFound, "not_found", "doctor not found: d1"},
		{"validation", apperr.Invalid("quantity", "must be positive"), http.StatusBadRequest, "validation_error", "quantity: must be positive"},
		{"conflict", apperr.Conflict("email already in use"), http.StatusConflict, "conflict", "email already in use"},
		{"domain detail", shortageErr{}, http.StatusUnprocessableEntity, "unprocessable", "insufficient stock"},
		{"echo error", echo.NewHTTPError(http.StatusForbidden, "required role: ADMIN"), http.StatusForbidden, "forbidden", "required role: ADMIN"},
		{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.Set("request_id", "rid")

			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, body.Error)
			}
			if body.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, body.Message)
			}
			if body.RequestID != "rid" {
				t.Errorf("expected request id, got %q", body.RequestID)
			}
		})
	}
}

func TestErrorHandler_Details(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	ErrorHandler(zerolog.Nop())(fmt.Errorf("record movement: %w", shortageErr{}), c)

	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Details["current"] != float64(3) || body.Details["requested"] != float64(5) {
		t.Errorf("unexpected details %v", body.Details)
	}
}
