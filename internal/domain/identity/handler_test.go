package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *testDeps, *echo.Echo) {
	svc, deps := newTestService(t)
	return NewHandler(svc), deps, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func asCaller(req *http.Request, id uuid.UUID, role string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), id.String(), role, ""))
}

func errStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.Status(err)
}

func TestHandler_CreateProfile(t *testing.T) {
	h, _, e := newTestHandler(t)

	body := `{"first_name":"Awa","last_name":"Diallo","email":"awa@clinic.test","password":"s3cret-pass","role":"agent"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/profiles", body), rec)

	if err := h.CreateProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not contain the password hash")
	}

	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Role != RoleAgent {
		t.Errorf("expected AGENT, got %s", p.Role)
	}
}

func TestHandler_CreateProfile_BadRole(t *testing.T) {
	h, _, e := newTestHandler(t)

	body := `{"first_name":"A","last_name":"B","email":"a@clinic.test","password":"s3cret-pass","role":"nurse"}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/profiles", body), httptest.NewRecorder())

	if err := h.CreateProfile(c); errStatus(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Login(t *testing.T) {
	h, _, e := newTestHandler(t)
	mustCreateProfile(t, h.svc, "doc@clinic.test", RoleDoctor)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/login",
		`{"email":"doc@clinic.test","password":"s3cret-pass"}`), rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res LoginResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Token == "" {
		t.Error("expected a token")
	}
	if res.Profile == nil || res.Profile.Email != "doc@clinic.test" {
		t.Errorf("unexpected profile %+v", res.Profile)
	}
}

func TestHandler_Login_BadCredentials(t *testing.T) {
	h, _, e := newTestHandler(t)
	mustCreateProfile(t, h.svc, "doc@clinic.test", RoleDoctor)

	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/login",
		`{"email":"doc@clinic.test","password":"nope-nope"}`), httptest.NewRecorder())

	if err := h.Login(c); errStatus(err) != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, _, e := newTestHandler(t)
	p := mustCreateProfile(t, h.svc, "me@clinic.test", RoleAgent)

	rec := httptest.NewRecorder()
	req := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), p.ID, auth.RoleAgent)
	c := e.NewContext(req, rec)

	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "me@clinic.test") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_GetProfile_OtherUserForbidden(t *testing.T) {
	h, _, e := newTestHandler(t)
	a := mustCreateProfile(t, h.svc, "a@clinic.test", RoleAgent)
	b := mustCreateProfile(t, h.svc, "b@clinic.test", RoleAgent)

	req := asCaller(httptest.NewRequest(http.MethodGet, "/", nil), a.ID, auth.RoleAgent)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	if err := h.GetProfile(c); errStatus(err) != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_DeleteProfile_LastAdmin(t *testing.T) {
	h, _, e := newTestHandler(t)
	admin := mustCreateProfile(t, h.svc, "admin@clinic.test", RoleAdmin)

	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(admin.ID.String())

	if err := h.DeleteProfile(c); errStatus(err) != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, _, e := newTestHandler(t)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.GetPatient(c); errStatus(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetDoctor_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetDoctor(c); errStatus(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_SetAvailability(t *testing.T) {
	h, deps, e := newTestHandler(t)
	id := uuid.New()
	deps.doctors.items[id] = &Doctor{ID: id, AvailabilityStatus: Available}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, "/", `{"availability_status":"busy"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	if err := h.SetAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deps.doctors.items[id].AvailabilityStatus != Busy {
		t.Error("expected BUSY")
	}
}

func TestHandler_SearchPatients(t *testing.T) {
	h, _, e := newTestHandler(t)
	prof := mustCreateProfile(t, h.svc, "pat@clinic.test", RolePatient)
	if err := h.svc.CreatePatient(context.Background(), &Patient{UserID: prof.ID, Gender: Male}); err != nil {
		t.Fatalf("create patient: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?gender=male", nil), rec)

	if err := h.SearchPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected 1 patient, got %d", body.Total)
	}
}

func TestHandler_SearchPatients_BadAge(t *testing.T) {
	h, _, e := newTestHandler(t)
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?min_age=abc", nil), httptest.NewRecorder())

	if err := h.SearchPatients(c); errStatus(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler(t)
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/auth/login":                false,
		"GET /api/v1/auth/me":                    false,
		"PATCH /api/v1/admin/users/:id/role":     false,
		"PATCH /api/v1/doctors/:id/availability": false,
		"GET /api/v1/patients":                   false,
		"DELETE /api/v1/specialties/:id":         false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
