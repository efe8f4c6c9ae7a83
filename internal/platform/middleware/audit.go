package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry is one access to a clinic resource.
type AuditEntry struct {
	At         time.Time
	RequestID  string
	ActorID    string
	ActorRole  string
	Action     string
	Resource   string
	ResourceID string
	PatientID  string
	Method     string
	Path       string
	RemoteIP   string
	Status     int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error { return f(entry) }

var auditActions = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

// Audit writes a data_access log line for every /api/v1 request except login,
// after the handler ran. Recorder failures are logged and never change the
// response.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !strings.HasPrefix(path, apiPrefix) || strings.HasPrefix(path, apiPrefix+"auth/") {
				return next(c)
			}

			err := next(c)
			entry := newAuditEntry(c, err)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if rerr := r.RecordAccess(entry); rerr != nil {
					logger.Error().Err(rerr).Str("request_id", entry.RequestID).Msg("audit recorder failed")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("actor_id", entry.ActorID).
				Str("actor_role", entry.ActorRole).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.Status).
				Msg("data_access")

			return err
		}
	}
}

func newAuditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	ctx := req.Context()

	action, ok := auditActions[req.Method]
	if !ok {
		action = "read"
	}
	status := c.Response().Status
	if err != nil && !c.Response().Committed {
		status = errorStatus(err)
	}

	e := AuditEntry{
		At:        time.Now().UTC(),
		ActorID:   auth.UserIDFromContext(ctx),
		ActorRole: auth.RoleFromContext(ctx),
		Action:    action,
		Method:    req.Method,
		Path:      req.URL.Path,
		RemoteIP:  c.RealIP(),
		Status:    status,
	}
	e.RequestID, _ = c.Get("request_id").(string)
	e.Resource, e.ResourceID = parseAuditPath(req.URL.Path)
	if e.Resource == "patients" {
		e.PatientID = e.ResourceID
	}
	if e.PatientID == "" {
		e.PatientID = c.QueryParam("patient_id")
	}
	return e
}

// parseAuditPath splits /api/v1/<resource>/<uuid>/... The id is empty when
// the second segment is not a uuid, as in /api/v1/appointments/slots.
func parseAuditPath(path string) (resource, id string) {
	resource, rest, _ := strings.Cut(strings.TrimPrefix(path, apiPrefix), "/")
	if resource == "" {
		return "unknown", ""
	}
	seg, _, _ := strings.Cut(rest, "/")
	if _, err := uuid.Parse(seg); err == nil {
		id = seg
	}
	return resource, id
}
