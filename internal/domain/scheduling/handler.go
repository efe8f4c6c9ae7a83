package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/appointments", auth.RequireAuthenticated())
	read.GET("", h.SearchAppointments)
	read.GET("/slots", h.GetAvailableSlots)
	read.GET("/today", h.TodaysConfirmed)
	read.GET("/overdue", h.Overdue)
	read.GET("/stats", h.Stats)
	read.GET("/:id", h.GetAppointment)

	write := api.Group("/appointments", auth.RequireRole(auth.RoleDoctor, auth.RoleAgent))
	write.POST("", h.CreateAppointment)
	write.PUT("/:id", h.UpdateAppointment)
	write.PATCH("/:id/status", h.UpdateStatus)
	write.DELETE("/:id", h.DeleteAppointment)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a UUID")
	}
	return id, nil
}

func queryID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Invalid(name, "must be a UUID")
	}
	return &id, nil
}

func bindBody(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

type createRequest struct {
	PatientID        uuid.UUID `json:"patient_id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	Date             string    `json:"appointment_date"`
	Time             string    `json:"appointment_time"`
	ConsultationType string    `json:"consultation_type"`
	Reason           *string   `json:"reason"`
	Notes            *string   `json:"notes"`
	PaymentMethod    string    `json:"payment_method"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req createRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	a := &Appointment{
		PatientID:        req.PatientID,
		DoctorID:         req.DoctorID,
		Date:             req.Date,
		Time:             req.Time,
		ConsultationType: ConsultationType(req.ConsultationType),
		Reason:           req.Reason,
		Notes:            req.Notes,
		PaymentMethod:    PaymentMethod(req.PaymentMethod),
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), a); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var u AppointmentUpdate
	if err := bindBody(c, &u); err != nil {
		return err
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := bindBody(c, &req); err != nil {
		return err
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		return apperr.Invalid("status", err.Error())
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), id, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchAppointments(c echo.Context) error {
	var f Filter
	var err error
	if f.PatientID, err = queryID(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = queryID(c, "doctor_id"); err != nil {
		return err
	}
	if v := c.QueryParam("status"); v != "" {
		if f.Status, err = ParseStatus(v); err != nil {
			return apperr.Invalid("status", err.Error())
		}
	}
	if v := c.QueryParam("consultation_type"); v != "" {
		if f.ConsultationType, err = ParseConsultationType(v); err != nil {
			return apperr.Invalid("consultation_type", err.Error())
		}
	}
	f.DateFrom = c.QueryParam("date_from")
	f.DateTo = c.QueryParam("date_to")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAvailableSlots(c echo.Context) error {
	doctorID, err := queryID(c, "doctor_id")
	if err != nil {
		return err
	}
	if doctorID == nil {
		return apperr.Invalid("doctor_id", "is required")
	}
	date := c.QueryParam("date")
	if date == "" {
		return apperr.Invalid("date", "is required")
	}
	slots, err := h.svc.GetAvailableSlots(c.Request().Context(), *doctorID, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) TodaysConfirmed(c echo.Context) error {
	items, err := h.svc.TodaysConfirmed(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) Overdue(c echo.Context) error {
	items, err := h.svc.Overdue(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func nonNil(items []*Appointment) []*Appointment {
	if items == nil {
		return []*Appointment{}
	}
	return items
}
