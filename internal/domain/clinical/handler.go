package clinical

import (
	"net/http"
	"time"

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

// RegisterRoutes lets agents read clinical records; only doctors write them.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	readers := auth.RequireRole(auth.RoleDoctor, auth.RoleAgent)
	writers := auth.RequireRole(auth.RoleDoctor)

	cr := api.Group("/consultations", readers)
	cr.GET("", h.SearchConsultations)
	cr.GET("/:id", h.GetConsultation)
	cw := api.Group("/consultations", writers)
	cw.POST("", h.CreateConsultation)
	cw.PUT("/:id", h.UpdateConsultation)
	cw.DELETE("/:id", h.DeleteConsultation)

	pr := api.Group("/prescriptions", readers)
	pr.GET("", h.SearchPrescriptions)
	pr.GET("/:id", h.GetPrescription)
	pw := api.Group("/prescriptions", writers)
	pw.POST("", h.CreatePrescription)
	pw.PUT("/:id", h.UpdatePrescription)
	pw.PATCH("/:id/status", h.UpdatePrescriptionStatus)
	pw.DELETE("/:id", h.DeletePrescription)
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

// -- Consultation Handlers --

type consultationRequest struct {
	AppointmentID    *uuid.UUID `json:"appointment_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	ConsultationDate *time.Time `json:"consultation_date"`
	Symptoms         *string    `json:"symptoms"`
	Diagnosis        *string    `json:"diagnosis"`
	TreatmentPlan    *string    `json:"treatment_plan"`
	Vitals           Vitals     `json:"vitals"`
}

func (h *Handler) CreateConsultation(c echo.Context) error {
	var req consultationRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	cons := &Consultation{
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		Symptoms:      req.Symptoms,
		Diagnosis:     req.Diagnosis,
		TreatmentPlan: req.TreatmentPlan,
		Vitals:        req.Vitals,
	}
	if req.ConsultationDate != nil {
		cons.ConsultationDate = *req.ConsultationDate
	}
	if err := h.svc.CreateConsultation(c.Request().Context(), cons); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cons)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cons, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) UpdateConsultation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var u ConsultationUpdate
	if err := bindBody(c, &u); err != nil {
		return err
	}
	cons, err := h.svc.UpdateConsultation(c.Request().Context(), id, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) DeleteConsultation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteConsultation(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchConsultations(c echo.Context) error {
	var f ConsultationFilter
	var err error
	if f.PatientID, err = queryID(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = queryID(c, "doctor_id"); err != nil {
		return err
	}
	if f.AppointmentID, err = queryID(c, "appointment_id"); err != nil {
		return err
	}
	f.DateFrom = c.QueryParam("date_from")
	f.DateTo = c.QueryParam("date_to")
	f.Diagnosis = c.QueryParam("diagnosis")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchConsultations(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Prescription Handlers --

type prescriptionRequest struct {
	ConsultationID   *uuid.UUID   `json:"consultation_id"`
	PatientID        uuid.UUID    `json:"patient_id"`
	DoctorID         uuid.UUID    `json:"doctor_id"`
	PrescriptionDate string       `json:"prescription_date"`
	Medications      []Medication `json:"medications"`
	Instructions     *string      `json:"instructions"`
	Status           string       `json:"status"`
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req prescriptionRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	p := &Prescription{
		ConsultationID:   req.ConsultationID,
		PatientID:        req.PatientID,
		DoctorID:         req.DoctorID,
		PrescriptionDate: req.PrescriptionDate,
		Medications:      req.Medications,
		Instructions:     req.Instructions,
	}
	if req.Status != "" {
		st, err := ParsePrescriptionStatus(req.Status)
		if err != nil {
			return apperr.Invalid("status", err.Error())
		}
		p.Status = st
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var u PrescriptionUpdate
	if err := bindBody(c, &u); err != nil {
		return err
	}
	p, err := h.svc.UpdatePrescription(c.Request().Context(), id, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePrescriptionStatus(c echo.Context) error {
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
	status, err := ParsePrescriptionStatus(req.Status)
	if err != nil {
		return apperr.Invalid("status", err.Error())
	}
	p, err := h.svc.UpdatePrescriptionStatus(c.Request().Context(), id, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePrescription(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePrescription(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchPrescriptions(c echo.Context) error {
	var f PrescriptionFilter
	var err error
	if f.PatientID, err = queryID(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = queryID(c, "doctor_id"); err != nil {
		return err
	}
	if f.ConsultationID, err = queryID(c, "consultation_id"); err != nil {
		return err
	}
	if v := c.QueryParam("status"); v != "" {
		if f.Status, err = ParsePrescriptionStatus(v); err != nil {
			return apperr.Invalid("status", err.Error())
		}
	}
	f.DateFrom = c.QueryParam("date_from")
	f.DateTo = c.QueryParam("date_to")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPrescriptions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
