package billing

import (
	"net/http"
	"strconv"

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

// RegisterRoutes exposes invoices to the front desk. Doctors may read them.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/invoices", auth.RequireRole(auth.RoleAgent, auth.RoleDoctor))
	read.GET("", h.SearchInvoices)
	read.GET("/overdue", h.Overdue)
	read.GET("/totals", h.Totals)
	read.GET("/number/:number", h.GetByNumber)
	read.GET("/:id", h.GetInvoice)

	write := api.Group("/invoices", auth.RequireRole(auth.RoleAgent))
	write.POST("", h.CreateInvoice)
	write.PUT("/:id", h.UpdateInvoice)
	write.PATCH("/:id/status", h.UpdateStatus)
	write.DELETE("/:id", h.DeleteInvoice)
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

func queryAmount(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.Invalid(name, "must be an integer")
	}
	return &v, nil
}

func bindBody(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

type createRequest struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	InvoiceNumber string     `json:"invoice_number"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	DueDate       *string    `json:"due_date"`
	Items         []Item     `json:"items"`
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var req createRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	inv := &Invoice{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		InvoiceNumber: req.InvoiceNumber,
		Amount:        req.Amount,
		DueDate:       req.DueDate,
		Items:         req.Items,
	}
	if req.Status != "" {
		st, err := ParseStatus(req.Status)
		if err != nil {
			return apperr.Invalid("status", err.Error())
		}
		inv.Status = st
	}
	if err := h.svc.CreateInvoice(c.Request().Context(), inv); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) GetByNumber(c echo.Context) error {
	inv, err := h.svc.GetByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) UpdateInvoice(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var u InvoiceUpdate
	if err := bindBody(c, &u); err != nil {
		return err
	}
	inv, err := h.svc.UpdateInvoice(c.Request().Context(), id, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
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
	inv, err := h.svc.UpdateStatus(c.Request().Context(), id, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) DeleteInvoice(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInvoice(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchInvoices(c echo.Context) error {
	var f Filter
	var err error
	if f.PatientID, err = queryID(c, "patient_id"); err != nil {
		return err
	}
	if v := c.QueryParam("status"); v != "" {
		if f.Status, err = ParseStatus(v); err != nil {
			return apperr.Invalid("status", err.Error())
		}
	}
	if f.AmountMin, err = queryAmount(c, "amount_min"); err != nil {
		return err
	}
	if f.AmountMax, err = queryAmount(c, "amount_max"); err != nil {
		return err
	}
	f.DateFrom = c.QueryParam("date_from")
	f.DateTo = c.QueryParam("date_to")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchInvoices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Overdue(c echo.Context) error {
	items, err := h.svc.OverdueInvoices(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Invoice{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Totals(c echo.Context) error {
	patientID, err := queryID(c, "patient_id")
	if err != nil {
		return err
	}
	t, err := h.svc.Totals(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}
