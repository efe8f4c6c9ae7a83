package inventory

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireAuthenticated())
	read.GET("/inventory", h.SearchItems)
	read.GET("/inventory/alerts", h.Alerts)
	read.GET("/inventory/low-stock", h.LowStock)
	read.GET("/inventory/expired", h.Expired)
	read.GET("/inventory/expiring", h.Expiring)
	read.GET("/inventory/export", h.Export)
	read.GET("/inventory/stats", h.ItemStats)
	read.GET("/inventory/:id", h.GetItem)
	read.GET("/stock-movements", h.SearchMovements)
	read.GET("/stock-movements/today", h.TodaysMovements)
	read.GET("/stock-movements/stats", h.MovementStats)
	read.GET("/stock-movements/stats/by-date", h.DailyMovements)
	read.GET("/stock-movements/stats/net", h.NetMovements)
	read.GET("/stock-movements/item/:itemId", h.ItemHistory)
	read.GET("/stock-movements/:id", h.GetMovement)

	write := api.Group("", auth.RequireRole(auth.RoleAgent))
	write.POST("/inventory", h.CreateItem)
	write.PUT("/inventory/:id", h.UpdateItem)
	write.DELETE("/inventory/:id", h.DeleteItem)
	write.PUT("/inventory/:id/stock", h.SetStock)
	write.POST("/inventory/:id/adjust", h.AdjustStock)
	write.POST("/stock-movements", h.RecordMovement)
	write.DELETE("/stock-movements/:id", h.DeleteMovement)
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

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// -- Items --

type itemRequest struct {
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Description  *string `json:"description"`
	CurrentStock int     `json:"current_stock"`
	MinStock     int     `json:"min_stock"`
	UnitPrice    int64   `json:"unit_price"`
	ExpiryDate   *string `json:"expiry_date"`
	Supplier     *string `json:"supplier"`
	Version      *int    `json:"version"`
}

func (r itemRequest) toItem() (*Item, error) {
	i := &Item{
		Name:         r.Name,
		Description:  r.Description,
		CurrentStock: r.CurrentStock,
		MinStock:     r.MinStock,
		UnitPrice:    r.UnitPrice,
		ExpiryDate:   r.ExpiryDate,
		Supplier:     r.Supplier,
	}
	if r.Version != nil {
		i.Version = *r.Version
	}
	if r.Category != "" {
		cat, err := ParseCategory(r.Category)
		if err != nil {
			return nil, apperr.Invalid("category", err.Error())
		}
		i.Category = cat
	}
	return i, nil
}

func (h *Handler) CreateItem(c echo.Context) error {
	var req itemRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	item, err := req.toItem()
	if err != nil {
		return err
	}
	if err := h.svc.CreateItem(c.Request().Context(), item); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	item, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req itemRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	item, err := req.toItem()
	if err != nil {
		return err
	}
	item.ID = id
	if err := h.svc.UpdateItem(c.Request().Context(), item); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) DeleteItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteItem(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchItems(c echo.Context) error {
	var f ItemFilter
	if v := c.QueryParam("category"); v != "" {
		cat, err := ParseCategory(v)
		if err != nil {
			return apperr.Invalid("category", err.Error())
		}
		f.Category = cat
	}
	f.Supplier = c.QueryParam("supplier")
	f.Query = c.QueryParam("q")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchItems(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) LowStock(c echo.Context) error {
	items, err := h.svc.LowStockItems(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) Expired(c echo.Context) error {
	items, err := h.svc.ExpiredItems(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) Expiring(c echo.Context) error {
	days := 0
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return apperr.Invalid("days", "must be a positive integer")
		}
		days = n
	}
	items, err := h.svc.ExpiringItems(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) Alerts(c echo.Context) error {
	summary, err := h.svc.Alerts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) Export(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.AllItems(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, items); err != nil {
		return err
	}
	name := fmt.Sprintf("inventory-%s.xlsx", h.svc.today().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

type stockRequest struct {
	Stock  int    `json:"stock"`
	Reason string `json:"reason"`
}

func (h *Handler) SetStock(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req stockRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	item, err := h.svc.SetStock(c.Request().Context(), id, req.Stock, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

type adjustRequest struct {
	Adjustment int    `json:"adjustment"`
	Reason     string `json:"reason"`
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req adjustRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	item, err := h.svc.AdjustStock(c.Request().Context(), id, req.Adjustment, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// -- Movements --

type movementRequest struct {
	ItemID   uuid.UUID  `json:"item_id"`
	Type     string     `json:"movement_type"`
	Quantity int        `json:"quantity"`
	Reason   *string    `json:"reason"`
	ActorID  *uuid.UUID `json:"actor_id"`
}

// RecordMovement attributes the movement to the caller unless the body names
// another actor.
func (h *Handler) RecordMovement(c echo.Context) error {
	var req movementRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.ItemID == uuid.Nil {
		return apperr.Invalid("item_id", "is required")
	}
	mtype, err := ParseMovementType(req.Type)
	if err != nil {
		return apperr.Invalid("movement_type", err.Error())
	}
	actor := req.ActorID
	if actor == nil {
		if id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
			actor = &id
		}
	}
	m, err := h.svc.RecordMovement(c.Request().Context(), MovementInput{
		ItemID: req.ItemID, Type: mtype, Quantity: req.Quantity, Reason: req.Reason, ActorID: actor,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMovement(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMovement(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMovement(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMovement(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchMovements(c echo.Context) error {
	var f MovementFilter
	var err error
	if f.ItemID, err = queryID(c, "item_id"); err != nil {
		return err
	}
	if f.ActorID, err = queryID(c, "actor_id"); err != nil {
		return err
	}
	if v := c.QueryParam("movement_type"); v != "" {
		if f.Type, err = ParseMovementType(v); err != nil {
			return apperr.Invalid("movement_type", err.Error())
		}
	}
	f.DateFrom = c.QueryParam("date_from")
	f.DateTo = c.QueryParam("date_to")
	f.Reason = c.QueryParam("reason")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchMovements(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ItemHistory(c echo.Context) error {
	id, err := parseID(c, "itemId")
	if err != nil {
		return err
	}
	items, err := h.svc.ItemHistory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

// -- Statistics --

func (h *Handler) ItemStats(c echo.Context) error {
	st, err := h.svc.ItemStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) TodaysMovements(c echo.Context) error {
	items, err := h.svc.TodaysMovements(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

// MovementStats accepts item_id, actor_id and since (YYYY-MM-DD) filters.
func (h *Handler) MovementStats(c echo.Context) error {
	var f MovementStatsFilter
	var err error
	if f.ItemID, err = queryID(c, "item_id"); err != nil {
		return err
	}
	if f.ActorID, err = queryID(c, "actor_id"); err != nil {
		return err
	}
	f.Since = c.QueryParam("since")

	st, err := h.svc.MovementStats(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) DailyMovements(c echo.Context) error {
	days, err := h.svc.DailyMovements(c.Request().Context(), c.QueryParam("since"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(days))
}

func (h *Handler) NetMovements(c echo.Context) error {
	net, err := h.svc.NetMovements(c.Request().Context(), c.QueryParam("since"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(net))
}
