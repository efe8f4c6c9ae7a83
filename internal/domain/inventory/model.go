package inventory

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryMedication Category = "MEDICATION"
	CategoryEquipment  Category = "EQUIPMENT"
	CategorySupplies   Category = "SUPPLIES"
)

func (c Category) Valid() bool {
	return c == CategoryMedication || c == CategoryEquipment || c == CategorySupplies
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Item is a stocked product. UnitPrice is in FCFA and ExpiryDate is
// YYYY-MM-DD. The three flags are derived and filled by Annotate.
type Item struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Category     Category  `json:"category"`
	Description  *string   `json:"description,omitempty"`
	CurrentStock int       `json:"current_stock"`
	MinStock     int       `json:"min_stock"`
	UnitPrice    int64     `json:"unit_price"`
	ExpiryDate   *string   `json:"expiry_date,omitempty"`
	Supplier     *string   `json:"supplier,omitempty"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	LowStock     bool `json:"low_stock"`
	Expired      bool `json:"expired"`
	ExpiringSoon bool `json:"expiring_soon"`
}

// IsLowStock reports whether stock has reached the reorder threshold.
func (i *Item) IsLowStock() bool {
	return i.CurrentStock <= i.MinStock
}

// IsExpired reports whether the expiry date is before today.
func (i *Item) IsExpired(today time.Time) bool {
	if i.ExpiryDate == nil {
		return false
	}
	return *i.ExpiryDate < today.Format(time.DateOnly)
}

// IsExpiringSoon reports whether the expiry date is before today+days.
// Expired items count as expiring soon.
func (i *Item) IsExpiringSoon(today time.Time, days int) bool {
	if i.ExpiryDate == nil {
		return false
	}
	return *i.ExpiryDate < today.AddDate(0, 0, days).Format(time.DateOnly)
}

// Annotate fills the derived flags for output.
func (i *Item) Annotate(today time.Time, days int) {
	i.LowStock = i.IsLowStock()
	i.Expired = i.IsExpired(today)
	i.ExpiringSoon = i.IsExpiringSoon(today, days)
}

// Value is the stock valuation of the item in FCFA.
func (i *Item) Value() int64 {
	return int64(i.CurrentStock) * i.UnitPrice
}

type ItemFilter struct {
	Category Category
	Supplier string
	// Query matches name or description, case-insensitive.
	Query string
}

// AlertSummary is the dashboard view of inventory health.
type AlertSummary struct {
	LowStockCount     int   `json:"low_stock_count"`
	ExpiredCount      int   `json:"expired_count"`
	ExpiringSoonCount int   `json:"expiring_soon_count"`
	TotalValue        int64 `json:"total_value"`
}

// ItemStats breaks the catalogue down by category and supplier. Items
// without a supplier are left out of BySupplier.
type ItemStats struct {
	AlertSummary
	Total           int                `json:"total"`
	ByCategory      map[Category]int   `json:"by_category"`
	ValueByCategory map[Category]int64 `json:"value_by_category"`
	BySupplier      map[string]int     `json:"by_supplier"`
}

// CategoryTotals is one row of the per-category breakdown.
type CategoryTotals struct {
	Count int
	Value int64
}

type MovementType string

const (
	Inbound  MovementType = "INBOUND"
	Outbound MovementType = "OUTBOUND"
)

func (t MovementType) Valid() bool {
	return t == Inbound || t == Outbound
}

func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown movement type %q", s)
	}
	return t, nil
}

// apply returns the stock after the movement.
func (t MovementType) apply(stock, qty int) int {
	if t == Inbound {
		return stock + qty
	}
	return stock - qty
}

// reverse returns the stock after undoing the movement.
func (t MovementType) reverse(stock, qty int) int {
	if t == Inbound {
		return stock - qty
	}
	return stock + qty
}

// Movement is one immutable ledger entry against an item.
type Movement struct {
	ID        uuid.UUID    `json:"id"`
	ItemID    uuid.UUID    `json:"item_id"`
	Type      MovementType `json:"movement_type"`
	Quantity  int          `json:"quantity"`
	Reason    *string      `json:"reason,omitempty"`
	ActorID   *uuid.UUID   `json:"actor_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type MovementFilter struct {
	ItemID   *uuid.UUID
	Type     MovementType
	ActorID  *uuid.UUID
	DateFrom string
	DateTo   string
	Reason   string
}

// MovementStatsFilter narrows movement statistics. Since is YYYY-MM-DD and
// inclusive.
type MovementStatsFilter struct {
	ItemID  *uuid.UUID
	ActorID *uuid.UUID
	Since   string
}

// MovementStats counts movements and sums their quantities per type.
type MovementStats struct {
	Total          int                  `json:"total"`
	ByType         map[MovementType]int `json:"by_type"`
	QuantityByType map[MovementType]int `json:"quantity_by_type"`
}

// DailyMovements is the inbound and outbound volume of one UTC day.
type DailyMovements struct {
	Date     string `json:"date"`
	Inbound  int    `json:"inbound"`
	Outbound int    `json:"outbound"`
}

// NetMovement is an item's inbound minus outbound volume over a period.
type NetMovement struct {
	ItemID   uuid.UUID `json:"item_id"`
	ItemName string    `json:"item_name"`
	Inbound  int       `json:"inbound"`
	Outbound int       `json:"outbound"`
	Net      int       `json:"net"`
}

// InsufficientStockError rejects an OUTBOUND movement larger than the
// current stock.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	Current   int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: current %d, requested %d", e.ItemID, e.Current, e.Requested)
}

func (e *InsufficientStockError) HTTPStatus() int { return http.StatusUnprocessableEntity }

func (e *InsufficientStockError) Details() map[string]any {
	return map[string]any{
		"item_id":   e.ItemID.String(),
		"current":   e.Current,
		"requested": e.Requested,
	}
}

// IrreversibleMovementError rejects deleting a movement whose reversal would
// drive the stock negative.
type IrreversibleMovementError struct {
	MovementID uuid.UUID
	ItemID     uuid.UUID
	Current    int
	Quantity   int
}

func (e *IrreversibleMovementError) Error() string {
	return fmt.Sprintf("cannot reverse movement %s: item %s has %d in stock, reversal needs %d",
		e.MovementID, e.ItemID, e.Current, e.Quantity)
}

func (e *IrreversibleMovementError) HTTPStatus() int { return http.StatusUnprocessableEntity }

func (e *IrreversibleMovementError) Details() map[string]any {
	return map[string]any{
		"movement_id": e.MovementID.String(),
		"item_id":     e.ItemID.String(),
		"current":     e.Current,
		"quantity":    e.Quantity,
	}
}
