package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusSent      InvoiceStatus = "SENT"
	StatusPaid      InvoiceStatus = "PAID"
	StatusOverdue   InvoiceStatus = "OVERDUE"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Final reports whether the invoice content is frozen.
func (s InvoiceStatus) Final() bool {
	return s == StatusPaid || s == StatusCancelled
}

func ParseStatus(s string) (InvoiceStatus, error) {
	st := InvoiceStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown invoice status %q", s)
	}
	return st, nil
}

// Item is one invoice line. Amounts are whole FCFA.
type Item struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalPrice  int64  `json:"total_price"`
}

type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	InvoiceNumber string        `json:"invoice_number"`
	Amount        int64         `json:"amount"`
	Status        InvoiceStatus `json:"status"`
	DueDate       *string       `json:"due_date,omitempty"`
	Items         []Item        `json:"items"`
	Overdue       bool          `json:"is_overdue"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsOverdue is true for an unpaid, uncancelled invoice whose due date is
// before today. today and DueDate are YYYY-MM-DD.
func (i *Invoice) IsOverdue(today string) bool {
	if i.Status.Final() || i.DueDate == nil || *i.DueDate == "" {
		return false
	}
	return *i.DueDate < today
}

func (i *Invoice) ItemsTotal() int64 {
	var sum int64
	for _, it := range i.Items {
		sum += it.TotalPrice
	}
	return sum
}

type InvoiceUpdate struct {
	DueDate       *string    `json:"due_date"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	Items         []Item     `json:"items"`
}

type Filter struct {
	PatientID *uuid.UUID
	Status    InvoiceStatus
	// DateFrom and DateTo bound the creation day.
	DateFrom  string
	DateTo    string
	AmountMin *int64
	AmountMax *int64
}

type Totals struct {
	Paid        int64 `json:"paid"`
	Outstanding int64 `json:"outstanding"`
	Count       int   `json:"count"`
}
