package scheduling

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// IsActive reports whether an appointment in this status holds its slot.
func (s Status) IsActive() bool {
	return s != StatusCancelled && s != StatusCompleted
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
	return st, nil
}

type ConsultationType string

const (
	TypeConsultation     ConsultationType = "CONSULTATION"
	TypeFollowUp         ConsultationType = "FOLLOW_UP"
	TypeEmergency        ConsultationType = "EMERGENCY"
	TypeTeleconsultation ConsultationType = "TELECONSULTATION"
)

func (t ConsultationType) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeTeleconsultation:
		return true
	}
	return false
}

func ParseConsultationType(s string) (ConsultationType, error) {
	t := ConsultationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown consultation type %q", s)
	}
	return t, nil
}

type PaymentMethod string

const (
	PaymentMobileMoney PaymentMethod = "MOBILE_MONEY"
	PaymentCash        PaymentMethod = "CASH"
	PaymentCard        PaymentMethod = "CARD"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMobileMoney || m == PaymentCash || m == PaymentCard
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentPaid || p == PaymentFailed
}

// Appointment books a patient into a doctor's slot. Date is YYYY-MM-DD and
// Time is HH:MM.
type Appointment struct {
	ID               uuid.UUID        `json:"id"`
	PatientID        uuid.UUID        `json:"patient_id"`
	DoctorID         uuid.UUID        `json:"doctor_id"`
	Date             string           `json:"appointment_date"`
	Time             string           `json:"appointment_time"`
	ConsultationType ConsultationType `json:"consultation_type"`
	Status           Status           `json:"status"`
	Reason           *string          `json:"reason,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	PaymentMethod    PaymentMethod    `json:"payment_method,omitempty"`
	PaymentStatus    PaymentStatus    `json:"payment_status"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// AppointmentUpdate is a partial update; nil fields are left alone. Version,
// when set, must match the stored version.
type AppointmentUpdate struct {
	Date             *string           `json:"appointment_date"`
	Time             *string           `json:"appointment_time"`
	ConsultationType *ConsultationType `json:"consultation_type"`
	Status           *Status           `json:"status"`
	Reason           *string           `json:"reason"`
	Notes            *string           `json:"notes"`
	PaymentMethod    *PaymentMethod    `json:"payment_method"`
	PaymentStatus    *PaymentStatus    `json:"payment_status"`
	Version          *int              `json:"version"`
}

func (u AppointmentUpdate) movesSlot() bool {
	return u.Date != nil || u.Time != nil
}

// Slot is one bookable interval [Start, End) of a doctor's day.
type Slot struct {
	Start     string `json:"start_time"`
	End       string `json:"end_time"`
	Available bool   `json:"available"`
}

// Window is the working day used to generate slots, as offsets from
// midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
	Step  time.Duration
}

// DefaultWindow is 09:00 to 17:00 in 30 minute steps.
func DefaultWindow() Window {
	return Window{Start: 9 * time.Hour, End: 17 * time.Hour, Step: 30 * time.Minute}
}

type Filter struct {
	PatientID        *uuid.UUID
	DoctorID         *uuid.UUID
	Status           Status
	ConsultationType ConsultationType
	DateFrom         string
	DateTo           string
}

type Stats struct {
	Total              int                      `json:"total"`
	ByStatus           map[Status]int           `json:"by_status"`
	ByConsultationType map[ConsultationType]int `json:"by_consultation_type"`
	ByPaymentStatus    map[PaymentStatus]int    `json:"by_payment_status"`
}

// ConflictError reports that the doctor already has an active appointment
// at the requested date and time.
type ConflictError struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("doctor %s already has an appointment on %s at %s", e.DoctorID, e.Date, e.Time)
}

func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }

func (e *ConflictError) Details() map[string]any {
	return map[string]any{
		"doctor_id":        e.DoctorID.String(),
		"appointment_date": e.Date,
		"appointment_time": e.Time,
	}
}
