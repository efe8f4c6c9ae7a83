package clinical

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Vitals holds free-form measurements such as blood_pressure or
// temperature, stored as JSONB.
type Vitals map[string]any

// Consultation records what happened when a doctor saw a patient.
type Consultation struct {
	ID               uuid.UUID  `json:"id"`
	AppointmentID    *uuid.UUID `json:"appointment_id,omitempty"`
	PatientID        uuid.UUID  `json:"patient_id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	ConsultationDate time.Time  `json:"consultation_date"`
	Symptoms         *string    `json:"symptoms,omitempty"`
	Diagnosis        *string    `json:"diagnosis,omitempty"`
	TreatmentPlan    *string    `json:"treatment_plan,omitempty"`
	Vitals           Vitals     `json:"vitals"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ConsultationUpdate struct {
	ConsultationDate *time.Time `json:"consultation_date"`
	Symptoms         *string    `json:"symptoms"`
	Diagnosis        *string    `json:"diagnosis"`
	TreatmentPlan    *string    `json:"treatment_plan"`
	Vitals           Vitals     `json:"vitals"`
}

type ConsultationFilter struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	AppointmentID *uuid.UUID
	DateFrom      string
	DateTo        string
	// Diagnosis matches a substring, case-insensitive.
	Diagnosis string
}

type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "ACTIVE"
	PrescriptionCompleted PrescriptionStatus = "COMPLETED"
	PrescriptionCancelled PrescriptionStatus = "CANCELLED"
)

func (s PrescriptionStatus) Valid() bool {
	return s == PrescriptionActive || s == PrescriptionCompleted || s == PrescriptionCancelled
}

func ParsePrescriptionStatus(s string) (PrescriptionStatus, error) {
	st := PrescriptionStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown prescription status %q", s)
	}
	return st, nil
}

type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription lists medications ordered for a patient. PrescriptionDate is
// YYYY-MM-DD.
type Prescription struct {
	ID               uuid.UUID          `json:"id"`
	ConsultationID   *uuid.UUID         `json:"consultation_id,omitempty"`
	PatientID        uuid.UUID          `json:"patient_id"`
	DoctorID         uuid.UUID          `json:"doctor_id"`
	PrescriptionDate string             `json:"prescription_date"`
	Medications      []Medication       `json:"medications"`
	Instructions     *string            `json:"instructions,omitempty"`
	Status           PrescriptionStatus `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// PrescriptionUpdate leaves nil fields alone. A non-nil Medications replaces
// the whole list.
type PrescriptionUpdate struct {
	PrescriptionDate *string      `json:"prescription_date"`
	Medications      []Medication `json:"medications"`
	Instructions     *string      `json:"instructions"`
}

type PrescriptionFilter struct {
	PatientID      *uuid.UUID
	DoctorID       *uuid.UUID
	ConsultationID *uuid.UUID
	Status         PrescriptionStatus
	DateFrom       string
	DateTo         string
}
