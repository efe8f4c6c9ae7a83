package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kitalmartial-lang/medipatient-backend/pkg/caldate"
)

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
	RoleAgent   Role = "AGENT"
)

var validRoles = map[Role]bool{RolePatient: true, RoleDoctor: true, RoleAdmin: true, RoleAgent: true}

func (r Role) Valid() bool { return validRoles[r] }

// ParseRole accepts any letter case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Profile is a login account. Doctors and patients hang off a profile.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Phone        *string   `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Profile) IsActiveAdmin() bool {
	return p.Role == RoleAdmin && p.Enabled
}

type ProfileFilter struct {
	Role    Role
	Enabled *bool
	Query   string
}

type ProfileStats struct {
	Total  int          `json:"total"`
	Active int          `json:"active"`
	ByRole map[Role]int `json:"by_role"`
}

// ProfileUpdate carries the fields a caller may change on a profile.
type ProfileUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
}

type Specialty struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AvailabilityStatus string

const (
	Available AvailabilityStatus = "AVAILABLE"
	Busy      AvailabilityStatus = "BUSY"
	Offline   AvailabilityStatus = "OFFLINE"
)

func (a AvailabilityStatus) Valid() bool {
	return a == Available || a == Busy || a == Offline
}

func ParseAvailability(s string) (AvailabilityStatus, error) {
	a := AvailabilityStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown availability status %q", s)
	}
	return a, nil
}

// Doctor links a DOCTOR profile to a specialty. The name and specialty
// fields are read-only, filled from joins.
type Doctor struct {
	ID                 uuid.UUID          `json:"id"`
	UserID             uuid.UUID          `json:"user_id"`
	SpecialtyID        uuid.UUID          `json:"specialty_id"`
	LicenseNumber      string             `json:"license_number"`
	ConsultationFee    int64              `json:"consultation_fee"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Email         string `json:"email,omitempty"`
	SpecialtyName string `json:"specialty_name,omitempty"`
}

type DoctorFilter struct {
	Query        string
	SpecialtyID  *uuid.UUID
	Availability AvailabilityStatus
}

type Gender string

const (
	Male   Gender = "MALE"
	Female Gender = "FEMALE"
	Other  Gender = "OTHER"
)

func (g Gender) Valid() bool { return g == Male || g == Female || g == Other }

// ParseGender accepts "male", "Female", "OTHER" and so on.
func ParseGender(s string) (Gender, error) {
	g := Gender(strings.ToUpper(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unknown gender %q", s)
	}
	return g, nil
}

type EmergencyContact struct {
	Name         *string `json:"name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Relationship *string `json:"relationship,omitempty"`
}

type Patient struct {
	ID                uuid.UUID        `json:"id"`
	UserID            uuid.UUID        `json:"user_id"`
	DateOfBirth       *string          `json:"date_of_birth,omitempty"`
	Gender            Gender           `json:"gender,omitempty"`
	BloodType         *string          `json:"blood_type,omitempty"`
	Allergies         []string         `json:"allergies"`
	ChronicConditions []string         `json:"chronic_conditions"`
	EmergencyContact  EmergencyContact `json:"emergency_contact"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`

	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Age in whole years at today. ok is false when the birth date is unknown.
func (p *Patient) Age(today time.Time) (age int, ok bool) {
	if p.DateOfBirth == nil {
		return 0, false
	}
	dob, err := caldate.ParseDate(*p.DateOfBirth)
	if err != nil {
		return 0, false
	}
	age = today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age, true
}

type PatientFilter struct {
	Query     string
	Gender    Gender
	BloodType string
	MinAge    *int
	MaxAge    *int
}
