package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update writes every mutable field when the stored version equals
	// a.Version, then bumps a.Version.
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ActiveForDoctorOnDate lists appointments of the doctor on date whose
	// status is neither CANCELLED nor COMPLETED, ordered by time.
	ActiveForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	ConfirmedOn(ctx context.Context, date string) ([]*Appointment, error)
	// Overdue lists PENDING or CONFIRMED appointments dated before today.
	Overdue(ctx context.Context, today string) ([]*Appointment, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	CountByConsultationType(ctx context.Context) (map[ConsultationType]int, error)
	CountByPaymentStatus(ctx context.Context) (map[PaymentStatus]int, error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Directory answers the patient and doctor questions a booking needs.
// identity.Service satisfies it.
type Directory interface {
	EnsurePatient(ctx context.Context, id uuid.UUID) error
	// DoctorAvailability returns the doctor's availability status or a
	// NotFoundError.
	DoctorAvailability(ctx context.Context, id uuid.UUID) (string, error)
}
