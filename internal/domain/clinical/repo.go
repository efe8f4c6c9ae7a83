package clinical

import (
	"context"

	"github.com/google/uuid"
)

type ConsultationRepository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f ConsultationFilter, limit, offset int) ([]*Consultation, int, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Directory checks that referenced patients and doctors exist.
type Directory interface {
	EnsurePatient(ctx context.Context, id uuid.UUID) error
	EnsureDoctor(ctx context.Context, id uuid.UUID) error
}

// Appointments is the slice of the scheduling service a consultation needs.
type Appointments interface {
	EnsureAppointment(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}
