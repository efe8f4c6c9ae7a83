package identity

import (
	"context"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f ProfileFilter, limit, offset int) ([]*Profile, int, error)
	EmailTaken(ctx context.Context, email string, exclude *uuid.UUID) (bool, error)
	// CountActiveAdmins locks the enabled ADMIN rows when called in a
	// transaction, so two concurrent demotions cannot both pass the guard.
	CountActiveAdmins(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*ProfileStats, error)
}

type SpecialtyRepository interface {
	Create(ctx context.Context, s *Specialty) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specialty, error)
	Update(ctx context.Context, s *Specialty) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, limit, offset int) ([]*Specialty, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	UpdateAvailability(ctx context.Context, id uuid.UUID, status AvailabilityStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Transactor runs fn in one database transaction. db.TxManager satisfies it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
