package billing

import (
	"context"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error)
	// OverdueAsOf lists unpaid, uncancelled invoices due before today.
	OverdueAsOf(ctx context.Context, today string) ([]*Invoice, error)
	Totals(ctx context.Context, patientID *uuid.UUID) (*Totals, error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Directory interface {
	EnsurePatient(ctx context.Context, id uuid.UUID) error
}

type Appointments interface {
	EnsureAppointment(ctx context.Context, id uuid.UUID) error
}
