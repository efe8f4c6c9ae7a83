package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/db"
)

const invoiceNumberUnique = "invoices_number_uq"

type invoiceRepoPG struct {
	pool db.Querier
}

func NewInvoiceRepo(pool db.Querier) InvoiceRepository {
	return &invoiceRepoPG{pool: pool}
}

func (r *invoiceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const invoiceCols = `id, patient_id, appointment_id, invoice_number, amount, status,
	to_char(due_date, 'YYYY-MM-DD'), items, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.PatientID, &inv.AppointmentID, &inv.InvoiceNumber, &inv.Amount,
		&status, &inv.DueDate, &inv.Items, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = InvoiceStatus(status)
	if inv.Items == nil {
		inv.Items = []Item{}
	}
	return &inv, nil
}

func collectInvoices(rows pgx.Rows) ([]*Invoice, error) {
	defer rows.Close()
	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func duplicateNumber(number string) error {
	return apperr.Conflict("invoice number %s already exists", number)
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoices (id, patient_id, appointment_id, invoice_number, amount, status, due_date, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8)
		RETURNING created_at, updated_at`,
		inv.ID, inv.PatientID, inv.AppointmentID, inv.InvoiceNumber, inv.Amount,
		string(inv.Status), inv.DueDate, inv.Items,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if db.IsUniqueViolation(err, invoiceNumberUnique) {
		return duplicateNumber(inv.InvoiceNumber)
	}
	if err != nil {
		return fmt.Errorf("invoice create: %w", err)
	}
	return nil
}

func (r *invoiceRepoPG) get(ctx context.Context, query string, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("invoice", id)
	}
	if err != nil {
		return nil, fmt.Errorf("invoice get: %w", err)
	}
	return inv, nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id)
}

func (r *invoiceRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *invoiceRepoPG) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE invoice_number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("invoice", number)
	}
	if err != nil {
		return nil, fmt.Errorf("invoice get by number: %w", err)
	}
	return inv, nil
}

func (r *invoiceRepoPG) Update(ctx context.Context, inv *Invoice) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE invoices SET
			appointment_id=$2, amount=$3, status=$4, due_date=$5::date, items=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		inv.ID, inv.AppointmentID, inv.Amount, string(inv.Status), inv.DueDate, inv.Items,
	).Scan(&inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("invoice", inv.ID)
	}
	if err != nil {
		return fmt.Errorf("invoice update: %w", err)
	}
	return nil
}

func (r *invoiceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("invoice delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invoice", id)
	}
	return nil
}

func (r *invoiceRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.DateFrom != "" {
		where += fmt.Sprintf(` AND created_at::date >= $%d::date`, idx)
		args = append(args, f.DateFrom)
		idx++
	}
	if f.DateTo != "" {
		where += fmt.Sprintf(` AND created_at::date <= $%d::date`, idx)
		args = append(args, f.DateTo)
		idx++
	}
	if f.AmountMin != nil {
		where += fmt.Sprintf(` AND amount >= $%d`, idx)
		args = append(args, *f.AmountMin)
		idx++
	}
	if f.AmountMax != nil {
		where += fmt.Sprintf(` AND amount <= $%d`, idx)
		args = append(args, *f.AmountMax)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("invoice count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+invoiceCols+` FROM invoices`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("invoice search: %w", err)
	}
	out, err := collectInvoices(rows)
	return out, total, err
}

func (r *invoiceRepoPG) OverdueAsOf(ctx context.Context, today string) ([]*Invoice, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+invoiceCols+` FROM invoices
		WHERE due_date < $1::date AND status NOT IN ('PAID', 'CANCELLED')
		ORDER BY due_date`, today)
	if err != nil {
		return nil, fmt.Errorf("invoice overdue: %w", err)
	}
	return collectInvoices(rows)
}

// Totals sums PAID amounts and everything still owed (DRAFT, SENT, OVERDUE).
func (r *invoiceRepoPG) Totals(ctx context.Context, patientID *uuid.UUID) (*Totals, error) {
	var t Totals
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'PAID'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status IN ('DRAFT', 'SENT', 'OVERDUE')), 0),
			COUNT(*)
		FROM invoices
		WHERE $1::uuid IS NULL OR patient_id = $1`, patientID,
	).Scan(&t.Paid, &t.Outstanding, &t.Count)
	if err != nil {
		return nil, fmt.Errorf("invoice totals: %w", err)
	}
	return &t, nil
}
