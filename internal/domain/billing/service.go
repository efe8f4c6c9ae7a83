package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/events"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/caldate"
)

// numberAttempts bounds retries when a generated invoice number collides.
const numberAttempts = 3

type Service struct {
	invoices     InvoiceRepository
	dir          Directory
	appointments Appointments
	tx           Transactor
	events       events.Publisher
	now          func() time.Time
	newSuffix    func() string
}

func NewService(invoices InvoiceRepository, dir Directory, appointments Appointments, tx Transactor, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{
		invoices:     invoices,
		dir:          dir,
		appointments: appointments,
		tx:           tx,
		events:       pub,
		now:          time.Now,
		newSuffix:    randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

func (s *Service) today() string {
	return caldate.FormatDate(caldate.Today(s.now()))
}

// NextNumber formats INV-YYYYMMDD-XXXXXX for the current day.
func (s *Service) NextNumber() string {
	return fmt.Sprintf("INV-%s-%s", caldate.Today(s.now()).Format("20060102"), s.newSuffix())
}

func (s *Service) annotate(invs ...*Invoice) {
	today := s.today()
	for _, inv := range invs {
		inv.Overdue = inv.IsOverdue(today)
	}
}

// priceItems fills every TotalPrice and returns the sum. A caller-supplied
// total that disagrees with quantity*unit_price is rejected.
func priceItems(items []Item) (int64, error) {
	if len(items) == 0 {
		return 0, apperr.Invalid("items", "at least one item is required")
	}
	var sum int64
	for i := range items {
		it := &items[i]
		it.Description = strings.TrimSpace(it.Description)
		switch {
		case it.Description == "":
			return 0, apperr.Invalid("items", fmt.Sprintf("item %d: description is required", i+1))
		case it.Quantity <= 0:
			return 0, apperr.Invalid("items", fmt.Sprintf("item %d: quantity must be positive", i+1))
		case it.UnitPrice < 0:
			return 0, apperr.Invalid("items", fmt.Sprintf("item %d: unit_price must not be negative", i+1))
		}
		total := it.Quantity * it.UnitPrice
		if it.TotalPrice != 0 && it.TotalPrice != total {
			return 0, apperr.Invalid("items", fmt.Sprintf("item %d: total_price %d != quantity*unit_price %d", i+1, it.TotalPrice, total))
		}
		it.TotalPrice = total
		sum += total
	}
	return sum, nil
}

func normalizeDue(due *string) (*string, error) {
	if due == nil || *due == "" {
		return nil, nil
	}
	d, err := caldate.ParseDate(*due)
	if err != nil {
		return nil, apperr.Invalid("due_date", err.Error())
	}
	out := caldate.FormatDate(d)
	return &out, nil
}

type statusChange struct {
	InvoiceID uuid.UUID     `json:"invoice_id"`
	From      InvoiceStatus `json:"from"`
	To        InvoiceStatus `json:"to"`
	Amount    int64         `json:"amount"`
}

func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id", "is required")
	}
	sum, err := priceItems(inv.Items)
	if err != nil {
		return err
	}
	if inv.Amount != sum {
		return apperr.Invalid("amount", fmt.Sprintf("amount %d does not match item total %d", inv.Amount, sum))
	}
	if inv.DueDate, err = normalizeDue(inv.DueDate); err != nil {
		return err
	}
	if inv.Status == "" {
		inv.Status = StatusDraft
	}
	if !inv.Status.Valid() {
		return apperr.Invalid("status", "must be one of DRAFT, SENT, PAID, OVERDUE, CANCELLED")
	}
	if err := s.dir.EnsurePatient(ctx, inv.PatientID); err != nil {
		return err
	}
	if inv.AppointmentID != nil {
		if err := s.appointments.EnsureAppointment(ctx, *inv.AppointmentID); err != nil {
			return err
		}
	}

	generated := strings.TrimSpace(inv.InvoiceNumber) == ""
	if !generated {
		inv.InvoiceNumber = strings.TrimSpace(inv.InvoiceNumber)
	}
	for attempt := 1; ; attempt++ {
		if generated {
			inv.InvoiceNumber = s.NextNumber()
		}
		err = s.invoices.Create(ctx, inv)
		if err == nil || !generated || !apperr.IsConflict(err) || attempt == numberAttempts {
			break
		}
		inv.ID = uuid.Nil
	}
	if err != nil {
		return err
	}

	s.annotate(inv)
	zerolog.Ctx(ctx).Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.InvoiceNumber).
		Int64("amount", inv.Amount).
		Msg("invoice created")
	events.Emit(ctx, s.events, events.InvoiceCreated, inv.PatientID.String(), inv)
	return nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.annotate(inv)
	return inv, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := s.invoices.GetByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, err
	}
	s.annotate(inv)
	return inv, nil
}

// UpdateInvoice edits a DRAFT, SENT or OVERDUE invoice. New items replace the
// old ones and recompute the amount.
func (s *Service) UpdateInvoice(ctx context.Context, id uuid.UUID, u InvoiceUpdate) (*Invoice, error) {
	if u.Items != nil {
		if _, err := priceItems(u.Items); err != nil {
			return nil, err
		}
	}
	due, err := normalizeDue(u.DueDate)
	if err != nil {
		return nil, err
	}
	if u.AppointmentID != nil {
		if err := s.appointments.EnsureAppointment(ctx, *u.AppointmentID); err != nil {
			return nil, err
		}
	}

	var inv *Invoice
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status.Final() {
			return apperr.Conflict("cannot modify invoice %s: status is %s", inv.InvoiceNumber, inv.Status)
		}
		if u.Items != nil {
			inv.Items = u.Items
			inv.Amount = inv.ItemsTotal()
		}
		if u.DueDate != nil {
			inv.DueDate = due
		}
		if u.AppointmentID != nil {
			inv.AppointmentID = u.AppointmentID
		}
		return s.invoices.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.annotate(inv)
	zerolog.Ctx(ctx).Info().Str("invoice_id", id.String()).Int64("amount", inv.Amount).Msg("invoice updated")
	return inv, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) (*Invoice, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status", "must be one of DRAFT, SENT, PAID, OVERDUE, CANCELLED")
	}
	today := s.today()

	var inv *Invoice
	var from InvoiceStatus
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = inv.Status
		if status == StatusPaid && from == StatusCancelled {
			return apperr.Conflict("cannot mark cancelled invoice %s as paid", inv.InvoiceNumber)
		}
		if status == StatusOverdue && (inv.DueDate == nil || *inv.DueDate >= today) {
			return apperr.Invalid("status", "invoice cannot be OVERDUE before its due date has passed")
		}
		inv.Status = status
		return s.invoices.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.annotate(inv)
	zerolog.Ctx(ctx).Info().
		Str("invoice_id", id.String()).
		Str("from", string(from)).
		Str("to", string(status)).
		Msg("invoice status changed")
	events.Emit(ctx, s.events, events.InvoiceStatusChanged, inv.PatientID.String(), statusChange{
		InvoiceID: inv.ID, From: from, To: status, Amount: inv.Amount,
	})
	return inv, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.invoices.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusPaid {
			return apperr.Conflict("cannot delete paid invoice %s", inv.InvoiceNumber)
		}
		return s.invoices.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("invoice_id", id.String()).Msg("invoice deleted")
	return nil
}

func (s *Service) SearchInvoices(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid("status", "unknown invoice status")
	}
	for _, d := range []struct {
		name string
		v    *string
	}{{"date_from", &f.DateFrom}, {"date_to", &f.DateTo}} {
		if *d.v == "" {
			continue
		}
		t, err := caldate.ParseDate(*d.v)
		if err != nil {
			return nil, 0, apperr.Invalid(d.name, err.Error())
		}
		*d.v = caldate.FormatDate(t)
	}
	if f.DateFrom != "" && f.DateTo != "" && f.DateFrom > f.DateTo {
		return nil, 0, apperr.Invalid("date_from", "must not be after date_to")
	}
	if f.AmountMin != nil && f.AmountMax != nil && *f.AmountMin > *f.AmountMax {
		return nil, 0, apperr.Invalid("amount_min", "must not exceed amount_max")
	}
	items, total, err := s.invoices.Search(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.annotate(items...)
	return items, total, nil
}

func (s *Service) OverdueInvoices(ctx context.Context) ([]*Invoice, error) {
	items, err := s.invoices.OverdueAsOf(ctx, s.today())
	if err != nil {
		return nil, err
	}
	s.annotate(items...)
	return items, nil
}

// Totals reports paid and outstanding sums, for one patient when patientID
// is set.
func (s *Service) Totals(ctx context.Context, patientID *uuid.UUID) (*Totals, error) {
	return s.invoices.Totals(ctx, patientID)
}
