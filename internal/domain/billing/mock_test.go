package billing

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/events"
)

// mockInvoiceRepo enforces the unique invoice number like the real table.
type mockInvoiceRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Invoice
	// created overrides the creation day used by date filters.
	created map[uuid.UUID]string
}

func newMockInvoiceRepo() *mockInvoiceRepo {
	return &mockInvoiceRepo{items: make(map[uuid.UUID]*Invoice), created: make(map[uuid.UUID]string)}
}

func clone(inv *Invoice) *Invoice {
	cp := *inv
	cp.Items = append([]Item(nil), inv.Items...)
	return &cp
}

func (m *mockInvoiceRepo) Create(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.items {
		if o.InvoiceNumber == inv.InvoiceNumber {
			return duplicateNumber(inv.InvoiceNumber)
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	m.items[inv.ID] = clone(inv)
	return nil
}

func (m *mockInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("invoice", id)
	}
	return clone(inv), nil
}

func (m *mockInvoiceRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return m.GetByID(ctx, id)
}

func (m *mockInvoiceRepo) GetByNumber(_ context.Context, number string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.items {
		if inv.InvoiceNumber == number {
			return clone(inv), nil
		}
	}
	return nil, apperr.NotFound("invoice", number)
}

func (m *mockInvoiceRepo) Update(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[inv.ID]; !ok {
		return apperr.NotFound("invoice", inv.ID)
	}
	inv.UpdatedAt = time.Now()
	m.items[inv.ID] = clone(inv)
	return nil
}

func (m *mockInvoiceRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("invoice", id)
	}
	delete(m.items, id)
	return nil
}

func (m *mockInvoiceRepo) day(inv *Invoice) string {
	if d, ok := m.created[inv.ID]; ok {
		return d
	}
	return inv.CreatedAt.Format("2006-01-02")
}

func (m *mockInvoiceRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Invoice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Invoice
	for _, inv := range m.items {
		day := m.day(inv)
		switch {
		case f.PatientID != nil && inv.PatientID != *f.PatientID,
			f.Status != "" && inv.Status != f.Status,
			f.DateFrom != "" && day < f.DateFrom,
			f.DateTo != "" && day > f.DateTo,
			f.AmountMin != nil && inv.Amount < *f.AmountMin,
			f.AmountMax != nil && inv.Amount > *f.AmountMax:
			continue
		}
		out = append(out, clone(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], total, nil
}

func (m *mockInvoiceRepo) OverdueAsOf(_ context.Context, today string) ([]*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Invoice
	for _, inv := range m.items {
		if inv.IsOverdue(today) {
			out = append(out, clone(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].DueDate < *out[j].DueDate })
	return out, nil
}

func (m *mockInvoiceRepo) Totals(_ context.Context, patientID *uuid.UUID) (*Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t Totals
	for _, inv := range m.items {
		if patientID != nil && inv.PatientID != *patientID {
			continue
		}
		t.Count++
		switch inv.Status {
		case StatusPaid:
			t.Paid += inv.Amount
		case StatusDraft, StatusSent, StatusOverdue:
			t.Outstanding += inv.Amount
		}
	}
	return &t, nil
}

type mockDirectory struct {
	patients map[uuid.UUID]bool
}

func (d *mockDirectory) EnsurePatient(_ context.Context, id uuid.UUID) error {
	if !d.patients[id] {
		return apperr.NotFound("patient", id)
	}
	return nil
}

type mockAppointments struct {
	known map[uuid.UUID]bool
}

func (m *mockAppointments) EnsureAppointment(_ context.Context, id uuid.UUID) error {
	if !m.known[id] {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.got))
	for i, e := range p.got {
		out[i] = e.EventType
	}
	return out
}

type testDeps struct {
	repo        *mockInvoiceRepo
	pub         *recordingPublisher
	patient     uuid.UUID
	appointment uuid.UUID
}

// newTestService fixes today to 2024-06-10 and registers one patient and
// one appointment.
func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		repo:        newMockInvoiceRepo(),
		pub:         &recordingPublisher{},
		patient:     uuid.New(),
		appointment: uuid.New(),
	}
	svc := NewService(deps.repo,
		&mockDirectory{patients: map[uuid.UUID]bool{deps.patient: true}},
		&mockAppointments{known: map[uuid.UUID]bool{deps.appointment: true}},
		passthroughTx{}, deps.pub)
	svc.now = func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }
	return svc, deps
}

func strPtr(s string) *string { return &s }

func consultItems() []Item {
	return []Item{
		{Description: "Consultation", Quantity: 1, UnitPrice: 15000},
		{Description: "Blood test", Quantity: 2, UnitPrice: 5000},
	}
}

func mustInvoice(t *testing.T, svc *Service, deps *testDeps, due *string) *Invoice {
	t.Helper()
	inv := &Invoice{PatientID: deps.patient, Amount: 25000, DueDate: due, Items: consultItems()}
	if err := svc.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return inv
}
