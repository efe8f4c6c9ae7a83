package clinical

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
)

// -- Mock Consultation Repository --

type mockConsultationRepo struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*Consultation
	createErr error
}

func newMockConsultationRepo() *mockConsultationRepo {
	return &mockConsultationRepo{items: make(map[uuid.UUID]*Consultation)}
}

func (m *mockConsultationRepo) Create(_ context.Context, c *Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockConsultationRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("consultation", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockConsultationRepo) Update(_ context.Context, c *Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[c.ID]; !ok {
		return apperr.NotFound("consultation", c.ID)
	}
	c.UpdatedAt = time.Now()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockConsultationRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("consultation", id)
	}
	delete(m.items, id)
	return nil
}

func (m *mockConsultationRepo) Search(_ context.Context, f ConsultationFilter, limit, offset int) ([]*Consultation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Consultation
	for _, c := range m.items {
		day := c.ConsultationDate.Format("2006-01-02")
		switch {
		case f.PatientID != nil && c.PatientID != *f.PatientID,
			f.DoctorID != nil && c.DoctorID != *f.DoctorID,
			f.AppointmentID != nil && (c.AppointmentID == nil || *c.AppointmentID != *f.AppointmentID),
			f.DateFrom != "" && day < f.DateFrom,
			f.DateTo != "" && day > f.DateTo:
			continue
		}
		if f.Diagnosis != "" && (c.Diagnosis == nil ||
			!strings.Contains(strings.ToLower(*c.Diagnosis), strings.ToLower(f.Diagnosis))) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsultationDate.After(out[j].ConsultationDate) })
	return page(out, limit, offset), len(out), nil
}

// -- Mock Prescription Repository --

type mockPrescriptionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Prescription
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{items: make(map[uuid.UUID]*Prescription)}
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("prescription", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPrescriptionRepo) Update(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; !ok {
		return apperr.NotFound("prescription", p.ID)
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("prescription", id)
	}
	delete(m.items, id)
	return nil
}

func (m *mockPrescriptionRepo) Search(_ context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Prescription
	for _, p := range m.items {
		switch {
		case f.PatientID != nil && p.PatientID != *f.PatientID,
			f.DoctorID != nil && p.DoctorID != *f.DoctorID,
			f.ConsultationID != nil && (p.ConsultationID == nil || *p.ConsultationID != *f.ConsultationID),
			f.Status != "" && p.Status != f.Status,
			f.DateFrom != "" && p.PrescriptionDate < f.DateFrom,
			f.DateTo != "" && p.PrescriptionDate > f.DateTo:
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrescriptionDate > out[j].PrescriptionDate })
	return page(out, limit, offset), len(out), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// -- Directory and appointments --

type mockDirectory struct {
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]bool
}

func (d *mockDirectory) EnsurePatient(_ context.Context, id uuid.UUID) error {
	if !d.patients[id] {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func (d *mockDirectory) EnsureDoctor(_ context.Context, id uuid.UUID) error {
	if !d.doctors[id] {
		return apperr.NotFound("doctor", id)
	}
	return nil
}

type mockAppointments struct {
	mu        sync.Mutex
	known     map[uuid.UUID]bool
	completed map[uuid.UUID]bool
}

func (m *mockAppointments) EnsureAppointment(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known[id] {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (m *mockAppointments) MarkCompleted(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known[id] {
		return apperr.NotFound("appointment", id)
	}
	m.completed[id] = true
	return nil
}

func (m *mockAppointments) isCompleted(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[id]
}

// rollbackTx undoes MarkCompleted calls when fn fails, the way a database
// rollback would.
type rollbackTx struct {
	appts *mockAppointments
}

func (tx rollbackTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.appts.mu.Lock()
	snapshot := make(map[uuid.UUID]bool, len(tx.appts.completed))
	for k, v := range tx.appts.completed {
		snapshot[k] = v
	}
	tx.appts.mu.Unlock()

	if err := fn(ctx); err != nil {
		tx.appts.mu.Lock()
		tx.appts.completed = snapshot
		tx.appts.mu.Unlock()
		return err
	}
	return nil
}

// -- Test wiring --

type testDeps struct {
	consultations *mockConsultationRepo
	prescriptions *mockPrescriptionRepo
	appts         *mockAppointments
	patient       uuid.UUID
	doctor        uuid.UUID
	appointment   uuid.UUID
}

var testNow = time.Date(2024, 6, 10, 11, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		consultations: newMockConsultationRepo(),
		prescriptions: newMockPrescriptionRepo(),
		patient:       uuid.New(),
		doctor:        uuid.New(),
		appointment:   uuid.New(),
	}
	deps.appts = &mockAppointments{
		known:     map[uuid.UUID]bool{deps.appointment: true},
		completed: make(map[uuid.UUID]bool),
	}
	dir := &mockDirectory{
		patients: map[uuid.UUID]bool{deps.patient: true},
		doctors:  map[uuid.UUID]bool{deps.doctor: true},
	}
	svc := NewService(deps.consultations, deps.prescriptions, dir, deps.appts, rollbackTx{appts: deps.appts})
	svc.now = func() time.Time { return testNow }
	return svc, deps
}

func strPtr(s string) *string { return &s }

func mustConsult(t *testing.T, svc *Service, deps *testDeps, diagnosis string) *Consultation {
	t.Helper()
	c := &Consultation{PatientID: deps.patient, DoctorID: deps.doctor, Diagnosis: strPtr(diagnosis)}
	if err := svc.CreateConsultation(context.Background(), c); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	return c
}

func mustPrescribe(t *testing.T, svc *Service, deps *testDeps, date string) *Prescription {
	t.Helper()
	p := &Prescription{
		PatientID:        deps.patient,
		DoctorID:         deps.doctor,
		PrescriptionDate: date,
		Medications:      []Medication{{Name: "Paracetamol", Dosage: "500mg", Frequency: "3x/day"}},
	}
	if err := svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}
	return p
}
