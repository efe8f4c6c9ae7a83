package scheduling

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

// -- Mock Appointment Repository --

// mockRepo mirrors the Postgres repository, including the partial unique
// index on active slots and the version guard on Update.
type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Appointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) slotHeld(a *Appointment) bool {
	for _, o := range m.items {
		if o.ID != a.ID && o.Status.IsActive() && o.DoctorID == a.DoctorID && o.Date == a.Date && o.Time == a.Time {
			return true
		}
	}
	return false
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status.IsActive() && m.slotHeld(a) {
		return slotTaken(a)
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[a.ID]
	if !ok {
		return apperr.NotFound("appointment", a.ID)
	}
	if stored.Version != a.Version {
		return staleVersion(a.ID)
	}
	if a.Status.IsActive() && m.slotHeld(a) {
		return slotTaken(a)
	}
	a.Version++
	a.UpdatedAt = time.Now()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("appointment", id)
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) filter(keep func(*Appointment) bool) []*Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (m *mockRepo) ActiveForDoctorOnDate(_ context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Date == date && a.Status.IsActive()
	}), nil
}

func (m *mockRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	all := m.filter(func(a *Appointment) bool {
		switch {
		case f.PatientID != nil && a.PatientID != *f.PatientID:
			return false
		case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
			return false
		case f.Status != "" && a.Status != f.Status:
			return false
		case f.ConsultationType != "" && a.ConsultationType != f.ConsultationType:
			return false
		case f.DateFrom != "" && a.Date < f.DateFrom:
			return false
		case f.DateTo != "" && a.Date > f.DateTo:
			return false
		}
		return true
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) ConfirmedOn(_ context.Context, date string) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool {
		return a.Date == date && a.Status == StatusConfirmed
	}), nil
}

func (m *mockRepo) Overdue(_ context.Context, today string) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool {
		return a.Date < today && (a.Status == StatusPending || a.Status == StatusConfirmed)
	}), nil
}

func (m *mockRepo) CountByStatus(_ context.Context) (map[Status]int, error) {
	out := make(map[Status]int)
	for _, a := range m.filter(func(*Appointment) bool { return true }) {
		out[a.Status]++
	}
	return out, nil
}

func (m *mockRepo) CountByConsultationType(_ context.Context) (map[ConsultationType]int, error) {
	out := make(map[ConsultationType]int)
	for _, a := range m.filter(func(*Appointment) bool { return true }) {
		out[a.ConsultationType]++
	}
	return out, nil
}

func (m *mockRepo) CountByPaymentStatus(_ context.Context) (map[PaymentStatus]int, error) {
	out := make(map[PaymentStatus]int)
	for _, a := range m.filter(func(*Appointment) bool { return true }) {
		out[a.PaymentStatus]++
	}
	return out, nil
}

// -- Mock Directory --

type mockDirectory struct {
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{patients: make(map[uuid.UUID]bool), doctors: make(map[uuid.UUID]string)}
}

func (d *mockDirectory) EnsurePatient(_ context.Context, id uuid.UUID) error {
	if !d.patients[id] {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func (d *mockDirectory) DoctorAvailability(_ context.Context, id uuid.UUID) (string, error) {
	status, ok := d.doctors[id]
	if !ok {
		return "", apperr.NotFound("doctor", id)
	}
	return status, nil
}

// -- Transactor, locker, publisher --

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *recordingLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return err
	}
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
	repo    *mockRepo
	dir     *mockDirectory
	locker  *recordingLocker
	pub     *recordingPublisher
	patient uuid.UUID
	doctor  uuid.UUID
}

// newTestService returns a service with one patient and one AVAILABLE
// doctor registered, and today fixed to 2024-06-10.
func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		repo:    newMockRepo(),
		dir:     newMockDirectory(),
		locker:  &recordingLocker{},
		pub:     &recordingPublisher{},
		patient: uuid.New(),
		doctor:  uuid.New(),
	}
	deps.dir.patients[deps.patient] = true
	deps.dir.doctors[deps.doctor] = doctorAvailable

	svc := NewService(deps.repo, deps.dir, passthroughTx{}, deps.locker, deps.pub, DefaultWindow())
	svc.now = func() time.Time { return time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC) }
	return svc, deps
}

func mustBook(t *testing.T, svc *Service, deps *testDeps, date, clock string) *Appointment {
	t.Helper()
	a := &Appointment{PatientID: deps.patient, DoctorID: deps.doctor, Date: date, Time: clock}
	if err := svc.CreateAppointment(context.Background(), a); err != nil {
		t.Fatalf("book %s %s: %v", date, clock, err)
	}
	return a
}
