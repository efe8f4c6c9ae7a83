package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
)

// -- Mock Profile Repository --

type mockProfileRepo struct {
	profiles map[uuid.UUID]*Profile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[uuid.UUID]*Profile)}
}

func (m *mockProfileRepo) Create(_ context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperr.NotFound("profile", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) GetByEmail(_ context.Context, email string) (*Profile, error) {
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("profile", email)
}

func (m *mockProfileRepo) Update(_ context.Context, p *Profile) error {
	if _, ok := m.profiles[p.ID]; !ok {
		return apperr.NotFound("profile", p.ID)
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	p, ok := m.profiles[id]
	if !ok {
		return apperr.NotFound("profile", id)
	}
	p.PasswordHash = hash
	return nil
}

func (m *mockProfileRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.profiles[id]; !ok {
		return apperr.NotFound("profile", id)
	}
	delete(m.profiles, id)
	return nil
}

func (m *mockProfileRepo) Search(_ context.Context, f ProfileFilter, limit, offset int) ([]*Profile, int, error) {
	var result []*Profile
	for _, p := range m.profiles {
		if f.Role != "" && p.Role != f.Role {
			continue
		}
		if f.Enabled != nil && p.Enabled != *f.Enabled {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockProfileRepo) EmailTaken(_ context.Context, email string, exclude *uuid.UUID) (bool, error) {
	for _, p := range m.profiles {
		if exclude != nil && p.ID == *exclude {
			continue
		}
		if strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProfileRepo) CountActiveAdmins(_ context.Context) (int, error) {
	n := 0
	for _, p := range m.profiles {
		if p.IsActiveAdmin() {
			n++
		}
	}
	return n, nil
}

func (m *mockProfileRepo) Stats(_ context.Context) (*ProfileStats, error) {
	stats := &ProfileStats{ByRole: make(map[Role]int)}
	for _, p := range m.profiles {
		stats.Total++
		stats.ByRole[p.Role]++
		if p.Enabled {
			stats.Active++
		}
	}
	return stats, nil
}

// -- Mock Specialty Repository --

type mockSpecialtyRepo struct {
	items map[uuid.UUID]*Specialty
}

func newMockSpecialtyRepo() *mockSpecialtyRepo {
	return &mockSpecialtyRepo{items: make(map[uuid.UUID]*Specialty)}
}

func (m *mockSpecialtyRepo) Create(_ context.Context, s *Specialty) error {
	for _, existing := range m.items {
		if strings.EqualFold(existing.Name, s.Name) {
			return apperr.Conflict("specialty %q already exists", s.Name)
		}
	}
	s.ID = uuid.New()
	m.items[s.ID] = s
	return nil
}

func (m *mockSpecialtyRepo) GetByID(_ context.Context, id uuid.UUID) (*Specialty, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("specialty", id)
	}
	return s, nil
}

func (m *mockSpecialtyRepo) Update(_ context.Context, s *Specialty) error {
	if _, ok := m.items[s.ID]; !ok {
		return apperr.NotFound("specialty", s.ID)
	}
	m.items[s.ID] = s
	return nil
}

func (m *mockSpecialtyRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockSpecialtyRepo) Search(_ context.Context, query string, limit, offset int) ([]*Specialty, int, error) {
	var result []*Specialty
	for _, s := range m.items {
		result = append(result, s)
	}
	return result, len(result), nil
}

// -- Mock Doctor Repository --

type mockDoctorRepo struct {
	items map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{items: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	for _, existing := range m.items {
		if existing.LicenseNumber == d.LicenseNumber {
			return apperr.Conflict("license number %s is already registered", d.LicenseNumber)
		}
	}
	d.ID = uuid.New()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("doctor", id)
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.items {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, apperr.NotFound("doctor", userID)
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) UpdateAvailability(_ context.Context, id uuid.UUID, status AvailabilityStatus) error {
	d, ok := m.items[id]
	if !ok {
		return apperr.NotFound("doctor", id)
	}
	d.AvailabilityStatus = status
	return nil
}

func (m *mockDoctorRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockDoctorRepo) Search(_ context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	var result []*Doctor
	for _, d := range m.items {
		if f.Availability != "" && d.AvailabilityStatus != f.Availability {
			continue
		}
		result = append(result, d)
	}
	return result, len(result), nil
}

func (m *mockDoctorRepo) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range m.items {
		ids = append(ids, id)
	}
	return ids, nil
}

// -- Mock Patient Repository --

type mockPatientRepo struct {
	items map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{items: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	for _, p := range m.items {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperr.NotFound("patient", userID)
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("patient", id)
	}
	delete(m.items, id)
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.items {
		if f.Gender != "" && p.Gender != f.Gender {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockPatientRepo) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range m.items {
		ids = append(ids, id)
	}
	return ids, nil
}

// passthroughTx runs fn without a real transaction.
type passthroughTx struct{ calls int }

func (t *passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type testDeps struct {
	profiles    *mockProfileRepo
	specialties *mockSpecialtyRepo
	doctors     *mockDoctorRepo
	patients    *mockPatientRepo
	tx          *passthroughTx
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		profiles:    newMockProfileRepo(),
		specialties: newMockSpecialtyRepo(),
		doctors:     newMockDoctorRepo(),
		patients:    newMockPatientRepo(),
		tx:          &passthroughTx{},
	}
	issuer, err := auth.NewTokenIssuer(testSecret, "medipatient", time.Hour)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	svc := NewService(deps.profiles, deps.specialties, deps.doctors, deps.patients, deps.tx, issuer)
	svc.now = func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }
	return svc, deps
}

func mustCreateProfile(t *testing.T, svc *Service, email string, role Role) *Profile {
	t.Helper()
	p := &Profile{FirstName: "Awa", LastName: "Diallo", Email: email, Role: role}
	if err := svc.CreateProfile(context.Background(), p, "s3cret-pass"); err != nil {
		t.Fatalf("create profile %s: %v", email, err)
	}
	return p
}
