package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/domain/identity"
	"github.com/kitalmartial-lang/medipatient-backend/internal/domain/inventory"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
)

// seedPassword is shared by every generated account.
const seedPassword = "medipatient-demo"

var seedSpecialties = []string{
	"General Practice", "Cardiology", "Pediatrics", "Gynecology",
	"Dermatology", "Ophthalmology", "Orthopedics", "Neurology",
}

var (
	bloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	genders    = []string{"MALE", "FEMALE", "OTHER"}
	allergies  = []string{"Penicillin", "Peanuts", "Latex", "Sulfa", "Aspirin"}
	conditions = []string{"Hypertension", "Diabetes", "Asthma", "Sickle cell disease"}
	suppliers  = []string{"Laborex", "Copharmed", "UbiPharm", "Medline Afrique"}
	medicines  = []string{"Paracetamol 500mg", "Amoxicillin 1g", "Artemether-Lumefantrine", "Ibuprofen 400mg", "Metformin 850mg", "ORS sachet"}
	equipment  = []string{"Blood pressure monitor", "Thermometer", "Glucometer", "Pulse oximeter", "Stethoscope"}
	supplies   = []string{"Nitrile gloves", "Gauze pads", "Syringe 5ml", "Alcohol swabs", "Face masks"}
)

type seedOptions struct {
	Doctors  int
	Patients int
	Items    int
	Seed     uint64
}

type seedResult struct {
	Specialties int
	Doctors     int
	Patients    int
	Items       int
}

type seeder struct {
	svcs  *services
	faker *gofakeit.Faker
	now   time.Time
}

func seed(ctx context.Context, svcs *services, opts seedOptions) (*seedResult, error) {
	s := &seeder{svcs: svcs, faker: gofakeit.New(opts.Seed), now: time.Now()}
	log := zerolog.Ctx(ctx)
	res := &seedResult{}

	specialtyIDs, err := s.specialties(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed specialties: %w", err)
	}
	res.Specialties = len(specialtyIDs)

	for i := 0; i < opts.Doctors; i++ {
		if err := s.doctor(ctx, specialtyIDs); err != nil {
			return res, fmt.Errorf("seed doctor %d: %w", i+1, err)
		}
		res.Doctors++
	}
	log.Info().Int("count", res.Doctors).Msg("doctors seeded")

	for i := 0; i < opts.Patients; i++ {
		if err := s.patient(ctx); err != nil {
			return res, fmt.Errorf("seed patient %d: %w", i+1, err)
		}
		res.Patients++
	}
	log.Info().Int("count", res.Patients).Msg("patients seeded")

	for i := 0; i < opts.Items; i++ {
		if err := s.item(ctx); err != nil {
			return res, fmt.Errorf("seed item %d: %w", i+1, err)
		}
		res.Items++
	}
	log.Info().Int("count", res.Items).Msg("inventory seeded")
	return res, nil
}

// specialties creates the fixed specialty list, reusing rows that exist.
func (s *seeder) specialties(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(seedSpecialties))
	for _, name := range seedSpecialties {
		sp := &identity.Specialty{Name: name}
		err := s.svcs.identity.CreateSpecialty(ctx, sp)
		if apperr.IsConflict(err) {
			found, _, serr := s.svcs.identity.SearchSpecialties(ctx, name, 1, 0)
			if serr != nil {
				return nil, serr
			}
			if len(found) == 0 {
				return nil, err
			}
			sp = found[0]
		} else if err != nil {
			return nil, err
		}
		ids = append(ids, sp.ID)
	}
	return ids, nil
}

func (s *seeder) profile(ctx context.Context, role identity.Role) (*identity.Profile, error) {
	f := s.faker
	phone := f.Phone()
	p := &identity.Profile{
		FirstName: f.FirstName(),
		LastName:  f.LastName(),
		// The random tag keeps reruns from colliding on the unique email.
		Email: strings.ToLower(fmt.Sprintf("%s.%s@clinic.test", f.Username(), f.LetterN(5))),
		Phone: &phone,
		Role:  role,
	}
	if err := s.svcs.identity.CreateProfile(ctx, p, seedPassword); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *seeder) doctor(ctx context.Context, specialtyIDs []uuid.UUID) error {
	p, err := s.profile(ctx, identity.RoleDoctor)
	if err != nil {
		return err
	}
	f := s.faker
	d := &identity.Doctor{
		UserID:          p.ID,
		SpecialtyID:     specialtyIDs[f.Number(0, len(specialtyIDs)-1)],
		LicenseNumber:   fmt.Sprintf("CNOM-%s", strings.ToUpper(f.LetterN(8))),
		ConsultationFee: int64(f.Number(10, 50) * 1000),
	}
	return s.svcs.identity.CreateDoctor(ctx, d)
}

func (s *seeder) patient(ctx context.Context) error {
	p, err := s.profile(ctx, identity.RolePatient)
	if err != nil {
		return err
	}
	f := s.faker
	dob := f.DateRange(s.now.AddDate(-90, 0, 0), s.now.AddDate(-1, 0, 0)).Format("2006-01-02")
	blood := f.RandomString(bloodTypes)
	contactName := f.Name()
	contactPhone := f.Phone()
	relationship := f.RandomString([]string{"Spouse", "Parent", "Sibling", "Child"})

	pat := &identity.Patient{
		UserID:            p.ID,
		DateOfBirth:       &dob,
		Gender:            identity.Gender(f.RandomString(genders)),
		BloodType:         &blood,
		Allergies:         pick(f, allergies, 2),
		ChronicConditions: pick(f, conditions, 1),
		EmergencyContact: identity.EmergencyContact{
			Name:         &contactName,
			Phone:        &contactPhone,
			Relationship: &relationship,
		},
	}
	return s.svcs.identity.CreatePatient(ctx, pat)
}

func (s *seeder) item(ctx context.Context) error {
	f := s.faker
	category := []inventory.Category{
		inventory.CategoryMedication, inventory.CategoryEquipment, inventory.CategorySupplies,
	}[f.Number(0, 2)]

	var name string
	var expiry *string
	switch category {
	case inventory.CategoryMedication:
		name = f.RandomString(medicines)
		d := s.now.AddDate(0, 0, f.Number(-10, 365)).Format("2006-01-02")
		expiry = &d
	case inventory.CategoryEquipment:
		name = f.RandomString(equipment)
	default:
		name = f.RandomString(supplies)
	}
	supplier := f.RandomString(suppliers)

	item := &inventory.Item{
		Name:         fmt.Sprintf("%s #%d", name, f.Number(100, 999)),
		Category:     category,
		CurrentStock: f.Number(0, 200),
		MinStock:     f.Number(5, 25),
		UnitPrice:    int64(f.Number(1, 200) * 100),
		ExpiryDate:   expiry,
		Supplier:     &supplier,
	}
	return s.svcs.inventory.CreateItem(ctx, item)
}

// pick returns up to n distinct entries of from.
func pick(f *gofakeit.Faker, from []string, n int) []string {
	out := []string{}
	for _, v := range from {
		if len(out) < n && f.Bool() {
			out = append(out, v)
		}
	}
	return out
}
