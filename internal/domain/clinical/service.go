package clinical

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/caldate"
)

type Service struct {
	consultations ConsultationRepository
	prescriptions PrescriptionRepository
	dir           Directory
	appointments  Appointments
	tx            Transactor
	now           func() time.Time
}

func NewService(consultations ConsultationRepository, prescriptions PrescriptionRepository, dir Directory, appointments Appointments, tx Transactor) *Service {
	return &Service{
		consultations: consultations,
		prescriptions: prescriptions,
		dir:           dir,
		appointments:  appointments,
		tx:            tx,
		now:           time.Now,
	}
}

func (s *Service) ensureParties(ctx context.Context, patientID, doctorID uuid.UUID) error {
	if patientID == uuid.Nil {
		return apperr.Invalid("patient_id", "is required")
	}
	if doctorID == uuid.Nil {
		return apperr.Invalid("doctor_id", "is required")
	}
	if err := s.dir.EnsurePatient(ctx, patientID); err != nil {
		return err
	}
	return s.dir.EnsureDoctor(ctx, doctorID)
}

func normalizeRange(from, to *string) error {
	fields := []struct {
		name string
		v    *string
	}{{"date_from", from}, {"date_to", to}}
	for _, f := range fields {
		if *f.v == "" {
			continue
		}
		d, err := caldate.ParseDate(*f.v)
		if err != nil {
			return apperr.Invalid(f.name, err.Error())
		}
		*f.v = caldate.FormatDate(d)
	}
	if *from != "" && *to != "" && *from > *to {
		return apperr.Invalid("date_from", "must not be after date_to")
	}
	return nil
}

// -- Consultations --

// CreateConsultation records a consultation. A linked appointment must exist
// and is marked COMPLETED in the same transaction, which frees its slot.
func (s *Service) CreateConsultation(ctx context.Context, c *Consultation) error {
	if err := s.ensureParties(ctx, c.PatientID, c.DoctorID); err != nil {
		return err
	}
	if c.ConsultationDate.IsZero() {
		c.ConsultationDate = s.now().UTC()
	}
	if c.Vitals == nil {
		c.Vitals = Vitals{}
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if c.AppointmentID != nil {
			if err := s.appointments.EnsureAppointment(ctx, *c.AppointmentID); err != nil {
				return err
			}
			if err := s.appointments.MarkCompleted(ctx, *c.AppointmentID); err != nil {
				return err
			}
		}
		return s.consultations.Create(ctx, c)
	})
	if err != nil {
		return err
	}

	ev := zerolog.Ctx(ctx).Info().Str("consultation_id", c.ID.String()).Str("patient_id", c.PatientID.String())
	if c.AppointmentID != nil {
		ev = ev.Str("appointment_id", c.AppointmentID.String())
	}
	ev.Msg("consultation created")
	return nil
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.consultations.GetByID(ctx, id)
}

func (s *Service) UpdateConsultation(ctx context.Context, id uuid.UUID, u ConsultationUpdate) (*Consultation, error) {
	c, err := s.consultations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.ConsultationDate != nil {
		c.ConsultationDate = *u.ConsultationDate
	}
	if u.Symptoms != nil {
		c.Symptoms = u.Symptoms
	}
	if u.Diagnosis != nil {
		c.Diagnosis = u.Diagnosis
	}
	if u.TreatmentPlan != nil {
		c.TreatmentPlan = u.TreatmentPlan
	}
	if u.Vitals != nil {
		c.Vitals = u.Vitals
	}
	if err := s.consultations.Update(ctx, c); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("consultation_id", id.String()).Msg("consultation updated")
	return c, nil
}

func (s *Service) DeleteConsultation(ctx context.Context, id uuid.UUID) error {
	if err := s.consultations.Delete(ctx, id); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("consultation_id", id.String()).Msg("consultation deleted")
	return nil
}

func (s *Service) SearchConsultations(ctx context.Context, f ConsultationFilter, limit, offset int) ([]*Consultation, int, error) {
	if err := normalizeRange(&f.DateFrom, &f.DateTo); err != nil {
		return nil, 0, err
	}
	return s.consultations.Search(ctx, f, limit, offset)
}

// -- Prescriptions --

func validateMedications(meds []Medication) error {
	if len(meds) == 0 {
		return apperr.Invalid("medications", "at least one medication is required")
	}
	for i := range meds {
		meds[i].Name = strings.TrimSpace(meds[i].Name)
		if meds[i].Name == "" {
			return apperr.Invalid("medications", "every medication needs a name")
		}
	}
	return nil
}

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if err := validateMedications(p.Medications); err != nil {
		return err
	}
	if p.PrescriptionDate == "" {
		p.PrescriptionDate = caldate.FormatDate(caldate.Today(s.now()))
	} else {
		d, err := caldate.ParseDate(p.PrescriptionDate)
		if err != nil {
			return apperr.Invalid("prescription_date", err.Error())
		}
		p.PrescriptionDate = caldate.FormatDate(d)
	}
	if p.Status == "" {
		p.Status = PrescriptionActive
	}
	if !p.Status.Valid() {
		return apperr.Invalid("status", "must be one of ACTIVE, COMPLETED, CANCELLED")
	}
	if err := s.ensureParties(ctx, p.PatientID, p.DoctorID); err != nil {
		return err
	}
	if p.ConsultationID != nil {
		if _, err := s.consultations.GetByID(ctx, *p.ConsultationID); err != nil {
			return err
		}
	}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("prescription_id", p.ID.String()).
		Int("medications", len(p.Medications)).
		Msg("prescription created")
	return nil
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) UpdatePrescription(ctx context.Context, id uuid.UUID, u PrescriptionUpdate) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Medications != nil {
		if err := validateMedications(u.Medications); err != nil {
			return nil, err
		}
		p.Medications = u.Medications
	}
	if u.PrescriptionDate != nil {
		d, err := caldate.ParseDate(*u.PrescriptionDate)
		if err != nil {
			return nil, apperr.Invalid("prescription_date", err.Error())
		}
		p.PrescriptionDate = caldate.FormatDate(d)
	}
	if u.Instructions != nil {
		p.Instructions = u.Instructions
	}
	if err := s.prescriptions.Update(ctx, p); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("prescription_id", id.String()).Msg("prescription updated")
	return p, nil
}

func (s *Service) UpdatePrescriptionStatus(ctx context.Context, id uuid.UUID, status PrescriptionStatus) (*Prescription, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status", "must be one of ACTIVE, COMPLETED, CANCELLED")
	}
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = status
	if err := s.prescriptions.Update(ctx, p); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("prescription_id", id.String()).Str("status", string(status)).Msg("prescription status changed")
	return p, nil
}

func (s *Service) DeletePrescription(ctx context.Context, id uuid.UUID) error {
	if err := s.prescriptions.Delete(ctx, id); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("prescription_id", id.String()).Msg("prescription deleted")
	return nil
}

func (s *Service) SearchPrescriptions(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	if err := normalizeRange(&f.DateFrom, &f.DateTo); err != nil {
		return nil, 0, err
	}
	return s.prescriptions.Search(ctx, f, limit, offset)
}
