package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/cache"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/events"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/caldate"
)

const doctorAvailable = "AVAILABLE"

func staleVersion(id uuid.UUID) error {
	return apperr.Conflict("appointment %s was modified by another request, reload and retry", id)
}

type Service struct {
	repo   Repository
	dir    Directory
	tx     Transactor
	locker cache.SlotLocker
	events events.Publisher
	window Window
	now    func() time.Time
}

// NewService wires the scheduling core. A nil locker disables the Redis
// slot lock and a nil publisher drops events.
func NewService(repo Repository, dir Directory, tx Transactor, locker cache.SlotLocker, pub events.Publisher, window Window) *Service {
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	if pub == nil {
		pub = events.Noop{}
	}
	if window.Step <= 0 {
		window = DefaultWindow()
	}
	return &Service{
		repo:   repo,
		dir:    dir,
		tx:     tx,
		locker: locker,
		events: pub,
		window: window,
		now:    time.Now,
	}
}

func (s *Service) today() string {
	return caldate.FormatDate(caldate.Today(s.now()))
}

func normalizeDate(field, v string) (string, error) {
	d, err := caldate.ParseDate(v)
	if err != nil {
		return "", apperr.Invalid(field, err.Error())
	}
	return caldate.FormatDate(d), nil
}

func normalizeClock(field, v string) (string, error) {
	c, err := caldate.ParseClock(v)
	if err != nil {
		return "", apperr.Invalid(field, err.Error())
	}
	return caldate.FormatClock(c), nil
}

// CheckConflict reports whether the doctor already has an active
// appointment at exactly date and clock. excludeID, when set, is ignored so
// an appointment never conflicts with itself.
func (s *Service) CheckConflict(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (bool, error) {
	active, err := s.repo.ActiveForDoctorOnDate(ctx, doctorID, date)
	if err != nil {
		return false, err
	}
	for _, a := range active {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Time == clock {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) ensureFree(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) error {
	taken, err := s.CheckConflict(ctx, doctorID, date, clock, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return &ConflictError{DoctorID: doctorID, Date: date, Time: clock}
	}
	return nil
}

// withSlotLock serialises work on one doctor slot across replicas. Losing
// the lock race means another request is booking the same slot.
func (s *Service) withSlotLock(ctx context.Context, doctorID uuid.UUID, date, clock string, fn func(ctx context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, cache.SlotKey(doctorID, date, clock), fn)
	if errors.Is(err, cache.ErrLockNotAcquired) {
		return &ConflictError{DoctorID: doctorID, Date: date, Time: clock}
	}
	return err
}

// CreateAppointment books a new PENDING appointment with payment PENDING.
func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id", "is required")
	}
	if a.DoctorID == uuid.Nil {
		return apperr.Invalid("doctor_id", "is required")
	}
	var err error
	if a.Date, err = normalizeDate("appointment_date", a.Date); err != nil {
		return err
	}
	if a.Time, err = normalizeClock("appointment_time", a.Time); err != nil {
		return err
	}
	if a.ConsultationType == "" {
		a.ConsultationType = TypeConsultation
	}
	if !a.ConsultationType.Valid() {
		return apperr.Invalid("consultation_type", "must be one of CONSULTATION, FOLLOW_UP, EMERGENCY, TELECONSULTATION")
	}
	if a.PaymentMethod != "" && !a.PaymentMethod.Valid() {
		return apperr.Invalid("payment_method", "must be one of MOBILE_MONEY, CASH, CARD")
	}

	if err := s.dir.EnsurePatient(ctx, a.PatientID); err != nil {
		return err
	}
	if _, err := s.dir.DoctorAvailability(ctx, a.DoctorID); err != nil {
		return err
	}

	a.Status = StatusPending
	a.PaymentStatus = PaymentPending
	a.Version = 1

	err = s.withSlotLock(ctx, a.DoctorID, a.Date, a.Time, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.ensureFree(ctx, a.DoctorID, a.Date, a.Time, nil); err != nil {
				return err
			}
			return s.repo.Create(ctx, a)
		})
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date).
		Str("time", a.Time).
		Msg("appointment created")
	events.Emit(ctx, s.events, events.AppointmentCreated, a.DoctorID.String(), a)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func validateUpdate(u *AppointmentUpdate) error {
	if u.Date != nil {
		d, err := normalizeDate("appointment_date", *u.Date)
		if err != nil {
			return err
		}
		u.Date = &d
	}
	if u.Time != nil {
		c, err := normalizeClock("appointment_time", *u.Time)
		if err != nil {
			return err
		}
		u.Time = &c
	}
	switch {
	case u.ConsultationType != nil && !u.ConsultationType.Valid():
		return apperr.Invalid("consultation_type", "must be one of CONSULTATION, FOLLOW_UP, EMERGENCY, TELECONSULTATION")
	case u.Status != nil && !u.Status.Valid():
		return apperr.Invalid("status", "must be one of PENDING, CONFIRMED, CANCELLED, COMPLETED")
	case u.PaymentMethod != nil && !u.PaymentMethod.Valid():
		return apperr.Invalid("payment_method", "must be one of MOBILE_MONEY, CASH, CARD")
	case u.PaymentStatus != nil && !u.PaymentStatus.Valid():
		return apperr.Invalid("payment_status", "must be one of PENDING, PAID, FAILED")
	}
	return nil
}

// UpdateAppointment applies a partial update. Moving the appointment re-runs
// the conflict check at the new date and time, excluding the appointment
// itself.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, u AppointmentUpdate) (*Appointment, error) {
	if err := validateUpdate(&u); err != nil {
		return nil, err
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// The lock key is the target slot.
	date, clock := current.Date, current.Time
	if u.Date != nil {
		date = *u.Date
	}
	if u.Time != nil {
		clock = *u.Time
	}

	var updated *Appointment
	apply := func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			a, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if u.Version != nil && *u.Version != a.Version {
				return staleVersion(id)
			}
			wasActive := a.Status.IsActive()

			if u.Date != nil {
				a.Date = *u.Date
			}
			if u.Time != nil {
				a.Time = *u.Time
			}
			if u.ConsultationType != nil {
				a.ConsultationType = *u.ConsultationType
			}
			if u.Status != nil {
				a.Status = *u.Status
			}
			if u.Reason != nil {
				a.Reason = u.Reason
			}
			if u.Notes != nil {
				a.Notes = u.Notes
			}
			if u.PaymentMethod != nil {
				a.PaymentMethod = *u.PaymentMethod
			}
			if u.PaymentStatus != nil {
				a.PaymentStatus = *u.PaymentStatus
			}

			reactivated := !wasActive && a.Status.IsActive()
			if u.movesSlot() || reactivated {
				if err := s.ensureFree(ctx, a.DoctorID, a.Date, a.Time, &a.ID); err != nil {
					return err
				}
			}
			if err := s.repo.Update(ctx, a); err != nil {
				return err
			}
			updated = a
			return nil
		})
	}

	if u.movesSlot() {
		err = s.withSlotLock(ctx, current.DoctorID, date, clock, apply)
	} else {
		err = apply(ctx)
	}
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("appointment_id", id.String()).Msg("appointment updated")
	events.Emit(ctx, s.events, events.AppointmentUpdated, updated.DoctorID.String(), updated)
	return updated, nil
}

type statusChange struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
}

// UpdateStatus sets the status. Any transition is allowed; bringing a
// cancelled or completed appointment back to an active status re-checks
// that its slot is still free.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status", "must be one of PENDING, CONFIRMED, CANCELLED, COMPLETED")
	}

	var updated *Appointment
	var from Status
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		from = a.Status
		if !a.Status.IsActive() && status.IsActive() {
			if err := s.ensureFree(ctx, a.DoctorID, a.Date, a.Time, &a.ID); err != nil {
				return err
			}
		}
		a.Status = status
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", id.String()).
		Str("from", string(from)).
		Str("to", string(status)).
		Msg("appointment status changed")
	events.Emit(ctx, s.events, events.AppointmentStatusChanged, updated.DoctorID.String(),
		statusChange{AppointmentID: id, DoctorID: updated.DoctorID, From: from, To: status})
	return updated, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("appointment_id", id.String()).Msg("appointment deleted")
	events.Emit(ctx, s.events, events.AppointmentDeleted, a.DoctorID.String(), a)
	return nil
}

// GetAvailableSlots lists the doctor's slots on date over the working
// window. A doctor who is not AVAILABLE gets an empty list.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	date, err := normalizeDate("date", date)
	if err != nil {
		return nil, err
	}
	availability, err := s.dir.DoctorAvailability(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if availability != doctorAvailable {
		return []Slot{}, nil
	}

	active, err := s.repo.ActiveForDoctorOnDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(active))
	for _, a := range active {
		taken[a.Time] = true
	}
	return buildSlots(s.window, taken), nil
}

// buildSlots emits [start, start+step) intervals that fit entirely inside
// the window.
func buildSlots(w Window, taken map[string]bool) []Slot {
	slots := []Slot{}
	for start := w.Start; start+w.Step <= w.End; start += w.Step {
		clock := caldate.FormatClock(start)
		slots = append(slots, Slot{
			Start:     clock,
			End:       caldate.FormatClock(start + w.Step),
			Available: !taken[clock],
		})
	}
	return slots
}

func (s *Service) SearchAppointments(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	var err error
	if f.DateFrom != "" {
		if f.DateFrom, err = normalizeDate("date_from", f.DateFrom); err != nil {
			return nil, 0, err
		}
	}
	if f.DateTo != "" {
		if f.DateTo, err = normalizeDate("date_to", f.DateTo); err != nil {
			return nil, 0, err
		}
	}
	if f.DateFrom != "" && f.DateTo != "" && f.DateFrom > f.DateTo {
		return nil, 0, apperr.Invalid("date_from", "must not be after date_to")
	}
	return s.repo.Search(ctx, f, limit, offset)
}

func (s *Service) TodaysConfirmed(ctx context.Context) ([]*Appointment, error) {
	return s.repo.ConfirmedOn(ctx, s.today())
}

func (s *Service) Overdue(ctx context.Context) ([]*Appointment, error) {
	return s.repo.Overdue(ctx, s.today())
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byType, err := s.repo.CountByConsultationType(ctx)
	if err != nil {
		return nil, err
	}
	byPayment, err := s.repo.CountByPaymentStatus(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &Stats{Total: total, ByStatus: byStatus, ByConsultationType: byType, ByPaymentStatus: byPayment}, nil
}

// EnsureAppointment returns a NotFoundError when id does not exist.
func (s *Service) EnsureAppointment(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.GetByID(ctx, id)
	return err
}

// MarkCompleted closes an appointment once a consultation is recorded for
// it, which frees its slot.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := s.UpdateStatus(ctx, id, StatusCompleted)
	return err
}
