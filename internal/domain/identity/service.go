package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/auth"
	"github.com/kitalmartial-lang/medipatient-backend/pkg/caldate"
)

// TokenIssuer signs access tokens. *auth.TokenIssuer satisfies it.
type TokenIssuer interface {
	Issue(s auth.Subject) (string, time.Time, error)
}

type Service struct {
	profiles    ProfileRepository
	specialties SpecialtyRepository
	doctors     DoctorRepository
	patients    PatientRepository
	tx          Transactor
	tokens      TokenIssuer
	now         func() time.Time
}

func NewService(profiles ProfileRepository, specialties SpecialtyRepository, doctors DoctorRepository,
	patients PatientRepository, tx Transactor, tokens TokenIssuer) *Service {
	return &Service{
		profiles:    profiles,
		specialties: specialties,
		doctors:     doctors,
		patients:    patients,
		tx:          tx,
		tokens:      tokens,
		now:         time.Now,
	}
}

// -- Profiles --

func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return apperr.Invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Invalid("email", "is not a valid address")
	}
	return nil
}

func validateNames(first, last string) error {
	if strings.TrimSpace(first) == "" {
		return apperr.Invalid("first_name", "is required")
	}
	if strings.TrimSpace(last) == "" {
		return apperr.Invalid("last_name", "is required")
	}
	return nil
}

func hashPassword(plain string) (string, error) {
	if len(plain) < auth.MinPasswordLength {
		return "", apperr.Invalid("password", "must be at least 8 characters")
	}
	return auth.HashPassword(plain)
}

// CreateProfile registers a new enabled account with a bcrypt-hashed password.
func (s *Service) CreateProfile(ctx context.Context, p *Profile, password string) error {
	if err := validateNames(p.FirstName, p.LastName); err != nil {
		return err
	}
	p.Email = strings.TrimSpace(p.Email)
	if err := validateEmail(p.Email); err != nil {
		return err
	}
	if p.Role == "" {
		p.Role = RolePatient
	}
	if !p.Role.Valid() {
		return apperr.Invalid("role", "must be one of PATIENT, DOCTOR, ADMIN, AGENT")
	}
	taken, err := s.profiles.EmailTaken(ctx, p.Email, nil)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("email %s is already registered", p.Email)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	p.Enabled = true

	if err := s.profiles.Create(ctx, p); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("profile_id", p.ID.String()).Str("role", string(p.Role)).Msg("profile created")
	return nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

func (s *Service) SearchProfiles(ctx context.Context, f ProfileFilter, limit, offset int) ([]*Profile, int, error) {
	return s.profiles.Search(ctx, f, limit, offset)
}

func (s *Service) ProfileStats(ctx context.Context) (*ProfileStats, error) {
	return s.profiles.Stats(ctx)
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, u ProfileUpdate) (*Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Phone != nil {
		p.Phone = u.Phone
	}
	if err := validateNames(p.FirstName, p.LastName); err != nil {
		return nil, err
	}
	if u.Email != nil && !strings.EqualFold(*u.Email, p.Email) {
		email := strings.TrimSpace(*u.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		taken, err := s.profiles.EmailTaken(ctx, email, &p.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict("email %s is already registered", email)
		}
		p.Email = email
	}
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

var errLastAdmin = apperr.Conflict("cannot remove the last active administrator")

// guardLastAdmin fails when p is the only enabled ADMIN. Call it inside a
// transaction so the admin count stays locked until the change commits.
func (s *Service) guardLastAdmin(ctx context.Context, p *Profile) error {
	if !p.IsActiveAdmin() {
		return nil
	}
	n, err := s.profiles.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return errLastAdmin
	}
	return nil
}

func (s *Service) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.profiles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.guardLastAdmin(ctx, p); err != nil {
			return err
		}
		return s.profiles.Delete(ctx, id)
	})
}

// SetEnabled enables or disables an account. Disabling the last active
// admin is refused.
func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*Profile, error) {
	var out *Profile
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.profiles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !enabled {
			if err := s.guardLastAdmin(ctx, p); err != nil {
				return err
			}
		}
		p.Enabled = enabled
		if err := s.profiles.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) ToggleEnabled(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SetEnabled(ctx, id, !p.Enabled)
}

// ChangeRole moves a profile to another role. Demoting the last active
// admin is refused.
func (s *Service) ChangeRole(ctx context.Context, id uuid.UUID, role Role) (*Profile, error) {
	if !role.Valid() {
		return nil, apperr.Invalid("role", "must be one of PATIENT, DOCTOR, ADMIN, AGENT")
	}
	var out *Profile
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.profiles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if role != RoleAdmin {
			if err := s.guardLastAdmin(ctx, p); err != nil {
				return err
			}
		}
		p.Role = role
		if err := s.profiles.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err == nil {
		zerolog.Ctx(ctx).Info().Str("profile_id", id.String()).Str("role", string(role)).Msg("profile role changed")
	}
	return out, err
}

func (s *Service) ResetPassword(ctx context.Context, id uuid.UUID, newPassword string) error {
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.profiles.UpdatePassword(ctx, id, hash)
}

func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(p.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperr.Invalid("current_password", "does not match")
		}
		return err
	}
	return s.ResetPassword(ctx, id, next)
}

// -- Auth --

type LoginResult struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Profile   *Profile  `json:"profile"`
}

var errBadCredentials = apperr.Unauthorized("invalid email or password")

// Login checks the credentials and issues a signed token. Unknown email and
// wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	p, err := s.profiles.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(p.PasswordHash, password); err != nil {
		return nil, errBadCredentials
	}
	if !p.Enabled {
		return nil, apperr.Unauthorized("account is disabled")
	}

	token, exp, err := s.tokens.Issue(auth.Subject{
		ID:        p.ID.String(),
		Role:      string(p.Role),
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("profile_id", p.ID.String()).Msg("login succeeded")
	return &LoginResult{Token: token, TokenType: "Bearer", ExpiresAt: exp, Profile: p}, nil
}

// -- Specialties --

func (s *Service) CreateSpecialty(ctx context.Context, sp *Specialty) error {
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	return s.specialties.Create(ctx, sp)
}

func (s *Service) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return s.specialties.GetByID(ctx, id)
}

func (s *Service) UpdateSpecialty(ctx context.Context, sp *Specialty) error {
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	return s.specialties.Update(ctx, sp)
}

func (s *Service) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	return s.specialties.Delete(ctx, id)
}

func (s *Service) SearchSpecialties(ctx context.Context, query string, limit, offset int) ([]*Specialty, int, error) {
	return s.specialties.Search(ctx, query, limit, offset)
}

// -- Doctors --

func (s *Service) validateDoctor(ctx context.Context, d *Doctor) error {
	if d.SpecialtyID == uuid.Nil {
		return apperr.Invalid("specialty_id", "is required")
	}
	if strings.TrimSpace(d.LicenseNumber) == "" {
		return apperr.Invalid("license_number", "is required")
	}
	if d.ConsultationFee < 0 {
		return apperr.Invalid("consultation_fee", "must not be negative")
	}
	if d.AvailabilityStatus == "" {
		d.AvailabilityStatus = Available
	}
	if !d.AvailabilityStatus.Valid() {
		return apperr.Invalid("availability_status", "must be one of AVAILABLE, BUSY, OFFLINE")
	}
	if _, err := s.specialties.GetByID(ctx, d.SpecialtyID); err != nil {
		return err
	}
	return nil
}

// CreateDoctor attaches a doctor record to an existing DOCTOR profile.
func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	p, err := s.profiles.GetByID(ctx, d.UserID)
	if err != nil {
		return err
	}
	if p.Role != RoleDoctor {
		return apperr.Invalid("user_id", "profile must have the DOCTOR role")
	}
	if err := s.validateDoctor(ctx, d); err != nil {
		return err
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return err
	}
	d.FirstName, d.LastName, d.Email = p.FirstName, p.LastName, p.Email
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) GetDoctorByUser(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	existing, err := s.doctors.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	d.UserID = existing.UserID
	if err := s.validateDoctor(ctx, d); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, status AvailabilityStatus) error {
	if !status.Valid() {
		return apperr.Invalid("availability_status", "must be one of AVAILABLE, BUSY, OFFLINE")
	}
	return s.doctors.UpdateAvailability(ctx, id, status)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) SearchDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.Search(ctx, f, limit, offset)
}

// -- Patients --

func (s *Service) validatePatient(p *Patient) error {
	if p.Gender != "" {
		g, err := ParseGender(string(p.Gender))
		if err != nil {
			return apperr.Invalid("gender", "must be one of MALE, FEMALE, OTHER")
		}
		p.Gender = g
	}
	if p.DateOfBirth != nil {
		dob, err := caldate.ParseDate(*p.DateOfBirth)
		if err != nil {
			return apperr.Invalid("date_of_birth", err.Error())
		}
		if dob.After(caldate.Today(s.now())) {
			return apperr.Invalid("date_of_birth", "must not be in the future")
		}
	}
	return nil
}

// CreatePatient attaches a patient record to an existing PATIENT profile.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	prof, err := s.profiles.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if prof.Role != RolePatient {
		return apperr.Invalid("user_id", "profile must have the PATIENT role")
	}
	if err := s.validatePatient(p); err != nil {
		return err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	p.FirstName, p.LastName, p.Email = prof.FirstName, prof.LastName, prof.Email
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	existing, err := s.patients.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.UserID = existing.UserID
	if err := s.validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) SearchPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	if f.MinAge != nil && f.MaxAge != nil && *f.MinAge > *f.MaxAge {
		return nil, 0, apperr.Invalid("min_age", "must not exceed max_age")
	}
	return s.patients.Search(ctx, f, limit, offset)
}

func (s *Service) ListDoctorIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.doctors.ListIDs(ctx)
}

func (s *Service) ListPatientIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.patients.ListIDs(ctx)
}

// -- Lookups used by the scheduling, clinical, billing and inventory services --

func (s *Service) EnsurePatient(ctx context.Context, id uuid.UUID) error {
	_, err := s.patients.GetByID(ctx, id)
	return err
}

func (s *Service) EnsureDoctor(ctx context.Context, id uuid.UUID) error {
	_, err := s.doctors.GetByID(ctx, id)
	return err
}

func (s *Service) EnsureProfile(ctx context.Context, id uuid.UUID) error {
	_, err := s.profiles.GetByID(ctx, id)
	return err
}

// DoctorAvailability returns the doctor's availability status, or a
// NotFoundError naming the doctor.
func (s *Service) DoctorAvailability(ctx context.Context, id uuid.UUID) (string, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return string(d.AvailabilityStatus), nil
}
