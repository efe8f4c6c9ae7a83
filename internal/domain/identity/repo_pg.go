package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/db"
)

func notFoundOr(err error, entity string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// -- Profile Repository --

type profileRepoPG struct {
	pool db.Querier
}

func NewProfileRepo(pool db.Querier) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const profileCols = `id, first_name, last_name, email, phone, password_hash, role, enabled, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var role string
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.PasswordHash,
		&role, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Role = Role(role)
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profiles (id, first_name, last_name, email, phone, password_hash, role, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.PasswordHash, string(p.Role), p.Enabled,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "profiles_email_uq") {
		return apperr.Conflict("email %s is already registered", p.Email)
	}
	if err != nil {
		return fmt.Errorf("profile create: %w", err)
	}
	return nil
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "profile", id)
	}
	return p, nil
}

func (r *profileRepoPG) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	p, err := scanProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, notFoundOr(err, "profile", email)
	}
	return p, nil
}

func (r *profileRepoPG) Update(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE profiles SET first_name=$2, last_name=$3, email=$4, phone=$5, role=$6, enabled=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, string(p.Role), p.Enabled,
	).Scan(&p.UpdatedAt)
	if db.IsUniqueViolation(err, "profiles_email_uq") {
		return apperr.Conflict("email %s is already registered", p.Email)
	}
	if err != nil {
		return notFoundOr(err, "profile", p.ID)
	}
	return nil
}

func (r *profileRepoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE profiles SET password_hash=$2, updated_at=NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("profile update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("profile", id)
	}
	return nil
}

func (r *profileRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("profile delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("profile", id)
	}
	return nil
}

func (r *profileRepoPG) Search(ctx context.Context, f ProfileFilter, limit, offset int) ([]*Profile, int, error) {
	query := `SELECT ` + profileCols + ` FROM profiles WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM profiles WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		clause := fmt.Sprintf(` AND role = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, string(f.Role))
		idx++
	}
	if f.Enabled != nil {
		clause := fmt.Sprintf(` AND enabled = $%d`, idx)
		query += clause
		countQuery += clause
		args = append(args, *f.Enabled)
		idx++
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clause := fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)`, idx, idx, idx)
		query += clause
		countQuery += clause
		args = append(args, "%"+q+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("profile count: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("profile search: %w", err)
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *profileRepoPG) EmailTaken(ctx context.Context, email string, exclude *uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM profiles WHERE lower(email) = lower($1) AND ($2::uuid IS NULL OR id <> $2))`,
		email, exclude,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("profile email check: %w", err)
	}
	return taken, nil
}

func (r *profileRepoPG) CountActiveAdmins(ctx context.Context) (int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id FROM profiles WHERE role = 'ADMIN' AND enabled FOR UPDATE`)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func (r *profileRepoPG) Stats(ctx context.Context) (*ProfileStats, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT role, COUNT(*), COUNT(*) FILTER (WHERE enabled) FROM profiles GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("profile stats: %w", err)
	}
	defer rows.Close()

	stats := &ProfileStats{ByRole: make(map[Role]int)}
	for rows.Next() {
		var role string
		var total, active int
		if err := rows.Scan(&role, &total, &active); err != nil {
			return nil, err
		}
		stats.ByRole[Role(role)] = total
		stats.Total += total
		stats.Active += active
	}
	return stats, rows.Err()
}

// -- Specialty Repository --

type specialtyRepoPG struct {
	pool db.Querier
}

func NewSpecialtyRepo(pool db.Querier) SpecialtyRepository {
	return &specialtyRepoPG{pool: pool}
}

func (r *specialtyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const specialtyCols = `id, name, description, created_at, updated_at`

func scanSpecialty(row pgx.Row) (*Specialty, error) {
	var s Specialty
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *specialtyRepoPG) Create(ctx context.Context, s *Specialty) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specialties (id, name, description) VALUES ($1,$2,$3)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err, "specialties_name_uq") {
		return apperr.Conflict("specialty %q already exists", s.Name)
	}
	if err != nil {
		return fmt.Errorf("specialty create: %w", err)
	}
	return nil
}

func (r *specialtyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	s, err := scanSpecialty(r.conn(ctx).QueryRow(ctx, `SELECT `+specialtyCols+` FROM specialties WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "specialty", id)
	}
	return s, nil
}

func (r *specialtyRepoPG) Update(ctx context.Context, s *Specialty) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE specialties SET name=$2, description=$3, updated_at=NOW() WHERE id = $1
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if db.IsUniqueViolation(err, "specialties_name_uq") {
		return apperr.Conflict("specialty %q already exists", s.Name)
	}
	if err != nil {
		return notFoundOr(err, "specialty", s.ID)
	}
	return nil
}

func (r *specialtyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM specialties WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Conflict("specialty %s still has doctors", id)
	}
	if err != nil {
		return fmt.Errorf("specialty delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("specialty", id)
	}
	return nil
}

func (r *specialtyRepoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Specialty, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if q := strings.TrimSpace(query); q != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR description ILIKE $%d)`, idx, idx)
		args = append(args, "%"+q+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM specialties`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("specialty count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+specialtyCols+` FROM specialties`+where+fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, idx, idx+1),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("specialty search: %w", err)
	}
	defer rows.Close()

	var items []*Specialty
	for rows.Next() {
		s, err := scanSpecialty(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool db.Querier
}

func NewDoctorRepo(pool db.Querier) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorSelect = `SELECT d.id, d.user_id, d.specialty_id, d.license_number, d.consultation_fee,
	d.availability_status, d.created_at, d.updated_at,
	p.first_name, p.last_name, p.email, s.name
	FROM doctors d
	JOIN profiles p ON p.id = d.user_id
	JOIN specialties s ON s.id = d.specialty_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var status string
	err := row.Scan(&d.ID, &d.UserID, &d.SpecialtyID, &d.LicenseNumber, &d.ConsultationFee,
		&status, &d.CreatedAt, &d.UpdatedAt,
		&d.FirstName, &d.LastName, &d.Email, &d.SpecialtyName)
	if err != nil {
		return nil, err
	}
	d.AvailabilityStatus = AvailabilityStatus(status)
	return &d, nil
}

func doctorWriteErr(err error, d *Doctor) error {
	switch {
	case db.IsUniqueViolation(err, "doctors_license_uq"):
		return apperr.Conflict("license number %s is already registered", d.LicenseNumber)
	case db.IsUniqueViolation(err, "doctors_user_uq"):
		return apperr.Conflict("profile %s already has a doctor record", d.UserID)
	case db.IsForeignKeyViolation(err):
		return apperr.Invalid("specialty_id", "specialty does not exist")
	}
	return err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, specialty_id, license_number, consultation_fee, availability_status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.SpecialtyID, d.LicenseNumber, d.ConsultationFee, string(d.AvailabilityStatus),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("doctor create: %w", doctorWriteErr(err, d))
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "doctor", id)
	}
	return d, nil
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
	if err != nil {
		return nil, notFoundOr(err, "doctor", userID)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctors SET specialty_id=$2, license_number=$3, consultation_fee=$4, availability_status=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.SpecialtyID, d.LicenseNumber, d.ConsultationFee, string(d.AvailabilityStatus),
	).Scan(&d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("doctor update: %w", notFoundOr(doctorWriteErr(err, d), "doctor", d.ID))
	}
	return nil
}

func (r *doctorRepoPG) UpdateAvailability(ctx context.Context, id uuid.UUID, status AvailabilityStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctors SET availability_status=$2, updated_at=NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("doctor availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor", id)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("doctor delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor", id)
	}
	return nil
}

func (r *doctorRepoPG) Search(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if q := strings.TrimSpace(f.Query); q != "" {
		where += fmt.Sprintf(` AND (p.first_name ILIKE $%d OR p.last_name ILIKE $%d OR d.license_number ILIKE $%d OR s.name ILIKE $%d)`, idx, idx, idx, idx)
		args = append(args, "%"+q+"%")
		idx++
	}
	if f.SpecialtyID != nil {
		where += fmt.Sprintf(` AND d.specialty_id = $%d`, idx)
		args = append(args, *f.SpecialtyID)
		idx++
	}
	if f.Availability != "" {
		where += fmt.Sprintf(` AND d.availability_status = $%d`, idx)
		args = append(args, string(f.Availability))
		idx++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM doctors d
		JOIN profiles p ON p.id = d.user_id
		JOIN specialties s ON s.id = d.specialty_id` + where
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("doctor count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		doctorSelect+where+fmt.Sprintf(` ORDER BY p.last_name, p.first_name LIMIT $%d OFFSET $%d`, idx, idx+1),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("doctor search: %w", err)
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	return listIDs(ctx, r.conn(ctx), `SELECT id FROM doctors ORDER BY created_at`)
}

func listIDs(ctx context.Context, q db.Querier, sql string) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// -- Patient Repository --

type patientRepoPG struct {
	pool db.Querier
}

func NewPatientRepo(pool db.Querier) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientSelect = `SELECT pa.id, pa.user_id, to_char(pa.date_of_birth, 'YYYY-MM-DD'), pa.gender, pa.blood_type,
	pa.allergies, pa.chronic_conditions,
	pa.emergency_contact_name, pa.emergency_contact_phone, pa.emergency_contact_relationship,
	pa.created_at, pa.updated_at,
	p.first_name, p.last_name, p.email
	FROM patients pa
	JOIN profiles p ON p.id = pa.user_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var gender *string
	err := row.Scan(&p.ID, &p.UserID, &p.DateOfBirth, &gender, &p.BloodType,
		&p.Allergies, &p.ChronicConditions,
		&p.EmergencyContact.Name, &p.EmergencyContact.Phone, &p.EmergencyContact.Relationship,
		&p.CreatedAt, &p.UpdatedAt,
		&p.FirstName, &p.LastName, &p.Email)
	if err != nil {
		return nil, err
	}
	if gender != nil {
		p.Gender = Gender(*gender)
	}
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	if p.ChronicConditions == nil {
		p.ChronicConditions = []string{}
	}
	return &p, nil
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, user_id, date_of_birth, gender, blood_type, allergies, chronic_conditions,
			emergency_contact_name, emergency_contact_phone, emergency_contact_relationship)
		VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.DateOfBirth, nullIfEmpty(string(p.Gender)), p.BloodType,
		stringsOrEmpty(p.Allergies), stringsOrEmpty(p.ChronicConditions),
		p.EmergencyContact.Name, p.EmergencyContact.Phone, p.EmergencyContact.Relationship,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patients_user_uq") {
		return apperr.Conflict("profile %s already has a patient record", p.UserID)
	}
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE pa.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "patient", id)
	}
	return p, nil
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE pa.user_id = $1`, userID))
	if err != nil {
		return nil, notFoundOr(err, "patient", userID)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET date_of_birth=$2::date, gender=$3, blood_type=$4, allergies=$5, chronic_conditions=$6,
			emergency_contact_name=$7, emergency_contact_phone=$8, emergency_contact_relationship=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.DateOfBirth, nullIfEmpty(string(p.Gender)), p.BloodType,
		stringsOrEmpty(p.Allergies), stringsOrEmpty(p.ChronicConditions),
		p.EmergencyContact.Name, p.EmergencyContact.Phone, p.EmergencyContact.Relationship,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patient update: %w", notFoundOr(err, "patient", p.ID))
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func (r *patientRepoPG) Search(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if q := strings.TrimSpace(f.Query); q != "" {
		where += fmt.Sprintf(` AND (p.first_name ILIKE $%d OR p.last_name ILIKE $%d OR p.email ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+q+"%")
		idx++
	}
	if f.Gender != "" {
		where += fmt.Sprintf(` AND pa.gender = $%d`, idx)
		args = append(args, string(f.Gender))
		idx++
	}
	if f.BloodType != "" {
		where += fmt.Sprintf(` AND pa.blood_type = $%d`, idx)
		args = append(args, f.BloodType)
		idx++
	}
	if f.MinAge != nil {
		where += fmt.Sprintf(` AND pa.date_of_birth <= CURRENT_DATE - make_interval(years => $%d)`, idx)
		args = append(args, *f.MinAge)
		idx++
	}
	if f.MaxAge != nil {
		where += fmt.Sprintf(` AND pa.date_of_birth > CURRENT_DATE - make_interval(years => $%d)`, idx)
		args = append(args, *f.MaxAge+1)
		idx++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM patients pa JOIN profiles p ON p.id = pa.user_id` + where
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		patientSelect+where+fmt.Sprintf(` ORDER BY p.last_name, p.first_name LIMIT $%d OFFSET $%d`, idx, idx+1),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("patient search: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	return listIDs(ctx, r.conn(ctx), `SELECT id FROM patients ORDER BY created_at`)
}
