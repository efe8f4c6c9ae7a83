package clinical

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/db"
)

// -- Consultation Repository --

type consultationRepoPG struct {
	pool db.Querier
}

func NewConsultationRepo(pool db.Querier) ConsultationRepository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const consultationCols = `id, appointment_id, patient_id, doctor_id, consultation_date,
	symptoms, diagnosis, treatment_plan, vitals, created_at, updated_at`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.AppointmentID, &c.PatientID, &c.DoctorID, &c.ConsultationDate,
		&c.Symptoms, &c.Diagnosis, &c.TreatmentPlan, &c.Vitals, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.Vitals == nil {
		c.Vitals = Vitals{}
	}
	return &c, nil
}

func (r *consultationRepoPG) Create(ctx context.Context, c *Consultation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultations (id, appointment_id, patient_id, doctor_id, consultation_date,
			symptoms, diagnosis, treatment_plan, vitals)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		c.ID, c.AppointmentID, c.PatientID, c.DoctorID, c.ConsultationDate,
		c.Symptoms, c.Diagnosis, c.TreatmentPlan, c.Vitals,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("consultation create: %w", err)
	}
	return nil
}

func (r *consultationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := scanConsultation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+` FROM consultations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("consultation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("consultation get: %w", err)
	}
	return c, nil
}

func (r *consultationRepoPG) Update(ctx context.Context, c *Consultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE consultations SET consultation_date=$2, symptoms=$3, diagnosis=$4,
			treatment_plan=$5, vitals=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.ConsultationDate, c.Symptoms, c.Diagnosis, c.TreatmentPlan, c.Vitals,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("consultation", c.ID)
	}
	if err != nil {
		return fmt.Errorf("consultation update: %w", err)
	}
	return nil
}

func (r *consultationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM consultations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("consultation delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("consultation", id)
	}
	return nil
}

func (r *consultationRepoPG) Search(ctx context.Context, f ConsultationFilter, limit, offset int) ([]*Consultation, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.AppointmentID != nil {
		where += fmt.Sprintf(` AND appointment_id = $%d`, idx)
		args = append(args, *f.AppointmentID)
		idx++
	}
	if f.DateFrom != "" {
		where += fmt.Sprintf(` AND consultation_date >= $%d::date`, idx)
		args = append(args, f.DateFrom)
		idx++
	}
	if f.DateTo != "" {
		where += fmt.Sprintf(` AND consultation_date < $%d::date + 1`, idx)
		args = append(args, f.DateTo)
		idx++
	}
	if f.Diagnosis != "" {
		where += fmt.Sprintf(` AND diagnosis ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, f.Diagnosis)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consultations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("consultation count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+consultationCols+` FROM consultations`+where+
		fmt.Sprintf(` ORDER BY consultation_date DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("consultation search: %w", err)
	}
	defer rows.Close()

	var items []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// -- Prescription Repository --

type prescriptionRepoPG struct {
	pool db.Querier
}

func NewPrescriptionRepo(pool db.Querier) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const prescriptionCols = `id, consultation_id, patient_id, doctor_id,
	to_char(prescription_date, 'YYYY-MM-DD'), medications, instructions, status, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var status string
	err := row.Scan(&p.ID, &p.ConsultationID, &p.PatientID, &p.DoctorID, &p.PrescriptionDate,
		&p.Medications, &p.Instructions, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = PrescriptionStatus(status)
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, consultation_id, patient_id, doctor_id, prescription_date,
			medications, instructions, status)
		VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.ConsultationID, p.PatientID, p.DoctorID, p.PrescriptionDate,
		p.Medications, p.Instructions, string(p.Status),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("prescription create: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription", id)
	}
	if err != nil {
		return nil, fmt.Errorf("prescription get: %w", err)
	}
	return p, nil
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE prescriptions SET prescription_date=$2::date, medications=$3, instructions=$4,
			status=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.PrescriptionDate, p.Medications, p.Instructions, string(p.Status),
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("prescription", p.ID)
	}
	if err != nil {
		return fmt.Errorf("prescription update: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("prescription delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription", id)
	}
	return nil
}

func (r *prescriptionRepoPG) Search(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.ConsultationID != nil {
		where += fmt.Sprintf(` AND consultation_id = $%d`, idx)
		args = append(args, *f.ConsultationID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.DateFrom != "" {
		where += fmt.Sprintf(` AND prescription_date >= $%d::date`, idx)
		args = append(args, f.DateFrom)
		idx++
	}
	if f.DateTo != "" {
		where += fmt.Sprintf(` AND prescription_date <= $%d::date`, idx)
		args = append(args, f.DateTo)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("prescription count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+prescriptionCols+` FROM prescriptions`+where+
		fmt.Sprintf(` ORDER BY prescription_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("prescription search: %w", err)
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
