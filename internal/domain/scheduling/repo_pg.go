package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/apperr"
	"github.com/kitalmartial-lang/medipatient-backend/internal/platform/db"
)

// activeSlotIndex backs the one-active-booking-per-slot rule.
const activeSlotIndex = "appointments_active_slot_uq"

type appointmentRepoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const appointmentCols = `id, patient_id, doctor_id,
	to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI'),
	consultation_type, status, reason, notes, payment_method, payment_status,
	version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var ctype, status, payStatus string
	var payMethod *string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time,
		&ctype, &status, &a.Reason, &a.Notes, &payMethod, &payStatus,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ConsultationType = ConsultationType(ctype)
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(payStatus)
	if payMethod != nil {
		a.PaymentMethod = PaymentMethod(*payMethod)
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func paymentMethodArg(m PaymentMethod) *string {
	if m == "" {
		return nil
	}
	s := string(m)
	return &s
}

func slotTaken(a *Appointment) error {
	return &ConflictError{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_time,
			consultation_type, status, reason, notes, payment_method, payment_status, version)
		VALUES ($1,$2,$3,$4::date,$5::time,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time,
		string(a.ConsultationType), string(a.Status), a.Reason, a.Notes,
		paymentMethodArg(a.PaymentMethod), string(a.PaymentStatus), a.Version,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return slotTaken(a)
	}
	if err != nil {
		return fmt.Errorf("appointment create: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("appointment get: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET
			appointment_date=$2::date, appointment_time=$3::time, consultation_type=$4, status=$5,
			reason=$6, notes=$7, payment_method=$8, payment_status=$9,
			version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $10
		RETURNING version, updated_at`,
		a.ID, a.Date, a.Time, string(a.ConsultationType), string(a.Status),
		a.Reason, a.Notes, paymentMethodArg(a.PaymentMethod), string(a.PaymentStatus), a.Version,
	).Scan(&a.Version, &a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, activeSlotIndex):
		return slotTaken(a)
	case errors.Is(err, pgx.ErrNoRows):
		if _, getErr := r.GetByID(ctx, a.ID); getErr != nil {
			return getErr
		}
		return staleVersion(a.ID)
	default:
		return fmt.Errorf("appointment update: %w", err)
	}
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointment delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepoPG) ActiveForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2::date
		  AND status NOT IN ('CANCELLED', 'COMPLETED')
		ORDER BY appointment_time`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("active appointments: %w", err)
	}
	return collect(rows)
}

func (r *appointmentRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
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
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.ConsultationType != "" {
		where += fmt.Sprintf(` AND consultation_type = $%d`, idx)
		args = append(args, string(f.ConsultationType))
		idx++
	}
	if f.DateFrom != "" {
		where += fmt.Sprintf(` AND appointment_date >= $%d::date`, idx)
		args = append(args, f.DateFrom)
		idx++
	}
	if f.DateTo != "" {
		where += fmt.Sprintf(` AND appointment_date <= $%d::date`, idx)
		args = append(args, f.DateTo)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointment count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+appointmentCols+` FROM appointments`+where+
		fmt.Sprintf(` ORDER BY appointment_date, appointment_time LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("appointment search: %w", err)
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ConfirmedOn(ctx context.Context, date string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointments
		WHERE appointment_date = $1::date AND status = 'CONFIRMED'
		ORDER BY appointment_time`, date)
	if err != nil {
		return nil, fmt.Errorf("confirmed appointments: %w", err)
	}
	return collect(rows)
}

func (r *appointmentRepoPG) Overdue(ctx context.Context, today string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointments
		WHERE appointment_date < $1::date AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY appointment_date, appointment_time`, today)
	if err != nil {
		return nil, fmt.Errorf("overdue appointments: %w", err)
	}
	return collect(rows)
}

// countBy groups appointments by one of the enum columns. column is never
// user input.
func (r *appointmentRepoPG) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+column+`, COUNT(*) FROM appointments GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	raw, err := r.countBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(raw))
	for k, v := range raw {
		out[Status(k)] = v
	}
	return out, nil
}

func (r *appointmentRepoPG) CountByConsultationType(ctx context.Context) (map[ConsultationType]int, error) {
	raw, err := r.countBy(ctx, "consultation_type")
	if err != nil {
		return nil, err
	}
	out := make(map[ConsultationType]int, len(raw))
	for k, v := range raw {
		out[ConsultationType(k)] = v
	}
	return out, nil
}

func (r *appointmentRepoPG) CountByPaymentStatus(ctx context.Context) (map[PaymentStatus]int, error) {
	raw, err := r.countBy(ctx, "payment_status")
	if err != nil {
		return nil, err
	}
	out := make(map[PaymentStatus]int, len(raw))
	for k, v := range raw {
		out[PaymentStatus(k)] = v
	}
	return out, nil
}
