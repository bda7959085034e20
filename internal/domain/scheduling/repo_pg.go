package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

// -- Template Repository --

type templateRepoPG struct {
	pool *pgxpool.Pool
}

func NewTemplateRepo(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepoPG{pool: pool}
}

func (r *templateRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const templateCols = `id, doctor_id, weekday, start_minute, end_minute, slot_minutes, max_per_slot,
	break_start, break_end, effective_from, effective_until, active, created_at, updated_at`

func (r *templateRepoPG) Create(ctx context.Context, t *ScheduleTemplate) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO schedule_template (
			id, doctor_id, weekday, start_minute, end_minute, slot_minutes, max_per_slot,
			break_start, break_end, effective_from, effective_until, active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.DoctorID, t.Weekday, t.Start, t.End, t.SlotMinutes, t.MaxPerSlot,
		t.BreakStart, t.BreakEnd, t.EffectiveFrom, t.EffectiveUntil, t.Active,
	)
	return err
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduleTemplate, error) {
	t, err := scanTemplate(r.conn(ctx).QueryRow(ctx, `SELECT `+templateCols+` FROM schedule_template WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("schedule template %s not found", id)
	}
	return t, err
}

func (r *templateRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*ScheduleTemplate, error) {
	q := `SELECT ` + templateCols + ` FROM schedule_template WHERE doctor_id = $1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY weekday, start_minute`

	rows, err := r.conn(ctx).Query(ctx, q, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduleTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *templateRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE schedule_template SET active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("schedule template %s not found", id)
	}
	return nil
}

func scanTemplate(row pgx.Row) (*ScheduleTemplate, error) {
	var t ScheduleTemplate
	err := row.Scan(
		&t.ID, &t.DoctorID, &t.Weekday, &t.Start, &t.End, &t.SlotMinutes, &t.MaxPerSlot,
		&t.BreakStart, &t.BreakEnd, &t.EffectiveFrom, &t.EffectiveUntil, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// -- Leave Repository --

type leaveRepoPG struct {
	pool *pgxpool.Pool
}

func NewLeaveRepo(pool *pgxpool.Pool) LeaveRepository {
	return &leaveRepoPG{pool: pool}
}

func (r *leaveRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const leaveCols = `id, doctor_id, start_date, end_date, start_time, end_time,
	leave_type, reason, status, approved_by, created_at, updated_at`

func (r *leaveRepoPG) Create(ctx context.Context, l *LeaveInterval) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO leave_interval (
			id, doctor_id, start_date, end_date, start_time, end_time,
			leave_type, reason, status, approved_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID, l.DoctorID, l.StartDate, l.EndDate, l.StartTime, l.EndTime,
		l.Type, l.Reason, l.Status, l.ApprovedBy,
	)
	return err
}

func (r *leaveRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LeaveInterval, error) {
	l, err := scanLeave(r.conn(ctx).QueryRow(ctx, `SELECT `+leaveCols+` FROM leave_interval WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("leave %s not found", id)
	}
	return l, err
}

func (r *leaveRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*LeaveInterval, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+leaveCols+` FROM leave_interval WHERE doctor_id = $1 ORDER BY start_date DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeaves(rows)
}

func (r *leaveRepoPG) ListInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*LeaveInterval, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+leaveCols+` FROM leave_interval
		WHERE doctor_id = $1 AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date`, doctorID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeaves(rows)
}

func (r *leaveRepoPG) SetStatusIf(ctx context.Context, id uuid.UUID, expect []LeaveStatus, to LeaveStatus, approvedBy *uuid.UUID) (*LeaveInterval, error) {
	expected := make([]string, len(expect))
	for i, s := range expect {
		expected[i] = string(s)
	}
	l, err := scanLeave(r.conn(ctx).QueryRow(ctx, `
		UPDATE leave_interval
		SET status = $2, approved_by = COALESCE($3, approved_by), updated_at = now()
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+leaveCols, id, to, approvedBy, expected))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, apperr.Transitionf("leave %s cannot move to %s", id, to)
	}
	return l, err
}

func scanLeave(row pgx.Row) (*LeaveInterval, error) {
	var l LeaveInterval
	err := row.Scan(
		&l.ID, &l.DoctorID, &l.StartDate, &l.EndDate, &l.StartTime, &l.EndTime,
		&l.Type, &l.Reason, &l.Status, &l.ApprovedBy, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLeaves(rows pgx.Rows) ([]*LeaveInterval, error) {
	var out []*LeaveInterval
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// -- Appointment Repository --

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const appointmentCols = `id, number, patient_id, doctor_id, appointment_date, start_minute, duration_minutes,
	status, is_emergency, priority, reason, cancel_reason, rescheduled_to, rescheduled_from,
	created_at, updated_at`

func (r *appointmentRepoPG) CreateIfFree(ctx context.Context, a *Appointment, maxPerSlot int) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.lockSlot(ctx, a.DoctorID, a.Date, a.Start); err != nil {
			return err
		}
		free, err := r.slotHasRoom(ctx, a, maxPerSlot)
		if err != nil {
			return err
		}
		if !free {
			return apperr.Conflictf("slot %s on %s is fully booked", a.Start, a.Date.Format("2006-01-02"))
		}
		return r.insert(ctx, a)
	})
}

func (r *appointmentRepoPG) Reschedule(ctx context.Context, old *Appointment, repl *Appointment, maxPerSlot int) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.lockSlot(ctx, repl.DoctorID, repl.Date, repl.Start); err != nil {
			return err
		}
		free, err := r.slotHasRoom(ctx, repl, maxPerSlot)
		if err != nil {
			return err
		}
		if !free {
			return apperr.Conflictf("slot %s on %s is fully booked", repl.Start, repl.Date.Format("2006-01-02"))
		}
		if repl.ID == uuid.Nil {
			repl.ID = uuid.New()
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE appointment
			SET status = $2, rescheduled_to = $3, updated_at = now()
			WHERE id = $1 AND status = ANY($4)`,
			old.ID, StatusRescheduled, repl.ID, []string{string(StatusScheduled), string(StatusConfirmed)})
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.Transitionf("appointment %s can no longer be rescheduled", old.ID)
		}
		return r.insert(ctx, repl)
	})
}

// lockSlot serializes writers contending for the same (doctor, date, start)
// key. Advisory, transaction scoped, released automatically at commit or
// rollback, so the room check below cannot race a concurrent insert.
func (r *appointmentRepoPG) lockSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start TimeOfDay) error {
	key := fmt.Sprintf("appt|%s|%s|%d", doctorID, DateOnly(date).Format("2006-01-02"), start)
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (r *appointmentRepoPG) slotHasRoom(ctx context.Context, a *Appointment, maxPerSlot int) (bool, error) {
	if maxPerSlot < 1 {
		maxPerSlot = 1
	}
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT count(*) FROM appointment
		WHERE doctor_id = $1 AND appointment_date = $2
		  AND status = ANY($3)
		  AND start_minute < $5 AND start_minute + duration_minutes > $4`,
		a.DoctorID, DateOnly(a.Date),
		[]string{string(StatusScheduled), string(StatusConfirmed)},
		int(a.Start), int(a.End()),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count < maxPerSlot, nil
}

func (r *appointmentRepoPG) insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (
			id, number, patient_id, doctor_id, appointment_date, start_minute, duration_minutes,
			status, is_emergency, priority, reason, rescheduled_from
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.Number, a.PatientID, a.DoctorID, DateOnly(a.Date), a.Start, a.DurationMinutes,
		a.Status, a.Emergency, a.Priority, a.Reason, a.RescheduledFrom,
	)
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("appointment %s not found", id)
	}
	return a, err
}

func (r *appointmentRepoPG) ListByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE doctor_id = $1 AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, start_minute`,
		doctorID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) SetStatusIf(ctx context.Context, id uuid.UUID, expect []Status, to Status, cancelReason *string) (*Appointment, error) {
	expected := make([]string, len(expect))
	for i, s := range expect {
		expected[i] = string(s)
	}
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment
		SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = now()
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+appointmentCols, id, to, cancelReason, expected))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, apperr.Transitionf("appointment %s cannot move to %s", id, to)
	}
	return a, err
}

func (r *appointmentRepoPG) CountOnDate(ctx context.Context, date time.Time) (int, error) {
	day := DateOnly(date)
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT count(*) FROM appointment
		WHERE created_at >= $1 AND created_at < $2`,
		day, day.AddDate(0, 0, 1)).Scan(&count)
	return count, err
}

func (r *appointmentRepoPG) ListPastPair(ctx context.Context, patientID, doctorID uuid.UUID, cutoff time.Time, limit int) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE patient_id = $1 AND doctor_id = $2
		  AND status = ANY($3)
		  AND appointment_date + make_interval(mins => start_minute) < $4
		ORDER BY appointment_date DESC, start_minute DESC
		LIMIT $5`,
		patientID, doctorID,
		[]string{string(StatusCompleted), string(StatusCancelled), string(StatusNoShow), string(StatusRescheduled)},
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListOverdue(ctx context.Context, cutoff time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE status = ANY($1)
		  AND appointment_date + make_interval(mins => start_minute + duration_minutes) < $2
		ORDER BY appointment_date, start_minute`,
		[]string{string(StatusScheduled), string(StatusConfirmed)}, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.Number, &a.PatientID, &a.DoctorID, &a.Date, &a.Start, &a.DurationMinutes,
		&a.Status, &a.Emergency, &a.Priority, &a.Reason, &a.CancelReason,
		&a.RescheduledTo, &a.RescheduledFrom, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
