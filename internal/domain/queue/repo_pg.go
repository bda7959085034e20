package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, doctor_id, patient_id, appointment_id, queue_date, queue_number,
	entry_type, is_emergency, status, checked_in_at, called_at, started_at, finished_at,
	created_at, updated_at`

func (r *repoPG) CheckIn(ctx context.Context, e *Entry) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		// Upsert-increment keyed on (doctor, date); the database serializes
		// concurrent check-ins on the counter row, so numbers come out as a
		// contiguous run with no read-modify-write in application code.
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO queue_counter (doctor_id, queue_date, last_number)
			VALUES ($1, $2, 1)
			ON CONFLICT (doctor_id, queue_date)
			DO UPDATE SET last_number = queue_counter.last_number + 1
			RETURNING last_number`,
			e.DoctorID, scheduling.DateOnly(e.QueueDate)).Scan(&e.Number)
		if err != nil {
			return err
		}

		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO queue_entry (
				id, doctor_id, patient_id, appointment_id, queue_date, queue_number,
				entry_type, is_emergency, status, checked_in_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.ID, e.DoctorID, e.PatientID, e.AppointmentID, scheduling.DateOnly(e.QueueDate), e.Number,
			e.Type, e.Emergency, e.Status, e.CheckedInAt,
		)
		return err
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM queue_entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("queue entry %s not found", id)
	}
	return e, err
}

func (r *repoPG) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE appointment_id = $1`, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("no queue entry for appointment %s", appointmentID)
	}
	return e, err
}

func (r *repoPG) CallNext(ctx context.Context, doctorID uuid.UUID, date time.Time, calledAt time.Time) (*Entry, error) {
	// SKIP LOCKED lets concurrent callers claim distinct entries instead of
	// queueing behind each other on the head of the line.
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `
		UPDATE queue_entry
		SET status = $4, called_at = $3, updated_at = now()
		WHERE id = (
			SELECT id FROM queue_entry
			WHERE doctor_id = $1 AND queue_date = $2 AND status = $5
			ORDER BY is_emergency DESC, queue_number ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+entryCols,
		doctorID, scheduling.DateOnly(date), calledAt, StatusCalled, StatusWaiting))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *repoPG) SetStatusIf(ctx context.Context, id uuid.UUID, expect []EntryStatus, to EntryStatus, at time.Time) (*Entry, error) {
	expected := make([]string, len(expect))
	for i, s := range expect {
		expected[i] = string(s)
	}
	stamp := ""
	switch to {
	case StatusCalled:
		stamp = ", called_at = $4"
	case StatusInConsultation:
		stamp = ", started_at = $4"
	case StatusDone, StatusSkipped:
		stamp = ", finished_at = $4"
	}
	q := `
		UPDATE queue_entry
		SET status = $2, updated_at = now()` + stamp + `
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + entryCols
	args := []interface{}{id, to, expected}
	if stamp != "" {
		args = append(args, at)
	}
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, apperr.Transitionf("queue entry %s cannot move to %s", id, to)
	}
	return e, err
}

func (r *repoPG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM queue_entry
		WHERE doctor_id = $1 AND queue_date = $2
		ORDER BY queue_number`,
		doctorID, scheduling.DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) WaitingCount(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT count(*) FROM queue_entry
		WHERE doctor_id = $1 AND queue_date = $2 AND status = $3`,
		doctorID, scheduling.DateOnly(date), StatusWaiting).Scan(&count)
	return count, err
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.DoctorID, &e.PatientID, &e.AppointmentID, &e.QueueDate, &e.Number,
		&e.Type, &e.Emergency, &e.Status, &e.CheckedInAt, &e.CalledAt, &e.StartedAt,
		&e.FinishedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
