package bed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

// -- Ward Repository --

type wardRepoPG struct {
	pool *pgxpool.Pool
}

func NewWardRepo(pool *pgxpool.Pool) WardRepository {
	return &wardRepoPG{pool: pool}
}

func (r *wardRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const wardCols = `id, name, floor, total_beds, available_beds, created_at, updated_at`

func (r *wardRepoPG) Create(ctx context.Context, w *Ward) error {
	w.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ward (id, name, floor, total_beds, available_beds)
		VALUES ($1,$2,$3,$4,$5)`,
		w.ID, w.Name, w.Floor, w.TotalBeds, w.AvailableBeds)
	return err
}

func (r *wardRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ward, error) {
	w, err := scanWard(r.conn(ctx).QueryRow(ctx, `SELECT `+wardCols+` FROM ward WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("ward %s not found", id)
	}
	return w, err
}

func (r *wardRepoPG) List(ctx context.Context) ([]*Ward, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+wardCols+` FROM ward ORDER BY floor, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ward
	for rows.Next() {
		w, err := scanWard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWard(row pgx.Row) (*Ward, error) {
	var w Ward
	err := row.Scan(&w.ID, &w.Name, &w.Floor, &w.TotalBeds, &w.AvailableBeds, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// -- Bed Repository --

type bedRepoPG struct {
	pool *pgxpool.Pool
}

func NewBedRepo(pool *pgxpool.Pool) BedRepository {
	return &bedRepoPG{pool: pool}
}

func (r *bedRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bedCols = `id, ward_id, bed_number, bed_type, status, created_at, updated_at`

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO bed (id, ward_id, bed_number, bed_type, status)
			VALUES ($1,$2,$3,$4,$5)`,
			b.ID, b.WardID, b.Number, b.Type, b.Status)
		if err != nil {
			return err
		}
		delta := 0
		if b.Status == StatusAvailable {
			delta = 1
		}
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE ward
			SET total_beds = total_beds + 1, available_beds = available_beds + $2, updated_at = now()
			WHERE id = $1`, b.WardID, delta)
		return err
	})
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("bed %s not found", id)
	}
	return b, err
}

func (r *bedRepoPG) ListByWard(ctx context.Context, wardID uuid.UUID) ([]*Bed, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+bedCols+` FROM bed WHERE ward_id = $1 ORDER BY bed_number`, wardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *bedRepoPG) SetStatusIf(ctx context.Context, id uuid.UUID, expect []BedStatus, to BedStatus) (*Bed, error) {
	var out *Bed
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var current BedStatus
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT status FROM bed WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFoundf("bed %s not found", id)
		}
		if err != nil {
			return err
		}
		matched := false
		for _, s := range expect {
			if current == s {
				matched = true
				break
			}
		}
		if !matched {
			return apperr.Transitionf("bed %s in status %s cannot move to %s", id, current, to)
		}

		out, err = scanBed(r.conn(ctx).QueryRow(ctx, `
			UPDATE bed SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+bedCols, id, to))
		if err != nil {
			return err
		}

		delta := 0
		if current == StatusAvailable && to != StatusAvailable {
			delta = -1
		}
		if current != StatusAvailable && to == StatusAvailable {
			delta = 1
		}
		if delta == 0 {
			return nil
		}
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE ward SET available_beds = available_beds + $2, updated_at = now()
			WHERE id = $1`, out.WardID, delta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.WardID, &b.Number, &b.Type, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// -- Admission Repository --

type admissionRepoPG struct {
	pool *pgxpool.Pool
}

func NewAdmissionRepo(pool *pgxpool.Pool) AdmissionRepository {
	return &admissionRepoPG{pool: pool}
}

func (r *admissionRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const admissionCols = `id, patient_id, doctor_id, bed_id, ward_id, status, reason,
	admitted_at, discharged_at, created_at, updated_at`

func (r *admissionRepoPG) Admit(ctx context.Context, a *Admission, pref BedType) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		// Claim one free bed, preference first. SKIP LOCKED keeps concurrent
		// admissions from fighting over the same row; the conditional update
		// is the capacity check.
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE bed SET status = $3, updated_at = now()
			WHERE id = (
				SELECT id FROM bed
				WHERE ward_id = $1 AND status = $4
				ORDER BY (bed_type = $2) DESC, bed_number
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id`,
			a.WardID, pref, StatusOccupied, StatusAvailable).Scan(&a.BedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Capacityf("ward %s has no free bed", a.WardID)
		}
		if err != nil {
			return err
		}

		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE ward SET available_beds = available_beds - 1, updated_at = now()
			WHERE id = $1`, a.WardID)
		if err != nil {
			return err
		}

		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.Status = AdmissionActive
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO admission (id, patient_id, doctor_id, bed_id, ward_id, status, reason, admitted_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			a.ID, a.PatientID, a.DoctorID, a.BedID, a.WardID, a.Status, a.Reason, a.AdmittedAt)
		return err
	})
}

func (r *admissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+` FROM admission WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("admission %s not found", id)
	}
	return a, err
}

func (r *admissionRepoPG) ListActiveByWard(ctx context.Context, wardID uuid.UUID) ([]*Admission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+admissionCols+` FROM admission
		WHERE ward_id = $1 AND status = $2
		ORDER BY admitted_at`, wardID, AdmissionActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAdmissions(rows)
}

func (r *admissionRepoPG) Release(ctx context.Context, admissionID uuid.UUID, at time.Time) (*Admission, error) {
	var out *Admission
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, `
			UPDATE admission
			SET status = $2, discharged_at = $3, updated_at = now()
			WHERE id = $1 AND status = $4
			RETURNING `+admissionCols,
			admissionID, AdmissionDischarged, at, AdmissionActive))
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := r.GetByID(ctx, admissionID); gerr != nil {
				return gerr
			}
			return apperr.Transitionf("admission %s is already discharged", admissionID)
		}
		if err != nil {
			return err
		}

		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE bed SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3`, a.BedID, StatusAvailable, StatusOccupied)
		if err != nil {
			return err
		}
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE ward SET available_beds = available_beds + 1, updated_at = now()
			WHERE id = $1`, a.WardID)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *admissionRepoPG) Transfer(ctx context.Context, admissionID, toBedID uuid.UUID, reason *string, at time.Time) (*Transfer, error) {
	var out *Transfer
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		a, err := scanAdmission(r.conn(ctx).QueryRow(ctx,
			`SELECT `+admissionCols+` FROM admission WHERE id = $1 FOR UPDATE`, admissionID))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFoundf("admission %s not found", admissionID)
		}
		if err != nil {
			return err
		}
		if a.Status != AdmissionActive {
			return apperr.Transitionf("admission %s is not active", admissionID)
		}
		if a.BedID == toBedID {
			return apperr.Validationf("admission %s already occupies bed %s", admissionID, toBedID)
		}

		// Claim the target conditionally. Zero rows means it is held or out
		// of service; the transaction rolls back and nothing moved.
		var toWardID uuid.UUID
		err = r.conn(ctx).QueryRow(ctx, `
			UPDATE bed SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3
			RETURNING ward_id`, toBedID, StatusOccupied, StatusAvailable).Scan(&toWardID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Unavailablef("bed %s is not available", toBedID)
		}
		if err != nil {
			return err
		}

		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE bed SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3`, a.BedID, StatusAvailable, StatusOccupied)
		if err != nil {
			return err
		}
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE ward SET available_beds = available_beds - 1, updated_at = now()
			WHERE id = $1`, toWardID)
		if err != nil {
			return err
		}
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE ward SET available_beds = available_beds + 1, updated_at = now()
			WHERE id = $1`, a.WardID)
		if err != nil {
			return err
		}
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE admission SET bed_id = $2, ward_id = $3, updated_at = now()
			WHERE id = $1`, admissionID, toBedID, toWardID)
		if err != nil {
			return err
		}

		tr := &Transfer{
			ID:            uuid.New(),
			AdmissionID:   admissionID,
			FromBedID:     a.BedID,
			ToBedID:       toBedID,
			Reason:        reason,
			TransferredAt: at,
		}
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO bed_transfer (id, admission_id, from_bed_id, to_bed_id, reason, transferred_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			tr.ID, tr.AdmissionID, tr.FromBedID, tr.ToBedID, tr.Reason, tr.TransferredAt)
		if err != nil {
			return err
		}
		out = tr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *admissionRepoPG) ListTransfers(ctx context.Context, admissionID uuid.UUID) ([]*Transfer, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, admission_id, from_bed_id, to_bed_id, reason, transferred_at
		FROM bed_transfer
		WHERE admission_id = $1
		ORDER BY transferred_at`, admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		var tr Transfer
		if err := rows.Scan(&tr.ID, &tr.AdmissionID, &tr.FromBedID, &tr.ToBedID, &tr.Reason, &tr.TransferredAt); err != nil {
			return nil, err
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}

func scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.BedID, &a.WardID, &a.Status, &a.Reason,
		&a.AdmittedAt, &a.DischargedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAdmissions(rows pgx.Rows) ([]*Admission, error) {
	var out []*Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
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
