package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *ScheduleTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduleTemplate, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*ScheduleTemplate, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type LeaveRepository interface {
	Create(ctx context.Context, l *LeaveInterval) error
	GetByID(ctx context.Context, id uuid.UUID) (*LeaveInterval, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*LeaveInterval, error)
	// ListInRange returns leaves whose [start_date, end_date] intersects
	// [from, to], any status.
	ListInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*LeaveInterval, error)
	// SetStatusIf transitions the leave's status only if it currently holds
	// one of the expected statuses; returns apperr.ErrInvalidTransition
	// otherwise and apperr.ErrNotFound for an unknown id.
	SetStatusIf(ctx context.Context, id uuid.UUID, expect []LeaveStatus, to LeaveStatus, approvedBy *uuid.UUID) (*LeaveInterval, error)
}

type AppointmentRepository interface {
	// CreateIfFree inserts the appointment only while fewer than maxPerSlot
	// SCHEDULED/CONFIRMED appointments overlap its interval for the same
	// doctor and date. The check and insert are one atomic operation against
	// the store, serialized on the (doctor, date, start) contention key;
	// losing the race returns apperr.ErrSlotConflict.
	CreateIfFree(ctx context.Context, a *Appointment, maxPerSlot int) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// SetStatusIf transitions status only from one of the expected statuses,
	// atomically. Returns apperr.ErrNotFound or apperr.ErrInvalidTransition.
	SetStatusIf(ctx context.Context, id uuid.UUID, expect []Status, to Status, cancelReason *string) (*Appointment, error)
	// Reschedule atomically marks old RESCHEDULED and inserts repl under the
	// same occupancy condition as CreateIfFree; both happen or neither does.
	Reschedule(ctx context.Context, old *Appointment, repl *Appointment, maxPerSlot int) error
	// CountOnDate counts appointments created for a calendar date, any
	// status, used for appointment numbering.
	CountOnDate(ctx context.Context, date time.Time) (int, error)
	// ListPastPair returns the most recent appointments for a
	// (patient, doctor) pair whose scheduled time is before cutoff and whose
	// status is terminal, newest first, at most limit.
	ListPastPair(ctx context.Context, patientID, doctorID uuid.UUID, cutoff time.Time, limit int) ([]*Appointment, error)
	// ListOverdue returns SCHEDULED/CONFIRMED appointments whose end lies
	// before cutoff.
	ListOverdue(ctx context.Context, cutoff time.Time) ([]*Appointment, error)
}
