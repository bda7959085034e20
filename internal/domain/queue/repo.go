package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// CheckIn allocates the next queue number for the entry's (doctor, date)
	// pair and inserts the entry with it, as one atomic operation against
	// the store. Concurrent check-ins for the same pair receive distinct
	// consecutive numbers.
	CheckIn(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// FindByAppointment returns the entry created for an appointment, or
	// apperr.ErrNotFound.
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Entry, error)
	// CallNext atomically claims the next WAITING entry for the pair,
	// emergencies first then lowest number, moving it to CALLED. Returns
	// (nil, nil) when nothing is waiting.
	CallNext(ctx context.Context, doctorID uuid.UUID, date time.Time, calledAt time.Time) (*Entry, error)
	// SetStatusIf transitions the entry only from one of the expected
	// statuses, stamping the timestamp column matching the target status.
	SetStatusIf(ctx context.Context, id uuid.UUID, expect []EntryStatus, to EntryStatus, at time.Time) (*Entry, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Entry, error)
	WaitingCount(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
}
