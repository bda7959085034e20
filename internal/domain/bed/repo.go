package bed

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WardRepository interface {
	Create(ctx context.Context, w *Ward) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ward, error)
	List(ctx context.Context) ([]*Ward, error)
}

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	ListByWard(ctx context.Context, wardID uuid.UUID) ([]*Bed, error)
	// SetStatusIf flips a bed between non-occupied statuses and keeps the
	// ward's available count in step, in one transaction. Admission and
	// release go through AdmissionRepository instead.
	SetStatusIf(ctx context.Context, id uuid.UUID, expect []BedStatus, to BedStatus) (*Bed, error)
}

type AdmissionRepository interface {
	// Admit claims one AVAILABLE bed in the ward, preferring the requested
	// type but falling back to any free bed, marks it OCCUPIED, decrements
	// the ward count and inserts the admission, all in one transaction.
	// No free bed returns apperr.ErrCapacityExceeded with nothing changed.
	Admit(ctx context.Context, a *Admission, pref BedType) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	ListActiveByWard(ctx context.Context, wardID uuid.UUID) ([]*Admission, error)
	// Release discharges the admission: bed back to AVAILABLE, ward count
	// incremented, discharged_at stamped. Already discharged returns
	// apperr.ErrInvalidTransition.
	Release(ctx context.Context, admissionID uuid.UUID, at time.Time) (*Admission, error)
	// Transfer moves the admission to the target bed if and only if that bed
	// is AVAILABLE; on apperr.ErrBedUnavailable no state changes at all.
	// Appends a Transfer row on success.
	Transfer(ctx context.Context, admissionID, toBedID uuid.UUID, reason *string, at time.Time) (*Transfer, error)
	ListTransfers(ctx context.Context, admissionID uuid.UUID) ([]*Transfer, error)
}
