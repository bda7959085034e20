package queue

import (
	"time"

	"github.com/google/uuid"
)

// EntryType records how the patient entered the queue.
type EntryType string

const (
	TypeScheduled EntryType = "SCHEDULED"
	TypeWalkIn    EntryType = "WALK_IN"
	TypeEmergency EntryType = "EMERGENCY"
)

// EntryStatus is the call-order lifecycle state.
type EntryStatus string

const (
	StatusWaiting        EntryStatus = "WAITING"
	StatusCalled         EntryStatus = "CALLED"
	StatusInConsultation EntryStatus = "IN_CONSULTATION"
	StatusDone           EntryStatus = "DONE"
	StatusSkipped        EntryStatus = "SKIPPED"
)

// Entry maps to the queue_entry table. Numbers for a (doctor, date) pair are
// a contiguous run starting at 1 in check-in order; the pair's counter lives
// in the store, never in process memory.
type Entry struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	DoctorID      uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	PatientID     uuid.UUID   `db:"patient_id" json:"patient_id"`
	AppointmentID *uuid.UUID  `db:"appointment_id" json:"appointment_id,omitempty"`
	QueueDate     time.Time   `db:"queue_date" json:"queue_date"`
	Number        int         `db:"queue_number" json:"queue_number"`
	Type          EntryType   `db:"entry_type" json:"entry_type"`
	Emergency     bool        `db:"is_emergency" json:"is_emergency"`
	Status        EntryStatus `db:"status" json:"status"`
	CheckedInAt   time.Time   `db:"checked_in_at" json:"checked_in_at"`
	CalledAt      *time.Time  `db:"called_at" json:"called_at,omitempty"`
	StartedAt     *time.Time  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt    *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Active reports whether the entry still takes part in the day's call order.
func (e *Entry) Active() bool {
	return e.Status == StatusWaiting || e.Status == StatusCalled || e.Status == StatusInConsultation
}
