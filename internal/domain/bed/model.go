package bed

import (
	"time"

	"github.com/google/uuid"
)

// BedType classifies a bed for admission preference matching.
type BedType string

const (
	TypeGeneral     BedType = "GENERAL"
	TypeICU         BedType = "ICU"
	TypePrivate     BedType = "PRIVATE"
	TypeSemiPrivate BedType = "SEMI_PRIVATE"
)

// BedStatus is the occupancy state of a single bed.
type BedStatus string

const (
	StatusAvailable   BedStatus = "AVAILABLE"
	StatusOccupied    BedStatus = "OCCUPIED"
	StatusMaintenance BedStatus = "MAINTENANCE"
	StatusReserved    BedStatus = "RESERVED"
)

// Ward maps to the ward table. AvailableBeds counts beds in AVAILABLE status
// and moves only inside the same transaction as the bed status change, so the
// two never drift apart observably.
type Ward struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Floor         int       `db:"floor" json:"floor"`
	TotalBeds     int       `db:"total_beds" json:"total_beds"`
	AvailableBeds int       `db:"available_beds" json:"available_beds"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Bed maps to the bed table.
type Bed struct {
	ID        uuid.UUID `db:"id" json:"id"`
	WardID    uuid.UUID `db:"ward_id" json:"ward_id"`
	Number    string    `db:"bed_number" json:"bed_number"`
	Type      BedType   `db:"bed_type" json:"bed_type"`
	Status    BedStatus `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AdmissionStatus is the inpatient stay state.
type AdmissionStatus string

const (
	AdmissionActive     AdmissionStatus = "ACTIVE"
	AdmissionDischarged AdmissionStatus = "DISCHARGED"
)

// Admission maps to the admission table. One active admission holds exactly
// one OCCUPIED bed; transfers swap the bed reference but keep the admission.
type Admission struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	PatientID    uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID     *uuid.UUID      `db:"doctor_id" json:"doctor_id,omitempty"`
	BedID        uuid.UUID       `db:"bed_id" json:"bed_id"`
	WardID       uuid.UUID       `db:"ward_id" json:"ward_id"`
	Status       AdmissionStatus `db:"status" json:"status"`
	Reason       *string         `db:"reason" json:"reason,omitempty"`
	AdmittedAt   time.Time       `db:"admitted_at" json:"admitted_at"`
	DischargedAt *time.Time      `db:"discharged_at" json:"discharged_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Transfer maps to the bed_transfer table, one row per completed move.
type Transfer struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AdmissionID   uuid.UUID `db:"admission_id" json:"admission_id"`
	FromBedID     uuid.UUID `db:"from_bed_id" json:"from_bed_id"`
	ToBedID       uuid.UUID `db:"to_bed_id" json:"to_bed_id"`
	Reason        *string   `db:"reason" json:"reason,omitempty"`
	TransferredAt time.Time `db:"transferred_at" json:"transferred_at"`
}

// WardOccupancy is a point-in-time census of one ward.
type WardOccupancy struct {
	WardID      uuid.UUID `json:"ward_id"`
	Name        string    `json:"name"`
	Total       int       `json:"total"`
	Available   int       `json:"available"`
	Occupied    int       `json:"occupied"`
	Maintenance int       `json:"maintenance"`
	Reserved    int       `json:"reserved"`
}
