package bed

import (
	"context"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/events"
)

// Service allocates inpatient beds. Every mutation that touches a bed and its
// ward count is a single conditional transaction in the repository, so a ward
// count can never disagree with the bed statuses it summarizes.
type Service struct {
	wards      WardRepository
	beds       BedRepository
	admissions AdmissionRepository
	clock      clock.Clock
	sink       events.Sink
}

func NewService(wards WardRepository, beds BedRepository, admissions AdmissionRepository, clk clock.Clock, sink events.Sink) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &Service{wards: wards, beds: beds, admissions: admissions, clock: clk, sink: sink}
}

// -- Wards and beds --

func (s *Service) CreateWard(ctx context.Context, caps auth.CapabilitySet, w *Ward) error {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return err
	}
	if w.Name == "" {
		return apperr.Validationf("ward name is required")
	}
	w.TotalBeds = 0
	w.AvailableBeds = 0
	return s.wards.Create(ctx, w)
}

func (s *Service) GetWard(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return s.wards.GetByID(ctx, id)
}

func (s *Service) ListWards(ctx context.Context) ([]*Ward, error) {
	return s.wards.List(ctx)
}

func (s *Service) AddBed(ctx context.Context, caps auth.CapabilitySet, b *Bed) error {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return err
	}
	if b.WardID == uuid.Nil {
		return apperr.Validationf("ward_id is required")
	}
	if b.Number == "" {
		return apperr.Validationf("bed number is required")
	}
	if _, err := s.wards.GetByID(ctx, b.WardID); err != nil {
		return err
	}
	switch b.Type {
	case TypeGeneral, TypeICU, TypePrivate, TypeSemiPrivate:
	case "":
		b.Type = TypeGeneral
	default:
		return apperr.Validationf("unknown bed type %s", b.Type)
	}
	if b.Status == "" {
		b.Status = StatusAvailable
	}
	return s.beds.Create(ctx, b)
}

func (s *Service) ListBeds(ctx context.Context, wardID uuid.UUID) ([]*Bed, error) {
	return s.beds.ListByWard(ctx, wardID)
}

// StartMaintenance takes a free bed out of service.
func (s *Service) StartMaintenance(ctx context.Context, caps auth.CapabilitySet, bedID uuid.UUID) (*Bed, error) {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return nil, err
	}
	return s.beds.SetStatusIf(ctx, bedID, []BedStatus{StatusAvailable, StatusReserved}, StatusMaintenance)
}

// EndMaintenance returns a bed to service.
func (s *Service) EndMaintenance(ctx context.Context, caps auth.CapabilitySet, bedID uuid.UUID) (*Bed, error) {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return nil, err
	}
	return s.beds.SetStatusIf(ctx, bedID, []BedStatus{StatusMaintenance}, StatusAvailable)
}

// Reserve holds a free bed for an incoming admission.
func (s *Service) Reserve(ctx context.Context, caps auth.CapabilitySet, bedID uuid.UUID) (*Bed, error) {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return nil, err
	}
	return s.beds.SetStatusIf(ctx, bedID, []BedStatus{StatusAvailable}, StatusReserved)
}

// Unreserve releases a hold that was never converted to an admission.
func (s *Service) Unreserve(ctx context.Context, caps auth.CapabilitySet, bedID uuid.UUID) (*Bed, error) {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return nil, err
	}
	return s.beds.SetStatusIf(ctx, bedID, []BedStatus{StatusReserved}, StatusAvailable)
}

// Occupancy reports the ward census from its current bed statuses.
func (s *Service) Occupancy(ctx context.Context, wardID uuid.UUID) (*WardOccupancy, error) {
	w, err := s.wards.GetByID(ctx, wardID)
	if err != nil {
		return nil, err
	}
	beds, err := s.beds.ListByWard(ctx, wardID)
	if err != nil {
		return nil, err
	}
	occ := &WardOccupancy{WardID: w.ID, Name: w.Name, Total: len(beds)}
	for _, b := range beds {
		switch b.Status {
		case StatusAvailable:
			occ.Available++
		case StatusOccupied:
			occ.Occupied++
		case StatusMaintenance:
			occ.Maintenance++
		case StatusReserved:
			occ.Reserved++
		}
	}
	return occ, nil
}

// -- Admissions --

// Admit places the patient in one free bed of the ward, preferring the
// requested type but taking any available bed over turning the patient away.
// A full ward returns ErrCapacityExceeded with nothing changed.
func (s *Service) Admit(ctx context.Context, caps auth.CapabilitySet, patientID, wardID uuid.UUID, pref BedType, doctorID *uuid.UUID, reason *string) (*Admission, error) {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return nil, err
	}
	if patientID == uuid.Nil {
		return nil, apperr.Validationf("patient_id is required")
	}
	if _, err := s.wards.GetByID(ctx, wardID); err != nil {
		return nil, err
	}
	if pref == "" {
		pref = TypeGeneral
	}

	a := &Admission{
		PatientID:  patientID,
		DoctorID:   doctorID,
		WardID:     wardID,
		Reason:     reason,
		AdmittedAt: s.clock.Now(),
	}
	if err := s.admissions.Admit(ctx, a, pref); err != nil {
		return nil, err
	}
	s.sink.Publish(events.New(events.TypeBedAdmitted, a.ID.String(), a))
	return a, nil
}

// Release discharges the admission and frees its bed.
func (s *Service) Release(ctx context.Context, caps auth.CapabilitySet, admissionID uuid.UUID) (*Admission, error) {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return nil, err
	}
	a, err := s.admissions.Release(ctx, admissionID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.sink.Publish(events.New(events.TypeBedDischarged, a.ID.String(), a))
	return a, nil
}

// Transfer moves an active admission to a specific bed. All-or-nothing: if
// the target is not free, the patient stays where they are.
func (s *Service) Transfer(ctx context.Context, caps auth.CapabilitySet, admissionID, toBedID uuid.UUID, reason *string) (*Transfer, error) {
	if err := caps.Require(auth.CapManageBeds); err != nil {
		return nil, err
	}
	tr, err := s.admissions.Transfer(ctx, admissionID, toBedID, reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.sink.Publish(events.New(events.TypeBedTransferred, tr.AdmissionID.String(), tr))
	return tr, nil
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.admissions.GetByID(ctx, id)
}

func (s *Service) ListTransfers(ctx context.Context, admissionID uuid.UUID) ([]*Transfer, error) {
	return s.admissions.ListTransfers(ctx, admissionID)
}
