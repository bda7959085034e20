package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/events"
)

// Service sequences the per-doctor daily call order. Queue numbers come from
// an atomic per-(doctor, date) counter in the store, so they stay contiguous
// under concurrent check-ins across processes.
type Service struct {
	repo  Repository
	clock clock.Clock
	sink  events.Sink
}

func NewService(repo Repository, clk clock.Clock, sink events.Sink) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &Service{repo: repo, clock: clk, sink: sink}
}

// CheckIn enters a booked appointment into today's queue. The appointment
// must still hold its slot and be scheduled for today; checking in twice
// returns the conflict, not a second number.
func (s *Service) CheckIn(ctx context.Context, caps auth.CapabilitySet, appt *scheduling.Appointment) (*Entry, error) {
	if err := caps.Require(auth.CapManageQueue); err != nil {
		return nil, err
	}
	if appt == nil {
		return nil, apperr.Validationf("appointment is required")
	}
	if !appt.Occupies() {
		return nil, apperr.Transitionf("appointment %s in status %s cannot check in", appt.ID, appt.Status)
	}
	today := scheduling.DateOnly(s.clock.Now())
	if !scheduling.DateOnly(appt.Date).Equal(today) {
		return nil, apperr.Validationf("appointment %s is not scheduled for today", appt.ID)
	}
	if existing, err := s.repo.FindByAppointment(ctx, appt.ID); err == nil {
		return nil, apperr.Conflictf("appointment %s already checked in as number %d", appt.ID, existing.Number)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	entryType := TypeScheduled
	if appt.Emergency {
		entryType = TypeEmergency
	}
	e := &Entry{
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		AppointmentID: &appt.ID,
		QueueDate:     today,
		Type:          entryType,
		Emergency:     appt.Emergency,
		Status:        StatusWaiting,
		CheckedInAt:   s.clock.Now(),
	}
	if err := s.repo.CheckIn(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddWalkIn enters a patient without an appointment. Walk-ins share the
// day's counter with scheduled check-ins.
func (s *Service) AddWalkIn(ctx context.Context, caps auth.CapabilitySet, patientID, doctorID uuid.UUID, emergency bool) (*Entry, error) {
	if err := caps.Require(auth.CapManageQueue); err != nil {
		return nil, err
	}
	if patientID == uuid.Nil {
		return nil, apperr.Validationf("patient_id is required")
	}
	if doctorID == uuid.Nil {
		return nil, apperr.Validationf("doctor_id is required")
	}

	entryType := TypeWalkIn
	if emergency {
		entryType = TypeEmergency
	}
	e := &Entry{
		DoctorID:    doctorID,
		PatientID:   patientID,
		QueueDate:   scheduling.DateOnly(s.clock.Now()),
		Type:        entryType,
		Emergency:   emergency,
		Status:      StatusWaiting,
		CheckedInAt: s.clock.Now(),
	}
	if err := s.repo.CheckIn(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CallNext claims the next waiting entry for the doctor's queue on the given
// date, emergencies ahead of everyone else, then lowest number. An empty
// queue returns (nil, nil).
func (s *Service) CallNext(ctx context.Context, caps auth.CapabilitySet, doctorID uuid.UUID, date time.Time) (*Entry, error) {
	if err := caps.Require(auth.CapManageQueue); err != nil {
		return nil, err
	}
	if doctorID == uuid.Nil {
		return nil, apperr.Validationf("doctor_id is required")
	}
	e, err := s.repo.CallNext(ctx, doctorID, date, s.clock.Now())
	if err != nil || e == nil {
		return nil, err
	}
	s.sink.Publish(events.New(events.TypeQueueCalled, e.ID.String(), e))
	return e, nil
}

// StartConsultation moves a called entry into the consultation room.
func (s *Service) StartConsultation(ctx context.Context, caps auth.CapabilitySet, id uuid.UUID) (*Entry, error) {
	if err := caps.Require(auth.CapManageQueue); err != nil {
		return nil, err
	}
	return s.repo.SetStatusIf(ctx, id, []EntryStatus{StatusCalled}, StatusInConsultation, s.clock.Now())
}

// Complete finishes a consultation. A called entry that never reached the
// room may complete directly.
func (s *Service) Complete(ctx context.Context, caps auth.CapabilitySet, id uuid.UUID) (*Entry, error) {
	if err := caps.Require(auth.CapManageQueue); err != nil {
		return nil, err
	}
	return s.repo.SetStatusIf(ctx, id, []EntryStatus{StatusCalled, StatusInConsultation}, StatusDone, s.clock.Now())
}

// Skip removes a no-answer entry from the call order. The number is not
// reissued.
func (s *Service) Skip(ctx context.Context, caps auth.CapabilitySet, id uuid.UUID) (*Entry, error) {
	if err := caps.Require(auth.CapManageQueue); err != nil {
		return nil, err
	}
	return s.repo.SetStatusIf(ctx, id, []EntryStatus{StatusWaiting, StatusCalled}, StatusSkipped, s.clock.Now())
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Entry, error) {
	return s.repo.ListByDoctorDate(ctx, doctorID, date)
}

func (s *Service) WaitingCount(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	return s.repo.WaitingCount(ctx, doctorID, date)
}
