package scheduling

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/events"
)

// BookingRequest asks for one slot.
type BookingRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Start     TimeOfDay
	Emergency bool
	Priority  int
	Reason    *string
}

// Book places an appointment into the requested slot. The occupancy check and
// the insert are one conditional write; a lost race against a concurrent
// caller for the same (doctor, date, time) key is retried with jittered
// backoff up to the configured bound, then surfaces ErrSlotConflict. Ties for
// the last emergency-reserved slot resolve first-arrival-wins.
func (s *Service) Book(ctx context.Context, caps auth.CapabilitySet, req BookingRequest) (*Appointment, error) {
	if err := caps.Require(auth.CapBookAppointment); err != nil {
		return nil, err
	}
	tmpl, err := s.validateBooking(ctx, req)
	if err != nil {
		return nil, err
	}

	var appt *Appointment
	err = s.withBookingRetry(ctx, func() error {
		a, err := s.buildAppointment(ctx, req, tmpl)
		if err != nil {
			return err
		}
		if err := s.appointments.CreateIfFree(ctx, a, tmpl.MaxPerSlot); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sink.Publish(events.New(events.TypeAppointmentBooked, appt.ID.String(), appt))
	return appt, nil
}

// Reschedule moves an appointment to a new slot. Cancelling the old slot and
// creating the new booking either both succeed or neither does.
func (s *Service) Reschedule(ctx context.Context, caps auth.CapabilitySet, apptID uuid.UUID, newDate time.Time, newStart TimeOfDay) (*Appointment, error) {
	if err := caps.Require(auth.CapBookAppointment); err != nil {
		return nil, err
	}
	old, err := s.appointments.GetByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !old.Status.CanTransitionTo(StatusRescheduled) {
		return nil, apperr.Transitionf("cannot reschedule appointment %s in status %s", old.ID, old.Status)
	}

	req := BookingRequest{
		PatientID: old.PatientID,
		DoctorID:  old.DoctorID,
		Date:      newDate,
		Start:     newStart,
		Emergency: old.Emergency,
		Priority:  old.Priority,
		Reason:    old.Reason,
	}
	tmpl, err := s.validateBooking(ctx, req)
	if err != nil {
		return nil, err
	}

	var repl *Appointment
	err = s.withBookingRetry(ctx, func() error {
		a, err := s.buildAppointment(ctx, req, tmpl)
		if err != nil {
			return err
		}
		a.RescheduledFrom = &old.ID
		if err := s.appointments.Reschedule(ctx, old, a, tmpl.MaxPerSlot); err != nil {
			return err
		}
		repl = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sink.Publish(events.New(events.TypeAppointmentRescheduled, repl.ID.String(), map[string]string{
		"from": old.ID.String(),
		"to":   repl.ID.String(),
	}))
	return repl, nil
}

// Cancel marks the appointment CANCELLED and frees its slot. The record is
// kept, never deleted.
func (s *Service) Cancel(ctx context.Context, caps auth.CapabilitySet, apptID uuid.UUID, reason string) (*Appointment, error) {
	if err := caps.Require(auth.CapCancelAppointment); err != nil {
		return nil, err
	}
	var cancelReason *string
	if reason != "" {
		cancelReason = &reason
	}
	appt, err := s.appointments.SetStatusIf(ctx, apptID, []Status{StatusScheduled, StatusConfirmed}, StatusCancelled, cancelReason)
	if err != nil {
		return nil, err
	}
	s.sink.Publish(events.New(events.TypeAppointmentCancelled, appt.ID.String(), appt))
	return appt, nil
}

// Confirm moves SCHEDULED to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, caps auth.CapabilitySet, apptID uuid.UUID) (*Appointment, error) {
	if err := caps.Require(auth.CapBookAppointment); err != nil {
		return nil, err
	}
	return s.appointments.SetStatusIf(ctx, apptID, []Status{StatusScheduled}, StatusConfirmed, nil)
}

// Complete moves CONFIRMED to COMPLETED.
func (s *Service) Complete(ctx context.Context, caps auth.CapabilitySet, apptID uuid.UUID) (*Appointment, error) {
	if err := caps.Require(auth.CapBookAppointment); err != nil {
		return nil, err
	}
	return s.appointments.SetStatusIf(ctx, apptID, []Status{StatusConfirmed}, StatusCompleted, nil)
}

// GetAppointment looks an appointment up by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// MarkNoShows transitions every SCHEDULED/CONFIRMED appointment whose slot
// has passed to NO_SHOW. Driven by an external scheduler; the engine keeps no
// timer of its own. Returns the number of appointments marked.
func (s *Service) MarkNoShows(ctx context.Context) (int, error) {
	overdue, err := s.appointments.ListOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, a := range overdue {
		updated, err := s.appointments.SetStatusIf(ctx, a.ID, []Status{StatusScheduled, StatusConfirmed}, StatusNoShow, nil)
		if err != nil {
			// Lost to a concurrent transition; the appointment no longer
			// qualifies, move on.
			if errors.Is(err, apperr.ErrInvalidTransition) || errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return marked, err
		}
		marked++
		s.sink.Publish(events.New(events.TypeAppointmentNoShow, updated.ID.String(), updated))
	}
	return marked, nil
}

// NoShowFlag reports whether the patient/doctor pair has reached the
// configured streak of consecutive NO_SHOW outcomes. Derived signal only;
// acting on it belongs to the caller.
func (s *Service) NoShowFlag(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	recent, err := s.appointments.ListPastPair(ctx, patientID, doctorID, s.clock.Now(), s.opts.NoShowStreak)
	if err != nil {
		return false, err
	}
	if len(recent) < s.opts.NoShowStreak {
		return false, nil
	}
	for _, a := range recent {
		if a.Status != StatusNoShow {
			return false, nil
		}
	}
	return true, nil
}

// validateBooking rejects malformed requests before any mutation and returns
// the template covering the requested slot.
func (s *Service) validateBooking(ctx context.Context, req BookingRequest) (*ScheduleTemplate, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validationf("patient_id is required")
	}
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Validationf("doctor_id is required")
	}
	day := DateOnly(req.Date)
	if day.IsZero() {
		return nil, apperr.Validationf("date is required")
	}
	if !req.Start.At(day).After(s.clock.Now()) {
		return nil, apperr.Validationf("cannot book a slot in the past")
	}

	tmpl, err := s.templateForSlot(ctx, req.DoctorID, day, req.Start)
	if err != nil {
		return nil, err
	}

	leaves, err := s.leaves.ListInRange(ctx, req.DoctorID, day, day)
	if err != nil {
		return nil, err
	}
	if leaveBlocks(leaves, day, req.Start, req.Start+TimeOfDay(tmpl.SlotMinutes)) {
		return nil, apperr.Conflictf("doctor is on leave at %s on %s", req.Start, day.Format("2006-01-02"))
	}

	if !req.Emergency {
		reserved, err := s.slotIsReserved(ctx, req.DoctorID, day, req.Start)
		if err != nil {
			return nil, err
		}
		if reserved {
			return nil, apperr.Conflictf("slot %s on %s is held for emergency bookings", req.Start, day.Format("2006-01-02"))
		}
	}
	return tmpl, nil
}

func (s *Service) templateForSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, start TimeOfDay) (*ScheduleTemplate, error) {
	templates, err := s.templates.ListByDoctor(ctx, doctorID, true)
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if !t.AppliesTo(day) {
			continue
		}
		step := TimeOfDay(t.SlotMinutes)
		if start < t.Start || start+step > t.End {
			continue
		}
		if (start-t.Start)%step != 0 {
			return nil, apperr.Validationf("time %s is not aligned to the %d-minute slot grid", start, t.SlotMinutes)
		}
		if t.InBreak(start) {
			return nil, apperr.Validationf("time %s falls in the doctor's break", start)
		}
		return t, nil
	}
	return nil, apperr.NotFoundf("no schedule covers doctor %s at %s on %s", doctorID, start, day.Format("2006-01-02"))
}

func (s *Service) slotIsReserved(ctx context.Context, doctorID uuid.UUID, day time.Time, start TimeOfDay) (bool, error) {
	templates, err := s.templates.ListByDoctor(ctx, doctorID, true)
	if err != nil {
		return false, err
	}
	leaves, err := s.leaves.ListInRange(ctx, doctorID, day, day)
	if err != nil {
		return false, err
	}
	appointments, err := s.appointments.ListByDoctorRange(ctx, doctorID, day, day)
	if err != nil {
		return false, err
	}
	open := s.carveDay(doctorID, day, s.clock.Now(), templates, leaves, appointments)
	return s.opts.Policy.Guards(open, start), nil
}

func (s *Service) buildAppointment(ctx context.Context, req BookingRequest, tmpl *ScheduleTemplate) (*Appointment, error) {
	number, err := s.nextAppointmentNumber(ctx)
	if err != nil {
		return nil, err
	}
	priority := req.Priority
	if req.Emergency {
		priority = 1
	} else if priority <= 0 {
		priority = 3
	}
	return &Appointment{
		Number:          number,
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		Date:            DateOnly(req.Date),
		Start:           req.Start,
		DurationMinutes: tmpl.SlotMinutes,
		Status:          StatusScheduled,
		Emergency:       req.Emergency,
		Priority:        priority,
		Reason:          req.Reason,
	}, nil
}

func (s *Service) nextAppointmentNumber(ctx context.Context) (string, error) {
	today := DateOnly(s.clock.Now())
	count, err := s.appointments.CountOnDate(ctx, today)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("APT-%s-%04d", today.Format("20060102"), count+1), nil
}

// withBookingRetry runs fn, retrying lost conditional-write races a bounded
// number of times with jittered backoff. All other errors pass through.
func (s *Service) withBookingRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !apperr.Retryable(err) {
			return err
		}
		if attempt == s.opts.MaxAttempts {
			break
		}
		wait := s.opts.Backoff + time.Duration(rand.Int63n(int64(s.opts.Backoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
