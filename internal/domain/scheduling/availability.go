package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

// AvailabilityOptions qualifies a slot computation.
type AvailabilityOptions struct {
	// Emergency marks the caller's request as emergency-flagged; reserved
	// slots are then offered like any other.
	Emergency bool
}

// ComputeSlots derives the bookable slots for a doctor over [from, to]
// inclusive. Pure read: template windows are carved into fixed slots, slots
// overlapping an APPROVED leave or held to capacity by SCHEDULED/CONFIRMED
// appointments are dropped, and the trailing reserve of each day is tagged
// emergency-only per the reservation policy. An uneven remainder at the end
// of a window is dropped, not rounded. Slots already in the past relative to
// the injected clock are omitted.
func (s *Service) ComputeSlots(ctx context.Context, caps auth.CapabilitySet, doctorID uuid.UUID, from, to time.Time, opts AvailabilityOptions) ([]SlotView, error) {
	if err := caps.Require(auth.CapViewAvailability); err != nil {
		return nil, err
	}
	var out []SlotView
	err := s.ForEachDay(ctx, doctorID, from, to, opts, func(daySlots []SlotView) bool {
		out = append(out, daySlots...)
		return true
	})
	return out, err
}

// ForEachDay streams one day's slots at a time so large ranges never
// materialize at once. The walk stops early when fn returns false. Restarting
// simply recomputes from current state.
func (s *Service) ForEachDay(ctx context.Context, doctorID uuid.UUID, from, to time.Time, opts AvailabilityOptions, fn func(daySlots []SlotView) bool) error {
	if doctorID == uuid.Nil {
		return apperr.Validationf("doctor_id is required")
	}
	fromDay, toDay := DateOnly(from), DateOnly(to)
	if toDay.Before(fromDay) {
		return apperr.Validationf("date range end %s before start %s", toDay.Format("2006-01-02"), fromDay.Format("2006-01-02"))
	}

	templates, err := s.templates.ListByDoctor(ctx, doctorID, true)
	if err != nil {
		return err
	}
	leaves, err := s.leaves.ListInRange(ctx, doctorID, fromDay, toDay)
	if err != nil {
		return err
	}
	appointments, err := s.appointments.ListByDoctorRange(ctx, doctorID, fromDay, toDay)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		daySlots := s.carveDay(doctorID, day, now, templates, leaves, appointments)
		daySlots = s.opts.Policy.Apply(daySlots, opts.Emergency)
		if !fn(daySlots) {
			return nil
		}
	}
	return nil
}

// carveDay produces the open slots of a single day in start order, with no
// reservation policy applied.
func (s *Service) carveDay(doctorID uuid.UUID, day, now time.Time, templates []*ScheduleTemplate, leaves []*LeaveInterval, appointments []*Appointment) []SlotView {
	var slots []SlotView
	for _, t := range templates {
		if !t.AppliesTo(day) {
			continue
		}
		step := TimeOfDay(t.SlotMinutes)
		for start := t.Start; start+step <= t.End; start += step {
			end := start + step
			if t.InBreak(start) {
				continue
			}
			if !start.At(day).After(now) {
				continue
			}
			if leaveBlocks(leaves, day, start, end) {
				continue
			}
			remaining := t.MaxPerSlot - occupiedCount(appointments, day, start, end)
			if remaining <= 0 {
				continue
			}
			slots = append(slots, SlotView{
				DoctorID:  doctorID,
				Date:      day,
				Start:     start,
				End:       end,
				Remaining: remaining,
			})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots
}

func leaveBlocks(leaves []*LeaveInterval, day time.Time, start, end TimeOfDay) bool {
	for _, l := range leaves {
		if l.Blocks(day, start, end) {
			return true
		}
	}
	return false
}

func occupiedCount(appointments []*Appointment, day time.Time, start, end TimeOfDay) int {
	n := 0
	for _, a := range appointments {
		if a.Occupies() && a.Overlaps(day, start, end) {
			n++
		}
	}
	return n
}
