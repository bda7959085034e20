package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
)

// TimeOfDay is minutes from midnight. Appointment and template times are
// wall-clock times within a single day; dates carry no time component.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, apperr.Validationf("invalid time of day %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, apperr.Validationf("time of day %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// At combines the time of day with a date.
func (t TimeOfDay) At(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, time.UTC)
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekdayOf returns the day of week with 0=Monday .. 6=Sunday.
func WeekdayOf(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

// ScheduleTemplate maps to the schedule_template table. Templates are
// immutable once created; a change of hours is a new template with a new
// effective range and a deactivation of the old one.
type ScheduleTemplate struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	DoctorID       uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Weekday        int        `db:"weekday" json:"weekday"` // 0=Monday .. 6=Sunday
	Start          TimeOfDay  `db:"start_minute" json:"start"`
	End            TimeOfDay  `db:"end_minute" json:"end"`
	SlotMinutes    int        `db:"slot_minutes" json:"slot_minutes"`
	MaxPerSlot     int        `db:"max_per_slot" json:"max_per_slot"`
	BreakStart     *TimeOfDay `db:"break_start" json:"break_start,omitempty"`
	BreakEnd       *TimeOfDay `db:"break_end" json:"break_end,omitempty"`
	EffectiveFrom  time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveUntil *time.Time `db:"effective_until" json:"effective_until,omitempty"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// AppliesTo reports whether the template covers the given date.
func (t *ScheduleTemplate) AppliesTo(date time.Time) bool {
	d := DateOnly(date)
	if !t.Active || WeekdayOf(d) != t.Weekday {
		return false
	}
	if d.Before(DateOnly(t.EffectiveFrom)) {
		return false
	}
	if t.EffectiveUntil != nil && d.After(DateOnly(*t.EffectiveUntil)) {
		return false
	}
	return true
}

// InBreak reports whether a slot starting at start falls inside the
// template's break window.
func (t *ScheduleTemplate) InBreak(start TimeOfDay) bool {
	if t.BreakStart == nil || t.BreakEnd == nil {
		return false
	}
	return start >= *t.BreakStart && start < *t.BreakEnd
}

// LeaveStatus is the approval state of a leave interval.
type LeaveStatus string

const (
	LeavePending   LeaveStatus = "PENDING"
	LeaveApproved  LeaveStatus = "APPROVED"
	LeaveRejected  LeaveStatus = "REJECTED"
	LeaveCancelled LeaveStatus = "CANCELLED"
)

// LeaveInterval maps to the leave_interval table. Only APPROVED leaves affect
// availability.
type LeaveInterval struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	DoctorID   uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	StartDate  time.Time   `db:"start_date" json:"start_date"`
	EndDate    time.Time   `db:"end_date" json:"end_date"`
	StartTime  *TimeOfDay  `db:"start_time" json:"start_time,omitempty"`
	EndTime    *TimeOfDay  `db:"end_time" json:"end_time,omitempty"`
	Type       string      `db:"leave_type" json:"leave_type"`
	Reason     *string     `db:"reason" json:"reason,omitempty"`
	Status     LeaveStatus `db:"status" json:"status"`
	ApprovedBy *uuid.UUID  `db:"approved_by" json:"approved_by,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// Blocks reports whether the leave removes a slot [slotStart, slotEnd) on the
// given date. A partial overlap blocks the whole slot; only APPROVED leaves
// block anything.
func (l *LeaveInterval) Blocks(date time.Time, slotStart, slotEnd TimeOfDay) bool {
	if l.Status != LeaveApproved {
		return false
	}
	d := DateOnly(date)
	if d.Before(DateOnly(l.StartDate)) || d.After(DateOnly(l.EndDate)) {
		return false
	}
	// Full-day leave unless a time window is set.
	if l.StartTime == nil || l.EndTime == nil {
		return true
	}
	return slotStart < *l.EndTime && slotEnd > *l.StartTime
}

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled   Status = "SCHEDULED"
	StatusConfirmed   Status = "CONFIRMED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusNoShow      Status = "NO_SHOW"
	StatusRescheduled Status = "RESCHEDULED"
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
}

// CanTransitionTo reports whether the state machine allows s -> next.
// COMPLETED, CANCELLED, NO_SHOW and RESCHEDULED are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Appointment maps to the appointment table. No more appointments for the
// same doctor with overlapping [start, start+duration) may hold a status in
// {SCHEDULED, CONFIRMED} than the template's per-slot capacity allows.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Number          string     `db:"number" json:"number"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Date            time.Time  `db:"appointment_date" json:"date"`
	Start           TimeOfDay  `db:"start_minute" json:"start"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          Status     `db:"status" json:"status"`
	Emergency       bool       `db:"is_emergency" json:"is_emergency"`
	Priority        int        `db:"priority" json:"priority"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	CancelReason    *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	RescheduledTo   *uuid.UUID `db:"rescheduled_to" json:"rescheduled_to,omitempty"`
	RescheduledFrom *uuid.UUID `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// End returns the exclusive end of the appointment's interval.
func (a *Appointment) End() TimeOfDay {
	return a.Start + TimeOfDay(a.DurationMinutes)
}

// Occupies reports whether the appointment holds its slot.
func (a *Appointment) Occupies() bool {
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}

// Overlaps reports whether the appointment's interval intersects
// [start, end) on the given date.
func (a *Appointment) Overlaps(date time.Time, start, end TimeOfDay) bool {
	if !DateOnly(a.Date).Equal(DateOnly(date)) {
		return false
	}
	return a.Start < end && a.End() > start
}

// SlotView is one bookable interval produced by the availability calculator.
type SlotView struct {
	DoctorID      uuid.UUID `json:"doctor_id"`
	Date          time.Time `json:"date"`
	Start         TimeOfDay `json:"start"`
	End           TimeOfDay `json:"end"`
	Remaining     int       `json:"remaining"`
	EmergencyOnly bool      `json:"emergency_only"`
}
