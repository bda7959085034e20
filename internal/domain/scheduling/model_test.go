package scheduling

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in   string
		want TimeOfDay
		ok   bool
	}{
		{"09:00", 540, true},
		{"00:00", 0, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"09:60", 0, false},
		{"bogus", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseTimeOfDay(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseTimeOfDay(%q) expected error", tc.in)
		}
	}

	if got := TimeOfDay(570).String(); got != "09:30" {
		t.Errorf("String() = %q, want 09:30", got)
	}
}

func TestWeekdayOf(t *testing.T) {
	// 2026-03-02 is a Monday, 2026-03-08 a Sunday.
	if got := WeekdayOf(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)); got != 0 {
		t.Errorf("expected Monday=0, got %d", got)
	}
	if got := WeekdayOf(time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)); got != 6 {
		t.Errorf("expected Sunday=6, got %d", got)
	}
}

func TestTemplateAppliesTo(t *testing.T) {
	until := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	tmpl := &ScheduleTemplate{
		Weekday:        0,
		Start:          540,
		End:            720,
		EffectiveFrom:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EffectiveUntil: &until,
		Active:         true,
	}

	mon := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !tmpl.AppliesTo(mon) {
		t.Error("expected template to apply to a Monday inside the range")
	}
	if tmpl.AppliesTo(mon.AddDate(0, 0, 1)) {
		t.Error("expected template not to apply on a Tuesday")
	}
	if tmpl.AppliesTo(time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected template not to apply past effective_until")
	}
	tmpl.Active = false
	if tmpl.AppliesTo(mon) {
		t.Error("expected inactive template not to apply")
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusConfirmed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}

	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	if StatusScheduled.Terminal() {
		t.Error("expected SCHEDULED not to be terminal")
	}
}

func TestLeaveBlocks(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	full := &LeaveInterval{StartDate: day, EndDate: day, Status: LeaveApproved}

	if !full.Blocks(day, 540, 570) {
		t.Error("expected full-day leave to block")
	}
	if full.Blocks(day.AddDate(0, 0, 1), 540, 570) {
		t.Error("expected leave not to block the next day")
	}

	full.Status = LeavePending
	if full.Blocks(day, 540, 570) {
		t.Error("expected pending leave not to block")
	}

	start, end := TimeOfDay(600), TimeOfDay(660)
	partial := &LeaveInterval{StartDate: day, EndDate: day, StartTime: &start, EndTime: &end, Status: LeaveApproved}
	if partial.Blocks(day, 540, 570) {
		t.Error("expected slot before the window to pass")
	}
	if !partial.Blocks(day, 570, 630) {
		t.Error("expected partially overlapping slot to be blocked")
	}
	if !partial.Blocks(day, 600, 630) {
		t.Error("expected slot inside the window to be blocked")
	}
	if partial.Blocks(day, 660, 690) {
		t.Error("expected slot after the window to pass")
	}
}

func TestAppointmentOverlaps(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a := &Appointment{Date: day, Start: 540, DurationMinutes: 30, Status: StatusScheduled}

	if !a.Overlaps(day, 540, 570) {
		t.Error("expected exact interval to overlap")
	}
	if !a.Overlaps(day, 555, 585) {
		t.Error("expected straddling interval to overlap")
	}
	if a.Overlaps(day, 570, 600) {
		t.Error("expected adjacent interval not to overlap")
	}
	if a.Overlaps(day.AddDate(0, 0, 1), 540, 570) {
		t.Error("expected different day not to overlap")
	}

	if !a.Occupies() {
		t.Error("expected SCHEDULED to occupy its slot")
	}
	a.Status = StatusCancelled
	if a.Occupies() {
		t.Error("expected CANCELLED not to occupy its slot")
	}
}
