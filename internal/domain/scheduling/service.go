package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/events"
)

// Options tunes the booking coordinator.
type Options struct {
	Policy             EmergencyReservationPolicy
	MaxAttempts        int           // bounded retry on lost booking races
	Backoff            time.Duration // base jittered backoff between attempts
	DefaultSlotMinutes int
	NoShowStreak       int // consecutive no-shows that raise the flag
}

func (o *Options) defaults() {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 25 * time.Millisecond
	}
	if o.DefaultSlotMinutes <= 0 {
		o.DefaultSlotMinutes = 30
	}
	if o.NoShowStreak <= 0 {
		o.NoShowStreak = 3
	}
}

// Service is the scheduling engine: availability calculation, conflict-free
// booking and schedule/leave management for doctors.
type Service struct {
	templates    TemplateRepository
	leaves       LeaveRepository
	appointments AppointmentRepository
	clock        clock.Clock
	sink         events.Sink
	opts         Options
}

func NewService(templates TemplateRepository, leaves LeaveRepository, appointments AppointmentRepository, clk clock.Clock, sink events.Sink, opts Options) *Service {
	opts.defaults()
	if clk == nil {
		clk = clock.System{}
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &Service{
		templates:    templates,
		leaves:       leaves,
		appointments: appointments,
		clock:        clk,
		sink:         sink,
		opts:         opts,
	}
}

// -- Schedule templates --

func (s *Service) CreateTemplate(ctx context.Context, caps auth.CapabilitySet, t *ScheduleTemplate) error {
	if err := caps.Require(auth.CapManageSchedule); err != nil {
		return err
	}
	if t.DoctorID == uuid.Nil {
		return apperr.Validationf("doctor_id is required")
	}
	if t.Weekday < 0 || t.Weekday > 6 {
		return apperr.Validationf("weekday must be between 0 (Monday) and 6 (Sunday), got %d", t.Weekday)
	}
	if t.Start >= t.End {
		return apperr.Validationf("start time %s must be before end time %s", t.Start, t.End)
	}
	if t.SlotMinutes <= 0 {
		t.SlotMinutes = s.opts.DefaultSlotMinutes
	}
	if t.MaxPerSlot <= 0 {
		t.MaxPerSlot = 1
	}
	if (t.BreakStart == nil) != (t.BreakEnd == nil) {
		return apperr.Validationf("break window requires both start and end")
	}
	if t.BreakStart != nil && *t.BreakStart >= *t.BreakEnd {
		return apperr.Validationf("break start %s must be before break end %s", *t.BreakStart, *t.BreakEnd)
	}
	if t.EffectiveFrom.IsZero() {
		return apperr.Validationf("effective_from is required")
	}
	t.Active = true

	// Templates are immutable; overlapping an existing active template for
	// the same weekday is a conflict, supersede it instead.
	existing, err := s.templates.ListByDoctor(ctx, t.DoctorID, true)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.Weekday == t.Weekday && effectiveRangesOverlap(t, other) {
			return apperr.Conflictf("active template %s already covers weekday %d", other.ID, t.Weekday)
		}
	}
	return s.templates.Create(ctx, t)
}

func effectiveRangesOverlap(a, b *ScheduleTemplate) bool {
	aFrom, bFrom := DateOnly(a.EffectiveFrom), DateOnly(b.EffectiveFrom)
	if a.EffectiveUntil != nil && DateOnly(*a.EffectiveUntil).Before(bFrom) {
		return false
	}
	if b.EffectiveUntil != nil && DateOnly(*b.EffectiveUntil).Before(aFrom) {
		return false
	}
	return true
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*ScheduleTemplate, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]*ScheduleTemplate, error) {
	return s.templates.ListByDoctor(ctx, doctorID, activeOnly)
}

// SupersedeTemplate deactivates the old template and creates its replacement.
// The old template record stays for history.
func (s *Service) SupersedeTemplate(ctx context.Context, caps auth.CapabilitySet, oldID uuid.UUID, repl *ScheduleTemplate) error {
	if err := caps.Require(auth.CapManageSchedule); err != nil {
		return err
	}
	if err := s.templates.Deactivate(ctx, oldID); err != nil {
		return err
	}
	return s.CreateTemplate(ctx, caps, repl)
}

// -- Leaves --

func (s *Service) RequestLeave(ctx context.Context, caps auth.CapabilitySet, l *LeaveInterval) error {
	if err := caps.Require(auth.CapManageSchedule); err != nil {
		return err
	}
	if l.DoctorID == uuid.Nil {
		return apperr.Validationf("doctor_id is required")
	}
	if l.StartDate.IsZero() || l.EndDate.IsZero() {
		return apperr.Validationf("start_date and end_date are required")
	}
	if DateOnly(l.EndDate).Before(DateOnly(l.StartDate)) {
		return apperr.Validationf("end_date before start_date")
	}
	if (l.StartTime == nil) != (l.EndTime == nil) {
		return apperr.Validationf("partial-day leave requires both start_time and end_time")
	}
	if l.StartTime != nil && *l.StartTime >= *l.EndTime {
		return apperr.Validationf("leave start_time %s must be before end_time %s", *l.StartTime, *l.EndTime)
	}
	l.Status = LeavePending
	return s.leaves.Create(ctx, l)
}

func (s *Service) ApproveLeave(ctx context.Context, caps auth.CapabilitySet, id, approvedBy uuid.UUID) (*LeaveInterval, error) {
	if err := caps.Require(auth.CapManageSchedule); err != nil {
		return nil, err
	}
	return s.leaves.SetStatusIf(ctx, id, []LeaveStatus{LeavePending}, LeaveApproved, &approvedBy)
}

func (s *Service) RejectLeave(ctx context.Context, caps auth.CapabilitySet, id, rejectedBy uuid.UUID) (*LeaveInterval, error) {
	if err := caps.Require(auth.CapManageSchedule); err != nil {
		return nil, err
	}
	return s.leaves.SetStatusIf(ctx, id, []LeaveStatus{LeavePending}, LeaveRejected, &rejectedBy)
}

func (s *Service) CancelLeave(ctx context.Context, caps auth.CapabilitySet, id uuid.UUID) (*LeaveInterval, error) {
	if err := caps.Require(auth.CapManageSchedule); err != nil {
		return nil, err
	}
	return s.leaves.SetStatusIf(ctx, id, []LeaveStatus{LeavePending, LeaveApproved}, LeaveCancelled, nil)
}

func (s *Service) ListLeaves(ctx context.Context, doctorID uuid.UUID) ([]*LeaveInterval, error) {
	return s.leaves.ListByDoctor(ctx, doctorID)
}
