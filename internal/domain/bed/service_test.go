package bed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/events"
)

// -- Mock Repositories --

// mockState is the shared store behind the three repository mocks. A single
// mutex stands in for the database transaction, so multi-row operations stay
// atomic under the concurrency tests.
type mockState struct {
	mu         sync.Mutex
	wards      map[uuid.UUID]*Ward
	beds       map[uuid.UUID]*Bed
	admissions map[uuid.UUID]*Admission
	transfers  []*Transfer
}

func newMockState() *mockState {
	return &mockState{
		wards:      make(map[uuid.UUID]*Ward),
		beds:       make(map[uuid.UUID]*Bed),
		admissions: make(map[uuid.UUID]*Admission),
	}
}

type mockWardRepo struct{ st *mockState }

func (m *mockWardRepo) Create(_ context.Context, w *Ward) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	w.ID = uuid.New()
	cp := *w
	m.st.wards[w.ID] = &cp
	return nil
}

func (m *mockWardRepo) GetByID(_ context.Context, id uuid.UUID) (*Ward, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	w, ok := m.st.wards[id]
	if !ok {
		return nil, apperr.NotFoundf("ward %s not found", id)
	}
	cp := *w
	return &cp, nil
}

func (m *mockWardRepo) List(_ context.Context) ([]*Ward, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []*Ward
	for _, w := range m.st.wards {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

type mockBedRepo struct{ st *mockState }

func (m *mockBedRepo) Create(_ context.Context, b *Bed) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	b.ID = uuid.New()
	cp := *b
	m.st.beds[b.ID] = &cp
	w := m.st.wards[b.WardID]
	w.TotalBeds++
	if b.Status == StatusAvailable {
		w.AvailableBeds++
	}
	return nil
}

func (m *mockBedRepo) GetByID(_ context.Context, id uuid.UUID) (*Bed, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	b, ok := m.st.beds[id]
	if !ok {
		return nil, apperr.NotFoundf("bed %s not found", id)
	}
	cp := *b
	return &cp, nil
}

func (m *mockBedRepo) ListByWard(_ context.Context, wardID uuid.UUID) ([]*Bed, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []*Bed
	for _, b := range m.st.beds {
		if b.WardID == wardID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *mockBedRepo) SetStatusIf(_ context.Context, id uuid.UUID, expect []BedStatus, to BedStatus) (*Bed, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	b, ok := m.st.beds[id]
	if !ok {
		return nil, apperr.NotFoundf("bed %s not found", id)
	}
	matched := false
	for _, s := range expect {
		if b.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, apperr.Transitionf("bed %s in status %s cannot move to %s", id, b.Status, to)
	}
	w := m.st.wards[b.WardID]
	if b.Status == StatusAvailable && to != StatusAvailable {
		w.AvailableBeds--
	}
	if b.Status != StatusAvailable && to == StatusAvailable {
		w.AvailableBeds++
	}
	b.Status = to
	cp := *b
	return &cp, nil
}

type mockAdmissionRepo struct{ st *mockState }

func (m *mockAdmissionRepo) Admit(_ context.Context, a *Admission, pref BedType) error {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var claimed *Bed
	var candidates []*Bed
	for _, b := range m.st.beds {
		if b.WardID == a.WardID && b.Status == StatusAvailable {
			candidates = append(candidates, b)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if (candidates[i].Type == pref) != (candidates[j].Type == pref) {
			return candidates[i].Type == pref
		}
		return candidates[i].Number < candidates[j].Number
	})
	if len(candidates) > 0 {
		claimed = candidates[0]
	}
	if claimed == nil {
		return apperr.Capacityf("ward %s has no free bed", a.WardID)
	}

	claimed.Status = StatusOccupied
	m.st.wards[a.WardID].AvailableBeds--
	a.ID = uuid.New()
	a.BedID = claimed.ID
	a.Status = AdmissionActive
	cp := *a
	m.st.admissions[a.ID] = &cp
	return nil
}

func (m *mockAdmissionRepo) GetByID(_ context.Context, id uuid.UUID) (*Admission, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	a, ok := m.st.admissions[id]
	if !ok {
		return nil, apperr.NotFoundf("admission %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockAdmissionRepo) ListActiveByWard(_ context.Context, wardID uuid.UUID) ([]*Admission, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []*Admission
	for _, a := range m.st.admissions {
		if a.WardID == wardID && a.Status == AdmissionActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAdmissionRepo) Release(_ context.Context, admissionID uuid.UUID, at time.Time) (*Admission, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	a, ok := m.st.admissions[admissionID]
	if !ok {
		return nil, apperr.NotFoundf("admission %s not found", admissionID)
	}
	if a.Status != AdmissionActive {
		return nil, apperr.Transitionf("admission %s is already discharged", admissionID)
	}
	a.Status = AdmissionDischarged
	a.DischargedAt = &at
	if b := m.st.beds[a.BedID]; b != nil && b.Status == StatusOccupied {
		b.Status = StatusAvailable
		m.st.wards[b.WardID].AvailableBeds++
	}
	cp := *a
	return &cp, nil
}

func (m *mockAdmissionRepo) Transfer(_ context.Context, admissionID, toBedID uuid.UUID, reason *string, at time.Time) (*Transfer, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	a, ok := m.st.admissions[admissionID]
	if !ok {
		return nil, apperr.NotFoundf("admission %s not found", admissionID)
	}
	if a.Status != AdmissionActive {
		return nil, apperr.Transitionf("admission %s is not active", admissionID)
	}
	target, ok := m.st.beds[toBedID]
	if !ok || target.Status != StatusAvailable {
		return nil, apperr.Unavailablef("bed %s is not available", toBedID)
	}

	target.Status = StatusOccupied
	m.st.wards[target.WardID].AvailableBeds--
	old := m.st.beds[a.BedID]
	old.Status = StatusAvailable
	m.st.wards[old.WardID].AvailableBeds++
	fromBedID := a.BedID
	a.BedID = toBedID
	a.WardID = target.WardID

	tr := &Transfer{
		ID:            uuid.New(),
		AdmissionID:   admissionID,
		FromBedID:     fromBedID,
		ToBedID:       toBedID,
		Reason:        reason,
		TransferredAt: at,
	}
	m.st.transfers = append(m.st.transfers, tr)
	cp := *tr
	return &cp, nil
}

func (m *mockAdmissionRepo) ListTransfers(_ context.Context, admissionID uuid.UUID) ([]*Transfer, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []*Transfer
	for _, tr := range m.st.transfers {
		if tr.AdmissionID == admissionID {
			cp := *tr
			out = append(out, &cp)
		}
	}
	return out, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureSink) Publish(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) countByType(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, ev := range c.events {
		if ev.Type == eventType {
			count++
		}
	}
	return count
}

// -- Fixture --

var testCaps = auth.NewCapabilitySet("tester", "*")

type fixture struct {
	st   *mockState
	sink *captureSink
	svc  *Service
}

func newFixture() *fixture {
	st := newMockState()
	sink := &captureSink{}
	svc := NewService(
		&mockWardRepo{st: st},
		&mockBedRepo{st: st},
		&mockAdmissionRepo{st: st},
		clock.NewFixed(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
		sink,
	)
	return &fixture{st: st, sink: sink, svc: svc}
}

// ward creates a ward holding the given beds, returning the ward id and the
// bed ids in argument order.
func (f *fixture) ward(t *testing.T, types ...BedType) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	w := &Ward{Name: "General A", Floor: 2}
	if err := f.svc.CreateWard(ctx, testCaps, w); err != nil {
		t.Fatalf("create ward: %v", err)
	}
	ids := make([]uuid.UUID, len(types))
	for i, bt := range types {
		b := &Bed{WardID: w.ID, Number: fmt.Sprintf("%s-%02d", "A", i+1), Type: bt}
		if err := f.svc.AddBed(ctx, testCaps, b); err != nil {
			t.Fatalf("add bed: %v", err)
		}
		ids[i] = b.ID
	}
	return w.ID, ids
}

func (f *fixture) availableCount(t *testing.T, wardID uuid.UUID) int {
	t.Helper()
	w, err := f.svc.GetWard(context.Background(), wardID)
	if err != nil {
		t.Fatalf("get ward: %v", err)
	}
	return w.AvailableBeds
}

// -- Tests --

func TestAdmitPrefersRequestedType(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, beds := f.ward(t, TypeGeneral, TypeICU)

	a, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeICU, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.BedID != beds[1] {
		t.Error("expected the ICU bed to be claimed")
	}
	if a.Status != AdmissionActive {
		t.Errorf("expected ACTIVE admission, got %s", a.Status)
	}
	if got := f.availableCount(t, wardID); got != 1 {
		t.Errorf("expected 1 available bed, got %d", got)
	}
	if f.sink.countByType(events.TypeBedAdmitted) != 1 {
		t.Error("expected a bed.admitted event")
	}
}

func TestAdmitFallsBackToAnyBed(t *testing.T) {
	f := newFixture()
	wardID, beds := f.ward(t, TypeGeneral)

	a, err := f.svc.Admit(context.Background(), testCaps, uuid.New(), wardID, TypeICU, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.BedID != beds[0] {
		t.Error("expected the general bed despite the ICU preference")
	}
}

func TestAdmitFullWard(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, _ := f.ward(t, TypeGeneral)

	if _, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil)
	if !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	if got := f.availableCount(t, wardID); got != 0 {
		t.Errorf("expected 0 available beds, got %d", got)
	}
}

func TestAdmitConcurrentRespectsCapacity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, _ := f.ward(t, TypeGeneral, TypeGeneral, TypeGeneral)

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, apperr.ErrCapacityExceeded):
		default:
			t.Errorf("caller %d: unexpected error %v", i, err)
		}
	}
	if admitted != 3 {
		t.Fatalf("expected exactly 3 admissions, got %d", admitted)
	}
	if got := f.availableCount(t, wardID); got != 0 {
		t.Errorf("expected 0 available beds, got %d", got)
	}
}

func TestReleaseRestoresBed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, beds := f.ward(t, TypeGeneral)

	a, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	released, err := f.svc.Release(ctx, testCaps, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released.Status != AdmissionDischarged || released.DischargedAt == nil {
		t.Errorf("expected DISCHARGED with timestamp, got %+v", released)
	}
	if got := f.availableCount(t, wardID); got != 1 {
		t.Errorf("expected bed returned to the pool, available=%d", got)
	}
	f.st.mu.Lock()
	status := f.st.beds[beds[0]].Status
	f.st.mu.Unlock()
	if status != StatusAvailable {
		t.Errorf("expected bed AVAILABLE, got %s", status)
	}
	if f.sink.countByType(events.TypeBedDischarged) != 1 {
		t.Error("expected a bed.discharged event")
	}

	// Releasing twice is a transition error.
	if _, err := f.svc.Release(ctx, testCaps, a.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, beds := f.ward(t, TypeGeneral, TypePrivate)

	a, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr, err := f.svc.Transfer(ctx, testCaps, a.ID, beds[1], nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.FromBedID != beds[0] || tr.ToBedID != beds[1] {
		t.Errorf("unexpected transfer record %+v", tr)
	}

	moved, err := f.svc.GetAdmission(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.BedID != beds[1] {
		t.Error("expected admission to reference the new bed")
	}

	f.st.mu.Lock()
	oldStatus, newStatus := f.st.beds[beds[0]].Status, f.st.beds[beds[1]].Status
	f.st.mu.Unlock()
	if oldStatus != StatusAvailable || newStatus != StatusOccupied {
		t.Errorf("expected beds swapped, got old=%s new=%s", oldStatus, newStatus)
	}
	if got := f.availableCount(t, wardID); got != 1 {
		t.Errorf("expected available count unchanged at 1, got %d", got)
	}

	history, err := f.svc.ListTransfers(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 transfer in history, got %d", len(history))
	}
	if f.sink.countByType(events.TypeBedTransferred) != 1 {
		t.Error("expected a bed.transferred event")
	}
}

func TestTransferUnavailableTargetChangesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, beds := f.ward(t, TypeGeneral, TypeGeneral)

	a, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = f.svc.Transfer(ctx, testCaps, a.ID, b.BedID, nil)
	if !errors.Is(err, apperr.ErrBedUnavailable) {
		t.Fatalf("expected bed unavailable, got %v", err)
	}

	unchanged, err := f.svc.GetAdmission(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unchanged.BedID != beds[0] {
		t.Error("expected failed transfer to leave the admission in place")
	}
	if got := f.availableCount(t, wardID); got != 0 {
		t.Errorf("expected counts untouched, available=%d", got)
	}
	history, err := f.svc.ListTransfers(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected no transfer history, got %d", len(history))
	}
}

func TestMaintenanceTakesBedOutOfService(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, beds := f.ward(t, TypeGeneral)

	if _, err := f.svc.StartMaintenance(ctx, testCaps, beds[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.availableCount(t, wardID); got != 0 {
		t.Errorf("expected 0 available during maintenance, got %d", got)
	}

	if _, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil); !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Fatalf("expected maintenance bed to be unallocatable, got %v", err)
	}

	if _, err := f.svc.EndMaintenance(ctx, testCaps, beds[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.availableCount(t, wardID); got != 1 {
		t.Errorf("expected bed back in service, available=%d", got)
	}

	// An occupied bed cannot enter maintenance.
	if _, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.StartMaintenance(ctx, testCaps, beds[0]); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestReserveAndUnreserve(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, beds := f.ward(t, TypeGeneral)

	reserved, err := f.svc.Reserve(ctx, testCaps, beds[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reserved.Status != StatusReserved {
		t.Errorf("expected RESERVED, got %s", reserved.Status)
	}
	if _, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeGeneral, nil, nil); !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Fatalf("expected reserved bed to be unallocatable, got %v", err)
	}

	if _, err := f.svc.Unreserve(ctx, testCaps, beds[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.availableCount(t, wardID); got != 1 {
		t.Errorf("expected bed released from the hold, available=%d", got)
	}
}

func TestOccupancy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, beds := f.ward(t, TypeGeneral, TypeGeneral, TypeICU, TypePrivate)

	if _, err := f.svc.Admit(ctx, testCaps, uuid.New(), wardID, TypeICU, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.StartMaintenance(ctx, testCaps, beds[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.Reserve(ctx, testCaps, beds[3]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	occ, err := f.svc.Occupancy(ctx, wardID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := WardOccupancy{WardID: wardID, Name: occ.Name, Total: 4, Available: 1, Occupied: 1, Maintenance: 1, Reserved: 1}
	if *occ != want {
		t.Errorf("occupancy = %+v, want %+v", *occ, want)
	}
}

func TestBedValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wardID, _ := f.ward(t)

	err := f.svc.AddBed(ctx, testCaps, &Bed{WardID: wardID, Number: "A-01", Type: "COT"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	err = f.svc.AddBed(ctx, testCaps, &Bed{WardID: wardID})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for missing number, got %v", err)
	}
	err = f.svc.AddBed(ctx, testCaps, &Bed{WardID: uuid.New(), Number: "A-01"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown ward, got %v", err)
	}
}

func TestBedRequiresCapability(t *testing.T) {
	f := newFixture()
	wardID, _ := f.ward(t, TypeGeneral)
	viewer := auth.NewCapabilitySet("viewer", auth.CapViewAvailability)

	_, err := f.svc.Admit(context.Background(), viewer, uuid.New(), wardID, TypeGeneral, nil, nil)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
