package scheduling

import "testing"

func TestReservedCount(t *testing.T) {
	cases := []struct {
		fraction float64
		n        int
		want     int
	}{
		{0.2, 10, 2},
		{0.2, 5, 1},
		{0.2, 4, 0}, // 0.8 rounds down
		{0.5, 3, 1},
		{0, 10, 0},
		{0.2, 0, 0},
	}
	for _, tc := range cases {
		p := EmergencyReservationPolicy{Fraction: tc.fraction}
		if got := p.ReservedCount(tc.n); got != tc.want {
			t.Errorf("ReservedCount(%v, %d) = %d, want %d", tc.fraction, tc.n, got, tc.want)
		}
	}
}

func TestPolicyApply(t *testing.T) {
	p := EmergencyReservationPolicy{Fraction: 0.4}
	slots := make([]SlotView, 5)
	for i := range slots {
		slots[i].Start = TimeOfDay(540 + i*30)
	}

	tagged := p.Apply(slots, false)
	for i, s := range tagged {
		want := i >= 3 // last two of five
		if s.EmergencyOnly != want {
			t.Errorf("slot %d: EmergencyOnly = %v, want %v", i, s.EmergencyOnly, want)
		}
	}

	fresh := make([]SlotView, 5)
	for i := range fresh {
		fresh[i].Start = TimeOfDay(540 + i*30)
	}
	for i, s := range p.Apply(fresh, true) {
		if s.EmergencyOnly {
			t.Errorf("slot %d tagged for an emergency caller", i)
		}
	}
}

func TestPolicyGuards(t *testing.T) {
	p := EmergencyReservationPolicy{Fraction: 0.5}
	slots := []SlotView{{Start: 540}, {Start: 570}}

	if p.Guards(slots, 540) {
		t.Error("expected leading slot to be open")
	}
	if !p.Guards(slots, 570) {
		t.Error("expected trailing slot to be guarded")
	}

	// As the reserve shrinks to zero nothing is guarded.
	if p.Guards(slots[:1], 540) {
		t.Error("expected no guard with a single open slot")
	}
}
