package scheduling

import "math"

// EmergencyReservationPolicy withholds a fraction of each day's open slots for
// emergency-flagged bookings. The trailing slots of the day are reserved
// first, so routine bookings fill mornings before touching the reserve.
type EmergencyReservationPolicy struct {
	Fraction float64
}

// ReservedCount returns how many of n open slots are withheld.
func (p EmergencyReservationPolicy) ReservedCount(n int) int {
	if n <= 0 || p.Fraction <= 0 {
		return 0
	}
	return int(math.Floor(p.Fraction * float64(n)))
}

// Apply tags the trailing reserved slots of a single day's run as
// emergency-only. Emergency callers see no reservation at all. The slice is
// modified in place and returned.
func (p EmergencyReservationPolicy) Apply(slots []SlotView, emergency bool) []SlotView {
	if emergency {
		return slots
	}
	reserved := p.ReservedCount(len(slots))
	for i := len(slots) - reserved; i < len(slots); i++ {
		slots[i].EmergencyOnly = true
	}
	return slots
}

// Guards reports whether a non-emergency booking at slotStart must be
// rejected because that slot sits inside the day's reserve. daySlots must be
// the day's currently open slots in start order, computed without the policy
// applied.
func (p EmergencyReservationPolicy) Guards(daySlots []SlotView, slotStart TimeOfDay) bool {
	reserved := p.ReservedCount(len(daySlots))
	if reserved == 0 {
		return false
	}
	for i := len(daySlots) - reserved; i < len(daySlots); i++ {
		if daySlots[i].Start == slotStart {
			return true
		}
	}
	return false
}
