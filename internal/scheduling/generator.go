package scheduling

import (
	"time"
)

// GenerateSlots partitions the window into back-to-back slots of the given
// duration starting at the window start. A trailing remainder shorter than
// one slot is dropped. Slot IDs are left zero; storage assigns them.
func GenerateSlots(w Window, slotDuration time.Duration) []TimeSlot {
	if slotDuration < time.Second {
		return nil
	}

	var slots []TimeSlot
	for cur := w.StartTime; cur.Add(slotDuration) <= w.EndTime; cur = cur.Add(slotDuration) {
		slots = append(slots, TimeSlot{
			DoctorID:  w.DoctorID,
			WindowID:  w.ID,
			Date:      w.Date,
			StartTime: cur,
			EndTime:   cur.Add(slotDuration),
			State:     SlotAvailable,
		})
	}
	return slots
}
