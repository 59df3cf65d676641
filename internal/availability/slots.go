package availability

import "time"

// ComputeSlots derives the bookable slots for a doctor on a date. booked holds
// HH:MM start times of existing non-cancelled appointments. Slots whose start
// has passed are dropped only when date is today in server-local terms; future
// dates are never filtered by the clock. The result is ordered ascending and
// recomputed fresh on every call.
func ComputeSlots(t Template, booked map[string]bool, date, now time.Time) ([]Slot, error) {
	if !t.OffersDay(date.Weekday().String()) {
		return nil, nil
	}

	grid, err := t.Grid()
	if err != nil {
		return nil, err
	}

	isToday := sameDate(date, now)
	nowMin := now.Hour()*60 + now.Minute()

	slots := make([]Slot, 0, len(grid))
	for _, startMin := range grid {
		if isToday && startMin <= nowMin {
			continue
		}
		start := FormatClock(startMin)
		if booked[start] {
			continue
		}
		slots = append(slots, Slot{
			StartTime: start,
			EndTime:   t.SlotEnd(startMin),
		})
	}
	return slots, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
