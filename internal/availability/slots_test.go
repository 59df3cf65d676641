package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mondayTemplate() Template {
	return Template{
		Days:            []string{"Monday"},
		StartTime:       "09:00",
		EndTime:         "11:00",
		SlotDurationMin: 30,
	}
}

// A Monday in the future relative to the fixed "now" used below.
var (
	futureMonday = time.Date(2026, 9, 7, 0, 0, 0, 0, time.Local)
	fixedNow     = time.Date(2026, 9, 1, 12, 0, 0, 0, time.Local)
)

func startTimes(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime)
	}
	return out
}

func TestComputeSlotsGridDeterminism(t *testing.T) {
	slots, err := ComputeSlots(mondayTemplate(), nil, futureMonday, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, startTimes(slots))
	assert.Equal(t, "09:30", slots[0].EndTime)
	assert.Equal(t, "11:00", slots[3].EndTime)
}

func TestComputeSlotsWrongDay(t *testing.T) {
	tuesday := futureMonday.AddDate(0, 0, 1)
	slots, err := ComputeSlots(mondayTemplate(), nil, tuesday, fixedNow)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestComputeSlotsEmptyDays(t *testing.T) {
	tmpl := mondayTemplate()
	tmpl.Days = nil
	slots, err := ComputeSlots(tmpl, nil, futureMonday, fixedNow)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestComputeSlotsPastFiltering(t *testing.T) {
	// 10:15 on the requested Monday itself: 09:00..10:00 have passed.
	now := time.Date(futureMonday.Year(), futureMonday.Month(), futureMonday.Day(), 10, 15, 0, 0, time.Local)

	slots, err := ComputeSlots(mondayTemplate(), nil, futureMonday, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30"}, startTimes(slots))

	// Same clock on a different date must not filter anything.
	nextMonday := futureMonday.AddDate(0, 0, 7)
	slots, err = ComputeSlots(mondayTemplate(), nil, nextMonday, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, startTimes(slots))
}

func TestComputeSlotsBookedExclusion(t *testing.T) {
	booked := map[string]bool{"09:30": true}
	slots, err := ComputeSlots(mondayTemplate(), booked, futureMonday, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "10:30"}, startTimes(slots))

	// A cancelled booking is not in the booked set, so the slot reappears.
	slots, err = ComputeSlots(mondayTemplate(), nil, futureMonday, fixedNow)
	require.NoError(t, err)
	assert.Contains(t, startTimes(slots), "09:30")
}

func TestComputeSlotsPerDayCap(t *testing.T) {
	tmpl := mondayTemplate()
	tmpl.SlotsPerDay = 2
	slots, err := ComputeSlots(tmpl, nil, futureMonday, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30"}, startTimes(slots))
}

func TestComputeSlotsInvalidWindow(t *testing.T) {
	tmpl := mondayTemplate()
	tmpl.EndTime = "08:00"
	_, err := ComputeSlots(tmpl, nil, futureMonday, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	tmpl = mondayTemplate()
	tmpl.SlotDurationMin = 0
	_, err = ComputeSlots(tmpl, nil, futureMonday, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	tmpl = mondayTemplate()
	tmpl.StartTime = "9am"
	_, err = ComputeSlots(tmpl, nil, futureMonday, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestSlotEndClipsToWindow(t *testing.T) {
	tmpl := Template{
		Days:            []string{"Monday"},
		StartTime:       "09:00",
		EndTime:         "10:45",
		SlotDurationMin: 30,
	}
	slots, err := ComputeSlots(tmpl, nil, futureMonday, fixedNow)
	require.NoError(t, err)
	require.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, startTimes(slots))
	assert.Equal(t, "10:45", slots[3].EndTime)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("14:05")
	require.NoError(t, err)
	assert.Equal(t, 845, m)

	for _, bad := range []string{"24:00", "12:60", "noon", "12", "-1:30"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, "expected %q to fail", bad)
	}
}
