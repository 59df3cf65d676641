package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidWindow covers any template whose window cannot produce slots:
	// malformed HH:MM values, start >= end, or a non-positive slot duration.
	// Callers surface it as "availability not configured".
	ErrInvalidWindow = errors.New("availability window is invalid")
)

// Template is a doctor's recurring weekly schedule. Times are HH:MM strings in
// 24-hour server-local time; Days holds weekday names ("Monday", ...). A
// template with no days offers no slots on any date.
type Template struct {
	Days            []string
	StartTime       string
	EndTime         string
	SlotDurationMin int
	SlotsPerDay     int // 0 means uncapped
}

// Slot is one bookable interval derived from a template.
type Slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ParseClock converts an HH:MM string to minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("parse clock %q: want HH:MM", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return hours*60 + minutes, nil
}

// FormatClock converts minutes since midnight back to HH:MM.
func FormatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// OffersDay reports whether the template accepts bookings on the named weekday.
func (t Template) OffersDay(day string) bool {
	for _, d := range t.Days {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}

// Window returns the template's offering window in minutes since midnight,
// validating it in the process.
func (t Template) Window() (start, end int, err error) {
	if t.SlotDurationMin <= 0 {
		return 0, 0, ErrInvalidWindow
	}
	start, err = ParseClock(t.StartTime)
	if err != nil {
		return 0, 0, ErrInvalidWindow
	}
	end, err = ParseClock(t.EndTime)
	if err != nil {
		return 0, 0, ErrInvalidWindow
	}
	if start >= end {
		return 0, 0, ErrInvalidWindow
	}
	return start, end, nil
}

// Grid returns the candidate slot start times (minutes since midnight) for any
// offered day: a walk of the window in SlotDurationMin steps, capped at
// SlotsPerDay when set. Booking validation checks requested times against this
// exact grid.
func (t Template) Grid() ([]int, error) {
	start, end, err := t.Window()
	if err != nil {
		return nil, err
	}

	var grid []int
	for current := start; current < end; current += t.SlotDurationMin {
		if t.SlotsPerDay > 0 && len(grid) >= t.SlotsPerDay {
			break
		}
		grid = append(grid, current)
	}
	return grid, nil
}

// SlotEnd computes the end of a slot starting at startMin, clipped to the
// window end so the last slot never spills past the template.
func (t Template) SlotEnd(startMin int) string {
	end := startMin + t.SlotDurationMin
	if _, windowEnd, err := t.Window(); err == nil && end > windowEnd {
		end = windowEnd
	}
	return FormatClock(end)
}
