/*
window.go - Half-open time interval value type

PURPOSE:
  Window is the core interval type for the allocation engine. Every offer
  and claim carries exactly one Window, and every policy decision (overlap,
  containment, duration bounds, gap computation) reduces to arithmetic on
  Windows.

KEY CONCEPTS:
  - Half-open: a Window covers [Start, End). Touching endpoints do NOT
    overlap, so back-to-back reservations are always legal.
  - Whole hours: Start and End are always normalized to :00. Residents
    book by day-of-week and hour, never finer.
  - Fixed civil timezone: all Windows live in one building-local timezone.
    Callers never pass raw UTC.

WEEK-RELATIVE RESOLUTION:
  Residents say "monday 9" rather than passing absolute dates. Resolve
  turns (weekday, hour) into the next occurrence at or after a reference
  instant; MakeRange builds a full Window where the end is resolved
  relative to the resolved start, so "monday 9 to monday 9" means one
  full week, not an empty interval.

SEE ALSO:
  - engine.go: duration policies applied to Windows
  - availability.go: gap computation over Windows
*/
package parking

import (
	"fmt"
	"time"
)

// Window is a half-open interval [Start, End) in the building's local
// timezone, normalized to whole-hour boundaries. Invariant: End > Start.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a Window from two instants, truncating both to the hour.
// Returns an error if the truncated end is not after the truncated start.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: start.Truncate(time.Hour), End: end.Truncate(time.Hour)}
	if !w.End.After(w.Start) {
		return Window{}, fmt.Errorf("window end %s not after start %s: %w", w.End, w.Start, ErrInvalidDuration)
	}
	return w, nil
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints do not count.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether inner lies entirely within w.
func (w Window) Contains(inner Window) bool {
	return !inner.Start.Before(w.Start) && !inner.End.After(w.End)
}

// ContainsInstant reports whether t falls inside [Start, End).
func (w Window) ContainsInstant(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Expired reports whether the window has fully elapsed as of now.
func (w Window) Expired(now time.Time) bool { return !w.End.After(now) }

// ShiftDays returns the window displaced by whole civil days. AddDate
// keeps the local wall-clock hour when the displacement crosses a DST
// transition, where adding an absolute duration would drift it.
func (w Window) ShiftDays(days int) Window {
	return Window{Start: w.Start.AddDate(0, 0, days), End: w.End.AddDate(0, 0, days)}
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format("Mon 15:04"), w.End.Format("Mon 15:04"))
}

// =============================================================================
// WEEK-RELATIVE RESOLUTION
// =============================================================================

// Resolve returns the next occurrence of (day, hour) at or after ref,
// in ref's location. If ref itself is exactly that day and hour, ref's
// hour is returned as-is, not pushed a week forward.
func Resolve(day time.Weekday, hour int, ref time.Time) (time.Time, error) {
	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("hour %d out of range: %w", hour, ErrInvalidDuration)
	}
	daysAhead := (int(day) - int(ref.Weekday()) + 7) % 7
	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, 0, 0, 0, ref.Location()).
		AddDate(0, 0, daysAhead)
	if candidate.Before(ref.Truncate(time.Hour)) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate, nil
}

// MakeRange resolves a start (relative to now) and an end (relative to the
// resolved start, so the end is always the first matching day/hour after the
// start). If the two resolve to the same instant the range is one full week.
func MakeRange(startDay time.Weekday, startHour int, endDay time.Weekday, endHour int, now time.Time) (Window, error) {
	start, err := Resolve(startDay, startHour, now)
	if err != nil {
		return Window{}, err
	}
	end, err := Resolve(endDay, endHour, start)
	if err != nil {
		return Window{}, err
	}
	if end.Equal(start) {
		end = end.AddDate(0, 0, 7)
	}
	return Window{Start: start, End: end}, nil
}

// ParseWeekday maps a case-insensitive English day name ("monday") to its
// time.Weekday. Returns an error for anything it does not recognize.
func ParseWeekday(s string) (time.Weekday, error) {
	switch normalizeDay(s) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

func normalizeDay(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock supplies the current instant in the building's local timezone.
// Production uses SystemClock; tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Loc *time.Location
}

func (c SystemClock) Now() time.Time { return time.Now().In(c.Loc) }
