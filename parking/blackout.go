/*
blackout.go - Recurring staff blackout calendar

The staff spots sit in the building's permit lot: on weekdays before
17:00 and during the Sunday street-sweeping window they are reserved for
permit holders and cannot be claimed. Blackout intervals recur weekly and
are checked hour-by-hour across a requested window, since a multi-day
claim can dip in and out of non-contiguous blackout spans.
*/
package parking

import "time"

// BlackoutRule marks hours [StartHour, EndHour) on each listed weekday as
// unclaimable.
type BlackoutRule struct {
	Days      []time.Weekday
	StartHour int
	EndHour   int
}

// Covers reports whether t's weekday and hour fall inside the rule.
func (r BlackoutRule) Covers(t time.Time) bool {
	h := t.Hour()
	if h < r.StartHour || h >= r.EndHour {
		return false
	}
	for _, d := range r.Days {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

// BlackoutCalendar is the union of its rules.
type BlackoutCalendar struct {
	Rules []BlackoutRule
}

// DefaultBlackout returns the building's standing staff blackout:
// Monday through Friday before 17:00 local, and Sunday 02:00 to 14:00.
func DefaultBlackout() BlackoutCalendar {
	return BlackoutCalendar{Rules: []BlackoutRule{
		{
			Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			StartHour: 0,
			EndHour:   17,
		},
		{
			Days:      []time.Weekday{time.Sunday},
			StartHour: 2,
			EndHour:   14,
		},
	}}
}

// Covers reports whether any rule blocks the instant t.
func (c BlackoutCalendar) Covers(t time.Time) bool {
	for _, r := range c.Rules {
		if r.Covers(t) {
			return true
		}
	}
	return false
}

// Intersects steps hour-by-hour across w and returns the first blocked
// hour, if any. Windows are always hour-aligned, so stepping by the hour
// cannot skip over a blackout span.
func (c BlackoutCalendar) Intersects(w Window) (time.Time, bool) {
	for t := w.Start; t.Before(w.End); t = t.Add(time.Hour) {
		if c.Covers(t) {
			return t, true
		}
	}
	return time.Time{}, false
}
