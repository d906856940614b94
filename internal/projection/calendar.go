// Package projection computes dashboard aggregates from income records: a
// rolling monthly cash-flow series, year-to-date totals and a monthly run-rate
// estimate. Every function is pure and side-effect free; identical inputs
// produce identical outputs, so callers can memoize results by input key.
package projection

import (
	"time"

	"github.com/XabSaRon/cashflowr/internal/core"
)

// maxOccurrenceSteps bounds every occurrence walk. A well-formed record never
// gets close to it; reaching the cap marks the result as truncated instead of
// looping forever on malformed data.
const maxOccurrenceSteps = 600

// DaysInMonth returns the number of days in the given month (1-12),
// accounting for leap years.
func DaysInMonth(year, month int) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped adds n calendar months to t, clamping the day of month to
// the length of the target month (Jan 31 + 1 month = Feb 28/29). Repeated
// stepping continues from the clamped day; the original day of month is not
// remembered across steps.
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	m0 := int(month) - 1 + n
	y := year + m0/12
	m0 %= 12
	if m0 < 0 {
		m0 += 12
		y--
	}
	m := m0 + 1

	if max := DaysInMonth(y, m); day > max {
		day = max
	}
	h, mi, s := t.Clock()
	return time.Date(y, time.Month(m), day, h, mi, s, t.Nanosecond(), t.Location())
}

// stepMonths maps a frequency to its occurrence interval in months.
// Once yields 0: the series has a single occurrence and never steps.
func stepMonths(f core.Frequency) int {
	switch f {
	case core.Monthly:
		return 1
	case core.Quarterly:
		return 3
	case core.Yearly:
		return 12
	}
	return 0
}

// NextOccurrence returns the occurrence following t for the given frequency.
// For one-off income it returns t unchanged; callers must treat an unchanged
// result as the end of the series.
func NextOccurrence(t time.Time, f core.Frequency) time.Time {
	step := stepMonths(f)
	if step == 0 {
		return t
	}
	return AddMonthsClamped(t, step)
}

// PayDate returns the instant an occurrence counts as collected. With the
// settlement lag enabled, monthly and quarterly income settles at end of day
// on the last day of the month after the occurrence month; yearly and one-off
// income always settles on the occurrence date itself.
func PayDate(occurrence time.Time, f core.Frequency, settlementLag bool) time.Time {
	if !settlementLag {
		return occurrence
	}
	switch f {
	case core.Monthly, core.Quarterly:
		y, m, _ := occurrence.Date()
		// Day 0 of month+2 is the last day of the following month.
		return time.Date(y, m+2, 0, 23, 59, 59, 0, occurrence.Location())
	}
	return occurrence
}

// FirstOnOrAfter returns the earliest occurrence of the series anchored at
// start that is not before target. Whenever the current day of month cannot
// clamp it jumps by whole steps, so for the common anchors the cost is bounded
// by the step size rather than the distance between anchor and target.
func FirstOnOrAfter(start, target time.Time, f core.Frequency) time.Time {
	step := stepMonths(f)
	if step == 0 || !start.Before(target) {
		return start
	}

	for steps := 0; start.Before(target) && steps < maxOccurrenceSteps; steps++ {
		// A whole-step jump re-derives the day of month from the current
		// occurrence, but in the stepped sequence a clamp sticks (Jan 31,
		// Feb 28, Mar 28, ...). Days up to 28 exist in every month and never
		// clamp, so only then does the jump land on a real occurrence; day
		// 29+ anchors step one month at a time until the first clamp.
		if start.Day() <= 28 {
			if k := (monthsBetween(start, target) / step) * step; k > 0 {
				start = AddMonthsClamped(start, k)
				continue
			}
		}
		next := AddMonthsClamped(start, step)
		if !next.After(start) {
			// Degenerate step: no forward progress, stop rather than spin.
			break
		}
		start = next
	}
	return start
}

// monthsBetween counts whole calendar months from a to b, ignoring days.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// monthStart truncates t to midnight on the first day of its month.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// endOfDay moves t to the last second of its calendar day. Used to make
// inclusive end-date cutoffs cover lagged pay dates on the same day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
