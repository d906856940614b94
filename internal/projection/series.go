package projection

import (
	"time"

	"github.com/XabSaRon/cashflowr/internal/core"
)

// Series is a fixed-width window of per-month income totals for charting.
// Bucket 0 is the oldest month; the last bucket is the month containing the
// reference instant. Truncated is set when an occurrence walk hit the safety
// cap and the series may be incomplete.
type Series struct {
	Labels    []string
	Cents     []int64
	Truncated bool
}

// SeriesOptions control the series window and bucketing policy.
type SeriesOptions struct {
	// MonthsBack is the window width in months, including the current one.
	MonthsBack int
	// SettlementLag buckets monthly/quarterly occurrences by their lagged pay
	// date instead of the occurrence month. The main dashboard chart keeps it
	// off so the current month fills up as occurrences happen.
	SettlementLag bool
	// MonthLabel formats bucket labels. Bucket math never depends on it.
	MonthLabel func(time.Time) string
}

// DefaultSeriesOptions returns the policy used by the dashboard chart:
// a 12-month window bucketed by occurrence month.
func DefaultSeriesOptions() SeriesOptions {
	return SeriesOptions{
		MonthsBack:    12,
		SettlementLag: false,
		MonthLabel:    func(t time.Time) string { return t.Format("Jan") },
	}
}

// BuildMonthlySeries aggregates income records into per-month buckets ending
// at now's month, inclusive. It is scope-agnostic: callers pre-filter the
// record list to the visibility subset they want charted. Records with
// non-positive amounts or missing anchor dates contribute nothing.
func BuildMonthlySeries(records []core.IncomeRecord, now time.Time, opts SeriesOptions) Series {
	if opts.MonthsBack < 1 {
		opts.MonthsBack = 12
	}
	if opts.MonthLabel == nil {
		opts.MonthLabel = DefaultSeriesOptions().MonthLabel
	}

	n := opts.MonthsBack
	windowStart := AddMonthsClamped(monthStart(now), -(n - 1))

	s := Series{
		Labels: make([]string, n),
		Cents:  make([]int64, n),
	}
	for i := 0; i < n; i++ {
		s.Labels[i] = opts.MonthLabel(AddMonthsClamped(windowStart, i))
	}

	for _, r := range records {
		if r.Amount.Cents <= 0 || r.Date.IsZero() {
			continue
		}

		if r.Frequency == core.Once {
			d := r.Date.Time
			if d.After(now) {
				continue
			}
			if idx, ok := bucketIndex(windowStart, d, n); ok {
				s.Cents[idx] += r.Amount.Cents
			}
			continue
		}
		if !r.Frequency.Recurring() {
			// Unknown frequency: degrade by skipping, never fail.
			continue
		}

		start := r.Date.Time
		if start.After(now) {
			continue
		}
		end := now
		if !r.EndDate.IsZero() && r.EndDate.Before(now) {
			end = endOfDay(r.EndDate.Time)
		}

		// With the lag on, an occurrence in the month before the window can
		// still pay into the first bucket, so the walk starts one month early.
		walkFrom := windowStart
		if opts.SettlementLag {
			walkFrom = AddMonthsClamped(windowStart, -1)
		}

		occ := FirstOnOrAfter(start, walkFrom, r.Frequency)
		for steps := 0; !occ.After(end); steps++ {
			if steps >= maxOccurrenceSteps {
				s.Truncated = true
				break
			}
			pay := PayDate(occ, r.Frequency, opts.SettlementLag)
			if !pay.After(end) {
				if idx, ok := bucketIndex(windowStart, pay, n); ok {
					s.Cents[idx] += r.Amount.Cents
				}
			}
			next := NextOccurrence(occ, r.Frequency)
			if !next.After(occ) {
				break
			}
			occ = next
		}
	}

	return s
}

// bucketIndex maps an instant to its month offset from windowStart.
func bucketIndex(windowStart, t time.Time, n int) (int, bool) {
	idx := monthsBetween(windowStart, t)
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}
