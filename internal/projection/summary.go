package projection

import (
	"sort"
	"time"

	"github.com/XabSaRon/cashflowr/internal/core"
)

// YtdLine is the per-record breakdown behind RecurrentYtdCents: how many
// occurrences of one recurring income were realized in the year so far.
type YtdLine struct {
	Source        string
	Frequency     core.Frequency
	AmountCents   int64
	Count         int
	SubtotalCents int64
}

// YearSummary holds the scalar dashboard aggregates for one calendar year,
// restricted to the records visible to a viewer.
type YearSummary struct {
	YtdCents            int64
	OnceYtdCents        int64
	RecurrentYtdCents   int64
	RunRateMonthlyCents int64
	Lines               []YtdLine
	Truncated           bool
}

// SummaryOptions control the year-to-date bucketing policy.
type SummaryOptions struct {
	// SettlementLag counts monthly/quarterly occurrences on their lagged pay
	// date. The dashboard cards keep it on; run rate never involves dates.
	SettlementLag bool
}

// DefaultSummaryOptions returns the policy used by the dashboard cards.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{SettlementLag: true}
}

// Visible is the visibility predicate: shared income counts for every home
// member, personal income only for its creator. An absent scope means shared.
func Visible(r core.IncomeRecord, viewerUID string) bool {
	if r.Scope.OrShared() == core.ScopeShared {
		return true
	}
	return r.CreatedByUID == viewerUID
}

// FilterVisible returns the subset of records visible to the viewer.
func FilterVisible(records []core.IncomeRecord, viewerUID string) []core.IncomeRecord {
	out := make([]core.IncomeRecord, 0, len(records))
	for _, r := range records {
		if Visible(r, viewerUID) {
			out = append(out, r)
		}
	}
	return out
}

// SummarizeYear computes year-to-date totals, the monthly run-rate estimate
// and the per-record breakdown for the given calendar year, as of now.
// Breakdown lines come out of the same occurrence walk as the totals, so the
// sum of subtotals always equals RecurrentYtdCents.
func SummarizeYear(records []core.IncomeRecord, viewerUID string, year int, now time.Time, opts SummaryOptions) YearSummary {
	var sum YearSummary

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location())
	walkTarget := yearStart
	if opts.SettlementLag {
		// A December occurrence of the prior year pays into January.
		walkTarget = AddMonthsClamped(yearStart, -1)
	}

	for _, r := range records {
		if r.Amount.Cents <= 0 || r.Date.IsZero() || !Visible(r, viewerUID) {
			continue
		}

		if r.Frequency == core.Once {
			d := r.Date.Time
			if d.Year() == year && !d.After(now) {
				sum.OnceYtdCents += r.Amount.Cents
			}
			continue
		}
		if !r.Frequency.Recurring() {
			continue
		}

		start := r.Date.Time
		if start.After(now) {
			// Future-dated recurring income is invisible until it starts.
			continue
		}

		end := now
		active := true
		if !r.EndDate.IsZero() {
			e := endOfDay(r.EndDate.Time)
			if e.Before(now) {
				end = e
				active = false
			}
		}

		if active {
			switch r.Frequency {
			case core.Monthly:
				sum.RunRateMonthlyCents += r.Amount.Cents
			case core.Quarterly:
				sum.RunRateMonthlyCents += roundDiv(r.Amount.Cents, 3)
			case core.Yearly:
				sum.RunRateMonthlyCents += roundDiv(r.Amount.Cents, 12)
			}
		}

		count := 0
		occ := FirstOnOrAfter(start, walkTarget, r.Frequency)
		for steps := 0; !occ.After(end); steps++ {
			if steps >= maxOccurrenceSteps {
				sum.Truncated = true
				break
			}
			pay := PayDate(occ, r.Frequency, opts.SettlementLag)
			if pay.Year() == year && !pay.After(end) {
				count++
			}
			next := NextOccurrence(occ, r.Frequency)
			if !next.After(occ) {
				break
			}
			occ = next
		}

		if count > 0 {
			subtotal := r.Amount.Cents * int64(count)
			sum.RecurrentYtdCents += subtotal
			sum.Lines = append(sum.Lines, YtdLine{
				Source:        r.Source,
				Frequency:     r.Frequency,
				AmountCents:   r.Amount.Cents,
				Count:         count,
				SubtotalCents: subtotal,
			})
		}
	}

	sum.YtdCents = sum.OnceYtdCents + sum.RecurrentYtdCents

	sort.Slice(sum.Lines, func(i, j int) bool {
		if sum.Lines[i].SubtotalCents != sum.Lines[j].SubtotalCents {
			return sum.Lines[i].SubtotalCents > sum.Lines[j].SubtotalCents
		}
		return sum.Lines[i].Source < sum.Lines[j].Source
	})

	return sum
}

// roundDiv divides integer cents rounding the exact half away from zero.
func roundDiv(a, b int64) int64 {
	if a < 0 {
		return -roundDiv(-a, b)
	}
	return (a + b/2) / b
}
