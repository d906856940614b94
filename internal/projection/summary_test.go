package projection

import (
	"testing"
	"time"

	"github.com/XabSaRon/cashflowr/internal/core"
)

func record(cents int64, freq core.Frequency, anchor time.Time) core.IncomeRecord {
	return core.IncomeRecord{
		Source:       "salary",
		Amount:       core.Money{Cents: cents},
		Frequency:    freq,
		Scope:        core.ScopeShared,
		CreatedByUID: "uid-a",
		Date:         core.Date{Time: anchor},
	}
}

func TestSummarizeYearRunRate(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	records := []core.IncomeRecord{
		record(9000, core.Monthly, date(2024, 1, 1)),
		record(9000, core.Quarterly, date(2024, 1, 1)),
		record(9000, core.Yearly, date(2024, 1, 1)),
	}

	sum := SummarizeYear(records, "uid-a", 2024, now, DefaultSummaryOptions())
	// 9000 + round(9000/3) + round(9000/12) = 9000 + 3000 + 750
	if sum.RunRateMonthlyCents != 12750 {
		t.Fatalf("run rate = %d, want 12750", sum.RunRateMonthlyCents)
	}
}

func TestSummarizeYearRunRateRounding(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		freq  core.Frequency
		cents int64
		want  int64
	}{
		{"quarterly rounds down", core.Quarterly, 100, 33},
		{"quarterly rounds half up", core.Quarterly, 50, 17},
		{"yearly rounds half up", core.Yearly, 18, 2},
		{"yearly exact", core.Yearly, 12000, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum := SummarizeYear([]core.IncomeRecord{record(tc.cents, tc.freq, date(2024, 1, 1))}, "uid-a", 2024, now, DefaultSummaryOptions())
			if sum.RunRateMonthlyCents != tc.want {
				t.Fatalf("run rate = %d, want %d", sum.RunRateMonthlyCents, tc.want)
			}
		})
	}
}

func TestSummarizeYearScopeVisibility(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	personal := record(5000, core.Once, date(2024, 2, 1))
	personal.Scope = core.ScopePersonal
	personal.CreatedByUID = "uid-a"
	shared := record(3000, core.Once, date(2024, 3, 1))

	records := []core.IncomeRecord{personal, shared}

	asCreator := SummarizeYear(records, "uid-a", 2024, now, DefaultSummaryOptions())
	if asCreator.YtdCents != 8000 {
		t.Fatalf("creator ytd = %d, want 8000", asCreator.YtdCents)
	}

	asOther := SummarizeYear(records, "uid-b", 2024, now, DefaultSummaryOptions())
	if asOther.YtdCents != 3000 {
		t.Fatalf("other member ytd = %d, want 3000", asOther.YtdCents)
	}

	// An absent scope defaults to shared.
	unscoped := record(1000, core.Once, date(2024, 4, 1))
	unscoped.Scope = ""
	both := SummarizeYear([]core.IncomeRecord{unscoped}, "uid-b", 2024, now, DefaultSummaryOptions())
	if both.YtdCents != 1000 {
		t.Fatalf("unscoped ytd = %d, want 1000", both.YtdCents)
	}
}

func TestSummarizeYearOnceBoundaries(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		date time.Time
		want int64
	}{
		{"realized this year", date(2024, 1, 15), 4200},
		{"scheduled later this year", date(2024, 11, 1), 0},
		{"previous year", date(2023, 12, 31), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum := SummarizeYear([]core.IncomeRecord{record(4200, core.Once, tc.date)}, "uid-a", 2024, now, DefaultSummaryOptions())
			if sum.OnceYtdCents != tc.want {
				t.Fatalf("once ytd = %d, want %d", sum.OnceYtdCents, tc.want)
			}
		})
	}
}

func TestSummarizeYearRecurrentWithLag(t *testing.T) {
	// Monthly income anchored in 2023: with the settlement lag, the December
	// 2023 occurrence pays on 31 January 2024 and opens the year; the May 2024
	// occurrence pays on 30 June. Six pay dates fall inside the year by 30 June.
	now := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
	records := []core.IncomeRecord{record(10000, core.Monthly, date(2023, 1, 1))}

	sum := SummarizeYear(records, "uid-a", 2024, now, DefaultSummaryOptions())
	if sum.RecurrentYtdCents != 60000 {
		t.Fatalf("recurrent ytd = %d, want 60000", sum.RecurrentYtdCents)
	}
	if sum.YtdCents != 60000 {
		t.Fatalf("ytd = %d, want 60000", sum.YtdCents)
	}
	if len(sum.Lines) != 1 || sum.Lines[0].Count != 6 || sum.Lines[0].SubtotalCents != 60000 {
		t.Fatalf("unexpected breakdown: %+v", sum.Lines)
	}
}

func TestSummarizeYearLagPolicyDiffers(t *testing.T) {
	// Mid-month reference instant: without the lag the 1 June occurrence has
	// already happened (6 occurrences); with it the June pay date is still
	// three weeks away (5 occurrences).
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	records := []core.IncomeRecord{record(10000, core.Monthly, date(2023, 1, 1))}

	lagged := SummarizeYear(records, "uid-a", 2024, now, DefaultSummaryOptions())
	if lagged.RecurrentYtdCents != 50000 {
		t.Fatalf("lagged ytd = %d, want 50000", lagged.RecurrentYtdCents)
	}

	plain := SummarizeYear(records, "uid-a", 2024, now, SummaryOptions{SettlementLag: false})
	if plain.RecurrentYtdCents != 60000 {
		t.Fatalf("unlagged ytd = %d, want 60000", plain.RecurrentYtdCents)
	}
}

func TestSummarizeYearEndedIncome(t *testing.T) {
	// Ended two months ago: no longer in the run rate, but historical
	// occurrences up to the end date still count toward YTD.
	now := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
	rec := record(10000, core.Monthly, date(2023, 1, 1))
	rec.EndDate = core.NewDate(2024, 4, 30)

	sum := SummarizeYear([]core.IncomeRecord{rec}, "uid-a", 2024, now, DefaultSummaryOptions())
	if sum.RunRateMonthlyCents != 0 {
		t.Fatalf("run rate = %d, want 0 for ended income", sum.RunRateMonthlyCents)
	}
	// Pay dates inside the year and at/before 30 April: 31 Jan, 29 Feb,
	// 31 Mar, 30 Apr.
	if sum.RecurrentYtdCents != 40000 {
		t.Fatalf("recurrent ytd = %d, want 40000", sum.RecurrentYtdCents)
	}
}

func TestSummarizeYearFutureRecurringInvisible(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	rec := record(10000, core.Monthly, now.AddDate(0, 0, 30))

	sum := SummarizeYear([]core.IncomeRecord{rec}, "uid-a", 2024, now, DefaultSummaryOptions())
	if sum.YtdCents != 0 || sum.RunRateMonthlyCents != 0 || len(sum.Lines) != 0 {
		t.Fatalf("future-dated recurring income must contribute nothing: %+v", sum)
	}
}

func TestSummarizeYearLinesSortedBySubtotal(t *testing.T) {
	now := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
	salary := record(250000, core.Monthly, date(2023, 1, 1))
	salary.Source = "salary"
	dividend := record(30000, core.Quarterly, date(2023, 1, 1))
	dividend.Source = "dividend"

	sum := SummarizeYear([]core.IncomeRecord{dividend, salary}, "uid-a", 2024, now, DefaultSummaryOptions())
	if len(sum.Lines) != 2 {
		t.Fatalf("expected 2 breakdown lines, got %d", len(sum.Lines))
	}
	if sum.Lines[0].Source != "salary" || sum.Lines[1].Source != "dividend" {
		t.Fatalf("lines not sorted by subtotal: %+v", sum.Lines)
	}

	var total int64
	for _, l := range sum.Lines {
		total += l.SubtotalCents
	}
	if total != sum.RecurrentYtdCents {
		t.Fatalf("breakdown total %d != recurrent ytd %d", total, sum.RecurrentYtdCents)
	}
}
