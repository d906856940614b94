package services

import (
	"context"
	"fmt"

	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/projection"
)

// DashboardStore is the read-only persistence surface for dashboards.
type DashboardStore interface {
	IsMember(ctx context.Context, homeID, uid string) (bool, error)
	ListIncomes(ctx context.Context, homeID string) ([]core.IncomeRecord, error)
}

// DashboardService computes the chart series and summary cards for a home,
// restricted to what the viewer may see.
type DashboardService struct {
	store  DashboardStore
	logger *log.Logger
	months int
}

func NewDashboardService(store DashboardStore, logger *log.Logger, months int) *DashboardService {
	if months < 1 {
		months = 12
	}
	return &DashboardService{
		store:  store,
		logger: logger.WithComponent(log.ComponentDashboard),
		months: months,
	}
}

// Series returns the monthly income series for the dashboard chart.
func (s *DashboardService) Series(ctx context.Context, homeID, viewerUID string) (projection.Series, error) {
	records, err := s.visibleRecords(ctx, homeID, viewerUID)
	if err != nil {
		return projection.Series{}, err
	}

	opts := projection.DefaultSeriesOptions()
	opts.MonthsBack = s.months
	series := projection.BuildMonthlySeries(records, now(), opts)

	if series.Truncated {
		s.logger.WarnContext(ctx, "Income series truncated by safety cap",
			log.FieldHomeID, homeID,
			log.FieldMonths, s.months)
	}
	return series, nil
}

// Summary returns the year-to-date cards for the given calendar year.
func (s *DashboardService) Summary(ctx context.Context, homeID, viewerUID string, year int) (projection.YearSummary, error) {
	records, err := s.visibleRecords(ctx, homeID, viewerUID)
	if err != nil {
		return projection.YearSummary{}, err
	}

	summary := projection.SummarizeYear(records, viewerUID, year, now(), projection.DefaultSummaryOptions())

	if summary.Truncated {
		s.logger.WarnContext(ctx, "Year summary truncated by safety cap",
			log.FieldHomeID, homeID,
			log.FieldYear, year)
	}
	return summary, nil
}

func (s *DashboardService) visibleRecords(ctx context.Context, homeID, viewerUID string) ([]core.IncomeRecord, error) {
	if homeID == "" || viewerUID == "" {
		return nil, ErrNotMember
	}
	ok, err := s.store.IsMember(ctx, homeID, viewerUID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return nil, ErrNotMember
	}

	records, err := s.store.ListIncomes(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	return projection.FilterVisible(records, viewerUID), nil
}
