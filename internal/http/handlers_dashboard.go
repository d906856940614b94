package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/XabSaRon/cashflowr/internal/charts"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/projection"
)

const dashboardTimeout = 7 * time.Second

type seriesResponse struct {
	Labels    []string `json:"labels"`
	Cents     []int64  `json:"cents"`
	Truncated bool     `json:"truncated,omitempty"`
}

type summaryLineResponse struct {
	Source        string `json:"source"`
	Frequency     string `json:"frequency"`
	AmountCents   int64  `json:"amount_cents"`
	Count         int    `json:"count"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

type summaryResponse struct {
	Year                int                   `json:"year"`
	YtdCents            int64                 `json:"ytd_cents"`
	Ytd                 string                `json:"ytd"`
	OnceYtdCents        int64                 `json:"once_ytd_cents"`
	RecurrentYtdCents   int64                 `json:"recurrent_ytd_cents"`
	RunRateMonthlyCents int64                 `json:"run_rate_monthly_cents"`
	RunRateMonthly      string                `json:"run_rate_monthly"`
	Lines               []summaryLineResponse `json:"lines"`
	Truncated           bool                  `json:"truncated,omitempty"`
}

// cachedSeries memoizes the projection per home, viewer and home generation.
func (s *Server) cachedSeries(ctx context.Context, homeID, viewerUID string) (projection.Series, error) {
	key := s.seriesKey(homeID, viewerUID)
	if series, ok := s.seriesCache.Get(key); ok {
		return series, nil
	}

	series, err := s.dashboard.Series(ctx, homeID, viewerUID)
	if err != nil {
		return projection.Series{}, err
	}
	s.seriesCache.Set(key, series)
	return series, nil
}

func (s *Server) cachedSummary(ctx context.Context, homeID, viewerUID string, year int) (projection.YearSummary, error) {
	key := s.summaryKey(homeID, viewerUID, year)
	if summary, ok := s.summaryCache.Get(key); ok {
		return summary, nil
	}

	summary, err := s.dashboard.Summary(ctx, homeID, viewerUID, year)
	if err != nil {
		return projection.YearSummary{}, err
	}
	s.summaryCache.Set(key, summary)
	return summary, nil
}

func (s *Server) dashboardParams(w http.ResponseWriter, r *http.Request) (homeID, uid string, ok bool) {
	uid = userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, "missing user")
		return "", "", false
	}
	homeID = sanitizeInput(r.URL.Query().Get("home"))
	if homeID == "" {
		respondError(w, http.StatusBadRequest, "home query parameter is required")
		return "", "", false
	}
	return homeID, uid, true
}

func (s *Server) handleDashboardSeries(w http.ResponseWriter, r *http.Request) {
	homeID, uid, ok := s.dashboardParams(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dashboardTimeout)
	defer cancel()

	series, err := s.cachedSeries(ctx, homeID, uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, seriesResponse{
		Labels:    series.Labels,
		Cents:     series.Cents,
		Truncated: series.Truncated,
	})
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	homeID, uid, ok := s.dashboardParams(w, r)
	if !ok {
		return
	}
	year := parseYear(r)

	ctx, cancel := context.WithTimeout(r.Context(), dashboardTimeout)
	defer cancel()

	summary, err := s.cachedSummary(ctx, homeID, uid, year)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	lines := make([]summaryLineResponse, 0, len(summary.Lines))
	for _, l := range summary.Lines {
		lines = append(lines, summaryLineResponse{
			Source:        l.Source,
			Frequency:     string(l.Frequency),
			AmountCents:   l.AmountCents,
			Count:         l.Count,
			SubtotalCents: l.SubtotalCents,
		})
	}

	respondJSON(w, http.StatusOK, summaryResponse{
		Year:                year,
		YtdCents:            summary.YtdCents,
		Ytd:                 formatEuros(summary.YtdCents),
		OnceYtdCents:        summary.OnceYtdCents,
		RecurrentYtdCents:   summary.RecurrentYtdCents,
		RunRateMonthlyCents: summary.RunRateMonthlyCents,
		RunRateMonthly:      formatEuros(summary.RunRateMonthlyCents),
		Lines:               lines,
		Truncated:           summary.Truncated,
	})
}

func (s *Server) handleDashboardChart(w http.ResponseWriter, r *http.Request) {
	homeID, uid, ok := s.dashboardParams(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), dashboardTimeout)
	defer cancel()

	series, err := s.cachedSeries(ctx, homeID, uid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	png, err := s.charts.RenderSeries(series)
	if err != nil {
		if errors.Is(err, charts.ErrNoData) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.logger.ErrorContext(ctx, "Chart rendering failed",
			log.FieldHomeID, homeID,
			log.FieldError, err.Error())
		respondError(w, http.StatusInternalServerError, "chart rendering failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
