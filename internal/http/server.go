package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/XabSaRon/cashflowr/internal/cache"
	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/middleware/ratelimit"
	"github.com/XabSaRon/cashflowr/internal/middleware/security"
	"github.com/XabSaRon/cashflowr/internal/middleware/trace"
	"github.com/XabSaRon/cashflowr/internal/projection"
)

// IncomeAPI is the income surface the handlers call.
type IncomeAPI interface {
	CreateHome(ctx context.Context, name, ownerUID string, personal bool) (*core.Home, error)
	AddMember(ctx context.Context, homeID, actorUID, memberUID string) error
	ListHomes(ctx context.Context, uid string) ([]core.Home, error)
	CreateIncome(ctx context.Context, rec core.IncomeRecord) (*core.IncomeRecord, error)
	ListIncomes(ctx context.Context, homeID, viewerUID string) ([]core.IncomeRecord, error)
	AmendIncome(ctx context.Context, id, actorUID string, endDate core.Date, newAmount core.Money) (*core.IncomeRecord, error)
	DeleteIncome(ctx context.Context, id, actorUID string) (*core.IncomeRecord, error)
}

// DashboardAPI computes the chart series and summary cards.
type DashboardAPI interface {
	Series(ctx context.Context, homeID, viewerUID string) (projection.Series, error)
	Summary(ctx context.Context, homeID, viewerUID string, year int) (projection.YearSummary, error)
}

// ChartRenderer turns a series into a PNG.
type ChartRenderer interface {
	RenderSeries(series projection.Series) ([]byte, error)
}

// Options tune the server; zero values fall back to defaults.
type Options struct {
	Addr                 string
	CacheSize            int
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
	RequestsPerMinute    int
}

// Server is the JSON API for homes, incomes and the dashboard. Dashboard
// projections are memoized per home and viewer; income writes bump the home
// generation so the next read recomputes.
type Server struct {
	http.Server

	incomes   IncomeAPI
	dashboard DashboardAPI
	charts    ChartRenderer
	logger    *log.Logger

	seriesCache  *cache.LRUCache[projection.Series]
	summaryCache *cache.LRUCache[projection.YearSummary]
	cacheManager *cache.Manager

	genMu sync.Mutex
	gens  map[string]uint64

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

func NewServer(opts Options, incomes IncomeAPI, dashboard DashboardAPI, charts ChartRenderer, logger *log.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8082"
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = time.Minute
	}

	s := &Server{
		incomes:   incomes,
		dashboard: dashboard,
		charts:    charts,
		logger:    logger.WithComponent(log.ComponentHTTP),
		gens:      make(map[string]uint64),
	}

	s.seriesCache = cache.NewLRUCache[projection.Series](opts.CacheSize, opts.CacheTTL)
	s.summaryCache = cache.NewLRUCache[projection.YearSummary](opts.CacheSize, opts.CacheTTL)
	s.cacheManager = cache.NewManager(logger)
	s.cacheManager.Register(s.seriesCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(opts.CacheCleanupInterval)

	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/homes", s.handleCreateHome)
	mux.HandleFunc("GET /api/homes", s.handleListHomes)
	mux.HandleFunc("POST /api/homes/{id}/members", s.handleAddMember)
	mux.HandleFunc("POST /api/incomes", s.handleCreateIncome)
	mux.HandleFunc("GET /api/incomes", s.handleListIncomes)
	mux.HandleFunc("DELETE /api/incomes/{id}", s.handleDeleteIncome)
	mux.HandleFunc("POST /api/incomes/{id}/amend", s.handleAmendIncome)
	mux.HandleFunc("GET /api/dashboard/series", s.handleDashboardSeries)
	mux.HandleFunc("GET /api/dashboard/summary", s.handleDashboardSummary)
	mux.HandleFunc("GET /api/dashboard/chart.png", s.handleDashboardChart)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	tracer := trace.NewMiddleware(clientIP, logger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	handler := tracer.Middleware(headers.Middleware(s.throttleWrites(mux)))

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// throttleWrites rate limits mutating requests per client IP. Reads stay
// unthrottled, they are cheap and cached.
func (s *Server) throttleWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			if !s.limiter.Allow(clientIP(r)) {
				s.logger.WarnContext(r.Context(), "Rate limit exceeded",
					log.FieldClientIP, clientIP(r),
					log.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// generation returns the cache generation of a home. The generation is part
// of every dashboard cache key, so bumping it orphans stale entries; the LRU
// evicts them eventually.
func (s *Server) generation(homeID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[homeID]
}

// invalidateDashboards makes cached projections of a home unreachable.
func (s *Server) invalidateDashboards(homeID string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[homeID]++
}

func (s *Server) seriesKey(homeID, viewerUID string) string {
	return fmt.Sprintf("%s|%s|g%d", homeID, viewerUID, s.generation(homeID))
}

func (s *Server) summaryKey(homeID, viewerUID string, year int) string {
	return fmt.Sprintf("%s|%s|%d|g%d", homeID, viewerUID, year, s.generation(homeID))
}

// clientIP extracts the real client IP, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

// Shutdown stops background goroutines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
	})
	return s.Server.Shutdown(ctx)
}
