package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/audit"
	"github.com/meridian-erp/meridian-erp/internal/consol"
	"github.com/meridian-erp/meridian-erp/internal/instruments"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/lease"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/revenue"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	LedgerHandler      *ledger.Handler
	LeaseHandler       *lease.Handler
	RevenueHandler     *revenue.Handler
	ConsolHandler      *consol.Handler
	InstrumentsHandler *instruments.Handler
	AuditHandler       *audit.Handler
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.LeaseHandler != nil {
		r.Route("/finance", params.LeaseHandler.MountRoutes)
	}
	if params.RevenueHandler != nil {
		r.Route("/revenue", params.RevenueHandler.MountRoutes)
	}
	if params.ConsolHandler != nil {
		r.Route("/consol", params.ConsolHandler.MountRoutes)
	}
	if params.InstrumentsHandler != nil {
		r.Route("/instruments", params.InstrumentsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
