package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/storeadmin/storeadmin/internal/auth"
	"github.com/storeadmin/storeadmin/internal/dashboard"
	"github.com/storeadmin/storeadmin/internal/gate"
	"github.com/storeadmin/storeadmin/internal/observability"
	"github.com/storeadmin/storeadmin/internal/platform/httpx"
	"github.com/storeadmin/storeadmin/internal/shared"
	"github.com/storeadmin/storeadmin/jobs"
	"github.com/storeadmin/storeadmin/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CSRFManager      *shared.CSRFManager
	Gate             *gate.Gate
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router. Health, metrics and static assets sit
// outside the gate; every page and API route sits behind it.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(web.Static())))
	r.Handle("/static/*", staticCacheHandler(fileServer))

	r.Group(func(r chi.Router) {
		r.Use(params.Gate.Middleware)

		r.Route("/auth", params.AuthHandler.MountRoutes)
		params.DashboardHandler.MountCustomer(r)
		r.Route("/admin", func(r chi.Router) {
			params.DashboardHandler.MountAdmin(r, func(api chi.Router) {
				if params.JobHandler != nil {
					api.With(params.Gate.RequirePermission("manage_settings")).Route("/jobs", params.JobHandler.MountRoutes)
				}
			})
		})
	})

	return r
}

// staticCacheHandler lets browsers cache embedded assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
