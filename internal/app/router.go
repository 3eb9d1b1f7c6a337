package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/gemvault/gemvault/internal/audit/http"
	"github.com/gemvault/gemvault/internal/billing"
	"github.com/gemvault/gemvault/internal/charges"
	"github.com/gemvault/gemvault/internal/observability"
	"github.com/gemvault/gemvault/internal/platform/httpx"
	"github.com/gemvault/gemvault/internal/rbac"
	"github.com/gemvault/gemvault/internal/terms"
	"github.com/gemvault/gemvault/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	RBACMiddleware     rbac.Middleware
	ChargesHandler     *charges.Handler
	TermsHandler       *terms.Handler
	BillingHandler     *billing.Handler
	PortalHandler      *billing.PortalHandler
	AuditHandler       *audithttp.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with GemVault defaults.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)

		r.Route("/admin", func(r chi.Router) {
			r.Route("/config", func(r chi.Router) {
				if params.ChargesHandler != nil {
					params.ChargesHandler.MountRoutes(r)
				}
				if params.TermsHandler != nil {
					params.TermsHandler.MountRoutes(r)
				}
			})
			if params.BillingHandler != nil {
				r.Route("/billing", params.BillingHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
		})
		if params.PortalHandler != nil {
			r.Route("/portal", params.PortalHandler.MountRoutes)
		}
	})

	return r
}
