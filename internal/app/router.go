package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/campusworks/campusworks/internal/audit"
	"github.com/campusworks/campusworks/internal/observability"
	"github.com/campusworks/campusworks/internal/organisations"
	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/users"
	"github.com/campusworks/campusworks/internal/years"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	RBACMiddleware rbac.Middleware

	RolesHandler         *rbac.RolesHandler
	PermissionsHandler   *rbac.PermissionsHandler
	YearsHandler         *years.Handler
	UsersHandler         *users.Handler
	OrganisationsHandler *organisations.Handler
	AuditHandler         *audit.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with CampusWorks defaults.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Routes reachable without a resolved actor: invite acceptance and the
	// identity-provider webhook.
	if params.UsersHandler != nil {
		r.Route("/public", params.UsersHandler.MountPublicRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.ResolveActor)

		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.YearsHandler != nil {
			r.Route("/years", params.YearsHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.OrganisationsHandler != nil {
			r.Route("/organisations", params.OrganisationsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	return r
}
