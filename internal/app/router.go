package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carecoord/authcore/internal/auth"
	"github.com/carecoord/authcore/internal/observability"
	"github.com/carecoord/authcore/internal/platform/httpx"
	"github.com/carecoord/authcore/internal/ratelimit"
	"github.com/carecoord/authcore/internal/rbac"
	"github.com/carecoord/authcore/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Limiter       *ratelimit.Limiter
	Authenticator *auth.Authenticator
	AuthHandler   *auth.Handler
	UsersHandler  *users.Handler
	RolesHandler  *rbac.RolesHandler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Limiter: params.Limiter,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if params.Authenticator != nil {
			r.Use(params.Authenticator.Middleware)
		}
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Group(params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/rbac", params.RolesHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, r, http.StatusNotFound, httpx.CodeNotFound, "resource not found", nil)
	})

	return r
}
