package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carecoord/authcore/internal/platform/httpx"
	"github.com/carecoord/authcore/internal/rbac"
)

// Handler serves user endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	engine  *rbac.Engine
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, engine *rbac.Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, engine: engine}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.engine.Require(rbac.Policy{})).Get("/users/me", h.me)
	r.With(h.engine.Require(rbac.RequirePermissions("users:read").InZone(rbac.PathParam(rbac.DefaultZoneParam)))).
		Get("/zones/{zoneID}/members", h.zoneMembers)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Me(r.Context(), rbac.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) zoneMembers(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, rbac.DefaultZoneParam)
	members, err := h.service.ZoneMembers(r.Context(), zoneID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"zoneId": zoneID, "members": members})
}
