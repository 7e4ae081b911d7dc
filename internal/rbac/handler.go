package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carecoord/authcore/internal/platform/httpx"
)

// RolesHandler exposes the loaded role map to administrators.
type RolesHandler struct {
	permissions *PermissionMap
	engine      *Engine
}

// NewRolesHandler builds RolesHandler instance.
func NewRolesHandler(permissions *PermissionMap, engine *Engine) *RolesHandler {
	return &RolesHandler{permissions: permissions, engine: engine}
}

// MountRoutes registers role routes.
func (h *RolesHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.engine.Require(RequireRoles("administrator")))
		r.Get("/roles", h.listRoles)
	})
}

func (h *RolesHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.permissions.Roles()})
}
