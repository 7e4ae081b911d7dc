package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carecoord/authcore/internal/identity"
	"github.com/carecoord/authcore/internal/platform/httpx"
	"github.com/carecoord/authcore/internal/ratelimit"
	"github.com/carecoord/authcore/internal/rbac"
	"github.com/carecoord/authcore/internal/shared"
)

// Limits holds the per-endpoint rate limits.
type Limits struct {
	Register ratelimit.Rule
	Login    ratelimit.Rule
	Refresh  ratelimit.Rule
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	engine  *rbac.Engine
	limiter *ratelimit.Limiter
	limits  Limits
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, engine *rbac.Engine, limiter *ratelimit.Limiter, limits Limits) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, engine: engine, limiter: limiter, limits: limits}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.limiter.Handler(h.limits.Register)).Post("/register", h.handleRegister)
	r.With(h.limiter.Handler(h.limits.Login)).Post("/login", h.handleLogin)
	r.With(h.limiter.Handler(h.limits.Refresh)).Post("/refresh", h.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(h.engine.Require(rbac.Policy{}))
		r.Post("/logout", h.handleLogout)
		r.Post("/logout-all", h.handleLogoutAll)
		r.Get("/sessions", h.listSessions)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in identity.RegisterInput
	if err := decode(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pair, err := h.service.Register(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pair)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := decode(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pair, err := h.service.Login(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in RefreshInput
	if err := decode(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pair, err := h.service.Refresh(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var in LogoutInput
	if err := decode(r, &in); err != nil && !errors.Is(err, errEmptyBody) {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := identity.ValidateStruct(in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.Logout(r.Context(), rbac.PrincipalFromContext(r.Context()), in.DeviceID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.LogoutAll(r.Context(), rbac.PrincipalFromContext(r.Context())); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.Sessions(r.Context(), rbac.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

var errEmptyBody = shared.NewValidationError(map[string]string{"body": "is required"})

// decode reads a JSON body. Malformed input is a validation failure.
func decode(r *http.Request, target any) error {
	err := httpx.DecodeJSON(r, target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return errEmptyBody
	default:
		return shared.NewValidationError(map[string]string{"body": "must be a valid JSON object"})
	}
}
