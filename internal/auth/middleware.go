package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/carecoord/authcore/internal/platform/httpx"
	"github.com/carecoord/authcore/internal/rbac"
	"github.com/carecoord/authcore/internal/token"
)

// AccessVerifier verifies access tokens.
type AccessVerifier interface {
	VerifyAccess(raw string) (*token.AccessClaims, error)
}

// DenyChecker reports whether any identifier is revoked.
type DenyChecker interface {
	IsDenied(ctx context.Context, ids ...string) (bool, error)
}

// Authenticator resolves bearer tokens into a principal. Requests without a
// usable token pass through unauthenticated and are rejected by the
// authorization engine on protected routes.
type Authenticator struct {
	verifier AccessVerifier
	ledger   DenyChecker
	logger   *slog.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(verifier AccessVerifier, ledger DenyChecker, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{verifier: verifier, ledger: ledger, logger: logger}
}

// Middleware attaches the principal for a valid, unrevoked access token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.verifier.VerifyAccess(raw)
		if err != nil {
			a.logger.Debug("access token rejected",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Any("error", err),
			)
			next.ServeHTTP(w, r)
			return
		}
		denied, err := a.ledger.IsDenied(r.Context(), claims.ID, claims.SessionID)
		if err != nil {
			httpx.RespondError(w, r, a.logger, err)
			return
		}
		if denied {
			a.logger.Info("revoked access token presented",
				slog.String("identity_id", claims.Subject),
				slog.String("session_id", claims.SessionID),
			)
			next.ServeHTTP(w, r)
			return
		}
		principal := &rbac.Principal{
			IdentityID:  claims.Subject,
			Role:        claims.Role,
			ZoneID:      claims.ZoneID,
			Permissions: claims.Permissions,
			SessionID:   claims.SessionID,
			DeviceID:    claims.DeviceID,
			TokenID:     claims.ID,
			ExpiresAt:   claims.Expiry(),
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, TokenType) {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
