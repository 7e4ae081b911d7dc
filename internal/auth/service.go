// Package auth orchestrates the credential, token, session and revocation
// components into the register, login, refresh and logout flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carecoord/authcore/internal/identity"
	"github.com/carecoord/authcore/internal/rbac"
	"github.com/carecoord/authcore/internal/session"
	"github.com/carecoord/authcore/internal/shared"
	"github.com/carecoord/authcore/internal/token"
)

// Deps wires the Service.
type Deps struct {
	Identities  *identity.Service
	Sessions    *session.Registry
	Issuer      *token.Issuer
	Ledger      session.Denylister
	Permissions rbac.PermissionProvider
	Events      EventRecorder
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service wraps authentication business rules.
type Service struct {
	identities  *identity.Service
	sessions    *session.Registry
	issuer      *token.Issuer
	ledger      session.Denylister
	permissions rbac.PermissionProvider
	events      EventRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a new Service.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		identities:  deps.Identities,
		sessions:    deps.Sessions,
		issuer:      deps.Issuer,
		ledger:      deps.Ledger,
		permissions: deps.Permissions,
		events:      deps.Events,
		logger:      deps.Logger,
		now:         deps.Now,
	}
}

// Register creates an identity and opens a session on the given device.
func (s *Service) Register(ctx context.Context, in identity.RegisterInput) (*TokenPair, error) {
	created, err := s.identities.Register(ctx, in)
	if err != nil {
		s.record(EventRegister, err)
		return nil, err
	}
	pair, err := s.open(ctx, created, strings.TrimSpace(in.DeviceID))
	s.record(EventRegister, err)
	if err == nil {
		s.logger.Info("identity registered",
			slog.String("identity_id", created.ID),
			slog.String("role", created.Role),
		)
	}
	return pair, err
}

// Login verifies credentials and opens a session on the given device,
// replacing any previous session of that device.
func (s *Service) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	if err := identity.ValidateStruct(in); err != nil {
		s.record(EventLogin, err)
		return nil, err
	}
	found, err := s.identities.Verify(ctx, in.Email, in.Password)
	if err != nil {
		s.record(EventLogin, err)
		if errors.Is(err, shared.ErrInvalidCredentials) {
			s.logger.Warn("login rejected", slog.String("device_id", in.DeviceID))
		}
		return nil, err
	}
	pair, err := s.open(ctx, found, in.DeviceID)
	s.record(EventLogin, err)
	return pair, err
}

// Refresh rotates the refresh token and mints a new access token with the
// identity's current role and zone.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (*TokenPair, error) {
	pair, err := s.refresh(ctx, in)
	s.record(EventRefresh, err)
	return pair, err
}

func (s *Service) refresh(ctx context.Context, in RefreshInput) (*TokenPair, error) {
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	if err := identity.ValidateStruct(in); err != nil {
		return nil, err
	}
	claims, err := s.issuer.VerifyRefresh(in.RefreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			return nil, shared.ErrSessionExpired
		}
		return nil, err
	}
	if claims.DeviceID != in.DeviceID {
		s.logger.Warn("refresh token presented from another device",
			slog.String("identity_id", claims.Subject),
			slog.String("token_device_id", claims.DeviceID),
			slog.String("device_id", in.DeviceID),
		)
		return nil, fmt.Errorf("auth: refresh: device mismatch: %w", shared.ErrTokenMalformed)
	}

	// The identity is read before the rotation commits so a store failure
	// leaves the presented refresh token usable for a retry.
	current, err := s.identities.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrSessionExpired
		}
		return nil, err
	}
	rotated, err := s.sessions.Rotate(ctx, in.RefreshToken)
	if err != nil {
		return nil, err
	}
	access, err := s.mintAccess(current, rotated.SessionID, rotated.DeviceID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: rotated.RefreshToken,
		TokenType:    TokenType,
		ExpiresIn:    s.expiresIn(),
	}, nil
}

// Logout denylists the caller's access token and deletes the session of
// deviceID. An empty deviceID means the caller's own device.
func (s *Service) Logout(ctx context.Context, p *rbac.Principal, deviceID string) error {
	if p == nil {
		return shared.ErrUnauthenticated
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = p.DeviceID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.ledger.Denylist(gctx, p.TokenID, p.ExpiresAt)
	})
	g.Go(func() error {
		removed, err := s.sessions.Revoke(gctx, p.IdentityID, deviceID)
		if err != nil {
			return err
		}
		sid := ""
		switch {
		case removed != nil:
			sid = removed.ID
		case deviceID == p.DeviceID:
			sid = p.SessionID
		}
		if sid == "" {
			return nil
		}
		return s.ledger.Denylist(gctx, sid, s.now().Add(s.issuer.AccessTTL()))
	})
	err := g.Wait()
	s.record(EventLogout, err)
	if err == nil {
		s.logger.Info("logged out",
			slog.String("identity_id", p.IdentityID),
			slog.String("device_id", deviceID),
		)
	}
	return err
}

// LogoutAll revokes every session of the caller and denylists the
// presented access token. It returns the number of sessions removed.
func (s *Service) LogoutAll(ctx context.Context, p *rbac.Principal) (int64, error) {
	if p == nil {
		return 0, shared.ErrUnauthenticated
	}
	var removed int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.ledger.Denylist(gctx, p.TokenID, p.ExpiresAt)
	})
	g.Go(func() error {
		n, err := s.sessions.RevokeAll(gctx, p.IdentityID)
		removed = n
		return err
	})
	err := g.Wait()
	s.record(EventLogoutAll, err)
	if err != nil {
		return removed, err
	}
	s.logger.Info("logged out everywhere",
		slog.String("identity_id", p.IdentityID),
		slog.Int64("sessions", removed),
	)
	return removed, nil
}

// Sessions lists the caller's active devices.
func (s *Service) Sessions(ctx context.Context, p *rbac.Principal) ([]DeviceSession, error) {
	if p == nil {
		return nil, shared.ErrUnauthenticated
	}
	list, err := s.sessions.List(ctx, p.IdentityID)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceSession, 0, len(list))
	for _, rec := range list {
		out = append(out, DeviceSession{Session: rec, Current: rec.ID == p.SessionID})
	}
	return out, nil
}

func (s *Service) open(ctx context.Context, ident *identity.Identity, deviceID string) (*TokenPair, error) {
	issued, err := s.sessions.Issue(ctx, ident.ID, deviceID)
	if err != nil {
		return nil, err
	}
	access, err := s.mintAccess(ident, issued.SessionID, deviceID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: issued.RefreshToken,
		TokenType:    TokenType,
		ExpiresIn:    s.expiresIn(),
		Identity:     ident,
	}, nil
}

func (s *Service) mintAccess(ident *identity.Identity, sessionID, deviceID string) (token.Minted, error) {
	minted, err := s.issuer.MintAccess(token.AccessInput{
		Subject:     ident.ID,
		SessionID:   sessionID,
		DeviceID:    deviceID,
		Role:        ident.Role,
		ZoneID:      ident.Zone(),
		Permissions: rbac.EffectivePermissions(s.permissions, ident.Role, ident.PermissionOverrides),
	})
	if err != nil {
		return token.Minted{}, fmt.Errorf("auth: mint access token: %w", err)
	}
	return minted, nil
}

func (s *Service) expiresIn() int64 {
	return int64(s.issuer.AccessTTL() / time.Second)
}

func (s *Service) record(event string, err error) {
	if s.events == nil {
		return
	}
	s.events.RecordAuthEvent(event, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrValidation):
		return "validation_failed"
	case errors.Is(err, shared.ErrDuplicateIdentity):
		return "duplicate"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, shared.ErrSessionCompromised):
		return "compromised"
	case errors.Is(err, shared.ErrSessionExpired), errors.Is(err, shared.ErrTokenExpired):
		return "expired"
	case errors.Is(err, shared.ErrTokenMalformed):
		return "invalid_token"
	case errors.Is(err, shared.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
