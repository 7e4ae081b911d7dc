// Package session keeps one hashed refresh-token record per (identity, device)
// and enforces single-use rotation with replay detection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/carecoord/authcore/internal/shared"
	"github.com/carecoord/authcore/internal/token"
)

// RefreshTokens mints and verifies refresh tokens.
type RefreshTokens interface {
	MintRefresh(subject, deviceID string) (token.Minted, error)
	VerifyRefresh(raw string) (*token.RefreshClaims, error)
}

// Denylister blocks identifiers until an instant.
type Denylister interface {
	Denylist(ctx context.Context, id string, until time.Time) error
}

// Config tunes a Registry.
type Config struct {
	// AccessTTL bounds how long a revoked session id stays denylisted.
	AccessTTL    time.Duration
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Registry owns refresh-token persistence.
type Registry struct {
	repo      Repository
	tokens    RefreshTokens
	ledger    Denylister
	accessTTL time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegistry constructs a Registry.
func NewRegistry(repo Repository, tokens RefreshTokens, ledger Denylister, cfg Config) *Registry {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		repo:      repo,
		tokens:    tokens,
		ledger:    ledger,
		accessTTL: cfg.AccessTTL,
		timeout:   cfg.StoreTimeout,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Issue replaces the device's record with a freshly minted refresh token.
func (r *Registry) Issue(ctx context.Context, identityID, deviceID string) (Issued, error) {
	minted, err := r.tokens.MintRefresh(identityID, deviceID)
	if err != nil {
		return Issued{}, err
	}
	now := r.now().UTC()
	rec := Session{
		ID:         ulid.Make().String(),
		IdentityID: identityID,
		DeviceID:   deviceID,
		TokenHash:  HashToken(minted.Token),
		ExpiresAt:  minted.ExpiresAt,
		CreatedAt:  now,
		RotatedAt:  now,
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.repo.Upsert(ctx, rec); err != nil {
		return Issued{}, fmt.Errorf("session: issue: %w", shared.Unavailable(err))
	}
	return Issued{SessionID: rec.ID, RefreshToken: minted.Token, ExpiresAt: minted.ExpiresAt}, nil
}

// Rotate exchanges a refresh token for a new one. Presenting a token that was
// already rotated away revokes every session of the identity.
func (r *Registry) Rotate(ctx context.Context, raw string) (Rotated, error) {
	claims, err := r.tokens.VerifyRefresh(raw)
	if err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			return Rotated{}, fmt.Errorf("session: rotate: %w", shared.ErrSessionExpired)
		}
		return Rotated{}, err
	}
	identityID, deviceID := claims.Subject, claims.DeviceID
	presented := HashToken(raw)

	minted, err := r.tokens.MintRefresh(identityID, deviceID)
	if err != nil {
		return Rotated{}, err
	}
	now := r.now().UTC()
	next := Session{TokenHash: HashToken(minted.Token), ExpiresAt: minted.ExpiresAt, RotatedAt: now}

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	swapped, ok, err := r.repo.CompareAndSwap(storeCtx, identityID, deviceID, presented, next)
	if err != nil {
		return Rotated{}, fmt.Errorf("session: rotate: %w", shared.Unavailable(err))
	}
	if ok {
		return Rotated{
			IdentityID:   identityID,
			DeviceID:     deviceID,
			SessionID:    swapped.ID,
			RefreshToken: minted.Token,
			ExpiresAt:    minted.ExpiresAt,
		}, nil
	}

	current, err := r.repo.Get(storeCtx, identityID, deviceID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Rotated{}, fmt.Errorf("session: rotate: %w", shared.ErrSessionExpired)
		}
		return Rotated{}, fmt.Errorf("session: rotate: %w", shared.Unavailable(err))
	}
	if current.Expired(now) || current.TokenHash == presented {
		return Rotated{}, fmt.Errorf("session: rotate: %w", shared.ErrSessionExpired)
	}

	r.logger.Warn("refresh token replay detected",
		slog.String("identity_id", identityID),
		slog.String("device_id", deviceID),
		slog.String("session_id", current.ID),
	)
	if _, err := r.RevokeAll(ctx, identityID); err != nil {
		r.logger.Error("revoke sessions after replay", slog.String("identity_id", identityID), slog.Any("error", err))
		return Rotated{}, fmt.Errorf("session: rotate: replay response incomplete: %w", err)
	}
	return Rotated{}, fmt.Errorf("session: rotate: %w", shared.ErrSessionCompromised)
}

// Revoke deletes the device's record. It returns the removed record, or nil.
func (r *Registry) Revoke(ctx context.Context, identityID, deviceID string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	removed, err := r.repo.Delete(ctx, identityID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("session: revoke: %w", shared.Unavailable(err))
	}
	return removed, nil
}

// RevokeAll denylists every session id of the identity for one access-token
// lifetime, then deletes the records. Records are only deleted once the
// denylist writes succeeded, so a failed call can be retried in full.
func (r *Registry) RevokeAll(ctx context.Context, identityID string) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	sessions, err := r.repo.List(storeCtx, identityID)
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", shared.Unavailable(err))
	}
	if r.ledger != nil && r.accessTTL > 0 {
		until := r.now().Add(r.accessTTL)
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range sessions {
			id := s.ID
			g.Go(func() error {
				return r.ledger.Denylist(gctx, id, until)
			})
		}
		if err := g.Wait(); err != nil {
			return 0, fmt.Errorf("session: revoke all: %w", err)
		}
	}
	removed, err := r.repo.DeleteAll(storeCtx, identityID)
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", shared.Unavailable(err))
	}
	return removed, nil
}

// List returns the identity's active device sessions.
func (r *Registry) List(ctx context.Context, identityID string) ([]Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	sessions, err := r.repo.List(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", shared.Unavailable(err))
	}
	now := r.now()
	active := sessions[:0]
	for _, s := range sessions {
		if !s.Expired(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

// SweepExpired removes records past their expiry.
func (r *Registry) SweepExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.repo.DeleteExpired(ctx, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("session: sweep: %w", shared.Unavailable(err))
	}
	return n, nil
}
