// Package token mints and verifies the signed bearer tokens used by authcore.
//
// Only asymmetric algorithms (RS256/384/512, ES256/384/512) are accepted, so a
// Verifier can be built from the public key alone and deployed anywhere.
package token

import (
	"crypto"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carecoord/authcore/internal/shared"
)

// Config captures issuer-wide settings.
type Config struct {
	Algorithm  string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Option customises a Verifier or Issuer.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Verifier checks token signatures and claims without access to the signing key.
type Verifier struct {
	method   jwt.SigningMethod
	key      crypto.PublicKey
	issuer   string
	audience string
	now      func() time.Time
}

// NewVerifier builds a Verifier for alg using public.
func NewVerifier(alg string, public crypto.PublicKey, issuer, audience string, opts ...Option) (*Verifier, error) {
	method, err := signingMethod(alg, public)
	if err != nil {
		return nil, err
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("token: issuer and audience required")
	}
	o := buildOptions(opts)
	return &Verifier{method: method, key: public, issuer: issuer, audience: audience, now: o.now}, nil
}

// VerifyAccess validates an access token.
func (v *Verifier) VerifyAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := v.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Type != KindAccess {
		return nil, fmt.Errorf("token: expected access token, got %q: %w", claims.Type, shared.ErrTokenMalformed)
	}
	if claims.ID == "" || claims.SessionID == "" || claims.Role == "" {
		return nil, fmt.Errorf("token: access token missing jti, sid or role: %w", shared.ErrTokenMalformed)
	}
	return &claims, nil
}

// VerifyRefresh validates a refresh token.
func (v *Verifier) VerifyRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := v.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Type != KindRefresh {
		return nil, fmt.Errorf("token: expected refresh token, got %q: %w", claims.Type, shared.ErrTokenMalformed)
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("token: refresh token missing device: %w", shared.ErrTokenMalformed)
	}
	return &claims, nil
}

func (v *Verifier) parse(raw string, claims jwt.Claims) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("token: empty token: %w", shared.ErrTokenMalformed)
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("token: %v: %w", err, shared.ErrTokenExpired)
		}
		return fmt.Errorf("token: %v: %w", err, shared.ErrTokenMalformed)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return fmt.Errorf("token: missing subject: %w", shared.ErrTokenMalformed)
	}
	return nil
}

// Issuer signs access and refresh tokens. It never touches storage.
type Issuer struct {
	*Verifier
	signer     crypto.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer builds an Issuer whose Verifier uses the signer's public half.
func NewIssuer(cfg Config, signer crypto.Signer, opts ...Option) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("token: signing key required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: access and refresh ttl must be positive")
	}
	verifier, err := NewVerifier(cfg.Algorithm, signer.Public(), cfg.Issuer, cfg.Audience, opts...)
	if err != nil {
		return nil, err
	}
	return &Issuer{
		Verifier:   verifier,
		signer:     signer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// MintAccess signs an access token for in.
func (i *Issuer) MintAccess(in AccessInput) (Minted, error) {
	if in.Subject == "" || in.SessionID == "" || in.Role == "" {
		return Minted{}, errors.New("token: subject, session and role required")
	}
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.accessTTL)
	id := uuid.NewString()
	claims := AccessClaims{
		Type:             KindAccess,
		SessionID:        in.SessionID,
		DeviceID:         in.DeviceID,
		Role:             in.Role,
		ZoneID:           in.ZoneID,
		Permissions:      in.Permissions,
		RegisteredClaims: i.registered(in.Subject, id, now, exp),
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.signer)
	if err != nil {
		return Minted{}, fmt.Errorf("token: sign access: %w", err)
	}
	return Minted{Token: signed, ID: id, ExpiresAt: exp}, nil
}

// MintRefresh signs a refresh token bound to subject and deviceID.
func (i *Issuer) MintRefresh(subject, deviceID string) (Minted, error) {
	if subject == "" || deviceID == "" {
		return Minted{}, errors.New("token: subject and device required")
	}
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.refreshTTL)
	id := uuid.NewString()
	claims := RefreshClaims{
		Type:             KindRefresh,
		DeviceID:         deviceID,
		RegisteredClaims: i.registered(subject, id, now, exp),
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.signer)
	if err != nil {
		return Minted{}, fmt.Errorf("token: sign refresh: %w", err)
	}
	return Minted{Token: signed, ID: id, ExpiresAt: exp}, nil
}

func (i *Issuer) registered(subject, id string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{i.audience},
		ExpiresAt: jwt.NewNumericDate(exp),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        id,
	}
}
