package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access from refresh tokens inside the typ claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	Type        Kind     `json:"typ"`
	SessionID   string   `json:"sid"`
	DeviceID    string   `json:"did"`
	Role        string   `json:"role"`
	ZoneID      string   `json:"zone,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the identity and device a refresh token is bound to.
type RefreshClaims struct {
	Type     Kind   `json:"typ"`
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// AccessInput describes the identity an access token is minted for.
type AccessInput struct {
	Subject     string
	SessionID   string
	DeviceID    string
	Role        string
	ZoneID      string
	Permissions []string
}

// Minted is a freshly signed token plus its identifier and expiry.
type Minted struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// Expiry returns the exp claim or the zero time.
func (c *AccessClaims) Expiry() time.Time {
	if c == nil || c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}
