package auth

import (
	"github.com/carecoord/authcore/internal/identity"
	"github.com/carecoord/authcore/internal/session"
)

// TokenType is the scheme clients send access tokens with.
const TokenType = "Bearer"

// Flow event names for metrics.
const (
	EventRegister  = "register"
	EventLogin     = "login"
	EventRefresh   = "refresh"
	EventLogout    = "logout"
	EventLogoutAll = "logout_all"
)

// TokenPair is returned by register, login and refresh. Identity is omitted
// on refresh.
type TokenPair struct {
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	TokenType    string             `json:"tokenType"`
	ExpiresIn    int64              `json:"expiresIn"`
	Identity     *identity.Identity `json:"identity,omitempty"`
}

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	DeviceID string `json:"deviceId" validate:"required,max=128"`
}

// RefreshInput is the refresh request body.
type RefreshInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	DeviceID     string `json:"deviceId" validate:"required,max=128"`
}

// LogoutInput is the logout request body. An empty DeviceID means the
// device the access token was issued to.
type LogoutInput struct {
	DeviceID string `json:"deviceId" validate:"omitempty,max=128"`
}

// DeviceSession is one entry of the caller's session list.
type DeviceSession struct {
	session.Session
	Current bool `json:"current"`
}

// EventRecorder counts flow outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}
