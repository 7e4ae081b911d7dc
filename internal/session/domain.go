package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is the server-side record of one device's refresh token.
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identityId"`
	DeviceID   string    `json:"deviceId"`
	TokenHash  string    `json:"-"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	RotatedAt  time.Time `json:"rotatedAt"`
}

// Expired reports whether the record is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Issued is returned when a device session is created or replaced.
type Issued struct {
	SessionID    string
	RefreshToken string
	ExpiresAt    time.Time
}

// Rotated is returned by a successful rotation.
type Rotated struct {
	IdentityID   string
	DeviceID     string
	SessionID    string
	RefreshToken string
	ExpiresAt    time.Time
}

// Repository persists session records. Every write touches a single row.
type Repository interface {
	// Upsert creates or replaces the row for (IdentityID, DeviceID).
	Upsert(ctx context.Context, s Session) error
	// Get returns shared.ErrNotFound when no row exists.
	Get(ctx context.Context, identityID, deviceID string) (*Session, error)
	// CompareAndSwap replaces the hash only if the row still holds oldHash and is
	// unexpired at next.RotatedAt. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, identityID, deviceID, oldHash string, next Session) (*Session, bool, error)
	// Delete removes the device row and returns it, or nil when none existed.
	Delete(ctx context.Context, identityID, deviceID string) (*Session, error)
	DeleteAll(ctx context.Context, identityID string) (int64, error)
	List(ctx context.Context, identityID string) ([]Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// HashToken returns the hex SHA-256 digest stored in place of a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
