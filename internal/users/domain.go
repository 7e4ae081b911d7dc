package users

import (
	"context"

	"github.com/carecoord/authcore/internal/identity"
)

// Profile is the caller's own account view.
type Profile struct {
	*identity.Identity
	Permissions []string `json:"permissions"`
	SessionID   string   `json:"sessionId"`
	DeviceID    string   `json:"deviceId"`
}

// Member is a zone roster entry.
type Member struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// Directory reads identities.
type Directory interface {
	Get(ctx context.Context, id string) (*identity.Identity, error)
	ListByZone(ctx context.Context, zoneID string) ([]identity.Identity, error)
}
