package identity

import (
	"context"
	"time"
)

// Identity represents a registered account.
type Identity struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	Role                string    `json:"role"`
	ZoneID              *string   `json:"zoneId"`
	PermissionOverrides []string  `json:"permissionOverrides,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Zone returns the zone id or "" when the identity has none.
func (i *Identity) Zone() string {
	if i == nil || i.ZoneID == nil {
		return ""
	}
	return *i.ZoneID
}

// RegisterInput is the payload accepted at registration.
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Role      string `json:"role" validate:"required"`
	ZoneID    string `json:"zoneId" validate:"omitempty,max=64"`
	DeviceID  string `json:"deviceId" validate:"required,max=128"`
}

// Repository defines persistence operations for identities.
type Repository interface {
	// Create returns shared.ErrDuplicateIdentity when the email is taken.
	Create(ctx context.Context, identity *Identity) error
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	ListByZone(ctx context.Context, zoneID string) ([]Identity, error)
}

// RoleCatalog answers which roles exist.
type RoleCatalog interface {
	HasRole(role string) bool
}
