package users

import (
	"context"

	"github.com/carecoord/authcore/internal/rbac"
	"github.com/carecoord/authcore/internal/shared"
)

// Service exposes user lookups to authenticated callers.
type Service struct {
	directory   Directory
	permissions rbac.PermissionProvider
}

// NewService constructs Service.
func NewService(directory Directory, permissions rbac.PermissionProvider) *Service {
	return &Service{directory: directory, permissions: permissions}
}

// Me returns the principal's profile with its effective permissions.
func (s *Service) Me(ctx context.Context, p *rbac.Principal) (*Profile, error) {
	if p == nil {
		return nil, shared.ErrUnauthenticated
	}
	found, err := s.directory.Get(ctx, p.IdentityID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Identity:    found,
		Permissions: rbac.EffectivePermissions(s.permissions, found.Role, found.PermissionOverrides),
		SessionID:   p.SessionID,
		DeviceID:    p.DeviceID,
	}, nil
}

// ZoneMembers lists the identities assigned to zoneID.
func (s *Service) ZoneMembers(ctx context.Context, zoneID string) ([]Member, error) {
	list, err := s.directory.ListByZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(list))
	for _, ident := range list {
		members = append(members, Member{
			ID:        ident.ID,
			Email:     ident.Email,
			FirstName: ident.FirstName,
			LastName:  ident.LastName,
			Role:      ident.Role,
		})
	}
	return members, nil
}
