// Package identity validates, hashes and verifies credentials against the
// identity store.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carecoord/authcore/internal/shared"
)

// Config tunes the Service.
type Config struct {
	// BcryptCost defaults to 12, roughly 150-250ms per hash on current hardware.
	BcryptCost int
	// AllowedRoles lists roles callers may pick at self-registration.
	AllowedRoles []string
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Service wraps credential business rules.
type Service struct {
	repo      Repository
	roles     RoleCatalog
	allowed   map[string]struct{}
	cost      int
	validate  *validator.Validate
	dummyHash []byte
	timeout   time.Duration
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, roles RoleCatalog, cfg Config) (*Service, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("identity: bcrypt cost %d out of range", cfg.BcryptCost)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if roles != nil && !roles.HasRole(role) {
			return nil, fmt.Errorf("identity: self-registrable role %q is not defined", role)
		}
		allowed[role] = struct{}{}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("identity: prepare dummy hash: %w", err)
	}
	return &Service{
		repo:      repo,
		roles:     roles,
		allowed:   allowed,
		cost:      cfg.BcryptCost,
		validate:  newValidator(),
		dummyHash: dummy,
		timeout:   cfg.StoreTimeout,
		now:       cfg.Now,
	}, nil
}

// Register creates a self-service account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Identity, error) {
	in = normalize(in)
	fields := s.check(in)
	if _, ok := fields["role"]; !ok {
		if _, allowed := s.allowed[in.Role]; !allowed {
			fields["role"] = "cannot be chosen at registration; allowed: " + strings.Join(s.allowedRoles(), ", ")
		}
	}
	if len(fields) > 0 {
		return nil, shared.NewValidationError(fields)
	}
	return s.create(ctx, in)
}

// Provision creates an account with any defined role. It is meant for
// operator tooling, not for the public API.
func (s *Service) Provision(ctx context.Context, in RegisterInput) (*Identity, error) {
	in = normalize(in)
	fields := s.check(in)
	delete(fields, "deviceId")
	if len(fields) > 0 {
		return nil, shared.NewValidationError(fields)
	}
	return s.create(ctx, in)
}

// Verify checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller and cost the same bcrypt comparison.
func (s *Service) Verify(ctx context.Context, email, password string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	found, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("identity: verify: %w", shared.Unavailable(err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return found, nil
}

// Get fetches an identity by id.
func (s *Service) Get(ctx context.Context, id string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("identity: get: %w", shared.Unavailable(err))
	}
	return found, nil
}

// ListByZone returns identities assigned to zoneID.
func (s *Service) ListByZone(ctx context.Context, zoneID string) ([]Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	list, err := s.repo.ListByZone(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("identity: list by zone: %w", shared.Unavailable(err))
	}
	return list, nil
}

func (s *Service) check(in RegisterInput) map[string]string {
	fields := make(map[string]string)
	if err := s.validate.Struct(in); err != nil {
		var verr *shared.ValidationError
		if errors.As(validationError(err), &verr) {
			fields = verr.Fields
		} else {
			fields["_"] = err.Error()
		}
	}
	if _, ok := fields["role"]; !ok && s.roles != nil && !s.roles.HasRole(in.Role) {
		fields["role"] = "unknown role"
	}
	return fields
}

func (s *Service) create(ctx context.Context, in RegisterInput) (*Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	now := s.now().UTC()
	created := &Identity{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.ZoneID != "" {
		zone := in.ZoneID
		created.ZoneID = &zone
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Create(ctx, created); err != nil {
		if errors.Is(err, shared.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("identity: create: %w", shared.Unavailable(err))
	}
	return created, nil
}

func (s *Service) allowedRoles() []string {
	out := make([]string, 0, len(s.allowed))
	for role := range s.allowed {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

func normalize(in RegisterInput) RegisterInput {
	in.Email = NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Role = strings.TrimSpace(in.Role)
	in.ZoneID = strings.TrimSpace(in.ZoneID)
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	return in
}
