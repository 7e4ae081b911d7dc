package identity

import (
	"context"
	"sort"
	"sync"

	"github.com/carecoord/authcore/internal/shared"
)

// MemoryRepository keeps identities in process memory with the same
// case-insensitive email uniqueness as the relational store.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Identity
	byEmail map[string]string
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]Identity), byEmail: make(map[string]string)}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, identity *Identity) error {
	key := NormalizeEmail(identity.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[key]; exists {
		return shared.ErrDuplicateIdentity
	}
	r.byID[identity.ID] = *identity
	r.byEmail[key] = identity.ID
	return nil
}

// FindByEmail implements Repository.
func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	found := r.byID[id]
	return &found, nil
}

// FindByID implements Repository.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &found, nil
}

// ListByZone implements Repository, ordered by email.
func (r *MemoryRepository) ListByZone(_ context.Context, zoneID string) ([]Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Identity, 0)
	for _, identity := range r.byID {
		if identity.Zone() == zoneID {
			out = append(out, identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
