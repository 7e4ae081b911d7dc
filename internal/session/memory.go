package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/carecoord/authcore/internal/shared"
)

// ErrDuplicateHash mirrors the unique token_hash index.
var ErrDuplicateHash = errors.New("session: token hash already in use")

type deviceKey struct {
	identityID string
	deviceID   string
}

// MemoryRepository is a mutex-guarded Repository for tests and local runs.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[deviceKey]Session
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[deviceKey]Session)}
}

func (r *MemoryRepository) hashTaken(hash string, except deviceKey) bool {
	for k, row := range r.rows {
		if k != except && row.TokenHash == hash {
			return true
		}
	}
	return false
}

// Upsert implements Repository.
func (r *MemoryRepository) Upsert(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey{s.IdentityID, s.DeviceID}
	if r.hashTaken(s.TokenHash, key) {
		return ErrDuplicateHash
	}
	r.rows[key] = s
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, identityID, deviceID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[deviceKey{identityID, deviceID}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &row, nil
}

// CompareAndSwap implements Repository.
func (r *MemoryRepository) CompareAndSwap(_ context.Context, identityID, deviceID, oldHash string, next Session) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey{identityID, deviceID}
	row, ok := r.rows[key]
	if !ok || row.TokenHash != oldHash || row.Expired(next.RotatedAt) {
		return nil, false, nil
	}
	if r.hashTaken(next.TokenHash, key) {
		return nil, false, ErrDuplicateHash
	}
	row.TokenHash = next.TokenHash
	row.ExpiresAt = next.ExpiresAt
	row.RotatedAt = next.RotatedAt
	r.rows[key] = row
	return &row, true, nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, identityID, deviceID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey{identityID, deviceID}
	row, ok := r.rows[key]
	if !ok {
		return nil, nil
	}
	delete(r.rows, key)
	return &row, nil
}

// DeleteAll implements Repository.
func (r *MemoryRepository) DeleteAll(_ context.Context, identityID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.rows {
		if k.identityID == identityID {
			delete(r.rows, k)
			n++
		}
	}
	return n, nil
}

// List implements Repository, newest first.
func (r *MemoryRepository) List(_ context.Context, identityID string) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0)
	for k, row := range r.rows {
		if k.identityID == identityID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RotatedAt.After(out[j].RotatedAt) })
	return out, nil
}

// DeleteExpired implements Repository.
func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, row := range r.rows {
		if row.Expired(now) {
			delete(r.rows, k)
			n++
		}
	}
	return n, nil
}

var _ Repository = (*MemoryRepository)(nil)
