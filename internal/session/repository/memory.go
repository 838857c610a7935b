package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mohamedFouadgebil/socialMedia/internal/session/domain"
)

// MemoryRepository keeps revocations in process memory. Suitable for a single instance
// in development and for tests; entries are lost on restart.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]domain.RevokedSession
}

// NewMemoryRepository returns an empty in-memory revocation repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]domain.RevokedSession)}
}

// Insert records rs unless its session id is already present.
func (r *MemoryRepository) Insert(ctx context.Context, rs *domain.RevokedSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[rs.SessionID]; ok {
		return nil
	}
	r.m[rs.SessionID] = *rs
	return nil
}

// IsRevoked reports whether sessionID has an entry active at now.
func (r *MemoryRepository) IsRevoked(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	r.mu.RLock()
	e, ok := r.m[sessionID]
	r.mu.RUnlock()
	return ok && e.ActiveAt(now), nil
}

// DeleteExpired removes entries no longer active at now.
func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.m {
		if !e.ActiveAt(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
