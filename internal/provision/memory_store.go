package provision

import (
	"context"
	"sync"
)

// MemoryStore implements Store using in-memory storage, for local
// development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	role     Role
	profiles map[string]Profile // keyed by document ID
}

// NewMemoryStore creates a new in-memory profile store for a role.
func NewMemoryStore(role Role) *MemoryStore {
	return &MemoryStore{role: role, profiles: make(map[string]Profile)}
}

func (r *MemoryStore) CreateIfAbsent(ctx context.Context, p Profile) (Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.findLocked(p.UserID); ok {
		return existing, false, nil
	}

	p.ID = p.UserID
	p.Role = r.role
	r.profiles[p.ID] = p
	return p, true, nil
}

func (r *MemoryStore) FindByUserID(ctx context.Context, userID string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if existing, ok := r.findLocked(userID); ok {
		return existing, nil
	}
	return Profile{}, ErrNotFound
}

func (r *MemoryStore) All(ctx context.Context) ([]Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (r *MemoryStore) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(r.profiles, id)
	return nil
}

// Insert stores a profile under its literal document ID without the
// uniqueness check. It exists to seed the legacy duplicate records the
// reconcile job has to repair.
func (r *MemoryStore) Insert(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Role = r.role
	r.profiles[p.ID] = p
}

// findLocked prefers the record keyed on the user ID, falling back to a
// legacy record carrying a random document ID. Callers hold the lock.
func (r *MemoryStore) findLocked(userID string) (Profile, bool) {
	if p, ok := r.profiles[userID]; ok {
		return p, true
	}
	for _, p := range r.profiles {
		if p.UserID == userID {
			return p, true
		}
	}
	return Profile{}, false
}
