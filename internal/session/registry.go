package session

import (
	"sort"
	"sync"
)

// Registry holds the session record of every known tenant.
//
// Reads return copies and never wait on a tenant's transition lock. Writers
// are expected to hold the tenant lock obtained from Lock.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Lock acquires the transition lock of a tenant and returns its release
// function. Locks outlive their records so a waiter never ends up holding a
// lock for a deleted entry.
func (r *Registry) Lock(tenantID string) (unlock func()) {
	r.locksMu.Lock()
	l, ok := r.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[tenantID] = l
	}
	r.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns a copy of a tenant's record.
func (r *Registry) Get(tenantID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenantID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Put stores s, replacing any existing record for the tenant.
func (r *Registry) Put(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.sessions[s.TenantID] = &cp
}

// Update applies fn to a tenant's record and returns the result. It returns
// false when the tenant has no record.
func (r *Registry) Update(tenantID string, fn func(*Session)) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tenantID]
	if !ok {
		return Session{}, false
	}
	fn(s)
	return *s, true
}

// Delete removes a tenant's record.
func (r *Registry) Delete(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tenantID)
}

// List returns copies of all records sorted by tenant ID.
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// tenants returns every tenant that has ever been locked.
func (r *Registry) tenants() []string {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	ids := make([]string, 0, len(r.locks))
	for id := range r.locks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
