package store

import (
	"sync"
)

// Handle is a shared, lock-protected reference to a Store.
//
// Any number of holders may use one Handle. Read takes the shared lock and
// passes a read-only view of the store: Update, Put, Delete and Close on it
// fail with ErrReadOnly. Write takes the exclusive lock and passes the store
// itself.
type Handle struct {
	path  string
	mu    sync.RWMutex
	store *Store
	view  *Store
}

// NewHandle wraps s. path is the key the handle is registered under.
func NewHandle(path string, s *Store) *Handle {
	return &Handle{path: path, store: s, view: s.readOnlyView()}
}

// Path returns the canonical path of the store.
func (h *Handle) Path() string {
	return h.path
}

// Read calls fn with a read-only view of the store while holding the shared
// lock.
func (h *Handle) Read(fn func(s *Store) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.view)
}

// Write calls fn with the store while holding the exclusive lock.
func (h *Handle) Write(fn func(s *Store) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.store)
}
