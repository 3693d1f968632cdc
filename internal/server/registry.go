package server

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateConn is returned when inserting an identity that is already registered.
var ErrDuplicateConn = errors.New("connection already registered")

// Registry maps connection identity to connection state. Insert, Remove and
// iteration are mutually exclusive; its size is the connected client count.
type Registry struct {
	mu    sync.RWMutex
	conns map[ConnID]*Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]*Conn)}
}

// Insert registers c.
func (r *Registry) Insert(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[c.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateConn, c.id)
	}
	r.conns[c.id] = c
	return nil
}

// Remove deregisters id and reports whether it was present.
func (r *Registry) Remove(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[id]; !exists {
		return false
	}
	delete(r.conns, id)
	return true
}

// Get looks up a registered connection.
func (r *Registry) Get(id ConnID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Size returns the number of registered connections.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the registered connections at this instant.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// ForEachExcept calls fn for every registered connection other than exclude
// (pass "" to visit all). A failing fn does not stop the iteration; the
// number of successful calls and the joined failures are returned.
//
// fn runs with the registry read-locked and must not call Insert or Remove.
func (r *Registry) ForEachExcept(exclude ConnID, fn func(*Conn) error) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ok := 0
	var errs []error
	for id, c := range r.conns {
		if exclude != "" && id == exclude {
			continue
		}
		if err := fn(c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		ok++
	}
	return ok, errors.Join(errs...)
}
