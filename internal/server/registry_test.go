package server

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInsertRemove(t *testing.T) {
	r := NewRegistry()
	a := newConn(newStubTransport(), HubConfig{})
	b := newConn(newStubTransport(), HubConfig{})

	require.NoError(t, r.Insert(a))
	require.NoError(t, r.Insert(b))
	assert.Equal(t, 2, r.Size())
	assert.ErrorIs(t, r.Insert(a), ErrDuplicateConn)

	got, ok := r.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, r.Remove(a.ID()))
	assert.False(t, r.Remove(a.ID()))
	assert.Equal(t, 1, r.Size())
	assert.ElementsMatch(t, []*Conn{b}, r.Snapshot())
}

func TestRegistryForEachExcept(t *testing.T) {
	r := NewRegistry()
	conns := make([]*Conn, 4)
	for i := range conns {
		conns[i] = newConn(newStubTransport(), HubConfig{})
		require.NoError(t, r.Insert(conns[i]))
	}

	visited := map[ConnID]bool{}
	n, err := r.ForEachExcept(conns[1].ID(), func(c *Conn) error {
		visited[c.ID()] = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, visited[conns[1].ID()])

	n, err = r.ForEachExcept("", func(*Conn) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// TestRegistryForEachExceptIsolatesFailures verifies a failing callback does
// not stop iteration over the remaining connections.
func TestRegistryForEachExceptIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	conns := make([]*Conn, 3)
	for i := range conns {
		conns[i] = newConn(newStubTransport(), HubConfig{})
		require.NoError(t, r.Insert(conns[i]))
	}
	bad := conns[0].ID()
	boom := errors.New("boom")

	calls := 0
	n, err := r.ForEachExcept("", func(c *Conn) error {
		calls++
		if c.ID() == bad {
			return boom
		}
		return nil
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), string(bad))
}

// TestRegistryConcurrentAccess exercises insert, remove and iteration from
// many goroutines; run with -race.
func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				c := newConn(newStubTransport(), HubConfig{})
				_ = r.Insert(c)
				_, _ = r.ForEachExcept(c.ID(), func(*Conn) error { return nil })
				_ = r.Size()
				r.Remove(c.ID())
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Size())
}
