// Package pool implements the C7 backend pool: a process-wide,
// reference-counted registry of backends keyed by userId first (for
// isolation), then backend kind, then remote host identity.
package pool

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/constellationfs/constellationfs/internal/backend"
	"github.com/constellationfs/constellationfs/internal/cflog"
)

// entry pairs a pooled backend with its reference count, mirroring the
// mutex-guarded closed-flag shape the teacher uses for its proxy
// lifecycle (internal/sandbox/proxy.go's DomainProxy).
type entry struct {
	backend  backend.Backend
	refCount uint
}

// Pool is the process-wide registry. The zero value is not usable; use
// New.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{entries: make(map[string]*entry)}
}

// LocalKey builds the registry key for a local backend: "userId:local".
func LocalKey(userID string) string {
	return userID + ":local"
}

// RemoteKey builds the registry key for a remote backend:
// "userId:remote:host:port".
func RemoteKey(userID, host string, port int) string {
	return userID + ":remote:" + host + ":" + strconv.Itoa(port)
}

// Acquire returns the pooled backend for key, incrementing its
// reference count. If no backend is registered under key yet, factory
// is invoked to create one.
func (p *Pool) Acquire(key string, factory func() (backend.Backend, error)) (backend.Backend, error) {
	if key == "" {
		return nil, fmt.Errorf("pool: key must not be empty")
	}

	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		e.refCount++
		b := e.backend
		p.mu.Unlock()
		cflog.BackendLifecycle(key, "pool", "acquire-reuse")
		return b, nil
	}
	p.mu.Unlock()

	b, err := factory()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		// Lost the race against a concurrent Acquire(key, ...): discard
		// the backend we just built and use the one that won.
		e.refCount++
		b.Destroy()
		cflog.BackendLifecycle(key, "pool", "acquire-reuse")
		return e.backend, nil
	}
	p.entries[key] = &entry{backend: b, refCount: 1}
	cflog.BackendLifecycle(key, "pool", "acquire-create")
	return b, nil
}

// Release decrements key's reference count, destroying and removing the
// backend once it reaches zero.
func (p *Pool) Release(key string) error {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	if e.refCount > 0 {
		e.refCount--
	}
	if e.refCount > 0 {
		p.mu.Unlock()
		cflog.BackendLifecycle(key, "pool", "release")
		return nil
	}
	delete(p.entries, key)
	p.mu.Unlock()
	cflog.BackendLifecycle(key, "pool", "release-destroy")
	return e.backend.Destroy()
}

// GetUserBackends returns every pooled backend whose key starts with
// "userId:".
func (p *Pool) GetUserBackends(userID string) []backend.Backend {
	prefix := userID + ":"
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []backend.Backend
	for key, e := range p.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, e.backend)
		}
	}
	return out
}

// CleanupUser destroys and removes every pooled backend belonging to
// userID, regardless of reference count.
func (p *Pool) CleanupUser(userID string) error {
	prefix := userID + ":"
	p.mu.Lock()
	var toDestroy []backend.Backend
	for key, e := range p.entries {
		if strings.HasPrefix(key, prefix) {
			toDestroy = append(toDestroy, e.backend)
			delete(p.entries, key)
		}
	}
	p.mu.Unlock()

	var firstErr error
	for _, b := range toDestroy {
		if err := b.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	cflog.BackendLifecycle(userID, "pool", "cleanup-user")
	return firstErr
}

// Size returns the number of distinct backends currently pooled.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
