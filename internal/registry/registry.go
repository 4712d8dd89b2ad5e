// Package registry resolves the pricing strategies and factories engines
// depend on through stable handles. Callers keep a handle; an admin upgrade
// swaps the implementation behind it.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// Well-known handle names.
const (
	SkewCurve        = "skew"
	SGPCombinator    = "sgp"
	RoundPoolFactory = "roundpool"
)

// Version records one activation of a handle.
type Version struct {
	Version     string    `json:"version"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Info describes a handle for status APIs.
type Info struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Type    string    `json:"type"`
	History []Version `json:"history"`
}

// Handle is a stable reference to the active implementation of T. It is
// safe for concurrent use.
type Handle[T any] struct {
	mu      sync.RWMutex
	name    string
	impl    T
	history []Version
}

// Get returns the active implementation.
func (h *Handle[T]) Get() T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.impl
}

// Version returns the active version label.
func (h *Handle[T]) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.history[len(h.history)-1].Version
}

func (h *Handle[T]) info() Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hist := make([]Version, len(h.history))
	copy(hist, h.history)
	return Info{
		Name:    h.name,
		Version: hist[len(hist)-1].Version,
		Type:    fmt.Sprintf("%T", h.impl),
		History: hist,
	}
}

func (h *Handle[T]) swap(tx *chain.Tx, impl any, version string) error {
	next, ok := impl.(T)
	if !ok {
		return fmt.Errorf("registry: %s: implementation %T has the wrong type", h.name, impl)
	}
	h.mu.Lock()
	prevImpl, prevLen := h.impl, len(h.history)
	h.impl = next
	h.history = append(h.history, Version{Version: version, ActivatedAt: tx.Now()})
	h.mu.Unlock()

	tx.OnRollback(func() {
		h.mu.Lock()
		h.impl = prevImpl
		h.history = h.history[:prevLen]
		h.mu.Unlock()
	})
	return nil
}

type entry interface {
	info() Info
	swap(tx *chain.Tx, impl any, version string) error
}

// Registry manages named handles. It is safe for concurrent use.
type Registry struct {
	owner   common.Address
	handles map[string]entry
	mu      sync.RWMutex
}

// New returns an empty registry administered by owner.
func New(owner common.Address) *Registry {
	return &Registry{owner: owner, handles: make(map[string]entry)}
}

// Register creates the handle for name with its initial implementation.
func Register[T any](r *Registry, name, version string, impl T, at time.Time) (*Handle[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[name]; ok {
		return nil, fmt.Errorf("registry: %q: %w", name, domain.ErrAlreadyExists)
	}
	h := &Handle[T]{
		name:    name,
		impl:    impl,
		history: []Version{{Version: version, ActivatedAt: at}},
	}
	r.handles[name] = h
	return h, nil
}

// Upgrade swaps the implementation behind name. Owner only. The new
// implementation must satisfy the handle's type.
func (r *Registry) Upgrade(tx *chain.Tx, caller common.Address, name, version string, impl any) error {
	if caller != r.owner {
		return domain.ErrOnlyOwner
	}
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: %q: %w", name, domain.ErrNotFound)
	}
	if err := h.swap(tx, impl, version); err != nil {
		return err
	}
	tx.Emit(domain.EventImplementationUpgraded, map[string]any{
		"name":    name,
		"version": version,
		"type":    fmt.Sprintf("%T", impl),
	})
	return nil
}

// Get returns a description of the handle registered under name.
func (r *Registry) Get(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	if !ok {
		return Info{}, fmt.Errorf("registry: %q: %w", name, domain.ErrNotFound)
	}
	return h.info(), nil
}

// List returns the names of all registered handles in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for n := range r.handles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Infos describes every handle, sorted by name.
func (r *Registry) Infos() []Info {
	names := r.List()
	out := make([]Info, 0, len(names))
	for _, n := range names {
		if info, err := r.Get(n); err == nil {
			out = append(out, info)
		}
	}
	return out
}
