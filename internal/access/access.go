// Package access implements three small state machines: an optional
// transferable admin, a hook registry, and a slasher registry. The
// engagement and stake engines use all three identically (spec.md
// §4.1/§4.2: "same lifecycle rules as EE"); the validator engine uses
// the admin. The logic lives here once instead of per engine.
package access

import (
	"sync"

	"poe-core/internal/poeerrors"
	"poe-core/internal/poetypes"
)

// Admin holds an optional single administrator address.
type Admin struct {
	mu      sync.RWMutex
	addr    *poetypes.Address
}

// NewAdmin returns an Admin, optionally preset to addr.
func NewAdmin(addr *poetypes.Address) *Admin {
	return &Admin{addr: addr}
}

// Get returns the current admin, or nil if none is set.
func (a *Admin) Get() *poetypes.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.addr
}

// Require returns an Unauthorized error unless caller is the admin.
func (a *Admin) Require(caller poetypes.Address) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.addr == nil || !a.addr.Equal(caller) {
		return poeerrors.NewUnauthorized("caller %s is not the admin", caller.Hex())
	}
	return nil
}

// Update transfers admin rights; only the current admin (or, if unset,
// anyone bootstrapping it) may call this. Pass nil to renounce.
func (a *Admin) Update(caller poetypes.Address, newAdmin *poetypes.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.addr != nil && !a.addr.Equal(caller) {
		return poeerrors.NewUnauthorized("caller %s is not the admin", caller.Hex())
	}
	a.addr = newAdmin
	return nil
}

// HookSet is the {absent -> present -> absent} registry of hook
// contract addresses notified on membership changes.
type HookSet struct {
	mu    sync.RWMutex
	hooks []poetypes.Address
}

// NewHookSet returns an empty hook registry.
func NewHookSet() *HookSet { return &HookSet{} }

// Add registers addr as a hook, preserving registration order for
// fan-out. Fails if addr is already registered.
func (h *HookSet) Add(addr poetypes.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.hooks {
		if a.Equal(addr) {
			return poeerrors.ErrHookAlreadyRegistered
		}
	}
	h.hooks = append(h.hooks, addr)
	return nil
}

// Remove unregisters addr. Fails if addr was not registered.
func (h *HookSet) Remove(addr poetypes.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, a := range h.hooks {
		if a.Equal(addr) {
			h.hooks = append(h.hooks[:i], h.hooks[i+1:]...)
			return nil
		}
	}
	return poeerrors.ErrHookNotRegistered
}

// List returns the registered hooks in registration order.
func (h *HookSet) List() []poetypes.Address {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]poetypes.Address, len(h.hooks))
	copy(out, h.hooks)
	return out
}

// SlasherSet is the {absent -> present -> absent} registry of addresses
// authorized to call Slash.
type SlasherSet struct {
	mu       sync.RWMutex
	slashers []poetypes.Address
}

// NewSlasherSet returns an empty slasher registry.
func NewSlasherSet() *SlasherSet { return &SlasherSet{} }

// Add registers addr as a slasher. Fails if already registered.
func (s *SlasherSet) Add(addr poetypes.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.slashers {
		if a.Equal(addr) {
			return poeerrors.ErrSlasherAlreadyRegistered
		}
	}
	s.slashers = append(s.slashers, addr)
	return nil
}

// Remove unregisters addr. Fails if not registered.
func (s *SlasherSet) Remove(addr poetypes.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.slashers {
		if a.Equal(addr) {
			s.slashers = append(s.slashers[:i], s.slashers[i+1:]...)
			return nil
		}
	}
	return poeerrors.ErrSlasherNotRegistered
}

// IsSlasher reports whether addr is a registered slasher.
func (s *SlasherSet) IsSlasher(addr poetypes.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.slashers {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}

// List returns the registered slashers.
func (s *SlasherSet) List() []poetypes.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]poetypes.Address, len(s.slashers))
	copy(out, s.slashers)
	return out
}
