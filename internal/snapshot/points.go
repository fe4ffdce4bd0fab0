// Package snapshot implements the weighted membership map M shared by
// the stake engine (writer) and the engagement and validator engines
// (readers): address -> points, with a per-address change log that
// supports point-in-time queries at any block height, and a secondary
// index ordering members by (points desc, address asc).
package snapshot

import (
	"sort"
	"sync"

	"poe-core/internal/poetypes"
)

// Member is one row of the points map, as returned by the list queries.
type Member struct {
	Addr        poetypes.Address `json:"addr"`
	Points      uint64           `json:"points"`
	StartHeight *uint64          `json:"start_height,omitempty"`
}

type historyEntry struct {
	height uint64
	points uint64
	exists bool // false means the member was removed at this height
}

// Points is the snapshotted membership map M. It is safe for concurrent
// use; in this single-threaded execution model the lock only guards
// against the scheduler and the query path racing on the same engine.
type Points struct {
	mu          sync.RWMutex
	current     map[poetypes.Address]uint64
	startHeight map[poetypes.Address]uint64
	history     map[poetypes.Address][]historyEntry
	total       uint64
}

// New returns an empty points map.
func New() *Points {
	return &Points{
		current:     make(map[poetypes.Address]uint64),
		startHeight: make(map[poetypes.Address]uint64),
		history:     make(map[poetypes.Address][]historyEntry),
	}
}

// Get returns the current points for addr and whether addr is a member.
func (p *Points) Get(addr poetypes.Address) (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.current[addr]
	return v, ok
}

// Total returns the current sum of all members' points.
func (p *Points) Total() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// Set writes new points for addr at the given height, appending the
// prior value to addr's change log before applying the update. points
// == the member's points after this write; the map's running TOTAL is
// adjusted by the delta.
func (p *Points) Set(addr poetypes.Address, points uint64, height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, existed := p.current[addr]
	p.recordPrior(addr, height, old, existed)

	if !existed {
		p.startHeight[addr] = height
	}
	p.current[addr] = points
	if existed {
		p.total = p.total - old + points
	} else {
		p.total += points
	}
}

// Remove deletes addr from the map at the given height, recording the
// prior value in the change log first. No-op if addr is not a member.
func (p *Points) Remove(addr poetypes.Address, height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, existed := p.current[addr]
	if !existed {
		return
	}
	p.recordPrior(addr, height, old, existed)
	delete(p.current, addr)
	delete(p.startHeight, addr)
	p.total -= old
}

// recordPrior appends the value addr held immediately before height to
// its change log. Caller must hold p.mu.
func (p *Points) recordPrior(addr poetypes.Address, height, value uint64, existed bool) {
	p.history[addr] = append(p.history[addr], historyEntry{height: height, points: value, exists: existed})
}

// AtHeight returns addr's points as of the end of block height-1. Each
// change-log entry records the value that was in effect immediately
// before the mutation at its height, i.e. the value that held for every
// height up to and including that mutation's height minus one. So the
// value as of height-1 is carried by the earliest logged mutation at or
// after height; falling through to the current value if no such
// mutation exists (nothing has changed since, or the member never
// changed).
func (p *Points) AtHeight(addr poetypes.Address, height uint64) (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	log := p.history[addr]
	for i := 0; i < len(log); i++ {
		if log[i].height >= height {
			return log[i].points, log[i].exists
		}
	}
	v, ok := p.current[addr]
	return v, ok
}

// ListAscending returns up to limit members with address > startAfter
// (or all members from the start if startAfter is nil), ordered
// ascending by address. A negative limit returns every matching member.
func (p *Points) ListAscending(startAfter *poetypes.Address, limit int) []Member {
	p.mu.RLock()
	defer p.mu.RUnlock()

	addrs := make([]poetypes.Address, 0, len(p.current))
	for a := range p.current {
		addrs = append(addrs, a)
	}
	poetypes.SortAddresses(addrs)

	out := make([]Member, 0, len(addrs))
	for _, a := range addrs {
		if startAfter != nil && !startAfter.Less(a) {
			continue
		}
		out = append(out, p.memberLocked(a))
		if limit >= 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ListByPointsDesc returns up to limit members ordered by (points desc,
// address asc), optionally resuming after a given member for pagination.
func (p *Points) ListByPointsDesc(startAfter *Member, limit int) []Member {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := make([]Member, 0, len(p.current))
	for a := range p.current {
		all = append(all, p.memberLocked(a))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Points != all[j].Points {
			return all[i].Points > all[j].Points
		}
		return all[i].Addr.Less(all[j].Addr)
	})

	out := make([]Member, 0, len(all))
	skipping := startAfter != nil
	for _, m := range all {
		if skipping {
			if m.Addr.Equal(startAfter.Addr) {
				skipping = false
			}
			continue
		}
		out = append(out, m)
		if limit >= 0 && len(out) == limit {
			break
		}
	}
	return out
}

// TopByPointsDesc returns the top n members ordered by (points desc,
// address asc), used by the validator engine's selection algorithm.
func (p *Points) TopByPointsDesc(minPoints uint64, n int) []Member {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := make([]Member, 0, len(p.current))
	for a, pts := range p.current {
		if pts < minPoints {
			continue
		}
		all = append(all, p.memberLocked(a))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Points != all[j].Points {
			return all[i].Points > all[j].Points
		}
		return all[i].Addr.Less(all[j].Addr)
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

func (p *Points) memberLocked(a poetypes.Address) Member {
	m := Member{Addr: a, Points: p.current[a]}
	if h, ok := p.startHeight[a]; ok {
		hh := h
		m.StartHeight = &hh
	}
	return m
}
