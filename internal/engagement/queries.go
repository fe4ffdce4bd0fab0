package engagement

import (
	"math/big"

	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
)

// Member answers the "member" query: a single address's current
// points, or nil if not a member.
func (e *Engine) Member(addr poetypes.Address) *uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.Points.Get(addr); ok {
		return &p
	}
	return nil
}

// MemberAtHeight answers a point-in-time "member" query.
func (e *Engine) MemberAtHeight(addr poetypes.Address, height uint64) *uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.Points.AtHeight(addr, height); ok {
		return &p
	}
	return nil
}

// defaultLimit and maxLimit bound every paginated query, per
// original_source's cw-controllers constants.
const (
	defaultLimit = 30
	maxLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ListMembers answers "list-members": ascending by address, paginated.
func (e *Engine) ListMembers(startAfter *poetypes.Address, limit int) []snapshot.Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.ListAscending(startAfter, clampLimit(limit))
}

// ListMembersByPoints answers "list-members-by-points": descending by
// points, paginated.
func (e *Engine) ListMembersByPoints(startAfter *snapshot.Member, limit int) []snapshot.Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.ListByPointsDesc(startAfter, clampLimit(limit))
}

// TotalPoints answers "total-points".
func (e *Engine) TotalPoints() uint64 {
	return e.Points.Total()
}

// AdminAddr answers the "admin" query.
func (e *Engine) AdminAddr() *poetypes.Address { return e.Admin.Get() }

// ListHooks answers the "hooks" query.
func (e *Engine) ListHooks() []poetypes.Address { return e.Hooks.List() }

// ListSlashers answers the "list-slashers" query.
func (e *Engine) ListSlashers() []poetypes.Address { return e.Slashers.List() }

// IsSlasher answers the "is-slasher" query.
func (e *Engine) IsSlasher(addr poetypes.Address) bool { return e.Slashers.IsSlasher(addr) }

// WithdrawableRewards answers "withdrawable-rewards" for addr.
func (e *Engine) WithdrawableRewards(addr poetypes.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.Adjustments[addr]
	if !ok {
		return new(big.Int)
	}
	points, _ := e.Points.Get(addr)
	return e.Dist.Withdrawable(points, w.ShareCorrection, w.WithdrawnRewards)
}

// DistributedRewards answers "distributed-rewards".
func (e *Engine) DistributedRewards() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.Dist.DistributedTotal)
}

// UndistributedRewards answers "undistributed-rewards": bank balance
// minus what's already been folded into the distribution.
func (e *Engine) UndistributedRewards(contractBalance *big.Int) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Sub(contractBalance, e.Dist.WithdrawableTotal)
}

// Delegated answers the "delegated" query for addr.
func (e *Engine) Delegated(addr poetypes.Address) poetypes.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if w, ok := e.Adjustments[addr]; ok {
		return w.Delegated
	}
	return addr
}

// HalflifeInfo answers the "halflife" query.
func (e *Engine) HalflifeInfo() Halflife {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Halflife
}
