package stake

import (
	"math/big"

	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
)

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

// StakeInfo answers the "staked" query: an address's liquid/vesting
// stake buckets alongside its derived points.
type StakeInfo struct {
	Addr    poetypes.Address `json:"addr"`
	Stake   *big.Int         `json:"stake"`
	Vesting *big.Int         `json:"vesting"`
	Points  uint64           `json:"points"`
	Member  bool             `json:"member"`
}

// Staked returns addr's current stake snapshot.
func (e *Engine) Staked(addr poetypes.Address) StakeInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	points, member := e.Points.Get(addr)
	return StakeInfo{
		Addr:    addr,
		Stake:   new(big.Int).Set(e.stakeOf(addr)),
		Vesting: new(big.Int).Set(e.vstakeOf(addr)),
		Points:  points,
		Member:  member,
	}
}

// Member answers the single-member query at the current height.
func (e *Engine) Member(addr poetypes.Address) (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.Get(addr)
}

// MemberAtHeight answers the historical single-member query.
func (e *Engine) MemberAtHeight(addr poetypes.Address, height uint64) (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.AtHeight(addr, height)
}

// ListMembers is the paginated ascending-by-address membership listing.
func (e *Engine) ListMembers(startAfter *poetypes.Address, limit int) []snapshot.Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.ListAscending(startAfter, clampLimit(limit))
}

// ListMembersByPoints is the paginated descending-by-points listing.
func (e *Engine) ListMembersByPoints(startAfter *snapshot.Member, limit int) []snapshot.Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.ListByPointsDesc(startAfter, clampLimit(limit))
}

// TotalPoints answers the total-points query.
func (e *Engine) TotalPoints() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.Total()
}

// TopByPointsDesc structurally satisfies validator.MembershipSource for
// stake-weighted validator selection.
func (e *Engine) TopByPointsDesc(minPoints uint64, n int) []snapshot.Member {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Points.TopByPointsDesc(minPoints, n)
}

// AdminAddr answers the admin query.
func (e *Engine) AdminAddr() *poetypes.Address {
	return e.Admin.Get()
}

// ListHooks answers the hooks query.
func (e *Engine) ListHooks() []poetypes.Address {
	return e.Hooks.List()
}

// ListSlashers answers the slashers query.
func (e *Engine) ListSlashers() []poetypes.Address {
	return e.Slashers.List()
}

// IsSlasher answers whether addr is a registered slasher.
func (e *Engine) IsSlasher(addr poetypes.Address) bool {
	return e.Slashers.IsSlasher(addr)
}

// ClaimsFor answers the paginated claims query for addr.
func (e *Engine) ClaimsFor(addr poetypes.Address, startAfter *int64, limit int) []*Claim {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Claims.List(addr, startAfter, clampLimit(limit))
}

// ConfigInfo answers the configuration query.
type ConfigInfo struct {
	Denom                  string   `json:"denom"`
	TokensPerPoint         *big.Int `json:"tokens_per_point"`
	MinBond                *big.Int `json:"min_bond"`
	UnbondingPeriodSeconds int64    `json:"unbonding_period_seconds"`
	AutoReturnLimit        int      `json:"auto_return_limit"`
}

// ConfigQuery answers the "config" query with the current normalized
// configuration.
func (e *Engine) ConfigQuery() ConfigInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ConfigInfo{
		Denom:                  e.Config.Denom,
		TokensPerPoint:         new(big.Int).Set(e.Config.TokensPerPoint),
		MinBond:                new(big.Int).Set(e.Config.MinBond),
		UnbondingPeriodSeconds: e.Config.UnbondingPeriodSeconds,
		AutoReturnLimit:        e.Config.AutoReturnLimit,
	}
}

// UnbondingPeriod answers the dedicated unbonding-period query.
func (e *Engine) UnbondingPeriod() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Config.UnbondingPeriodSeconds
}
