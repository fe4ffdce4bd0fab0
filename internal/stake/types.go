// Package stake implements the bonded-stake membership engine
// (spec.md §4.2): two-bucket stake per address, a time-indexed
// unbonding claim ledger with auto-release, and slash propagation
// across live stake and pending claims.
package stake

import (
	"log"
	"math/big"
	"sync"

	"poe-core/internal/access"
	"poe-core/internal/hostiface"
	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
)

// Config holds the bond/unbond parameters (spec.md §3). MinBond==0 is
// treated as 1 and TokensPerPoint==0 is treated as 1, per spec's
// boundary-behaviour note for migrate; New applies the same floor at
// construction time so the invariant holds from genesis.
type Config struct {
	Denom                  string
	TokensPerPoint         *big.Int
	MinBond                *big.Int
	UnbondingPeriodSeconds int64
	AutoReturnLimit        int
}

func (c *Config) normalize() {
	one := big.NewInt(1)
	if c.TokensPerPoint == nil || c.TokensPerPoint.Sign() <= 0 {
		c.TokensPerPoint = new(big.Int).Set(one)
	}
	if c.MinBond == nil || c.MinBond.Sign() <= 0 {
		c.MinBond = new(big.Int).Set(one)
	}
}

// Engine is the stake engine instance.
type Engine struct {
	mu sync.RWMutex

	Admin    *access.Admin
	Hooks    *access.HookSet
	Slashers *access.SlasherSet

	Points *snapshot.Points
	Stake  map[poetypes.Address]*big.Int
	VStake map[poetypes.Address]*big.Int
	Claims *ClaimBook
	Config Config

	Logger *log.Logger
}

// InitParams configures a new stake engine at instantiation.
type InitParams struct {
	Config Config
	Admin  *poetypes.Address
	Logger *log.Logger
}

// New instantiates a stake engine from genesis config.
func New(p InitParams) *Engine {
	p.Config.normalize()
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		Admin:    access.NewAdmin(p.Admin),
		Hooks:    access.NewHookSet(),
		Slashers: access.NewSlasherSet(),
		Points:   snapshot.New(),
		Stake:    make(map[poetypes.Address]*big.Int),
		VStake:   make(map[poetypes.Address]*big.Int),
		Claims:   NewClaimBook(),
		Config:   p.Config,
		Logger:   logger,
	}
}

func (e *Engine) stakeOf(addr poetypes.Address) *big.Int {
	if v, ok := e.Stake[addr]; ok {
		return v
	}
	return new(big.Int)
}

func (e *Engine) vstakeOf(addr poetypes.Address) *big.Int {
	if v, ok := e.VStake[addr]; ok {
		return v
	}
	return new(big.Int)
}

// derivedPoints computes floor((stake+vstake)/tokens_per_point), or
// "not a member" if the total is below min_bond.
func (e *Engine) derivedPoints(addr poetypes.Address) (uint64, bool) {
	total := new(big.Int).Add(e.stakeOf(addr), e.vstakeOf(addr))
	if total.Cmp(e.Config.MinBond) < 0 {
		return 0, false
	}
	points := new(big.Int).Div(total, e.Config.TokensPerPoint)
	return points.Uint64(), true
}

// recomputeMembership derives addr's points from its stake buckets and,
// if the result differs from the snapshot, writes the new value (or
// removes addr) and fans the single diff out to every registered hook.
func (e *Engine) recomputeMembership(addr poetypes.Address, height uint64) []hostiface.Msg {
	newPoints, isMember := e.derivedPoints(addr)
	oldPoints, wasMember := e.Points.Get(addr)

	if isMember == wasMember && newPoints == oldPoints {
		return nil
	}

	type diff struct {
		Addr poetypes.Address `json:"addr"`
		Old  *uint64          `json:"old,omitempty"`
		New  *uint64          `json:"new,omitempty"`
	}
	d := diff{Addr: addr}
	if wasMember {
		o := oldPoints
		d.Old = &o
	}
	if isMember {
		n := newPoints
		d.New = &n
		e.Points.Set(addr, newPoints, height)
	} else if wasMember {
		e.Points.Remove(addr, height)
	}

	hooks := e.Hooks.List()
	msgs := make([]hostiface.Msg, 0, len(hooks))
	for _, h := range hooks {
		msgs = append(msgs, hostiface.Msg{Kind: hostiface.MsgHook, Contract: h, Payload: d})
	}
	return msgs
}
