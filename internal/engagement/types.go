// Package engagement implements the point-weighted membership and
// reward-distribution engine (spec.md §4.1): a snapshotted points map,
// a shares-per-point reward pool, a withdraw-correction ledger per
// member, and a periodic halflife reducer.
package engagement

import (
	"log"
	"math/big"
	"sync"

	"poe-core/internal/access"
	"poe-core/internal/hostiface"
	"poe-core/internal/poetypes"
	"poe-core/internal/shares"
	"poe-core/internal/snapshot"
)

// WithdrawAdjustment is the per-member correction ledger W[addr].
type WithdrawAdjustment struct {
	ShareCorrection  *big.Int
	WithdrawnRewards *big.Int
	Delegated        poetypes.Address
}

func newAdjustment(owner poetypes.Address) *WithdrawAdjustment {
	return &WithdrawAdjustment{
		ShareCorrection:  new(big.Int),
		WithdrawnRewards: new(big.Int),
		Delegated:        owner,
	}
}

// Halflife is the optional periodic points-reduction schedule.
type Halflife struct {
	DurationSeconds *int64 // nil means halflife is disabled
	LastApplied     int64  // unix seconds
}

// MemberPoints is one entry of an UpdateMembers "add" list.
type MemberPoints struct {
	Addr   poetypes.Address `json:"addr"`
	Points uint64           `json:"points"`
}

// Engine is the engagement engine instance. All exported methods
// correspond to one Execute/Sudo/Query variant from spec.md §6.
type Engine struct {
	mu sync.RWMutex

	Admin    *access.Admin
	Hooks    *access.HookSet
	Slashers *access.SlasherSet

	Points      *snapshot.Points
	Dist        *shares.Distribution
	Adjustments map[poetypes.Address]*WithdrawAdjustment
	Halflife    Halflife

	Self   poetypes.Address // this contract's own address, for Bank.Balance lookups
	Bank   hostiface.Bank
	Logger *log.Logger
}

// Config configures a new engagement engine at instantiation.
type Config struct {
	Denom           string
	Admin           *poetypes.Address
	Self            poetypes.Address
	InitialMembers  []MemberPoints
	HalflifeSeconds *int64
	Logger          *log.Logger
}

// New instantiates an engagement engine from genesis config.
func New(cfg Config, bank hostiface.Bank, height uint64) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		Admin:       access.NewAdmin(cfg.Admin),
		Hooks:       access.NewHookSet(),
		Slashers:    access.NewSlasherSet(),
		Points:      snapshot.New(),
		Dist:        shares.NewDistribution(cfg.Denom),
		Adjustments: make(map[poetypes.Address]*WithdrawAdjustment),
		Halflife:    Halflife{DurationSeconds: cfg.HalflifeSeconds},
		Self:        cfg.Self,
		Bank:        bank,
		Logger:      logger,
	}
	for _, m := range cfg.InitialMembers {
		e.Points.Set(m.Addr, m.Points, height)
		e.adjustmentLocked(m.Addr)
	}
	return e
}

// adjustmentLocked returns addr's adjustment record, creating it with
// Delegated defaulting to addr if absent. Callers hold e.mu for
// writing, except New, which runs before the engine is shared.
func (e *Engine) adjustmentLocked(addr poetypes.Address) *WithdrawAdjustment {
	w, ok := e.Adjustments[addr]
	if !ok {
		w = newAdjustment(addr)
		e.Adjustments[addr] = w
	}
	return w
}

// applyPointsCorrection absorbs a membership delta for addr into its
// withdraw-correction ledger entry at the distribution's current
// shares_per_point, so the reward-claim identity stays exact.
func (e *Engine) applyPointsCorrection(addr poetypes.Address, delta int64) {
	w := e.adjustmentLocked(addr)
	w.ShareCorrection = e.Dist.CorrectionForDelta(w.ShareCorrection, delta)
}
