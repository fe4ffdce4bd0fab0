// Package validator implements the validator engine (spec.md §4.3): an
// operator registry bound to consensus keys, epoch-boundary active-set
// recomputation sourced from an external weighted-membership contract,
// jailing lifecycle, per-epoch reward distribution, double-sign
// slashing, and offline-signing verification.
package validator

import (
	"crypto/ed25519"
	"log"
	"math/big"
	"sort"
	"sync"

	"poe-core/internal/access"
	"poe-core/internal/decimal"
	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
)

// JailEnd is either a Unix timestamp or a permanent tombstone.
type JailEnd struct {
	Until   *int64 `json:"until,omitempty"`
	Forever bool   `json:"forever,omitempty"`
}

// JailingPeriod records when and for how long an operator was jailed.
type JailingPeriod struct {
	Start int64   `json:"start"`
	End   JailEnd `json:"end"`
}

// IsExpired reports whether the jailing period has lapsed by now.
// A forever jailing never expires.
func (j JailingPeriod) IsExpired(now int64) bool {
	if j.End.Forever {
		return false
	}
	return j.End.Until != nil && now >= *j.End.Until
}

// ValidatorMetadata mirrors the Cosmos SDK staking module's validator
// description fields (spec.md §4.3).
type ValidatorMetadata struct {
	Moniker         string  `json:"moniker"`
	Identity        *string `json:"identity,omitempty"`
	Website         *string `json:"website,omitempty"`
	SecurityContact *string `json:"security_contact,omitempty"`
	Details         *string `json:"details,omitempty"`
}

const (
	minMonikerLength = 3
	minMetadataSize  = 1
	maxMetadataSize  = 256
)

// ValidatorSlashing records a single slashing event applied to an
// operator, for the list-validator-slashing query.
type ValidatorSlashing struct {
	Height  uint64          `json:"height"`
	Time    int64           `json:"time"`
	Portion decimal.Portion `json:"portion"`
}

// OperatorInfo is the registry's per-operator record.
type OperatorInfo struct {
	Pubkey          ed25519.PublicKey   `json:"pubkey"`
	Metadata        ValidatorMetadata   `json:"metadata"`
	ActiveValidator bool                `json:"active_validator"`
	Tombstoned      bool                `json:"tombstoned"`
	StartHeight     uint64              `json:"start_height"`
	Slashing        []ValidatorSlashing `json:"slashing,omitempty"`
}

// DistributionContract is one auxiliary reward-splitting target.
type DistributionContract struct {
	Contract poetypes.Address `json:"contract"`
	Ratio    decimal.Portion  `json:"ratio"`
}

// ActiveValidator is one member of the currently active consensus set.
type ActiveValidator struct {
	Operator poetypes.Address  `json:"operator"`
	Pubkey   ed25519.PublicKey `json:"pubkey"`
	Power    uint64            `json:"power"`
}

// Config holds the validator engine's tunable parameters (spec.md §4.3,
// grounded on tgrade-valset's InstantiateMsg/UpdateConfig fields).
type Config struct {
	MinPoints             uint64
	MaxValidators         uint32
	EpochLengthSeconds    uint64
	Scaling               uint32
	FeePercentage         decimal.Portion
	AutoUnjail            bool
	DoubleSignSlashRatio  decimal.Portion
	DistributionContracts []DistributionContract
	VerifyValidators      bool
	OfflineJailDuration   int64
	RewardDenom           string
	EpochReward           *big.Int
}

func (c *Config) normalize() {
	if c.Scaling == 0 {
		c.Scaling = 1
	}
}

// MembershipSource is the external weighted-membership contract VE
// reads from, satisfied by *snapshot.Points and by *stake.Engine's
// TopByPointsDesc wrapper.
type MembershipSource interface {
	TopByPointsDesc(minPoints uint64, n int) []snapshot.Member
}

// SlashTarget describes a receiver of forwarded double-sign slashes.
// The engine does not use it: Slash and DoubleSign forward through the
// SlashFunc targets passed to them, which the node wiring sets to the
// engagement and stake engines' Slash method values.
type SlashTarget interface {
	Slash(caller, addr poetypes.Address, portion decimal.Portion, height uint64) (any, error)
}

// EpochState tracks the last processed epoch boundary.
type EpochState struct {
	LastEpoch        uint64
	LastUpdateTime   int64
	LastUpdateHeight uint64
}

// pendingOfflineCheck marks an operator newly activated with
// verify_validators enabled, awaiting its first epoch-boundary
// signature.
type pendingOfflineCheck struct {
	sinceHeight uint64
}

// Engine is the validator engine instance.
type Engine struct {
	mu sync.RWMutex

	Admin *access.Admin

	Operators        map[poetypes.Address]*OperatorInfo
	PubkeyToOperator map[string]poetypes.Address
	Jail             map[poetypes.Address]JailingPeriod

	Active       []ActiveValidator
	RewardsGroup *RewardsGroup
	Epoch        EpochState
	Config       Config
	Self         poetypes.Address

	pendingOffline map[poetypes.Address]pendingOfflineCheck

	Membership MembershipSource

	Logger *log.Logger
}

// InitParams configures a new validator engine at instantiation.
type InitParams struct {
	Config     Config
	Admin      *poetypes.Address
	Self       poetypes.Address
	Membership MembershipSource
	Logger     *log.Logger
}

// New instantiates a validator engine from genesis config.
func New(p InitParams) *Engine {
	p.Config.normalize()
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		Admin:            access.NewAdmin(p.Admin),
		Operators:        make(map[poetypes.Address]*OperatorInfo),
		PubkeyToOperator: make(map[string]poetypes.Address),
		Jail:             make(map[poetypes.Address]JailingPeriod),
		RewardsGroup:     NewRewardsGroup(),
		Config:           p.Config,
		Self:             p.Self,
		pendingOffline:   make(map[poetypes.Address]pendingOfflineCheck),
		Membership:       p.Membership,
		Logger:           logger,
	}
}

// CurrentEpoch computes floor(t / epoch_length).
func (e *Engine) CurrentEpoch(t int64) uint64 {
	if e.Config.EpochLengthSeconds == 0 {
		return 0
	}
	return uint64(t) / e.Config.EpochLengthSeconds
}

// isJailed reports whether addr is currently excluded from selection:
// jailed forever, or jailed with an unexpired end, or (if auto_unjail
// is off) jailed with an expired end that was never explicitly lifted.
//
// When auto_unjail is set, an expired jailing is treated as absent
// here without requiring an explicit Unjail call.
func (e *Engine) isJailed(addr poetypes.Address, now int64) bool {
	j, ok := e.Jail[addr]
	if !ok {
		return false
	}
	if j.End.Forever {
		return true
	}
	if j.IsExpired(now) {
		return !e.Config.AutoUnjail
	}
	return true
}

func sortByAddr(addrs []poetypes.Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
}
