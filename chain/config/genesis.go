// Package config loads and validates the genesis state for the three
// PoE engines, adapted from the teacher's GenesisConfig/LoadGenesisConfig/
// Validate idiom (same JSON-file-plus-Validate shape, new field set).
package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"poe-core/internal/decimal"
	"poe-core/internal/poetypes"
	"poe-core/internal/stake"
	"poe-core/internal/validator"
)

// EngagementGenesis configures the engagement engine at genesis.
type EngagementGenesis struct {
	Denom           string             `json:"denom"`
	Admin           *poetypes.Address  `json:"admin,omitempty"`
	HalflifeSeconds *int64             `json:"halflife_seconds,omitempty"`
	InitialMembers  []MemberAllocation `json:"initial_members,omitempty"`
}

// MemberAllocation is one genesis engagement-points grant.
type MemberAllocation struct {
	Addr   poetypes.Address `json:"addr"`
	Points uint64           `json:"points"`
}

// StakeGenesis configures the stake engine at genesis.
type StakeGenesis struct {
	Denom                  string            `json:"denom"`
	Admin                  *poetypes.Address `json:"admin,omitempty"`
	MinBond                string            `json:"min_bond"`
	TokensPerPoint         string            `json:"tokens_per_point"`
	UnbondingPeriodSeconds int64             `json:"unbonding_period_seconds"`
	AutoReturnLimit        int               `json:"auto_return_limit"`
}

// DistributionContractGenesis is one auxiliary reward-splitting target
// at genesis.
type DistributionContractGenesis struct {
	Contract poetypes.Address `json:"contract"`
	Ratio    decimal.Portion  `json:"ratio"`
}

// ValidatorGenesis configures the validator engine at genesis.
type ValidatorGenesis struct {
	Admin                 *poetypes.Address             `json:"admin,omitempty"`
	MinPoints              uint64                        `json:"min_points"`
	MaxValidators          uint32                        `json:"max_validators"`
	EpochLengthSeconds      uint64                        `json:"epoch_length_seconds"`
	Scaling                uint32                        `json:"scaling"`
	FeePercentage          decimal.Portion               `json:"fee_percentage"`
	AutoUnjail             bool                          `json:"auto_unjail"`
	DoubleSignSlashRatio   decimal.Portion               `json:"double_sign_slash_ratio"`
	DistributionContracts  []DistributionContractGenesis `json:"distribution_contracts,omitempty"`
	VerifyValidators       bool                          `json:"verify_validators"`
	OfflineJailDuration    int64                         `json:"offline_jail_duration_seconds"`
	RewardDenom            string                        `json:"reward_denom"`
}

// GenesisConfig is the top-level genesis document for a PoE chain:
// one configuration block per engine, plus the initial bank balances
// the host's ledger is seeded with.
type GenesisConfig struct {
	ChainID     string                      `json:"chain_id"`
	Engagement  EngagementGenesis           `json:"engagement"`
	Stake       StakeGenesis                `json:"stake"`
	Validator   ValidatorGenesis            `json:"validator"`
	BankBalances map[string]string          `json:"bank_balances,omitempty"`
}

// LoadGenesisConfig reads and validates a genesis document from path.
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("genesis config file not found: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis config: %w", err)
	}
	var g GenesisConfig
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis config: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis config: %w", err)
	}
	return &g, nil
}

// Validate checks every field a JSON document can get wrong before the
// engines ever see it: required denoms, parseable integers, valid
// portions, and a distribution-ratio sum within [0,1].
func (g *GenesisConfig) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("missing chain_id")
	}

	if g.Engagement.Denom == "" {
		return fmt.Errorf("engagement: missing denom")
	}
	for i, m := range g.Engagement.InitialMembers {
		if m.Addr.IsZero() {
			return fmt.Errorf("engagement: initial_members[%d]: zero address", i)
		}
	}

	if g.Stake.Denom == "" {
		return fmt.Errorf("stake: missing denom")
	}
	if g.Stake.Denom != g.Engagement.Denom {
		return fmt.Errorf("stake: denom %q must match engagement denom %q", g.Stake.Denom, g.Engagement.Denom)
	}
	if _, ok := new(big.Int).SetString(g.Stake.MinBond, 10); g.Stake.MinBond != "" && !ok {
		return fmt.Errorf("stake: invalid min_bond %q", g.Stake.MinBond)
	}
	if _, ok := new(big.Int).SetString(g.Stake.TokensPerPoint, 10); g.Stake.TokensPerPoint != "" && !ok {
		return fmt.Errorf("stake: invalid tokens_per_point %q", g.Stake.TokensPerPoint)
	}
	if g.Stake.UnbondingPeriodSeconds < 0 {
		return fmt.Errorf("stake: unbonding_period_seconds must be non-negative")
	}
	if g.Stake.AutoReturnLimit < 0 {
		return fmt.Errorf("stake: auto_return_limit must be non-negative")
	}

	if g.Validator.MaxValidators == 0 {
		return fmt.Errorf("validator: max_validators must be greater than zero")
	}
	if g.Validator.EpochLengthSeconds == 0 {
		return fmt.Errorf("validator: epoch_length_seconds must be greater than zero")
	}
	if err := g.Validator.FeePercentage.Validate(); err != nil {
		return fmt.Errorf("validator: fee_percentage: %w", err)
	}
	if err := g.Validator.DoubleSignSlashRatio.Validate(); err != nil {
		return fmt.Errorf("validator: double_sign_slash_ratio: %w", err)
	}
	sum := decimal.Zero
	for i, dc := range g.Validator.DistributionContracts {
		if dc.Contract.IsZero() {
			return fmt.Errorf("validator: distribution_contracts[%d]: zero address", i)
		}
		if err := dc.Ratio.Validate(); err != nil {
			return fmt.Errorf("validator: distribution_contracts[%d]: %w", i, err)
		}
		sum = sum.Add(dc.Ratio)
	}
	if sum.Cmp(decimal.NewPortion(1, 1)) > 0 {
		return fmt.Errorf("validator: distribution_contracts ratios sum above 1")
	}

	for addrStr, balance := range g.BankBalances {
		if _, err := poetypes.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("bank_balances: invalid address %q: %w", addrStr, err)
		}
		if _, ok := new(big.Int).SetString(balance, 10); !ok {
			return fmt.Errorf("bank_balances: invalid balance %q for %s", balance, addrStr)
		}
	}

	return nil
}

// StakeConfig converts the genesis document's stake block into the
// stake engine's runtime Config. Absent MinBond/TokensPerPoint stay
// nil here; stake.New floors them to 1.
func (g *GenesisConfig) StakeConfig() (stake.Config, error) {
	cfg := stake.Config{
		Denom:                  g.Stake.Denom,
		UnbondingPeriodSeconds: g.Stake.UnbondingPeriodSeconds,
		AutoReturnLimit:        g.Stake.AutoReturnLimit,
	}
	if g.Stake.MinBond != "" {
		v, ok := new(big.Int).SetString(g.Stake.MinBond, 10)
		if !ok {
			return stake.Config{}, fmt.Errorf("invalid min_bond %q", g.Stake.MinBond)
		}
		cfg.MinBond = v
	}
	if g.Stake.TokensPerPoint != "" {
		v, ok := new(big.Int).SetString(g.Stake.TokensPerPoint, 10)
		if !ok {
			return stake.Config{}, fmt.Errorf("invalid tokens_per_point %q", g.Stake.TokensPerPoint)
		}
		cfg.TokensPerPoint = v
	}
	return cfg, nil
}

// ValidatorConfig converts the genesis document's validator block into
// the validator engine's runtime Config.
func (g *GenesisConfig) ValidatorConfig() validator.Config {
	contracts := make([]validator.DistributionContract, 0, len(g.Validator.DistributionContracts))
	for _, dc := range g.Validator.DistributionContracts {
		contracts = append(contracts, validator.DistributionContract{Contract: dc.Contract, Ratio: dc.Ratio})
	}
	return validator.Config{
		MinPoints:             g.Validator.MinPoints,
		MaxValidators:         g.Validator.MaxValidators,
		EpochLengthSeconds:    g.Validator.EpochLengthSeconds,
		Scaling:               g.Validator.Scaling,
		FeePercentage:         g.Validator.FeePercentage,
		AutoUnjail:            g.Validator.AutoUnjail,
		DoubleSignSlashRatio:  g.Validator.DoubleSignSlashRatio,
		DistributionContracts: contracts,
		VerifyValidators:      g.Validator.VerifyValidators,
		OfflineJailDuration:   g.Validator.OfflineJailDuration,
		RewardDenom:           g.Validator.RewardDenom,
	}
}

// BankAllocations parses the genesis bank_balances block into address
// to balance pairs.
func (g *GenesisConfig) BankAllocations() (map[poetypes.Address]*big.Int, error) {
	out := make(map[poetypes.Address]*big.Int, len(g.BankBalances))
	for addrStr, balance := range g.BankBalances {
		addr, err := poetypes.ParseAddress(addrStr)
		if err != nil {
			return nil, err
		}
		amt, ok := new(big.Int).SetString(balance, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q for %s", balance, addrStr)
		}
		out[addr] = amt
	}
	return out, nil
}

// DefaultGenesisConfig returns a minimal single-validator devnet
// genesis, used by cmd/poe-noded when no --genesis path is given.
func DefaultGenesisConfig() *GenesisConfig {
	return &GenesisConfig{
		ChainID: "poe-devnet-1",
		Engagement: EngagementGenesis{
			Denom: "upoe",
		},
		Stake: StakeGenesis{
			Denom:                  "upoe",
			MinBond:                "1000000",
			TokensPerPoint:         "1000000",
			UnbondingPeriodSeconds: 1814400, // 21 days
			AutoReturnLimit:        50,
		},
		Validator: ValidatorGenesis{
			MinPoints:           1,
			MaxValidators:       100,
			EpochLengthSeconds:  600,
			Scaling:             1,
			FeePercentage:       decimal.NewPortion(0, 1),
			DoubleSignSlashRatio: decimal.NewPortion(1, 20),
			VerifyValidators:    true,
			OfflineJailDuration: 3600,
			RewardDenom:         "upoe",
		},
	}
}
