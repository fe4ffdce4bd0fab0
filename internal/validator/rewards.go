package validator

import (
	"math/big"

	"poe-core/internal/hostiface"
	"poe-core/internal/snapshot"
)

// RewardsGroup is the validator-rewards group contract instantiated at
// set-up (spec.md §4.3: "instantiated at set-up from
// validator_group_code_id"): its membership mirrors the current active
// validator set by points, and it receives the epoch-reward remainder
// left after the configured distribution_contracts are paid.
type RewardsGroup struct {
	Points *snapshot.Points
}

// NewRewardsGroup returns an empty rewards-group membership tracker.
func NewRewardsGroup() *RewardsGroup {
	return &RewardsGroup{Points: snapshot.New()}
}

// SyncToActive replaces the group's membership with the current active
// validator set, mirroring each validator's selection power as points.
func (g *RewardsGroup) SyncToActive(active []ActiveValidator, height uint64) {
	wanted := make(map[string]bool, len(active))
	for _, v := range active {
		wanted[v.Operator.Hex()] = true
	}

	for _, m := range g.Points.ListAscending(nil, -1) {
		if !wanted[m.Addr.Hex()] {
			g.Points.Remove(m.Addr, height)
		}
	}
	for _, v := range active {
		g.Points.Set(v.Operator, v.Power, height)
	}
}

// distributeEpochRewards computes the effective per-epoch reward,
// splits it across distribution_contracts (floor division per
// contract), and routes the remainder to the validator-rewards group.
//
// Effective reward R = epoch_reward − fee_percentage*accumulated_fees,
// clamped to non-negative (spec.md §4.3). Edge case documented
// upstream: indivisible remainder tokens from per-contract floor
// division end up with validators, not lost.
func (e *Engine) distributeEpochRewards(epochReward, accumulatedFees *big.Int) (*hostiface.Response, error) {
	e.mu.RLock()
	fee := e.Config.FeePercentage
	contracts := append([]DistributionContract(nil), e.Config.DistributionContracts...)
	denom := e.Config.RewardDenom
	e.mu.RUnlock()

	feeCut := fee.MulFloorBig(accumulatedFees)
	r := new(big.Int).Sub(epochReward, feeCut)
	if r.Sign() < 0 {
		r = new(big.Int)
	}

	resp := &hostiface.Response{}
	remainder := new(big.Int).Set(r)
	for _, dc := range contracts {
		share := dc.Ratio.MulFloorBig(r)
		if share.Sign() <= 0 {
			continue
		}
		remainder.Sub(remainder, share)
		resp.AddMessage(hostiface.Msg{
			Kind:     hostiface.MsgBankSend,
			Contract: dc.Contract,
			Amount:   share,
			Denom:    denom,
		})
		resp.AddMessage(hostiface.Msg{
			Kind:     hostiface.MsgDistribute,
			Contract: dc.Contract,
		})
	}

	if remainder.Sign() > 0 {
		resp.AddMessage(hostiface.Msg{
			Kind:   hostiface.MsgDistribute,
			Amount: remainder,
			Denom:  denom,
			Payload: "validator_rewards_group",
		})
	}

	resp.AddEvent(hostiface.Event{Type: "epoch_reward", Attributes: map[string]string{
		"effective_reward": r.String(),
		"remainder":        remainder.String(),
	}})
	return resp, nil
}
