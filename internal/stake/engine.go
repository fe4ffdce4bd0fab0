package stake

import (
	"fmt"
	"math/big"

	"poe-core/internal/decimal"
	"poe-core/internal/hostiface"
	"poe-core/internal/poeerrors"
	"poe-core/internal/poetypes"
)

// UpdateAdmin transfers admin rights.
func (e *Engine) UpdateAdmin(caller poetypes.Address, newAdmin *poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Update(caller, newAdmin); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("update_admin", map[string]string{"sender": caller.Hex()}), nil
}

// AddHook, RemoveHook, AddSlasher, RemoveSlasher mirror the engagement
// engine's identical lifecycle rules (spec.md §4.2).

func (e *Engine) AddHook(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Hooks.Add(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("add_hook", map[string]string{"hook": addr.Hex()}), nil
}

func (e *Engine) RemoveHook(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Hooks.Remove(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("remove_hook", map[string]string{"hook": addr.Hex()}), nil
}

func (e *Engine) AddSlasher(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Slashers.Add(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("add_slasher", map[string]string{"slasher": addr.Hex()}), nil
}

func (e *Engine) RemoveSlasher(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Slashers.Remove(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("remove_slasher", map[string]string{"slasher": addr.Hex()}), nil
}

// Bond credits sender's liquid and (optionally) vesting stake buckets.
// funds is the liquid amount sent with the message; vestingTokens, if
// non-nil, declares an additional amount to pull from the sender's
// vesting account via a Delegate message to contract custody.
func (e *Engine) Bond(sender poetypes.Address, funds *big.Int, vestingTokens *big.Int, height uint64) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	liquid := new(big.Int).Set(funds)
	vesting := new(big.Int)
	if vestingTokens != nil {
		vesting.Set(vestingTokens)
	}
	if liquid.Sign() == 0 && vesting.Sign() == 0 {
		return nil, poeerrors.ErrNoFunds
	}

	e.Stake[sender] = new(big.Int).Add(e.stakeOf(sender), liquid)
	if vesting.Sign() > 0 {
		e.VStake[sender] = new(big.Int).Add(e.vstakeOf(sender), vesting)
	}

	resp := hostiface.NewResponse("bond", map[string]string{
		"sender":  sender.Hex(),
		"liquid":  liquid.String(),
		"vesting": vesting.String(),
	})
	if vesting.Sign() > 0 {
		resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgDelegate, To: sender, Amount: new(big.Int).Set(vesting), Denom: e.Config.Denom})
	}
	resp.Messages = append(resp.Messages, e.recomputeMembership(sender, height)...)
	return resp, nil
}

// Unbond moves amount of denom out of sender's stake into a new (or
// merged) claim that releases after the configured unbonding period.
// Liquid stake is drawn down first (saturating), the remainder from
// vesting stake (which must be sufficient).
func (e *Engine) Unbond(sender poetypes.Address, amount *big.Int, denom string, now int64, height uint64) (*hostiface.Response, error) {
	if denom != e.Config.Denom {
		return nil, &poeerrors.MissingDenom{Expected: e.Config.Denom}
	}
	if amount.Sign() <= 0 {
		return nil, poeerrors.ErrZeroAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	liquidAvailable := e.stakeOf(sender)
	liquidPortion := new(big.Int).Set(amount)
	if liquidPortion.Cmp(liquidAvailable) > 0 {
		liquidPortion.Set(liquidAvailable)
	}
	vestingPortion := new(big.Int).Sub(amount, liquidPortion)

	if vestingPortion.Sign() > 0 {
		vestingAvailable := e.vstakeOf(sender)
		if vestingPortion.Cmp(vestingAvailable) > 0 {
			return nil, fmt.Errorf("insufficient vesting stake: have %s, need %s", vestingAvailable, vestingPortion)
		}
		e.VStake[sender] = new(big.Int).Sub(vestingAvailable, vestingPortion)
	}
	e.Stake[sender] = new(big.Int).Sub(liquidAvailable, liquidPortion)

	releaseAt := now + e.Config.UnbondingPeriodSeconds
	e.Claims.Create(sender, liquidPortion, vestingPortion, releaseAt, height)

	resp := hostiface.NewResponse("unbond", map[string]string{
		"sender":     sender.Hex(),
		"liquid":     liquidPortion.String(),
		"vesting":    vestingPortion.String(),
		"release_at": fmt.Sprintf("%d", releaseAt),
	})
	resp.Messages = e.recomputeMembership(sender, height)
	return resp, nil
}

// Claim releases every one of the caller's mature claims, emitting a
// bank Send for the liquid sum and an Undelegate for the vesting sum.
func (e *Engine) Claim(caller poetypes.Address, now int64) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	liquid, vesting, err := e.Claims.ClaimMature(caller, now)
	if err != nil {
		return nil, err
	}

	resp := hostiface.NewResponse("claim", map[string]string{
		"sender":  caller.Hex(),
		"liquid":  liquid.String(),
		"vesting": vesting.String(),
	})
	if liquid.Sign() > 0 {
		resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgBankSend, To: caller, Amount: liquid, Denom: e.Config.Denom})
	}
	if vesting.Sign() > 0 {
		resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgUndelegate, To: caller, Amount: vesting, Denom: e.Config.Denom})
	}
	return resp, nil
}

// AutoRelease is the end-of-block maintenance path: release up to
// Config.AutoReturnLimit globally-oldest mature claims, oldest first,
// emitting Send/Undelegate per affected address. No-op if
// AutoReturnLimit <= 0.
func (e *Engine) AutoRelease(now int64) *hostiface.Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Config.AutoReturnLimit <= 0 {
		return nil
	}
	releases := e.Claims.AutoRelease(now, e.Config.AutoReturnLimit)
	if len(releases) == 0 {
		return nil
	}

	resp := &hostiface.Response{}
	for _, r := range releases {
		if r.Liquid.Sign() > 0 {
			resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgBankSend, To: r.Addr, Amount: r.Liquid, Denom: e.Config.Denom})
		}
		if r.Vesting.Sign() > 0 {
			resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgUndelegate, To: r.Addr, Amount: r.Vesting, Denom: e.Config.Denom})
		}
	}
	resp.AddEvent(hostiface.Event{Type: "auto_release", Attributes: map[string]string{
		"count": fmt.Sprintf("%d", len(releases)),
	}})
	return resp
}

// Slash proportionally burns addr's live stake and pending claims.
// Caller must be a registered slasher; portion in [0,1]; no-op success
// if addr has neither a stake entry nor vesting entry.
func (e *Engine) Slash(caller, addr poetypes.Address, portion decimal.Portion, height uint64) (*hostiface.Response, error) {
	if !e.Slashers.IsSlasher(caller) {
		return nil, poeerrors.NewUnauthorized("caller %s is not a registered slasher", caller.Hex())
	}
	if err := portion.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, hasStake := e.Stake[addr]
	_, hasVesting := e.VStake[addr]
	if !hasStake && !hasVesting {
		return &hostiface.Response{}, nil
	}

	liquidStake := e.stakeOf(addr)
	vestingStake := e.vstakeOf(addr)
	liquidCut := portion.MulFloorBig(liquidStake)
	vestingCut := portion.MulFloorBig(vestingStake)
	e.Stake[addr] = new(big.Int).Sub(liquidStake, liquidCut)
	e.VStake[addr] = new(big.Int).Sub(vestingStake, vestingCut)

	claimResult := e.Claims.SlashAddr(addr, portion)

	totalLiquidBurned := new(big.Int).Add(liquidCut, claimResult.LiquidSlashed)
	totalVestingBurned := new(big.Int).Add(vestingCut, claimResult.VestingSlashed)

	resp := hostiface.NewResponse("slash", map[string]string{
		"addr":    addr.Hex(),
		"portion": portion.String(),
	})
	if totalLiquidBurned.Sign() > 0 {
		resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgBankBurn, Amount: totalLiquidBurned, Denom: e.Config.Denom})
	}
	if totalVestingBurned.Sign() > 0 {
		resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgBankBurn, Amount: totalVestingBurned, Denom: e.Config.Denom, Payload: "vesting"})
	}
	resp.Messages = append(resp.Messages, e.recomputeMembership(addr, height)...)
	return resp, nil
}

// WantsEndBlocker reports whether the engine should request the
// EndBlocker privilege: conditional on AutoReturnLimit being set, per
// spec §6's privilege_change handling. Delegator is always requested
// at promotion time, handled by the caller/node wiring since it is not
// conditional on engine state.
func (e *Engine) WantsEndBlocker() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Config.AutoReturnLimit > 0
}
