package engagement

import (
	"fmt"
	"math/big"

	"poe-core/internal/decimal"
	"poe-core/internal/hostiface"
	"poe-core/internal/poeerrors"
	"poe-core/internal/poetypes"
)

// UpdateAdmin transfers admin rights; see access.Admin.Update.
func (e *Engine) UpdateAdmin(caller poetypes.Address, newAdmin *poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Update(caller, newAdmin); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("update_admin", map[string]string{"sender": caller.Hex()}), nil
}

// AddHook registers a hook contract, admin-only.
func (e *Engine) AddHook(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Hooks.Add(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("add_hook", map[string]string{"hook": addr.Hex()}), nil
}

// RemoveHook unregisters a hook contract, admin-only.
func (e *Engine) RemoveHook(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Hooks.Remove(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("remove_hook", map[string]string{"hook": addr.Hex()}), nil
}

// AddSlasher registers a slasher address, admin-only.
func (e *Engine) AddSlasher(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Slashers.Add(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("add_slasher", map[string]string{"slasher": addr.Hex()}), nil
}

// RemoveSlasher unregisters a slasher address, admin-only.
func (e *Engine) RemoveSlasher(caller, addr poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := e.Slashers.Remove(addr); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("remove_slasher", map[string]string{"slasher": addr.Hex()}), nil
}

// hookMessages builds one hostiface.Msg per registered hook carrying
// the full membership diff, in registration order (design note: hook
// fan-out is synchronous message emission, not a callback).
func (e *Engine) hookMessages(diff any) []hostiface.Msg {
	hooks := e.Hooks.List()
	msgs := make([]hostiface.Msg, 0, len(hooks))
	for _, h := range hooks {
		msgs = append(msgs, hostiface.Msg{Kind: hostiface.MsgHook, Contract: h, Payload: diff})
	}
	return msgs
}

// UpdateMembers is the admin-only bulk membership edit: add replaces
// (or creates) the listed members' points, remove deletes the listed
// members. Every change pushes a diff entry and absorbs the delta into
// that member's withdraw correction so the reward identity stays exact.
func (e *Engine) UpdateMembers(caller poetypes.Address, add []MemberPoints, remove []poetypes.Address, height uint64) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	type diffEntry struct {
		Addr poetypes.Address `json:"addr"`
		Old  *uint64          `json:"old,omitempty"`
		New  *uint64          `json:"new,omitempty"`
	}
	var diffs []diffEntry

	for _, m := range add {
		old, existed := e.Points.Get(m.Addr)
		var oldp *uint64
		if existed {
			o := old
			oldp = &o
		}
		e.Points.Set(m.Addr, m.Points, height)
		np := m.Points
		diffs = append(diffs, diffEntry{Addr: m.Addr, Old: oldp, New: &np})

		var delta int64
		if existed {
			delta = int64(m.Points) - int64(old)
		} else {
			delta = int64(m.Points)
		}
		e.applyPointsCorrection(m.Addr, delta)
	}

	for _, addr := range remove {
		old, existed := e.Points.Get(addr)
		if !existed {
			continue
		}
		e.Points.Remove(addr, height)
		o := old
		diffs = append(diffs, diffEntry{Addr: addr, Old: &o})
		e.applyPointsCorrection(addr, -int64(old))
	}

	resp := hostiface.NewResponse("update_members", map[string]string{"sender": caller.Hex()})
	resp.Messages = e.hookMessages(diffs)
	return resp, nil
}

// AddPoints increments addr's points by points, admin-only convenience
// wrapper around the same diff/correction machinery as UpdateMembers.
func (e *Engine) AddPoints(caller, addr poetypes.Address, points uint64, height uint64) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old, _ := e.Points.Get(addr)
	newPoints := old + points
	e.Points.Set(addr, newPoints, height)
	e.applyPointsCorrection(addr, int64(points))

	return hostiface.NewResponse("add_points", map[string]string{
		"addr":   addr.Hex(),
		"points": fmt.Sprintf("%d", points),
	}), nil
}

// UpdateMember is the trusted single-member edit exposed only via Sudo
// (spec §6: "EE also handles update_member (trusted single-member
// edit)"). Semantics mirror UpdateMembers' add path for one member.
func (e *Engine) UpdateMember(addr poetypes.Address, points uint64, height uint64) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, existed := e.Points.Get(addr)
	e.Points.Set(addr, points, height)
	var delta int64
	if existed {
		delta = int64(points) - int64(old)
	} else {
		delta = int64(points)
	}
	e.applyPointsCorrection(addr, delta)

	resp := hostiface.NewResponse("update_member", map[string]string{"addr": addr.Hex()})
	resp.Messages = e.hookMessages([]MemberPoints{{Addr: addr, Points: points}})
	return resp, nil
}

// DistributeRewards folds the contract's undistributed bank balance
// into the reward pool. amount = bank balance - withdrawable_total; a
// zero amount or zero total points are silent no-ops/failures per
// spec §4.1.
func (e *Engine) DistributeRewards(caller poetypes.Address, sender *poetypes.Address) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	balance, err := e.Bank.Balance(e.Self, e.Dist.Denom)
	if err != nil {
		return nil, err
	}
	amountBig := new(big.Int).Sub(balance, e.Dist.WithdrawableTotal)
	if amountBig.Sign() <= 0 {
		return &hostiface.Response{}, nil
	}
	if !amountBig.IsUint64() {
		return nil, fmt.Errorf("distribute amount overflows u64: %s", amountBig.String())
	}
	amount := amountBig.Uint64()

	total := e.Points.Total()
	if total == 0 {
		return nil, poeerrors.ErrNoMembersToDistributeTo
	}

	e.Dist.Distribute(amount, total)

	attrs := map[string]string{
		"sender": caller.Hex(),
		"amount": fmt.Sprintf("%d", amount),
		"denom":  e.Dist.Denom,
	}
	if sender != nil {
		attrs["on_behalf_of"] = sender.Hex()
	}
	return hostiface.NewResponse("distribute_rewards", attrs), nil
}

// WithdrawRewards pays out owner's accrued-but-unwithdrawn rewards to
// receiver. The caller must be owner or owner's delegated address;
// receiver defaults to the caller, owner defaults to the caller.
func (e *Engine) WithdrawRewards(caller poetypes.Address, owner, receiver *poetypes.Address) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	who := caller
	if owner != nil {
		who = *owner
	}
	to := caller
	if receiver != nil {
		to = *receiver
	}

	w := e.adjustmentLocked(who)
	if !w.Delegated.Equal(caller) && !who.Equal(caller) {
		return nil, poeerrors.NewUnauthorized("caller %s may not withdraw for %s", caller.Hex(), who.Hex())
	}

	points, _ := e.Points.Get(who)
	payout := e.Dist.Withdrawable(points, w.ShareCorrection, w.WithdrawnRewards)
	if payout.Sign() <= 0 {
		return &hostiface.Response{}, nil
	}

	w.WithdrawnRewards.Add(w.WithdrawnRewards, payout)
	e.Dist.WithdrawableTotal.Sub(e.Dist.WithdrawableTotal, payout)

	resp := hostiface.NewResponse("withdraw_rewards", map[string]string{
		"owner":    who.Hex(),
		"receiver": to.Hex(),
		"amount":   payout.String(),
	})
	resp.AddMessage(hostiface.Msg{Kind: hostiface.MsgBankSend, To: to, Amount: new(big.Int).Set(payout), Denom: e.Dist.Denom})
	return resp, nil
}

// DelegateWithdrawal grants delegated the ability to trigger (not
// redirect) caller's reward withdrawals.
func (e *Engine) DelegateWithdrawal(caller, delegated poetypes.Address) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.adjustmentLocked(caller)
	w.Delegated = delegated
	return hostiface.NewResponse("delegate_withdrawal", map[string]string{
		"sender":    caller.Hex(),
		"delegated": delegated.Hex(),
	}), nil
}

// Slash proportionally removes points from addr. Caller must be a
// registered slasher; portion in [0,1]; no-op success if addr is not a
// member.
func (e *Engine) Slash(caller, addr poetypes.Address, portion decimal.Portion, height uint64) (*hostiface.Response, error) {
	if !e.Slashers.IsSlasher(caller) {
		return nil, poeerrors.NewUnauthorized("caller %s is not a registered slasher", caller.Hex())
	}
	if err := portion.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old, existed := e.Points.Get(addr)
	if !existed {
		return &hostiface.Response{}, nil
	}
	removed := portion.MulFloorUint64(old)
	newPoints := old - removed
	e.Points.Set(addr, newPoints, height)
	e.applyPointsCorrection(addr, -int64(removed))

	return hostiface.NewResponse("slash", map[string]string{
		"addr":    addr.Hex(),
		"portion": portion.String(),
		"removed": fmt.Sprintf("%d", removed),
	}), nil
}

// RunHalflife applies the periodic points reduction if enough time has
// elapsed since LastApplied. It is a no-op (not an error) if halflife
// is disabled or not yet due, and then returns a nil Response. When it
// runs, the Response carries one "halflife" event whose attributes are
// the height and the total points reduction.
func (e *Engine) RunHalflife(now int64, height uint64) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Halflife.DurationSeconds == nil {
		return nil, nil
	}
	due := e.Halflife.LastApplied + *e.Halflife.DurationSeconds
	if now < due {
		return nil, nil
	}

	var totalReduction uint64
	for _, m := range e.Points.ListAscending(nil, -1) {
		if m.Points <= 1 {
			continue
		}
		reduction := m.Points / 2
		newPoints := m.Points - reduction
		e.Points.Set(m.Addr, newPoints, height)
		e.applyPointsCorrection(m.Addr, -int64(reduction))
		totalReduction += reduction
	}
	e.Halflife.LastApplied = now

	resp := &hostiface.Response{Events: []hostiface.Event{{
		Type: "halflife",
		Attributes: map[string]string{
			"height":    fmt.Sprintf("%d", height),
			"reduction": fmt.Sprintf("%d", totalReduction),
		},
	}}}
	return resp, nil
}

// WantsEndBlockerOnPromotion reports whether the engine should request
// the EndBlocker privilege when the host promotes it, per spec §6's
// privilege_change handling: only if halflife is configured.
func (e *Engine) WantsEndBlockerOnPromotion() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Halflife.DurationSeconds != nil
}
