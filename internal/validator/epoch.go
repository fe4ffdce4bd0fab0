package validator

import (
	"math/big"

	"poe-core/internal/hostiface"
	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
)

// EndBlock is the sudo end-block maintenance path: if the block's
// timestamp belongs to a new epoch, recompute the active set and run
// reward distribution.
func (e *Engine) EndBlock(now int64, height uint64, epochReward *big.Int, accumulatedFees *big.Int) (*hostiface.Response, error) {
	epoch := e.CurrentEpoch(now)

	e.mu.RLock()
	due := epoch != e.Epoch.LastEpoch
	e.mu.RUnlock()
	if !due {
		return nil, nil
	}

	resp := &hostiface.Response{}

	recomputeResp := e.recomputeActiveSet(now, height)
	resp.Events = append(resp.Events, recomputeResp.Events...)
	resp.Messages = append(resp.Messages, recomputeResp.Messages...)

	if epochReward != nil {
		rewardResp, err := e.distributeEpochRewards(epochReward, accumulatedFees)
		if err != nil {
			return nil, err
		}
		resp.Events = append(resp.Events, rewardResp.Events...)
		resp.Messages = append(resp.Messages, rewardResp.Messages...)
	}

	e.mu.Lock()
	e.Epoch = EpochState{LastEpoch: epoch, LastUpdateTime: now, LastUpdateHeight: height}
	e.mu.Unlock()

	return resp, nil
}

// recomputeActiveSet implements the spec's seven-step selection
// algorithm. Selection failure to produce any eligible validator keeps
// the prior active set and emits a diagnostic event rather than
// leaving the chain without validators.
func (e *Engine) recomputeActiveSet(now int64, height uint64) *hostiface.Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp := &hostiface.Response{}

	if e.Membership == nil {
		resp.AddEvent(hostiface.Event{Type: "validator_set_unchanged", Attributes: map[string]string{"reason": "no membership source configured"}})
		return resp
	}

	candidates := e.Membership.TopByPointsDesc(e.Config.MinPoints, -1)

	eligible := make([]snapshot.Member, 0, len(candidates))
	for _, m := range candidates {
		op, registered := e.Operators[m.Addr]
		if !registered {
			continue
		}
		if op.Tombstoned || e.isJailed(m.Addr, now) {
			continue
		}
		eligible = append(eligible, m)
	}

	if uint32(len(eligible)) > e.Config.MaxValidators {
		eligible = eligible[:e.Config.MaxValidators]
	}

	if len(eligible) == 0 {
		resp.AddEvent(hostiface.Event{Type: "validator_set_unchanged", Attributes: map[string]string{"reason": "selection produced an empty set"}})
		return resp
	}

	newActive := make([]ActiveValidator, 0, len(eligible))
	newActiveSet := make(map[poetypes.Address]bool, len(eligible))
	for _, m := range eligible {
		op := e.Operators[m.Addr]
		newActive = append(newActive, ActiveValidator{
			Operator: m.Addr,
			Pubkey:   op.Pubkey,
			Power:    m.Points * uint64(e.Config.Scaling),
		})
		newActiveSet[m.Addr] = true
	}

	oldActiveSet := make(map[poetypes.Address]bool, len(e.Active))
	for _, v := range e.Active {
		oldActiveSet[v.Operator] = true
	}

	for addr, op := range e.Operators {
		wasActive := oldActiveSet[addr]
		isActive := newActiveSet[addr]
		op.ActiveValidator = isActive
		if isActive && !wasActive {
			resp.AddEvent(hostiface.Event{Type: "validator_activated", Attributes: map[string]string{"operator": addr.Hex()}})
			if e.Config.VerifyValidators {
				e.pendingOffline[addr] = pendingOfflineCheck{sinceHeight: height}
			}
		} else if wasActive && !isActive {
			resp.AddEvent(hostiface.Event{Type: "validator_deactivated", Attributes: map[string]string{"operator": addr.Hex()}})
		}
	}

	e.Active = newActive
	e.RewardsGroup.SyncToActive(newActive, height)
	return resp
}

// CheckOfflineValidators jails any operator still pending its
// first-signature check as of height, per spec's offline-verification
// rule: "fails to sign their first epoch-boundary block is jailed for
// offline_jail_duration. Repeat indefinitely."
func (e *Engine) CheckOfflineValidators(height uint64, now int64) *hostiface.Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp := &hostiface.Response{}
	if !e.Config.VerifyValidators {
		return resp
	}
	for addr, pending := range e.pendingOffline {
		if pending.sinceHeight >= height {
			continue
		}
		end := now + e.Config.OfflineJailDuration
		e.Jail[addr] = JailingPeriod{Start: now, End: JailEnd{Until: &end}}
		delete(e.pendingOffline, addr)
		resp.AddEvent(hostiface.Event{Type: "jail", Attributes: map[string]string{
			"operator": addr.Hex(),
			"reason":   "offline_at_activation",
		}})
	}
	return resp
}
