package validator

import (
	"sort"

	"poe-core/internal/poetypes"
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

// OperatorView is the query-facing projection of one operator's state.
type OperatorView struct {
	Operator        poetypes.Address   `json:"operator"`
	Info            OperatorInfo       `json:"info"`
	JailedUntil     *JailingPeriod     `json:"jailed_until,omitempty"`
}

func (e *Engine) view(addr poetypes.Address, op *OperatorInfo) OperatorView {
	v := OperatorView{Operator: addr, Info: *op}
	if j, ok := e.Jail[addr]; ok {
		jc := j
		v.JailedUntil = &jc
	}
	return v
}

// Validator answers the single-operator query.
func (e *Engine) Validator(operator poetypes.Address) (OperatorView, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	op, ok := e.Operators[operator]
	if !ok {
		return OperatorView{}, false
	}
	return e.view(operator, op), true
}

// ListValidators is the paginated ascending-by-address operator listing.
func (e *Engine) ListValidators(startAfter *poetypes.Address, limit int) []OperatorView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	addrs := make([]poetypes.Address, 0, len(e.Operators))
	for a := range e.Operators {
		addrs = append(addrs, a)
	}
	sortByAddr(addrs)

	limit = clampLimit(limit)
	out := make([]OperatorView, 0, len(addrs))
	for _, a := range addrs {
		if startAfter != nil && !startAfter.Less(a) {
			continue
		}
		out = append(out, e.view(a, e.Operators[a]))
		if len(out) == limit {
			break
		}
	}
	return out
}

// ListActiveValidators is the current active set, ordered by power
// descending.
func (e *Engine) ListActiveValidators() []ActiveValidator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ActiveValidator, len(e.Active))
	copy(out, e.Active)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Power != out[j].Power {
			return out[i].Power > out[j].Power
		}
		return out[i].Operator.Less(out[j].Operator)
	})
	return out
}

// ListJailedValidators lists every currently-jailed operator, ascending
// by address.
func (e *Engine) ListJailedValidators(startAfter *poetypes.Address, limit int) []OperatorView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	addrs := make([]poetypes.Address, 0, len(e.Jail))
	for a := range e.Jail {
		addrs = append(addrs, a)
	}
	sortByAddr(addrs)

	limit = clampLimit(limit)
	out := make([]OperatorView, 0, len(addrs))
	for _, a := range addrs {
		if startAfter != nil && !startAfter.Less(a) {
			continue
		}
		op, ok := e.Operators[a]
		if !ok {
			continue
		}
		out = append(out, e.view(a, op))
		if len(out) == limit {
			break
		}
	}
	return out
}

// SimulateActiveValidators recomputes the active set against current
// state without committing it, for the "what would the next epoch
// boundary produce" query.
func (e *Engine) SimulateActiveValidators(now int64) []ActiveValidator {
	e.mu.RLock()
	if e.Membership == nil {
		e.mu.RUnlock()
		return nil
	}
	minPoints := e.Config.MinPoints
	maxValidators := e.Config.MaxValidators
	scaling := e.Config.Scaling
	candidates := e.Membership.TopByPointsDesc(minPoints, -1)
	operators := e.Operators
	jail := e.Jail
	autoUnjail := e.Config.AutoUnjail
	e.mu.RUnlock()

	eligible := make([]ActiveValidator, 0, len(candidates))
	for _, m := range candidates {
		op, registered := operators[m.Addr]
		if !registered || op.Tombstoned {
			continue
		}
		if j, jailed := jail[m.Addr]; jailed {
			if j.End.Forever {
				continue
			}
			if !(autoUnjail && j.IsExpired(now)) {
				continue
			}
		}
		eligible = append(eligible, ActiveValidator{Operator: m.Addr, Pubkey: op.Pubkey, Power: m.Points * uint64(scaling)})
		if uint32(len(eligible)) == maxValidators {
			break
		}
	}
	return eligible
}

// ListValidatorSlashing answers the per-operator slashing history query.
func (e *Engine) ListValidatorSlashing(operator poetypes.Address) ([]ValidatorSlashing, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	op, ok := e.Operators[operator]
	if !ok {
		return nil, false
	}
	return op.Slashing, true
}

// EpochInfo answers the "epoch" query.
type EpochInfo struct {
	EpochLengthSeconds uint64 `json:"epoch_length"`
	CurrentEpoch        uint64 `json:"current_epoch"`
	LastUpdateTime      int64  `json:"last_update_time"`
	LastUpdateHeight    uint64 `json:"last_update_height"`
	NextUpdateTime      int64  `json:"next_update_time"`
}

// EpochQuery answers the "epoch" query as of now.
func (e *Engine) EpochQuery(now int64) EpochInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	current := e.CurrentEpoch(now)
	var next int64
	if e.Config.EpochLengthSeconds > 0 {
		next = int64((current + 1) * e.Config.EpochLengthSeconds)
	}
	return EpochInfo{
		EpochLengthSeconds: e.Config.EpochLengthSeconds,
		CurrentEpoch:       current,
		LastUpdateTime:     e.Epoch.LastUpdateTime,
		LastUpdateHeight:   e.Epoch.LastUpdateHeight,
		NextUpdateTime:     next,
	}
}

// AdminAddr answers the admin query.
func (e *Engine) AdminAddr() *poetypes.Address { return e.Admin.Get() }

// ConfigQuery answers the configuration query.
func (e *Engine) ConfigQuery() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Config
}
