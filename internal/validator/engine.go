package validator

import (
	"crypto/ed25519"
	"fmt"

	"poe-core/internal/decimal"
	"poe-core/internal/hostiface"
	"poe-core/internal/poeerrors"
	"poe-core/internal/poetypes"
)

// SlashFunc forwards a slash to a sibling engine (engagement or stake).
// The validator engine holds no direct reference to either to avoid an
// import cycle; the node wiring layer supplies one SlashFunc per
// sibling engine at construction time.
type SlashFunc func(caller, addr poetypes.Address, portion decimal.Portion, height uint64) (*hostiface.Response, error)

// UpdateAdmin transfers admin rights; see access.Admin.Update.
func (e *Engine) UpdateAdmin(caller poetypes.Address, newAdmin *poetypes.Address) (*hostiface.Response, error) {
	if err := e.Admin.Update(caller, newAdmin); err != nil {
		return nil, err
	}
	return hostiface.NewResponse("update_admin", map[string]string{"sender": caller.Hex()}), nil
}

// ConfigUpdate carries the optional fields of UpdateConfig; nil fields
// are left unchanged.
type ConfigUpdate struct {
	MinPoints             *uint64
	MaxValidators         *uint32
	Scaling               *uint32
	FeePercentage         *decimal.Portion
	AutoUnjail            *bool
	DoubleSignSlashRatio  *decimal.Portion
	DistributionContracts []DistributionContract
	VerifyValidators      *bool
	OfflineJailDuration   *int64
}

// UpdateConfig applies a partial config edit, admin-only. MinPoints,
// MaxValidators and Scaling must be non-zero, portions must lie in
// [0, 1], and distribution ratios must sum to at most 1.
func (e *Engine) UpdateConfig(caller poetypes.Address, u ConfigUpdate) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if u.MinPoints != nil {
		if *u.MinPoints == 0 {
			return nil, poeerrors.ErrInvalidMinPoints
		}
		e.Config.MinPoints = *u.MinPoints
	}
	if u.MaxValidators != nil {
		if *u.MaxValidators == 0 {
			return nil, poeerrors.ErrInvalidMaxValidators
		}
		e.Config.MaxValidators = *u.MaxValidators
	}
	if u.Scaling != nil {
		if *u.Scaling == 0 {
			return nil, poeerrors.ErrInvalidScaling
		}
		e.Config.Scaling = *u.Scaling
	}
	if u.FeePercentage != nil {
		if err := u.FeePercentage.Validate(); err != nil {
			return nil, err
		}
		e.Config.FeePercentage = *u.FeePercentage
	}
	if u.AutoUnjail != nil {
		e.Config.AutoUnjail = *u.AutoUnjail
	}
	if u.DoubleSignSlashRatio != nil {
		if err := u.DoubleSignSlashRatio.Validate(); err != nil {
			return nil, err
		}
		e.Config.DoubleSignSlashRatio = *u.DoubleSignSlashRatio
	}
	if u.DistributionContracts != nil {
		if err := validateRatioSum(u.DistributionContracts); err != nil {
			return nil, err
		}
		e.Config.DistributionContracts = u.DistributionContracts
	}
	if u.VerifyValidators != nil {
		e.Config.VerifyValidators = *u.VerifyValidators
	}
	if u.OfflineJailDuration != nil {
		e.Config.OfflineJailDuration = *u.OfflineJailDuration
	}

	return hostiface.NewResponse("update_config", map[string]string{"sender": caller.Hex()}), nil
}

func validateRatioSum(contracts []DistributionContract) error {
	sum := decimal.Zero
	for _, dc := range contracts {
		sum = sum.Add(dc.Ratio)
	}
	if sum.Cmp(decimal.NewPortion(1, 1)) > 0 {
		return poeerrors.ErrInvalidRewardsRatio
	}
	return nil
}

// RegisterValidatorKey binds caller to a consensus pubkey exactly once.
func (e *Engine) RegisterValidatorKey(caller poetypes.Address, pubkey ed25519.PublicKey, metadata ValidatorMetadata) (*hostiface.Response, error) {
	if len(pubkey) != ed25519.PublicKeySize {
		return nil, poeerrors.ErrInvalidPubkey
	}
	if err := validateMetadata(metadata); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.Operators[caller]; exists {
		return nil, poeerrors.ErrAlreadyRegistered
	}
	key := string(pubkey)
	if holder, taken := e.PubkeyToOperator[key]; taken && !holder.Equal(caller) {
		return nil, poeerrors.ErrDuplicatePubkey
	}

	e.Operators[caller] = &OperatorInfo{Pubkey: pubkey, Metadata: metadata}
	e.PubkeyToOperator[key] = caller

	return hostiface.NewResponse("register_validator_key", map[string]string{
		"operator": caller.Hex(),
		"moniker":  metadata.Moniker,
	}), nil
}

// UpdateMetadata replaces caller's own operator metadata.
func (e *Engine) UpdateMetadata(caller poetypes.Address, metadata ValidatorMetadata) (*hostiface.Response, error) {
	if err := validateMetadata(metadata); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	op, ok := e.Operators[caller]
	if !ok {
		return nil, poeerrors.ErrOperatorNotFound
	}
	op.Metadata = metadata

	return hostiface.NewResponse("update_metadata", map[string]string{"operator": caller.Hex()}), nil
}

func validateMetadata(m ValidatorMetadata) error {
	if len(m.Moniker) < minMonikerLength || len(m.Moniker) > maxMetadataSize {
		return &poeerrors.InvalidMetadata{Field: "moniker", Min: minMonikerLength, Max: maxMetadataSize}
	}
	checkOptional := func(field string, v *string) error {
		if v == nil {
			return nil
		}
		if len(*v) < minMetadataSize || len(*v) > maxMetadataSize {
			return &poeerrors.InvalidMetadata{Field: field, Min: minMetadataSize, Max: maxMetadataSize}
		}
		return nil
	}
	if err := checkOptional("identity", m.Identity); err != nil {
		return err
	}
	if err := checkOptional("website", m.Website); err != nil {
		return err
	}
	if m.Website != nil {
		w := *m.Website
		if len(w) < 7 || (w[:7] != "http://" && (len(w) < 8 || w[:8] != "https://")) {
			return poeerrors.ErrInvalidMetadataWebsitePrefix
		}
	}
	if err := checkOptional("security_contact", m.SecurityContact); err != nil {
		return err
	}
	if err := checkOptional("details", m.Details); err != nil {
		return err
	}
	return nil
}

// JailDuration is either a fixed duration in seconds, or forever.
type JailDuration struct {
	Seconds *int64
	Forever bool
}

// Jail sets an operator's jailing period, admin-only.
func (e *Engine) Jail(caller, operator poetypes.Address, duration JailDuration, now int64) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.Operators[operator]; !ok {
		return nil, poeerrors.ErrOperatorNotFound
	}

	period := JailingPeriod{Start: now}
	if duration.Forever {
		period.End = JailEnd{Forever: true}
	} else {
		seconds := int64(0)
		if duration.Seconds != nil {
			seconds = *duration.Seconds
		}
		end := now + seconds
		period.End = JailEnd{Until: &end}
	}
	e.Jail[operator] = period

	return hostiface.NewResponse("jail", map[string]string{
		"operator": operator.Hex(),
		"sender":   caller.Hex(),
	}), nil
}

// Unjail lifts a jailing. Admin may unjail anyone at any time; a
// non-admin may only unjail themselves, and only after the stored end
// has elapsed. A forever jailing (tombstone) is irreversible.
func (e *Engine) Unjail(caller poetypes.Address, operator *poetypes.Address, now int64) (*hostiface.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := caller
	if operator != nil {
		target = *operator
	}

	isAdmin := e.Admin.Require(caller) == nil
	j, jailed := e.Jail[target]
	if !jailed {
		return hostiface.NewResponse("unjail", map[string]string{"operator": target.Hex()}), nil
	}
	if j.End.Forever {
		return nil, poeerrors.NewUnauthorized("operator %s is tombstoned and cannot be unjailed", target.Hex())
	}
	if !isAdmin {
		if !target.Equal(caller) {
			return nil, poeerrors.NewUnauthorized("caller %s may not unjail %s", caller.Hex(), target.Hex())
		}
		if !j.IsExpired(now) {
			return nil, poeerrors.ErrJailingNotExpired
		}
	}
	delete(e.Jail, target)

	return hostiface.NewResponse("unjail", map[string]string{
		"operator": target.Hex(),
		"sender":   caller.Hex(),
	}), nil
}

// Slash forwards an admin-invoked slash of addr to every registered
// sibling engine (engagement, stake), admin-only.
func (e *Engine) Slash(caller, addr poetypes.Address, portion decimal.Portion, height uint64, targets []SlashFunc) (*hostiface.Response, error) {
	if err := e.Admin.Require(caller); err != nil {
		return nil, err
	}
	if err := portion.Validate(); err != nil {
		return nil, err
	}
	return e.forwardSlash(caller, addr, portion, height, targets, "slash")
}

func (e *Engine) forwardSlash(caller, addr poetypes.Address, portion decimal.Portion, height uint64, targets []SlashFunc, action string) (*hostiface.Response, error) {
	resp := hostiface.NewResponse(action, map[string]string{
		"addr":    addr.Hex(),
		"portion": portion.String(),
	})

	e.mu.Lock()
	if op, ok := e.Operators[addr]; ok {
		op.Slashing = append(op.Slashing, ValidatorSlashing{Height: height, Portion: portion})
	}
	e.mu.Unlock()

	for _, t := range targets {
		sub, err := t(e.Self, addr, portion, height)
		if err != nil {
			return nil, fmt.Errorf("forwarding %s: %w", action, err)
		}
		if sub != nil {
			resp.Events = append(resp.Events, sub.Events...)
			resp.Messages = append(resp.Messages, sub.Messages...)
		}
	}
	return resp, nil
}

// DoubleSign handles a host-reported double-sign: forwards a slash at
// double_sign_slash_ratio to every sibling engine and tombstones the
// operator (jail forever).
func (e *Engine) DoubleSign(operator poetypes.Address, height uint64, now int64, targets []SlashFunc) (*hostiface.Response, error) {
	e.mu.Lock()
	if op, ok := e.Operators[operator]; ok {
		op.Tombstoned = true
	}
	e.Jail[operator] = JailingPeriod{Start: now, End: JailEnd{Forever: true}}
	e.mu.Unlock()

	resp, err := e.forwardSlash(e.Self, operator, e.Config.DoubleSignSlashRatio, height, targets, "double_sign")
	if err != nil {
		return nil, err
	}
	resp.AddEvent(hostiface.Event{Type: "tombstone", Attributes: map[string]string{"operator": operator.Hex()}})
	return resp, nil
}

// RecordSignature clears operator's pending offline-verification
// window upon observing a signed block from them.
func (e *Engine) RecordSignature(operator poetypes.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pendingOffline, operator)
}
