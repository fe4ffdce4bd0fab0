package validator

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"poe-core/internal/decimal"
	"poe-core/internal/hostiface"
	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
)

func addr(b byte) poetypes.Address {
	var a poetypes.Address
	a[len(a)-1] = b
	return a
}

func pubkey(seed byte) ed25519.PublicKey {
	s := make([]byte, ed25519.SeedSize)
	s[0] = seed
	return ed25519.NewKeyFromSeed(s).Public().(ed25519.PublicKey)
}

func moniker(name string) ValidatorMetadata { return ValidatorMetadata{Moniker: name} }

type fakeMembership struct {
	points *snapshot.Points
}

func (f *fakeMembership) TopByPointsDesc(minPoints uint64, n int) []snapshot.Member {
	return f.points.TopByPointsDesc(minPoints, n)
}

func newTestEngine(minPoints uint64, maxValidators uint32, membership *fakeMembership) *Engine {
	admin := addr(1)
	return New(InitParams{
		Config: Config{
			MinPoints:          minPoints,
			MaxValidators:      maxValidators,
			EpochLengthSeconds: 100,
			Scaling:            1,
		},
		Admin:      &admin,
		Self:       addr(0xFE),
		Membership: membership,
	})
}

func TestRegisterValidatorKeyOnceOnly(t *testing.T) {
	e := newTestEngine(1, 10, nil)
	op := addr(0xA)
	key := pubkey(1)

	if _, err := e.RegisterValidatorKey(op, key, moniker("validator-a")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := e.RegisterValidatorKey(op, key, moniker("validator-a-again")); err == nil {
		t.Fatal("expected AlreadyRegistered on second registration")
	}

	other := addr(0xB)
	if _, err := e.RegisterValidatorKey(other, key, moniker("validator-b")); err == nil {
		t.Fatal("expected DuplicatePubkey when reusing another operator's key")
	}
}

func TestRegisterValidatorKeyRejectsBadPubkeyAndMetadata(t *testing.T) {
	e := newTestEngine(1, 10, nil)
	op := addr(0xA)

	if _, err := e.RegisterValidatorKey(op, []byte{1, 2, 3}, moniker("x")); err == nil {
		t.Fatal("expected InvalidPubkey for short key")
	}
	if _, err := e.RegisterValidatorKey(op, pubkey(1), moniker("ab")); err == nil {
		t.Fatal("expected InvalidMetadata for too-short moniker")
	}
	badWebsite := "ftp://example.com"
	meta := ValidatorMetadata{Moniker: "validator-a", Website: &badWebsite}
	if _, err := e.RegisterValidatorKey(op, pubkey(1), meta); err == nil {
		t.Fatal("expected InvalidMetadataWebsitePrefix")
	}
}

func TestJailExcludesFromSelection(t *testing.T) {
	points := snapshot.New()
	a, b := addr(0xA), addr(0xB)
	points.Set(a, 50, 1)
	points.Set(b, 40, 1)
	membership := &fakeMembership{points: points}

	e := newTestEngine(10, 5, membership)
	admin := addr(1)
	if _, err := e.RegisterValidatorKey(a, pubkey(1), moniker("validator-a")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RegisterValidatorKey(b, pubkey(2), moniker("validator-b")); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Jail(admin, a, JailDuration{Forever: true}, 1000); err != nil {
		t.Fatalf("jail: %v", err)
	}

	resp := e.recomputeActiveSet(1000, 2)
	_ = resp
	active := e.ListActiveValidators()
	if len(active) != 1 || !active[0].Operator.Equal(b) {
		t.Fatalf("active set = %+v, want only b", active)
	}
}

func TestUnjailRulesForNonAdmin(t *testing.T) {
	e := newTestEngine(1, 10, nil)
	admin := addr(1)
	op := addr(0xA)
	if _, err := e.RegisterValidatorKey(op, pubkey(1), moniker("validator-a")); err != nil {
		t.Fatal(err)
	}
	dur := int64(100)
	if _, err := e.Jail(admin, op, JailDuration{Seconds: &dur}, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Unjail(op, nil, 50); err == nil {
		t.Fatal("expected JailingNotExpired before period elapses")
	}
	if _, err := e.Unjail(op, nil, 100); err != nil {
		t.Fatalf("unjail after period elapses: %v", err)
	}
}

func TestForeverJailIsIrreversible(t *testing.T) {
	e := newTestEngine(1, 10, nil)
	admin := addr(1)
	op := addr(0xA)
	if _, err := e.RegisterValidatorKey(op, pubkey(1), moniker("validator-a")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Jail(admin, op, JailDuration{Forever: true}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Unjail(admin, &op, 1_000_000); err == nil {
		t.Fatal("expected forever jail to stay irreversible even for admin")
	}
}

func TestSelectionScenario(t *testing.T) {
	// 5 operators, points {50,40,40,10,5}; min_points=10, max_validators=3.
	points := snapshot.New()
	op1, op2a, op2b, op3, op4 := addr(1), addr(2), addr(3), addr(4), addr(5)
	points.Set(op1, 50, 1)
	points.Set(op2a, 40, 1)
	points.Set(op2b, 40, 1)
	points.Set(op3, 10, 1)
	points.Set(op4, 5, 1)
	membership := &fakeMembership{points: points}

	e := newTestEngine(10, 3, membership)
	for i, op := range []poetypes.Address{op1, op2a, op2b, op3, op4} {
		if _, err := e.RegisterValidatorKey(op, pubkey(byte(i+1)), moniker("validator")); err != nil {
			t.Fatal(err)
		}
	}

	e.recomputeActiveSet(0, 1)
	active := e.ListActiveValidators()
	if len(active) != 3 {
		t.Fatalf("active set size = %d, want 3", len(active))
	}
	for _, v := range active {
		if v.Operator.Equal(op4) {
			t.Fatal("5-point operator should be filtered by min_points")
		}
		if v.Operator.Equal(op3) {
			t.Fatal("10-point operator should be excluded by max_validators cap")
		}
	}
}

func TestDoubleSignTombstones(t *testing.T) {
	e := newTestEngine(1, 10, nil)
	op := addr(0xA)
	if _, err := e.RegisterValidatorKey(op, pubkey(1), moniker("validator-a")); err != nil {
		t.Fatal(err)
	}
	e.Config.DoubleSignSlashRatio = decimal.NewPortion(1, 2)

	var forwardedPortion decimal.Portion
	targets := []SlashFunc{
		func(caller, addr poetypes.Address, portion decimal.Portion, height uint64) (*hostiface.Response, error) {
			forwardedPortion = portion
			return &hostiface.Response{}, nil
		},
	}

	resp, err := e.DoubleSign(op, 5, 100, targets)
	if err != nil {
		t.Fatalf("double sign: %v", err)
	}
	if forwardedPortion.Cmp(decimal.NewPortion(1, 2)) != 0 {
		t.Fatalf("forwarded portion = %s, want 1/2", forwardedPortion.String())
	}
	if _, err := e.Unjail(addr(1), &op, 1_000_000); err == nil {
		t.Fatal("tombstoned operator should never be unjailable")
	}
	found := false
	for _, ev := range resp.Events {
		if ev.Type == "tombstone" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a tombstone event")
	}
}

func TestDistributionRatioSumValidation(t *testing.T) {
	e := newTestEngine(1, 10, nil)
	admin := addr(1)
	contracts := []DistributionContract{
		{Contract: addr(0x10), Ratio: decimal.NewPortion(3, 4)},
		{Contract: addr(0x11), Ratio: decimal.NewPortion(1, 2)},
	}
	if _, err := e.UpdateConfig(admin, ConfigUpdate{DistributionContracts: contracts}); err == nil {
		t.Fatal("expected InvalidRewardsRatio when ratios sum above 1")
	}
}

func TestEpochRewardSplit(t *testing.T) {
	e := newTestEngine(1, 10, nil)
	e.Config.RewardDenom = "usdc"
	e.Config.DistributionContracts = []DistributionContract{
		{Contract: addr(0x10), Ratio: decimal.NewPortion(1, 2)},
	}
	resp, err := e.distributeEpochRewards(big.NewInt(1000), big.NewInt(0))
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	var sawSend, sawDistribute bool
	for _, m := range resp.Messages {
		if m.Kind == hostiface.MsgBankSend && m.Amount.Cmp(big.NewInt(500)) == 0 {
			sawSend = true
		}
		if m.Kind == hostiface.MsgDistribute && m.Amount != nil && m.Amount.Cmp(big.NewInt(500)) == 0 {
			sawDistribute = true
		}
	}
	if !sawSend {
		t.Fatalf("expected a 500-unit send to the distribution contract, got %+v", resp.Messages)
	}
	if !sawDistribute {
		t.Fatalf("expected the 500-unit remainder routed to the rewards group, got %+v", resp.Messages)
	}
}
