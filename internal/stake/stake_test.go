package stake

import (
	"math/big"
	"testing"

	"poe-core/internal/decimal"
	"poe-core/internal/poetypes"
)

func addr(b byte) poetypes.Address {
	var a poetypes.Address
	a[len(a)-1] = b
	return a
}

func newEngine(minBond, tokensPerPoint int64, unbondSeconds int64, autoReturnLimit int) *Engine {
	return New(InitParams{Config: Config{
		Denom:                  "usdc",
		MinBond:                big.NewInt(minBond),
		TokensPerPoint:         big.NewInt(tokensPerPoint),
		UnbondingPeriodSeconds: unbondSeconds,
		AutoReturnLimit:        autoReturnLimit,
	}})
}

func TestBondUnbondClaim(t *testing.T) {
	e := newEngine(10, 10, 100, 10)
	a := addr(0xA)

	if _, err := e.Bond(a, big.NewInt(250), nil, 1); err != nil {
		t.Fatalf("bond: %v", err)
	}
	points, member := e.Member(a)
	if !member || points != 25 {
		t.Fatalf("points after bond 250/10 = %d member=%v, want 25 true", points, member)
	}

	resp, err := e.Unbond(a, big.NewInt(100), "usdc", 1000, 2)
	if err != nil {
		t.Fatalf("unbond: %v", err)
	}
	if len(resp.Messages) != 0 {
		t.Fatalf("unbond should not emit messages directly, got %+v", resp.Messages)
	}
	points, _ = e.Member(a)
	if points != 15 {
		t.Fatalf("points after unbond 100 = %d, want 15", points)
	}

	if _, _, err := e.Claims.ClaimMature(a, 1000); err == nil {
		t.Fatal("claim should not be mature yet")
	}

	claimResp, err := e.Claim(a, 1100)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimResp.Messages) != 1 || claimResp.Messages[0].Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("claim payout = %+v, want 100 liquid", claimResp.Messages)
	}
}

func TestUnbondInsufficientVestingFails(t *testing.T) {
	e := newEngine(10, 10, 100, 10)
	a := addr(0xA)
	if _, err := e.Bond(a, big.NewInt(50), nil, 1); err != nil {
		t.Fatalf("bond: %v", err)
	}
	if _, err := e.Unbond(a, big.NewInt(100), "usdc", 1000, 2); err == nil {
		t.Fatal("expected insufficient vesting stake error")
	}
}

func TestSlashAcrossStakeAndClaims(t *testing.T) {
	e := newEngine(10, 10, 1000, 10)
	slasher := addr(2)
	a := addr(0xA)

	if err := e.Slashers.Add(slasher); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Bond(a, big.NewInt(400), nil, 1); err != nil {
		t.Fatalf("bond: %v", err)
	}
	if _, err := e.Unbond(a, big.NewInt(100), "usdc", 1000, 2); err != nil {
		t.Fatalf("unbond: %v", err)
	}
	// 300 remains staked, 100 sits in a maturing claim.

	if _, err := e.Slash(slasher, a, decimal.NewPortion(1, 2), 3); err != nil {
		t.Fatalf("slash: %v", err)
	}
	info := e.Staked(a)
	if info.Stake.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("live stake after 50%% slash = %s, want 150", info.Stake)
	}
	claims := e.Claims.ForAddr(a)
	if len(claims) != 1 || claims[0].Amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("claim after 50%% slash = %+v, want amount 50", claims)
	}
}

func TestSlashUnknownAddrNoop(t *testing.T) {
	e := newEngine(10, 10, 1000, 10)
	slasher := addr(2)
	if err := e.Slashers.Add(slasher); err != nil {
		t.Fatal(err)
	}
	resp, err := e.Slash(slasher, addr(0x99), decimal.NewPortion(1, 2), 1)
	if err != nil {
		t.Fatalf("slash unknown addr should succeed as no-op: %v", err)
	}
	if len(resp.Events) != 0 || len(resp.Messages) != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}

func TestAutoReleaseBatching(t *testing.T) {
	e := newEngine(1, 1, 100, 2)
	a, b, c := addr(0xA), addr(0xB), addr(0xC)

	for i, who := range []poetypes.Address{a, b, c} {
		if _, err := e.Bond(who, big.NewInt(10), nil, uint64(i+1)); err != nil {
			t.Fatalf("bond %d: %v", i, err)
		}
	}
	if _, err := e.Unbond(a, big.NewInt(5), "usdc", 1000, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Unbond(b, big.NewInt(5), "usdc", 1000, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Unbond(c, big.NewInt(5), "usdc", 1000, 6); err != nil {
		t.Fatal(err)
	}
	// all three release at 1100; auto_return_limit=2 should only drain two.

	resp := e.AutoRelease(1100)
	if resp == nil || len(resp.Messages) != 2 {
		t.Fatalf("first auto-release should drain exactly 2 claims, got %+v", resp)
	}

	resp2 := e.AutoRelease(1100)
	if resp2 == nil || len(resp2.Messages) != 1 {
		t.Fatalf("second auto-release should drain the remaining claim, got %+v", resp2)
	}

	resp3 := e.AutoRelease(1100)
	if resp3 != nil {
		t.Fatalf("third auto-release should be a no-op, got %+v", resp3)
	}
}

func TestConfigFloorsMinBondAndTokensPerPoint(t *testing.T) {
	e := New(InitParams{Config: Config{Denom: "usdc", UnbondingPeriodSeconds: 10}})
	cfg := e.ConfigQuery()
	if cfg.MinBond.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("min_bond should floor to 1, got %s", cfg.MinBond)
	}
	if cfg.TokensPerPoint.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("tokens_per_point should floor to 1, got %s", cfg.TokensPerPoint)
	}
}

func TestZeroPortionSlashIsNoop(t *testing.T) {
	e := newEngine(10, 10, 1000, 10)
	slasher := addr(2)
	a := addr(0xA)
	if err := e.Slashers.Add(slasher); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Bond(a, big.NewInt(100), nil, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Slash(slasher, a, decimal.Zero, 2); err != nil {
		t.Fatalf("slash: %v", err)
	}
	info := e.Staked(a)
	if info.Stake.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("zero-portion slash should not change stake, got %s", info.Stake)
	}
}

func TestFullPortionSlashEmptiesStake(t *testing.T) {
	e := newEngine(10, 10, 1000, 10)
	slasher := addr(2)
	a := addr(0xA)
	if err := e.Slashers.Add(slasher); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Bond(a, big.NewInt(100), nil, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Slash(slasher, a, decimal.NewPortion(1, 1), 2); err != nil {
		t.Fatalf("slash: %v", err)
	}
	info := e.Staked(a)
	if info.Stake.Sign() != 0 {
		t.Fatalf("full-portion slash should empty stake, got %s", info.Stake)
	}
	if info.Member {
		t.Fatal("address should no longer be a member after full slash")
	}
}
