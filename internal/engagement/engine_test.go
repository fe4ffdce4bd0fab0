package engagement

import (
	"math/big"
	"testing"

	"poe-core/internal/decimal"
	"poe-core/internal/poetypes"
)

type fakeBank struct {
	balances map[poetypes.Address]*big.Int
}

func newFakeBank() *fakeBank { return &fakeBank{balances: map[poetypes.Address]*big.Int{}} }

func (b *fakeBank) Balance(addr poetypes.Address, denom string) (*big.Int, error) {
	v, ok := b.balances[addr]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}

func addr(b byte) poetypes.Address {
	var a poetypes.Address
	a[len(a)-1] = b
	return a
}

func TestDistributeAndWithdraw(t *testing.T) {
	admin := addr(1)
	a, bM := addr(0xA), addr(0xB)

	self := addr(0xFF) // this engine's own address
	bank := newFakeBank()
	bank.balances[self] = big.NewInt(170)

	e := New(Config{
		Denom: "usdc",
		Admin: &admin,
		Self:  self,
		InitialMembers: []MemberPoints{
			{Addr: a, Points: 11},
			{Addr: bM, Points: 6},
		},
	}, bank, 1)

	if _, err := e.DistributeRewards(self, nil); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	expectedPerPoint := new(big.Int).Lsh(big.NewInt(170), 32)
	expectedPerPoint.Div(expectedPerPoint, big.NewInt(17))
	if e.Dist.SharesPerPoint.ToBig().Cmp(expectedPerPoint) != 0 {
		t.Fatalf("shares_per_point = %s, want %s", e.Dist.SharesPerPoint.ToBig(), expectedPerPoint)
	}
	if e.Dist.SharesLeftover != 0 {
		t.Fatalf("shares_leftover = %d, want 0", e.Dist.SharesLeftover)
	}

	respA, err := e.WithdrawRewards(a, nil, nil)
	if err != nil {
		t.Fatalf("withdraw A: %v", err)
	}
	if len(respA.Messages) != 1 || respA.Messages[0].Amount.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("A payout = %+v, want 110", respA.Messages)
	}

	respB, err := e.WithdrawRewards(bM, nil, nil)
	if err != nil {
		t.Fatalf("withdraw B: %v", err)
	}
	if len(respB.Messages) != 1 || respB.Messages[0].Amount.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("B payout = %+v, want 60", respB.Messages)
	}
}

func TestDistributeNoMembersFails(t *testing.T) {
	self := addr(0xFF)
	bank := newFakeBank()
	bank.balances[self] = big.NewInt(50)
	e := New(Config{Denom: "usdc", Self: self}, bank, 1)
	if _, err := e.DistributeRewards(addr(1), nil); err == nil {
		t.Fatal("expected NoMembersToDistributeTo")
	}
}

func TestHalflifeSequence(t *testing.T) {
	a, bM := addr(0xA), addr(0xB)
	dur := int64(180 * 24 * 60 * 60)
	e := New(Config{
		Denom:           "usdc",
		HalflifeSeconds: &dur,
		InitialMembers: []MemberPoints{
			{Addr: a, Points: 11},
			{Addr: bM, Points: 6},
		},
	}, newFakeBank(), 1)

	wantA := []uint64{6, 3, 2, 1}
	wantB := []uint64{3, 2, 1, 1}
	now := int64(0)
	for i := 0; i < 4; i++ {
		now += dur
		if _, err := e.RunHalflife(now, uint64(i+2)); err != nil {
			t.Fatalf("halflife %d: %v", i, err)
		}
		gotA, _ := e.Points.Get(a)
		gotB, _ := e.Points.Get(bM)
		if gotA != wantA[i] || gotB != wantB[i] {
			t.Fatalf("round %d: A=%d B=%d, want A=%d B=%d", i+1, gotA, gotB, wantA[i], wantB[i])
		}
	}
}

func TestSlashUnknownMemberNoop(t *testing.T) {
	slasher := addr(2)
	e := New(Config{Denom: "usdc"}, newFakeBank(), 1)
	if err := e.Slashers.Add(slasher); err != nil {
		t.Fatal(err)
	}
	resp, err := e.Slash(slasher, addr(0x99), decimal.NewPortion(1, 2), 2)
	if err != nil {
		t.Fatalf("slash unknown member should succeed as no-op: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}

func TestSlashRemovesPoints(t *testing.T) {
	slasher := addr(2)
	a := addr(0xA)
	e := New(Config{
		Denom:          "usdc",
		InitialMembers: []MemberPoints{{Addr: a, Points: 10}},
	}, newFakeBank(), 1)
	if err := e.Slashers.Add(slasher); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Slash(slasher, a, decimal.NewPortion(3, 10), 2); err != nil {
		t.Fatalf("slash: %v", err)
	}
	got, _ := e.Points.Get(a)
	if got != 7 {
		t.Fatalf("points after 30%% slash of 10 = %d, want 7", got)
	}
}

func TestDelegatedWithdrawalRoundTrip(t *testing.T) {
	a, delegate := addr(0xA), addr(0xB)
	e := New(Config{Denom: "usdc"}, newFakeBank(), 1)

	if _, err := e.DelegateWithdrawal(a, delegate); err != nil {
		t.Fatal(err)
	}
	if e.Delegated(a) != delegate {
		t.Fatal("delegate not set")
	}
	if _, err := e.DelegateWithdrawal(a, a); err != nil {
		t.Fatal(err)
	}
	if e.Delegated(a) != a {
		t.Fatal("delegate not restored to self")
	}
}

func TestHookAddRemoveRoundTrip(t *testing.T) {
	admin := addr(1)
	hook := addr(0x10)
	e := New(Config{Denom: "usdc", Admin: &admin}, newFakeBank(), 1)

	if _, err := e.AddHook(admin, hook); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RemoveHook(admin, hook); err != nil {
		t.Fatal(err)
	}
	if len(e.ListHooks()) != 0 {
		t.Fatalf("hooks should be empty after round trip, got %v", e.ListHooks())
	}
}
