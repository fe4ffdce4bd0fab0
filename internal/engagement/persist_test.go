package engagement

import (
	"math/big"
	"testing"

	"poe-core/internal/storage"
)

func TestEngagementPersistRestoreRoundTrip(t *testing.T) {
	admin := addr(1)
	a, bM := addr(0xA), addr(0xB)
	self := addr(0xFF)
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
	if _, err := e.WithdrawRewards(a, nil, nil); err != nil {
		t.Fatalf("withdraw a: %v", err)
	}

	store := storage.NewMemStore()
	if err := e.Persist(store); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored := New(Config{Denom: "usdc", Admin: &admin, Self: self}, bank, 1)
	if err := restored.Restore(store, 1); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if p := restored.Member(a); p == nil || *p != 11 {
		t.Fatalf("member a points = %v, want 11", p)
	}
	if p := restored.Member(bM); p == nil || *p != 6 {
		t.Fatalf("member b points = %v, want 6", p)
	}
	if restored.Dist.SharesPerPoint.Cmp(e.Dist.SharesPerPoint) != 0 {
		t.Fatalf("shares_per_point = %s, want %s", restored.Dist.SharesPerPoint, e.Dist.SharesPerPoint)
	}
	if restored.Dist.DistributedTotal.Cmp(e.Dist.DistributedTotal) != 0 {
		t.Fatalf("distributed_total = %s, want %s", restored.Dist.DistributedTotal, e.Dist.DistributedTotal)
	}

	wantA := e.Adjustments[a]
	gotA := restored.Adjustments[a]
	if gotA == nil || gotA.WithdrawnRewards.Cmp(wantA.WithdrawnRewards) != 0 {
		t.Fatalf("adjustment a withdrawn = %v, want %s", gotA, wantA.WithdrawnRewards)
	}
}
