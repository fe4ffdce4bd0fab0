package stake

import (
	"math/big"
	"testing"

	"poe-core/internal/storage"
)

func TestPersistRestoreRoundTrip(t *testing.T) {
	e := newEngine(10, 10, 100, 2)
	a, b := addr(0xA), addr(0xB)

	if _, err := e.Bond(a, big.NewInt(250), nil, 1); err != nil {
		t.Fatalf("bond a: %v", err)
	}
	if _, err := e.Bond(b, big.NewInt(400), big.NewInt(100), 1); err != nil {
		t.Fatalf("bond b: %v", err)
	}
	if _, err := e.Unbond(a, big.NewInt(100), "usdc", 1000, 2); err != nil {
		t.Fatalf("unbond: %v", err)
	}

	store := storage.NewMemStore()
	if err := e.Persist(store); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored := newEngine(10, 10, 100, 2)
	if err := restored.Restore(store, 2); err != nil {
		t.Fatalf("restore: %v", err)
	}

	wantPoints, wantMember := e.Member(a)
	gotPoints, gotMember := restored.Member(a)
	if gotMember != wantMember || gotPoints != wantPoints {
		t.Fatalf("member a: got (%d,%v), want (%d,%v)", gotPoints, gotMember, wantPoints, wantMember)
	}

	if restored.stakeOf(a).Cmp(e.stakeOf(a)) != 0 {
		t.Fatalf("stake a: got %s, want %s", restored.stakeOf(a), e.stakeOf(a))
	}
	if restored.vstakeOf(b).Cmp(e.vstakeOf(b)) != 0 {
		t.Fatalf("vstake b: got %s, want %s", restored.vstakeOf(b), e.vstakeOf(b))
	}

	wantClaims := e.Claims.ForAddr(a)
	gotClaims := restored.Claims.ForAddr(a)
	if len(gotClaims) != len(wantClaims) {
		t.Fatalf("claim count for a: got %d, want %d", len(gotClaims), len(wantClaims))
	}
	for i := range wantClaims {
		if gotClaims[i].Amount.Cmp(wantClaims[i].Amount) != 0 || gotClaims[i].ReleaseAt != wantClaims[i].ReleaseAt {
			t.Fatalf("claim %d mismatch: got %+v, want %+v", i, gotClaims[i], wantClaims[i])
		}
	}

	if restored.Config.TokensPerPoint.Cmp(e.Config.TokensPerPoint) != 0 {
		t.Fatalf("config tokens_per_point: got %s, want %s", restored.Config.TokensPerPoint, e.Config.TokensPerPoint)
	}
}
