package ledger

import (
	"math/big"
	"testing"

	"poe-core/internal/poetypes"
)

func addr(b byte) poetypes.Address {
	var a poetypes.Address
	a[len(a)-1] = b
	return a
}

func TestCreditDebitTransfer(t *testing.T) {
	l := New(nil)
	a, b := addr(1), addr(2)

	if err := l.Credit(a, "upoe", big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	bal, err := l.Balance(a, "upoe")
	if err != nil || bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance = %s, err=%v, want 100", bal, err)
	}

	if err := l.Transfer(a, b, "upoe", big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	balA, _ := l.Balance(a, "upoe")
	balB, _ := l.Balance(b, "upoe")
	if balA.Cmp(big.NewInt(60)) != 0 || balB.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("post-transfer balances a=%s b=%s, want 60/40", balA, balB)
	}

	if err := l.Debit(a, "upoe", big.NewInt(1000)); err == nil {
		t.Fatal("expected insufficient balance error")
	}
}
