package validator

import (
	"testing"

	"poe-core/internal/storage"
)

func TestValidatorPersistRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(10, 5, nil)
	admin := addr(1)
	op := addr(0xA)

	if _, err := e.RegisterValidatorKey(op, pubkey(1), moniker("validator-a")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := e.Jail(admin, op, JailDuration{Seconds: int64Ptr(100)}, 0); err != nil {
		t.Fatalf("jail: %v", err)
	}

	store := storage.NewMemStore()
	if err := e.Persist(store); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored := newTestEngine(10, 5, nil)
	if err := restored.Restore(store); err != nil {
		t.Fatalf("restore: %v", err)
	}

	view, ok := restored.Validator(op)
	if !ok {
		t.Fatal("expected operator to survive restore")
	}
	if view.Info.Metadata.Moniker != "validator-a" {
		t.Fatalf("moniker = %q, want validator-a", view.Info.Metadata.Moniker)
	}
	if view.JailedUntil == nil {
		t.Fatal("expected jailing to survive restore")
	}
	if _, err := restored.RegisterValidatorKey(op, pubkey(1), moniker("dup")); err == nil {
		t.Fatal("expected restored pubkey index to reject a duplicate registration")
	}
}

func int64Ptr(v int64) *int64 { return &v }
