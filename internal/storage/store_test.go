package storage

import "testing"

func TestMemStorePutGetDelete(t *testing.T) {
	s := NewMemStore()
	key := []byte("members")

	if _, ok, err := s.Get(key); err != nil || ok {
		t.Fatalf("expected miss on empty store, got ok=%v err=%v", ok, err)
	}

	if err := s.Put(key, []byte(`[{"addr":"0x1","points":5}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		t.Fatalf("get after put: ok=%v err=%v", ok, err)
	}
	if string(v) != `[{"addr":"0x1","points":5}]` {
		t.Fatalf("unexpected value %q", v)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(key); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestMemStoreIteratePrefixOrdered(t *testing.T) {
	s := NewMemStore()
	s.Put([]byte("claims__release/0003"), []byte("c"))
	s.Put([]byte("claims__release/0001"), []byte("a"))
	s.Put([]byte("claims__release/0002"), []byte("b"))
	s.Put([]byte("members"), []byte("unrelated"))

	var seen []string
	err := s.IteratePrefix([]byte("claims__release"), func(key, value []byte) error {
		seen = append(seen, string(value))
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 3 || seen[0] != "a" || seen[1] != "b" || seen[2] != "c" {
		t.Fatalf("expected ordered a,b,c; got %v", seen)
	}
}
