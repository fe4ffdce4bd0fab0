// Package storage defines the key-value store contract the three
// engines persist through, plus an in-memory implementation used by
// tests and the named stable key layout every engine serializes under.
// The on-disk implementation lives in the leveldbstore subpackage,
// adapted from the teacher's StateDB (chain/node/blockchain.go), which
// wraps github.com/syndtr/goleveldb the same way.
package storage

import (
	"bytes"
	"sort"
	"sync"
)

// KVStore is the narrow persistence contract every engine's Persist and
// Restore pair needs: byte-keyed get/put/delete plus an ordered prefix
// scan for secondary indexes (the claims release-time index).
type KVStore interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Stable top-level keys, matching the spec's persisted state layout.
const (
	KeyMembers             = "members"
	KeyTotal               = "total"
	KeyHalflife            = "halflife"
	KeyDistribution        = "distribution"
	KeyWithdrawAdjustment  = "withdraw_adjustment"
	KeyClaims              = "claims"
	KeyClaimsReleaseIndex  = "claims__release"
	KeyStake               = "stake"
	KeyStakeVesting        = "stake_vesting"
	KeyConfig              = "config"
	KeyOperators           = "operators"
	KeyJail                = "jail"
	KeyEpoch               = "epoch"
)

// MemStore is an in-memory KVStore, used by engine unit tests and by
// any caller that does not need durability across process restarts.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemStore) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemStore) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = m.data[k]
	}
	m.mu.RUnlock()

	for _, k := range keys {
		if err := fn([]byte(k), snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) Close() error { return nil }
