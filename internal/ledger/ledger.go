// Package ledger implements the multi-denom bank balance store the
// engines read through hostiface.Bank, adapted from the teacher's
// StateDB balance path (chain/node/blockchain.go GetBalance/SetBalance):
// an in-memory cache backed by a "balance-<addr>-<denom>" keyspace in
// the shared storage.KVStore, instead of one keyed by address alone.
package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"poe-core/internal/poetypes"
	"poe-core/internal/storage"
)

// Ledger is the host-side bank: it holds per-(address, denom) balances,
// which the node credits for the BankSend and distribution messages and
// debits for BankBurn the engines emit, and it answers
// hostiface.Bank.Balance queries. Delegate and Undelegate messages do
// not change its balances.
type Ledger struct {
	mu      sync.RWMutex
	store   storage.KVStore
	cache   map[string]*big.Int
}

// New returns a Ledger backed by store. A nil store is a valid
// memory-only ledger, useful in tests.
func New(store storage.KVStore) *Ledger {
	if store == nil {
		store = storage.NewMemStore()
	}
	return &Ledger{store: store, cache: make(map[string]*big.Int)}
}

func balanceKey(addr poetypes.Address, denom string) []byte {
	return []byte(fmt.Sprintf("balance-%s-%s", addr.Hex(), denom))
}

// Balance satisfies hostiface.Bank.
func (l *Ledger) Balance(addr poetypes.Address, denom string) (*big.Int, error) {
	l.mu.RLock()
	key := string(balanceKey(addr, denom))
	if v, ok := l.cache[key]; ok {
		l.mu.RUnlock()
		return new(big.Int).Set(v), nil
	}
	l.mu.RUnlock()

	raw, ok, err := l.store.Get(balanceKey(addr, denom))
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if !ok {
		return new(big.Int), nil
	}
	v, parsed := new(big.Int).SetString(string(raw), 10)
	if !parsed {
		return nil, fmt.Errorf("corrupt balance record for %s/%s", addr.Hex(), denom)
	}

	l.mu.Lock()
	l.cache[key] = v
	l.mu.Unlock()
	return new(big.Int).Set(v), nil
}

// SetBalance overwrites addr's balance in denom, used for genesis
// allocation and test setup.
func (l *Ledger) SetBalance(addr poetypes.Address, denom string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := new(big.Int).Set(amount)
	l.cache[string(balanceKey(addr, denom))] = v
	return l.store.Put(balanceKey(addr, denom), []byte(v.String()))
}

// Credit adds amount to addr's balance in denom.
func (l *Ledger) Credit(addr poetypes.Address, denom string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	cur, err := l.Balance(addr, denom)
	if err != nil {
		return err
	}
	return l.SetBalance(addr, denom, new(big.Int).Add(cur, amount))
}

// Debit subtracts amount from addr's balance in denom; errors if it
// would go negative.
func (l *Ledger) Debit(addr poetypes.Address, denom string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	cur, err := l.Balance(addr, denom)
	if err != nil {
		return err
	}
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s has %s%s, need %s", addr.Hex(), cur, denom, amount)
	}
	return l.SetBalance(addr, denom, new(big.Int).Sub(cur, amount))
}

// Burn removes amount from circulation by debiting addr without
// crediting anywhere else, modeling hostiface.MsgBankBurn.
func (l *Ledger) Burn(addr poetypes.Address, denom string, amount *big.Int) error {
	return l.Debit(addr, denom, amount)
}

// Transfer moves amount from one address to another in one denom.
func (l *Ledger) Transfer(from, to poetypes.Address, denom string, amount *big.Int) error {
	if err := l.Debit(from, denom, amount); err != nil {
		return err
	}
	return l.Credit(to, denom, amount)
}
