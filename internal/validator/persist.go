package validator

import (
	"encoding/json"
	"fmt"

	"poe-core/internal/poetypes"
	"poe-core/internal/storage"
)

type operatorRecord struct {
	Operator poetypes.Address `json:"operator"`
	Info     OperatorInfo     `json:"info"`
}

type jailRecord struct {
	Operator poetypes.Address `json:"operator"`
	Period   JailingPeriod    `json:"period"`
}

// Persist writes the operator registry, jailing table, config, and
// epoch state to store under the spec's stable key layout.
func (e *Engine) Persist(store storage.KVStore) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ops := make([]operatorRecord, 0, len(e.Operators))
	for addr, info := range e.Operators {
		ops = append(ops, operatorRecord{Operator: addr, Info: *info})
	}
	if err := putJSON(store, storage.KeyOperators, ops); err != nil {
		return err
	}

	jails := make([]jailRecord, 0, len(e.Jail))
	for addr, period := range e.Jail {
		jails = append(jails, jailRecord{Operator: addr, Period: period})
	}
	if err := putJSON(store, storage.KeyJail, jails); err != nil {
		return err
	}

	if err := putJSON(store, storage.KeyConfig, e.Config); err != nil {
		return err
	}
	return putJSON(store, storage.KeyEpoch, e.Epoch)
}

// Restore loads a previously Persisted state, replacing the operator
// registry, jailing table, config, and epoch state. The active set and
// rewards group are not persisted directly - they are rebuilt on the
// next epoch boundary by recomputeActiveSet.
func (e *Engine) Restore(store storage.KVStore) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ops []operatorRecord
	if err := getJSON(store, storage.KeyOperators, &ops); err != nil {
		return err
	}
	e.Operators = make(map[poetypes.Address]*OperatorInfo, len(ops))
	e.PubkeyToOperator = make(map[string]poetypes.Address, len(ops))
	for _, r := range ops {
		info := r.Info
		e.Operators[r.Operator] = &info
		if len(info.Pubkey) > 0 {
			e.PubkeyToOperator[string(info.Pubkey)] = r.Operator
		}
	}

	var jails []jailRecord
	if err := getJSON(store, storage.KeyJail, &jails); err != nil {
		return err
	}
	e.Jail = make(map[poetypes.Address]JailingPeriod, len(jails))
	for _, r := range jails {
		e.Jail[r.Operator] = r.Period
	}

	var cfg Config
	if ok, err := getJSONOK(store, storage.KeyConfig, &cfg); err != nil {
		return err
	} else if ok {
		cfg.normalize()
		e.Config = cfg
	}

	var epoch EpochState
	if ok, err := getJSONOK(store, storage.KeyEpoch, &epoch); err != nil {
		return err
	} else if ok {
		e.Epoch = epoch
	}
	return nil
}

func putJSON(store storage.KVStore, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return store.Put([]byte(key), b)
}

func getJSON(store storage.KVStore, key string, v any) error {
	_, err := getJSONOK(store, key, v)
	return err
}

func getJSONOK(store storage.KVStore, key string, v any) (bool, error) {
	b, ok, err := store.Get([]byte(key))
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
