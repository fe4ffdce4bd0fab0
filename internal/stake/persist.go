package stake

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
	"poe-core/internal/storage"
)

type stakeRecord struct {
	Addr   poetypes.Address `json:"addr"`
	Amount string           `json:"amount"`
}

// Persist writes the engine's membership, stake buckets, and claim
// ledger to store under the spec's stable key layout. The claim
// ledger is written twice: the authoritative JSON list under "claims",
// and one big-endian-keyed entry per claim under "claims__release" so
// a host that only needs the release-ordered scan never has to decode
// the whole list.
func (e *Engine) Persist(store storage.KVStore) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	members := e.Points.ListAscending(nil, -1)
	type memberRecord struct {
		Addr   poetypes.Address `json:"addr"`
		Points uint64           `json:"points"`
	}
	recs := make([]memberRecord, 0, len(members))
	for _, m := range members {
		recs = append(recs, memberRecord{Addr: m.Addr, Points: m.Points})
	}
	if err := putJSON(store, storage.KeyMembers, recs); err != nil {
		return err
	}
	if err := putJSON(store, storage.KeyTotal, e.Points.Total()); err != nil {
		return err
	}

	if err := putJSON(store, storage.KeyStake, bigMapRecords(e.Stake)); err != nil {
		return err
	}
	if err := putJSON(store, storage.KeyStakeVesting, bigMapRecords(e.VStake)); err != nil {
		return err
	}

	claims := e.Claims.All()
	if err := putJSON(store, storage.KeyClaims, claims); err != nil {
		return err
	}
	for _, c := range claims {
		key := releaseIndexKey(c.ReleaseAt, c.Addr)
		val, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal claim index entry: %w", err)
		}
		if err := store.Put(key, val); err != nil {
			return err
		}
	}

	return putJSON(store, storage.KeyConfig, configRecord(e.Config))
}

// Restore loads a previously Persisted state, replacing membership,
// stake buckets, and the claim ledger. Admin/Hooks/Slashers are
// neither persisted nor restored; they keep their construction values.
func (e *Engine) Restore(store storage.KVStore, height uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	type memberRecord struct {
		Addr   poetypes.Address `json:"addr"`
		Points uint64           `json:"points"`
	}
	var recs []memberRecord
	if err := getJSON(store, storage.KeyMembers, &recs); err != nil {
		return err
	}
	e.Points = snapshot.New()
	for _, r := range recs {
		e.Points.Set(r.Addr, r.Points, height)
	}

	var stakeRecs []stakeRecord
	if err := getJSON(store, storage.KeyStake, &stakeRecs); err != nil {
		return err
	}
	stakeMap, err := parseBigMap(stakeRecs)
	if err != nil {
		return fmt.Errorf("restore stake: %w", err)
	}
	e.Stake = stakeMap

	var vstakeRecs []stakeRecord
	if err := getJSON(store, storage.KeyStakeVesting, &vstakeRecs); err != nil {
		return err
	}
	vstakeMap, err := parseBigMap(vstakeRecs)
	if err != nil {
		return fmt.Errorf("restore vesting stake: %w", err)
	}
	e.VStake = vstakeMap

	var claims []*Claim
	if err := getJSON(store, storage.KeyClaims, &claims); err != nil {
		return err
	}
	e.Claims.Import(claims)

	var cfg configRecordJSON
	if ok, err := getJSONOK(store, storage.KeyConfig, &cfg); err != nil {
		return err
	} else if ok {
		parsed, err := cfg.toConfig()
		if err != nil {
			return fmt.Errorf("restore config: %w", err)
		}
		e.Config = parsed
	}
	return nil
}

func bigMapRecords(m map[poetypes.Address]*big.Int) []stakeRecord {
	out := make([]stakeRecord, 0, len(m))
	for addr, amt := range m {
		out = append(out, stakeRecord{Addr: addr, Amount: amt.String()})
	}
	return out
}

func parseBigMap(recs []stakeRecord) (map[poetypes.Address]*big.Int, error) {
	out := make(map[poetypes.Address]*big.Int, len(recs))
	for _, r := range recs {
		amt, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q for %s", r.Amount, r.Addr.Hex())
		}
		out[r.Addr] = amt
	}
	return out, nil
}

type configRecordJSON struct {
	Denom                  string `json:"denom"`
	TokensPerPoint         string `json:"tokens_per_point"`
	MinBond                string `json:"min_bond"`
	UnbondingPeriodSeconds int64  `json:"unbonding_period_seconds"`
	AutoReturnLimit        int    `json:"auto_return_limit"`
}

func configRecord(c Config) configRecordJSON {
	return configRecordJSON{
		Denom:                  c.Denom,
		TokensPerPoint:         c.TokensPerPoint.String(),
		MinBond:                c.MinBond.String(),
		UnbondingPeriodSeconds: c.UnbondingPeriodSeconds,
		AutoReturnLimit:        c.AutoReturnLimit,
	}
}

func (r configRecordJSON) toConfig() (Config, error) {
	tpp, ok := new(big.Int).SetString(r.TokensPerPoint, 10)
	if !ok {
		return Config{}, fmt.Errorf("invalid tokens_per_point %q", r.TokensPerPoint)
	}
	minBond, ok := new(big.Int).SetString(r.MinBond, 10)
	if !ok {
		return Config{}, fmt.Errorf("invalid min_bond %q", r.MinBond)
	}
	cfg := Config{
		Denom:                  r.Denom,
		TokensPerPoint:         tpp,
		MinBond:                minBond,
		UnbondingPeriodSeconds: r.UnbondingPeriodSeconds,
		AutoReturnLimit:        r.AutoReturnLimit,
	}
	cfg.normalize()
	return cfg, nil
}

// releaseIndexKey builds the "claims__release" secondary index key: a
// big-endian release_at so lexicographic byte order matches numeric
// order, followed by the address to disambiguate same-timestamp claims.
func releaseIndexKey(releaseAt int64, addr poetypes.Address) []byte {
	key := make([]byte, len(storage.KeyClaimsReleaseIndex)+1+8+len(addr))
	n := copy(key, storage.KeyClaimsReleaseIndex)
	key[n] = '/'
	n++
	binary.BigEndian.PutUint64(key[n:], uint64(releaseAt))
	n += 8
	copy(key[n:], addr[:])
	return key
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
