package engagement

import (
	"encoding/json"
	"fmt"

	"poe-core/internal/poetypes"
	"poe-core/internal/snapshot"
	"poe-core/internal/storage"
)

// memberRecord is the JSON shape of one "members" row.
type memberRecord struct {
	Addr   poetypes.Address `json:"addr"`
	Points uint64           `json:"points"`
}

type distributionRecord struct {
	Denom             string `json:"denom"`
	SharesPerPoint    string `json:"shares_per_point"`
	SharesLeftover    uint64 `json:"shares_leftover"`
	DistributedTotal  string `json:"distributed_total"`
	WithdrawableTotal string `json:"withdrawable_total"`
}

type adjustmentRecord struct {
	Addr             poetypes.Address `json:"addr"`
	ShareCorrection  string           `json:"shares_correction"`
	WithdrawnRewards string           `json:"withdrawn_rewards"`
	Delegated        poetypes.Address `json:"delegated"`
}

// Persist writes the engine's full state to store under the spec's
// stable key layout: members/total/distribution/withdraw_adjustment/
// halflife, JSON-encoded.
func (e *Engine) Persist(store storage.KVStore) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	members := e.Points.ListAscending(nil, -1)
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

	dr := distributionRecord{
		Denom:             e.Dist.Denom,
		SharesPerPoint:    e.Dist.SharesPerPoint.String(),
		SharesLeftover:    e.Dist.SharesLeftover,
		DistributedTotal:  e.Dist.DistributedTotal.String(),
		WithdrawableTotal: e.Dist.WithdrawableTotal.String(),
	}
	if err := putJSON(store, storage.KeyDistribution, dr); err != nil {
		return err
	}

	adjs := make([]adjustmentRecord, 0, len(e.Adjustments))
	for addr, w := range e.Adjustments {
		adjs = append(adjs, adjustmentRecord{
			Addr:             addr,
			ShareCorrection:  w.ShareCorrection.String(),
			WithdrawnRewards: w.WithdrawnRewards.String(),
			Delegated:        w.Delegated,
		})
	}
	if err := putJSON(store, storage.KeyWithdrawAdjustment, adjs); err != nil {
		return err
	}

	return putJSON(store, storage.KeyHalflife, e.Halflife)
}

// Restore loads a previously Persisted state, replacing the engine's
// in-memory members, distribution, adjustments, and halflife schedule.
// Admin, Hooks, and Slashers are neither persisted nor restored; they
// keep the values the engine was constructed with.
func (e *Engine) Restore(store storage.KVStore, height uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var recs []memberRecord
	if err := getJSON(store, storage.KeyMembers, &recs); err != nil {
		return err
	}
	e.Points = snapshot.New()
	for _, r := range recs {
		e.Points.Set(r.Addr, r.Points, height)
	}

	var dr distributionRecord
	if ok, err := getJSONOK(store, storage.KeyDistribution, &dr); err != nil {
		return err
	} else if ok {
		if _, ok := e.Dist.SharesPerPoint.SetString(dr.SharesPerPoint, 10); !ok {
			return fmt.Errorf("restore distribution: invalid shares_per_point %q", dr.SharesPerPoint)
		}
		e.Dist.Denom = dr.Denom
		e.Dist.SharesLeftover = dr.SharesLeftover
		if _, ok := e.Dist.DistributedTotal.SetString(dr.DistributedTotal, 10); !ok {
			return fmt.Errorf("restore distribution: invalid distributed_total %q", dr.DistributedTotal)
		}
		if _, ok := e.Dist.WithdrawableTotal.SetString(dr.WithdrawableTotal, 10); !ok {
			return fmt.Errorf("restore distribution: invalid withdrawable_total %q", dr.WithdrawableTotal)
		}
	}

	var adjs []adjustmentRecord
	if err := getJSON(store, storage.KeyWithdrawAdjustment, &adjs); err != nil {
		return err
	}
	e.Adjustments = make(map[poetypes.Address]*WithdrawAdjustment, len(adjs))
	for _, a := range adjs {
		w := newAdjustment(a.Delegated)
		if _, ok := w.ShareCorrection.SetString(a.ShareCorrection, 10); !ok {
			return fmt.Errorf("restore adjustment: invalid shares_correction %q", a.ShareCorrection)
		}
		if _, ok := w.WithdrawnRewards.SetString(a.WithdrawnRewards, 10); !ok {
			return fmt.Errorf("restore adjustment: invalid withdrawn_rewards %q", a.WithdrawnRewards)
		}
		e.Adjustments[a.Addr] = w
	}

	var hl Halflife
	if ok, err := getJSONOK(store, storage.KeyHalflife, &hl); err != nil {
		return err
	} else if ok {
		e.Halflife = hl
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
