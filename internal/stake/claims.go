package stake

import (
	"math/big"
	"sort"

	"poe-core/internal/decimal"
	"poe-core/internal/poeerrors"
	"poe-core/internal/poetypes"
)

// Claim is a pending unbonding claim C (spec.md §3). Claims sharing the
// same (addr, release_at) key are merged by summing amounts — there is
// never more than one Claim per key in the book.
//
// The spec's open question on height-based vs time-based expirations
// is resolved here by forbidding height-based unbonding configs
// outright: ReleaseAt is always a Unix timestamp, so the release-order
// index is always comparable.
type Claim struct {
	Addr           poetypes.Address `json:"addr"`
	Amount         *big.Int         `json:"amount"`
	VestingAmount  *big.Int         `json:"vesting_amount"`
	ReleaseAt      int64            `json:"release_at"`
	CreationHeight uint64           `json:"creation_height"`
}

type claimKey struct {
	addr      poetypes.Address
	releaseAt int64
}

// ClaimBook is the time-ordered unbonding claim ledger, keyed by
// (addr, release_at) with a secondary index ordering all claims by
// release_at across every address.
type ClaimBook struct {
	byKey map[claimKey]*Claim
}

// NewClaimBook returns an empty claim ledger.
func NewClaimBook() *ClaimBook {
	return &ClaimBook{byKey: make(map[claimKey]*Claim)}
}

// Create adds amount/vestingAmount to the claim at (addr, releaseAt),
// merging into an existing claim at that key and preserving the
// earliest creation height, per spec's merge policy.
func (c *ClaimBook) Create(addr poetypes.Address, amount, vestingAmount *big.Int, releaseAt int64, creationHeight uint64) {
	key := claimKey{addr: addr, releaseAt: releaseAt}
	if existing, ok := c.byKey[key]; ok {
		existing.Amount.Add(existing.Amount, amount)
		existing.VestingAmount.Add(existing.VestingAmount, vestingAmount)
		if creationHeight < existing.CreationHeight {
			existing.CreationHeight = creationHeight
		}
		return
	}
	c.byKey[key] = &Claim{
		Addr:           addr,
		Amount:         new(big.Int).Set(amount),
		VestingAmount:  new(big.Int).Set(vestingAmount),
		ReleaseAt:      releaseAt,
		CreationHeight: creationHeight,
	}
}

// ForAddr returns addr's live claims, ascending by release_at.
func (c *ClaimBook) ForAddr(addr poetypes.Address) []*Claim {
	var out []*Claim
	for k, claim := range c.byKey {
		if k.addr == addr {
			out = append(out, claim)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReleaseAt < out[j].ReleaseAt })
	return out
}

// ClaimMature releases every one of addr's claims whose release_at <=
// now, removing them and summing their liquid/vesting components.
// Returns ErrNothingToClaim if both sums are zero.
func (c *ClaimBook) ClaimMature(addr poetypes.Address, now int64) (liquid, vesting *big.Int, err error) {
	liquid, vesting = new(big.Int), new(big.Int)
	var toRemove []claimKey
	for k, claim := range c.byKey {
		if k.addr != addr || claim.ReleaseAt > now {
			continue
		}
		liquid.Add(liquid, claim.Amount)
		vesting.Add(vesting, claim.VestingAmount)
		toRemove = append(toRemove, k)
	}
	for _, k := range toRemove {
		delete(c.byKey, k)
	}
	if liquid.Sign() == 0 && vesting.Sign() == 0 {
		return nil, nil, poeerrors.ErrNothingToClaim
	}
	return liquid, vesting, nil
}

// AddrRelease is one address's aggregated release from AutoRelease.
type AddrRelease struct {
	Addr    poetypes.Address
	Liquid  *big.Int
	Vesting *big.Int
}

// AutoRelease releases at most limit globally-oldest mature claims
// (release_at <= now), oldest first, grouping the released amounts by
// address. This is the deterministic, bounded-work end-of-block path;
// the (limit+1)-th eligible claim is left for the next call.
func (c *ClaimBook) AutoRelease(now int64, limit int) []AddrRelease {
	type entry struct {
		key   claimKey
		claim *Claim
	}
	var eligible []entry
	for k, claim := range c.byKey {
		if claim.ReleaseAt <= now {
			eligible = append(eligible, entry{key: k, claim: claim})
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].claim.ReleaseAt != eligible[j].claim.ReleaseAt {
			return eligible[i].claim.ReleaseAt < eligible[j].claim.ReleaseAt
		}
		return eligible[i].key.addr.Less(eligible[j].key.addr)
	})
	if limit >= 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	byAddr := make(map[poetypes.Address]*AddrRelease)
	var order []poetypes.Address
	for _, e := range eligible {
		r, ok := byAddr[e.key.addr]
		if !ok {
			r = &AddrRelease{Addr: e.key.addr, Liquid: new(big.Int), Vesting: new(big.Int)}
			byAddr[e.key.addr] = r
			order = append(order, e.key.addr)
		}
		r.Liquid.Add(r.Liquid, e.claim.Amount)
		r.Vesting.Add(r.Vesting, e.claim.VestingAmount)
		delete(c.byKey, e.key)
	}

	out := make([]AddrRelease, 0, len(order))
	for _, a := range order {
		out = append(out, *byAddr[a])
	}
	return out
}

// SlashResult summarizes what a Slash call removed from one address's
// live claims.
type SlashResult struct {
	LiquidSlashed  *big.Int
	VestingSlashed *big.Int
}

// SlashAddr reduces every live claim of addr by portion, per-claim
// (not a bulk multiplication, so the claim layout — individual
// release_at buckets — is preserved), and returns the total slashed.
//
// Multiple slashes against the same claim within (or across) blocks
// compound multiplicatively rather than summing ratios: each Slash call
// is applied independently against the claim's current amount, so two
// 50% slashes leave 25%. This is a deliberate resolution of the spec's
// second open question, not an accident of implementation order.
func (c *ClaimBook) SlashAddr(addr poetypes.Address, portion decimal.Portion) SlashResult {
	res := SlashResult{LiquidSlashed: new(big.Int), VestingSlashed: new(big.Int)}
	for k, claim := range c.byKey {
		if k.addr != addr {
			continue
		}
		liquidCut := portion.MulFloorBig(claim.Amount)
		vestingCut := portion.MulFloorBig(claim.VestingAmount)
		claim.Amount.Sub(claim.Amount, liquidCut)
		claim.VestingAmount.Sub(claim.VestingAmount, vestingCut)
		res.LiquidSlashed.Add(res.LiquidSlashed, liquidCut)
		res.VestingSlashed.Add(res.VestingSlashed, vestingCut)
	}
	return res
}

// All returns every live claim across every address, ascending by
// release_at then address - the order the secondary release-time index
// is defined over.
func (c *ClaimBook) All() []*Claim {
	out := make([]*Claim, 0, len(c.byKey))
	for _, claim := range c.byKey {
		out = append(out, claim)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReleaseAt != out[j].ReleaseAt {
			return out[i].ReleaseAt < out[j].ReleaseAt
		}
		return out[i].Addr.Less(out[j].Addr)
	})
	return out
}

// Import replaces the book's contents with claims, rebuilding the
// (addr, release_at) key map.
func (c *ClaimBook) Import(claims []*Claim) {
	c.byKey = make(map[claimKey]*Claim, len(claims))
	for _, claim := range claims {
		c.byKey[claimKey{addr: claim.Addr, releaseAt: claim.ReleaseAt}] = claim
	}
}

// List answers the "claims" query: addr's live claims, paginated by
// release_at ascending.
func (c *ClaimBook) List(addr poetypes.Address, startAfter *int64, limit int) []*Claim {
	all := c.ForAddr(addr)
	out := make([]*Claim, 0, len(all))
	skipping := startAfter != nil
	for _, claim := range all {
		if skipping {
			if claim.ReleaseAt == *startAfter {
				skipping = false
			}
			continue
		}
		out = append(out, claim)
		if limit >= 0 && len(out) == limit {
			break
		}
	}
	return out
}
