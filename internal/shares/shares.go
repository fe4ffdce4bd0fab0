// Package shares implements the fixed-point "shares per point" reward
// accounting identity used by the engagement engine: for a member that
// never changed points and never withdrew, their claim equals
// points * shares_per_point >> SharesShift. Point changes and
// withdrawals are absorbed into a per-member correction so the
// identity stays exact without rewriting every member's claim on every
// distribution.
//
// Distribute computes amount << SharesShift and its division by total
// points in uint256.Int; the S * points and S * delta products in
// Withdrawable and CorrectionForDelta use math/big.
package shares

import (
	"math/big"

	"github.com/holiman/uint256"
)

// SharesShift is the fixed left-shift carrying sub-unit precision in
// shares_per_point.
const SharesShift = 32

// Distribution is the per-denom reward pool state D.
type Distribution struct {
	Denom             string
	SharesPerPoint    *uint256.Int
	SharesLeftover    uint64
	DistributedTotal  *big.Int
	WithdrawableTotal *big.Int
}

// NewDistribution returns a zeroed distribution for denom.
func NewDistribution(denom string) *Distribution {
	return &Distribution{
		Denom:             denom,
		SharesPerPoint:    new(uint256.Int),
		DistributedTotal:  new(big.Int),
		WithdrawableTotal: new(big.Int),
	}
}

// Distribute folds amount into the distribution given the current total
// points T. Returns ErrNoMembersToDistributeTo (via the caller, which
// checks T==0 first) is the caller's responsibility; Distribute itself
// assumes T > 0 and amount > 0 — callers must no-op on amount == 0
// themselves, since that is a silent success rather than an error.
func (d *Distribution) Distribute(amount uint64, totalPoints uint64) {
	points := new(uint256.Int).Lsh(uint256.NewInt(amount), SharesShift)
	points.Add(points, uint256.NewInt(d.SharesLeftover))

	tp := uint256.NewInt(totalPoints)
	perPoint := new(uint256.Int).Div(points, tp)
	leftover := new(uint256.Int).Mod(points, tp)

	d.SharesPerPoint.Add(d.SharesPerPoint, perPoint)
	d.SharesLeftover = leftover.Uint64()

	amountBig := new(big.Int).SetUint64(amount)
	d.DistributedTotal.Add(d.DistributedTotal, amountBig)
	d.WithdrawableTotal.Add(d.WithdrawableTotal, amountBig)
}

// Withdrawable computes ((S*points)+correction)>>SharesShift - withdrawn
// for one member, given the distribution's current shares_per_point.
func (d *Distribution) Withdrawable(points uint64, correction, withdrawn *big.Int) *big.Int {
	s := d.SharesPerPoint.ToBig()
	p := new(big.Int).SetUint64(points)
	claim := new(big.Int).Mul(s, p)
	claim.Add(claim, correction)
	claim.Rsh(claim, SharesShift)
	claim.Sub(claim, withdrawn)
	return claim
}

// CorrectionForDelta returns the updated shares_correction after a
// member's points change by delta (positive on gain, negative on loss),
// at the distribution's current shares_per_point S:
// correction -= S * delta.
func (d *Distribution) CorrectionForDelta(correction *big.Int, delta int64) *big.Int {
	s := d.SharesPerPoint.ToBig()
	dd := big.NewInt(delta)
	prod := new(big.Int).Mul(s, dd)
	return new(big.Int).Sub(correction, prod)
}

