// Package decimal implements the exact-rational "portion" type used
// wherever the spec calls for a decimal in [0,1]: slash ratios, the
// validator engine's fee percentage, and distribution-contract ratios.
// big.Rat gives exact arithmetic so floor(old*portion) never drifts
// from what a decimal-literal config meant.
package decimal

import (
	"fmt"
	"math/big"

	"poe-core/internal/poeerrors"
)

// Portion is a decimal value constrained to [0,1] once Validate has
// been called; the zero value is 0.
type Portion struct {
	r *big.Rat
}

// Zero is the zero portion.
var Zero = Portion{r: new(big.Rat)}

// NewPortion builds a portion from a numerator/denominator pair.
func NewPortion(num, den int64) Portion {
	return Portion{r: big.NewRat(num, den)}
}

// ParsePortion parses a decimal string ("0", "0.2", "1", "1/5") into a
// Portion, validating it falls within [0,1].
func ParsePortion(s string) (Portion, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Zero, fmt.Errorf("invalid decimal portion %q", s)
	}
	p := Portion{r: r}
	if err := p.Validate(); err != nil {
		return Zero, err
	}
	return p, nil
}

// Validate returns ErrInvalidPortion unless 0 <= p <= 1.
func (p Portion) Validate() error {
	if p.r == nil {
		return nil
	}
	if p.r.Sign() < 0 || p.r.Cmp(big.NewRat(1, 1)) > 0 {
		return poeerrors.ErrInvalidPortion
	}
	return nil
}

// IsZero reports whether the portion is exactly 0.
func (p Portion) IsZero() bool { return p.r == nil || p.r.Sign() == 0 }

// Add returns p+q as a new Portion, unvalidated (the sum of several
// valid portions can legitimately exceed 1 — callers validate the
// result, not each addend).
func (p Portion) Add(q Portion) Portion {
	a, b := p.r, q.r
	if a == nil {
		a = new(big.Rat)
	}
	if b == nil {
		b = new(big.Rat)
	}
	return Portion{r: new(big.Rat).Add(a, b)}
}

// Cmp compares p and q, returning -1, 0, or 1 per big.Rat.Cmp.
func (p Portion) Cmp(q Portion) int {
	a, b := p.r, q.r
	if a == nil {
		a = new(big.Rat)
	}
	if b == nil {
		b = new(big.Rat)
	}
	return a.Cmp(b)
}

// MulFloorUint64 returns floor(amount * p) for a uint64 amount.
func (p Portion) MulFloorUint64(amount uint64) uint64 {
	if p.r == nil {
		return 0
	}
	prod := new(big.Rat).Mul(p.r, new(big.Rat).SetUint64(amount))
	q := new(big.Int).Quo(prod.Num(), prod.Denom())
	return q.Uint64()
}

// MulFloorBig returns floor(amount * p) for a big.Int amount (used for
// u128-sized stake and claim balances).
func (p Portion) MulFloorBig(amount *big.Int) *big.Int {
	if p.r == nil || amount == nil {
		return new(big.Int)
	}
	prod := new(big.Rat).Mul(p.r, new(big.Rat).SetInt(amount))
	return new(big.Int).Quo(prod.Num(), prod.Denom())
}

// String renders the portion in decimal form.
func (p Portion) String() string {
	if p.r == nil {
		return "0"
	}
	return p.r.FloatString(18)
}

// MarshalJSON renders the portion as a JSON decimal string, matching
// the message surface's "amounts as decimal strings" convention.
func (p Portion) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON parses a JSON decimal string into the portion.
func (p *Portion) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("portion must be a JSON string, got %s", s)
	}
	parsed, err := ParsePortion(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
