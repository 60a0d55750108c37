// Package fixedpoint converts between human-readable decimal amounts and
// integers scaled by a fixed power of ten. Every reserve and holding in the
// sandbox is stored in the scaled form; decimals only appear at the API edge.
package fixedpoint

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDecimals matches the ERC-20 / wei convention.
const DefaultDecimals int32 = 18

// ratioPrecision is the number of fractional digits kept by Ratio.
const ratioPrecision int32 = 18

// Scale converts amounts for a fixed number of decimals.
type Scale struct {
	decimals int32
}

// NewScale returns a Scale for the given number of decimals.
// Non-positive values fall back to DefaultDecimals.
func NewScale(decimals int32) Scale {
	if decimals <= 0 {
		decimals = DefaultDecimals
	}
	return Scale{decimals: decimals}
}

// Decimals returns the number of fractional digits of the scaled representation.
func (s Scale) Decimals() int32 {
	if s.decimals == 0 {
		return DefaultDecimals
	}
	return s.decimals
}

// ToScaled converts d to its scaled integer form. Digits beyond the scale are
// truncated toward zero.
func (s Scale) ToScaled(d decimal.Decimal) *big.Int {
	return d.Shift(s.Decimals()).BigInt()
}

// FromScaled converts a scaled integer back to a decimal.
func (s Scale) FromScaled(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -s.Decimals())
}

// FromFloat converts a float amount (as received over JSON) to scaled form.
func (s Scale) FromFloat(f float64) *big.Int {
	return s.ToScaled(decimal.NewFromFloat(f))
}

// Float returns the float64 view of a scaled amount. Display only.
func (s Scale) Float(v *big.Int) float64 {
	f, _ := s.FromScaled(v).Float64()
	return f
}

// Ratio divides two values of the same scale; the scale factor cancels out.
// It returns zero when den is zero.
func Ratio(num, den *big.Int) decimal.Decimal {
	if num == nil || den == nil || den.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), ratioPrecision)
}
