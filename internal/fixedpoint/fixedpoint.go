// Package fixedpoint implements the 6-decimal scaled-integer arithmetic used
// for USD balances, share prices, and share counts.
//
// One unit is 0.000001 of a dollar (or of a share). Multiplications go
// through a 256-bit intermediate and every result is checked against the
// uint64 range, so nothing ever wraps silently. Rounding is always floor.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Scale is the number of base units in one whole dollar or share.
const Scale uint64 = 1_000_000

// Decimals is the number of fractional digits represented by Scale.
const Decimals int32 = 6

// MaxPrice is a price of 1.00 per share.
const MaxPrice = Scale

var (
	// ErrOverflow is returned when a result does not fit in uint64.
	ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

	// ErrInvalidAmount is returned when a decimal string cannot be
	// represented as a non-negative 6-decimal amount.
	ErrInvalidAmount = errors.New("fixedpoint: invalid amount")
)

var scale256 = uint256.NewInt(Scale)

// SharesFromSpend returns floor(amount * Scale / price).
//
// price must be non-zero; a zero price is a caller bug and panics, like
// any integer division by zero.
func SharesFromSpend(amount, price uint64) (uint64, error) {
	if price == 0 {
		panic("fixedpoint: SharesFromSpend with zero price")
	}
	return mulDiv(amount, Scale, price)
}

// PayoutFromShares returns floor(shares * price / Scale).
func PayoutFromShares(shares, price uint64) (uint64, error) {
	return mulDiv(shares, price, Scale)
}

// mulDiv computes floor(a * b / d) without intermediate overflow.
func mulDiv(a, b, d uint64) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow {
		return 0, ErrOverflow
	}
	divisor := scale256
	if d != Scale {
		divisor = uint256.NewInt(d)
	}
	q := new(uint256.Int).Div(product, divisor)
	if !q.IsUint64() {
		return 0, ErrOverflow
	}
	return q.Uint64(), nil
}

// Add returns a + b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a - b or ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// ToDecimal converts base units to a decimal with 6 fractional digits.
func ToDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(uint256.Int).SetUint64(v).ToBig(), -Decimals)
}

// Format renders base units as a fixed 6-decimal string, e.g. "9999.000000".
func Format(v uint64) string {
	return ToDecimal(v).StringFixed(Decimals)
}

// ParseDecimal converts a human-readable amount such as "12.5" to base
// units. Digits beyond the sixth decimal place are truncated.
func ParseDecimal(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, s)
	}
	units := d.Shift(Decimals).Truncate(0).BigInt()
	v, overflow := uint256.FromBig(units)
	if overflow || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, s)
	}
	return v.Uint64(), nil
}
