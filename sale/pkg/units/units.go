// Package units provides overflow-checked arithmetic on base-unit amounts.
package units

import (
	"math/bits"

	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
)

// Add returns a+b or an arithmetic error on overflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, saleerr.ArithmeticErr("", saleerr.ErrOverflow)
	}
	return sum, nil
}

// Sub returns a-b or an arithmetic error on underflow.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, saleerr.ArithmeticErr("", saleerr.ErrUnderflow)
	}
	return diff, nil
}

// Mul returns a*b or an arithmetic error on overflow.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, saleerr.ArithmeticErr("", saleerr.ErrOverflow)
	}
	return lo, nil
}

// MulDiv returns floor(a*b/d) using a 128-bit intermediate.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, saleerr.ArithmeticErr("", saleerr.ErrOverflow)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, saleerr.ArithmeticErr("", saleerr.ErrOverflow)
	}
	quo, _ := bits.Div64(hi, lo, d)
	return quo, nil
}

// Percent returns floor(amount*pct/100).
func Percent(amount, pct uint64) (uint64, error) {
	return MulDiv(amount, pct, 100)
}
