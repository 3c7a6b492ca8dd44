// Package amount provides checked fixed-point arithmetic for token balances.
// All balance math uses unsigned arbitrary-precision integers in base units
// (implied 18-digit fractional scale). Conversion to human-readable decimals
// happens only at the API boundary, never internally.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the implied number of fractional digits of a base unit.
const Scale = 18

var (
	// ErrNegativeResult is returned when an operation would produce a negative amount.
	ErrNegativeResult = errors.New("amount: operation would produce a negative result")
	// ErrInvalidAmount is returned when parsing a malformed or negative amount.
	ErrInvalidAmount = errors.New("amount: invalid amount")
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Scale), nil)

// Amount is an unsigned base-unit token quantity. The zero value is zero
// tokens and is ready to use. Amounts are immutable; operations return new
// values and never mutate their receivers.
type Amount struct {
	v *big.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// FromBaseUnits creates an Amount from a non-negative base-unit integer.
func FromBaseUnits(v uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(v)}
}

// FromTokens creates an Amount from a whole-token count.
func FromTokens(tokens uint64) Amount {
	v := new(big.Int).SetUint64(tokens)
	return Amount{v: v.Mul(v, unit)}
}

// FromBaseUnitsString parses a base-unit decimal integer string, as stored in
// persistence layers.
func FromBaseUnitsString(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{v: v}, nil
}

// Parse converts a human-readable decimal string (for example "998.9") into
// base units. Negative values and values with more than 18 fractional digits
// are rejected.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	if int(d.Exponent()) < -Scale {
		return Amount{}, fmt.Errorf("%w: %q exceeds %d fractional digits", ErrInvalidAmount, s, Scale)
	}
	shifted := d.Shift(Scale)
	return Amount{v: shifted.BigInt()}, nil
}

// MustParse is Parse that panics on error. For constants in tests and wiring.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b, or ErrNegativeResult if b > a. Underflow is an error,
// never a wrap-around.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Cmp(b) < 0 {
		return Amount{}, ErrNegativeResult
	}
	return Amount{v: new(big.Int).Sub(a.big(), b.big())}, nil
}

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a.big().Sign() > 0
}

// MulPPM returns a * rate where rate is expressed in parts per million,
// with floor division. Exact for the default fee and burn rates.
func (a Amount) MulPPM(rate RatePPM) Amount {
	v := new(big.Int).Mul(a.big(), big.NewInt(int64(rate)))
	return Amount{v: v.Quo(v, big.NewInt(1_000_000))}
}

// MulDiv returns a * num / den with floor division. den must be non-zero.
func (a Amount) MulDiv(num, den uint64) Amount {
	if den == 0 {
		panic("amount: division by zero")
	}
	v := new(big.Int).Mul(a.big(), new(big.Int).SetUint64(num))
	return Amount{v: v.Quo(v, new(big.Int).SetUint64(den))}
}

// BaseUnits returns the base-unit integer as a decimal string.
func (a Amount) BaseUnits() string {
	return a.big().String()
}

// String renders the amount as a human-readable decimal, trimming trailing
// fractional zeros. Boundary use only.
func (a Amount) String() string {
	d := decimal.NewFromBigInt(a.big(), -Scale)
	return d.String()
}

// MarshalJSON encodes the amount as a base-unit decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.BaseUnits() + `"`), nil
}

// UnmarshalJSON decodes a base-unit decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	*a = Amount{v: v}
	return nil
}

// RatePPM is a proportional rate in parts per million.
// 1000 ppm = 0.1%, 100 ppm = 0.01%.
type RatePPM uint32

// Percent renders the rate as a percentage string for display.
func (r RatePPM) Percent() string {
	d := decimal.New(int64(r), -4)
	return d.String() + "%"
}
