// Package types holds the data model shared across the keeper: the
// fixed-point decimal magnitudes, the auction snapshot, and the model
// wire-protocol records.
package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// WadDecimals, RayDecimals and RadDecimals are the digit counts of the
// three fixed-point magnitudes used throughout the bid pipeline.
const (
	WadDecimals = 18
	RayDecimals = 27
	RadDecimals = 45
)

var (
	wadUnit = pow10(WadDecimals)
	rayUnit = pow10(RayDecimals)
	radUnit = pow10(RadDecimals)
)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Wad is an 18-decimal fixed-point integer-backed quantity: token
// amounts such as lot and bid.
type Wad struct{ i *big.Int }

// Ray is a 27-decimal fixed-point integer-backed quantity: ratios such
// as beg, rate and spot.
type Ray struct{ i *big.Int }

// Rad is a 45-decimal fixed-point integer-backed quantity: tab, line,
// and other rate*ink style accumulators.
type Rad struct{ i *big.Int }

func NewWad(i *big.Int) Wad { return Wad{i: cloneOrZero(i)} }
func NewRay(i *big.Int) Ray { return Ray{i: cloneOrZero(i)} }
func NewRad(i *big.Int) Rad { return Rad{i: cloneOrZero(i)} }

func cloneOrZero(i *big.Int) *big.Int {
	if i == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i)
}

func (w Wad) Int() *big.Int { return cloneOrZero(w.i) }
func (r Ray) Int() *big.Int { return cloneOrZero(r.i) }
func (r Rad) Int() *big.Int { return cloneOrZero(r.i) }

func (w Wad) IsZero() bool { return w.i == nil || w.i.Sign() == 0 }
func (r Ray) IsZero() bool { return r.i == nil || r.i.Sign() == 0 }
func (r Rad) IsZero() bool { return r.i == nil || r.i.Sign() == 0 }

func (w Wad) Sign() int { return w.i.Sign() }
func (r Ray) Sign() int { return r.i.Sign() }
func (r Rad) Sign() int { return r.i.Sign() }

func (w Wad) Cmp(o Wad) int { return w.Int().Cmp(o.Int()) }
func (r Ray) Cmp(o Ray) int { return r.Int().Cmp(o.Int()) }
func (r Rad) Cmp(o Rad) int { return r.Int().Cmp(o.Int()) }

func (w Wad) Add(o Wad) Wad { return Wad{i: new(big.Int).Add(w.Int(), o.Int())} }
func (w Wad) Sub(o Wad) Wad { return Wad{i: new(big.Int).Sub(w.Int(), o.Int())} }

func (r Ray) Add(o Ray) Ray { return Ray{i: new(big.Int).Add(r.Int(), o.Int())} }
func (r Rad) Add(o Rad) Rad { return Rad{i: new(big.Int).Add(r.Int(), o.Int())} }
func (r Rad) Sub(o Rad) Rad { return Rad{i: new(big.Int).Sub(r.Int(), o.Int())} }

// Mul multiplies a Wad by a Ray (beg, rate, spot) producing a Rad,
// matching the maker convention wad*ray = rad (scaled back to rad's
// own 45-digit base).
func (w Wad) Mul(r Ray) Rad {
	prod := new(big.Int).Mul(w.Int(), r.Int()) // wad(18) * ray(27) = 45 digits already
	return Rad{i: prod}
}

// Div divides a Rad by a Ray, returning a Wad (rad/ray = wad).
func (rad Rad) Div(r Ray) Wad {
	if r.IsZero() {
		return Wad{i: new(big.Int)}
	}
	return Wad{i: new(big.Int).Div(rad.Int(), r.Int())}
}

// ToRad scales a Wad up to Rad precision (used to compare bid, a wad,
// against tab, a rad).
func (w Wad) ToRad() Rad {
	return Rad{i: new(big.Int).Mul(w.Int(), new(big.Int).Div(radUnit, wadUnit))}
}

// ToWad truncates a Rad down to Wad precision.
func (rad Rad) ToWad() Wad {
	return Wad{i: new(big.Int).Div(rad.Int(), new(big.Int).Div(radUnit, wadUnit))}
}

// RayOf computes the ratio a/b as a Ray, used for price = bid/lot style
// division of two Wads.
func RayOf(a, b Wad) Ray {
	if b.IsZero() {
		return Ray{i: new(big.Int)}
	}
	num := new(big.Int).Mul(a.Int(), rayUnit)
	return Ray{i: num.Div(num, b.Int())}
}

// WadDiv divides one Wad by another (both 18-digit) yielding a Wad
// quotient, rounding toward zero. Dividing by a Ray price (lot =
// bid/price) is WadDivRay.
func WadDiv(a, b Wad) Wad {
	if b.IsZero() {
		return Wad{i: new(big.Int)}
	}
	num := new(big.Int).Mul(a.Int(), wadUnit)
	return Wad{i: num.Div(num, b.Int())}
}

// WadMul multiplies two Wads (both 18-digit) yielding a Wad product.
func WadMul(a, b Wad) Wad {
	prod := new(big.Int).Mul(a.Int(), b.Int())
	return Wad{i: prod.Div(prod, wadUnit)}
}

// RayMulWad scales a Wad by a Ray ratio yielding a Wad (e.g. bid*beg).
func RayMulWad(w Wad, r Ray) Wad {
	prod := new(big.Int).Mul(w.Int(), r.Int())
	return Wad{i: prod.Div(prod, rayUnit)}
}

// WadDivRay divides a Wad by a Ray, returning a Wad quotient (e.g.
// dent's lot = bid / price, where price carries ray precision).
func WadDivRay(a Wad, r Ray) Wad {
	if r.IsZero() {
		return Wad{i: new(big.Int)}
	}
	num := new(big.Int).Mul(a.Int(), rayUnit)
	return Wad{i: num.Div(num, r.Int())}
}

// String formats the magnitude as a human decimal string.
func (w Wad) String() string { return toDecimalString(w.i, WadDecimals) }
func (r Ray) String() string { return toDecimalString(r.i, RayDecimals) }
func (r Rad) String() string { return toDecimalString(r.i, RadDecimals) }

func toDecimalString(i *big.Int, decimals int) string {
	if i == nil {
		i = new(big.Int)
	}
	return decimal.NewFromBigInt(i, 0).Shift(int32(-decimals)).String()
}

// ParseWad parses a decimal string (the model wire protocol's native
// representation) into a Wad, rejecting floating point anywhere else
// in the bid pipeline.
func ParseWad(s string) (Wad, error) {
	i, err := parseFixed(s, WadDecimals)
	if err != nil {
		return Wad{}, err
	}
	return Wad{i: i}, nil
}

func ParseRay(s string) (Ray, error) {
	i, err := parseFixed(s, RayDecimals)
	if err != nil {
		return Ray{}, err
	}
	return Ray{i: i}, nil
}

func ParseRad(s string) (Rad, error) {
	i, err := parseFixed(s, RadDecimals)
	if err != nil {
		return Rad{}, err
	}
	return Rad{i: i}, nil
}

func parseFixed(s string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	scaled := d.Shift(int32(decimals))
	return scaled.BigInt(), nil
}

// OneRay is the Ray representation of 1.0, the minimum legal value for
// beg (a no-op bid increment).
func OneRay() Ray { return Ray{i: new(big.Int).Set(rayUnit)} }
