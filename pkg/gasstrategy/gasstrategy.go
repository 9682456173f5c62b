// Package gasstrategy computes the gas price offered on a transaction
// attempt: a geometric escalation over time, bounded by a configured
// ceiling, and overridable by a pricing model's explicit gas_price.
package gasstrategy

import (
	"math/big"
	"time"
)

// Params configures the geometric escalation schedule: starting at
// Base, multiplying by Coefficient every Step elapsed, never exceeding
// Max.
type Params struct {
	Base        *big.Int
	Coefficient float64
	Step        time.Duration
	Max         *big.Int
}

// Strategy derives a gas price offer for a transaction attempt given
// how long it has been outstanding and, optionally, a pricing model's
// own gas price preference.
type Strategy struct {
	params Params
}

// New builds a Strategy from params; Coefficient and Step of zero value
// disable escalation (the price is pinned at Base, capped by Max).
func New(params Params) *Strategy {
	return &Strategy{params: params}
}

// PriceAt returns the gas price for a transaction that has been
// outstanding for elapsed, ignoring any model override.
func (s *Strategy) PriceAt(elapsed time.Duration) *big.Int {
	base := s.params.Base
	if base == nil || base.Sign() <= 0 {
		base = big.NewInt(1)
	}

	price := new(big.Int).Set(base)
	if s.params.Coefficient > 1 && s.params.Step > 0 {
		steps := int(elapsed / s.params.Step)
		for i := 0; i < steps; i++ {
			priceF := new(big.Float).SetInt(price)
			priceF.Mul(priceF, big.NewFloat(s.params.Coefficient))
			price, _ = priceF.Int(nil)
		}
	}

	if s.params.Max != nil && s.params.Max.Sign() > 0 && price.Cmp(s.params.Max) > 0 {
		return new(big.Int).Set(s.params.Max)
	}
	return price
}

// Resolve chooses the gas price to submit with: a non-nil modelGasPrice
// always takes precedence over the escalation schedule, per the
// keeper's "model decides, keeper obeys" gas policy. The result is never
// nil: with no override and no Base, the schedule starts from 1 wei, so
// submission is never deferred for lack of a gas price.
func (s *Strategy) Resolve(elapsed time.Duration, modelGasPrice *big.Int) *big.Int {
	if modelGasPrice != nil && modelGasPrice.Sign() > 0 {
		if s.params.Max != nil && s.params.Max.Sign() > 0 && modelGasPrice.Cmp(s.params.Max) > 0 {
			return new(big.Int).Set(s.params.Max)
		}
		return new(big.Int).Set(modelGasPrice)
	}
	return s.PriceAt(elapsed)
}

// bpsDenominator is the fixed-point denominator thresholdBps is
// expressed against (10000 basis points = 100%), letting callers carry
// a fractional percent such as 12.5% (1250 bps) without float math.
const bpsDenominator = 10000

// ExceedsReplacementThreshold reports whether candidate is at least
// thresholdBps basis points above current — the minimum bump a node
// requires to accept a same-nonce replacement transaction.
func ExceedsReplacementThreshold(current, candidate *big.Int, thresholdBps int64) bool {
	if current == nil || current.Sign() <= 0 {
		return candidate != nil && candidate.Sign() > 0
	}
	if candidate == nil {
		return false
	}
	return candidate.Cmp(ceilBump(current, thresholdBps)) >= 0
}

// Bump returns the minimum replacement gas price for current under
// thresholdBps, rounding up so equality with ExceedsReplacementThreshold
// always holds.
func Bump(current *big.Int, thresholdBps int64) *big.Int {
	if current == nil || current.Sign() <= 0 {
		return big.NewInt(1)
	}
	return ceilBump(current, thresholdBps)
}

// ceilBump computes ceil(current * (bpsDenominator+thresholdBps) / bpsDenominator).
func ceilBump(current *big.Int, thresholdBps int64) *big.Int {
	num := new(big.Int).Mul(current, big.NewInt(bpsDenominator+thresholdBps))
	denom := big.NewInt(bpsDenominator)
	bumped, rem := new(big.Int).DivMod(num, denom, new(big.Int))
	if rem.Sign() != 0 {
		bumped.Add(bumped, big.NewInt(1))
	}
	return bumped
}
