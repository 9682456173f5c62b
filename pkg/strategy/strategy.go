// Package strategy turns a pricing model's Stance into a concrete
// on-chain bid, one implementation per Maker-style auction kind.
package strategy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"auctionkeeper/pkg/types"
)

// SkipReason explains why a scan pass produced no bid for an auction.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipModelSilent     SkipReason = "model_silent"
	SkipInsufficientFunds SkipReason = "insufficient_funds"
	SkipExpired         SkipReason = "expired"
	SkipDealt           SkipReason = "dealt"
	SkipDuplicate       SkipReason = "duplicate_bid"
	SkipBegNotMet       SkipReason = "beg_not_met"
)

// Bid is a candidate on-chain action against one auction: either a
// bid (Lot/Bid populated) or a housekeeping call (Redo/Tick) encoded
// via Method/Args directly.
type Bid struct {
	Method string
	Args   []interface{}
	Lot    types.Wad
	Bid    types.Wad
	Cost   types.Rad // stablecoin the Reservoir must reserve for this bid
}

// Strategy is the uniform facade the Auction Registry drives; one
// implementation per auction Kind. me is the operator's own address,
// needed to tell whether the operator is already the auction's
// incumbent bidder (Flipper.sol's vat.move only debits the delta from
// an incumbent; a challenger pays the full new bid/tab).
type Strategy interface {
	PriceToBid(stance types.Stance, auction types.Auction, me common.Address) (Bid, SkipReason)
}

// For selects the strategy implementation for kind.
func For(kind types.Kind) (Strategy, error) {
	switch kind {
	case types.Flip:
		return Flip{}, nil
	case types.Flap:
		return Flap{}, nil
	case types.Flop:
		return Flop{}, nil
	case types.Clip:
		return Clip{}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown auction kind %q", kind)
	}
}

// begSatisfied reports whether candidate clears current by at least
// the auction's minimum bid increment beg (candidate ≥ current · beg).
func begSatisfied(candidate, current types.Wad, beg types.Ray) bool {
	if current.IsZero() {
		return true
	}
	required := types.RayMulWad(current, beg)
	return candidate.Cmp(required) >= 0
}

// lotShrinkSatisfied reports whether a shrinking lot clears the beg
// floor in the other direction (newLot · beg ≤ currentLot), used by
// Dent and Flop.
func lotShrinkSatisfied(newLot, currentLot types.Wad, beg types.Ray) bool {
	if currentLot.IsZero() {
		return true
	}
	bound := types.RayMulWad(newLot, beg)
	return bound.Cmp(currentLot) <= 0
}
