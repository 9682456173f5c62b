package strategy

import (
	"github.com/ethereum/go-ethereum/common"

	"auctionkeeper/pkg/types"
)

// Flop is the reverse Dutch auction: a fixed bid of stablecoin covers
// protocol debt in exchange for an ever-shrinking lot of newly minted
// governance token.
type Flop struct{}

func (Flop) PriceToBid(stance types.Stance, auction types.Auction, me common.Address) (Bid, SkipReason) {
	if stance.Silent() {
		return Bid{}, SkipModelSilent
	}
	if auction.Phase == types.Dealt {
		return Bid{}, SkipDealt
	}

	price := *stance.Price
	if price.IsZero() {
		return Bid{}, SkipModelSilent
	}

	newLot := types.WadDivRay(auction.Bid, price)
	if !lotShrinkSatisfied(newLot, auction.Lot, auction.Beg) {
		return Bid{}, SkipBegNotMet
	}
	if newLot.Cmp(auction.Lot) >= 0 {
		return Bid{}, SkipDuplicate
	}

	// The bid is paid in vat stablecoin; an operator already holding the
	// auction has that stablecoin locked in it and spends nothing more.
	cost := types.Rad{}
	if !auction.IsWinner(me) {
		cost = auction.Bid.ToRad()
	}

	return Bid{
		Method: "dent",
		Args:   []interface{}{auction.ID, newLot.Int(), auction.Bid.Int()},
		Lot:    newLot,
		Bid:    auction.Bid,
		Cost:   cost,
	}, SkipNone
}
