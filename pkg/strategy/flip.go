package strategy

import (
	"github.com/ethereum/go-ethereum/common"

	"auctionkeeper/pkg/types"
)

// Flip is the two-phase English auction: Tend raises the bid up to
// tab, Dent then lowers the lot once tab is reached.
type Flip struct{}

func (Flip) PriceToBid(stance types.Stance, auction types.Auction, me common.Address) (Bid, SkipReason) {
	if stance.Silent() {
		return Bid{}, SkipModelSilent
	}
	if auction.Phase == types.Dealt {
		return Bid{}, SkipDealt
	}

	price := *stance.Price
	incumbent := auction.IsWinner(me)

	if auction.Bid.Cmp(auction.Tab.ToWad()) >= 0 {
		return dent(price, auction, incumbent)
	}
	return tend(price, auction, incumbent)
}

// tend raises bid toward tab at the model's price, capping exactly at
// tab when the floor increment would overshoot it so the auction
// transitions cleanly into Dent on the next scan. Per Flipper.sol,
// vat.move debits only the delta over the current bid from an
// incumbent bidder, but the full candidate amount from a challenger
// who isn't already bids[id].guy.
func tend(price types.Ray, auction types.Auction, incumbent bool) (Bid, SkipReason) {
	candidate := types.RayMulWad(auction.Lot, price)
	tab := auction.Tab.ToWad()
	if candidate.Cmp(tab) > 0 {
		candidate = tab
	}

	if candidate.Cmp(tab) != 0 && !begSatisfied(candidate, auction.Bid, auction.Beg) {
		return Bid{}, SkipBegNotMet
	}
	if candidate.Cmp(auction.Bid) <= 0 {
		return Bid{}, SkipDuplicate
	}

	cost := candidate.ToRad().Sub(auction.Bid.ToRad())
	if !incumbent {
		cost = candidate.ToRad()
	}

	return Bid{
		Method: "tend",
		Args:   []interface{}{auction.ID, auction.Lot.Int(), candidate.Int()},
		Lot:    auction.Lot,
		Bid:    candidate,
		Cost:   cost,
	}, SkipNone
}

// dent shrinks lot at a fixed bid of tab once the tend phase has
// reached it. Per Flipper.sol, vat.move moves nothing further from an
// incumbent bidder (the bid amount was already paid during tend), but
// the full tab from a challenger taking over the auction at dent.
func dent(price types.Ray, auction types.Auction, incumbent bool) (Bid, SkipReason) {
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

	cost := types.Rad{}
	if !incumbent {
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
