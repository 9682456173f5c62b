package strategy

import (
	"github.com/ethereum/go-ethereum/common"

	"auctionkeeper/pkg/types"
)

// Flap is the single-phase English auction: surplus stablecoin (lot,
// fixed) is sold for an ever-increasing amount of governance token
// (bid).
type Flap struct{}

func (Flap) PriceToBid(stance types.Stance, auction types.Auction, me common.Address) (Bid, SkipReason) {
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

	candidate := types.WadDivRay(auction.Lot, price)
	if !begSatisfied(candidate, auction.Bid, auction.Beg) {
		return Bid{}, SkipBegNotMet
	}
	if candidate.Cmp(auction.Bid) <= 0 {
		return Bid{}, SkipDuplicate
	}

	return Bid{
		Method: "tend",
		Args:   []interface{}{auction.ID, auction.Lot.Int(), candidate.Int()},
		Lot:    auction.Lot,
		Bid:    candidate,
		Cost:   types.Rad{}, // flap spends governance token, not vat stablecoin
	}, SkipNone
}
