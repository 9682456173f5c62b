package strategy

import (
	"github.com/ethereum/go-ethereum/common"

	"auctionkeeper/pkg/types"
)

// Clip is the continuous Dutch auction: the contract itself computes a
// decaying price; the keeper only decides whether to take and at what
// lot.
type Clip struct{}

func (Clip) PriceToBid(stance types.Stance, auction types.Auction, me common.Address) (Bid, SkipReason) {
	if stance.Silent() {
		return Bid{}, SkipModelSilent
	}
	if auction.Phase == types.Dealt {
		return Bid{}, SkipDealt
	}

	if auction.NeedsRedo {
		return Bid{
			Method: "redo",
			Args:   []interface{}{auction.ID},
		}, SkipNone
	}

	price := *stance.Price
	if price.Cmp(auction.ClipPrice) < 0 {
		return Bid{}, SkipBegNotMet
	}

	cost := auction.Lot.Mul(auction.ClipPrice)
	return Bid{
		Method: "take",
		Args:   []interface{}{auction.ID, auction.Lot.Int(), price.Int()},
		Lot:    auction.Lot,
		Bid:    types.Wad{},
		Cost:   cost,
	}, SkipNone
}
