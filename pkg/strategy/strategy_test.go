package strategy

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionkeeper/pkg/types"
)

var noOne common.Address // zero address, used where the auction has no incumbent guy yet

func wad(t *testing.T, s string) types.Wad {
	t.Helper()
	w, err := types.ParseWad(s)
	require.NoError(t, err)
	return w
}

func ray(t *testing.T, s string) types.Ray {
	t.Helper()
	r, err := types.ParseRay(s)
	require.NoError(t, err)
	return r
}

func rad(t *testing.T, s string) types.Rad {
	t.Helper()
	r, err := types.ParseRad(s)
	require.NoError(t, err)
	return r
}

// S1: initial flap bid — lot/price = bid.
func TestFlapInitialBid(t *testing.T) {
	auction := types.Auction{
		Kind: types.Flap,
		Lot:  wad(t, "50000"),
		Bid:  types.Wad{},
		Beg:  ray(t, "1.05"),
	}
	price := ray(t, "10.0")
	stance := types.Stance{Price: &price}

	bid, reason := Flap{}.PriceToBid(stance, auction, noOne)
	require.Equal(t, SkipNone, reason)
	assert.Equal(t, "tend", bid.Method)
	assert.Equal(t, "5000", bid.Bid.String())
}

// S2: flop overbid then replacement at a steeper price.
func TestFlopOverbidAndReplacement(t *testing.T) {
	auction := types.Auction{
		Kind: types.Flop,
		Lot:  wad(t, "50000"),
		Bid:  wad(t, "50000"),
		Beg:  ray(t, "1.05"),
	}
	price := ray(t, "100.0")
	stance := types.Stance{Price: &price}

	bid, reason := Flop{}.PriceToBid(stance, auction, noOne)
	require.Equal(t, SkipNone, reason)
	assert.Equal(t, "dent", bid.Method)
	assert.Equal(t, "500", bid.Lot.String())

	price2 := ray(t, "110.0")
	stance2 := types.Stance{Price: &price2}
	bid2, reason2 := Flop{}.PriceToBid(stance2, auction, noOne)
	require.Equal(t, SkipNone, reason2)
	assert.Equal(t, "454.545454545454545454", bid2.Lot.String())
}

// S3: flip tend capped at tab, then dent on the next scan.
func TestFlipTendCapsAtTabThenDents(t *testing.T) {
	auction := types.Auction{
		Kind: types.Flip,
		Lot:  wad(t, "1.2"),
		Bid:  types.Wad{},
		Tab:  rad(t, "100"),
		Beg:  ray(t, "1.05"),
	}
	price := ray(t, "160")
	stance := types.Stance{Price: &price}

	bid, reason := Flip{}.PriceToBid(stance, auction, noOne)
	require.Equal(t, SkipNone, reason)
	assert.Equal(t, "tend", bid.Method)
	assert.Equal(t, "100", bid.Bid.String())
	assert.Equal(t, "100", bid.Cost.String()) // Guy and noOne are both the zero address, so this is the incumbent path: the delta over a bid of 0

	auction.Bid = bid.Bid
	auction.Guy = noOne // operator is now the incumbent high bidder
	bid2, reason2 := Flip{}.PriceToBid(stance, auction, noOne)
	require.Equal(t, SkipNone, reason2)
	assert.Equal(t, "dent", bid2.Method)
	assert.Equal(t, "0.625", bid2.Lot.String())
	assert.Equal(t, "0", bid2.Cost.String()) // incumbent: dent moves no further stablecoin
}

// S3b: tend against an auction someone else already holds reserves the
// full candidate bid, not just the delta over their current bid.
func TestFlipTendChallengerReservesFullBid(t *testing.T) {
	other := common.HexToAddress("0x1111111111111111111111111111111111111111")
	me := common.HexToAddress("0x2222222222222222222222222222222222222222")
	auction := types.Auction{
		Kind: types.Flip,
		Lot:  wad(t, "1.2"),
		Bid:  wad(t, "40"),
		Guy:  other,
		Tab:  rad(t, "100"),
		Beg:  ray(t, "1.05"),
	}
	price := ray(t, "160")
	stance := types.Stance{Price: &price}

	bid, reason := Flip{}.PriceToBid(stance, auction, me)
	require.Equal(t, SkipNone, reason)
	assert.Equal(t, "tend", bid.Method)
	assert.Equal(t, "100", bid.Bid.String())
	assert.Equal(t, "100", bid.Cost.String()) // challenger pays the full new bid, not 100-40
}

// S3c: dent against an auction someone else already holds (tab already
// reached) reserves the full tab, not zero.
func TestFlipDentChallengerReservesFullTab(t *testing.T) {
	other := common.HexToAddress("0x1111111111111111111111111111111111111111")
	me := common.HexToAddress("0x2222222222222222222222222222222222222222")
	auction := types.Auction{
		Kind: types.Flip,
		Lot:  wad(t, "1.2"),
		Bid:  wad(t, "100"),
		Guy:  other,
		Tab:  rad(t, "100"),
		Beg:  ray(t, "1.05"),
	}
	price := ray(t, "160")
	stance := types.Stance{Price: &price}

	bid, reason := Flip{}.PriceToBid(stance, auction, me)
	require.Equal(t, SkipNone, reason)
	assert.Equal(t, "dent", bid.Method)
	assert.Equal(t, "100", bid.Cost.String()) // challenger pays the full tab, not zero
}

func TestFlipSkipsOnSilentModel(t *testing.T) {
	auction := types.Auction{Kind: types.Flip, Tab: rad(t, "100")}
	_, reason := Flip{}.PriceToBid(types.Stance{}, auction, noOne)
	assert.Equal(t, SkipModelSilent, reason)
}

func TestClipRedoTakesPrecedence(t *testing.T) {
	auction := types.Auction{Kind: types.Clip, NeedsRedo: true}
	price := ray(t, "10")
	bid, reason := Clip{}.PriceToBid(types.Stance{Price: &price}, auction, noOne)
	require.Equal(t, SkipNone, reason)
	assert.Equal(t, "redo", bid.Method)
}

func TestClipTakesWhenPriceClears(t *testing.T) {
	auction := types.Auction{
		Kind:      types.Clip,
		Lot:       wad(t, "10"),
		ClipPrice: ray(t, "5"),
	}
	price := ray(t, "5")
	bid, reason := Clip{}.PriceToBid(types.Stance{Price: &price}, auction, noOne)
	require.Equal(t, SkipNone, reason)
	assert.Equal(t, "take", bid.Method)
	assert.Equal(t, "50", bid.Cost.String())
}

func TestClipSkipsWhenPriceBelowClipPrice(t *testing.T) {
	auction := types.Auction{Kind: types.Clip, Lot: wad(t, "10"), ClipPrice: ray(t, "5")}
	price := ray(t, "4")
	_, reason := Clip{}.PriceToBid(types.Stance{Price: &price}, auction, noOne)
	assert.Equal(t, SkipBegNotMet, reason)
}

func TestForUnknownKind(t *testing.T) {
	_, err := For(types.Kind(99))
	assert.Error(t, err)
}
