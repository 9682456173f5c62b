package contractclient

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	ktypes "auctionkeeper/pkg/types"
)

// AuctionAdapter reads/writes one Maker-style auction house (Flipper,
// Clipper, Flapper, or Flopper) generically by ABI method name, so the
// Auction Registry needs no per-contract generated bindings.
type AuctionAdapter struct {
	client ContractClient
	kind   ktypes.Kind
	me     common.Address
}

// NewAuctionAdapter wires client (already bound to one auction house
// address and its ABI) as a registry.AuctionSource for kind.
func NewAuctionAdapter(client ContractClient, kind ktypes.Kind, me common.Address) *AuctionAdapter {
	return &AuctionAdapter{client: client, kind: kind, me: me}
}

// Kicks reads the auction house's monotonically increasing id counter.
func (a *AuctionAdapter) Kicks() (*big.Int, error) {
	out, err := a.client.Call(nil, "kicks")
	if err != nil {
		return nil, fmt.Errorf("auction adapter: kicks: %w", err)
	}
	return firstBigInt(out)
}

// Bids reads one auction's raw fields and assembles the keeper's
// snapshot. The bids() output layout differs slightly across
// flip/flap/flop/clip, so each branch unpacks the fields it expects.
func (a *AuctionAdapter) Bids(id *big.Int) (ktypes.Auction, error) {
	out, err := a.client.Call(nil, "bids", id)
	if err != nil {
		return ktypes.Auction{}, fmt.Errorf("auction adapter: bids(%s): %w", id, err)
	}

	auction := ktypes.Auction{Contract: a.client.ContractAddress(), ID: id, Kind: a.kind, Era: time.Now()}

	switch a.kind {
	case ktypes.Flip:
		// (bid, lot, guy, tic, end, usr, gal, tab)
		assign(out, 0, func(v interface{}) { auction.Bid = ktypes.NewWad(toBigInt(v)) })
		assign(out, 1, func(v interface{}) { auction.Lot = ktypes.NewWad(toBigInt(v)) })
		assign(out, 2, func(v interface{}) { auction.Guy = toAddress(v) })
		assign(out, 3, func(v interface{}) { auction.Tic = toTime(v) })
		assign(out, 4, func(v interface{}) { auction.End = toTime(v) })
		assign(out, 7, func(v interface{}) { auction.Tab = ktypes.NewRad(toBigInt(v)) })
	case ktypes.Flap:
		// (bid, lot, guy, tic, end)
		assign(out, 0, func(v interface{}) { auction.Bid = ktypes.NewWad(toBigInt(v)) })
		assign(out, 1, func(v interface{}) { auction.Lot = ktypes.NewWad(toBigInt(v)) })
		assign(out, 2, func(v interface{}) { auction.Guy = toAddress(v) })
		assign(out, 3, func(v interface{}) { auction.Tic = toTime(v) })
		assign(out, 4, func(v interface{}) { auction.End = toTime(v) })
	case ktypes.Flop:
		// (bid, lot, guy, tic, end)
		assign(out, 0, func(v interface{}) { auction.Bid = ktypes.NewWad(toBigInt(v)) })
		assign(out, 1, func(v interface{}) { auction.Lot = ktypes.NewWad(toBigInt(v)) })
		assign(out, 2, func(v interface{}) { auction.Guy = toAddress(v) })
		assign(out, 3, func(v interface{}) { auction.Tic = toTime(v) })
		assign(out, 4, func(v interface{}) { auction.End = toTime(v) })
	case ktypes.Clip:
		status, err := a.client.Call(nil, "getStatus", id)
		if err != nil {
			return auction, fmt.Errorf("auction adapter: getStatus(%s): %w", id, err)
		}
		// (needsRedo, price, lot, tab)
		assign(status, 0, func(v interface{}) { auction.NeedsRedo, _ = v.(bool) })
		assign(status, 1, func(v interface{}) { auction.ClipPrice = ktypes.NewRay(toBigInt(v)) })
		assign(status, 2, func(v interface{}) { auction.Lot = ktypes.NewWad(toBigInt(v)) })
		assign(status, 3, func(v interface{}) { auction.Tab = ktypes.NewRad(toBigInt(v)) })
	}

	if auction.Bid.IsZero() && auction.Tab.IsZero() && auction.Lot.IsZero() {
		auction.Phase = ktypes.Dealt
	}
	return auction, nil
}

// Deal builds the deal(id) call for a won auction.
func (a *AuctionAdapter) Deal(id *big.Int) (ktypes.Call, error) {
	return ktypes.Call{Contract: a.client.ContractAddress(), Method: "deal", Args: []interface{}{id}}, nil
}

// Tick builds the tick(id) (flip/flap/flop) or redo(id) (clip) call for
// an auction with zero bids past its tau expiry.
func (a *AuctionAdapter) Tick(id *big.Int) (ktypes.Call, error) {
	method := "tick"
	if a.kind == ktypes.Clip {
		method = "redo"
	}
	return ktypes.Call{Contract: a.client.ContractAddress(), Method: method, Args: []interface{}{id}}, nil
}

func firstBigInt(out []interface{}) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("auction adapter: empty result")
	}
	return toBigInt(out[0]), nil
}

func assign(out []interface{}, idx int, set func(interface{})) {
	if idx < len(out) {
		set(out[idx])
	}
}

func toBigInt(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok {
		return b
	}
	return new(big.Int)
}

func toAddress(v interface{}) common.Address {
	if a, ok := v.(common.Address); ok {
		return a
	}
	return common.Address{}
}

func toTime(v interface{}) time.Time {
	if t, ok := v.(uint64); ok {
		if t == 0 {
			return time.Time{}
		}
		return time.Unix(int64(t), 0)
	}
	if b, ok := v.(*big.Int); ok {
		if b.Sign() == 0 {
			return time.Time{}
		}
		return time.Unix(b.Int64(), 0)
	}
	return time.Time{}
}
