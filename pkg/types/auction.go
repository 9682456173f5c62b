package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies which of the four auction families a contract
// instance belongs to.
type Kind int

const (
	Flip Kind = iota
	Clip
	Flap
	Flop
)

func (k Kind) String() string {
	switch k {
	case Flip:
		return "flip"
	case Clip:
		return "clip"
	case Flap:
		return "flap"
	case Flop:
		return "flop"
	default:
		return "unknown"
	}
}

// ParseKind maps the --type CLI flag value onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "flip":
		return Flip, true
	case "clip":
		return Clip, true
	case "flap":
		return Flap, true
	case "flop":
		return Flop, true
	default:
		return 0, false
	}
}

// Phase is the derived state of a single auction within its kind's
// lifecycle.
type Phase int

const (
	Tend Phase = iota
	Dent
	Take
	Expired
	Dealt
)

func (p Phase) String() string {
	switch p {
	case Tend:
		return "tend"
	case Dent:
		return "dent"
	case Take:
		return "take"
	case Expired:
		return "expired"
	case Dealt:
		return "dealt"
	default:
		return "unknown"
	}
}

// ZeroAddress is the sentinel meaning "no bidder yet" for guy.
var ZeroAddress common.Address

// Auction is the keeper's in-memory snapshot of one on-chain auction,
// identified by (contract, id). It is rebuilt from contract reads on
// every scan; none of it is persisted across restarts.
type Auction struct {
	Contract common.Address
	ID       *big.Int
	Kind     Kind
	Phase    Phase

	Lot Wad // collateral (flip/clip), stablecoin (flap) or governance-token (flop) quantity
	Bid Wad // stablecoin (flip/flop) or governance-token (flap) quantity
	Tab Rad // flip/clip: target recovery amount; zero for flap/flop

	Beg Ray // minimum bid increment ratio, >= OneRay()

	Guy common.Address // current high bidder, ZeroAddress if none

	Era time.Time // observation timestamp
	Tic time.Time // per-bid expiry, zero value if unset
	End time.Time // absolute auction expiry

	// Clip-only fields: the contract computes price as a function of
	// elapsed time, so the keeper observes rather than derives it.
	ClipPrice Ray
	NeedsRedo bool
}

// Live reports whether the auction still accepts bids or deal/tick
// calls (i.e. has not been removed from the registry).
func (a *Auction) Live() bool {
	return a.Phase != Dealt
}

// IsWinner reports whether the operator's address currently holds the
// high bid.
func (a *Auction) IsWinner(me common.Address) bool {
	return a.Guy == me
}

// Closed reports whether the absolute expiry has passed.
func (a *Auction) Closed(now time.Time) bool {
	return !a.End.IsZero() && !now.Before(a.End)
}

// TicExpired reports whether the per-bid expiry has passed (only
// meaningful once a bid exists, i.e. Tic != 0).
func (a *Auction) TicExpired(now time.Time) bool {
	return !a.Tic.IsZero() && !now.Before(a.Tic)
}

// Price computes bid/lot (or its reciprocal for flap, where the
// "price" reported to the model is stablecoin per governance token)
// for the outbound Status message.
func (a *Auction) Price() Ray {
	switch a.Kind {
	case Flap:
		if a.Bid.IsZero() {
			return Ray{}
		}
		return RayOf(a.Lot, a.Bid)
	default:
		if a.Lot.IsZero() {
			return Ray{}
		}
		return RayOf(a.Bid, a.Lot)
	}
}

// Stance is the most recent decision received from a model process for
// one auction. A nil Price means "do not bid this round".
type Stance struct {
	Price    *Ray
	GasPrice *big.Int // wei, nil if the model defers to the gas strategy
}

// Silent reports whether the model has declined to bid.
func (s Stance) Silent() bool { return s.Price == nil }
