// Package registry owns the keeper's in-memory auction bookkeeping: one
// scan of the registry observes every live auction, consults its
// model, prices a candidate bid, reserves funds, and submits — all
// atomically within a single scan pass.
package registry

import (
	"context"
	"math/big"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	ktypes "auctionkeeper/pkg/types"
	"auctionkeeper/pkg/strategy"
)

var logger = gethlog.New("module", "registry")

// ModelHandle is the narrow view of pkg/model the registry needs: send
// a status, read the latest stance, know whether the process is alive.
type ModelHandle interface {
	SendStatus(status ktypes.StatusMessage) error
	ReadStance() (ktypes.Stance, error)
	Alive() bool
	Kill() error
}

// Reservoir is the C7 balance ledger the registry consults before
// submitting a bid; implemented by pkg/rebalance.
type Reservoir interface {
	CheckBidCost(cost ktypes.Rad) bool
}

// Topper is the narrow C7 "on-bid top-up" hook the registry consults
// when the Reservoir reports a shortfall: attempt an immediate join
// before giving up on the bid. Optional — a registry with no Topper
// wired skips straight to SkipInsufficientFunds, as before.
type Topper interface {
	TopupForBid(ctx context.Context, cost ktypes.Rad) bool
}

// Submitter is the C2 Transaction Manager's entry point, keyed by
// (auction id, method) so a replacement bid reuses the same nonce slot.
type Submitter interface {
	Submit(ctx context.Context, key string, build func(gasPrice *big.Int) (ktypes.Call, error), gasPriceHint *big.Int) (*ktypes.Receipt, error)
}

// AuctionSource reads on-chain auction state; implemented atop
// pkg/contractclient for the specific contract this registry owns.
type AuctionSource interface {
	Kicks() (*big.Int, error)
	Bids(id *big.Int) (ktypes.Auction, error)
	Deal(id *big.Int) (ktypes.Call, error)
	Tick(id *big.Int) (ktypes.Call, error)
}

// Record is the registry's per-auction bookkeeping entry.
type Record struct {
	Auction          ktypes.Auction
	Model            ModelHandle
	LastSubmittedLot ktypes.Wad
	LastSubmittedBid ktypes.Wad
	LastMethod       string
}

// Registry owns the id -> Record map for one contract. It is not
// concurrency-safe; it is driven exclusively by the single scanning
// goroutine, matching the keeper's resource model.
type Registry struct {
	source     AuctionSource
	strategies map[ktypes.Kind]strategy.Strategy
	reservoir  Reservoir
	topper     Topper
	submitter  Submitter
	me         [20]byte // operator address, compared against auction.Guy

	records  map[string]*Record
	lastSeen *big.Int

	maxConcurrentModels int
}

// New wires a registry for one contract's auction kind.
func New(source AuctionSource, reservoir Reservoir, submitter Submitter, me [20]byte, maxConcurrentModels int) *Registry {
	return &Registry{
		source:              source,
		strategies:          map[ktypes.Kind]strategy.Strategy{},
		reservoir:           reservoir,
		submitter:           submitter,
		me:                  me,
		records:             map[string]*Record{},
		lastSeen:            big.NewInt(0),
		maxConcurrentModels: maxConcurrentModels,
	}
}

func recordKey(id *big.Int) string { return id.String() }

// Track registers id into the registry together with the model handle
// the caller has already spawned for it. Called once discovery finds a
// new auction id.
func (r *Registry) Track(id *big.Int, model ModelHandle) {
	r.records[recordKey(id)] = &Record{Model: model, Auction: ktypes.Auction{ID: new(big.Int).Set(id)}}
	if id.Cmp(r.lastSeen) > 0 {
		r.lastSeen = new(big.Int).Set(id)
	}
}

// Untrack removes id, killing its model process.
func (r *Registry) Untrack(id *big.Int) {
	key := recordKey(id)
	if rec, ok := r.records[key]; ok && rec.Model != nil {
		rec.Model.Kill()
	}
	delete(r.records, key)
}

// Discover enumerates newly kicked auction ids past lastSeen. The
// caller is responsible for Track-ing each returned id.
func (r *Registry) Discover() ([]*big.Int, error) {
	kicks, err := r.source.Kicks()
	if err != nil {
		return nil, err
	}
	var ids []*big.Int
	for i := new(big.Int).Add(r.lastSeen, big.NewInt(1)); i.Cmp(kicks) <= 0; i.Add(i, big.NewInt(1)) {
		ids = append(ids, new(big.Int).Set(i))
	}
	return ids, nil
}

// ScanOutcome summarizes what one full scan pass did, for logging and
// tests.
type ScanOutcome struct {
	Submitted []ScanResult
	Skipped   []ScanResult
	Dealt     []*big.Int
	Dropped   []*big.Int
	Ticked    []*big.Int
}

// ScanResult pairs an auction id with the bid decision made for it.
type ScanResult struct {
	ID     *big.Int
	Bid    strategy.Bid
	Reason strategy.SkipReason
}

// Scan runs one pass over every tracked auction. When fullReread is
// true (the per-block tick), it first refreshes each auction's state
// from the chain and fans the status update out to each model
// concurrently (bounded by maxConcurrentModels). When false (the
// micro-tick), it skips both contract reads and status dispatch
// entirely and re-prices against whatever auction state the last full
// scan observed, only re-reading each model's already-buffered stance
// — the cheap "check for bids" path. Either way, steps 3-5 (price,
// reserve, submit) run sequentially in ascending id order so Reservoir
// exhaustion ties break deterministically.
func (r *Registry) Scan(ctx context.Context, now time.Time, tau time.Duration, fullReread bool) (ScanOutcome, error) {
	var outcome ScanOutcome

	ids := r.sortedIDs()

	if fullReread {
		statusGroup, gctx := errgroup.WithContext(ctx)
		statusGroup.SetLimit(r.maxConcurrentModels)
		for _, id := range ids {
			id := id
			rec := r.records[recordKey(id)]
			statusGroup.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				auction, err := r.source.Bids(id)
				if err != nil {
					logger.Warn("bids read failed", "id", id, "err", err)
					return nil // a single bad read doesn't abort the scan
				}
				rec.Auction = auction
				if rec.Model != nil && rec.Model.Alive() {
					if err := rec.Model.SendStatus(ktypes.StatusOf(&auction)); err != nil {
						logger.Warn("status send failed", "id", id, "err", err)
					}
				}
				return nil
			})
		}
		if err := statusGroup.Wait(); err != nil {
			return outcome, err
		}
	}

	for _, id := range ids {
		rec := r.records[recordKey(id)]
		r.processOne(ctx, id, rec, now, tau, &outcome)
	}

	return outcome, nil
}

func (r *Registry) processOne(ctx context.Context, id *big.Int, rec *Record, now time.Time, tau time.Duration, outcome *ScanOutcome) {
	auction := rec.Auction

	if auction.Closed(now) {
		if auction.IsWinner(r.me) {
			if call, err := r.source.Deal(id); err == nil {
				r.submitCall(ctx, id, "deal", call)
				outcome.Dealt = append(outcome.Dealt, id)
			}
		} else {
			r.Untrack(id)
			outcome.Dropped = append(outcome.Dropped, id)
		}
		return
	}

	if auction.Bid.IsZero() && auction.TicExpired(now) {
		if call, err := r.source.Tick(id); err == nil {
			r.submitCall(ctx, id, "tick", call)
			outcome.Ticked = append(outcome.Ticked, id)
		}
		return
	}

	if rec.Model == nil || !rec.Model.Alive() {
		return
	}
	stance, err := rec.Model.ReadStance()
	if err != nil {
		return
	}

	strat, ok := r.strategies[auction.Kind]
	if !ok {
		return
	}
	bid, reason := strat.PriceToBid(stance, auction, r.me)
	if reason != strategy.SkipNone {
		outcome.Skipped = append(outcome.Skipped, ScanResult{ID: id, Reason: reason})
		return
	}
	if bid.Lot.Cmp(rec.LastSubmittedLot) == 0 && bid.Bid.Cmp(rec.LastSubmittedBid) == 0 && rec.LastMethod == bid.Method {
		outcome.Skipped = append(outcome.Skipped, ScanResult{ID: id, Reason: strategy.SkipDuplicate})
		return
	}

	if !bid.Cost.IsZero() && !r.reservoir.CheckBidCost(bid.Cost) {
		if r.topper == nil || !r.topper.TopupForBid(ctx, bid.Cost) {
			outcome.Skipped = append(outcome.Skipped, ScanResult{ID: id, Reason: strategy.SkipInsufficientFunds})
			return
		}
	}

	key := id.String() + ":" + bid.Method
	_, err = r.submitter.Submit(ctx, key, func(gasPrice *big.Int) (ktypes.Call, error) {
		return ktypes.Call{Method: bid.Method, Args: bid.Args}, nil
	}, stance.GasPrice)
	if err != nil {
		logger.Warn("bid submission failed", "id", id, "method", bid.Method, "err", err)
		return
	}

	rec.LastSubmittedLot = bid.Lot
	rec.LastSubmittedBid = bid.Bid
	rec.LastMethod = bid.Method
	outcome.Submitted = append(outcome.Submitted, ScanResult{ID: id, Bid: bid})
}

func (r *Registry) submitCall(ctx context.Context, id *big.Int, method string, call ktypes.Call) {
	key := id.String() + ":" + method
	if _, err := r.submitter.Submit(ctx, key, func(gasPrice *big.Int) (ktypes.Call, error) {
		return call, nil
	}, nil); err != nil {
		logger.Warn("housekeeping call failed", "id", id, "method", method, "err", err)
	}
}

// RegisterStrategy wires a Strategy implementation for kind; called
// once at startup per configured auction type.
func (r *Registry) RegisterStrategy(kind ktypes.Kind, strat strategy.Strategy) {
	r.strategies[kind] = strat
}

// RegisterTopper wires the C7 on-bid top-up hook; called once at
// startup when the keeper has a rebalancer and reservoir to bind
// together. Never required — a registry with no Topper simply skips
// bids it can't afford.
func (r *Registry) RegisterTopper(topper Topper) {
	r.topper = topper
}

func (r *Registry) sortedIDs() []*big.Int {
	ids := make([]*big.Int, 0, len(r.records))
	for _, rec := range r.records {
		ids = append(ids, rec.Auction.ID)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1].Cmp(ids[j]) > 0; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// Len reports how many auctions are currently tracked.
func (r *Registry) Len() int { return len(r.records) }
