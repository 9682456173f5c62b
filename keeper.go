// Package auctionkeeper is the keeper's root domain object: it owns the
// C8 lifecycle state machine and drives the Vault Scanner (C6), Auction
// Registry (C5), and Balance Rebalancer (C7) from block-arrival and
// micro-tick events until told to shut down.
package auctionkeeper

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"

	"auctionkeeper/pkg/registry"
	"auctionkeeper/pkg/rebalance"
	ktypes "auctionkeeper/pkg/types"
	"auctionkeeper/pkg/vault"
)

var logger = gethlog.New("module", "keeper")

// State is the keeper's overall lifecycle phase.
type State int

const (
	Initialising State = iota
	Running
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Initialising:
		return "initialising"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// BlockSource is the narrow ethclient dependency the keeper's primary
// tick needs: subscribe to new heads where the node supports it, and a
// polling fallback otherwise.
type BlockSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ModelLifecycle spawns and tears down the per-auction pricing-model
// process the registry tracks against a discovered auction id.
type ModelLifecycle interface {
	Spawn(ctx context.Context, id *big.Int) (registry.ModelHandle, error)
}

// BalanceSource reports the vat-stablecoin balance backing bid
// affordability checks, refreshed at the start of every full scan so
// the reservoir never carries a stale balance across scans (§5).
type BalanceSource interface {
	VatDaiBalance(ctx context.Context) (ktypes.Rad, error)
}

// Config is the keeper's resolved runtime configuration (already
// merged from CLI flags, YAML, and environment by cmd/auctionkeeper).
type Config struct {
	Ilks              []string // ilks the vault scanner and gem rebalancer watch; empty for flap/flop-only keepers
	MicroTickInterval time.Duration
	BlockPollInterval time.Duration // used only when SubscribeNewHead is unavailable
	ShutdownGrace     time.Duration
}

// Keeper wires C5, C6, and C7 together and runs the C8 event loop.
type Keeper struct {
	cfg    Config
	blocks BlockSource

	registry   *registry.Registry
	vault      *vault.Scanner // nil when the contract clients it reads are not configured
	rebalancer *rebalance.Rebalancer
	models     ModelLifecycle

	reservoir *rebalance.Reservoir // nil when no vat client is configured; the registry then uses an UnboundedReservoir
	balances  BalanceSource

	tau time.Duration // per-auction tick expiry the registry needs for TicExpired

	mu    sync.Mutex
	state State
}

// New assembles a Keeper. vaultScanner is nil when the contract clients
// it needs (vat/spotter/vow for flip/clip, vat/vow for flap/flop) are not
// configured. reservoir/balances may both be nil
// when the registry was built against a Reservoir that never rejects a
// bid (e.g. a test double); a non-nil reservoir is reseeded from
// balances.VatDaiBalance at the start of every full scan.
func New(cfg Config, blocks BlockSource, reg *registry.Registry, vaultScanner *vault.Scanner, rebalancer *rebalance.Rebalancer, models ModelLifecycle, reservoir *rebalance.Reservoir, balances BalanceSource, tau time.Duration) *Keeper {
	return &Keeper{
		cfg:        cfg,
		blocks:     blocks,
		registry:   reg,
		vault:      vaultScanner,
		rebalancer: rebalancer,
		models:     models,
		reservoir:  reservoir,
		balances:   balances,
		tau:        tau,
		state:      Initialising,
	}
}

// State reports the keeper's current lifecycle phase.
func (k *Keeper) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

func (k *Keeper) setState(s State) {
	k.mu.Lock()
	k.state = s
	k.mu.Unlock()
	logger.Info("keeper state transition", "state", s.String())
}

// Run drives the C8 event loop until ctx is cancelled (typically by an
// OS signal handler installed by the caller), then performs the
// Draining shutdown sequence before returning.
func (k *Keeper) Run(ctx context.Context) error {
	k.setState(Running)

	heads := make(chan *types.Header, 16)
	sub, err := k.blocks.SubscribeNewHead(ctx, heads)
	var pollTicker *time.Ticker
	if err != nil {
		interval := k.cfg.BlockPollInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		pollTicker = time.NewTicker(interval)
		defer pollTicker.Stop()
		logger.Warn("falling back to block polling", "interval", interval, "err", err)
	} else {
		defer sub.Unsubscribe()
	}

	microTick := k.cfg.MicroTickInterval
	if microTick <= 0 {
		microTick = 2 * time.Second
	}
	microTicker := time.NewTicker(microTick)
	defer microTicker.Stop()

	var subErrs <-chan error
	if sub != nil {
		subErrs = sub.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return k.drain(context.Background())

		case err := <-subErrs:
			if err != nil {
				logger.Warn("block subscription error", "err", err)
			}

		case <-heads:
			k.onBlock(ctx)

		case <-pollTickerC(pollTicker):
			k.onBlock(ctx)

		case <-microTicker.C:
			k.onMicroTick(ctx)
		}
	}
}

// pollTickerC returns t.C, or a nil channel (which blocks forever in a
// select) when t is nil — the SubscribeNewHead path never arms it.
func pollTickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// onBlock runs one full per-block pass: C6 (vault safety + systemwide
// kicks), discover newly kicked auctions, C5 (full scan), then C7
// rebalance.
func (k *Keeper) onBlock(ctx context.Context) {
	if k.State() != Running {
		return
	}

	if k.vault != nil {
		if err := k.vault.Scan(ctx); err != nil {
			logger.Warn("vault scan failed", "err", err)
		}
	}

	if k.reservoir != nil && k.balances != nil {
		balance, err := k.balances.VatDaiBalance(ctx)
		if err != nil {
			logger.Warn("vat balance read failed; reservoir not reseeded this scan", "err", err)
		} else {
			k.reservoir.Reset(balance)
		}
	}

	if err := k.discoverAndTrack(ctx); err != nil {
		logger.Warn("auction discovery failed", "err", err)
	}

	outcome, err := k.registry.Scan(ctx, time.Now(), k.tau, true)
	if err != nil {
		logger.Warn("registry scan failed", "err", err)
	} else {
		logger.Info("scan complete", "submitted", len(outcome.Submitted), "skipped", len(outcome.Skipped), "dealt", len(outcome.Dealt), "dropped", len(outcome.Dropped), "ticked", len(outcome.Ticked))
	}

	if k.rebalancer != nil {
		if err := k.rebalancer.Scan(ctx, k.cfg.Ilks); err != nil {
			logger.Warn("rebalance scan failed", "err", err)
		}
	}
}

// onMicroTick re-checks stances and submits against already-tracked
// auctions without a full contract re-read, per the "check for bids"
// fast path C8 describes. It reuses registry.Scan with fullReread
// false: the registry skips its per-auction Bids() read and status
// dispatch entirely and only re-prices against cached auction state
// and each model's already-buffered stance.
func (k *Keeper) onMicroTick(ctx context.Context) {
	if k.State() != Running {
		return
	}
	if _, err := k.registry.Scan(ctx, time.Now(), k.tau, false); err != nil {
		logger.Warn("micro-tick scan failed", "err", err)
	}
}

func (k *Keeper) discoverAndTrack(ctx context.Context) error {
	ids, err := k.registry.Discover()
	if err != nil {
		return fmt.Errorf("keeper: discover: %w", err)
	}
	for _, id := range ids {
		handle, err := k.models.Spawn(ctx, id)
		if err != nil {
			logger.Warn("model spawn failed", "id", id, "err", err)
			continue
		}
		k.registry.Track(id, handle)
	}
	return nil
}

// drain performs the Draining → Terminated shutdown sequence: block and
// micro-tick handlers stop scanning (onBlock/onMicroTick check State()),
// one final full scan runs, then C7's shutdown rebalancing, then the
// state is marked Terminated. The final scan is the ordinary scan: it
// settles won auctions and also prices and submits bids. drain does not
// stop the model processes.
func (k *Keeper) drain(ctx context.Context) error {
	k.setState(Draining)

	grace := k.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	drainCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if _, err := k.registry.Scan(drainCtx, time.Now(), k.tau, true); err != nil {
		logger.Warn("final drain scan failed", "err", err)
	}

	if k.rebalancer != nil {
		if err := k.rebalancer.Shutdown(drainCtx, k.cfg.Ilks); err != nil {
			logger.Warn("shutdown rebalance failed", "err", err)
		}
	}

	k.setState(Terminated)
	return nil
}
