// Package rebalance implements the Balance Rebalancer (C7): keeping
// the vat-stablecoin balance near an operator-chosen target, and the
// Reservoir, the scan-scoped bid-affordability ledger C5 consults.
package rebalance

import (
	"context"
	"fmt"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"

	ktypes "auctionkeeper/pkg/types"
)

var logger = gethlog.New("module", "rebalance")

// Target selects the join/exit policy: either a fixed vat-stablecoin
// amount to hold, or "all" — always join the full token balance and
// never exit proactively.
type Target struct {
	Fixed *ktypes.Rad // nil means "all"
}

func FixedTarget(amount ktypes.Rad) Target { return Target{Fixed: &amount} }
func AllTarget() Target                    { return Target{} }

func (t Target) isAll() bool { return t.Fixed == nil }

// Config is the operator-facing rebalancer configuration.
type Config struct {
	Target              Target
	ReturnGemInterval    time.Duration
	ExitDaiOnShutdown    bool
	ExitGemOnShutdown    bool
}

// Source reads and writes vat/token balances; implemented atop
// pkg/contractclient for the Vat and the join/exit adapter (DaiJoin /
// GemJoin).
type Source interface {
	VatDaiBalance(ctx context.Context) (ktypes.Rad, error)
	TokenBalance(ctx context.Context) (ktypes.Wad, error)
	Join(ctx context.Context, amount ktypes.Wad) error
	Exit(ctx context.Context, amount ktypes.Wad) error

	VatGemBalance(ctx context.Context, ilk string) (ktypes.Wad, error)
	ExitGem(ctx context.Context, ilk string, amount ktypes.Wad) error
	ActiveBidGemReserve(ilk string) ktypes.Wad
}

// Rebalancer drives the C7 join/exit policy for one operator account.
type Rebalancer struct {
	cfg    Config
	source Source

	lastGemReturn time.Time
}

// New builds a Rebalancer from cfg.
func New(cfg Config, source Source) *Rebalancer {
	return &Rebalancer{cfg: cfg, source: source}
}

// Scan runs one post-scan rebalance pass: adjust the vat-stablecoin
// balance toward the configured target, then return any idle
// collateral gem if the return interval has elapsed.
func (rb *Rebalancer) Scan(ctx context.Context, ilks []string) error {
	if err := rb.rebalanceDai(ctx); err != nil {
		return err
	}
	return rb.maybeReturnGem(ctx, ilks)
}

func (rb *Rebalancer) rebalanceDai(ctx context.Context) error {
	vat, err := rb.source.VatDaiBalance(ctx)
	if err != nil {
		return fmt.Errorf("rebalance: vat balance: %w", err)
	}

	if rb.cfg.Target.isAll() {
		token, err := rb.source.TokenBalance(ctx)
		if err != nil {
			return fmt.Errorf("rebalance: token balance: %w", err)
		}
		if token.Sign() > 0 {
			return rb.source.Join(ctx, token)
		}
		return nil
	}

	target := *rb.cfg.Target.Fixed
	switch {
	case vat.Cmp(target) < 0:
		token, err := rb.source.TokenBalance(ctx)
		if err != nil {
			return fmt.Errorf("rebalance: token balance: %w", err)
		}
		if token.IsZero() {
			return nil
		}
		shortfall := target.Sub(vat).ToWad()
		amount := shortfall
		if token.Cmp(amount) < 0 {
			amount = token
		}
		if amount.Sign() <= 0 {
			return nil
		}
		return rb.source.Join(ctx, amount)
	case vat.Cmp(target) > 0:
		excess := vat.Sub(target).ToWad()
		if excess.Sign() <= 0 {
			return nil
		}
		return rb.source.Exit(ctx, excess)
	default:
		return nil
	}
}

// TopupForBid implements the "on-bid top-up" rule: when the Reservoir
// reports a shortfall for cost, attempt an immediate join of the full
// outstanding token balance before the caller decides whether to skip.
func (rb *Rebalancer) TopupForBid(ctx context.Context, reservoir *Reservoir, cost ktypes.Rad) bool {
	if reservoir.CheckBidCost(cost) {
		return true
	}
	token, err := rb.source.TokenBalance(ctx)
	if err != nil || token.IsZero() {
		return false
	}
	if err := rb.source.Join(ctx, token); err != nil {
		logger.Warn("on-bid topup join failed", "err", err)
		return false
	}
	reservoir.Topup(token.ToRad())
	return reservoir.CheckBidCost(cost)
}

// ReservoirTopper binds a Rebalancer to the scan's live Reservoir,
// giving the registry a narrow on-bid top-up hook (pkg/registry's
// Topper interface) without exposing the Reservoir's concrete type
// across the package boundary.
type ReservoirTopper struct {
	Rebalancer *Rebalancer
	Reservoir  *Reservoir
}

// TopupForBid attempts the C7 on-bid top-up against the bound
// reservoir, per the "immediate join before skip" rule.
func (t ReservoirTopper) TopupForBid(ctx context.Context, cost ktypes.Rad) bool {
	return t.Rebalancer.TopupForBid(ctx, t.Reservoir, cost)
}

func (rb *Rebalancer) maybeReturnGem(ctx context.Context, ilks []string) error {
	if rb.cfg.ReturnGemInterval <= 0 {
		return nil
	}
	if !rb.lastGemReturn.IsZero() && time.Since(rb.lastGemReturn) < rb.cfg.ReturnGemInterval {
		return nil
	}

	for _, ilk := range ilks {
		held, err := rb.source.VatGemBalance(ctx, ilk)
		if err != nil {
			continue
		}
		reserved := rb.source.ActiveBidGemReserve(ilk)
		idle := held.Sub(reserved)
		if idle.Sign() <= 0 {
			continue
		}
		if err := rb.source.ExitGem(ctx, ilk, idle); err != nil {
			logger.Warn("gem return failed", "ilk", ilk, "err", err)
		}
	}
	rb.lastGemReturn = time.Now()
	return nil
}

// Shutdown runs the configured shutdown-time exits; called once while
// the keeper is Draining, before it transitions to Terminated.
func (rb *Rebalancer) Shutdown(ctx context.Context, ilks []string) error {
	if rb.cfg.ExitDaiOnShutdown {
		vat, err := rb.source.VatDaiBalance(ctx)
		if err != nil {
			return fmt.Errorf("rebalance: shutdown vat balance: %w", err)
		}
		if !vat.IsZero() {
			if err := rb.source.Exit(ctx, vat.ToWad()); err != nil {
				return fmt.Errorf("rebalance: shutdown exit dai: %w", err)
			}
		}
	}
	if rb.cfg.ExitGemOnShutdown {
		for _, ilk := range ilks {
			held, err := rb.source.VatGemBalance(ctx, ilk)
			if err != nil {
				continue
			}
			if held.Sign() > 0 {
				if err := rb.source.ExitGem(ctx, ilk, held); err != nil {
					logger.Warn("shutdown gem exit failed", "ilk", ilk, "err", err)
				}
			}
		}
	}
	return nil
}
