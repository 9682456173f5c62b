package contractclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ktypes "auctionkeeper/pkg/types"
)

// rebalanceSubmitter is the narrow Transaction Manager dependency the
// adapter needs to land join/exit calls through the same nonce-aware
// submission path bids use. *txmanager.Manager.Bind satisfies this.
type rebalanceSubmitter interface {
	Submit(ctx context.Context, key string, build func(gasPrice *big.Int) (ktypes.Call, error), gasPriceHint *big.Int) (*ktypes.Receipt, error)
}

// RebalanceAdapter wires the Vat, the operator's ERC20 token client
// (DAI or the collateral gem), and the matching Join adapter contract
// (DaiJoin / GemJoin) as a rebalance.Source. join/exit calls are routed
// through submitter so they share the Transaction Manager's gas
// escalation and nonce bookkeeping rather than racing bid submissions.
type RebalanceAdapter struct {
	vat       ContractClient
	token     ContractClient // ERC20 balanceOf target (DAI or gem)
	join      ContractClient // DaiJoin or GemJoin
	submitter rebalanceSubmitter
	me        common.Address
	ilk       [32]byte
	isGem     bool
	reserveFn func(ilk string) ktypes.Wad // gem earmarked by active bids, passed to NewGemRebalanceAdapter
}

// NewDaiRebalanceAdapter wires the stablecoin join side of C7.
func NewDaiRebalanceAdapter(vat, dai, daiJoin ContractClient, submitter rebalanceSubmitter, me common.Address) *RebalanceAdapter {
	return &RebalanceAdapter{vat: vat, token: dai, join: daiJoin, submitter: submitter, me: me}
}

// NewGemRebalanceAdapter wires the collateral-gem join side of C7 for
// one ilk; reserveFn reports how much of the held gem is earmarked by
// in-flight bids so maybeReturnGem never exits funds a pending tend
// still needs.
func NewGemRebalanceAdapter(vat, gem, gemJoin ContractClient, submitter rebalanceSubmitter, me common.Address, ilk string, reserveFn func(string) ktypes.Wad) *RebalanceAdapter {
	return &RebalanceAdapter{vat: vat, token: gem, join: gemJoin, submitter: submitter, me: me, ilk: padIlk(ilk), isGem: true, reserveFn: reserveFn}
}

func (a *RebalanceAdapter) VatDaiBalance(ctx context.Context) (ktypes.Rad, error) {
	out, err := a.vat.Call(nil, "dai", a.me)
	if err != nil {
		return ktypes.Rad{}, fmt.Errorf("rebalance adapter: vat.dai: %w", err)
	}
	return ktypes.NewRad(mustFirst(out)), nil
}

func (a *RebalanceAdapter) TokenBalance(ctx context.Context) (ktypes.Wad, error) {
	out, err := a.token.Call(&a.me, "balanceOf", a.me)
	if err != nil {
		return ktypes.Wad{}, fmt.Errorf("rebalance adapter: token.balanceOf: %w", err)
	}
	return ktypes.NewWad(mustFirst(out)), nil
}

func (a *RebalanceAdapter) Join(ctx context.Context, amount ktypes.Wad) error {
	args := []interface{}{a.me, amount.Int()}
	if a.isGem {
		args = []interface{}{a.ilk, a.me, amount.Int()}
	}
	return a.submit(ctx, "rebalance:join:"+a.join.ContractAddress().Hex(), "join", args)
}

func (a *RebalanceAdapter) Exit(ctx context.Context, amount ktypes.Wad) error {
	args := []interface{}{a.me, amount.Int()}
	if a.isGem {
		args = []interface{}{a.ilk, a.me, amount.Int()}
	}
	return a.submit(ctx, "rebalance:exit:"+a.join.ContractAddress().Hex(), "exit", args)
}

func (a *RebalanceAdapter) VatGemBalance(ctx context.Context, ilk string) (ktypes.Wad, error) {
	out, err := a.vat.Call(nil, "gem", padIlk(ilk), a.me)
	if err != nil {
		return ktypes.Wad{}, fmt.Errorf("rebalance adapter: vat.gem: %w", err)
	}
	return ktypes.NewWad(mustFirst(out)), nil
}

func (a *RebalanceAdapter) ExitGem(ctx context.Context, ilk string, amount ktypes.Wad) error {
	return a.submit(ctx, "rebalance:exitgem:"+ilk, "exit", []interface{}{padIlk(ilk), a.me, amount.Int()})
}

func (a *RebalanceAdapter) ActiveBidGemReserve(ilk string) ktypes.Wad {
	if a.reserveFn == nil {
		return ktypes.Wad{}
	}
	return a.reserveFn(ilk)
}

func (a *RebalanceAdapter) submit(ctx context.Context, key, method string, args []interface{}) error {
	_, err := a.submitter.Submit(ctx, key, func(gasPrice *big.Int) (ktypes.Call, error) {
		return ktypes.Call{Contract: a.join.ContractAddress(), Method: method, Args: args}, nil
	}, nil)
	return err
}
