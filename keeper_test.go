package auctionkeeper

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionkeeper/pkg/registry"
	"auctionkeeper/pkg/rebalance"
	ktypes "auctionkeeper/pkg/types"
)

type fakeBlocks struct {
	subErr error
}

type fakeSubscription struct{ errc chan error }

func (s *fakeSubscription) Unsubscribe()      {}
func (s *fakeSubscription) Err() <-chan error { return s.errc }

func (f *fakeBlocks) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return &fakeSubscription{errc: make(chan error)}, nil
}

func (f *fakeBlocks) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

type fakeSource struct{ kicks *big.Int }

func (f *fakeSource) Kicks() (*big.Int, error) { return f.kicks, nil }
func (f *fakeSource) Bids(id *big.Int) (ktypes.Auction, error) {
	return ktypes.Auction{ID: id}, nil
}
func (f *fakeSource) Deal(id *big.Int) (ktypes.Call, error) { return ktypes.Call{}, nil }
func (f *fakeSource) Tick(id *big.Int) (ktypes.Call, error) { return ktypes.Call{}, nil }

type fakeReservoir struct{}

func (fakeReservoir) CheckBidCost(cost ktypes.Rad) bool { return true }

type fakeSubmitter struct{}

func (fakeSubmitter) Submit(ctx context.Context, key string, build func(gasPrice *big.Int) (ktypes.Call, error), gasPriceHint *big.Int) (*ktypes.Receipt, error) {
	return &ktypes.Receipt{Status: 1}, nil
}

type fakeModels struct{ spawned []*big.Int }

func (f *fakeModels) Spawn(ctx context.Context, id *big.Int) (registry.ModelHandle, error) {
	f.spawned = append(f.spawned, id)
	return &fakeModelHandle{}, nil
}

type fakeModelHandle struct{}

func (fakeModelHandle) SendStatus(status ktypes.StatusMessage) error { return nil }
func (fakeModelHandle) ReadStance() (ktypes.Stance, error)           { return ktypes.Stance{}, nil }
func (fakeModelHandle) Alive() bool                                  { return true }
func (fakeModelHandle) Kill() error                                  { return nil }

type fakeRebalanceSource struct{}

func (fakeRebalanceSource) VatDaiBalance(ctx context.Context) (ktypes.Rad, error) {
	return ktypes.Rad{}, nil
}
func (fakeRebalanceSource) TokenBalance(ctx context.Context) (ktypes.Wad, error) {
	return ktypes.Wad{}, nil
}
func (fakeRebalanceSource) Join(ctx context.Context, amount ktypes.Wad) error { return nil }
func (fakeRebalanceSource) Exit(ctx context.Context, amount ktypes.Wad) error { return nil }
func (fakeRebalanceSource) VatGemBalance(ctx context.Context, ilk string) (ktypes.Wad, error) {
	return ktypes.Wad{}, nil
}
func (fakeRebalanceSource) ExitGem(ctx context.Context, ilk string, amount ktypes.Wad) error {
	return nil
}
func (fakeRebalanceSource) ActiveBidGemReserve(ilk string) ktypes.Wad { return ktypes.Wad{} }

func newTestKeeper(t *testing.T, blockSubErr error) (*Keeper, *fakeModels) {
	t.Helper()
	reg := registry.New(&fakeSource{kicks: big.NewInt(0)}, fakeReservoir{}, fakeSubmitter{}, [20]byte{}, 4)
	rb := rebalance.New(rebalance.Config{Target: rebalance.AllTarget()}, fakeRebalanceSource{})
	models := &fakeModels{}
	k := New(Config{MicroTickInterval: 10 * time.Millisecond, BlockPollInterval: 10 * time.Millisecond}, &fakeBlocks{subErr: blockSubErr}, reg, nil, rb, models, nil, nil, 6*time.Hour)
	return k, models
}

func TestKeeperRunTransitionsToTerminatedOnCancel(t *testing.T) {
	k, _ := newTestKeeper(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool { return k.State() == Running }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not shut down in time")
	}
	assert.Equal(t, Terminated, k.State())
}

func TestKeeperFallsBackToPollingWhenSubscribeFails(t *testing.T) {
	k, _ := newTestKeeper(t, assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool { return k.State() == Running }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not shut down in time")
	}
}

func TestKeeperDiscoversAndTracksNewAuctions(t *testing.T) {
	k, models := newTestKeeper(t, nil)
	k.registry = registry.New(&fakeSource{kicks: big.NewInt(2)}, fakeReservoir{}, fakeSubmitter{}, [20]byte{}, 4)
	k.setState(Running)

	require.NoError(t, k.discoverAndTrack(context.Background()))
	assert.Len(t, models.spawned, 2)
	assert.Equal(t, 2, k.registry.Len())
}
