package registry

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionkeeper/pkg/strategy"
	ktypes "auctionkeeper/pkg/types"
)

type fakeSource struct {
	kicks    *big.Int
	bids     map[string]ktypes.Auction
	dealErr  error
	bidCalls int
}

func (f *fakeSource) Kicks() (*big.Int, error) { return f.kicks, nil }
func (f *fakeSource) Bids(id *big.Int) (ktypes.Auction, error) {
	f.bidCalls++
	return f.bids[id.String()], nil
}
func (f *fakeSource) Deal(id *big.Int) (ktypes.Call, error) {
	return ktypes.Call{Method: "deal", Args: []interface{}{id}}, nil
}
func (f *fakeSource) Tick(id *big.Int) (ktypes.Call, error) {
	return ktypes.Call{Method: "tick", Args: []interface{}{id}}, nil
}

type fakeModel struct {
	stance      ktypes.Stance
	alive       bool
	killed      bool
	statusCalls int
}

func (m *fakeModel) SendStatus(status ktypes.StatusMessage) error { m.statusCalls++; return nil }
func (m *fakeModel) ReadStance() (ktypes.Stance, error)           { return m.stance, nil }
func (m *fakeModel) Alive() bool                                  { return m.alive }
func (m *fakeModel) Kill() error                                  { m.killed = true; return nil }

type fakeReservoir struct{ allow bool }

func (r *fakeReservoir) CheckBidCost(cost ktypes.Rad) bool { return r.allow }

type fakeSubmitter struct {
	calls []string
}

func (s *fakeSubmitter) Submit(ctx context.Context, key string, build func(gasPrice *big.Int) (ktypes.Call, error), gasPriceHint *big.Int) (*ktypes.Receipt, error) {
	s.calls = append(s.calls, key)
	_, err := build(gasPriceHint)
	return &ktypes.Receipt{Status: 1}, err
}

func price(t *testing.T, s string) *ktypes.Ray {
	r, err := ktypes.ParseRay(s)
	require.NoError(t, err)
	return &r
}

func TestScanSubmitsFlapBidInAscendingOrder(t *testing.T) {
	lot, _ := ktypes.ParseWad("50000")
	beg, _ := ktypes.ParseRay("1.05")

	source := &fakeSource{kicks: big.NewInt(0), bids: map[string]ktypes.Auction{
		"2": {ID: big.NewInt(2), Kind: ktypes.Flap, Lot: lot, Beg: beg},
		"1": {ID: big.NewInt(1), Kind: ktypes.Flap, Lot: lot, Beg: beg},
	}}
	reservoir := &fakeReservoir{allow: true}
	submitter := &fakeSubmitter{}

	reg := New(source, reservoir, submitter, [20]byte{}, 4)
	reg.RegisterStrategy(ktypes.Flap, strategy.Flap{})
	reg.Track(big.NewInt(2), &fakeModel{alive: true, stance: ktypes.Stance{Price: price(t, "10.0")}})
	reg.Track(big.NewInt(1), &fakeModel{alive: true, stance: ktypes.Stance{Price: price(t, "10.0")}})

	outcome, err := reg.Scan(context.Background(), time.Unix(1000, 0), time.Hour, true)
	require.NoError(t, err)
	require.Len(t, outcome.Submitted, 2)
	assert.Equal(t, big.NewInt(1), outcome.Submitted[0].ID)
	assert.Equal(t, big.NewInt(2), outcome.Submitted[1].ID)
	assert.Equal(t, []string{"1:tend", "2:tend"}, submitter.calls)
}

func TestScanSkipsWhenReservoirExhausted(t *testing.T) {
	lot, _ := ktypes.ParseWad("50000")
	beg, _ := ktypes.ParseRay("1.05")
	tab, _ := ktypes.ParseRad("100")

	source := &fakeSource{kicks: big.NewInt(0), bids: map[string]ktypes.Auction{
		"1": {ID: big.NewInt(1), Kind: ktypes.Flip, Lot: lot, Beg: beg, Tab: tab},
	}}
	reservoir := &fakeReservoir{allow: false}
	submitter := &fakeSubmitter{}

	reg := New(source, reservoir, submitter, [20]byte{}, 4)
	reg.RegisterStrategy(ktypes.Flip, strategy.Flip{})
	reg.Track(big.NewInt(1), &fakeModel{alive: true, stance: ktypes.Stance{Price: price(t, "0.001")}})

	outcome, err := reg.Scan(context.Background(), time.Unix(1000, 0), time.Hour, true)
	require.NoError(t, err)
	assert.Empty(t, outcome.Submitted)
	require.Len(t, outcome.Skipped, 1)
	assert.Equal(t, strategy.SkipInsufficientFunds, outcome.Skipped[0].Reason)
}

// S4: competing bidder closes the auction against us; the keeper must
// not deal and must drop the record rather than retry.
func TestScanDropsRecordWhenOutbidAtClose(t *testing.T) {
	lot, _ := ktypes.ParseWad("50000")
	source := &fakeSource{kicks: big.NewInt(0), bids: map[string]ktypes.Auction{
		"1": {ID: big.NewInt(1), Kind: ktypes.Flap, Lot: lot, Guy: [20]byte{0x9}, End: time.Unix(500, 0)},
	}}
	reservoir := &fakeReservoir{allow: true}
	submitter := &fakeSubmitter{}

	reg := New(source, reservoir, submitter, [20]byte{0x1}, 4)
	reg.RegisterStrategy(ktypes.Flap, strategy.Flap{})
	m := &fakeModel{alive: true}
	reg.Track(big.NewInt(1), m)

	outcome, err := reg.Scan(context.Background(), time.Unix(1000, 0), time.Hour, true)
	require.NoError(t, err)
	assert.Empty(t, outcome.Dealt)
	require.Len(t, outcome.Dropped, 1)
	assert.True(t, m.killed)
	assert.Equal(t, 0, reg.Len())
}

func TestScanDealsWhenOperatorWinsAtClose(t *testing.T) {
	lot, _ := ktypes.ParseWad("50000")
	me := [20]byte{0x1}
	source := &fakeSource{kicks: big.NewInt(0), bids: map[string]ktypes.Auction{
		"1": {ID: big.NewInt(1), Kind: ktypes.Flap, Lot: lot, Guy: me, End: time.Unix(500, 0)},
	}}
	reservoir := &fakeReservoir{allow: true}
	submitter := &fakeSubmitter{}

	reg := New(source, reservoir, submitter, me, 4)
	reg.RegisterStrategy(ktypes.Flap, strategy.Flap{})
	reg.Track(big.NewInt(1), &fakeModel{alive: true})

	outcome, err := reg.Scan(context.Background(), time.Unix(1000, 0), time.Hour, true)
	require.NoError(t, err)
	require.Len(t, outcome.Dealt, 1)
	assert.Equal(t, []string{"1:deal"}, submitter.calls)
}

// The micro-tick path must not touch the chain or the model's status
// channel — it only re-prices against already-cached auction state and
// the model's already-buffered stance.
func TestScanMicroTickSkipsContractReadsAndStatusDispatch(t *testing.T) {
	lot, _ := ktypes.ParseWad("50000")
	beg, _ := ktypes.ParseRay("1.05")

	source := &fakeSource{kicks: big.NewInt(0), bids: map[string]ktypes.Auction{
		"1": {ID: big.NewInt(1), Kind: ktypes.Flap, Lot: lot, Beg: beg},
	}}
	reservoir := &fakeReservoir{allow: true}
	submitter := &fakeSubmitter{}

	reg := New(source, reservoir, submitter, [20]byte{}, 4)
	reg.RegisterStrategy(ktypes.Flap, strategy.Flap{})
	m := &fakeModel{alive: true, stance: ktypes.Stance{Price: price(t, "10.0")}}
	reg.Track(big.NewInt(1), m)
	// Seed cached auction state the way a prior full scan would have.
	reg.records["1"].Auction = ktypes.Auction{ID: big.NewInt(1), Kind: ktypes.Flap, Lot: lot, Beg: beg}

	outcome, err := reg.Scan(context.Background(), time.Unix(1000, 0), time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 0, source.bidCalls)
	assert.Equal(t, 0, m.statusCalls)
	require.Len(t, outcome.Submitted, 1)
	assert.Equal(t, []string{"1:tend"}, submitter.calls)
}

func TestDiscoverReturnsNewIDsPastLastSeen(t *testing.T) {
	source := &fakeSource{kicks: big.NewInt(3)}
	reg := New(source, &fakeReservoir{}, &fakeSubmitter{}, [20]byte{}, 4)

	ids, err := reg.Discover()
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}, ids)
}
