package vault

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ktypes "auctionkeeper/pkg/types"
)

func w(t *testing.T, s string) ktypes.Wad {
	v, err := ktypes.ParseWad(s)
	require.NoError(t, err)
	return v
}
func r(t *testing.T, s string) ktypes.Ray {
	v, err := ktypes.ParseRay(s)
	require.NoError(t, err)
	return v
}
func rd(t *testing.T, s string) ktypes.Rad {
	v, err := ktypes.ParseRad(s)
	require.NoError(t, err)
	return v
}

func TestSafeUrn(t *testing.T) {
	urn := Urn{Ink: w(t, "10"), Art: w(t, "5")}
	ilk := IlkParams{Rate: r(t, "1.0"), Spot: r(t, "1.0")}
	assert.True(t, Safe(urn, ilk))
}

func TestUnsafeUrn(t *testing.T) {
	urn := Urn{Ink: w(t, "5"), Art: w(t, "10")}
	ilk := IlkParams{Rate: r(t, "1.0"), Spot: r(t, "1.0")}
	assert.False(t, Safe(urn, ilk))
}

type fakeSource struct {
	ilk    IlkParams
	keys   []UrnKey
	urns   map[[20]byte]Urn
	vow    VowState
	called []string
}

func (f *fakeSource) IlkParams(ilk string) (IlkParams, error) { return f.ilk, nil }
func (f *fakeSource) UrnsByIlk(ilk string) ([]UrnKey, error)   { return f.keys, nil }
func (f *fakeSource) Urn(ilk string, owner [20]byte) (Urn, error) {
	return f.urns[owner], nil
}
func (f *fakeSource) VowState() (VowState, error) { return f.vow, nil }
func (f *fakeSource) Bite(ilk string, owner [20]byte) (ktypes.Call, error) {
	f.called = append(f.called, "bite")
	return ktypes.Call{Method: "bite"}, nil
}
func (f *fakeSource) Bark(ilk string, owner [20]byte) (ktypes.Call, error) {
	f.called = append(f.called, "bark")
	return ktypes.Call{Method: "bark"}, nil
}
func (f *fakeSource) Flap() (ktypes.Call, error) {
	f.called = append(f.called, "flap")
	return ktypes.Call{Method: "flap"}, nil
}
func (f *fakeSource) Flop() (ktypes.Call, error) {
	f.called = append(f.called, "flop")
	return ktypes.Call{Method: "flop"}, nil
}

type fakeSubmitter struct{ keys []string }

func (s *fakeSubmitter) Submit(ctx context.Context, key string, build func(gasPrice *big.Int) (ktypes.Call, error), gasPriceHint *big.Int) (*ktypes.Receipt, error) {
	s.keys = append(s.keys, key)
	_, err := build(nil)
	return &ktypes.Receipt{Status: 1}, err
}

func TestScanBitesUnsafeUrn(t *testing.T) {
	owner := [20]byte{0x1}
	source := &fakeSource{
		ilk:  IlkParams{Rate: r(t, "1.0"), Spot: r(t, "1.0"), Dust: rd(t, "1")},
		keys: []UrnKey{{Ilk: "ETH-A", Owner: owner}},
		urns: map[[20]byte]Urn{owner: {Ink: w(t, "1"), Art: w(t, "10")}},
	}
	submitter := &fakeSubmitter{}
	s, err := New(Config{Ilk: "ETH-A", CanBite: true}, source, submitter)
	require.NoError(t, err)

	require.NoError(t, s.Scan(context.Background()))
	assert.Equal(t, []string{"bite"}, source.called)
	require.Len(t, submitter.keys, 1)
}

func TestScanSkipsDustUrn(t *testing.T) {
	owner := [20]byte{0x2}
	source := &fakeSource{
		ilk:  IlkParams{Rate: r(t, "1.0"), Spot: r(t, "1.0"), Dust: rd(t, "100")},
		keys: []UrnKey{{Ilk: "ETH-A", Owner: owner}},
		urns: map[[20]byte]Urn{owner: {Ink: w(t, "1"), Art: w(t, "10")}},
	}
	submitter := &fakeSubmitter{}
	s, err := New(Config{Ilk: "ETH-A", CanBite: true}, source, submitter)
	require.NoError(t, err)

	require.NoError(t, s.Scan(context.Background()))
	assert.Empty(t, source.called)
}

// A flap/flop keeper carries no ilk; its scanner must still reach the
// vow check and kick, not bail out on the empty Ilk.
func TestScanKicksFlapWithNoIlkConfigured(t *testing.T) {
	source := &fakeSource{
		vow: VowState{
			Surplus: rd(t, "1000"),
			Bump:    rd(t, "100"),
			Hump:    rd(t, "500"),
			Sin:     rd(t, "50"),
			Sump:    rd(t, "10"),
		},
	}
	submitter := &fakeSubmitter{}
	s, err := New(Config{CanFlap: true}, source, submitter)
	require.NoError(t, err)

	require.NoError(t, s.Scan(context.Background()))
	assert.Equal(t, []string{"flap"}, source.called)
}

func TestScanKicksFlapAndFlop(t *testing.T) {
	source := &fakeSource{
		ilk: IlkParams{Rate: r(t, "1.0"), Spot: r(t, "1.0")},
		vow: VowState{
			Surplus: rd(t, "1000"),
			Bump:    rd(t, "100"),
			Hump:    rd(t, "500"),
			Sin:     rd(t, "50"),
			Sump:    rd(t, "10"),
		},
	}
	submitter := &fakeSubmitter{}
	s, err := New(Config{Ilk: "ETH-A", CanFlap: true, CanFlop: true}, source, submitter)
	require.NoError(t, err)

	require.NoError(t, s.Scan(context.Background()))
	assert.Contains(t, source.called, "flap")
	assert.Contains(t, source.called, "flop")
}
