package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOfFlap(t *testing.T) {
	lot, _ := ParseWad("50000")
	beg, _ := ParseRay("1.05")
	a := &Auction{
		Kind: Flap,
		ID:   bigInt(1),
		Lot:  lot,
		Bid:  Wad{},
		Beg:  beg,
		Guy:  ZeroAddress,
		Era:  time.Unix(1000, 0),
		End:  time.Unix(2000, 0),
	}
	msg := StatusOf(a)
	assert.Equal(t, "flap", msg.Kind)
	assert.Equal(t, "50000", msg.Lot)
	assert.Equal(t, "", msg.Price) // bid is zero, no price yet
}

func TestParseStanceSilent(t *testing.T) {
	st, err := ParseStance([]byte(`{"price": null}`))
	require.NoError(t, err)
	assert.True(t, st.Silent())
}

func TestParseStanceWithGas(t *testing.T) {
	st, err := ParseStance([]byte(`{"price": "10.0", "gas_price": 15}`))
	require.NoError(t, err)
	require.False(t, st.Silent())
	assert.Equal(t, "10", st.Price.String())
	require.NotNil(t, st.GasPrice)
	assert.Equal(t, int64(15), st.GasPrice.Int64())
}

func TestParseStanceMalformed(t *testing.T) {
	_, err := ParseStance([]byte(`not json`))
	assert.Error(t, err)
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }
