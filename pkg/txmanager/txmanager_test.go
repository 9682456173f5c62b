package txmanager

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionkeeper/pkg/gasstrategy"
	ktypes "auctionkeeper/pkg/types"
)

type fakeClient struct {
	nonce     uint64
	sent      []*types.Transaction
	sendErr   error
	underpriceOnce bool
}

func (f *fakeClient) ContractAddress() common.Address { return common.HexToAddress("0x1") }
func (f *fakeClient) Abi() abi.ABI                     { return abi.ABI{} }
func (f *fakeClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return nil, nil
}
func (f *fakeClient) BuildTx(ctx context.Context, from common.Address, value *big.Int, nonce uint64, gasPrice *big.Int, gasLimit uint64, method string, args ...interface{}) (*types.Transaction, error) {
	to := f.ContractAddress()
	return types.NewTx(&types.LegacyTx{Nonce: nonce, To: &to, Value: value, Gas: 100000, GasPrice: gasPrice}), nil
}
func (f *fakeClient) SignAndSend(ctx context.Context, tx *types.Transaction, key *ecdsa.PrivateKey, chainID *big.Int) (common.Hash, error) {
	if f.underpriceOnce {
		f.underpriceOnce = false
		return common.Hash{}, assertUnderpriced{}
	}
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return tx.Hash(), nil
}
func (f *fakeClient) EstimateGas(ctx context.Context, from common.Address, value *big.Int, method string, args ...interface{}) (uint64, error) {
	return 100000, nil
}
func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return big.NewInt(1000), nil }
func (f *fakeClient) PendingNonce(ctx context.Context, from common.Address) (uint64, error) {
	return f.nonce, nil
}
func (f *fakeClient) Receipt(ctx context.Context, txHash common.Hash) (*ktypes.Receipt, error) {
	return nil, nil
}

type assertUnderpriced struct{}

func (assertUnderpriced) Error() string { return "replacement transaction underpriced" }

type fakeWaiter struct {
	receipt *ktypes.Receipt
}

func (w *fakeWaiter) WaitForTransaction(ctx context.Context, txHash common.Hash) (*ktypes.Receipt, error) {
	r := *w.receipt
	r.TxHash = txHash
	return &r, nil
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestSubmitSendsAndWaits(t *testing.T) {
	client := &fakeClient{nonce: 5}
	waiter := &fakeWaiter{receipt: &ktypes.Receipt{Status: 1}}
	gas := gasstrategy.New(gasstrategy.Params{Base: big.NewInt(1000), Max: big.NewInt(100000)})
	mgr := New(testKey(t), big.NewInt(1337), gas, waiter, time.Second)
	mgr.RegisterClient(client.ContractAddress(), client)

	receipt, err := mgr.Submit(context.Background(), "1:tend", client.ContractAddress(), func(gasPrice *big.Int) (ktypes.Call, error) {
		return ktypes.Call{Method: "tend", Args: []interface{}{big.NewInt(1)}}, nil
	}, nil)
	require.NoError(t, err)
	assert.True(t, receipt.Success())
	require.Len(t, client.sent, 1)
	assert.Equal(t, uint64(5), client.sent[0].Nonce())
}

func TestSubmitPrefersModelGasPrice(t *testing.T) {
	client := &fakeClient{nonce: 1}
	waiter := &fakeWaiter{receipt: &ktypes.Receipt{Status: 1}}
	gas := gasstrategy.New(gasstrategy.Params{Base: big.NewInt(1000), Max: big.NewInt(1_000_000)})
	mgr := New(testKey(t), big.NewInt(1337), gas, waiter, time.Second)
	mgr.RegisterClient(client.ContractAddress(), client)

	_, err := mgr.Submit(context.Background(), "1:tend", client.ContractAddress(), func(gasPrice *big.Int) (ktypes.Call, error) {
		return ktypes.Call{Method: "tend"}, nil
	}, big.NewInt(5000))
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	assert.Equal(t, big.NewInt(5000), client.sent[0].GasPrice())
}

func TestSubmitRetriesOnUnderpriced(t *testing.T) {
	client := &fakeClient{nonce: 2, underpriceOnce: true}
	waiter := &fakeWaiter{receipt: &ktypes.Receipt{Status: 1}}
	gas := gasstrategy.New(gasstrategy.Params{Base: big.NewInt(1000), Max: big.NewInt(1_000_000)})
	mgr := New(testKey(t), big.NewInt(1337), gas, waiter, time.Second)
	mgr.RegisterClient(client.ContractAddress(), client)

	_, err := mgr.Submit(context.Background(), "1:tend", client.ContractAddress(), func(gasPrice *big.Int) (ktypes.Call, error) {
		return ktypes.Call{Method: "tend"}, nil
	}, big.NewInt(1000))
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
}

func TestSubmitRevertedSurfacesError(t *testing.T) {
	client := &fakeClient{nonce: 3}
	waiter := &fakeWaiter{receipt: &ktypes.Receipt{Status: 0}}
	gas := gasstrategy.New(gasstrategy.Params{Base: big.NewInt(1000), Max: big.NewInt(1_000_000)})
	mgr := New(testKey(t), big.NewInt(1337), gas, waiter, time.Second)
	mgr.RegisterClient(client.ContractAddress(), client)

	_, err := mgr.Submit(context.Background(), "1:tend", client.ContractAddress(), func(gasPrice *big.Int) (ktypes.Call, error) {
		return ktypes.Call{Method: "tend"}, nil
	}, nil)
	assert.Error(t, err)
}

func TestSubmitUnknownClientErrors(t *testing.T) {
	gas := gasstrategy.New(gasstrategy.Params{Base: big.NewInt(1000)})
	mgr := New(testKey(t), big.NewInt(1337), gas, &fakeWaiter{receipt: &ktypes.Receipt{Status: 1}}, time.Second)

	_, err := mgr.Submit(context.Background(), "1:tend", common.HexToAddress("0xdead"), func(gasPrice *big.Int) (ktypes.Call, error) {
		return ktypes.Call{}, nil
	}, nil)
	assert.Error(t, err)
}
