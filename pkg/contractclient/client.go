package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethlog "github.com/ethereum/go-ethereum/log"

	ktypes "auctionkeeper/pkg/types"
)

var logger = gethlog.New("module", "contractclient")

// Client is the production ContractClient: one instance per configured
// contract address, sharing a single Backend (node RPC connection)
// across every contract the keeper talks to.
type Client struct {
	backend Backend
	address common.Address
	abi     abi.ABI
}

// NewClient wires a contract address and its ABI to a shared backend.
func NewClient(backend Backend, address common.Address, contractABI abi.ABI) *Client {
	return &Client{backend: backend, address: address, abi: contractABI}
}

func (c *Client) ContractAddress() common.Address { return c.address }

func (c *Client) Abi() abi.ABI { return c.abi }

func (c *Client) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := callMsg(caller, c.address, input)
	out, err := c.backend.CallContract(context.Background(), msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	result, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return result, nil
}

func (c *Client) EstimateGas(ctx context.Context, from common.Address, value *big.Int, method string, args ...interface{}) (uint64, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return 0, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereumCallMsg(from, c.address, value, input)
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas %s: %w", method, err)
	}
	return gas, nil
}

func (c *Client) BuildTx(ctx context.Context, from common.Address, value *big.Int, nonce uint64, gasPrice *big.Int, gasLimit uint64, method string, args ...interface{}) (*types.Transaction, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	if gasLimit == 0 {
		gasLimit, err = c.EstimateGas(ctx, from, value, method, args...)
		if err != nil {
			return nil, err
		}
		// Headroom over the estimate: a reverted estimate is a hard
		// failure the caller surfaces, but a tight estimate against a
		// contract whose gas usage is state-dependent (e.g. a flip
		// `tend` over a large bid list) can underflow by a few percent
		// between estimation and inclusion.
		gasLimit = gasLimit * 12 / 10
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	return tx, nil
}

func (c *Client) SignAndSend(ctx context.Context, tx *types.Transaction, key *ecdsa.PrivateKey, chainID *big.Int) (common.Hash, error) {
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	logger.Info("submitted transaction", "hash", signed.Hash().Hex(), "nonce", signed.Nonce(), "gasPrice", signed.GasPrice())
	return signed.Hash(), nil
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return price, nil
}

func (c *Client) PendingNonce(ctx context.Context, from common.Address) (uint64, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w", err)
	}
	return nonce, nil
}

func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*ktypes.Receipt, error) {
	r, err := c.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err // may be ethereum.NotFound; caller distinguishes via errors.Is
	}
	out := &ktypes.Receipt{
		TxHash:            r.TxHash,
		BlockNumber:       r.BlockNumber.Uint64(),
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
	}
	for _, l := range r.Logs {
		out.Logs = append(out.Logs, ktypes.Log{Address: l.Address, Topics: l.Topics, Data: l.Data})
	}
	return out, nil
}

// DeriveAddress recovers the Ethereum address for a private key; the
// Transaction Manager uses it as the sending address of its signer.
func DeriveAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
