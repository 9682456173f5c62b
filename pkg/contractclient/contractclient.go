// Package contractclient is a thin, ABI-driven facade over a single
// on-chain contract: it is the keeper's only point of contact with the
// node RPC for reads and signed calls. It intentionally does not
// generate Go bindings per contract (Vat, Cat, Dog, Vow, Spotter,
// Flipper, Clipper, Flopper, Flapper are assumed pre-existing,
// out-of-scope collaborators per the spec) — any method on the wired
// ABI can be invoked by name.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	ktypes "auctionkeeper/pkg/types"
)

// Backend is the subset of ethclient.Client the contract client needs;
// kept narrow so tests can fake it without a live node.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NetworkID(ctx context.Context) (*big.Int, error)
}

// ContractClient is the interface the rest of the keeper programs
// against; NewClient builds the only production implementation.
type ContractClient interface {
	ContractAddress() common.Address
	Abi() abi.ABI

	// Call performs a read-only eth_call against method(args...). The
	// caller address may be nil for contracts that don't gate reads.
	Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error)

	// BuildTx ABI-encodes method(args...) into an unsigned transaction
	// skeleton; the Transaction Manager fills in nonce and gas price
	// before signing and sending.
	BuildTx(ctx context.Context, from common.Address, value *big.Int, nonce uint64, gasPrice *big.Int, gasLimit uint64, method string, args ...interface{}) (*types.Transaction, error)

	// SignAndSend signs tx with key and broadcasts it, returning the
	// resulting hash.
	SignAndSend(ctx context.Context, tx *types.Transaction, key *ecdsa.PrivateKey, chainID *big.Int) (common.Hash, error)

	// EstimateGas estimates the gas limit for method(args...).
	EstimateGas(ctx context.Context, from common.Address, value *big.Int, method string, args ...interface{}) (uint64, error)

	// SuggestGasPrice reads the node's current baseline gas price,
	// the C1 "base" input.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// PendingNonce returns the next usable nonce for from.
	PendingNonce(ctx context.Context, from common.Address) (uint64, error)

	// Receipt polls for a mined receipt; a transaction not yet mined
	// yields the node's error (ethereum.NotFound) and a nil receipt.
	Receipt(ctx context.Context, txHash common.Hash) (*ktypes.Receipt, error)
}
