// Package txlistener polls a node for a transaction's mined receipt,
// the building block the Transaction Manager (pkg/txmanager) and the
// Auction Registry's submit step wait on before treating a bid as
// confirmed.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	ktypes "auctionkeeper/pkg/types"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultTimeout      = 5 * time.Minute
)

// Backend is the subset of ethclient.Client a TxListener needs.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ErrTimeout is returned when a transaction doesn't mine within the
// configured timeout.
var ErrTimeout = errors.New("txlistener: timed out waiting for transaction")

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets how often the listener re-checks for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction will wait before
// returning ErrTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// TxListener waits for transactions to be mined by polling
// eth_getTransactionReceipt at a fixed interval.
type TxListener struct {
	backend      Backend
	pollInterval time.Duration
	timeout      time.Duration
}

// NewTxListener wires a backend with defaults of a 3s poll interval and
// a 5 minute timeout, overridable via options.
func NewTxListener(backend Backend, opts ...Option) *TxListener {
	l := &TxListener{
		backend:      backend,
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until txHash is mined, the listener's
// timeout elapses, or ctx is cancelled.
func (l *TxListener) WaitForTransaction(ctx context.Context, txHash common.Hash) (*ktypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return convert(receipt), nil
		case errors.Is(err, ethereum.NotFound):
			// not yet mined, keep polling
		default:
			return nil, fmt.Errorf("txlistener: fetch receipt %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func convert(r *types.Receipt) *ktypes.Receipt {
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
	return out
}
