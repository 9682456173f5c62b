// Package txmanager is the Transaction Manager: it owns the single
// in-flight submission per logical key, replacing it in place via
// nonce reuse as the gas strategy escalates, and resolving to the
// first transaction sharing that nonce that mines.
package txmanager

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"

	"auctionkeeper/pkg/contractclient"
	"auctionkeeper/pkg/gasstrategy"
	ktypes "auctionkeeper/pkg/types"
)

var logger = gethlog.New("module", "txmanager")

// ErrCancelled is returned to a caller whose submission was replaced by
// an explicit Cancel.
var ErrCancelled = errors.New("txmanager: submission cancelled")

// ReplacementBumpBasisPoints is the minimum gas increase a node
// requires to accept a same-nonce replacement, expressed in basis
// points (1250 = 12.5%) so the true fractional bump survives integer
// arithmetic.
const ReplacementBumpBasisPoints = 1250

// BuildFunc encodes a contract call given the gas price the manager has
// decided to offer; it is re-invoked on every replacement attempt.
type BuildFunc func(gasPrice *big.Int) (ktypes.Call, error)

// pending tracks one in-flight logical submission.
type pending struct {
	mu          sync.Mutex
	nonce       uint64
	gasPrice    *big.Int
	txHash      common.Hash
	cancelled   bool
	submittedAt time.Time
}

// Manager is the production Transaction Manager for one signing
// account against one contract client set.
type Manager struct {
	clients map[common.Address]contractclient.ContractClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	gas     *gasstrategy.Strategy
	waiter  ReceiptWaiter
	step    time.Duration

	mu      sync.Mutex
	pendingByKey map[string]*pending
}

// ReceiptWaiter is the narrow pkg/txlistener dependency.
type ReceiptWaiter interface {
	WaitForTransaction(ctx context.Context, txHash common.Hash) (*ktypes.Receipt, error)
}

// New builds a Manager for signer key against chainID, escalating gas
// per gas and re-evaluating every step while a submission is pending.
func New(key *ecdsa.PrivateKey, chainID *big.Int, gas *gasstrategy.Strategy, waiter ReceiptWaiter, step time.Duration) *Manager {
	return &Manager{
		key:          key,
		from:         contractclient.DeriveAddress(key),
		chainID:      chainID,
		gas:          gas,
		waiter:       waiter,
		step:         step,
		clients:      map[common.Address]contractclient.ContractClient{},
		pendingByKey: map[string]*pending{},
	}
}

// RegisterClient wires the ContractClient used to build/sign/send
// transactions against address.
func (m *Manager) RegisterClient(address common.Address, client contractclient.ContractClient) {
	m.clients[address] = client
}

// Submit ensures exactly one in-flight transaction exists for key,
// built by build at the gas price the strategy currently offers
// (honoring gasPriceHint as a model override). If a submission for key
// is already pending, Submit only replaces it when the new gas price
// clears the replacement threshold.
func (m *Manager) Submit(ctx context.Context, key string, address common.Address, build BuildFunc, gasPriceHint *big.Int) (*ktypes.Receipt, error) {
	client, ok := m.clients[address]
	if !ok {
		return nil, fmt.Errorf("txmanager: no client registered for %s", address.Hex())
	}

	m.mu.Lock()
	p, exists := m.pendingByKey[key]
	if !exists {
		p = &pending{}
		m.pendingByKey[key] = p
	}
	m.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelled {
		return nil, ErrCancelled
	}

	var elapsed time.Duration
	if !p.submittedAt.IsZero() {
		elapsed = time.Since(p.submittedAt)
	}
	candidateGas := m.gas.Resolve(elapsed, gasPriceHint)
	if p.txHash != (common.Hash{}) && !gasstrategy.ExceedsReplacementThreshold(p.gasPrice, candidateGas, ReplacementBumpBasisPoints) {
		// Existing submission still satisfies the offer; wait on it
		// rather than resubmit.
		return m.wait(ctx, key, p, client)
	}

	call, err := build(candidateGas)
	if err != nil {
		return nil, fmt.Errorf("txmanager: build tx: %w", err)
	}

	nonce := p.nonce
	if p.txHash == (common.Hash{}) {
		nonce, err = client.PendingNonce(ctx, m.from)
		if err != nil {
			return nil, classify(err)
		}
		p.nonce = nonce
	}

	hash, err := m.signAndSend(ctx, client, call, nonce, candidateGas)
	if err != nil {
		if isUnderpriced(err) {
			// Treat as a replacement trigger: bump the rejected price by
			// the replacement threshold and retry once more.
			bumped := gasstrategy.Bump(candidateGas, ReplacementBumpBasisPoints)
			hash, err = m.signAndSend(ctx, client, call, nonce, bumped)
			candidateGas = bumped
		}
		if err != nil {
			return nil, classify(err)
		}
	}

	if p.txHash == (common.Hash{}) {
		p.submittedAt = time.Now()
	}
	p.txHash = hash
	p.gasPrice = candidateGas
	logger.Info("submitted bid transaction", "key", key, "hash", hash.Hex(), "gasPrice", candidateGas, "nonce", nonce)

	return m.wait(ctx, key, p, client)
}

func (m *Manager) signAndSend(ctx context.Context, client contractclient.ContractClient, call ktypes.Call, nonce uint64, gasPrice *big.Int) (common.Hash, error) {
	var hash common.Hash
	var gasLimit uint64
	if call.GasLimit != nil {
		gasLimit = call.GasLimit.Uint64()
	}
	op := func() error {
		tx, err := client.BuildTx(ctx, m.from, call.Value, nonce, gasPrice, gasLimit, call.Method, call.Args...)
		if err != nil {
			return backoff.Permanent(err)
		}
		h, err := client.SignAndSend(ctx, tx, m.key, m.chainID)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		hash = h
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(op, policy)
	return hash, err
}

func (m *Manager) wait(ctx context.Context, key string, p *pending, client contractclient.ContractClient) (*ktypes.Receipt, error) {
	receipt, err := m.waiter.WaitForTransaction(ctx, p.txHash)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	delete(m.pendingByKey, key)
	m.mu.Unlock()

	if !receipt.Success() {
		return receipt, fmt.Errorf("txmanager: %s reverted in tx %s", key, p.txHash.Hex())
	}
	return receipt, nil
}

// Cancel submits a zero-value self-transfer at the pending key's nonce
// with bumped gas, and marks the pending future ErrCancelled.
func (m *Manager) Cancel(ctx context.Context, key string) error {
	m.mu.Lock()
	p, ok := m.pendingByKey[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.txHash == (common.Hash{}) {
		return nil
	}

	bumped := gasstrategy.Bump(p.gasPrice, ReplacementBumpBasisPoints)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    p.nonce,
		To:       &m.from,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: bumped,
	})
	for _, client := range m.clients {
		if _, err := client.SignAndSend(ctx, tx, m.key, m.chainID); err == nil {
			p.cancelled = true
			m.mu.Lock()
			delete(m.pendingByKey, key)
			m.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("txmanager: cancel %s: no client could send", key)
}

// boundSubmitter adapts a Manager bound to a fixed contract address to
// the narrow (key, build, gasPriceHint) Submitter shape the Auction
// Registry programs against.
type boundSubmitter struct {
	manager *Manager
	address common.Address
}

func (b *boundSubmitter) Submit(ctx context.Context, key string, build func(gasPrice *big.Int) (ktypes.Call, error), gasPriceHint *big.Int) (*ktypes.Receipt, error) {
	return b.manager.Submit(ctx, key, b.address, build, gasPriceHint)
}

// Bind returns a Submitter scoped to address, for registries that only
// ever submit against one contract.
func (m *Manager) Bind(address common.Address) *boundSubmitter {
	return &boundSubmitter{manager: m, address: address}
}

func isUnderpriced(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "underpriced") || strings.Contains(msg, "replacement transaction")
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "temporarily unavailable")
}

// classify annotates a raw send/build error with the failure category
// it falls into, so logs distinguish underpriced/nonce-gap/revert
// without the caller re-parsing the node's error string.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case isUnderpriced(err):
		return fmt.Errorf("txmanager: underpriced: %w", err)
	case strings.Contains(strings.ToLower(err.Error()), "nonce too low"):
		return fmt.Errorf("txmanager: nonce gap: %w", err)
	case strings.Contains(strings.ToLower(err.Error()), "revert"):
		return fmt.Errorf("txmanager: reverted: %w", err)
	default:
		return err
	}
}
