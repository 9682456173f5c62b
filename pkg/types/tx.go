package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxType selects the EIP-2718 envelope the contract client builds;
// Standard is the legacy (gas-price) transaction the keeper uses for
// every auction call.
type TxType int

const (
	Standard TxType = iota
)

// Call is a fully-described, not-yet-submitted contract invocation:
// the target contract, the ABI method name, and its arguments. The
// registry builds it from a Strategy's Bid (or an auction source's
// deal/tick call) and hands it to the Transaction Manager's Submit.
type Call struct {
	Contract common.Address
	Method   string
	Args     []interface{}
	Type     TxType
	GasLimit *big.Int // nil means estimate
	Value    *big.Int // nil means zero
}

// Key returns the Transaction Manager's logical submission identity
// for this call: one in-flight transaction per (contract, method)
// pair is the coarse form; callers that need per-auction granularity
// combine this with the auction id themselves (see pkg/registry).
func (c Call) Key() string {
	return c.Contract.Hex() + ":" + c.Method
}

// Receipt mirrors the subset of an on-chain transaction receipt the
// keeper reasons about. Numeric fields are already parsed into uint64
// and *big.Int.
type Receipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	Status            uint64 // 1 success, 0 reverted
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Logs              []Log
}

// Log is a decoded event log entry.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Success reports whether the receipt indicates the transaction did
// not revert.
func (r *Receipt) Success() bool { return r.Status == 1 }

// GasCost returns GasUsed * EffectiveGasPrice in wei.
func (r *Receipt) GasCost() *big.Int {
	if r.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
