package contractclient

import (
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// callMsg builds a read-only eth_call message; caller may be nil for
// contracts that don't gate reads on msg.sender.
func callMsg(caller *common.Address, to common.Address, input []byte) ethereum.CallMsg {
	msg := ethereum.CallMsg{To: &to, Data: input}
	if caller != nil {
		msg.From = *caller
	}
	return msg
}

// ethereumCallMsg builds an eth_estimateGas message for a value-bearing
// call from a known sender.
func ethereumCallMsg(from, to common.Address, value *big.Int, input []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &to, Value: value, Data: input}
}
