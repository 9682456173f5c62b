// Package util collects small helpers shared by the contract client and
// the keeper's startup path: ABI loading and hex/key material decoding.
package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABI reads a bare ABI JSON array (as published by solc) from path.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return parsed, nil
}

// hardhatArtifact is the subset of a Hardhat compilation artifact the
// keeper needs: the ABI is nested under the "abi" key alongside
// bytecode and source metadata the keeper doesn't use.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a Hardhat artifact JSON file and
// extracts its ABI, the format the reference Vat/Flipper/Clipper/
// Flopper/Flapper/Spotter/Cat/Dog/Vow adapters ship in.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read artifact %s: %w", path, err)
	}
	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi from artifact %s: %w", path, err)
	}
	return parsed, nil
}

// Hex2Bytes strips an optional 0x prefix and decodes the remainder.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	b, _ := hex.DecodeString(s)
	return b
}
