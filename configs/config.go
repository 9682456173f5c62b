// Package configs loads the keeper's YAML contract map and merges it
// with CLI flags and environment variables into the settings the rest
// of the program consumes.
package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"auctionkeeper/pkg/types"
)

// Config is the parsed form of the YAML contract map, one entry per
// on-chain contract the keeper talks to (the auction house itself plus
// Vat/Spotter/Vow/GemJoin/DaiJoin when configured).
type Config struct {
	RPC       string                            `yaml:"rpc"`
	Contracts map[string]ContractYAMLData       `yaml:"contracts"`
}

// ContractYAMLData names the ABI artifact backing one contract entry.
// Format selects how ABI is parsed: "abi" (default) for a bare solc ABI
// JSON array, or "hardhat" for a Hardhat compilation artifact with the
// ABI nested under its own "abi" key.
type ContractYAMLData struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
	Format  string `yaml:"format"`
}

// LoadConfig reads and parses the YAML contract map at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("configs: parse %s: %w", path, err)
	}
	return &config, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process
// environment, used for the endpoint and signing key material
// (ETH_RPC_URL, ETH_KEY_FILE, ETH_PASSWORD_FILE) the CLI flags fall
// back to. A missing file is not an error — the
// keeper may get the same variables from the real environment.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Flags is the fully-resolved set of operator settings, merged from
// CLI flags (highest precedence), the YAML contract map, and the
// environment. cmd/auctionkeeper assembles this before constructing
// the keeper.
type Flags struct {
	Kind   types.Kind
	Ilk    string
	RPCURL string

	KeyFile string
	EthFrom string

	GasBase        int64
	GasCoefficient float64
	GasStepSeconds int
	GasMax         int64

	ModelCommand string
	ModelArgs    []string
	MaxRestarts  int

	RebalanceTargetAll   bool
	RebalanceTargetFixed string // decimal string; empty means use RebalanceTargetAll
	ReturnGemInterval    time.Duration
	ExitDaiOnShutdown    bool
	ExitGemOnShutdown    bool

	MaxConcurrentAuctions int
	MicroTickInterval      time.Duration
	SubmissionStep         time.Duration
}

// Validate enforces the flag-level startup invariants: the auction kind
// must be recognized, a model command must be set, and max-restarts
// must not be negative. The RPC endpoint is not checked here because it
// may still come from the YAML config after the flags are parsed.
func (f Flags) Validate() error {
	if f.Kind.String() == "unknown" {
		return fmt.Errorf("configs: unknown auction kind")
	}
	if f.ModelCommand == "" {
		return fmt.Errorf("configs: --model is required")
	}
	if f.MaxRestarts < 0 {
		return fmt.Errorf("configs: --max-restarts must be >= 0")
	}
	return nil
}
