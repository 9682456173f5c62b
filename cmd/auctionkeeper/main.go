// Command auctionkeeper runs one auction-keeper process: it watches a
// single Maker-style auction house (flip, flap, flop, or clip) plus,
// for flip/clip, the ilk's vault safety, and bids on behalf of one
// signing account under the direction of an external pricing model.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	auctionkeeper "auctionkeeper"
	"auctionkeeper/configs"
	"auctionkeeper/pkg/contractclient"
	"auctionkeeper/pkg/gasstrategy"
	"auctionkeeper/pkg/model"
	"auctionkeeper/pkg/rebalance"
	"auctionkeeper/pkg/registry"
	"auctionkeeper/pkg/strategy"
	"auctionkeeper/pkg/txlistener"
	"auctionkeeper/pkg/txmanager"
	ktypes "auctionkeeper/pkg/types"
	"auctionkeeper/pkg/util"
	"auctionkeeper/pkg/vault"
)

var logger = gethlog.New("module", "main")

// exit codes per SPEC §6.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitNodeError     = 2
	exitContractError = 3
)

func main() {
	app := &cli.App{
		Name:  "auctionkeeper",
		Usage: "bid in Maker-style auctions on behalf of one signing account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true, Usage: "flip|flap|flop|clip"},
			&cli.StringFlag{Name: "eth-from", Required: true},
			&cli.StringFlag{Name: "model", Required: true, Usage: "pricing-model executable path"},
			&cli.StringFlag{Name: "ilk", Usage: "required for flip/clip"},
			&cli.StringFlag{Name: "config", Value: "configs/config.yml"},
			&cli.StringFlag{Name: "rpc-url", EnvVars: []string{"ETH_RPC_URL"}},
			&cli.StringFlag{Name: "key-file", EnvVars: []string{"ETH_KEY_FILE"}},
			&cli.StringFlag{Name: "password-file", EnvVars: []string{"ETH_PASSWORD_FILE"}},
			&cli.StringFlag{Name: "env-file", Value: ".env"},

			&cli.Int64Flag{Name: "gas-reservation", Value: 2_000_000_000, Usage: "base gas price, wei"},
			&cli.Int64Flag{Name: "gas-maximum", Value: 500_000_000_000, Usage: "ceiling gas price, wei"},
			&cli.Float64Flag{Name: "gas-reactive-multiplier", Value: 1.125},
			&cli.DurationFlag{Name: "gas-update-interval", Value: 60 * time.Second},
			&cli.IntFlag{Name: "max-restarts", Value: 5},

			&cli.StringFlag{Name: "vat-dai-target", Value: "all", Usage: "\"all\" or a decimal DAI amount"},
			&cli.IntFlag{Name: "return-gem-interval", Value: 300},
			&cli.BoolFlag{Name: "keep-dai-in-vat-on-exit"},
			&cli.BoolFlag{Name: "keep-gem-in-vat-on-exit"},

			&cli.IntFlag{Name: "max-auctions", Value: 100, Usage: "bound on concurrent model status dispatches per scan"},
			&cli.IntFlag{Name: "bid-check-interval", Value: 2, Usage: "seconds between micro-ticks"},
			&cli.DurationFlag{Name: "auction-tau", Value: 6 * time.Hour, Usage: "per-bid tic expiry the keeper assumes when deciding to tick"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Crit("fatal startup error", "err", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitErr tags a returned error with the §6 exit code it should
// produce, so Action can return plain errors and main() still exits
// correctly without a type switch sprawling through run().
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if ee, ok := err.(*exitErr); ok {
		return ee.code
	}
	return exitConfigError
}

func configError(err error) error   { return &exitErr{code: exitConfigError, err: err} }
func nodeError(err error) error     { return &exitErr{code: exitNodeError, err: err} }
func contractError(err error) error { return &exitErr{code: exitContractError, err: err} }

func run(c *cli.Context) error {
	if err := configs.LoadDotEnv(c.String("env-file")); err != nil {
		return configError(fmt.Errorf("load .env: %w", err))
	}

	kind, ok := ktypes.ParseKind(c.String("type"))
	if !ok {
		return configError(fmt.Errorf("unknown --type %q", c.String("type")))
	}

	flags := configs.Flags{
		Kind:           kind,
		Ilk:            c.String("ilk"),
		RPCURL:         c.String("rpc-url"),
		KeyFile:        c.String("key-file"),
		EthFrom:        c.String("eth-from"),
		GasBase:        c.Int64("gas-reservation"),
		GasCoefficient: c.Float64("gas-reactive-multiplier"),
		GasStepSeconds: int(c.Duration("gas-update-interval").Seconds()),
		GasMax:         c.Int64("gas-maximum"),
		ModelCommand:   c.String("model"),
		MaxRestarts:    c.Int("max-restarts"),
	}
	if (kind == ktypes.Flip || kind == ktypes.Clip) && flags.Ilk == "" {
		return configError(fmt.Errorf("--ilk is required for --type %s", kind))
	}
	if err := flags.Validate(); err != nil {
		return configError(err)
	}

	config, err := configs.LoadConfig(c.String("config"))
	if err != nil {
		return configError(err)
	}
	if flags.RPCURL != "" {
		config.RPC = flags.RPCURL
	}
	if config.RPC == "" {
		return configError(fmt.Errorf("no RPC endpoint: set --rpc-url, $ETH_RPC_URL, or configs.rpc"))
	}

	key, err := loadSigningKey(flags.KeyFile, c.String("password-file"))
	if err != nil {
		return configError(fmt.Errorf("unlock signing key: %w", err))
	}
	from := common.HexToAddress(flags.EthFrom)

	ethClient, err := ethclient.Dial(config.RPC)
	if err != nil {
		return nodeError(fmt.Errorf("dial %s: %w", config.RPC, err))
	}
	chainID, err := ethClient.NetworkID(context.Background())
	if err != nil {
		return nodeError(fmt.Errorf("fetch chain id: %w", err))
	}

	clients, err := buildClients(ethClient, config)
	if err != nil {
		return contractError(err)
	}

	auctionClient, ok := clients[flags.Ilk+"."+kind.String()]
	if !ok {
		auctionClient, ok = clients[kind.String()]
	}
	if !ok {
		return contractError(fmt.Errorf("no contract configured for %s auction house", kind))
	}

	gas := gasstrategy.New(gasstrategy.Params{
		Base:        big.NewInt(flags.GasBase),
		Coefficient: flags.GasCoefficient,
		Step:        c.Duration("gas-update-interval"),
		Max:         big.NewInt(flags.GasMax),
	})
	listener := txlistener.NewTxListener(ethClient)
	manager := txmanager.New(key, chainID, gas, listener, c.Duration("gas-update-interval"))
	for address, client := range clients {
		_ = address
		manager.RegisterClient(client.ContractAddress(), client)
	}

	var reservoir *rebalance.Reservoir
	var balanceSource auctionkeeper.BalanceSource
	var regReservoir registry.Reservoir = rebalance.UnboundedReservoir{}
	if vatClient, ok := clients["vat"]; ok {
		balanceSource = contractclient.NewDaiRebalanceAdapter(vatClient, nil, nil, nil, from)
		reservoir = rebalance.NewReservoir(ktypes.Rad{})
		regReservoir = reservoir
	}

	auctionSource := contractclient.NewAuctionAdapter(auctionClient, kind, from)
	reg := registry.New(auctionSource, regReservoir, manager.Bind(auctionClient.ContractAddress()), from, c.Int("max-auctions"))
	strat, err := strategy.For(kind)
	if err != nil {
		return configError(err)
	}
	reg.RegisterStrategy(kind, strat)

	var vaultScanner *vault.Scanner
	switch {
	case flags.Ilk != "":
		// Flip/clip keepers watch one ilk's urns for bite/bark; they
		// carry no systemwide flap/flop rights.
		vatClient, vok := clients["vat"]
		spotterClient, sok := clients["spotter"]
		vowClient, wok := clients["vow"]
		if vok && sok && wok {
			var cat, dog contractclient.ContractClient
			if c, ok := clients["cat"]; ok {
				cat = c
			}
			if d, ok := clients["dog"]; ok {
				dog = d
			}
			if cat != nil && dog != nil {
				return configError(fmt.Errorf("both cat and dog wired for ilk %s; a keeper owns exactly one", flags.Ilk))
			}
			vaultSource := contractclient.NewVaultAdapter(vatClient, spotterClient, vowClient, cat, dog)
			vaultScanner, err = vault.New(vault.Config{
				Ilk:     flags.Ilk,
				CanBite: kind == ktypes.Flip,
				CanBark: kind == ktypes.Clip,
			}, vaultSource, manager.Bind(vowClient.ContractAddress()))
			if err != nil {
				return configError(err)
			}
		}
	case kind == ktypes.Flap || kind == ktypes.Flop:
		// Flap/flop keepers carry no ilk by design; they only watch the
		// vow's systemwide surplus/debt queues and kick the matching
		// auction type. VowState still reads vat.dai(vow) for the
		// surplus figure, so a vat client is required even here.
		vatClient, vok := clients["vat"]
		vowClient, wok := clients["vow"]
		if vok && wok {
			vaultSource := contractclient.NewVaultAdapter(vatClient, nil, vowClient, nil, nil)
			vaultScanner, err = vault.New(vault.Config{
				CanFlap: kind == ktypes.Flap,
				CanFlop: kind == ktypes.Flop,
			}, vaultSource, manager.Bind(vowClient.ContractAddress()))
			if err != nil {
				return configError(err)
			}
		}
	}

	var rebalancer *rebalance.Rebalancer
	if vatClient, ok := clients["vat"]; ok {
		target := rebalance.AllTarget()
		if s := c.String("vat-dai-target"); s != "all" {
			amount, err := ktypes.ParseRad(s)
			if err != nil {
				return configError(fmt.Errorf("--vat-dai-target %q: %w", s, err))
			}
			target = rebalance.FixedTarget(amount)
		}
		if daiClient, ok := clients["dai"]; ok {
			if daiJoin, ok := clients["daijoin"]; ok {
				rebalancer = rebalance.New(rebalance.Config{
					Target:            target,
					ReturnGemInterval: time.Duration(c.Int("return-gem-interval")) * time.Second,
					ExitDaiOnShutdown: !c.Bool("keep-dai-in-vat-on-exit"),
					ExitGemOnShutdown: !c.Bool("keep-gem-in-vat-on-exit"),
				}, contractclient.NewDaiRebalanceAdapter(vatClient, daiClient, daiJoin, manager.Bind(daiJoin.ContractAddress()), from))
			}
		}
	}
	if rebalancer != nil && reservoir != nil {
		reg.RegisterTopper(rebalance.ReservoirTopper{Rebalancer: rebalancer, Reservoir: reservoir})
	}

	models := &supervisedModels{command: flags.ModelCommand, maxRestarts: flags.MaxRestarts}

	keeper := auctionkeeper.New(auctionkeeper.Config{
		Ilks:              ilksOf(flags.Ilk),
		MicroTickInterval: time.Duration(c.Int("bid-check-interval")) * time.Second,
		ShutdownGrace:     30 * time.Second,
	}, ethClient, reg, vaultScanner, rebalancer, models, reservoir, balanceSource, c.Duration("auction-tau"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("auction keeper starting", "type", kind.String(), "ilk", flags.Ilk, "from", from.Hex())
	if err := keeper.Run(ctx); err != nil {
		return nodeError(err)
	}
	logger.Info("auction keeper terminated cleanly")
	return nil
}

func ilksOf(ilk string) []string {
	if ilk == "" {
		return nil
	}
	return []string{ilk}
}

// loadSigningKey unlocks a JSON keystore file with the password read
// from passwordFile, the standard go-ethereum account-unlock idiom.
func loadSigningKey(keyFile, passwordFile string) (*ecdsa.PrivateKey, error) {
	if keyFile == "" {
		return nil, fmt.Errorf("no key file: set --key-file or $ETH_KEY_FILE")
	}
	keyJSON, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	password := ""
	if passwordFile != "" {
		raw, err := os.ReadFile(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("read password file: %w", err)
		}
		password = string(raw)
	}
	key, err := keystore.DecryptKey(keyJSON, trimNewline(password))
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// buildClients loads one contractclient.Client per entry in the YAML
// contract map, keyed by the name the operator chose for it (e.g.
// "flip", "vat", "spotter", "vow", "cat", "dog", "dai", "daijoin").
func buildClients(backend contractclient.Backend, config *configs.Config) (map[string]*contractclient.Client, error) {
	clients := map[string]*contractclient.Client{}
	for name, data := range config.Contracts {
		abiObj, err := loadABI(data.ABI, data.Format)
		if err != nil {
			return nil, fmt.Errorf("load ABI for %s: %w", name, err)
		}
		clients[name] = contractclient.NewClient(backend, common.HexToAddress(data.Address), abiObj)
	}
	return clients, nil
}

// loadABI dispatches to the bare-ABI or Hardhat-artifact reader
// depending on the contract's configured format (default: bare ABI).
func loadABI(path, format string) (abi.ABI, error) {
	switch format {
	case "", "abi":
		return util.LoadABI(path)
	case "hardhat":
		return util.LoadABIFromHardhatArtifact(path)
	default:
		return abi.ABI{}, fmt.Errorf("unknown abi format %q", format)
	}
}

// supervisedModels spawns one restart-supervised pricing-model process
// per discovered auction id, passing --id so a single model executable
// can distinguish which auction it is quoting for.
type supervisedModels struct {
	command     string
	maxRestarts int
}

func (m *supervisedModels) Spawn(ctx context.Context, id *big.Int) (registry.ModelHandle, error) {
	supervisor := model.NewSupervisor(m.command, []string{"--id", id.String()}, m.maxRestarts)
	if _, err := supervisor.Start(ctx); err != nil {
		return nil, fmt.Errorf("spawn model for auction %s: %w", id, err)
	}
	return model.NewHandle(ctx, supervisor), nil
}
