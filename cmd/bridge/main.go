package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/omni/poa-bridge/internal/audit"
	"github.com/omni/poa-bridge/internal/balance"
	"github.com/omni/poa-bridge/internal/bridgeconfig"
	"github.com/omni/poa-bridge/internal/chainmeta"
	"github.com/omni/poa-bridge/internal/contracts"
	"github.com/omni/poa-bridge/internal/gasprice"
	"github.com/omni/poa-bridge/internal/logstream"
	"github.com/omni/poa-bridge/internal/nonce"
	"github.com/omni/poa-bridge/internal/relay"
	"github.com/omni/poa-bridge/internal/rpc"
	"github.com/omni/poa-bridge/internal/rpcerror"
	"github.com/omni/poa-bridge/internal/signerkeystore"
	"github.com/omni/poa-bridge/internal/store"
	"github.com/omni/poa-bridge/internal/supervisor"
)

// Sentinel wrappers for the startup phases that don't carry a dedicated
// exit code of their own in spec §6 — cmd/bridge still needs to tell a
// config typo (exit 2) from a dial failure (exit 10) from a keystore
// problem (exit 1).
var (
	errConfig   = errors.New("bridge: config error")
	errKeystore = errors.New("bridge: keystore error")
	errDial     = errors.New("bridge: cannot connect")
)

var (
	configFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "path to the bridge TOML configuration file",
		Required: true,
	}
	databaseFlag = &cli.StringFlag{
		Name:     "database",
		Usage:    "path to the cursor database file",
		Required: true,
	}
	auditDBFlag = &cli.StringFlag{
		Name:  "audit-db",
		Usage: "optional path to a sqlite relay audit ledger (disabled if empty)",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity: 0=crit 1=error 2=warn 3=info 4=debug 5=trace",
		Value: 3,
	}
	allowInsecureRPCFlag = &cli.BoolFlag{
		Name:  "allow-insecure-rpc",
		Usage: "permit non-TLS rpc_host endpoints (spec §6 override flag)",
	}
)

func main() {
	app := &cli.App{
		Name:  "bridge",
		Usage: "two-chain bridge relay daemon",
		Flags: []cli.Flag{configFlag, databaseFlag, auditDBFlag, verbosityFlag, allowInsecureRPCFlag},
		Action: run,
	}

	err := app.Run(os.Args)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errConfig):
		return 2
	case errors.Is(err, errKeystore):
		return 1
	case errors.Is(err, errDial):
		return 10
	default:
		return rpcerror.ExitCode(err)
	}
}

// verbosityLevel maps the spec's 0=crit..5=trace --verbosity scale onto
// go-ethereum's slog-based Level constants.
func verbosityLevel(v int) log.Level {
	switch {
	case v <= 0:
		return log.LevelCrit
	case v == 1:
		return log.LevelError
	case v == 2:
		return log.LevelWarn
	case v == 3:
		return log.LevelInfo
	case v == 4:
		return log.LevelDebug
	default:
		return log.LevelTrace
	}
}

func run(c *cli.Context) error {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, verbosityLevel(c.Int(verbosityFlag.Name)), true)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := bridgeconfig.Load(c.String(configFlag.Name), c.Bool(allowInsecureRPCFlag.Name))
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	ks := signerkeystore.Open(cfg.Keystore)
	homeAccount, err := ks.Unlock(cfg.Home.Account, cfg.Home.Password)
	if err != nil {
		return fmt.Errorf("%w: unlock home account: %w", errKeystore, err)
	}
	foreignAccount, err := ks.Unlock(cfg.Foreign.Account, cfg.Foreign.Password)
	if err != nil {
		return fmt.Errorf("%w: unlock foreign account: %w", errKeystore, err)
	}
	homeSigner := signerkeystore.NewAccountSigner(ks, homeAccount)
	foreignSigner := signerkeystore.NewAccountSigner(ks, foreignAccount)

	homeClient, err := rpc.Dial(ctx, cfg.Home.Endpoint(), cfg.Home.RequestTimeout)
	if err != nil {
		return fmt.Errorf("%w: home: %w", errDial, err)
	}
	defer homeClient.Close()
	foreignClient, err := rpc.Dial(ctx, cfg.Foreign.Endpoint(), cfg.Foreign.RequestTimeout)
	if err != nil {
		return fmt.Errorf("%w: foreign: %w", errDial, err)
	}
	defer foreignClient.Close()

	homeChainID, err := chainmeta.ChainID(ctx, homeClient.Raw())
	if err != nil {
		return fmt.Errorf("%w: home chain id: %w", errDial, err)
	}
	foreignChainID, err := chainmeta.ChainID(ctx, foreignClient.Raw())
	if err != nil {
		return fmt.Errorf("%w: foreign chain id: %w", errDial, err)
	}

	homeContract, err := contracts.NewHome()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	foreignContract, err := contracts.NewForeign()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	db, err := store.LoadOrSeed(c.String(databaseFlag.Name), cfg.Home.ContractAddress, cfg.Foreign.ContractAddress, cfg.Home.DeployBlock, cfg.Foreign.DeployBlock)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	ledger, err := audit.Open(c.String(auditDBFlag.Name))
	if err != nil {
		return fmt.Errorf("%w: audit ledger: %w", errConfig, err)
	}
	defer ledger.Close()

	homeNonce, err := homeClient.PendingNonceAt(ctx, homeAccount.Address)
	if err != nil {
		return fmt.Errorf("%w: home nonce: %w", errDial, err)
	}
	foreignNonce, err := foreignClient.PendingNonceAt(ctx, foreignAccount.Address)
	if err != nil {
		return fmt.Errorf("%w: foreign nonce: %w", errDial, err)
	}
	homeNonceCell := nonce.NewCell(homeNonce)
	foreignNonceCell := nonce.NewCell(foreignNonce)

	homeBalanceCell := balance.NewCell()
	foreignBalanceCell := balance.NewCell()
	homeBalanceMonitor := balance.NewMonitor(homeBalanceCell, accountClient{homeClient, homeAccount.Address}, "home")
	foreignBalanceMonitor := balance.NewMonitor(foreignBalanceCell, accountClient{foreignClient, foreignAccount.Address}, "foreign")
	homeBalanceMonitor.Tick(ctx)
	foreignBalanceMonitor.Tick(ctx)
	go homeBalanceMonitor.Run(ctx, cfg.Home.PollInterval)
	go foreignBalanceMonitor.Run(ctx, cfg.Foreign.PollInterval)

	homeGasCell := gasprice.NewCell(cfg.Home.DefaultGasPrice)
	foreignGasCell := gasprice.NewCell(cfg.Foreign.DefaultGasPrice)
	homeGasPrice := gasprice.NewStream(
		homeGasCell,
		gasprice.HTTPRetriever{URL: cfg.Home.GasPriceOracleURL, Client: &http.Client{Timeout: cfg.Home.GasPriceTimeout}},
		cfg.Home.GasPriceSpeed, cfg.Home.DefaultGasPrice)
	foreignGasPrice := gasprice.NewStream(
		foreignGasCell,
		gasprice.HTTPRetriever{URL: cfg.Foreign.GasPriceOracleURL, Client: &http.Client{Timeout: cfg.Foreign.GasPriceTimeout}},
		cfg.Foreign.GasPriceSpeed, cfg.Foreign.DefaultGasPrice)

	depositTopics := [][]common.Hash{{homeContract.DepositTopic()}}
	withdrawIntentTopics := [][]common.Hash{{foreignContract.DepositTopic()}}
	collectedSignaturesTopics := [][]common.Hash{{foreignContract.CollectedSignaturesTopic()}}

	depositStreamForRelay := logstream.New(homeClient, homeClient, cfg.Home.ContractAddress, depositTopics, cfg.Home.RequiredConfirmations, db.CheckedDepositRelay)
	depositStreamForConfirm := logstream.New(homeClient, homeClient, cfg.Home.ContractAddress, depositTopics, cfg.Home.RequiredConfirmations, db.CheckedDepositConfirm)
	withdrawIntentStream := logstream.New(foreignClient, foreignClient, cfg.Foreign.ContractAddress, withdrawIntentTopics, cfg.Foreign.RequiredConfirmations, db.CheckedWithdrawConfirm)
	collectedSignaturesStream := logstream.New(foreignClient, foreignClient, cfg.Foreign.ContractAddress, collectedSignaturesTopics, cfg.Foreign.RequiredConfirmations, db.CheckedWithdrawRelay)

	depositRelay := &relay.DepositRelay{
		Stream:          depositStreamForRelay,
		Home:            homeContract,
		Foreign:         foreignContract,
		ForeignBalance:  foreignBalanceCell,
		ForeignGasPrice: foreignGasCell,
		NonceCell:       foreignNonceCell,
		Noncer:          accountClient{foreignClient, foreignAccount.Address},
		Sender:          foreignClient,
		Signer:          foreignSigner,
		ChainID:         foreignChainID,
		ContractAddr:    cfg.Foreign.ContractAddress,
		Gas:             cfg.Transactions.DepositRelay.Gas,
		Concurrency:     cfg.Transactions.DepositRelay.Concurrency,
	}

	depositConfirm := &relay.Confirm{
		Stream:             depositStreamForConfirm,
		Source:             homeContract,
		Destination:        foreignContract,
		DestinationBalance: foreignBalanceCell,
		DestinationGas:     foreignGasCell,
		NonceCell:          foreignNonceCell,
		Noncer:             accountClient{foreignClient, foreignAccount.Address},
		Sender:             foreignClient,
		Signer:             foreignSigner,
		HashSigner:         ks,
		SigningAccount:     foreignAccount.Address,
		ChainID:            foreignChainID,
		ContractAddr:       cfg.Foreign.ContractAddress,
		Gas:                cfg.Transactions.DepositConfirm.Gas,
		Concurrency:        cfg.Transactions.DepositConfirm.Concurrency,
	}

	withdrawConfirm := &relay.Confirm{
		Stream:             withdrawIntentStream,
		Source:             foreignContract,
		Destination:        homeContract,
		DestinationBalance: homeBalanceCell,
		DestinationGas:     homeGasCell,
		NonceCell:          homeNonceCell,
		Noncer:             accountClient{homeClient, homeAccount.Address},
		Sender:             homeClient,
		Signer:             homeSigner,
		HashSigner:         ks,
		SigningAccount:     homeAccount.Address,
		ChainID:            homeChainID,
		ContractAddr:       cfg.Home.ContractAddress,
		Gas:                cfg.Transactions.WithdrawConfirm.Gas,
		Concurrency:        cfg.Transactions.WithdrawConfirm.Concurrency,
	}

	withdrawRelay := &relay.WithdrawRelay{
		Stream:             collectedSignaturesStream,
		Source:             foreignContract,
		SourceContractAddr: cfg.Foreign.ContractAddress,
		Reader:             foreignClient,
		Destination:        homeContract,
		MyAddress:          foreignAccount.Address,
		RequiredSignatures: cfg.Authorities.RequiredSignatures,
		DestinationBalance: homeBalanceCell,
		DestinationGas:     homeGasCell,
		NonceCell:          homeNonceCell,
		Noncer:             accountClient{homeClient, homeAccount.Address},
		Sender:             homeClient,
		Signer:             homeSigner,
		ChainID:            homeChainID,
		ContractAddr:       cfg.Home.ContractAddress,
		Gas:                cfg.Transactions.WithdrawRelay.Gas,
		Concurrency:        cfg.Transactions.WithdrawRelay.Concurrency,
	}

	sup := &supervisor.Supervisor{
		Backend:               supervisor.FileBackend{Path: c.String(databaseFlag.Name)},
		DB:                    db,
		Audit:                 ledger,
		HomeBalance:           homeBalanceCell,
		ForeignBalance:        foreignBalanceCell,
		HomeBalanceMonitor:    homeBalanceMonitor,
		ForeignBalanceMonitor: foreignBalanceMonitor,
		HomeGasPrice:          homeGasPrice,
		ForeignGasPrice:       foreignGasPrice,
		DepositRelay:          depositRelay,
		DepositConfirm:        depositConfirm,
		WithdrawConfirm:       withdrawConfirm,
		WithdrawRelay:         withdrawRelay,
		PollInterval:          minDuration(cfg.Home.PollInterval, cfg.Foreign.PollInterval),
		Now:                   func() int64 { return time.Now().Unix() },
	}

	return sup.Run(ctx)
}

// accountClient binds one authority account to an *rpc.Client, satisfying
// both balance.Fetcher and nonce.NodeNoncer — the two RPC reads the spec
// requires to be scoped to a single account (spec §4.2, §4.4).
type accountClient struct {
	client  *rpc.Client
	account common.Address
}

func (a accountClient) PendingBalanceAt(ctx context.Context) (*big.Int, error) {
	return a.client.PendingBalanceAt(ctx, a.account)
}

func (a accountClient) PendingNonceAt(ctx context.Context) (uint64, error) {
	return a.client.PendingNonceAt(ctx, a.account)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
