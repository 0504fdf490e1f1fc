// Package bridgeconfig loads and validates the daemon's TOML configuration
// file (spec §3 "Config", §6 "Configuration"), matching the two-stage
// load/validate split of original_source/bridge/src/config.rs.
package bridgeconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/naoina/toml"

	"github.com/omni/poa-bridge/internal/gasprice"
)

const (
	defaultPollInterval           = 1 * time.Second
	defaultConfirmations   uint64 = 12
	defaultRequestTimeout         = 3600 * time.Second
	defaultRPCPort         uint16 = 8545
	defaultGasPriceSpeed          = gasprice.Fast
	defaultGasPriceTimeout        = 10 * time.Second
	defaultGasPriceWei     uint64 = 15_000_000_000
	defaultConcurrentHTTP         = 64
	defaultTxGas           uint64 = 200_000
	defaultTxConcurrency   int64  = 64
)

// Node is one chain's half of the configuration: which account this
// authority signs with, where its bridge contract lives, and how the
// daemon talks to its RPC endpoint.
type Node struct {
	Account                common.Address
	Password               string
	ContractAddress        common.Address
	DeployBlock            uint64
	RPCHost                string
	RPCPort                uint16
	PollInterval           time.Duration
	RequiredConfirmations  uint64
	RequestTimeout         time.Duration
	GasPriceOracleURL      string
	GasPriceSpeed          gasprice.Speed
	GasPriceTimeout        time.Duration
	DefaultGasPrice        uint64
	ConcurrentHTTPRequests uint64
}

// Endpoint builds the ws/http URL the RPC dialer connects to.
func (n Node) Endpoint() string {
	return fmt.Sprintf("%s:%d", n.RPCHost, n.RPCPort)
}

// TxConfig is one operation's gas budget, matching
// original_source/bridge/src/config.rs's TransactionConfig, plus the
// bounded-concurrency fan-out cap spec §5 assigns per operation.
type TxConfig struct {
	Gas         uint64
	GasPrice    uint64
	Concurrency int64
}

// Authorities is the N-of-M signing policy this daemon participates in.
type Authorities struct {
	RequiredSignatures uint32
	Accounts           []common.Address
}

// Transactions holds the per-operation gas budgets.
type Transactions struct {
	DepositRelay    TxConfig
	DepositConfirm  TxConfig
	WithdrawConfirm TxConfig
	WithdrawRelay   TxConfig
}

// Config is the validated, immutable runtime configuration every other
// package is handed at startup.
type Config struct {
	Keystore     string
	Home         Node
	Foreign      Node
	Authorities  Authorities
	Transactions Transactions
}

// Load reads and validates the config file at path. allowInsecureRPC
// disables the TLS-required check on both nodes' rpc_host (spec §6:
// "TLS required unless override flag") — cmd/bridge wires this to an
// explicit --allow-insecure-rpc flag, never on by default.
func Load(path string, allowInsecureRPC bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("bridgeconfig: read config: %w", err)
	}

	var raw loadConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("bridgeconfig: parse config: %w", err)
	}

	return fromLoad(raw, allowInsecureRPC)
}

func fromLoad(raw loadConfig, allowInsecureRPC bool) (Config, error) {
	if raw.Keystore == "" {
		return Config{}, fmt.Errorf("bridgeconfig: keystore path is required")
	}

	home, err := nodeFromLoad(raw.Home, "home", allowInsecureRPC)
	if err != nil {
		return Config{}, err
	}
	foreign, err := nodeFromLoad(raw.Foreign, "foreign", allowInsecureRPC)
	if err != nil {
		return Config{}, err
	}

	if raw.Authorities.RequiredSignatures == 0 {
		return Config{}, fmt.Errorf("bridgeconfig: authorities.required_signatures is required")
	}

	return Config{
		Keystore: raw.Keystore,
		Home:     home,
		Foreign:  foreign,
		Authorities: Authorities{
			RequiredSignatures: raw.Authorities.RequiredSignatures,
			Accounts:           raw.Authorities.Accounts,
		},
		Transactions: Transactions{
			DepositRelay:    txFromLoad(raw.Transactions.DepositRelay),
			DepositConfirm:  txFromLoad(raw.Transactions.DepositConfirm),
			WithdrawConfirm: txFromLoad(raw.Transactions.WithdrawConfirm),
			WithdrawRelay:   txFromLoad(raw.Transactions.WithdrawRelay),
		},
	}, nil
}

func nodeFromLoad(n loadNode, name string, allowInsecureRPC bool) (Node, error) {
	if n.RPCHost == "" {
		return Node{}, fmt.Errorf("bridgeconfig: %s.rpc_host is required", name)
	}
	if n.Password == "" {
		return Node{}, fmt.Errorf("bridgeconfig: %s.password is required", name)
	}
	if (n.ContractAddress == common.Address{}) {
		return Node{}, fmt.Errorf("bridgeconfig: %s.contract_address is required", name)
	}
	if !allowInsecureRPC && !strings.HasPrefix(n.RPCHost, "https://") && !strings.HasPrefix(n.RPCHost, "wss://") {
		return Node{}, fmt.Errorf("bridgeconfig: %s.rpc_host %q is not TLS: TLS required (pass --allow-insecure-rpc to override)", name, n.RPCHost)
	}

	node := Node{
		Account:                n.Account,
		Password:               n.Password,
		ContractAddress:        n.ContractAddress,
		RPCHost:                n.RPCHost,
		DeployBlock:            0,
		RPCPort:                defaultRPCPort,
		PollInterval:           defaultPollInterval,
		RequiredConfirmations:  defaultConfirmations,
		RequestTimeout:         defaultRequestTimeout,
		GasPriceOracleURL:      n.GasPriceOracleURL,
		GasPriceSpeed:          defaultGasPriceSpeed,
		GasPriceTimeout:        defaultGasPriceTimeout,
		DefaultGasPrice:        defaultGasPriceWei,
		ConcurrentHTTPRequests: defaultConcurrentHTTP,
	}

	if n.DeployBlock != nil {
		node.DeployBlock = *n.DeployBlock
	}
	if n.RPCPort != nil {
		node.RPCPort = *n.RPCPort
	}
	if n.PollInterval != nil {
		node.PollInterval = time.Duration(*n.PollInterval) * time.Second
	}
	if n.RequiredConfirmations != nil {
		node.RequiredConfirmations = *n.RequiredConfirmations
	}
	if n.RequestTimeout != nil {
		node.RequestTimeout = time.Duration(*n.RequestTimeout) * time.Second
	}
	if n.GasPriceSpeed != "" {
		node.GasPriceSpeed = gasprice.Speed(n.GasPriceSpeed)
	}
	if n.GasPriceTimeout != nil {
		node.GasPriceTimeout = time.Duration(*n.GasPriceTimeout) * time.Second
	}
	if n.DefaultGasPrice != nil {
		node.DefaultGasPrice = *n.DefaultGasPrice
	}
	if n.ConcurrentHTTPRequests != nil {
		node.ConcurrentHTTPRequests = *n.ConcurrentHTTPRequests
	}

	return node, nil
}

func txFromLoad(t loadTxConfig) TxConfig {
	cfg := TxConfig{Gas: defaultTxGas, Concurrency: defaultTxConcurrency}
	if t.Gas != nil {
		cfg.Gas = *t.Gas
	}
	if t.GasPrice != nil {
		cfg.GasPrice = *t.GasPrice
	}
	if t.Concurrency != nil {
		cfg.Concurrency = *t.Concurrency
	}
	return cfg
}
