package bridgeconfig

import "github.com/ethereum/go-ethereum/common"

// The load* types mirror original_source/bridge/src/config.rs's
// load::Config / load::Node split: every field the operator may omit is a
// pointer or bare zero value here, and fromLoad (config.go) fills in defaults
// (DEFAULT_POLL_INTERVAL, DEFAULT_CONFIRMATIONS, ...) to produce the
// immutable runtime Config.

type loadConfig struct {
	Keystore     string           `toml:"keystore"`
	Home         loadNode         `toml:"home"`
	Foreign      loadNode         `toml:"foreign"`
	Authorities  loadAuthorities  `toml:"authorities"`
	Transactions loadTransactions `toml:"transactions"`
}

type loadNode struct {
	Account                common.Address `toml:"account"`
	Password               string         `toml:"password"`
	ContractAddress        common.Address `toml:"contract_address"`
	DeployBlock            *uint64        `toml:"deploy_block"`
	RPCHost                string         `toml:"rpc_host"`
	RPCPort                *uint16        `toml:"rpc_port"`
	PollInterval           *uint64        `toml:"poll_interval"`
	RequiredConfirmations  *uint64        `toml:"required_confirmations"`
	RequestTimeout         *uint64        `toml:"request_timeout"`
	GasPriceOracleURL      string         `toml:"gas_price_oracle_url"`
	GasPriceSpeed          string         `toml:"gas_price_speed"`
	GasPriceTimeout        *uint64        `toml:"gas_price_timeout"`
	DefaultGasPrice        *uint64        `toml:"default_gas_price"`
	ConcurrentHTTPRequests *uint64        `toml:"concurrent_http_requests"`
}

type loadAuthorities struct {
	RequiredSignatures uint32           `toml:"required_signatures"`
	Accounts           []common.Address `toml:"accounts"`
}

type loadTransactions struct {
	DepositRelay    loadTxConfig `toml:"deposit_relay"`
	DepositConfirm  loadTxConfig `toml:"deposit_confirm"`
	WithdrawConfirm loadTxConfig `toml:"withdraw_confirm"`
	WithdrawRelay   loadTxConfig `toml:"withdraw_relay"`
}

type loadTxConfig struct {
	Gas         *uint64 `toml:"gas"`
	GasPrice    *uint64 `toml:"gas_price"`
	Concurrency *int64  `toml:"concurrency"`
}
