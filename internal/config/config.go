package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/connector"
)

const (
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// WorkerCountKey is the number of goroutines processing incoming packets
	WorkerCountKey = "WORKER_COUNT"
	// TimerIntervalKey is the period of the maintenance tasks (retransmission,
	// expiry, refund retries)
	TimerIntervalKey = "TIMER_INTERVAL"
	// PendingTTLKey is how long an order can stay unmatched
	PendingTTLKey = "PENDING_TTL"
	// TransactionTTLKey is how long a matched swap can take before the hub
	// cancels it
	TransactionTTLKey = "TRANSACTION_TTL"
	// LockTimeBaseKey is the refund window of the acceptor deposit, the
	// initiator gets twice as much
	LockTimeBaseKey = "LOCK_TIME_BASE"
	// ExchangeEnabledKey makes the node act as a hub
	ExchangeEnabledKey = "EXCHANGE_ENABLED"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// RelayURLKey is the ws(s) url of the relay to join the network through
	RelayURLKey = "RELAY_URL"
	// RelayListenAddrKey, if set, makes the daemon serve a relay itself
	RelayListenAddrKey = "RELAY_LISTEN_ADDR"
	// OperatorListenAddrKey is the address of the operator HTTP interface
	OperatorListenAddrKey = "OPERATOR_LISTEN_ADDR"
	// MetricsListenAddrKey is the address of the prometheus endpoint, disabled if empty
	MetricsListenAddrKey = "METRICS_LISTEN_ADDR"
	// RPCMaxConcurrencyKey bounds the calls in flight to each wallet daemon
	RPCMaxConcurrencyKey = "RPC_MAX_CONCURRENCY"
	// RPCTimeoutKey bounds every call to a wallet daemon
	RPCTimeoutKey = "RPC_TIMEOUT"
	// RPCRateLimitKey is the max number of calls per second to each wallet daemon
	RPCRateLimitKey = "RPC_RATE_LIMIT"
	// WebhooksKey lists the webhooks registered at startup
	WebhooksKey = "WEBHOOKS"
	// WalletsKey lists the wallet daemons, one per currency
	WalletsKey = "WALLETS"
	// EnableProfilerKey enables profiler that can be used to investigate performance issues
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines interval for printing basic statistics
	StatsIntervalKey = "STATS_INTERVAL"

	DBInMemory = "inmemory"
	DBBadger   = "badger"

	DbLocation       = "db"
	ProfilerLocation = "stats"
	TxLogLocation    = "txlog"

	configFileName = "xbridge"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("xbridged", false)

type flagBinding struct {
	key  string
	flag *pflag.Flag
}

var boundFlags []flagBinding

// WalletConfig describes the wallet daemon serving a currency. Zero values
// keep the built-in chain params.
type WalletConfig struct {
	Currency string `mapstructure:"currency"`
	// Chain selects the built-in params, defaults to Currency.
	Chain    string `mapstructure:"chain"`
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Address is the hex encoded 20 bytes session address, random if empty.
	Address string `mapstructure:"address"`

	FeePerByte            uint64        `mapstructure:"fee_per_byte"`
	MinTxFee              uint64        `mapstructure:"min_tx_fee"`
	DustAmount            uint64        `mapstructure:"dust_amount"`
	RequiredConfirmations int64         `mapstructure:"required_confirmations"`
	BlockTime             time.Duration `mapstructure:"block_time"`
}

// Params returns the chain params of the wallet with the overrides applied.
func (w WalletConfig) Params() (connector.ChainParams, error) {
	chain := w.Chain
	if chain == "" {
		chain = w.Currency
	}
	params, ok := connector.ParamsByCurrency(chain)
	if !ok {
		return connector.ChainParams{}, fmt.Errorf("unknown chain %s", chain)
	}
	params.Currency = strings.ToUpper(w.Currency)
	if w.FeePerByte > 0 {
		params.FeePerByte = w.FeePerByte
	}
	if w.MinTxFee > 0 {
		params.MinTxFee = w.MinTxFee
	}
	if w.DustAmount > 0 {
		params.DustAmount = w.DustAmount
	}
	if w.RequiredConfirmations > 0 {
		params.RequiredConfirmations = w.RequiredConfirmations
	}
	if w.BlockTime > 0 {
		params.BlockTime = w.BlockTime
	}
	return params, nil
}

// SessionAddress decodes the configured session address, nil if unset.
func (w WalletConfig) SessionAddress() ([]byte, error) {
	if w.Address == "" {
		return nil, nil
	}
	addr, err := hex.DecodeString(w.Address)
	if err != nil || len(addr) != 20 {
		return nil, fmt.Errorf("invalid session address for %s", w.Currency)
	}
	return addr, nil
}

func (w WalletConfig) validate() error {
	if w.Currency == "" {
		return fmt.Errorf("missing currency")
	}
	if w.Host == "" {
		return fmt.Errorf("missing host for %s wallet", w.Currency)
	}
	if _, err := w.Params(); err != nil {
		return err
	}
	_, err := w.SessionAddress()
	return err
}

// WebhookConfig is a webhook registered at startup.
type WebhookConfig struct {
	Event    string `mapstructure:"event"`
	Endpoint string `mapstructure:"endpoint"`
	Secret   string `mapstructure:"secret"`
}

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("XBRIDGE")
	vip.AutomaticEnv()
	for _, b := range boundFlags {
		if err := vip.BindPFlag(b.key, b.flag); err != nil {
			return err
		}
	}

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(WorkerCountKey, 2)
	vip.SetDefault(TimerIntervalKey, 60*time.Second)
	vip.SetDefault(PendingTTLKey, 72*time.Hour)
	vip.SetDefault(TransactionTTLKey, time.Hour)
	vip.SetDefault(LockTimeBaseKey, 600*time.Second)
	vip.SetDefault(ExchangeEnabledKey, false)
	vip.SetDefault(DBTypeKey, DBBadger)
	vip.SetDefault(OperatorListenAddrKey, "localhost:9090")
	vip.SetDefault(RPCMaxConcurrencyKey, 8)
	vip.SetDefault(RPCTimeoutKey, 30*time.Second)
	vip.SetDefault(RPCRateLimitKey, 50)
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := readConfigFile(); err != nil {
		return fmt.Errorf("error while reading config file: %s", err)
	}

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

// BindFlags binds the persistent flags of cmd to the config keys. It must be
// called before InitConfig.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("datadir", "", "data directory")
	flags.Int("log-level", 0, "log level, from 0 (panic) to 6 (trace)")
	flags.Bool("exchange", false, "act as a hub")
	flags.String("relay-url", "", "ws url of the relay to connect to")
	flags.String("relay-listen-addr", "", "serve a relay on this address")
	flags.String("operator-listen-addr", "", "address of the operator interface")
	flags.String("metrics-listen-addr", "", "address of the prometheus endpoint")
	flags.String("db-type", "", "inmemory or badger")

	bindings := map[string]string{
		"datadir":              DatadirKey,
		"log-level":            LogLevelKey,
		"exchange":             ExchangeEnabledKey,
		"relay-url":            RelayURLKey,
		"relay-listen-addr":    RelayListenAddrKey,
		"operator-listen-addr": OperatorListenAddrKey,
		"metrics-listen-addr":  MetricsListenAddrKey,
		"db-type":              DBTypeKey,
	}
	boundFlags = boundFlags[:0]
	for flag, key := range bindings {
		boundFlags = append(boundFlags, flagBinding{key, flags.Lookup(flag)})
	}
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

func GetStringSlice(key string) []string {
	return vip.GetStringSlice(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetDbDir returns the dir of the swap history db, empty when the history
// is kept in memory.
func GetDbDir() string {
	if GetString(DBTypeKey) == DBInMemory {
		return ""
	}
	return filepath.Join(GetDatadir(), DbLocation)
}

// GetTxLogDir returns the dir of the daily logs of raw transactions.
func GetTxLogDir() string {
	return filepath.Join(GetDatadir(), TxLogLocation)
}

func GetWallets() ([]WalletConfig, error) {
	wallets := make([]WalletConfig, 0)
	if err := vip.UnmarshalKey(WalletsKey, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

func GetWebhooks() ([]WebhookConfig, error) {
	webhooks := make([]WebhookConfig, 0)
	if err := vip.UnmarshalKey(WebhooksKey, &webhooks); err != nil {
		return nil, err
	}
	return webhooks, nil
}

// readConfigFile merges the optional xbridge.yaml found in the datadir.
func readConfigFile() error {
	vip.SetConfigName(configFileName)
	vip.SetConfigType("yaml")
	vip.AddConfigPath(GetDatadir())

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if dbType := GetString(DBTypeKey); dbType != DBInMemory && dbType != DBBadger {
		return fmt.Errorf("unknown db type %s", dbType)
	}

	if GetInt(WorkerCountKey) <= 0 {
		return fmt.Errorf("%s must be greater than 0", WorkerCountKey)
	}
	for _, key := range []string{
		TimerIntervalKey, PendingTTLKey, TransactionTTLKey, LockTimeBaseKey,
		RPCTimeoutKey,
	} {
		if GetDuration(key) <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}

	if relayURL := GetString(RelayURLKey); relayURL != "" {
		u, err := url.Parse(relayURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("%s must be a ws or wss url", RelayURLKey)
		}
	}

	wallets, err := GetWallets()
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, w := range wallets {
		if err := w.validate(); err != nil {
			return err
		}
		currency := strings.ToUpper(w.Currency)
		if seen[currency] {
			return fmt.Errorf("duplicated wallet for %s", currency)
		}
		seen[currency] = true
	}

	if _, err := GetWebhooks(); err != nil {
		return err
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return err
	}

	if GetString(DBTypeKey) == DBBadger {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
			return err
		}
	}

	if err := makeDirectoryIfNotExists(filepath.Join(datadir, TxLogLocation)); err != nil {
		return err
	}

	profilerEnabled := GetBool(EnableProfilerKey)
	if profilerEnabled {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
