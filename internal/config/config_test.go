package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/config"
)

const walletsFile = `
wallets:
  - currency: btc
    host: localhost:18443
    user: user
    password: pass
    fee_per_byte: 5
    block_time: 30s
  - currency: ltc
    host: localhost:19443
    address: 000102030405060708090a0b0c0d0e0f10111213
webhooks:
  - event: TRANSACTION_STATE_CHANGED
    endpoint: http://localhost:8080/hook
`

func writeConfigFile(t *testing.T, datadir, content string) {
	err := os.WriteFile(filepath.Join(datadir, "xbridge.yaml"), []byte(content), 0600)
	require.NoError(t, err)
}

// The config is process-wide, tests in this file must not run in parallel.

func TestInitConfig(t *testing.T) {
	datadir := t.TempDir()
	writeConfigFile(t, datadir, walletsFile)
	t.Setenv("XBRIDGE_DATADIR", datadir)
	t.Setenv("XBRIDGE_EXCHANGE_ENABLED", "true")
	t.Setenv("XBRIDGE_TIMER_INTERVAL", "10s")

	require.NoError(t, config.InitConfig())

	require.Equal(t, datadir, config.GetDatadir())
	require.True(t, config.GetBool(config.ExchangeEnabledKey))
	require.Equal(t, 10*time.Second, config.GetDuration(config.TimerIntervalKey))
	require.Equal(t, 72*time.Hour, config.GetDuration(config.PendingTTLKey))
	require.Equal(t, 2, config.GetInt(config.WorkerCountKey))
	require.Equal(t, filepath.Join(datadir, config.DbLocation), config.GetDbDir())
	require.DirExists(t, filepath.Join(datadir, config.DbLocation))
	require.Equal(t, filepath.Join(datadir, config.TxLogLocation), config.GetTxLogDir())
	require.DirExists(t, config.GetTxLogDir())

	wallets, err := config.GetWallets()
	require.NoError(t, err)
	require.Len(t, wallets, 2)

	btc, err := wallets[0].Params()
	require.NoError(t, err)
	require.Equal(t, "BTC", btc.Currency)
	require.Equal(t, uint64(5), btc.FeePerByte)
	require.Equal(t, 30*time.Second, btc.BlockTime)
	require.Equal(t, uint64(100000000), btc.Coin)

	addr, err := wallets[0].SessionAddress()
	require.NoError(t, err)
	require.Nil(t, addr)
	addr, err = wallets[1].SessionAddress()
	require.NoError(t, err)
	require.Len(t, addr, 20)

	webhooks, err := config.GetWebhooks()
	require.NoError(t, err)
	require.Len(t, webhooks, 1)
	require.Equal(t, "http://localhost:8080/hook", webhooks[0].Endpoint)
}

func TestInitConfigInMemory(t *testing.T) {
	datadir := t.TempDir()
	t.Setenv("XBRIDGE_DATADIR", datadir)
	t.Setenv("XBRIDGE_DB_TYPE", config.DBInMemory)

	require.NoError(t, config.InitConfig())
	require.Empty(t, config.GetDbDir())
	require.NoDirExists(t, filepath.Join(datadir, config.DbLocation))

	wallets, err := config.GetWallets()
	require.NoError(t, err)
	require.Empty(t, wallets)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{
			name: "unknown_db_type",
			env:  map[string]string{"XBRIDGE_DB_TYPE": "postgres"},
		},
		{
			name: "bad_relay_url",
			env:  map[string]string{"XBRIDGE_RELAY_URL": "http://localhost:8000"},
		},
		{
			name: "zero_workers",
			env:  map[string]string{"XBRIDGE_WORKER_COUNT": "0"},
		},
		{
			name: "negative_ttl",
			env:  map[string]string{"XBRIDGE_TRANSACTION_TTL": "-1h"},
		},
		{
			name: "unknown_chain",
			file: "wallets:\n  - currency: XMR\n    host: localhost:18081\n",
		},
		{
			name: "missing_host",
			file: "wallets:\n  - currency: BTC\n",
		},
		{
			name: "duplicated_wallet",
			file: "wallets:\n  - currency: BTC\n    host: a:1\n  - currency: btc\n    host: b:1\n",
		},
		{
			name: "bad_session_address",
			file: "wallets:\n  - currency: BTC\n    host: a:1\n    address: 0011\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			datadir := t.TempDir()
			if tt.file != "" {
				writeConfigFile(t, datadir, tt.file)
			}
			t.Setenv("XBRIDGE_DATADIR", datadir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			require.Error(t, config.InitConfig())
		})
	}
}
