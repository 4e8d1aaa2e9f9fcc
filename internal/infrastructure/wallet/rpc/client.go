// Package rpc implements the JSON-RPC client of bitcoin-like wallet daemons
// and of the account-model chains.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/pkg/circuitbreaker"
	"github.com/tdex-network/xbridge/pkg/stats"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxConcurrency = 4
	defaultTimeout        = 30 * time.Second
	defaultRateLimit      = 50

	maxResponseSize = 32 << 20
)

// Config holds the connection parameters of a wallet daemon.
type Config struct {
	Currency string
	Host     string
	User     string
	Password string
	// Coin is the number of units per whole coin, used to convert the
	// amounts returned by the daemon.
	Coin uint64
	// MaxConcurrency bounds the calls in flight.
	MaxConcurrency int64
	// Timeout bounds every call.
	Timeout time.Duration
	// RateLimit is the max number of calls per second.
	RateLimit int
	Metrics   *stats.Metrics
}

func (c Config) validate() error {
	if c.Currency == "" {
		return fmt.Errorf("missing currency")
	}
	if c.Host == "" {
		return fmt.Errorf("%s: missing rpc host", c.Currency)
	}
	if c.Coin == 0 {
		return fmt.Errorf("%s: coin must be greater than zero", c.Currency)
	}
	return nil
}

// Client implements ports.WalletRPC and ports.AccountRPC.
type Client struct {
	nextID  uint64
	cfg     Config
	url     string
	http    *http.Client
	sem     *semaphore.Weighted
	limiter ratelimit.Limiter
	cb      *gobreaker.CircuitBreaker
}

// NewClient returns a client posting JSON-RPC requests to the daemon. Every
// request is bound to the context of the call, a timed out call closes its
// connection.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}

	url := cfg.Host
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return &Client{
		cfg:     cfg,
		url:     url,
		http:    &http.Client{Timeout: cfg.Timeout},
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
		limiter: ratelimit.New(cfg.RateLimit),
		cb:      circuitbreaker.NewCircuitBreaker(cfg.Currency + " wallet rpc"),
	}, nil
}

// Close releases the idle connections to the daemon.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// call performs a request bounded by the concurrency limit, the rate limit,
// the circuit breaker and the client timeout. Errors returned by the daemon
// are *btcjson.RPCError and don't trip the breaker.
func (c *Client) call(
	ctx context.Context, method string, params ...interface{},
) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)
	c.limiter.Take()

	req, err := btcjson.NewRequest(
		btcjson.RpcVersion1, atomic.AddUint64(&c.nextID, 1), method, params,
	)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var daemonErr error
	res, err := c.cb.Execute(func() (interface{}, error) {
		raw, err := c.post(ctx, body)
		if err != nil && isDaemonError(err) {
			daemonErr = err
			return nil, nil
		}
		return raw, err
	})
	if err == nil {
		err = daemonErr
	}
	if err != nil {
		c.cfg.Metrics.RPCFailed(c.cfg.Currency, method)
		log.WithError(err).Debugf("%s: rpc %s failed", c.cfg.Currency, method)
		return nil, err
	}
	return res.(json.RawMessage), nil
}

// post sends a single request. The daemon answers errors with a non 200
// status and a JSON-RPC error in the body, so the body is decoded first.
func (c *Client) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.url, bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.User, c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	var res btcjson.Response
	if err := json.Unmarshal(respBody, &res); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf(
				"%s: daemon replied %s", c.cfg.Currency, resp.Status,
			)
		}
		return nil, fmt.Errorf("%s: malformed rpc response: %w", c.cfg.Currency, err)
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return res.Result, nil
}

func (c *Client) callFor(
	ctx context.Context, result interface{}, method string, params ...interface{},
) error {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%s: malformed %s response: %w", c.cfg.Currency, method, err)
	}
	return nil
}

func (c *Client) toUnits(amount decimal.Decimal) uint64 {
	return uint64(amount.Mul(decimal.NewFromInt(int64(c.cfg.Coin))).Round(0).IntPart())
}

func (c *Client) fromUnits(amount uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(amount)).Div(decimal.NewFromInt(int64(c.cfg.Coin)))
}

func decodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.callFor(ctx, &count, "getblockcount"); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Client) ListUnspent(ctx context.Context) ([]domain.Utxo, error) {
	var res []listUnspentResult
	if err := c.callFor(ctx, &res, "listunspent", 0); err != nil {
		return nil, err
	}
	utxos := make([]domain.Utxo, 0, len(res))
	for _, u := range res {
		if u.Spendable != nil && !*u.Spendable {
			continue
		}
		utxos = append(utxos, domain.Utxo{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Amount:        c.toUnits(u.Amount),
			Address:       u.Address,
			ScriptPubKey:  decodeHex(u.ScriptPubKey),
			Confirmations: u.Confirmations,
		})
	}
	return utxos, nil
}

func (c *Client) LockUnspent(
	ctx context.Context, unlock bool, outpoints []domain.Outpoint,
) error {
	ops := make([]outpoint, 0, len(outpoints))
	for _, o := range outpoints {
		ops = append(ops, outpoint{o.TxID, o.Vout})
	}
	var ok bool
	if err := c.callFor(ctx, &ok, "lockunspent", unlock, ops); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: daemon refused to update utxo locks", c.cfg.Currency)
	}
	return nil
}

func (c *Client) GetRawTransaction(
	ctx context.Context, txid string,
) (*ports.RawTransaction, error) {
	var res rawTransactionResult
	if err := c.callFor(ctx, &res, "getrawtransaction", txid, 1); err != nil {
		return nil, err
	}
	return &ports.RawTransaction{
		TxID:          res.TxID,
		Hex:           res.Hex,
		Confirmations: res.Confirmations,
	}, nil
}

func (c *Client) GetTxOut(
	ctx context.Context, txid string, vout uint32,
) (*ports.TxOut, error) {
	raw, err := c.call(ctx, "gettxout", txid, vout, true)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var res txOutResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%s: malformed gettxout response: %w", c.cfg.Currency, err)
	}
	return &ports.TxOut{
		Value:         c.toUnits(res.Value),
		ScriptPubKey:  decodeHex(res.ScriptPubKey.Hex),
		Confirmations: res.Confirmations,
	}, nil
}

func (c *Client) DecodeRawTransaction(
	ctx context.Context, txHex string,
) (*ports.DecodedTransaction, error) {
	var res decodedTransactionResult
	if err := c.callFor(ctx, &res, "decoderawtransaction", txHex); err != nil {
		return nil, err
	}
	vout := make([]ports.DecodedOutput, 0, len(res.Vout))
	for _, o := range res.Vout {
		addresses := o.ScriptPubKey.Addresses
		if len(addresses) == 0 && o.ScriptPubKey.Address != "" {
			addresses = []string{o.ScriptPubKey.Address}
		}
		vout = append(vout, ports.DecodedOutput{
			N:            o.N,
			Value:        c.toUnits(o.Value),
			ScriptPubKey: decodeHex(o.ScriptPubKey.Hex),
			Addresses:    addresses,
		})
	}
	return &ports.DecodedTransaction{
		TxID:     res.TxID,
		LockTime: res.LockTime,
		Vout:     vout,
	}, nil
}

// SignRawTransaction signs with signrawtransactionwithwallet, falling back to
// signrawtransaction for daemons not supporting it.
func (c *Client) SignRawTransaction(
	ctx context.Context, txHex string,
) (string, bool, error) {
	var res signRawTransactionResult
	err := c.callFor(ctx, &res, "signrawtransactionwithwallet", txHex)
	if code, ok := ErrorCode(err); ok && code == ErrCodeMethodNotFound {
		err = c.callFor(ctx, &res, "signrawtransaction", txHex)
	}
	if err != nil {
		return "", false, err
	}
	return res.Hex, res.Complete, nil
}

func (c *Client) SendRawTransaction(ctx context.Context, txHex string) (string, error) {
	var txid string
	if err := c.callFor(ctx, &txid, "sendrawtransaction", txHex); err != nil {
		return "", err
	}
	return txid, nil
}

func (c *Client) GetNewAddress(ctx context.Context) (string, error) {
	var address string
	if err := c.callFor(ctx, &address, "getnewaddress"); err != nil {
		return "", err
	}
	return address, nil
}

func (c *Client) GetTransaction(
	ctx context.Context, txid string,
) (*ports.WalletTransaction, error) {
	var res walletTransactionResult
	if err := c.callFor(ctx, &res, "gettransaction", txid); err != nil {
		return nil, err
	}
	return &ports.WalletTransaction{
		TxID:          res.TxID,
		Confirmations: res.Confirmations,
		BlockHash:     res.BlockHash,
	}, nil
}

func (c *Client) DumpPrivKey(ctx context.Context, address string) (string, error) {
	var wif string
	if err := c.callFor(ctx, &wif, "dumpprivkey", address); err != nil {
		return "", err
	}
	return wif, nil
}

func (c *Client) ImportPrivKey(ctx context.Context, wif, label string) error {
	return c.callFor(ctx, nil, "importprivkey", wif, label, false)
}

// ListAddressBook groups the addresses of the wallet by label, addresses
// without label are listed under the empty name.
func (c *Client) ListAddressBook(ctx context.Context) (map[string][]string, error) {
	var groups [][]addressGroupingEntry
	if err := c.callFor(ctx, &groups, "listaddressgroupings"); err != nil {
		return nil, err
	}

	book := make(map[string][]string)
	for _, group := range groups {
		for _, entry := range group {
			if len(entry) == 0 {
				continue
			}
			var address, label string
			if err := json.Unmarshal(entry[0], &address); err != nil {
				return nil, fmt.Errorf(
					"%s: malformed listaddressgroupings response: %w",
					c.cfg.Currency, err,
				)
			}
			if len(entry) > 2 {
				_ = json.Unmarshal(entry[2], &label)
			}
			book[label] = append(book[label], address)
		}
	}
	return book, nil
}

func (c *Client) GetBalance(ctx context.Context) (uint64, error) {
	var balance decimal.Decimal
	if err := c.callFor(ctx, &balance, "getbalance"); err != nil {
		return 0, err
	}
	return c.toUnits(balance), nil
}
