// Package chainsim simulates bitcoin-like chains and the wallets of the
// nodes using them. A Chain is the shared ledger, every Wallet implements
// ports.WalletRPC on top of it.
package chainsim

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	errCodeInvalidAddressOrKey btcjson.RPCErrorCode = -5
	errCodeWalletError         btcjson.RPCErrorCode = -4
	errCodeVerifyError         btcjson.RPCErrorCode = -25
	errCodeVerifyRejected      btcjson.RPCErrorCode = -26
	errCodeAlreadyInChain      btcjson.RPCErrorCode = -27

	verifyFlags = txscript.ScriptBip16 |
		txscript.ScriptVerifyCheckLockTimeVerify |
		txscript.ScriptVerifyDERSignatures |
		txscript.ScriptVerifyStrictEncoding
)

// Config describes a simulated chain.
type Config struct {
	AddrPrefix   byte
	ScriptPrefix byte
	SecretPrefix byte
	StartHeight  int64
	// VerifyScripts runs the script engine on every input of the broadcast
	// transactions. Only legacy signatures can be verified.
	VerifyScripts bool
	// AutoMine mines a block after every accepted transaction.
	AutoMine bool
}

type txEntry struct {
	tx *wire.MsgTx
	// height is the height of the block including the tx, 0 if in mempool.
	height int64
}

// Chain is an in-memory ledger.
type Chain struct {
	cfg Config

	mu      *sync.Mutex
	height  int64
	txs     map[string]*txEntry
	utxos   map[wire.OutPoint]*wire.TxOut
	mempool []string
	nonce   uint32
}

// NewChain returns an empty chain at the configured start height.
func NewChain(cfg Config) *Chain {
	return &Chain{
		cfg:    cfg,
		mu:     &sync.Mutex{},
		height: cfg.StartHeight,
		txs:    make(map[string]*txEntry),
		utxos:  make(map[wire.OutPoint]*wire.TxOut),
	}
}

func rpcError(code btcjson.RPCErrorCode, format string, a ...interface{}) error {
	return &btcjson.RPCError{Code: code, Message: fmt.Sprintf(format, a...)}
}

// Height returns the height of the chain tip.
func (c *Chain) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Mine adds n blocks including every transaction of the mempool.
func (c *Chain) Mine(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mine(n)
}

func (c *Chain) mine(n int) {
	for i := 0; i < n; i++ {
		c.height++
		for _, txid := range c.mempool {
			c.txs[txid].height = c.height
		}
		c.mempool = nil
	}
}

func (c *Chain) confirmations(e *txEntry) int64 {
	if e.height == 0 {
		return 0
	}
	return c.height - e.height + 1
}

// fund adds a confirmed transaction paying amount to pkScript.
func (c *Chain) fund(pkScript []byte, amount uint64) wire.OutPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nonce++
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(
		wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
		[]byte{byte(c.nonce), byte(c.nonce >> 8), byte(c.nonce >> 16), byte(c.nonce >> 24)},
		nil,
	))
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))

	txid := tx.TxHash()
	c.txs[txid.String()] = &txEntry{tx: tx}
	c.mempool = append(c.mempool, txid.String())
	c.mine(1)

	op := wire.OutPoint{Hash: txid, Index: 0}
	c.utxos[op] = tx.TxOut[0]
	return op
}

func (c *Chain) prevOut(op wire.OutPoint) (*wire.TxOut, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.utxos[op]
	return out, ok
}

func (c *Chain) transaction(txid string) (*wire.MsgTx, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.txs[txid]
	if !ok {
		return nil, 0, rpcError(
			errCodeInvalidAddressOrKey, "No such mempool or blockchain transaction",
		)
	}
	return e.tx, c.confirmations(e), nil
}

func (c *Chain) txOut(txid string, vout uint32) (*wire.TxOut, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, 0
	}
	out, ok := c.utxos[wire.OutPoint{Hash: *hash, Index: vout}]
	if !ok {
		return nil, 0
	}
	return out, c.confirmations(c.txs[txid])
}

// broadcast validates a transaction and adds it to the mempool.
func (c *Chain) broadcast(tx *wire.MsgTx) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	txid := tx.TxHash().String()
	if _, ok := c.txs[txid]; ok {
		return "", rpcError(errCodeAlreadyInChain, "transaction already in block chain")
	}

	if !c.isFinal(tx) {
		return "", rpcError(errCodeVerifyRejected, "non-final")
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	var totalIn int64
	for _, in := range tx.TxIn {
		out, ok := c.utxos[in.PreviousOutPoint]
		if !ok {
			return "", rpcError(errCodeVerifyError, "bad-txns-inputs-missingorspent")
		}
		prevOuts[in.PreviousOutPoint] = out
		totalIn += out.Value
	}
	var totalOut int64
	for _, out := range tx.TxOut {
		totalOut += out.Value
	}
	if totalOut > totalIn {
		return "", rpcError(errCodeVerifyRejected, "bad-txns-in-belowout")
	}

	if c.cfg.VerifyScripts {
		fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)
		for i, in := range tx.TxIn {
			prev := prevOuts[in.PreviousOutPoint]
			vm, err := txscript.NewEngine(
				prev.PkScript, tx, i, verifyFlags, nil, sigHashes, prev.Value, fetcher,
			)
			if err != nil {
				return "", rpcError(errCodeVerifyRejected, "mandatory-script-verify-flag-failed (%s)", err)
			}
			if err := vm.Execute(); err != nil {
				return "", rpcError(errCodeVerifyRejected, "mandatory-script-verify-flag-failed (%s)", err)
			}
		}
	}

	for _, in := range tx.TxIn {
		delete(c.utxos, in.PreviousOutPoint)
	}
	hash := tx.TxHash()
	for i, out := range tx.TxOut {
		c.utxos[wire.OutPoint{Hash: hash, Index: uint32(i)}] = out
	}
	c.txs[txid] = &txEntry{tx: tx}
	c.mempool = append(c.mempool, txid)
	if c.cfg.AutoMine {
		c.mine(1)
	}
	return txid, nil
}

// isFinal returns whether tx can be included in the next block.
func (c *Chain) isFinal(tx *wire.MsgTx) bool {
	if tx.LockTime == 0 || int64(tx.LockTime) <= c.height {
		return true
	}
	for _, in := range tx.TxIn {
		if in.Sequence != wire.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}

func serializeTx(tx *wire.MsgTx) string {
	var buf bytes.Buffer
	_ = tx.Serialize(&buf)
	return hex.EncodeToString(buf.Bytes())
}

func deserializeTx(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, rpcError(errCodeVerifyError, "TX decode failed")
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, rpcError(errCodeVerifyError, "TX decode failed")
	}
	return tx, nil
}
