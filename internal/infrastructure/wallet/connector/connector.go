// Package connector implements the wallet connector of the UTXO chains
// supported by xbridge. A single implementation serves every chain, what
// differs between them is described by ChainParams.
package connector

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/rpc"
	"github.com/tdex-network/xbridge/pkg/txlog"
)

const (
	// lockTimeDrift is the number of blocks the chain tip of a counterparty
	// may be ahead of ours.
	lockTimeDrift = 6
	// lockMarginBlocks is the minimum number of blocks the refund window of
	// the acceptor exceeds the confirmations required for a deposit.
	lockMarginBlocks = 2
)

// Connector implements ports.WalletConnector on top of the JSON-RPC
// interface of a wallet daemon.
type Connector struct {
	params       ChainParams
	rpc          ports.WalletRPC
	lockTimeBase time.Duration
	locks        *utxoLockSet
	txLog        *txlog.Logger
}

// NewConnector returns a connector for the chain described by params.
// lockTimeBase is the refund window of the acceptor, the initiator gets
// twice as much.
func NewConnector(
	params ChainParams, walletRPC ports.WalletRPC, lockTimeBase time.Duration,
) (*Connector, error) {
	if walletRPC == nil {
		return nil, fmt.Errorf("missing wallet rpc client")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if lockTimeBase <= 0 {
		lockTimeBase = domain.LockTimeBase
	}
	if params.Dialect == DialectBlake {
		log.Warnf(
			"%s: transactions are built in the bitcoin format, only the address "+
				"encoding follows the blake dialect", params.Currency,
		)
	}
	return &Connector{
		params:       params.copy(),
		rpc:          walletRPC,
		lockTimeBase: lockTimeBase,
		locks:        newUtxoLockSet(),
	}, nil
}

// SetTxLog makes the connector record the raw hex of every transaction it
// builds or broadcasts.
func (c *Connector) SetTxLog(l *txlog.Logger) {
	c.txLog = l
}

func (c *Connector) Currency() string {
	return c.params.Currency
}

func (c *Connector) Coin() uint64 {
	return c.params.Coin
}

// Params returns the params of the chain.
func (c *Connector) Params() ChainParams {
	return c.params.copy()
}

func (c *Connector) NewKeyPair() ([]byte, []byte, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return key.PubKey().SerializeCompressed(), key.Serialize(), nil
}

func (c *Connector) GetBlockCount(ctx context.Context) (int64, error) {
	return c.rpc.GetBlockCount(ctx)
}

// lockBlocks is the number of blocks of the refund window of the acceptor.
// It always exceeds the confirmations a deposit waits for before its lock
// time is checked.
func (c *Connector) lockBlocks() int64 {
	blocks := int64(c.lockTimeBase / c.params.BlockTime)
	if floor := c.params.RequiredConfirmations + lockMarginBlocks; blocks < floor {
		return floor
	}
	return blocks
}

func (c *Connector) LockTime(ctx context.Context, role domain.Role) (uint32, error) {
	height, err := c.rpc.GetBlockCount(ctx)
	if err != nil {
		return 0, err
	}
	switch role {
	case domain.RoleA:
		return uint32(height + 2*c.lockBlocks()), nil
	case domain.RoleB:
		return uint32(height + c.lockBlocks()), nil
	}
	return 0, fmt.Errorf("unknown role %s", role)
}

// CheckLockTime makes sure the deposit of the initiator stays locked for
// longer than the refund window of the acceptor, and that no lock time is
// unreasonably far in the future.
func (c *Connector) CheckLockTime(
	ctx context.Context, role domain.Role, lockTime uint32,
) (bool, error) {
	height, err := c.rpc.GetBlockCount(ctx)
	if err != nil {
		return false, err
	}
	lt := int64(lockTime)
	blocks := c.lockBlocks()
	switch role {
	case domain.RoleA:
		return lt > height+blocks && lt <= height+2*blocks+lockTimeDrift, nil
	case domain.RoleB:
		return lt > height && lt <= height+blocks+lockTimeDrift, nil
	}
	return false, fmt.Errorf("unknown role %s", role)
}

func (c *Connector) GetUnspent(ctx context.Context) ([]domain.Utxo, error) {
	utxos, err := c.rpc.ListUnspent(ctx)
	if err != nil {
		return nil, err
	}
	return c.locks.filter(utxos), nil
}

// LockUnspent reserves or releases utxos. The local lock set is
// authoritative, the wallet daemon is asked to lock the coins as well so that
// other wallet users don't spend them.
func (c *Connector) LockUnspent(
	ctx context.Context, utxos []domain.Utxo, lock bool,
) error {
	if len(utxos) == 0 {
		return nil
	}
	if lock {
		if !c.locks.lock(utxos) {
			return ErrUtxoLocked
		}
	} else {
		c.locks.unlock(utxos)
	}

	outpoints := make([]domain.Outpoint, 0, len(utxos))
	for _, u := range utxos {
		outpoints = append(outpoints, u.Outpoint())
	}
	if err := c.rpc.LockUnspent(ctx, !lock, outpoints); err != nil {
		log.WithError(err).Warnf(
			"%s: failed to update daemon utxo locks", c.params.Currency,
		)
	}
	return nil
}

func (c *Connector) SelectCoins(
	ctx context.Context, amount uint64,
) ([]domain.Utxo, uint64, error) {
	utxos, err := c.GetUnspent(ctx)
	if err != nil {
		return nil, 0, err
	}
	confirmed := make([]domain.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.Confirmations > 0 {
			confirmed = append(confirmed, u)
		}
	}

	// The fee depends on the number of inputs, retry until the selected
	// coins also cover the fee of spending them.
	fee := c.MinTxFee1(1, 2)
	for i := 0; i < 5; i++ {
		coins := selectUnspents(confirmed, amount+fee)
		if len(coins) == 0 {
			return nil, 0, ports.ErrInsufficientFunds
		}
		needed := c.MinTxFee1(len(coins), 2)
		if needed <= fee {
			return coins, fee, nil
		}
		fee = needed
	}
	return nil, 0, ports.ErrInsufficientFunds
}

func (c *Connector) GetNewAddress(ctx context.Context) (string, error) {
	return c.rpc.GetNewAddress(ctx)
}

func (c *Connector) GetBalance(ctx context.Context) (uint64, error) {
	return c.rpc.GetBalance(ctx)
}

func (c *Connector) ImportPrivKey(
	ctx context.Context, privKey []byte, label string,
) error {
	wif, err := c.PrivKeyToWIF(privKey)
	if err != nil {
		return err
	}
	return c.rpc.ImportPrivKey(ctx, wif, label)
}

// CreateDepositTransaction builds a transaction paying req.Amount to the P2SH
// address of the redeem script, with change back to the wallet, and has the
// wallet sign it.
func (c *Connector) CreateDepositTransaction(
	ctx context.Context, req ports.DepositRequest,
) (*ports.DepositTransaction, error) {
	if len(req.Inputs) == 0 {
		return nil, ports.ErrInsufficientFunds
	}
	if c.IsDustAmount(req.Amount) {
		return nil, ErrDust
	}
	pkScript, err := depositPkScript(req.InnerScript)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(c.params.TxVersion)
	for _, u := range req.Inputs {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid input %s: %w", u.Key(), err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(int64(req.Amount), pkScript))

	total := domain.TotalAmount(req.Inputs)
	fee := c.MinTxFee1(len(req.Inputs), 2)
	if total < req.Amount+c.MinTxFee1(len(req.Inputs), 1) {
		return nil, ports.ErrInsufficientFunds
	}
	if total >= req.Amount+fee && !c.IsDustAmount(total-req.Amount-fee) {
		changeScript, err := c.payToAddrScript(req.ChangeAddress)
		if err != nil {
			return nil, fmt.Errorf("invalid change address: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(total-req.Amount-fee), changeScript))
	} else {
		fee = total - req.Amount
	}

	unsigned, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}
	signed, complete, err := c.rpc.SignRawTransaction(ctx, unsigned)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, ErrNotSigned
	}
	signedTx, err := deserializeTx(signed)
	if err != nil {
		return nil, err
	}
	scriptAddress, err := c.ScriptIDToString(c.GetScriptID(req.InnerScript))
	if err != nil {
		return nil, err
	}

	txid := signedTx.TxHash().String()
	c.txLog.Transaction(c.params.Currency, txlog.KindDeposit, txid, signed)

	return &ports.DepositTransaction{
		TxID:          txid,
		TxHex:         signed,
		Vout:          0,
		Amount:        req.Amount,
		Fee:           fee,
		ScriptAddress: scriptAddress,
	}, nil
}

// CreateRefundTransaction spends a deposit back to the depositor through the
// time locked branch of its redeem script.
func (c *Connector) CreateRefundTransaction(
	req ports.SpendRequest,
) (*ports.SignedTransaction, error) {
	if req.LockTime == 0 {
		return nil, ErrInvalidLockTime
	}
	tx, err := c.spendingTx(req)
	if err != nil {
		return nil, err
	}
	tx.LockTime = req.LockTime
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum - 1

	sig, err := c.params.sign(tx, 0, req.InnerScript, req.Amount, req.PrivKey)
	if err != nil {
		return nil, err
	}
	sigScript, err := refundSigScript(sig, req.PubKey, req.InnerScript)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].SignatureScript = sigScript
	return c.logSigned(txlog.KindRefund, tx)
}

// CreatePaymentTransaction claims the deposit of the counterparty revealing
// the exchange public key.
func (c *Connector) CreatePaymentTransaction(
	req ports.SpendRequest,
) (*ports.SignedTransaction, error) {
	if len(req.XPubKey) != domain.PubKeyLength {
		return nil, domain.ErrInvalidSecretHash
	}
	tx, err := c.spendingTx(req)
	if err != nil {
		return nil, err
	}

	sig, err := c.params.sign(tx, 0, req.InnerScript, req.Amount, req.PrivKey)
	if err != nil {
		return nil, err
	}
	sigScript, err := paymentSigScript(req.XPubKey, sig, req.PubKey, req.InnerScript)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].SignatureScript = sigScript
	return c.logSigned(txlog.KindPayment, tx)
}

func (c *Connector) logSigned(kind string, tx *wire.MsgTx) (*ports.SignedTransaction, error) {
	signed, err := signedTransaction(tx)
	if err != nil {
		return nil, err
	}
	c.txLog.Transaction(c.params.Currency, kind, signed.TxID, signed.TxHex)
	return signed, nil
}

// spendingTx returns the unsigned transaction moving a deposit, minus the
// fee, to the destination.
func (c *Connector) spendingTx(req ports.SpendRequest) (*wire.MsgTx, error) {
	if len(req.PubKey) != domain.PubKeyLength {
		return nil, ErrInvalidKey
	}
	hash, err := chainhash.NewHashFromStr(req.DepositTxID)
	if err != nil {
		return nil, fmt.Errorf("invalid deposit txid: %w", err)
	}
	pkScript, err := c.payToAddrScript(req.Destination)
	if err != nil {
		return nil, err
	}
	fee := c.MinTxFee2(1, 1)
	if req.Amount <= fee || c.IsDustAmount(req.Amount-fee) {
		return nil, ErrDust
	}

	tx := wire.NewMsgTx(c.params.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, req.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(int64(req.Amount-fee), pkScript))
	return tx, nil
}

// CheckDepositTx verifies that txid pays at least amount plus the fee of the
// spending transaction to the P2SH address of innerScript and that the
// output is still unspent.
func (c *Connector) CheckDepositTx(
	ctx context.Context, txid string, innerScript []byte, amount uint64,
) (*ports.DepositCheck, error) {
	raw, err := c.rpc.GetRawTransaction(ctx, txid)
	if err != nil {
		return nil, txNotFoundOr(err)
	}
	decoded, err := c.rpc.DecodeRawTransaction(ctx, raw.Hex)
	if err != nil {
		return nil, err
	}
	if decoded.TxID != txid {
		return nil, ErrDepositTxID
	}

	pkScript, err := depositPkScript(innerScript)
	if err != nil {
		return nil, err
	}
	var out *ports.DecodedOutput
	for i := range decoded.Vout {
		if bytes.Equal(decoded.Vout[i].ScriptPubKey, pkScript) {
			out = &decoded.Vout[i]
			break
		}
	}
	if out == nil {
		return nil, ErrDepositScript
	}
	if out.Value < amount+c.MinTxFee2(1, 1) {
		return nil, ErrDepositAmount
	}

	txOut, err := c.rpc.GetTxOut(ctx, txid, out.N)
	if err != nil {
		return nil, err
	}
	if txOut == nil {
		return nil, ErrDepositSpent
	}

	return &ports.DepositCheck{
		Vout:          out.N,
		Amount:        out.Value,
		Confirmations: raw.Confirmations,
		Confirmed:     raw.Confirmations >= c.params.RequiredConfirmations,
	}, nil
}

func (c *Connector) CheckTransaction(ctx context.Context, txid string) (int64, error) {
	tx, err := c.rpc.GetTransaction(ctx, txid)
	if err == nil {
		return tx.Confirmations, nil
	}
	if !errors.Is(txNotFoundOr(err), ports.ErrTxNotFound) {
		return 0, err
	}

	// Not a wallet transaction, ask the node.
	raw, err := c.rpc.GetRawTransaction(ctx, txid)
	if err != nil {
		return 0, txNotFoundOr(err)
	}
	return raw.Confirmations, nil
}

func (c *Connector) SendRawTransaction(ctx context.Context, txHex string) (string, error) {
	txid, err := c.rpc.SendRawTransaction(ctx, txHex)
	if err == nil {
		c.txLog.Transaction(c.params.Currency, txlog.KindBroadcast, txid, txHex)
		return txid, nil
	}

	code, ok := rpc.ErrorCode(err)
	if !ok {
		return "", err
	}
	switch code {
	case rpc.ErrCodeAlreadyInChain:
		tx, derr := deserializeTx(txHex)
		if derr != nil {
			return "", derr
		}
		return tx.TxHash().String(), nil
	case rpc.ErrCodeVerifyRejected:
		return "", fmt.Errorf("%w: %s", ErrRejected, err)
	}
	return "", err
}

func (c *Connector) RequestAddressBook(
	ctx context.Context,
) ([]domain.AddressBookEntry, error) {
	book, err := c.rpc.ListAddressBook(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.AddressBookEntry, 0, len(book))
	for name, addresses := range book {
		for _, addr := range addresses {
			entries = append(entries, domain.AddressBookEntry{
				Currency: c.params.Currency,
				Name:     name,
				Address:  addr,
			})
		}
	}
	return entries, nil
}

func txNotFoundOr(err error) error {
	if code, ok := rpc.ErrorCode(err); ok && code == rpc.ErrCodeInvalidAddressOrKey {
		return fmt.Errorf("%w: %s", ports.ErrTxNotFound, err)
	}
	return err
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
	if err := tx.Serialize(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func deserializeTx(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}

func signedTransaction(tx *wire.MsgTx) (*ports.SignedTransaction, error) {
	txHex, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}
	return &ports.SignedTransaction{TxID: tx.TxHash().String(), TxHex: txHex}, nil
}
