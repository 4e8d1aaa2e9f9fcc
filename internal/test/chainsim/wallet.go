package chainsim

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
)

// Wallet is the wallet of a node on a simulated chain.
type Wallet struct {
	chain *Chain

	mu     *sync.Mutex
	keys   map[string]*btcec.PrivateKey
	labels map[string]string
	locked map[wire.OutPoint]struct{}
}

// NewWallet returns an empty wallet using the chain.
func (c *Chain) NewWallet() *Wallet {
	return &Wallet{
		chain:  c,
		mu:     &sync.Mutex{},
		keys:   make(map[string]*btcec.PrivateKey),
		labels: make(map[string]string),
		locked: make(map[wire.OutPoint]struct{}),
	}
}

func (w *Wallet) address(hash []byte) string {
	return base58.CheckEncode(hash, w.chain.cfg.AddrPrefix)
}

func (w *Wallet) addKey(key *btcec.PrivateKey, label string) string {
	hash := btcutil.Hash160(key.PubKey().SerializeCompressed())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[hex.EncodeToString(hash)] = key
	address := w.address(hash)
	w.labels[address] = label
	return address
}

// keyFor returns the key able to spend a P2PKH output script.
func (w *Wallet) keyFor(pkScript []byte) (*btcec.PrivateKey, bool) {
	if len(pkScript) != 25 || pkScript[0] != txscript.OP_DUP {
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	key, ok := w.keys[hex.EncodeToString(pkScript[3:23])]
	return key, ok
}

// Fund creates a confirmed output of the given amount paying to a new
// address of the wallet.
func (w *Wallet) Fund(amount uint64) (domain.Utxo, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return domain.Utxo{}, err
	}
	address := w.addKey(key, "")
	hash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return domain.Utxo{}, err
	}

	op := w.chain.fund(pkScript, amount)
	return domain.Utxo{
		TxID:          op.Hash.String(),
		Vout:          op.Index,
		Amount:        amount,
		Address:       address,
		ScriptPubKey:  pkScript,
		Confirmations: 1,
	}, nil
}

func (w *Wallet) GetBlockCount(context.Context) (int64, error) {
	return w.chain.Height(), nil
}

func (w *Wallet) ListUnspent(context.Context) ([]domain.Utxo, error) {
	w.chain.mu.Lock()
	type entry struct {
		op            wire.OutPoint
		out           *wire.TxOut
		confirmations int64
	}
	entries := make([]entry, 0)
	for op, out := range w.chain.utxos {
		e := w.chain.txs[op.Hash.String()]
		entries = append(entries, entry{op, out, w.chain.confirmations(e)})
	}
	w.chain.mu.Unlock()

	utxos := make([]domain.Utxo, 0)
	for _, e := range entries {
		if _, ok := w.keyFor(e.out.PkScript); !ok {
			continue
		}
		w.mu.Lock()
		_, locked := w.locked[e.op]
		w.mu.Unlock()
		if locked {
			continue
		}
		utxos = append(utxos, domain.Utxo{
			TxID:          e.op.Hash.String(),
			Vout:          e.op.Index,
			Amount:        uint64(e.out.Value),
			Address:       w.address(e.out.PkScript[3:23]),
			ScriptPubKey:  e.out.PkScript,
			Confirmations: e.confirmations,
		})
	}
	sort.Slice(utxos, func(i, j int) bool { return utxos[i].Key() < utxos[j].Key() })
	return utxos, nil
}

func (w *Wallet) LockUnspent(
	_ context.Context, unlock bool, outpoints []domain.Outpoint,
) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, o := range outpoints {
		hash, err := chainhash.NewHashFromStr(o.TxID)
		if err != nil {
			return rpcError(errCodeInvalidAddressOrKey, "invalid txid")
		}
		op := wire.OutPoint{Hash: *hash, Index: o.Vout}
		if unlock {
			delete(w.locked, op)
		} else {
			w.locked[op] = struct{}{}
		}
	}
	return nil
}

func (w *Wallet) GetRawTransaction(
	_ context.Context, txid string,
) (*ports.RawTransaction, error) {
	tx, confirmations, err := w.chain.transaction(txid)
	if err != nil {
		return nil, err
	}
	return &ports.RawTransaction{
		TxID:          txid,
		Hex:           serializeTx(tx),
		Confirmations: confirmations,
	}, nil
}

func (w *Wallet) GetTxOut(
	_ context.Context, txid string, vout uint32,
) (*ports.TxOut, error) {
	out, confirmations := w.chain.txOut(txid, vout)
	if out == nil {
		return nil, nil
	}
	return &ports.TxOut{
		Value:         uint64(out.Value),
		ScriptPubKey:  out.PkScript,
		Confirmations: confirmations,
	}, nil
}

func (w *Wallet) DecodeRawTransaction(
	_ context.Context, txHex string,
) (*ports.DecodedTransaction, error) {
	tx, err := deserializeTx(txHex)
	if err != nil {
		return nil, err
	}
	vout := make([]ports.DecodedOutput, 0, len(tx.TxOut))
	for i, out := range tx.TxOut {
		o := ports.DecodedOutput{
			N:            uint32(i),
			Value:        uint64(out.Value),
			ScriptPubKey: out.PkScript,
		}
		switch txscript.GetScriptClass(out.PkScript) {
		case txscript.PubKeyHashTy:
			o.Addresses = []string{w.address(out.PkScript[3:23])}
		case txscript.ScriptHashTy:
			o.Addresses = []string{
				base58.CheckEncode(out.PkScript[2:22], w.chain.cfg.ScriptPrefix),
			}
		}
		vout = append(vout, o)
	}
	return &ports.DecodedTransaction{
		TxID:     tx.TxHash().String(),
		LockTime: tx.LockTime,
		Vout:     vout,
	}, nil
}

// SignRawTransaction signs the inputs spending P2PKH outputs of the wallet.
func (w *Wallet) SignRawTransaction(
	_ context.Context, txHex string,
) (string, bool, error) {
	tx, err := deserializeTx(txHex)
	if err != nil {
		return "", false, err
	}

	complete := true
	for i, in := range tx.TxIn {
		if len(in.SignatureScript) > 0 {
			continue
		}
		prev, ok := w.chain.prevOut(in.PreviousOutPoint)
		if !ok {
			complete = false
			continue
		}
		key, ok := w.keyFor(prev.PkScript)
		if !ok {
			complete = false
			continue
		}
		sigScript, err := txscript.SignatureScript(
			tx, i, prev.PkScript, txscript.SigHashAll, key, true,
		)
		if err != nil {
			return "", false, rpcError(errCodeWalletError, "%s", err)
		}
		in.SignatureScript = sigScript
	}
	return serializeTx(tx), complete, nil
}

func (w *Wallet) SendRawTransaction(_ context.Context, txHex string) (string, error) {
	tx, err := deserializeTx(txHex)
	if err != nil {
		return "", err
	}
	return w.chain.broadcast(tx)
}

func (w *Wallet) GetNewAddress(context.Context) (string, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	return w.addKey(key, ""), nil
}

func (w *Wallet) GetTransaction(
	_ context.Context, txid string,
) (*ports.WalletTransaction, error) {
	_, confirmations, err := w.chain.transaction(txid)
	if err != nil {
		return nil, err
	}
	return &ports.WalletTransaction{TxID: txid, Confirmations: confirmations}, nil
}

func (w *Wallet) netParams() *chaincfg.Params {
	params := chaincfg.MainNetParams
	params.PrivateKeyID = w.chain.cfg.SecretPrefix
	return &params
}

func (w *Wallet) DumpPrivKey(_ context.Context, address string) (string, error) {
	hash, _, err := base58.CheckDecode(address)
	if err != nil {
		return "", rpcError(errCodeInvalidAddressOrKey, "Invalid address")
	}
	w.mu.Lock()
	key, ok := w.keys[hex.EncodeToString(hash)]
	w.mu.Unlock()
	if !ok {
		return "", rpcError(errCodeWalletError, "Private key for address is not known")
	}
	wif, err := btcutil.NewWIF(key, w.netParams(), true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}

func (w *Wallet) ImportPrivKey(_ context.Context, wif, label string) error {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return rpcError(errCodeInvalidAddressOrKey, "Invalid private key encoding")
	}
	w.addKey(decoded.PrivKey, label)
	return nil
}

func (w *Wallet) ListAddressBook(context.Context) (map[string][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	book := make(map[string][]string)
	for address, label := range w.labels {
		book[label] = append(book[label], address)
	}
	for label := range book {
		sort.Strings(book[label])
	}
	return book, nil
}

func (w *Wallet) GetBalance(ctx context.Context) (uint64, error) {
	w.chain.mu.Lock()
	outs := make([]*wire.TxOut, 0)
	for _, out := range w.chain.utxos {
		outs = append(outs, out)
	}
	w.chain.mu.Unlock()

	var balance uint64
	for _, out := range outs {
		if _, ok := w.keyFor(out.PkScript); ok {
			balance += uint64(out.Value)
		}
	}
	return balance, nil
}
