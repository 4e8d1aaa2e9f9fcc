package ports

import (
	"context"
	"errors"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

var (
	// ErrBadDeposit is wrapped by every failure of the verification of a
	// counterparty deposit. Such failures are fatal to the swap.
	ErrBadDeposit = errors.New("bad deposit transaction")
	// ErrTxNotFound is returned when a transaction is not known to the wallet
	// daemon yet.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrInsufficientFunds is returned when the wallet cannot cover an amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDust is returned when an output would be below the dust threshold.
	ErrDust = errors.New("amount is dust")
	// ErrNotSigned is returned when the wallet could not sign every input of
	// a transaction.
	ErrNotSigned = errors.New("transaction not completely signed")
	// ErrRejected is returned when the daemon refused a transaction.
	ErrRejected = errors.New("transaction rejected")
)

// WalletRPC is the JSON-RPC surface of a UTXO wallet daemon. Amounts are
// always expressed in the smallest unit of the currency.
type WalletRPC interface {
	GetBlockCount(ctx context.Context) (int64, error)
	ListUnspent(ctx context.Context) ([]domain.Utxo, error)
	LockUnspent(ctx context.Context, unlock bool, outpoints []domain.Outpoint) error
	GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error)
	// GetTxOut returns nil if the output is spent or unknown.
	GetTxOut(ctx context.Context, txid string, vout uint32) (*TxOut, error)
	DecodeRawTransaction(ctx context.Context, txHex string) (*DecodedTransaction, error)
	// SignRawTransaction signs the inputs owned by the wallet and reports
	// whether the transaction is completely signed.
	SignRawTransaction(ctx context.Context, txHex string) (string, bool, error)
	SendRawTransaction(ctx context.Context, txHex string) (string, error)
	GetNewAddress(ctx context.Context) (string, error)
	GetTransaction(ctx context.Context, txid string) (*WalletTransaction, error)
	DumpPrivKey(ctx context.Context, address string) (string, error)
	ImportPrivKey(ctx context.Context, wif, label string) error
	// ListAddressBook returns the addresses of the wallet by label.
	ListAddressBook(ctx context.Context) (map[string][]string, error)
	GetBalance(ctx context.Context) (uint64, error)
}

// AccountRPC is the JSON-RPC surface of account-model chains.
type AccountRPC interface {
	GasPrice(ctx context.Context) (uint64, error)
	AccountBalance(ctx context.Context, address string) (uint64, error)
	SendAccountTransaction(
		ctx context.Context, from, to string, amount uint64,
	) (string, error)
}

type RawTransaction struct {
	TxID          string
	Hex           string
	Confirmations int64
}

type TxOut struct {
	Value         uint64
	ScriptPubKey  []byte
	Confirmations int64
}

type DecodedOutput struct {
	N            uint32
	Value        uint64
	ScriptPubKey []byte
	Addresses    []string
}

type DecodedTransaction struct {
	TxID     string
	LockTime uint32
	Vout     []DecodedOutput
}

type WalletTransaction struct {
	TxID          string
	Confirmations int64
	BlockHash     string
}

// DepositRequest describes the deposit of a party into the P2SH address of
// InnerScript.
type DepositRequest struct {
	Inputs        []domain.Utxo
	InnerScript   []byte
	Amount        uint64
	ChangeAddress string
}

// DepositTransaction is a funded and signed deposit, not broadcast yet.
type DepositTransaction struct {
	TxID          string
	TxHex         string
	Vout          uint32
	Amount        uint64
	Fee           uint64
	ScriptAddress string
}

// SpendRequest describes a transaction spending a deposit, either back to
// the depositor after the lock time (refund) or to the counterparty
// revealing the exchange key (payment).
type SpendRequest struct {
	DepositTxID string
	Vout        uint32
	Amount      uint64
	InnerScript []byte
	LockTime    uint32
	Destination string
	PrivKey     []byte
	PubKey      []byte
	// XPubKey is only used by payments.
	XPubKey []byte
}

// SignedTransaction is a fully signed transaction ready to be broadcast.
type SignedTransaction struct {
	TxID  string
	TxHex string
}

// DepositCheck is the result of the verification of a counterparty deposit.
type DepositCheck struct {
	Vout          uint32
	Amount        uint64
	Confirmations int64
	// Confirmed is whether the deposit reached the confirmations required
	// by the chain.
	Confirmed bool
}

// WalletConnector turns protocol decisions into concrete transactions of a
// currency.
type WalletConnector interface {
	Currency() string
	// Coin is the number of units per whole coin.
	Coin() uint64

	ToXAddr(address string) ([]byte, error)
	FromXAddr(xaddr []byte) (string, error)
	IsValidAddress(address string) bool

	NewKeyPair() (pubKey, privKey []byte, err error)
	GetKeyID(pubKey []byte) []byte
	GetScriptID(script []byte) []byte
	ScriptIDToString(id []byte) (string, error)
	// PrivKeyToWIF returns the wallet import format of a key of this chain.
	PrivKeyToWIF(privKey []byte) (string, error)

	GetBlockCount(ctx context.Context) (int64, error)
	// LockTime returns the refund lock time of a new deposit of the given
	// role. The initiator always gets the longer window.
	LockTime(ctx context.Context, role domain.Role) (uint32, error)
	// CheckLockTime returns whether a counterparty of the given role chose an
	// acceptable lock time.
	CheckLockTime(ctx context.Context, role domain.Role, lockTime uint32) (bool, error)

	GetUnspent(ctx context.Context) ([]domain.Utxo, error)
	LockUnspent(ctx context.Context, utxos []domain.Utxo, lock bool) error
	// SelectCoins picks unlocked utxos covering amount plus the deposit fee
	// and returns them with the fee.
	SelectCoins(ctx context.Context, amount uint64) ([]domain.Utxo, uint64, error)
	IsDustAmount(amount uint64) bool
	MinTxFee1(inputs, outputs int) uint64
	MinTxFee2(inputs, outputs int) uint64
	GetNewAddress(ctx context.Context) (string, error)
	GetBalance(ctx context.Context) (uint64, error)
	ImportPrivKey(ctx context.Context, privKey []byte, label string) error

	CreateDepositUnlockScript(
		myPubKey, otherPubKey, xHash []byte, lockTime uint32,
	) ([]byte, error)
	CreateDepositTransaction(
		ctx context.Context, req DepositRequest,
	) (*DepositTransaction, error)
	CreateRefundTransaction(req SpendRequest) (*SignedTransaction, error)
	CreatePaymentTransaction(req SpendRequest) (*SignedTransaction, error)

	// CheckDepositTx verifies a counterparty deposit paying amount to the
	// P2SH address of innerScript. Verification failures wrap ErrBadDeposit.
	CheckDepositTx(
		ctx context.Context, txid string, innerScript []byte, amount uint64,
	) (*DepositCheck, error)
	// CheckTransaction returns the number of confirmations of a transaction
	// or ErrTxNotFound.
	CheckTransaction(ctx context.Context, txid string) (int64, error)
	// SendRawTransaction broadcasts a transaction. A transaction already in
	// the chain counts as sent.
	SendRawTransaction(ctx context.Context, txHex string) (string, error)

	RequestAddressBook(ctx context.Context) ([]domain.AddressBookEntry, error)
}
