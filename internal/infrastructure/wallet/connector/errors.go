package connector

import (
	"errors"
	"fmt"

	"github.com/tdex-network/xbridge/internal/core/ports"
)

var (
	// ErrInvalidAddress is returned when an address cannot be decoded or has
	// an unexpected prefix.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidKey is returned for malformed public or private keys.
	ErrInvalidKey = errors.New("invalid key")
	ErrDust       = ports.ErrDust
	ErrNotSigned  = ports.ErrNotSigned
	ErrRejected   = ports.ErrRejected

	// ErrDepositTxID is returned when the daemon returned a transaction with
	// another id.
	ErrDepositTxID = fmt.Errorf("%w: txid mismatch", ports.ErrBadDeposit)
	// ErrDepositScript is returned when no output pays to the expected
	// script.
	ErrDepositScript = fmt.Errorf("%w: no output pays to the expected script", ports.ErrBadDeposit)
	// ErrDepositAmount is returned when the deposit output is too small.
	ErrDepositAmount = fmt.Errorf("%w: amount too low", ports.ErrBadDeposit)
	// ErrDepositSpent is returned when the deposit output is already spent.
	ErrDepositSpent = fmt.Errorf("%w: output already spent", ports.ErrBadDeposit)
)

// ErrInvalidLockTime is returned for a zero or out of range lock time.
var ErrInvalidLockTime = errors.New("invalid lock time")

// ErrUtxoLocked is returned when reserving utxos already reserved by another
// swap.
var ErrUtxoLocked = errors.New("utxo already locked by another swap")
