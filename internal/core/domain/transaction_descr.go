package domain

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/thanhpk/randstr"
)

// TransactionDescr is the local view of one swap attempt, either an order of
// this node or a pending order of somebody else announced by a hub.
type TransactionDescr struct {
	ID             string
	Role           Role
	Local          bool
	HubAddress     []byte
	ConfirmAddress []byte
	SessionAddress []byte

	From         string
	FromXAddr    []byte
	FromCurrency string
	FromAmount   uint64
	To           string
	ToXAddr      []byte
	ToCurrency   string
	ToAmount     uint64

	State    State
	Reason   CancelReason
	Created  time.Time
	Updated  time.Time
	Deadline time.Time

	// Own deposit and the transactions spending it.
	LockTime    uint32
	BinTxID     string
	BinTx       string
	BinTxVout   uint32
	BinAmount   uint64
	RefTxID     string
	RefTx       string
	PayTxID     string
	PayTx       string
	Multisig    string
	InnerScript []byte
	UsedCoins   []Utxo

	// Counterparty deposit.
	OtherBinTxID     string
	OtherInnerScript []byte
	OtherLockTime    uint32
	OtherMPubKey     []byte

	MPubKey  []byte
	MPrivKey []byte
	XPubKey  []byte
	XPrivKey []byte
	XHash    []byte
}

// NewTransactionDescr returns a new local order in New state. The id is
// derived from the terms of the order, its creation time and a random nonce.
func NewTransactionDescr(
	from, fromCurrency string, fromAmount uint64,
	to, toCurrency string, toAmount uint64,
) (*TransactionDescr, error) {
	if err := validateTerms(
		fromCurrency, fromAmount, toCurrency, toAmount,
	); err != nil {
		return nil, err
	}
	if from == "" || to == "" {
		return nil, ErrTransactionMissingAddress
	}

	now := time.Now()
	d := &TransactionDescr{
		Role:         RoleA,
		Local:        true,
		From:         from,
		FromCurrency: fromCurrency,
		FromAmount:   fromAmount,
		To:           to,
		ToCurrency:   toCurrency,
		ToAmount:     toAmount,
		State:        StateNew,
		Created:      now,
		Updated:      now,
	}
	d.ID = orderID(d, randstr.Hex(16))
	return d, nil
}

// NewPendingTransactionDescr returns the local record of a pending order
// announced by a hub.
func NewPendingTransactionDescr(
	id string, hubAddress []byte,
	fromCurrency string, fromAmount uint64,
	toCurrency string, toAmount uint64,
	created time.Time,
) (*TransactionDescr, error) {
	if err := validateTerms(
		fromCurrency, fromAmount, toCurrency, toAmount,
	); err != nil {
		return nil, err
	}
	return &TransactionDescr{
		ID:           id,
		HubAddress:   hubAddress,
		FromCurrency: fromCurrency,
		FromAmount:   fromAmount,
		ToCurrency:   toCurrency,
		ToAmount:     toAmount,
		State:        StatePending,
		Created:      created,
		Updated:      time.Now(),
	}, nil
}

func validateTerms(
	fromCurrency string, fromAmount uint64, toCurrency string, toAmount uint64,
) error {
	if fromCurrency == "" || toCurrency == "" {
		return ErrTransactionMissingCurrency
	}
	if fromCurrency == toCurrency {
		return ErrTransactionSameCurrency
	}
	if fromAmount == 0 || toAmount == 0 {
		return ErrTransactionZeroAmount
	}
	return nil
}

func orderID(d *TransactionDescr, nonce string) string {
	buf := &bytes.Buffer{}
	buf.WriteString(d.From)
	buf.WriteString(d.FromCurrency)
	binary.Write(buf, binary.LittleEndian, d.FromAmount)
	buf.WriteString(d.To)
	buf.WriteString(d.ToCurrency)
	binary.Write(buf, binary.LittleEndian, d.ToAmount)
	binary.Write(buf, binary.LittleEndian, d.Created.UnixNano())
	buf.WriteString(nonce)
	return chainhash.DoubleHashH(buf.Bytes()).String()
}

// UpdateFrom copies the mutable fields of other into d. The economic terms
// must match, the earliest creation time is kept and the update time is
// refreshed.
func (d *TransactionDescr) UpdateFrom(other *TransactionDescr) error {
	if d.FromCurrency != other.FromCurrency ||
		d.FromAmount != other.FromAmount ||
		d.ToCurrency != other.ToCurrency ||
		d.ToAmount != other.ToAmount {
		return ErrTransactionTermsChanged
	}

	created := d.Created
	if !other.Created.IsZero() && other.Created.Before(created) {
		created = other.Created
	}
	*d = *other.Copy()
	d.Created = created
	d.Updated = time.Now()
	return nil
}

// Copy returns a deep copy of the swap.
func (d *TransactionDescr) Copy() *TransactionDescr {
	c := *d
	c.HubAddress = cloneBytes(d.HubAddress)
	c.ConfirmAddress = cloneBytes(d.ConfirmAddress)
	c.SessionAddress = cloneBytes(d.SessionAddress)
	c.FromXAddr = cloneBytes(d.FromXAddr)
	c.ToXAddr = cloneBytes(d.ToXAddr)
	c.InnerScript = cloneBytes(d.InnerScript)
	c.OtherInnerScript = cloneBytes(d.OtherInnerScript)
	c.OtherMPubKey = cloneBytes(d.OtherMPubKey)
	c.MPubKey = cloneBytes(d.MPubKey)
	c.MPrivKey = cloneBytes(d.MPrivKey)
	c.XPubKey = cloneBytes(d.XPubKey)
	c.XPrivKey = cloneBytes(d.XPrivKey)
	c.XHash = cloneBytes(d.XHash)
	if d.UsedCoins != nil {
		c.UsedCoins = append([]Utxo(nil), d.UsedCoins...)
	}
	return &c
}

// Archived returns a copy of the swap without private key material, suitable
// for the history.
func (d *TransactionDescr) Archived() *TransactionDescr {
	c := d.Copy()
	c.MPrivKey = nil
	c.XPrivKey = nil
	return c
}

// Pending brings a new order to the Pending state once a hub announced it.
func (d *TransactionDescr) Pending(hubAddress []byte) (bool, error) {
	ok, err := d.moveTo(StatePending)
	if ok && err == nil && len(d.HubAddress) == 0 {
		d.HubAddress = cloneBytes(hubAddress)
	}
	return ok, err
}

// Accepting marks a pending order as being accepted by this node. The
// acceptor takes the inverse side of the order, so source and destination
// terms are swapped.
func (d *TransactionDescr) Accepting(
	from, to string, fromXAddr, toXAddr []byte,
) (bool, error) {
	if d.State >= StateAccepting && d.State.IsMainPath() {
		return true, nil
	}
	if from == "" || to == "" {
		return false, ErrTransactionMissingAddress
	}
	if ok, err := d.moveTo(StateAccepting); !ok {
		return false, err
	}
	d.Role = RoleB
	d.Local = true
	d.FromCurrency, d.ToCurrency = d.ToCurrency, d.FromCurrency
	d.FromAmount, d.ToAmount = d.ToAmount, d.FromAmount
	d.From, d.To = from, to
	d.FromXAddr, d.ToXAddr = cloneBytes(fromXAddr), cloneBytes(toXAddr)
	return true, nil
}

// Hold marks the swap as joined and waiting for both parties to be ready to
// lock funds. The swap deadline starts running from here.
func (d *TransactionDescr) Hold(hubAddress []byte, ttl time.Duration) (bool, error) {
	if d.State >= StateHold && d.State.IsMainPath() {
		return true, nil
	}
	if ok, err := d.moveTo(StateHold); !ok {
		return false, err
	}
	if len(hubAddress) > 0 {
		d.HubAddress = cloneBytes(hubAddress)
	}
	d.Deadline = time.Now().Add(ttl)
	return true, nil
}

// Initialize stores the multisig key pair and, for the initiator, the
// exchange key pair with the hash committing to it.
func (d *TransactionDescr) Initialize(
	mPubKey, mPrivKey, xPubKey, xPrivKey, xHash []byte,
) (bool, error) {
	if d.State >= StateInitialized && d.State.IsMainPath() {
		return true, nil
	}
	if len(mPubKey) != PubKeyLength {
		return false, ErrInvalidPubKey
	}
	if d.Role == RoleA && (len(xPubKey) != PubKeyLength || len(xHash) != XAddrLength) {
		return false, ErrInvalidSecretHash
	}
	if ok, err := d.moveTo(StateInitialized); !ok {
		return false, err
	}
	d.MPubKey, d.MPrivKey = cloneBytes(mPubKey), cloneBytes(mPrivKey)
	d.XPubKey, d.XPrivKey = cloneBytes(xPubKey), cloneBytes(xPrivKey)
	d.XHash = cloneBytes(xHash)
	return true, nil
}

// Deposit records the funded deposit and its pre-signed refund.
type Deposit struct {
	TxID        string
	TxHex       string
	Vout        uint32
	Amount      uint64
	Multisig    string
	InnerScript []byte
	LockTime    uint32
	RefTxID     string
	RefTx       string
}

// Create records the own deposit transaction.
func (d *TransactionDescr) Create(dep Deposit) (bool, error) {
	if d.State >= StateCreated && d.State.IsMainPath() {
		return true, nil
	}
	if dep.TxID == "" || len(dep.InnerScript) == 0 {
		return false, ErrMissingDeposit
	}
	if ok, err := d.moveTo(StateCreated); !ok {
		return false, err
	}
	d.BinTxID, d.BinTx, d.BinTxVout = dep.TxID, dep.TxHex, dep.Vout
	d.BinAmount = dep.Amount
	d.Multisig = dep.Multisig
	d.InnerScript = cloneBytes(dep.InnerScript)
	d.LockTime = dep.LockTime
	d.RefTxID, d.RefTx = dep.RefTxID, dep.RefTx
	return true, nil
}

// Sign records the signed payment transaction spending the counterparty
// deposit. A swap whose refund is still waiting for the lock time can be
// signed as well, the refund is then abandoned.
func (d *TransactionDescr) Sign(payTxID, payTx string) (bool, error) {
	if d.State >= StateSigned && d.State.IsMainPath() {
		return true, nil
	}
	resumed := d.State == StateRollbackFailed
	if ok, err := d.moveTo(StateSigned); !ok {
		return false, err
	}
	if resumed {
		d.Reason = ReasonUnknown
	}
	d.PayTxID, d.PayTx = payTxID, payTx
	return true, nil
}

// Commit marks the payment transaction as broadcast.
func (d *TransactionDescr) Commit() (bool, error) {
	return d.moveTo(StateCommited)
}

// Finish brings the swap to its final successful state.
func (d *TransactionDescr) Finish() (bool, error) {
	return d.moveTo(StateFinished)
}

// Cancel cancels a swap that has not deposited yet.
func (d *TransactionDescr) Cancel(reason CancelReason) (bool, error) {
	if d.State == StateCancelled {
		return true, nil
	}
	if d.State >= StateCreated && d.State.IsMainPath() {
		return false, ErrRollbackRequired
	}
	if ok, err := d.moveTo(StateCancelled); !ok {
		return false, err
	}
	d.Reason = reason
	return true, nil
}

// Rollback marks the refund transaction as broadcast.
func (d *TransactionDescr) Rollback(reason CancelReason) (bool, error) {
	if d.State == StateRollback {
		return true, nil
	}
	if !d.HasDeposit() {
		return false, ErrNotDeposited
	}
	if ok, err := d.moveTo(StateRollback); !ok {
		return false, err
	}
	if reason != ReasonUnknown {
		d.Reason = reason
	}
	return true, nil
}

// RollbackFailed records that the refund could not be broadcast. The swap
// stays active so that the refund is attempted again.
func (d *TransactionDescr) RollbackFailed(reason CancelReason) (bool, error) {
	if d.State == StateRollbackFailed {
		return true, nil
	}
	if !d.HasDeposit() {
		return false, ErrNotDeposited
	}
	if ok, err := d.moveTo(StateRollbackFailed); !ok {
		return false, err
	}
	d.Reason = reason
	return true, nil
}

// Drop marks the swap as dropped by the hub.
func (d *TransactionDescr) Drop(reason CancelReason) (bool, error) {
	if d.State == StateDropped {
		return true, nil
	}
	if d.State >= StateCreated && d.State.IsMainPath() {
		return false, ErrRollbackRequired
	}
	if ok, err := d.moveTo(StateDropped); !ok {
		return false, err
	}
	d.Reason = reason
	return true, nil
}

// Expire marks an unmatched order as expired.
func (d *TransactionDescr) Expire() (bool, error) {
	if ok, err := d.moveTo(StateExpired); !ok {
		return false, err
	}
	d.Reason = ReasonTimeout
	return true, nil
}

// Invalidate marks the swap as invalid, for instance when its terms cannot
// be handled by this node.
func (d *TransactionDescr) Invalidate(reason CancelReason) (bool, error) {
	if ok, err := d.moveTo(StateInvalid); !ok {
		return false, err
	}
	d.Reason = reason
	return true, nil
}

// HasDeposit returns whether the own deposit was funded.
func (d *TransactionDescr) HasDeposit() bool {
	return d.BinTxID != ""
}

// IsExpired tells whether an unmatched order outlived pendingTTL or a matched
// swap went past its deadline.
func (d *TransactionDescr) IsExpired(now time.Time, pendingTTL time.Duration) bool {
	if d.State.IsTerminal() {
		return false
	}
	if d.State <= StatePending && d.State.IsMainPath() {
		return now.Sub(d.Created) > pendingTTL
	}
	return !d.Deadline.IsZero() && now.After(d.Deadline)
}

// AmountString returns the amounts of the swap as decimal strings, given the
// number of units per coin of the source and destination currencies.
func (d *TransactionDescr) AmountString(fromCoin, toCoin uint64) (string, string) {
	return FormatAmount(d.FromAmount, fromCoin), FormatAmount(d.ToAmount, toCoin)
}

// IsHistoric returns whether the swap belongs to the history.
func (d *TransactionDescr) IsHistoric() bool {
	return d.State.IsHistoric()
}

func (d *TransactionDescr) moveTo(state State) (bool, error) {
	if d.State == state {
		return true, nil
	}
	// Reports of a phase already gone past are no-ops.
	if state.IsMainPath() && d.State.IsMainPath() && d.State > state {
		return true, nil
	}
	if d.State.IsTerminal() {
		return false, ErrTransactionTerminal
	}
	if !d.State.CanMoveTo(state) {
		return false, &InvalidTransitionError{d.State, state}
	}
	d.State = state
	d.Updated = time.Now()
	return true, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
