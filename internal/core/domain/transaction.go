package domain

import (
	"bytes"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// Transaction is the hub record of a swap. It starts as a single sided
// pending order (member A only) and becomes a joined swap once a matching
// counter order (member B) is found.
//
// The aggregate state advances only when both members independently
// reported the same next phase. Every method is safe for concurrent use.
type Transaction struct {
	ID         string
	State      State
	Reason     CancelReason
	Created    time.Time
	Updated    time.Time
	Joined     time.Time
	PendingTTL time.Duration
	TTL        time.Duration
	A          TransactionMember
	B          TransactionMember
	XHash      []byte
	XPubKey    []byte

	mu *sync.Mutex
}

// NewTransaction returns a pending order whose maker is member A.
func NewTransaction(
	id string, a TransactionMember, created time.Time,
	pendingTTL, ttl time.Duration,
) (*Transaction, error) {
	if err := validateTerms(
		a.SourceCurrency, a.SourceAmount, a.DestCurrency, a.DestAmount,
	); err != nil {
		return nil, err
	}
	if a.IsEmpty() {
		return nil, ErrTransactionMissingAddress
	}
	if created.IsZero() {
		created = time.Now()
	}
	return &Transaction{
		ID:         id,
		State:      StatePending,
		Created:    created,
		Updated:    time.Now(),
		PendingTTL: pendingTTL,
		TTL:        ttl,
		A:          a.copy(),
		mu:         &sync.Mutex{},
	}, nil
}

// Matches returns whether the given member's order is the exact inverse of
// this pending order.
func (t *Transaction) Matches(b TransactionMember) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.matches(b)
}

func (t *Transaction) matches(b TransactionMember) bool {
	return t.A.SourceCurrency == b.DestCurrency &&
		t.A.DestCurrency == b.SourceCurrency &&
		t.A.SourceAmount == b.DestAmount &&
		t.A.DestAmount == b.SourceAmount
}

// TryJoin joins the pending order with the counter order of member B and
// brings the swap to Accepting.
func (t *Transaction) TryJoin(b TransactionMember, now time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State >= StateAccepting && t.State.IsMainPath() {
		if t.B.Is(b.Session) {
			return true, nil
		}
		return false, ErrStateMismatch
	}
	if t.State != StatePending {
		return false, ErrTransactionTerminal
	}
	if b.IsEmpty() {
		return false, ErrTransactionMissingAddress
	}
	if !t.matches(b) {
		return false, ErrTransactionNotJoinable
	}
	if bytes.Equal(t.A.Session, b.Session) && t.A.Source == b.Dest {
		return false, ErrTransactionNotJoinable
	}

	t.B = b.copy()
	t.State = StateAccepting
	t.Joined = now
	t.Updated = now
	return true, nil
}

// IncreaseStateCounter records that the member talking from the given
// address reached state. The swap advances to state once both members
// reported it. A duplicated report is a no-op.
func (t *Transaction) IncreaseStateCounter(state State, from []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, _, dup, err := t.checkReport(state, from)
	if err != nil || dup {
		return false, err
	}
	return t.increaseStateCounter(state, m), nil
}

// ReportHoldApply records a member being ready to lock funds.
func (t *Transaction) ReportHoldApply(from []byte) (bool, error) {
	return t.IncreaseStateCounter(StateHold, from)
}

// ReportInitialized records the multisig public key of a member and, for the
// initiator, the hash committing to the exchange secret.
func (t *Transaction) ReportInitialized(
	from, mPubKey, xHash []byte,
) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, role, dup, err := t.checkReport(StateInitialized, from)
	if err != nil || dup {
		return false, err
	}
	if len(mPubKey) != PubKeyLength {
		return false, ErrInvalidPubKey
	}
	if role == RoleA && len(xHash) != XAddrLength {
		return false, ErrInvalidSecretHash
	}

	m.MPubKey = cloneBytes(mPubKey)
	if role == RoleA {
		t.XHash = cloneBytes(xHash)
	}
	return t.increaseStateCounter(StateInitialized, m), nil
}

// ReportCreated records the deposit of a member. The acceptor can report
// only after the initiator did.
func (t *Transaction) ReportCreated(
	from []byte, binTxID string, innerScript []byte, lockTime uint32,
) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, role, dup, err := t.checkReport(StateCreated, from)
	if err != nil || dup {
		return false, err
	}
	if binTxID == "" || len(innerScript) == 0 {
		return false, ErrMissingDeposit
	}
	if role == RoleB && t.A.Reported < StateCreated {
		return false, ErrStateMismatch
	}

	m.BinTxID = binTxID
	m.InnerScript = cloneBytes(innerScript)
	m.LockTime = lockTime
	return t.increaseStateCounter(StateCreated, m), nil
}

// ReportConfirmed records the payment of a member. The initiator reveals the
// exchange secret, which must match the committed hash, the acceptor can
// report only after.
func (t *Transaction) ReportConfirmed(
	from []byte, payTxID string, xPubKey []byte,
) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, role, dup, err := t.checkReport(StateConfirmed, from)
	if err != nil || dup {
		return false, err
	}
	if role == RoleA {
		if len(xPubKey) != PubKeyLength ||
			!bytes.Equal(btcutil.Hash160(xPubKey), t.XHash) {
			return false, ErrInvalidSecretHash
		}
	}
	if role == RoleB && t.A.Reported < StateConfirmed {
		return false, ErrStateMismatch
	}

	m.PayTxID = payTxID
	if role == RoleA {
		t.XPubKey = cloneBytes(xPubKey)
	}
	return t.increaseStateCounter(StateConfirmed, m), nil
}

// Finish brings a confirmed swap to Finished.
func (t *Transaction) Finish() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State == StateFinished {
		return true, nil
	}
	if t.State != StateConfirmed {
		return false, ErrStateMismatch
	}
	t.State = StateFinished
	t.Updated = time.Now()
	return true, nil
}

// Cancel stops the swap. If any member already deposited the swap goes to
// Rollback, otherwise to Cancelled. The resulting state is returned.
func (t *Transaction) Cancel(reason CancelReason) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State == StateCancelled || t.State == StateRollback {
		return t.State, nil
	}
	if t.State.IsTerminal() || t.State == StateConfirmed {
		return t.State, ErrTransactionTerminal
	}
	if t.A.Reported >= StateConfirmed {
		return t.State, ErrSecretRevealed
	}

	next := StateCancelled
	if t.hasDeposit() {
		next = StateRollback
	}
	t.State = next
	t.Reason = reason
	t.Updated = time.Now()
	return next, nil
}

// Rollback marks a swap with recorded deposits as rolled back.
func (t *Transaction) Rollback(reason CancelReason) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State == StateRollback {
		return true, nil
	}
	if !t.hasDeposit() {
		return false, ErrNotDeposited
	}
	if t.State.IsTerminal() {
		return false, ErrTransactionTerminal
	}
	if t.A.Reported >= StateConfirmed {
		return false, ErrSecretRevealed
	}
	t.State = StateRollback
	t.Reason = reason
	t.Updated = time.Now()
	return true, nil
}

// Drop removes an order nobody matched.
func (t *Transaction) Drop(reason CancelReason) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State == StateDropped {
		return true, nil
	}
	if t.hasDeposit() || t.State.IsTerminal() {
		return false, ErrTransactionTerminal
	}
	t.State = StateDropped
	t.Reason = reason
	t.Updated = time.Now()
	return true, nil
}

// Expire marks a pending order as expired.
func (t *Transaction) Expire() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State == StateExpired {
		return true, nil
	}
	if t.State != StatePending {
		return false, ErrStateMismatch
	}
	t.State = StateExpired
	t.Reason = ReasonTimeout
	t.Updated = time.Now()
	return true, nil
}

// IsExpired returns whether a pending order outlived the pending TTL or a
// joined swap did not finish within its TTL.
func (t *Transaction) IsExpired(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.State.IsTerminal():
		return false
	case t.State == StatePending:
		return now.Sub(t.Created) > t.PendingTTL
	default:
		return now.Sub(t.Joined) > t.TTL
	}
}

// HasDeposit returns whether any member reported a deposit.
func (t *Transaction) HasDeposit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasDeposit()
}

// Counter returns how many members already reported the phase following the
// current state.
func (t *Transaction) Counter() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, m := range []*TransactionMember{&t.A, &t.B} {
		if m.Reported > t.State {
			count++
		}
	}
	return count
}

// IsValid returns whether the swap has a valid maker and was not
// invalidated.
func (t *Transaction) IsValid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.State != StateInvalid && !t.A.IsEmpty() && len(t.A.Session) > 0
}

// MemberByAddress returns a copy of the member talking from the given
// address together with its role.
func (t *Transaction) MemberByAddress(from []byte) (TransactionMember, Role, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, role := t.member(from)
	if m == nil {
		return TransactionMember{}, RoleUndefined, false
	}
	return m.copy(), role, true
}

// IsMember returns the role of the member talking from the given address.
func (t *Transaction) IsMember(from []byte) (Role, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, role := t.member(from)
	return role, role != RoleUndefined
}

// Forward records that the hub is sending the packet of phase to the member
// with the given role, provided that ready holds for the swap. It returns a
// snapshot of the swap and true at most once per member and phase, ready
// is evaluated with the swap locked and must not call its methods.
func (t *Transaction) Forward(
	role Role, phase State, ready func(tx *Transaction) bool,
) (*Transaction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var m *TransactionMember
	switch role {
	case RoleA:
		m = &t.A
	case RoleB:
		m = &t.B
	default:
		return nil, false
	}
	if m.Forwarded >= phase || !ready(t) {
		return nil, false
	}
	m.Forwarded = phase
	return t.snapshot(), true
}

// Snapshot returns a copy of the swap that can be read without locking.
func (t *Transaction) Snapshot() *Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Transaction) snapshot() *Transaction {
	c := *t
	c.A = t.A.copy()
	c.B = t.B.copy()
	c.XHash = cloneBytes(t.XHash)
	c.XPubKey = cloneBytes(t.XPubKey)
	c.mu = &sync.Mutex{}
	return &c
}

func (t *Transaction) member(from []byte) (*TransactionMember, Role) {
	if t.A.Is(from) {
		return &t.A, RoleA
	}
	if t.B.Is(from) {
		return &t.B, RoleB
	}
	return nil, RoleUndefined
}

func (t *Transaction) hasDeposit() bool {
	return t.A.BinTxID != "" || t.B.BinTxID != ""
}

// checkReport validates a member report without mutating anything. dup is
// true when the report was already recorded.
func (t *Transaction) checkReport(
	state State, from []byte,
) (m *TransactionMember, role Role, dup bool, err error) {
	m, role = t.member(from)
	if m == nil {
		return nil, role, false, ErrUnknownMember
	}
	if t.State.IsTerminal() {
		return nil, role, false, ErrTransactionTerminal
	}
	if m.Reported >= state || (t.State >= state && t.State.IsMainPath()) {
		return m, role, true, nil
	}
	if t.State != previousHubState(state) {
		return nil, role, false, ErrStateMismatch
	}
	return m, role, false, nil
}

func (t *Transaction) increaseStateCounter(state State, m *TransactionMember) bool {
	m.Reported = state
	t.Updated = time.Now()
	if t.A.Reported >= state && t.B.Reported >= state {
		t.State = state
		return true
	}
	return false
}

func previousHubState(state State) State {
	switch state {
	case StateHold:
		return StateAccepting
	case StateInitialized:
		return StateHold
	case StateCreated:
		return StateInitialized
	case StateConfirmed:
		return StateCreated
	}
	return StateInvalid
}
