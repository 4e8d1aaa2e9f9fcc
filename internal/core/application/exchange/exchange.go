// Package exchange implements the hub matching orders and driving joined
// swaps through their phases.
package exchange

import (
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

// Exchange holds the pending orders, the joined swaps in progress and the
// terminated ones. Every table has its own lock, when more than one is
// needed they are taken in the order pending, active, history.
type Exchange struct {
	pendingTTL time.Duration
	ttl        time.Duration

	pendingMu *sync.RWMutex
	pending   map[string]*domain.Transaction

	activeMu *sync.RWMutex
	active   map[string]*domain.Transaction

	historyMu *sync.RWMutex
	history   map[string]*domain.Transaction

	knownMu *sync.Mutex
	known   map[chainhash.Hash]time.Time
}

// NewExchange returns an empty hub. Pending orders expire after pendingTTL,
// joined swaps must finish within ttl.
func NewExchange(pendingTTL, ttl time.Duration) *Exchange {
	if pendingTTL <= 0 {
		pendingTTL = domain.PendingTTL
	}
	if ttl <= 0 {
		ttl = domain.TransactionTTL
	}
	return &Exchange{
		pendingTTL: pendingTTL,
		ttl:        ttl,
		pendingMu:  &sync.RWMutex{},
		pending:    make(map[string]*domain.Transaction),
		activeMu:   &sync.RWMutex{},
		active:     make(map[string]*domain.Transaction),
		historyMu:  &sync.RWMutex{},
		history:    make(map[string]*domain.Transaction),
		knownMu:    &sync.Mutex{},
		known:      make(map[chainhash.Hash]time.Time),
	}
}

// CreateTransaction stores a new pending order. A duplicated order is not
// stored again and isCreated is false.
func (e *Exchange) CreateTransaction(order Order) (string, bool, error) {
	if err := order.validate(); err != nil {
		return "", false, err
	}

	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	if e.exists(order.ID) {
		return order.ID, false, nil
	}

	tx, err := domain.NewTransaction(
		order.ID, order.member(), order.Created, e.pendingTTL, e.ttl,
	)
	if err != nil {
		return "", false, err
	}
	e.pending[order.ID] = tx

	log.WithField("id", order.ID).Debugf(
		"exchange: new pending order %s %d -> %s %d",
		order.SourceCurrency, order.SourceAmount,
		order.DestCurrency, order.DestAmount,
	)
	return order.ID, true, nil
}

// exists must be called with the pending lock held.
func (e *Exchange) exists(id string) bool {
	if _, ok := e.pending[id]; ok {
		return true
	}

	e.activeMu.RLock()
	_, ok := e.active[id]
	e.activeMu.RUnlock()
	if ok {
		return true
	}

	e.historyMu.RLock()
	defer e.historyMu.RUnlock()
	_, ok = e.history[id]
	return ok
}

// AcceptTransaction joins the counter order with the pending order of the
// given id or, if that's not found, with any pending order that is its
// exact inverse. If nothing matches, the counter order is stored as a new
// pending order and matched is false.
func (e *Exchange) AcceptTransaction(id string, order Order) (string, bool, error) {
	return e.accept(id, order, true)
}

// JoinTransaction joins the counter order only with the pending order of the
// given id. It fails with domain.ErrTransactionNotFound if no such order is
// pending or already joined with the same counter order.
func (e *Exchange) JoinTransaction(id string, order Order) error {
	_, _, err := e.accept(id, order, false)
	return err
}

func (e *Exchange) accept(id string, order Order, fallback bool) (string, bool, error) {
	if err := order.validate(); err != nil {
		return "", false, err
	}

	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	e.activeMu.RLock()
	tx, ok := e.active[id]
	e.activeMu.RUnlock()
	if ok {
		if _, err := tx.TryJoin(order.member(), time.Now()); err != nil {
			return "", false, err
		}
		return id, true, nil
	}

	tx, ok = e.pending[id]
	if !ok && fallback {
		tx = e.findMatch(order)
	}
	if tx == nil {
		if !fallback {
			return "", false, domain.ErrTransactionNotFound
		}
		if e.exists(order.ID) {
			return order.ID, false, nil
		}
		pending, err := domain.NewTransaction(
			order.ID, order.member(), order.Created, e.pendingTTL, e.ttl,
		)
		if err != nil {
			return "", false, err
		}
		e.pending[order.ID] = pending
		return order.ID, false, nil
	}

	if tx.A.Is(order.Session) {
		return "", false, ErrOwnOrder
	}
	if _, err := tx.TryJoin(order.member(), time.Now()); err != nil {
		return "", false, err
	}

	delete(e.pending, tx.ID)
	e.activeMu.Lock()
	e.active[tx.ID] = tx
	e.activeMu.Unlock()

	log.WithField("id", tx.ID).Debug("exchange: orders matched")
	return tx.ID, true, nil
}

// findMatch must be called with the pending lock held. The oldest matching
// order wins.
func (e *Exchange) findMatch(order Order) *domain.Transaction {
	member := order.member()
	var match *domain.Transaction
	for _, tx := range e.pending {
		if tx.A.Is(order.Session) || !tx.Matches(member) {
			continue
		}
		if match == nil || tx.Created.Before(match.Created) {
			match = tx
		}
	}
	return match
}

func (e *Exchange) activeTransaction(id string) (*domain.Transaction, error) {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()

	tx, ok := e.active[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

// UpdateTransactionWhenHoldApplyReceived records a member ready to lock its
// funds. advanced is true when both members did.
func (e *Exchange) UpdateTransactionWhenHoldApplyReceived(
	id string, from []byte,
) (bool, error) {
	tx, err := e.activeTransaction(id)
	if err != nil {
		return false, err
	}
	return tx.ReportHoldApply(from)
}

// UpdateTransactionWhenInitializedReceived records the multisig key of a
// member and, for the initiator, the hash of the exchange secret.
func (e *Exchange) UpdateTransactionWhenInitializedReceived(
	id string, from, mPubKey, xHash []byte,
) (bool, error) {
	tx, err := e.activeTransaction(id)
	if err != nil {
		return false, err
	}
	return tx.ReportInitialized(from, mPubKey, xHash)
}

// UpdateTransactionWhenCreatedReceived records the deposit of a member.
func (e *Exchange) UpdateTransactionWhenCreatedReceived(
	id string, from []byte, binTxID string, innerScript []byte, lockTime uint32,
) (bool, error) {
	tx, err := e.activeTransaction(id)
	if err != nil {
		return false, err
	}
	return tx.ReportCreated(from, binTxID, innerScript, lockTime)
}

// UpdateTransactionWhenConfirmedReceived records the payment of a member.
func (e *Exchange) UpdateTransactionWhenConfirmedReceived(
	id string, from []byte, payTxID string, xPubKey []byte,
) (bool, error) {
	tx, err := e.activeTransaction(id)
	if err != nil {
		return false, err
	}
	return tx.ReportConfirmed(from, payTxID, xPubKey)
}

// FinishTransaction brings a confirmed swap to Finished and moves it to the
// history.
func (e *Exchange) FinishTransaction(id string) (*domain.Transaction, error) {
	tx, err := e.activeTransaction(id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Finish(); err != nil {
		return nil, err
	}
	e.DeleteTransaction(id)
	return tx.Snapshot(), nil
}

// ForwardTransaction tells whether the hub must send the packet of phase to
// the member with the given role of a joined swap, see
// domain.Transaction.Forward. Terminated swaps are looked up as well.
func (e *Exchange) ForwardTransaction(
	id string, role domain.Role, phase domain.State,
	ready func(tx *domain.Transaction) bool,
) (*domain.Transaction, bool) {
	tx, err := e.activeTransaction(id)
	if err != nil {
		e.historyMu.RLock()
		tx = e.history[id]
		e.historyMu.RUnlock()
	}
	if tx == nil {
		return nil, false
	}
	return tx.Forward(role, phase, ready)
}

// CancelTransaction stops a pending order or a joined swap, that ends up
// Cancelled or, if any deposit was reported, Rollback. The swap is moved to
// the history and a snapshot is returned. Once the initiator revealed the
// exchange secret the swap can only complete and domain.ErrSecretRevealed
// is returned.
func (e *Exchange) CancelTransaction(
	id string, reason domain.CancelReason,
) (*domain.Transaction, error) {
	e.pendingMu.Lock()
	if tx, ok := e.pending[id]; ok {
		_, err := tx.Cancel(reason)
		if err == nil {
			delete(e.pending, id)
		}
		e.pendingMu.Unlock()
		if err != nil {
			return nil, err
		}
		e.addToHistory(tx)
		return tx.Snapshot(), nil
	}
	e.pendingMu.Unlock()

	tx, err := e.activeTransaction(id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Cancel(reason); err != nil {
		return nil, err
	}
	e.DeleteTransaction(id)
	return tx.Snapshot(), nil
}

// DeleteTransaction moves a joined swap to the history.
func (e *Exchange) DeleteTransaction(id string) {
	e.activeMu.Lock()
	tx, ok := e.active[id]
	delete(e.active, id)
	e.activeMu.Unlock()

	if ok {
		e.addToHistory(tx)
	}
}

// DeletePendingTransactions moves a pending order to the history.
func (e *Exchange) DeletePendingTransactions(id string) {
	e.pendingMu.Lock()
	tx, ok := e.pending[id]
	delete(e.pending, id)
	e.pendingMu.Unlock()

	if ok {
		e.addToHistory(tx)
	}
}

func (e *Exchange) addToHistory(tx *domain.Transaction) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.history[tx.ID] = tx
}

// ExpirePendingTransactions expires the pending orders older than the
// pending TTL, moves them to the history and returns them. If any source
// currency is given, only the orders selling one of them are considered.
func (e *Exchange) ExpirePendingTransactions(
	now time.Time, sourceCurrencies ...string,
) []*domain.Transaction {
	e.pendingMu.Lock()
	expired := make([]*domain.Transaction, 0)
	for id, tx := range e.pending {
		if !sellsAny(tx, sourceCurrencies) || !tx.IsExpired(now) {
			continue
		}
		if _, err := tx.Expire(); err != nil {
			log.WithError(err).WithField("id", id).Warn("exchange: failed to expire order")
			continue
		}
		delete(e.pending, id)
		expired = append(expired, tx)
	}
	e.pendingMu.Unlock()

	snapshots := make([]*domain.Transaction, 0, len(expired))
	for _, tx := range expired {
		e.addToHistory(tx)
		snapshots = append(snapshots, tx.Snapshot())
	}
	return sortByCreation(snapshots)
}

// ExpiredTransactions returns the joined swaps that didn't finish within the
// TTL.
func (e *Exchange) ExpiredTransactions(now time.Time) []*domain.Transaction {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()

	expired := make([]*domain.Transaction, 0)
	for _, tx := range e.active {
		if tx.IsExpired(now) {
			expired = append(expired, tx.Snapshot())
		}
	}
	return sortByCreation(expired)
}

// Transaction returns a snapshot of the swap with the given id, wherever it
// is stored.
func (e *Exchange) Transaction(id string) (*domain.Transaction, error) {
	if tx, err := e.activeTransaction(id); err == nil {
		return tx.Snapshot(), nil
	}
	if tx, err := e.PendingTransaction(id); err == nil {
		return tx, nil
	}

	e.historyMu.RLock()
	defer e.historyMu.RUnlock()
	if tx, ok := e.history[id]; ok {
		return tx.Snapshot(), nil
	}
	return nil, domain.ErrTransactionNotFound
}

// PendingTransaction returns a snapshot of a pending order.
func (e *Exchange) PendingTransaction(id string) (*domain.Transaction, error) {
	e.pendingMu.RLock()
	defer e.pendingMu.RUnlock()

	tx, ok := e.pending[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tx.Snapshot(), nil
}

// PendingTransactions returns the pending orders, oldest first.
func (e *Exchange) PendingTransactions() []*domain.Transaction {
	e.pendingMu.RLock()
	defer e.pendingMu.RUnlock()
	return snapshots(e.pending, nil)
}

// Transactions returns the joined swaps in progress, oldest first.
func (e *Exchange) Transactions() []*domain.Transaction {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()
	return snapshots(e.active, nil)
}

// FinishedTransactions returns the joined swaps whose payments were both
// reported and are waiting to be seen on chain.
func (e *Exchange) FinishedTransactions() []*domain.Transaction {
	e.activeMu.RLock()
	defer e.activeMu.RUnlock()
	return snapshots(e.active, func(tx *domain.Transaction) bool {
		return tx.State == domain.StateConfirmed
	})
}

// TransactionsHistory returns the terminated swaps, oldest first.
func (e *Exchange) TransactionsHistory() []*domain.Transaction {
	e.historyMu.RLock()
	defer e.historyMu.RUnlock()
	return snapshots(e.history, nil)
}

// PruneHistory forgets the terminated swaps last updated before the given
// time.
func (e *Exchange) PruneHistory(before time.Time) int {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	count := 0
	for id, tx := range e.history {
		if tx.Snapshot().Updated.Before(before) {
			delete(e.history, id)
			count++
		}
	}
	return count
}

// IsKnown returns whether a packet with the given hash was already
// processed.
func (e *Exchange) IsKnown(hash chainhash.Hash) bool {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()
	_, ok := e.known[hash]
	return ok
}

// AddKnown marks a packet as processed and returns false if it already was.
func (e *Exchange) AddKnown(hash chainhash.Hash, now time.Time) bool {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()

	if _, ok := e.known[hash]; ok {
		return false
	}
	e.known[hash] = now
	return true
}

// PruneKnown forgets the hashes added before the given time.
func (e *Exchange) PruneKnown(before time.Time) {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()

	for hash, added := range e.known {
		if added.Before(before) {
			delete(e.known, hash)
		}
	}
}

func sellsAny(tx *domain.Transaction, currencies []string) bool {
	if len(currencies) == 0 {
		return true
	}
	for _, c := range currencies {
		if tx.A.SourceCurrency == c {
			return true
		}
	}
	return false
}

func snapshots(
	table map[string]*domain.Transaction, filter func(*domain.Transaction) bool,
) []*domain.Transaction {
	list := make([]*domain.Transaction, 0, len(table))
	for _, tx := range table {
		s := tx.Snapshot()
		if filter != nil && !filter(s) {
			continue
		}
		list = append(list, s)
	}
	return sortByCreation(list)
}

func sortByCreation(list []*domain.Transaction) []*domain.Transaction {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Created.Equal(list[j].Created) {
			return list[i].ID < list[j].ID
		}
		return list[i].Created.Before(list[j].Created)
	})
	return list
}
