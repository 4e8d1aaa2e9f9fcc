package domain

import "context"

// Table identifies one of the local tables of swaps.
type Table int

const (
	// TablePending holds local orders not matched yet and the pending orders
	// of other nodes announced by hubs.
	TablePending Table = iota
	// TableActive holds the swaps this node takes part in.
	TableActive
)

func (t Table) String() string {
	switch t {
	case TablePending:
		return "pending"
	case TableActive:
		return "active"
	}
	return "unknown"
}

// TransactionDescrRepository is the abstraction for any kind of storage
// intended to hold the local swaps that did not reach a terminal state yet.
type TransactionDescrRepository interface {
	// AddTransaction adds a swap to the given table. It fails with
	// ErrTransactionAlreadyExists if a swap with the same id is in any table.
	AddTransaction(ctx context.Context, table Table, d *TransactionDescr) error
	// GetTransaction returns a copy of the swap with the given id and the
	// table it belongs to.
	GetTransaction(ctx context.Context, id string) (*TransactionDescr, Table, error)
	// UpdateTransaction allows to commit multiple changes to the same swap in
	// a transactional way.
	UpdateTransaction(
		ctx context.Context,
		id string,
		updateFn func(d *TransactionDescr) (*TransactionDescr, error),
	) error
	// MoveToActive moves a swap from the pending to the active table.
	MoveToActive(ctx context.Context, id string) error
	// RemoveTransaction removes the swap from whatever table it is in and
	// returns it.
	RemoveTransaction(ctx context.Context, id string) (*TransactionDescr, error)
	// ListTransactions returns copies of all the swaps of a table.
	ListTransactions(ctx context.Context, table Table) ([]*TransactionDescr, error)
}

// SwapHistoryRepository is the archive of swaps that reached a terminal
// state. Private keys are never stored.
type SwapHistoryRepository interface {
	// AddTransaction archives the swap, replacing any previous record with
	// the same id.
	AddTransaction(ctx context.Context, d *TransactionDescr) error
	// GetTransaction returns the archived swap with the given id.
	GetTransaction(ctx context.Context, id string) (*TransactionDescr, error)
	// ListTransactions returns all archived swaps, most recently updated
	// first.
	ListTransactions(ctx context.Context) ([]*TransactionDescr, error)
	Close() error
}
