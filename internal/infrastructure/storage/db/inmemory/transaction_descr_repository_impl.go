package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

type descrTable struct {
	locker *sync.RWMutex
	descrs map[string]*domain.TransactionDescr
}

func newDescrTable() *descrTable {
	return &descrTable{
		locker: &sync.RWMutex{},
		descrs: make(map[string]*domain.TransactionDescr),
	}
}

func (t *descrTable) get(id string) (*domain.TransactionDescr, bool) {
	t.locker.RLock()
	defer t.locker.RUnlock()

	d, ok := t.descrs[id]
	if !ok {
		return nil, false
	}
	return d.Copy(), true
}

// transactionDescrRepositoryImpl keeps pending and active swaps in two
// tables. When both locks are needed, pending is taken first.
type transactionDescrRepositoryImpl struct {
	pending *descrTable
	active  *descrTable
}

// NewTransactionDescrRepositoryImpl returns a new inmemory
// TransactionDescrRepository implementation.
func NewTransactionDescrRepositoryImpl() domain.TransactionDescrRepository {
	return &transactionDescrRepositoryImpl{
		pending: newDescrTable(),
		active:  newDescrTable(),
	}
}

func (r *transactionDescrRepositoryImpl) table(t domain.Table) *descrTable {
	if t == domain.TableActive {
		return r.active
	}
	return r.pending
}

func (r *transactionDescrRepositoryImpl) AddTransaction(
	_ context.Context, table domain.Table, d *domain.TransactionDescr,
) error {
	r.pending.locker.Lock()
	defer r.pending.locker.Unlock()
	r.active.locker.Lock()
	defer r.active.locker.Unlock()

	if _, ok := r.pending.descrs[d.ID]; ok {
		return domain.ErrTransactionAlreadyExists
	}
	if _, ok := r.active.descrs[d.ID]; ok {
		return domain.ErrTransactionAlreadyExists
	}
	r.table(table).descrs[d.ID] = d.Copy()
	return nil
}

func (r *transactionDescrRepositoryImpl) GetTransaction(
	_ context.Context, id string,
) (*domain.TransactionDescr, domain.Table, error) {
	if d, ok := r.active.get(id); ok {
		return d, domain.TableActive, nil
	}
	if d, ok := r.pending.get(id); ok {
		return d, domain.TablePending, nil
	}
	return nil, domain.TablePending, domain.ErrTransactionNotFound
}

func (r *transactionDescrRepositoryImpl) UpdateTransaction(
	_ context.Context,
	id string,
	updateFn func(d *domain.TransactionDescr) (*domain.TransactionDescr, error),
) error {
	for _, t := range []*descrTable{r.active, r.pending} {
		found, err := t.update(id, updateFn)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
	}
	return domain.ErrTransactionNotFound
}

func (t *descrTable) update(
	id string,
	updateFn func(d *domain.TransactionDescr) (*domain.TransactionDescr, error),
) (bool, error) {
	t.locker.Lock()
	defer t.locker.Unlock()

	d, ok := t.descrs[id]
	if !ok {
		return false, nil
	}
	updated, err := updateFn(d.Copy())
	if err != nil {
		return true, err
	}
	t.descrs[id] = updated.Copy()
	return true, nil
}

func (r *transactionDescrRepositoryImpl) MoveToActive(
	_ context.Context, id string,
) error {
	r.pending.locker.Lock()
	defer r.pending.locker.Unlock()
	r.active.locker.Lock()
	defer r.active.locker.Unlock()

	if _, ok := r.active.descrs[id]; ok {
		return nil
	}
	d, ok := r.pending.descrs[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	delete(r.pending.descrs, id)
	r.active.descrs[id] = d
	return nil
}

func (r *transactionDescrRepositoryImpl) RemoveTransaction(
	_ context.Context, id string,
) (*domain.TransactionDescr, error) {
	r.pending.locker.Lock()
	defer r.pending.locker.Unlock()
	r.active.locker.Lock()
	defer r.active.locker.Unlock()

	for _, t := range []*descrTable{r.active, r.pending} {
		if d, ok := t.descrs[id]; ok {
			delete(t.descrs, id)
			return d, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *transactionDescrRepositoryImpl) ListTransactions(
	_ context.Context, table domain.Table,
) ([]*domain.TransactionDescr, error) {
	t := r.table(table)
	t.locker.RLock()
	defer t.locker.RUnlock()

	list := make([]*domain.TransactionDescr, 0, len(t.descrs))
	for _, d := range t.descrs {
		list = append(list, d.Copy())
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Created.Before(list[j].Created)
	})
	return list, nil
}
