package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

type swapHistoryRepositoryImpl struct {
	locker *sync.RWMutex
	swaps  map[string]*domain.TransactionDescr
}

// NewSwapHistoryRepositoryImpl returns a new inmemory SwapHistoryRepository
// implementation.
func NewSwapHistoryRepositoryImpl() domain.SwapHistoryRepository {
	return &swapHistoryRepositoryImpl{
		locker: &sync.RWMutex{},
		swaps:  make(map[string]*domain.TransactionDescr),
	}
}

func (r *swapHistoryRepositoryImpl) AddTransaction(
	_ context.Context, d *domain.TransactionDescr,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	r.swaps[d.ID] = d.Archived()
	return nil
}

func (r *swapHistoryRepositoryImpl) GetTransaction(
	_ context.Context, id string,
) (*domain.TransactionDescr, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	d, ok := r.swaps[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return d.Copy(), nil
}

func (r *swapHistoryRepositoryImpl) ListTransactions(
	_ context.Context,
) ([]*domain.TransactionDescr, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	list := make([]*domain.TransactionDescr, 0, len(r.swaps))
	for _, d := range r.swaps {
		list = append(list, d.Copy())
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Updated.After(list[j].Updated)
	})
	return list, nil
}

func (r *swapHistoryRepositoryImpl) Close() error { return nil }
