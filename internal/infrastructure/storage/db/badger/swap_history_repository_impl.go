package dbbadger

import (
	"context"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type swapHistoryRepositoryImpl struct {
	store  *badgerhold.Store
	stopGC func()
}

// NewSwapHistoryRepositoryImpl returns a SwapHistoryRepository storing
// terminated swaps under baseDbDir/history. An empty baseDbDir makes an in
// memory store.
func NewSwapHistoryRepositoryImpl(
	baseDbDir string, logger badger.Logger,
) (domain.SwapHistoryRepository, error) {
	store, stopGC, err := createDb(historyDir(baseDbDir), logger)
	if err != nil {
		return nil, err
	}
	return &swapHistoryRepositoryImpl{store, stopGC}, nil
}

func (r *swapHistoryRepositoryImpl) AddTransaction(
	_ context.Context, d *domain.TransactionDescr,
) error {
	return r.store.Upsert(d.ID, d.Archived())
}

func (r *swapHistoryRepositoryImpl) GetTransaction(
	_ context.Context, id string,
) (*domain.TransactionDescr, error) {
	var d domain.TransactionDescr
	if err := r.store.Get(id, &d); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *swapHistoryRepositoryImpl) ListTransactions(
	_ context.Context,
) ([]*domain.TransactionDescr, error) {
	var swaps []domain.TransactionDescr
	if err := r.store.Find(&swaps, nil); err != nil {
		return nil, err
	}

	list := make([]*domain.TransactionDescr, 0, len(swaps))
	for i := range swaps {
		list = append(list, &swaps[i])
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Updated.After(list[j].Updated)
	})
	return list, nil
}

func (r *swapHistoryRepositoryImpl) Close() error {
	r.stopGC()
	return r.store.Close()
}
