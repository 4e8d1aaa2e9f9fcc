package inmemory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/infrastructure/storage/db/inmemory"
)

var ctx = context.Background()

func newDescr(t *testing.T) *domain.TransactionDescr {
	d, err := domain.NewTransactionDescr(
		"mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef", "BTC", 100000,
		"LbXpL8KtjbJDjvRkLqPEFKcGsdhnZU2bZz", "LTC", 200000,
	)
	require.NoError(t, err)
	return d
}

func TestAddAndGetTransaction(t *testing.T) {
	t.Parallel()

	repo := inmemory.NewTransactionDescrRepositoryImpl()
	d := newDescr(t)

	require.NoError(t, repo.AddTransaction(ctx, domain.TablePending, d))
	err := repo.AddTransaction(ctx, domain.TableActive, d)
	require.ErrorIs(t, err, domain.ErrTransactionAlreadyExists)

	got, table, err := repo.GetTransaction(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TablePending, table)
	require.Equal(t, d, got)

	// Returned swaps are copies.
	got.MPubKey = []byte{1}
	again, _, err := repo.GetTransaction(ctx, d.ID)
	require.NoError(t, err)
	require.Nil(t, again.MPubKey)

	_, _, err = repo.GetTransaction(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestUpdateTransaction(t *testing.T) {
	t.Parallel()

	repo := inmemory.NewTransactionDescrRepositoryImpl()
	d := newDescr(t)
	require.NoError(t, repo.AddTransaction(ctx, domain.TableActive, d))

	err := repo.UpdateTransaction(ctx, d.ID, func(
		d *domain.TransactionDescr,
	) (*domain.TransactionDescr, error) {
		if _, err := d.Pending([]byte("hub")); err != nil {
			return nil, err
		}
		return d, nil
	})
	require.NoError(t, err)

	got, _, err := repo.GetTransaction(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, got.State)
	require.Equal(t, []byte("hub"), got.HubAddress)

	failing := fmt.Errorf("failing update")
	err = repo.UpdateTransaction(ctx, d.ID, func(
		d *domain.TransactionDescr,
	) (*domain.TransactionDescr, error) {
		d.State = domain.StateFinished
		return nil, failing
	})
	require.ErrorIs(t, err, failing)

	got, _, err = repo.GetTransaction(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, got.State)

	err = repo.UpdateTransaction(ctx, "unknown", func(
		d *domain.TransactionDescr,
	) (*domain.TransactionDescr, error) {
		return d, nil
	})
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestMoveAndRemoveTransaction(t *testing.T) {
	t.Parallel()

	repo := inmemory.NewTransactionDescrRepositoryImpl()
	d := newDescr(t)
	require.NoError(t, repo.AddTransaction(ctx, domain.TablePending, d))

	require.NoError(t, repo.MoveToActive(ctx, d.ID))
	require.NoError(t, repo.MoveToActive(ctx, d.ID))
	require.ErrorIs(t, repo.MoveToActive(ctx, "unknown"), domain.ErrTransactionNotFound)

	_, table, err := repo.GetTransaction(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TableActive, table)

	pending, err := repo.ListTransactions(ctx, domain.TablePending)
	require.NoError(t, err)
	require.Empty(t, pending)
	active, err := repo.ListTransactions(ctx, domain.TableActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	removed, err := repo.RemoveTransaction(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, removed.ID)

	_, err = repo.RemoveTransaction(ctx, d.ID)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestConcurrentUpdates(t *testing.T) {
	t.Parallel()

	repo := inmemory.NewTransactionDescrRepositoryImpl()
	d := newDescr(t)
	require.NoError(t, repo.AddTransaction(ctx, domain.TableActive, d))

	wg := &sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.UpdateTransaction(ctx, d.ID, func(
				d *domain.TransactionDescr,
			) (*domain.TransactionDescr, error) {
				d.BinAmount++
				return d, nil
			})
		}()
	}
	wg.Wait()

	got, _, err := repo.GetTransaction(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(50), got.BinAmount)
}
