package dbbadger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/domain"
	dbbadger "github.com/tdex-network/xbridge/internal/infrastructure/storage/db/badger"
)

var ctx = context.Background()

func newFinishedDescr(t *testing.T, updated time.Time) *domain.TransactionDescr {
	d, err := domain.NewTransactionDescr(
		"mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef", "BTC", 100000,
		"LbXpL8KtjbJDjvRkLqPEFKcGsdhnZU2bZz", "LTC", 200000,
	)
	require.NoError(t, err)
	d.BinTxID = "7d8b1e0c0f8e6b0ad5c08a2b4c1bcd2c95e1e28f9e1d6bd9a5d3f3fb3cbe2d01"
	d.InnerScript = []byte{0x63, 0x67, 0x68}
	d.MPrivKey = []byte{1, 2, 3}
	d.XPrivKey = []byte{4, 5, 6}
	d.UsedCoins = []domain.Utxo{{TxID: "aa", Vout: 1, Amount: 5000}}
	d.State = domain.StateFinished
	d.Updated = updated
	return d
}

func TestSwapHistoryRepository(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
	}{
		{"inmemory", func(*testing.T) string { return "" }},
		{"ondisk", func(t *testing.T) string { return t.TempDir() }},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo, err := dbbadger.NewSwapHistoryRepositoryImpl(tt.dir(t), nil)
			require.NoError(t, err)
			defer repo.Close()

			now := time.Now()
			older := newFinishedDescr(t, now.Add(-time.Hour))
			newer := newFinishedDescr(t, now)

			require.NoError(t, repo.AddTransaction(ctx, older))
			require.NoError(t, repo.AddTransaction(ctx, newer))
			// Archiving again replaces the previous record.
			require.NoError(t, repo.AddTransaction(ctx, older))

			got, err := repo.GetTransaction(ctx, older.ID)
			require.NoError(t, err)
			require.Equal(t, older.ID, got.ID)
			require.Equal(t, domain.StateFinished, got.State)
			require.Equal(t, older.InnerScript, got.InnerScript)
			require.Equal(t, older.UsedCoins, got.UsedCoins)
			require.Nil(t, got.MPrivKey)
			require.Nil(t, got.XPrivKey)

			list, err := repo.ListTransactions(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			require.Equal(t, newer.ID, list[0].ID)

			_, err = repo.GetTransaction(ctx, "unknown")
			require.ErrorIs(t, err, domain.ErrTransactionNotFound)
		})
	}
}

func TestRepoManager(t *testing.T) {
	t.Parallel()

	repoManager, err := dbbadger.NewRepoManager(t.TempDir(), nil)
	require.NoError(t, err)
	defer repoManager.Close()

	d := newFinishedDescr(t, time.Now())
	require.NoError(t, repoManager.SwapHistoryRepository().AddTransaction(ctx, d))
	require.NoError(t, repoManager.TransactionDescrRepository().AddTransaction(
		ctx, domain.TablePending, d,
	))
}
