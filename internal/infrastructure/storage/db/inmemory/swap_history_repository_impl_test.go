package inmemory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/infrastructure/storage/db/inmemory"
)

func TestSwapHistory(t *testing.T) {
	t.Parallel()

	repo := inmemory.NewSwapHistoryRepositoryImpl()
	defer repo.Close()

	older := newDescr(t)
	older.MPrivKey = []byte{1, 2, 3}
	older.XPrivKey = []byte{4, 5, 6}
	older.Updated = time.Now().Add(-time.Minute)
	newer := newDescr(t)

	require.NoError(t, repo.AddTransaction(ctx, older))
	require.NoError(t, repo.AddTransaction(ctx, newer))

	got, err := repo.GetTransaction(ctx, older.ID)
	require.NoError(t, err)
	require.Nil(t, got.MPrivKey)
	require.Nil(t, got.XPrivKey)

	list, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.ID, list[0].ID)
	require.Equal(t, older.ID, list[1].ID)

	_, err = repo.GetTransaction(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}
