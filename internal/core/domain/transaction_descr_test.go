package domain_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

var (
	pubKey  = append([]byte{0x02}, bytes.Repeat([]byte{1}, 32)...)
	privKey = bytes.Repeat([]byte{2}, 32)
	xPubKey = append([]byte{0x03}, bytes.Repeat([]byte{3}, 32)...)
	xHash   = btcutil.Hash160(xPubKey)
)

func TestNewTransactionDescr(t *testing.T) {
	t.Parallel()

	d, err := domain.NewTransactionDescr("addrX", "BTC", 100000000, "addrY", "LTC", 200000000)
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Len(t, d.ID, 64)
	require.Equal(t, domain.StateNew, d.State)
	require.Equal(t, domain.RoleA, d.Role)
	require.True(t, d.Local)

	other, err := domain.NewTransactionDescr("addrX", "BTC", 100000000, "addrY", "LTC", 200000000)
	require.NoError(t, err)
	require.NotEqual(t, d.ID, other.ID)

	from, to := d.AmountString(100000000, 100000000)
	require.Equal(t, "1", from)
	require.Equal(t, "2", to)
}

func TestFailingNewTransactionDescr(t *testing.T) {
	tests := []struct {
		name         string
		from, to     string
		fromCurrency string
		toCurrency   string
		fromAmount   uint64
		toAmount     uint64
		expectedErr  error
	}{
		{"missing_currency", "a", "b", "", "LTC", 1, 1, domain.ErrTransactionMissingCurrency},
		{"same_currency", "a", "b", "BTC", "BTC", 1, 1, domain.ErrTransactionSameCurrency},
		{"zero_from_amount", "a", "b", "BTC", "LTC", 0, 1, domain.ErrTransactionZeroAmount},
		{"zero_to_amount", "a", "b", "BTC", "LTC", 1, 0, domain.ErrTransactionZeroAmount},
		{"missing_address", "", "b", "BTC", "LTC", 1, 1, domain.ErrTransactionMissingAddress},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := domain.NewTransactionDescr(
				tt.from, tt.fromCurrency, tt.fromAmount,
				tt.to, tt.toCurrency, tt.toAmount,
			)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestTransactionDescrMainPath(t *testing.T) {
	t.Parallel()

	d := newDescr(t)

	ok, err := d.Pending([]byte("hub"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hub"), d.HubAddress)

	ok, err = d.Hold([]byte("hub"), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, d.Deadline.IsZero())

	// A stale Pending report must not move the swap back.
	ok, err = d.Pending([]byte("hub"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StateHold, d.State)

	ok, err = d.Initialize(pubKey, privKey, xPubKey, privKey, xHash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.Create(newDeposit())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, d.HasDeposit())

	ok, err = d.Sign("paytxid", "00")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.Commit()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.Finish()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, d.IsHistoric())

	ok, err = d.Finish()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = d.Rollback(domain.ReasonTimeout)
	require.Error(t, err)
}

func TestTransactionDescrInitializeValidation(t *testing.T) {
	t.Parallel()

	d := newDescr(t)
	_, err := d.Initialize([]byte{1}, privKey, xPubKey, privKey, xHash)
	require.ErrorIs(t, err, domain.ErrInvalidPubKey)

	_, err = d.Initialize(pubKey, privKey, nil, nil, nil)
	require.ErrorIs(t, err, domain.ErrInvalidSecretHash)
	require.Equal(t, domain.StateNew, d.State)
}

func TestTransactionDescrCancel(t *testing.T) {
	t.Run("before_deposit", func(t *testing.T) {
		t.Parallel()

		d := newDescr(t)
		_, err := d.Rollback(domain.ReasonTimeout)
		require.ErrorIs(t, err, domain.ErrNotDeposited)

		ok, err := d.Cancel(domain.ReasonUserRequest)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, domain.StateCancelled, d.State)
		require.Equal(t, domain.ReasonUserRequest, d.Reason)

		_, err = d.Pending(nil)
		require.ErrorIs(t, err, domain.ErrTransactionTerminal)
	})

	t.Run("after_deposit", func(t *testing.T) {
		t.Parallel()

		d := newCreatedDescr(t)
		_, err := d.Cancel(domain.ReasonUserRequest)
		require.ErrorIs(t, err, domain.ErrRollbackRequired)
		_, err = d.Drop(domain.ReasonUnknown)
		require.ErrorIs(t, err, domain.ErrRollbackRequired)

		ok, err := d.RollbackFailed(domain.ReasonRPCError)
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, d.State.IsTerminal())

		ok, err = d.Rollback(domain.ReasonUnknown)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, domain.StateRollback, d.State)
		require.Equal(t, domain.ReasonRPCError, d.Reason)
	})
}

func TestTransactionDescrExpire(t *testing.T) {
	t.Parallel()

	d := newDescr(t)
	now := time.Now()
	require.False(t, d.IsExpired(now, time.Hour))
	require.True(t, d.IsExpired(now.Add(2*time.Hour), time.Hour))

	ok, err := d.Expire()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.ReasonTimeout, d.Reason)
	require.False(t, d.IsExpired(now.Add(2*time.Hour), time.Hour))

	held := newDescr(t)
	_, err = held.Hold(nil, time.Minute)
	require.NoError(t, err)
	require.True(t, held.IsExpired(now.Add(2*time.Hour), 72*time.Hour))
	_, err = held.Expire()
	require.Error(t, err)
}

func TestTransactionDescrUpdateFrom(t *testing.T) {
	t.Parallel()

	d := newDescr(t)
	older := d.Copy()
	older.Created = d.Created.Add(-time.Hour)
	older.State = domain.StatePending

	require.NoError(t, d.UpdateFrom(older))
	require.Equal(t, older.Created, d.Created)
	require.Equal(t, domain.StatePending, d.State)

	newer := d.Copy()
	newer.Created = d.Created.Add(time.Hour)
	require.NoError(t, d.UpdateFrom(newer))
	require.Equal(t, older.Created, d.Created)

	changed := d.Copy()
	changed.FromAmount++
	require.ErrorIs(t, d.UpdateFrom(changed), domain.ErrTransactionTermsChanged)
}

func TestTransactionDescrCopy(t *testing.T) {
	t.Parallel()

	d := newCreatedDescr(t)
	c := d.Copy()
	c.InnerScript[0] ^= 0xff
	c.MPubKey[0] ^= 0xff
	require.NotEqual(t, d.InnerScript, c.InnerScript)
	require.NotEqual(t, d.MPubKey, c.MPubKey)

	archived := d.Archived()
	require.Nil(t, archived.MPrivKey)
	require.Nil(t, archived.XPrivKey)
	require.NotNil(t, d.MPrivKey)
	require.Equal(t, d.XPubKey, archived.XPubKey)
}

func TestAcceptingDescr(t *testing.T) {
	t.Parallel()

	d, err := domain.NewPendingTransactionDescr(
		"id", []byte("hub"), "BTC", 100, "LTC", 200, time.Now(),
	)
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, d.State)
	require.False(t, d.Local)

	_, err = d.Accepting("", "to", nil, nil)
	require.ErrorIs(t, err, domain.ErrTransactionMissingAddress)

	ok, err := d.Accepting("from", "to", []byte{1}, []byte{2})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.RoleB, d.Role)
	require.True(t, d.Local)
	require.Equal(t, "LTC", d.FromCurrency)
	require.Equal(t, uint64(200), d.FromAmount)
	require.Equal(t, "BTC", d.ToCurrency)
	require.Equal(t, uint64(100), d.ToAmount)

	ok, err = d.Initialize(pubKey, privKey, nil, nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSignAfterFailedRollback(t *testing.T) {
	t.Parallel()

	d := newCreatedDescr(t)
	_, err := d.RollbackFailed(domain.ReasonTimeout)
	require.NoError(t, err)

	ok, err := d.Sign("paytxid", "00")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StateSigned, d.State)
	require.Equal(t, domain.ReasonUnknown, d.Reason)
	require.Equal(t, "paytxid", d.PayTxID)

	_, err = d.Commit()
	require.NoError(t, err)
	_, err = d.Finish()
	require.NoError(t, err)
	require.Equal(t, domain.StateFinished, d.State)
}

func newDescr(t *testing.T) *domain.TransactionDescr {
	d, err := domain.NewTransactionDescr("addrX", "BTC", 100000000, "addrY", "LTC", 200000000)
	require.NoError(t, err)
	return d
}

func newCreatedDescr(t *testing.T) *domain.TransactionDescr {
	d := newDescr(t)
	_, err := d.Initialize(pubKey, privKey, xPubKey, privKey, xHash)
	require.NoError(t, err)
	_, err = d.Create(newDeposit())
	require.NoError(t, err)
	return d
}

func newDeposit() domain.Deposit {
	return domain.Deposit{
		TxID:        "deposittxid",
		TxHex:       "00",
		Amount:      100001000,
		Multisig:    "3multisig",
		InnerScript: []byte{0x63, 0x67, 0x68},
		LockTime:    120,
		RefTxID:     "refundtxid",
		RefTx:       "00",
	}
}
