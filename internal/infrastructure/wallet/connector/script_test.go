package connector_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/connector"
)

func TestDecodeDepositScript(t *testing.T) {
	t.Parallel()

	c, _, _ := newBTCConnector(t, 0)
	myKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	xHash := randomBytes(t, domain.XAddrLength)

	tests := []struct {
		name     string
		lockTime uint32
	}{
		{"small_int", 16},
		{"block_height", 780000},
		{"timestamp", 1700000000},
		{"max", 0xffffffff},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			script, err := c.CreateDepositUnlockScript(
				myKey.PubKey().SerializeCompressed(),
				otherKey.PubKey().SerializeCompressed(),
				xHash, tt.lockTime,
			)
			require.NoError(t, err)

			decoded, err := connector.DecodeDepositScript(script)
			require.NoError(t, err)
			require.Equal(t, tt.lockTime, decoded.LockTime)
			require.Equal(t, btcutil.Hash160(myKey.PubKey().SerializeCompressed()), decoded.RefundKeyID)
			require.Equal(t, btcutil.Hash160(otherKey.PubKey().SerializeCompressed()), decoded.ClaimKeyID)
			require.Equal(t, xHash, decoded.XHash)
		})
	}
}

func TestDecodeInvalidDepositScript(t *testing.T) {
	t.Parallel()

	p2pkh, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(make([]byte, 20)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	tests := []struct {
		name   string
		script []byte
	}{
		{"empty", nil},
		{"p2pkh", p2pkh},
		{"truncated_push", []byte{txscript.OP_IF, txscript.OP_DATA_20, 0x01}},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := connector.DecodeDepositScript(tt.script)
			require.Error(t, err)
		})
	}
}
