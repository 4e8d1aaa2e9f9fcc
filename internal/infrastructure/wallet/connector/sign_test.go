package connector

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestForkIDSignature(t *testing.T) {
	t.Parallel()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := key.PubKey().SerializeCompressed()

	c := &Connector{params: BCHParams}
	script, err := c.CreateDepositUnlockScript(pub, pub, btcutil.Hash160(pub), 100)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(90000, []byte{txscript.OP_TRUE}))

	amount := uint64(100000)
	sig, err := BCHParams.sign(tx, 0, script, amount, key.Serialize())
	require.NoError(t, err)
	require.Equal(t, byte(txscript.SigHashAll|SigHashForkID), sig[len(sig)-1])

	parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	require.NoError(t, err)

	hash, err := BCHParams.signatureHash(tx, 0, script, amount)
	require.NoError(t, err)
	require.True(t, parsed.Verify(hash, key.PubKey()))

	// the digest commits to the spent amount
	other, err := BCHParams.signatureHash(tx, 0, script, amount+1)
	require.NoError(t, err)
	require.False(t, parsed.Verify(other, key.PubKey()))

	// legacy digests don't
	legacy, err := BTCParams.signatureHash(tx, 0, script, amount)
	require.NoError(t, err)
	legacyOther, err := BTCParams.signatureHash(tx, 0, script, amount+1)
	require.NoError(t, err)
	require.Equal(t, legacy, legacyOther)
}
