package connector

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SigHashForkID is the flag the fork-id chains require on every signature.
const SigHashForkID txscript.SigHashType = 0x40

// SigHashType returns the sighash flags of the chain signatures.
func (p ChainParams) SigHashType() txscript.SigHashType {
	if p.Dialect == DialectForkID {
		return txscript.SigHashAll | SigHashForkID
	}
	return txscript.SigHashAll
}

// signatureHash returns the digest a signature of the given input commits
// to. amount is the value of the spent output, only fork-id chains commit to
// it.
func (p ChainParams) signatureHash(
	tx *wire.MsgTx, idx int, subScript []byte, amount uint64,
) ([]byte, error) {
	hashType := p.SigHashType()
	if p.Dialect == DialectForkID {
		pkScript, err := depositPkScript(subScript)
		if err != nil {
			return nil, err
		}
		fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, int64(amount))
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)
		return txscript.CalcWitnessSigHash(
			subScript, sigHashes, hashType, tx, idx, int64(amount),
		)
	}
	return txscript.CalcSignatureHash(subScript, hashType, tx, idx)
}

// sign returns the DER signature of an input followed by the sighash flags.
func (p ChainParams) sign(
	tx *wire.MsgTx, idx int, subScript []byte, amount uint64, privKey []byte,
) ([]byte, error) {
	if len(privKey) != 32 {
		return nil, ErrInvalidKey
	}
	key, _ := btcec.PrivKeyFromBytes(privKey)

	if p.Dialect != DialectForkID {
		return txscript.RawTxInSignature(tx, idx, subScript, p.SigHashType(), key)
	}

	hash, err := p.signatureHash(tx, idx, subScript, amount)
	if err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(key, hash)
	return append(sig.Serialize(), byte(p.SigHashType())), nil
}
