package connector

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/crypto/blake256"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

const checksumLen = 4

// encodeAddress encodes a hash160 with the given prefix in the base58 flavour
// of the chain.
func (p ChainParams) encodeAddress(prefix, hash []byte) string {
	if p.Dialect == DialectBlake {
		return blakeCheckEncode(prefix, hash)
	}
	return base58.CheckEncode(hash, prefix[0])
}

// decodeAddress returns the prefix and the payload of an address.
func (p ChainParams) decodeAddress(address string) ([]byte, []byte, error) {
	if p.Dialect == DialectBlake {
		return blakeCheckDecode(address, len(p.AddrPrefix))
	}
	payload, version, err := base58.CheckDecode(address)
	if err != nil {
		return nil, nil, ErrInvalidAddress
	}
	return []byte{version}, payload, nil
}

func blakeChecksum(b []byte) []byte {
	first := blake256.Sum256(b)
	second := blake256.Sum256(first[:])
	return second[:checksumLen]
}

func blakeCheckEncode(prefix, payload []byte) string {
	b := make([]byte, 0, len(prefix)+len(payload)+checksumLen)
	b = append(b, prefix...)
	b = append(b, payload...)
	b = append(b, blakeChecksum(b)...)
	return base58.Encode(b)
}

func blakeCheckDecode(address string, prefixLen int) ([]byte, []byte, error) {
	decoded := base58.Decode(address)
	if len(decoded) < prefixLen+checksumLen+1 {
		return nil, nil, ErrInvalidAddress
	}
	body := decoded[:len(decoded)-checksumLen]
	if !bytes.Equal(blakeChecksum(body), decoded[len(decoded)-checksumLen:]) {
		return nil, nil, ErrInvalidAddress
	}
	return body[:prefixLen], body[prefixLen:], nil
}

// ToXAddr returns the hash160 a pay-to-pubkey-hash address commits to.
func (p ChainParams) ToXAddr(address string) ([]byte, error) {
	prefix, hash, err := p.decodeAddress(address)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(prefix, p.AddrPrefix) || len(hash) != domain.XAddrLength {
		return nil, ErrInvalidAddress
	}
	return hash, nil
}

// FromXAddr returns the pay-to-pubkey-hash address of a hash160.
func (p ChainParams) FromXAddr(xaddr []byte) (string, error) {
	if len(xaddr) != domain.XAddrLength {
		return "", ErrInvalidAddress
	}
	return p.encodeAddress(p.AddrPrefix, xaddr), nil
}

func (c *Connector) ToXAddr(address string) ([]byte, error) {
	return c.params.ToXAddr(address)
}

func (c *Connector) FromXAddr(xaddr []byte) (string, error) {
	return c.params.FromXAddr(xaddr)
}

func (c *Connector) IsValidAddress(address string) bool {
	_, err := c.payToAddrScript(address)
	return err == nil
}

func (c *Connector) GetKeyID(pubKey []byte) []byte {
	return btcutil.Hash160(pubKey)
}

func (c *Connector) GetScriptID(script []byte) []byte {
	return btcutil.Hash160(script)
}

// ScriptIDToString returns the pay-to-script-hash address of a script id.
func (p ChainParams) ScriptIDToString(id []byte) (string, error) {
	if len(id) != domain.XAddrLength {
		return "", ErrInvalidAddress
	}
	return p.encodeAddress(p.ScriptPrefix, id), nil
}

// PrivKeyToWIF returns the wallet import format of a compressed key.
func (p ChainParams) PrivKeyToWIF(privKey []byte) (string, error) {
	if len(privKey) != 32 {
		return "", ErrInvalidKey
	}
	if p.Dialect == DialectBlake {
		// secp256k1 ecdsa signature type
		return blakeCheckEncode(p.SecretPrefix, append([]byte{0x00}, privKey...)), nil
	}
	wif := append(append([]byte{}, privKey...), 0x01)
	return base58.CheckEncode(wif, p.SecretPrefix[0]), nil
}

func (c *Connector) ScriptIDToString(id []byte) (string, error) {
	return c.params.ScriptIDToString(id)
}

func (c *Connector) PrivKeyToWIF(privKey []byte) (string, error) {
	return c.params.PrivKeyToWIF(privKey)
}

// payToAddrScript returns the output script paying to a P2PKH or P2SH
// address of the chain.
func (c *Connector) payToAddrScript(address string) ([]byte, error) {
	prefix, hash, err := c.params.decodeAddress(address)
	if err != nil {
		return nil, err
	}
	if len(hash) != domain.XAddrLength {
		return nil, ErrInvalidAddress
	}
	switch {
	case bytes.Equal(prefix, c.params.AddrPrefix):
		return payToPubKeyHashScript(hash)
	case bytes.Equal(prefix, c.params.ScriptPrefix):
		return payToScriptHashScript(hash)
	}
	return nil, ErrInvalidAddress
}

func payToPubKeyHashScript(hash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func payToScriptHashScript(hash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL).
		Script()
}
