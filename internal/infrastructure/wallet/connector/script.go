package connector

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

// CreateDepositUnlockScript returns the redeem script of a deposit.
//
//	OP_IF
//	    <lockTime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <hash160(myPubKey)> OP_EQUALVERIFY OP_CHECKSIG
//	OP_ELSE
//	    OP_DUP OP_HASH160 <hash160(otherPubKey)> OP_EQUALVERIFY OP_CHECKSIGVERIFY
//	    OP_SIZE 33 OP_EQUALVERIFY OP_HASH160 <xHash> OP_EQUAL
//	OP_ENDIF
//
// The depositor can take the funds back once lockTime is reached, the
// counterparty can claim them at any time by revealing the 33 bytes
// preimage of xHash.
func (c *Connector) CreateDepositUnlockScript(
	myPubKey, otherPubKey, xHash []byte, lockTime uint32,
) ([]byte, error) {
	if len(myPubKey) != domain.PubKeyLength || len(otherPubKey) != domain.PubKeyLength {
		return nil, ErrInvalidKey
	}
	if len(xHash) != domain.XAddrLength {
		return nil, domain.ErrInvalidSecretHash
	}
	if lockTime == 0 {
		return nil, ErrInvalidLockTime
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddInt64(int64(lockTime)).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(myPubKey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		AddOp(txscript.OP_ELSE).
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(otherPubKey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIGVERIFY).
		AddOp(txscript.OP_SIZE).
		AddInt64(domain.PubKeyLength).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_HASH160).
		AddData(xHash).
		AddOp(txscript.OP_EQUAL).
		AddOp(txscript.OP_ENDIF).
		Script()
}

func refundSigScript(sig, pubKey, innerScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubKey).
		AddOp(txscript.OP_TRUE).
		AddData(innerScript).
		Script()
}

func paymentSigScript(xPubKey, sig, pubKey, innerScript []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(xPubKey).
		AddData(sig).
		AddData(pubKey).
		AddOp(txscript.OP_FALSE).
		AddData(innerScript).
		Script()
}

// depositPkScript returns the P2SH output script of a redeem script.
func depositPkScript(innerScript []byte) ([]byte, error) {
	return payToScriptHashScript(btcutil.Hash160(innerScript))
}

// DepositScript holds the terms committed to by a deposit redeem script.
type DepositScript struct {
	LockTime    uint32
	RefundKeyID []byte
	ClaimKeyID  []byte
	XHash       []byte
}

type scriptToken struct {
	op   byte
	data []byte
}

// DecodeDepositScript parses a redeem script built by
// CreateDepositUnlockScript.
func DecodeDepositScript(script []byte) (*DepositScript, error) {
	tokens := make([]scriptToken, 0, 21)
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		tokens = append(tokens, scriptToken{tokenizer.Opcode(), tokenizer.Data()})
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDepositScript, err)
	}

	const placeholder = 0xff
	template := []byte{
		txscript.OP_IF, placeholder, txscript.OP_CHECKLOCKTIMEVERIFY, txscript.OP_DROP,
		txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_DATA_20,
		txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG,
		txscript.OP_ELSE,
		txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_DATA_20,
		txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIGVERIFY,
		txscript.OP_SIZE, txscript.OP_DATA_1, txscript.OP_EQUALVERIFY,
		txscript.OP_HASH160, txscript.OP_DATA_20, txscript.OP_EQUAL,
		txscript.OP_ENDIF,
	}
	if len(tokens) != len(template) {
		return nil, ErrDepositScript
	}
	for i, op := range template {
		if op != placeholder && tokens[i].op != op {
			return nil, ErrDepositScript
		}
	}
	if len(tokens[16].data) != 1 || tokens[16].data[0] != domain.PubKeyLength {
		return nil, ErrDepositScript
	}

	lockTime, err := decodeScriptInt(tokens[1])
	if err != nil || lockTime <= 0 || lockTime > math.MaxUint32 {
		return nil, ErrInvalidLockTime
	}

	return &DepositScript{
		LockTime:    uint32(lockTime),
		RefundKeyID: tokens[6].data,
		ClaimKeyID:  tokens[12].data,
		XHash:       tokens[19].data,
	}, nil
}

func decodeScriptInt(t scriptToken) (int64, error) {
	if t.op >= txscript.OP_1 && t.op <= txscript.OP_16 {
		return int64(t.op - (txscript.OP_1 - 1)), nil
	}
	if t.op > txscript.OP_DATA_5 || t.op < txscript.OP_DATA_1 {
		return 0, ErrInvalidLockTime
	}
	return decodeScriptNum(t.data, maxLockTimeLen)
}

// maxLockTimeLen is the size limit CHECKLOCKTIMEVERIFY puts on its operand.
const maxLockTimeLen = 5

// decodeScriptNum parses a minimally encoded little-endian script number
// whose most significant bit is the sign.
func decodeScriptNum(data []byte, maxLen int) (int64, error) {
	if len(data) > maxLen {
		return 0, fmt.Errorf(
			"%w: script number is %d bytes, max %d", ErrInvalidLockTime, len(data), maxLen,
		)
	}
	if len(data) == 0 {
		return 0, nil
	}
	last := data[len(data)-1]
	if last&0x7f == 0 && (len(data) == 1 || data[len(data)-2]&0x80 == 0) {
		return 0, fmt.Errorf("%w: script number is not minimally encoded", ErrInvalidLockTime)
	}

	var n int64
	for i, b := range data {
		n |= int64(b) << uint(8*i)
	}
	if last&0x80 != 0 {
		n &= ^(int64(0x80) << uint(8*(len(data)-1)))
		return -n, nil
	}
	return n, nil
}
