package connector

import "github.com/btcsuite/btcd/wire"

const (
	P2PKH = iota
	P2SH
	// P2SHDeposit is the spend of a deposit through either branch of its
	// redeem script.
	P2SHDeposit
)

var (
	scriptSigSizeByScriptType = map[int]int{
		P2PKH: 108, // len + opcode + sig + opcode + pubkey
		// len + xpubkey push + sig push + pubkey push + branch opcode +
		// redeem script push (~120 bytes)
		P2SHDeposit: 1 + 34 + 74 + 34 + 1 + 123,
	}
	scriptPubKeySizeByScriptType = map[int]int{
		P2PKH: 26, // len + opcodes (3) + hash(pubkey) + opcodes (2)
		P2SH:  24, // len + opcodes (2) + hash(script) + opcode
	}
)

// EstimateTxSize makes an estimation of the size of a legacy transaction
// given the types of its inputs and outputs.
func EstimateTxSize(inScriptTypes, outScriptTypes []int) int {
	// hash + index + sequence
	inBaseSize := 40
	insSize := 0
	for _, scriptType := range inScriptTypes {
		insSize += inBaseSize + scriptSigSizeByScriptType[scriptType]
	}

	// value
	outBaseSize := 8
	outsSize := 0
	for _, scriptType := range outScriptTypes {
		outsSize += outBaseSize + scriptPubKeySizeByScriptType[scriptType]
	}

	// version + locktime
	return 8 +
		wire.VarIntSerializeSize(uint64(len(inScriptTypes))) +
		wire.VarIntSerializeSize(uint64(len(outScriptTypes))) +
		insSize + outsSize
}

func repeatType(scriptType, n int) []int {
	types := make([]int, n)
	for i := range types {
		types[i] = scriptType
	}
	return types
}

func (c *Connector) feeForSize(size int) uint64 {
	fee := uint64(size) * c.params.FeePerByte
	if fee < c.params.MinTxFee {
		return c.params.MinTxFee
	}
	return fee
}

// MinTxFee1 is the fee of a deposit spending the given number of wallet
// inputs. The first output is the P2SH deposit, the others are P2PKH.
func (c *Connector) MinTxFee1(inputs, outputs int) uint64 {
	outs := repeatType(P2PKH, outputs)
	if outputs > 0 {
		outs[0] = P2SH
	}
	return c.feeForSize(EstimateTxSize(repeatType(P2PKH, inputs), outs))
}

// MinTxFee2 is the fee of a refund or a payment spending deposits.
func (c *Connector) MinTxFee2(inputs, outputs int) uint64 {
	return c.feeForSize(EstimateTxSize(
		repeatType(P2SHDeposit, inputs), repeatType(P2PKH, outputs),
	))
}

func (c *Connector) IsDustAmount(amount uint64) bool {
	return amount < c.params.DustAmount
}
