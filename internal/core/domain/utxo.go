package domain

import "fmt"

// Outpoint identifies an output of a transaction.
type Outpoint struct {
	TxID string
	Vout uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// Utxo is an unspent output owned by the wallet of a chain.
type Utxo struct {
	TxID          string
	Vout          uint32
	Amount        uint64
	Address       string
	ScriptPubKey  []byte
	Confirmations int64
}

func (u Utxo) Outpoint() Outpoint {
	return Outpoint{u.TxID, u.Vout}
}

// Key uniquely identifies the utxo among those of a chain.
func (u Utxo) Key() string {
	return u.Outpoint().String()
}

// TotalAmount returns the sum of the amounts of the given utxos.
func TotalAmount(utxos []Utxo) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Amount
	}
	return total
}
