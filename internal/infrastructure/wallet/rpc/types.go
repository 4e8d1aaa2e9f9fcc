package rpc

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Response shapes of the daemon calls. Amounts are expressed in whole coins.

type listUnspentResult struct {
	TxID          string          `json:"txid"`
	Vout          uint32          `json:"vout"`
	Address       string          `json:"address"`
	ScriptPubKey  string          `json:"scriptPubKey"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
	Spendable     *bool           `json:"spendable,omitempty"`
}

type outpoint struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

type rawTransactionResult struct {
	TxID          string `json:"txid"`
	Hex           string `json:"hex"`
	Confirmations int64  `json:"confirmations"`
}

type scriptPubKeyResult struct {
	Hex       string   `json:"hex"`
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

type txOutResult struct {
	Value         decimal.Decimal    `json:"value"`
	Confirmations int64              `json:"confirmations"`
	ScriptPubKey  scriptPubKeyResult `json:"scriptPubKey"`
}

type voutResult struct {
	N            uint32             `json:"n"`
	Value        decimal.Decimal    `json:"value"`
	ScriptPubKey scriptPubKeyResult `json:"scriptPubKey"`
}

type decodedTransactionResult struct {
	TxID     string       `json:"txid"`
	LockTime uint32       `json:"locktime"`
	Vout     []voutResult `json:"vout"`
}

type signRawTransactionResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
}

type walletTransactionResult struct {
	TxID          string `json:"txid"`
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
}

type addressGroupingEntry []json.RawMessage
