package httpinterface

import (
	"encoding/hex"
	"time"

	"github.com/tdex-network/xbridge/internal/core/application/xbridge"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

type sendOrderRequest struct {
	From         string `json:"from"`
	FromCurrency string `json:"from_currency"`
	FromAmount   uint64 `json:"from_amount"`
	To           string `json:"to"`
	ToCurrency   string `json:"to_currency"`
	ToAmount     uint64 `json:"to_amount"`
}

type sendOrderResponse struct {
	ID string `json:"id"`
}

type acceptOrderRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type cancelOrderRequest struct {
	Reason *int `json:"reason,omitempty"`
}

type addWebhookRequest struct {
	Event    string `json:"event"`
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret,omitempty"`
}

type addWebhookResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type reasonInfo struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
}

func newReasonInfo(reason domain.CancelReason) *reasonInfo {
	if reason == domain.ReasonUnknown {
		return nil
	}
	return &reasonInfo{int(reason), reason.String()}
}

type legInfo struct {
	Address  string `json:"address"`
	Currency string `json:"currency"`
	Amount   uint64 `json:"amount"`
}

type orderInfo struct {
	ID          string      `json:"id"`
	Role        string      `json:"role"`
	Local       bool        `json:"local"`
	State       string      `json:"state"`
	Reason      *reasonInfo `json:"reason,omitempty"`
	From        legInfo     `json:"from"`
	To          legInfo     `json:"to"`
	Hub         string      `json:"hub,omitempty"`
	Created     time.Time   `json:"created"`
	Updated     time.Time   `json:"updated"`
	Deadline    *time.Time  `json:"deadline,omitempty"`
	LockTime    uint32      `json:"lock_time,omitempty"`
	DepositTxID string      `json:"deposit_txid,omitempty"`
	PaymentTxID string      `json:"payment_txid,omitempty"`
	RefundTxID  string      `json:"refund_txid,omitempty"`
}

func newOrderInfo(d *domain.TransactionDescr) orderInfo {
	info := orderInfo{
		ID:          d.ID,
		Role:        d.Role.String(),
		Local:       d.Local,
		State:       d.State.String(),
		Reason:      newReasonInfo(d.Reason),
		From:        legInfo{d.From, d.FromCurrency, d.FromAmount},
		To:          legInfo{d.To, d.ToCurrency, d.ToAmount},
		Hub:         hex.EncodeToString(d.HubAddress),
		Created:     d.Created,
		Updated:     d.Updated,
		LockTime:    d.LockTime,
		DepositTxID: d.BinTxID,
		PaymentTxID: d.PayTxID,
		RefundTxID:  d.RefTxID,
	}
	if !d.Deadline.IsZero() {
		deadline := d.Deadline
		info.Deadline = &deadline
	}
	return info
}

func newOrderInfoList(descrs []*domain.TransactionDescr) []orderInfo {
	list := make([]orderInfo, 0, len(descrs))
	for _, d := range descrs {
		list = append(list, newOrderInfo(d))
	}
	return list
}

type memberInfo struct {
	Session        string `json:"session"`
	Source         string `json:"source"`
	SourceCurrency string `json:"source_currency"`
	SourceAmount   uint64 `json:"source_amount"`
	Dest           string `json:"dest"`
	DestCurrency   string `json:"dest_currency"`
	DestAmount     uint64 `json:"dest_amount"`
	DepositTxID    string `json:"deposit_txid,omitempty"`
}

func newMemberInfo(m domain.TransactionMember) *memberInfo {
	if m.IsEmpty() {
		return nil
	}
	return &memberInfo{
		Session:        hex.EncodeToString(m.Session),
		Source:         m.Source,
		SourceCurrency: m.SourceCurrency,
		SourceAmount:   m.SourceAmount,
		Dest:           m.Dest,
		DestCurrency:   m.DestCurrency,
		DestAmount:     m.DestAmount,
		DepositTxID:    m.BinTxID,
	}
}

type hubTransactionInfo struct {
	ID      string      `json:"id"`
	State   string      `json:"state"`
	Reason  *reasonInfo `json:"reason,omitempty"`
	Created time.Time   `json:"created"`
	Updated time.Time   `json:"updated"`
	A       *memberInfo `json:"a"`
	B       *memberInfo `json:"b,omitempty"`
}

func newHubTransactionInfoList(txs []*domain.Transaction) []hubTransactionInfo {
	list := make([]hubTransactionInfo, 0, len(txs))
	for _, tx := range txs {
		list = append(list, hubTransactionInfo{
			ID:      tx.ID,
			State:   tx.State.String(),
			Reason:  newReasonInfo(tx.Reason),
			Created: tx.Created,
			Updated: tx.Updated,
			A:       newMemberInfo(tx.A),
			B:       newMemberInfo(tx.B),
		})
	}
	return list
}

type hubTransactionsResponse struct {
	Pending []hubTransactionInfo `json:"pending"`
	Active  []hubTransactionInfo `json:"active"`
	History []hubTransactionInfo `json:"history"`
}

func newHubTransactionsResponse(txs *xbridge.HubTransactions) hubTransactionsResponse {
	return hubTransactionsResponse{
		Pending: newHubTransactionInfoList(txs.Pending),
		Active:  newHubTransactionInfoList(txs.Active),
		History: newHubTransactionInfoList(txs.History),
	}
}

type addressBookEntryInfo struct {
	Currency string `json:"currency"`
	Name     string `json:"name"`
	Address  string `json:"address"`
}

func newAddressBookInfo(entries []domain.AddressBookEntry) []addressBookEntryInfo {
	list := make([]addressBookEntryInfo, 0, len(entries))
	for _, e := range entries {
		list = append(list, addressBookEntryInfo{e.Currency, e.Name, e.Address})
	}
	return list
}
