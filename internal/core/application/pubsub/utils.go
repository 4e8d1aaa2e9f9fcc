package pubsub

import (
	"time"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

func getTransactionPayload(d *domain.TransactionDescr) map[string]interface{} {
	payload := map[string]interface{}{
		"id":    d.ID,
		"role":  d.Role.String(),
		"local": d.Local,
		"state": d.State.String(),
		"from": map[string]interface{}{
			"address":  d.From,
			"currency": d.FromCurrency,
			"amount":   d.FromAmount,
		},
		"to": map[string]interface{}{
			"address":  d.To,
			"currency": d.ToCurrency,
			"amount":   d.ToAmount,
		},
		"created": d.Created.Format(time.RFC3339),
		"updated": d.Updated.Format(time.RFC3339),
	}
	if d.Reason != domain.ReasonUnknown {
		payload["reason"] = getReasonPayload(d.Reason)
	}
	if d.BinTxID != "" {
		payload["deposit_txid"] = d.BinTxID
	}
	if d.PayTxID != "" {
		payload["payment_txid"] = d.PayTxID
	}
	if d.RefTxID != "" {
		payload["refund_txid"] = d.RefTxID
	}
	return payload
}

func getReasonPayload(reason domain.CancelReason) map[string]interface{} {
	return map[string]interface{}{
		"code":  int(reason),
		"label": reason.String(),
	}
}

func getAddressBookEntryPayload(entry domain.AddressBookEntry) map[string]interface{} {
	return map[string]interface{}{
		"currency": entry.Currency,
		"name":     entry.Name,
		"address":  entry.Address,
	}
}
