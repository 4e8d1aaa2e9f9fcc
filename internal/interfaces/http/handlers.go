package httpinterface

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tdex-network/xbridge/internal/core/application/pubsub"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

const maxBodySize = 1 << 16

type handler struct {
	xbridge  XBridgeService
	webhooks WebhookService
}

func (h *handler) handlePOSTOrder(w http.ResponseWriter, r *http.Request) {
	var req sendOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	id, err := h.xbridge.SendXBridgeTransaction(
		r.Context(),
		req.From, req.FromCurrency, req.FromAmount,
		req.To, req.ToCurrency, req.ToAmount,
	)
	if err != nil {
		writeError(w, err, errorStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, sendOrderResponse{id})
}

func (h *handler) handleGETOrders(w http.ResponseWriter, r *http.Request) {
	var (
		descrs []*domain.TransactionDescr
		err    error
	)
	switch table := r.URL.Query().Get("table"); table {
	case "", "pending":
		descrs, err = h.xbridge.PendingTransactions(r.Context())
	case "active":
		descrs, err = h.xbridge.ActiveTransactions(r.Context())
	case "history":
		descrs, err = h.xbridge.HistoricTransactions(r.Context())
	default:
		writeError(w, fmt.Errorf("unknown table %s", table), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newOrderInfoList(descrs))
}

func (h *handler) handleGETOrder(w http.ResponseWriter, r *http.Request) {
	d, err := h.xbridge.Transaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, newOrderInfo(d))
}

func (h *handler) handlePOSTAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.xbridge.AcceptXBridgeTransaction(r.Context(), id, req.From, req.To); err != nil {
		writeError(w, err, errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handlePOSTCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
	}
	reason := domain.ReasonRPCRequest
	if req.Reason != nil {
		reason = domain.CancelReason(*req.Reason)
	}

	id := mux.Vars(r)["id"]
	if err := h.xbridge.CancelXBridgeTransaction(r.Context(), id, reason); err != nil {
		writeError(w, err, errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handlePOSTRollback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.xbridge.RollbackXBridgeTransaction(r.Context(), id); err != nil {
		writeError(w, err, errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleGETAddressBook(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newAddressBookInfo(h.xbridge.AddressBook()))
}

func (h *handler) handleGETHubTransactions(w http.ResponseWriter, _ *http.Request) {
	txs, err := h.xbridge.HubTransactions()
	if err != nil {
		writeError(w, err, errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, newHubTransactionsResponse(txs))
}

func (h *handler) handlePOSTWebhook(w http.ResponseWriter, r *http.Request) {
	var req addWebhookRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	id, err := h.webhooks.AddWebhook(r.Context(), pubsub.Webhook{
		Event:    req.Event,
		Endpoint: req.Endpoint,
		Secret:   req.Secret,
	})
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, addWebhookResponse{id})
}

func (h *handler) handleGETWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.webhooks.ListWebhooks(r.Context(), r.URL.Query().Get("event"))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if hooks == nil {
		hooks = []pubsub.WebhookInfo{}
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *handler) handleDELETEWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.webhooks.RemoveWebhook(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSON(w, status, errorResponse{err.Error()})
}
