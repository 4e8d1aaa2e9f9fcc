// Package httpinterface exposes the operator API of the daemon as JSON over
// HTTP.
package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/application/pubsub"
	"github.com/tdex-network/xbridge/internal/core/application/xbridge"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/interfaces"
)

const shutdownTimeout = 5 * time.Second

// XBridgeService is the subset of the application used by the operator API.
type XBridgeService interface {
	SendXBridgeTransaction(
		ctx context.Context,
		from, fromCurrency string, fromAmount uint64,
		to, toCurrency string, toAmount uint64,
	) (string, error)
	AcceptXBridgeTransaction(ctx context.Context, id, from, to string) error
	CancelXBridgeTransaction(ctx context.Context, id string, reason domain.CancelReason) error
	RollbackXBridgeTransaction(ctx context.Context, id string) error
	PendingTransactions(ctx context.Context) ([]*domain.TransactionDescr, error)
	ActiveTransactions(ctx context.Context) ([]*domain.TransactionDescr, error)
	HistoricTransactions(ctx context.Context) ([]*domain.TransactionDescr, error)
	Transaction(ctx context.Context, id string) (*domain.TransactionDescr, error)
	AddressBook() []domain.AddressBookEntry
	HubTransactions() (*xbridge.HubTransactions, error)
}

// WebhookService manages the webhooks notified of the swap events.
type WebhookService interface {
	AddWebhook(ctx context.Context, webhook pubsub.Webhook) (string, error)
	RemoveWebhook(ctx context.Context, id string) error
	ListWebhooks(ctx context.Context, event string) ([]pubsub.WebhookInfo, error)
}

type server struct {
	addr     string
	xbridge  XBridgeService
	webhooks WebhookService
	http     *http.Server
	listener net.Listener
}

// NewServer returns the operator API listening on addr. webhooks can be nil,
// in which case the webhook routes are not served.
func NewServer(
	addr string, xbridgeSvc XBridgeService, webhookSvc WebhookService,
) (interfaces.Service, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing listening address")
	}
	if xbridgeSvc == nil {
		return nil, fmt.Errorf("missing xbridge service")
	}

	s := &server{
		addr:     addr,
		xbridge:  xbridgeSvc,
		webhooks: webhookSvc,
	}
	s.http = &http.Server{
		Handler:           NewRouter(xbridgeSvc, webhookSvc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// NewRouter returns the handler of the operator API.
func NewRouter(xbridgeSvc XBridgeService, webhookSvc WebhookService) http.Handler {
	h := &handler{xbridge: xbridgeSvc, webhooks: webhookSvc}

	r := mux.NewRouter()
	r.HandleFunc("/v1/orders", h.handlePOSTOrder).Methods("POST")
	r.HandleFunc("/v1/orders", h.handleGETOrders).Methods("GET")
	r.HandleFunc("/v1/orders/{id}", h.handleGETOrder).Methods("GET")
	r.HandleFunc("/v1/orders/{id}/accept", h.handlePOSTAccept).Methods("POST")
	r.HandleFunc("/v1/orders/{id}/cancel", h.handlePOSTCancel).Methods("POST")
	r.HandleFunc("/v1/orders/{id}/rollback", h.handlePOSTRollback).Methods("POST")
	r.HandleFunc("/v1/addressbook", h.handleGETAddressBook).Methods("GET")
	r.HandleFunc("/v1/hub/transactions", h.handleGETHubTransactions).Methods("GET")
	if webhookSvc != nil {
		r.HandleFunc("/v1/webhooks", h.handlePOSTWebhook).Methods("POST")
		r.HandleFunc("/v1/webhooks", h.handleGETWebhooks).Methods("GET")
		r.HandleFunc("/v1/webhooks/{id}", h.handleDELETEWebhook).Methods("DELETE")
	}
	r.Use(loggingMiddleware)
	return r
}

func (s *server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = lis

	go func() {
		if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("operator interface: server stopped")
		}
	}()

	log.Infof("operator interface: listening on %s", lis.Addr())
	return nil
}

func (s *server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("operator interface: failed to shutdown server")
	}
	log.Info("operator interface: stopped")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("operator interface: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
