package httpinterface_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/xbridge/internal/core/application/pubsub"
	"github.com/tdex-network/xbridge/internal/core/application/xbridge"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

type mockXBridgeService struct {
	mock.Mock
}

func (m *mockXBridgeService) SendXBridgeTransaction(
	ctx context.Context,
	from, fromCurrency string, fromAmount uint64,
	to, toCurrency string, toAmount uint64,
) (string, error) {
	args := m.Called(ctx, from, fromCurrency, fromAmount, to, toCurrency, toAmount)
	return args.String(0), args.Error(1)
}

func (m *mockXBridgeService) AcceptXBridgeTransaction(
	ctx context.Context, id, from, to string,
) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *mockXBridgeService) CancelXBridgeTransaction(
	ctx context.Context, id string, reason domain.CancelReason,
) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockXBridgeService) RollbackXBridgeTransaction(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockXBridgeService) PendingTransactions(
	ctx context.Context,
) ([]*domain.TransactionDescr, error) {
	args := m.Called(ctx)
	var res []*domain.TransactionDescr
	if a := args.Get(0); a != nil {
		res = a.([]*domain.TransactionDescr)
	}
	return res, args.Error(1)
}

func (m *mockXBridgeService) ActiveTransactions(
	ctx context.Context,
) ([]*domain.TransactionDescr, error) {
	args := m.Called(ctx)
	var res []*domain.TransactionDescr
	if a := args.Get(0); a != nil {
		res = a.([]*domain.TransactionDescr)
	}
	return res, args.Error(1)
}

func (m *mockXBridgeService) HistoricTransactions(
	ctx context.Context,
) ([]*domain.TransactionDescr, error) {
	args := m.Called(ctx)
	var res []*domain.TransactionDescr
	if a := args.Get(0); a != nil {
		res = a.([]*domain.TransactionDescr)
	}
	return res, args.Error(1)
}

func (m *mockXBridgeService) Transaction(
	ctx context.Context, id string,
) (*domain.TransactionDescr, error) {
	args := m.Called(ctx, id)
	var res *domain.TransactionDescr
	if a := args.Get(0); a != nil {
		res = a.(*domain.TransactionDescr)
	}
	return res, args.Error(1)
}

func (m *mockXBridgeService) AddressBook() []domain.AddressBookEntry {
	args := m.Called()
	return args.Get(0).([]domain.AddressBookEntry)
}

func (m *mockXBridgeService) HubTransactions() (*xbridge.HubTransactions, error) {
	args := m.Called()
	var res *xbridge.HubTransactions
	if a := args.Get(0); a != nil {
		res = a.(*xbridge.HubTransactions)
	}
	return res, args.Error(1)
}

type mockWebhookService struct {
	mock.Mock
}

func (m *mockWebhookService) AddWebhook(
	ctx context.Context, webhook pubsub.Webhook,
) (string, error) {
	args := m.Called(ctx, webhook)
	return args.String(0), args.Error(1)
}

func (m *mockWebhookService) RemoveWebhook(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockWebhookService) ListWebhooks(
	ctx context.Context, event string,
) ([]pubsub.WebhookInfo, error) {
	args := m.Called(ctx, event)
	var res []pubsub.WebhookInfo
	if a := args.Get(0); a != nil {
		res = a.([]pubsub.WebhookInfo)
	}
	return res, args.Error(1)
}
