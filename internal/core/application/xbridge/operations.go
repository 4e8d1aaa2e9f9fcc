package xbridge

import (
	"context"
	"errors"

	"github.com/tdex-network/xbridge/internal/core/application/session"
	"github.com/tdex-network/xbridge/internal/core/domain"
)

// HubTransactions lists the transactions the exchange of the node is
// matching or matched.
type HubTransactions struct {
	Pending []*domain.Transaction
	Active  []*domain.Transaction
	History []*domain.Transaction
}

// SendXBridgeTransaction creates a new order selling fromAmount of
// fromCurrency for toAmount of toCurrency and returns its id.
func (s *Service) SendXBridgeTransaction(
	ctx context.Context,
	from, fromCurrency string, fromAmount uint64,
	to, toCurrency string, toAmount uint64,
) (string, error) {
	sess, err := s.session(fromCurrency)
	if err != nil {
		return "", err
	}
	return sess.SendXBridgeTransaction(
		ctx, from, fromCurrency, fromAmount, to, toCurrency, toAmount,
	)
}

// AcceptXBridgeTransaction takes the open order with the given id, paying
// from the address from and receiving to the address to.
func (s *Service) AcceptXBridgeTransaction(ctx context.Context, id, from, to string) error {
	d, _, err := s.repo.TransactionDescrRepository().GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if d.Local {
		return session.ErrNotPending
	}
	sess, err := s.session(d.ToCurrency)
	if err != nil {
		return err
	}
	return sess.AcceptXBridgeTransaction(ctx, id, from, to)
}

// CancelXBridgeTransaction cancels a local swap, or rolls it back if funds
// were already deposited.
func (s *Service) CancelXBridgeTransaction(
	ctx context.Context, id string, reason domain.CancelReason,
) error {
	sess, err := s.localSession(ctx, id)
	if err != nil {
		return err
	}
	return sess.CancelOrRollbackTransaction(ctx, id, reason)
}

// RollbackXBridgeTransaction broadcasts the refund of the deposit of a local
// swap.
func (s *Service) RollbackXBridgeTransaction(ctx context.Context, id string) error {
	sess, err := s.localSession(ctx, id)
	if err != nil {
		return err
	}
	return sess.RollbackTransaction(ctx, id)
}

// PendingTransactions returns the local orders not matched yet together with
// the open orders of other nodes.
func (s *Service) PendingTransactions(ctx context.Context) ([]*domain.TransactionDescr, error) {
	return s.repo.TransactionDescrRepository().ListTransactions(ctx, domain.TablePending)
}

// ActiveTransactions returns the swaps in progress.
func (s *Service) ActiveTransactions(ctx context.Context) ([]*domain.TransactionDescr, error) {
	return s.repo.TransactionDescrRepository().ListTransactions(ctx, domain.TableActive)
}

// HistoricTransactions returns the local swaps that reached a terminal state.
func (s *Service) HistoricTransactions(ctx context.Context) ([]*domain.TransactionDescr, error) {
	return s.repo.SwapHistoryRepository().ListTransactions(ctx)
}

// Transaction looks up a swap among the live and the historic ones.
func (s *Service) Transaction(ctx context.Context, id string) (*domain.TransactionDescr, error) {
	d, _, err := s.repo.TransactionDescrRepository().GetTransaction(ctx, id)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, err
	}
	return s.repo.SwapHistoryRepository().GetTransaction(ctx, id)
}

func (s *Service) AddressBook() []domain.AddressBookEntry {
	return s.addressBook.list()
}

func (s *Service) HubTransactions() (*HubTransactions, error) {
	if s.exchange == nil {
		return nil, ErrNotHub
	}
	return &HubTransactions{
		Pending: s.exchange.PendingTransactions(),
		Active:  s.exchange.Transactions(),
		History: s.exchange.TransactionsHistory(),
	}, nil
}

// HubTransaction returns the hub view of the transaction with the given id.
func (s *Service) HubTransaction(id string) (*domain.Transaction, error) {
	if s.exchange == nil {
		return nil, ErrNotHub
	}
	return s.exchange.Transaction(id)
}

func (s *Service) IsHub() bool {
	return s.exchange != nil
}

// IsHistoricState returns whether swaps in the given state belong to the
// history.
func (s *Service) IsHistoricState(state domain.State) bool {
	return state.IsHistoric()
}

// Currencies returns the currencies served by the node, sorted.
func (s *Service) Currencies() []string {
	return append([]string(nil), s.currencies...)
}

func (s *Service) localSession(ctx context.Context, id string) (*session.Session, error) {
	d, _, err := s.repo.TransactionDescrRepository().GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Local {
		return nil, session.ErrNotLocal
	}
	sess, ok := s.sessionByAddress(d.SessionAddress)
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}
