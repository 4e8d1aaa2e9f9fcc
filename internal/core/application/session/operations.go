package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/pkg/packet"
)

// SendXBridgeTransaction creates a new order selling fromAmount of the
// currency of the session, locks the coins funding it and broadcasts it to
// the hubs. It returns the id of the order.
func (s *Session) SendXBridgeTransaction(
	ctx context.Context,
	from, fromCurrency string, fromAmount uint64,
	to, toCurrency string, toAmount uint64,
) (string, error) {
	if fromCurrency != s.currency {
		return "", fmt.Errorf("%w %s", ErrUnknownCurrency, fromCurrency)
	}
	fromConn, err := s.connector(fromCurrency)
	if err != nil {
		return "", err
	}
	toConn, err := s.connector(toCurrency)
	if err != nil {
		return "", err
	}
	if !fromConn.IsValidAddress(from) || !toConn.IsValidAddress(to) {
		return "", ErrInvalidAddress
	}
	if fromConn.IsDustAmount(fromAmount) || toConn.IsDustAmount(toAmount) {
		return "", ports.ErrDust
	}

	d, err := domain.NewTransactionDescr(
		from, fromCurrency, fromAmount, to, toCurrency, toAmount,
	)
	if err != nil {
		return "", err
	}
	if d.FromXAddr, err = fromConn.ToXAddr(from); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if d.ToXAddr, err = toConn.ToXAddr(to); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}

	coins, err := s.reserveCoins(ctx, fromConn, fromAmount)
	if err != nil {
		return "", err
	}
	d.UsedCoins = coins
	d.SessionAddress = append([]byte(nil), s.address...)

	if err := s.descrs.AddTransaction(ctx, domain.TablePending, d); err != nil {
		s.releaseCoins(ctx, d)
		return "", err
	}

	log.WithField("id", d.ID).Infof(
		"session %s: new order %s %d -> %s %d",
		s.currency, fromCurrency, fromAmount, toCurrency, toAmount,
	)
	s.broadcastOrder(ctx, d)
	s.notifier.TransactionStateChanged(d)
	return d.ID, nil
}

// AcceptXBridgeTransaction takes the open order with the given id. The
// session must serve the currency the order buys: from is the address
// paying it, to the one receiving the currency the order sells.
func (s *Session) AcceptXBridgeTransaction(
	ctx context.Context, id, from, to string,
) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, _, err := s.descrs.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if d.Local || d.State != domain.StatePending {
		return ErrNotPending
	}
	if len(d.HubAddress) == 0 {
		return ErrMissingHub
	}
	if d.ToCurrency != s.currency {
		return fmt.Errorf("%w %s", ErrUnknownCurrency, d.ToCurrency)
	}

	// The acceptor pays what the order buys.
	fromConn, err := s.connector(d.ToCurrency)
	if err != nil {
		return err
	}
	toConn, err := s.connector(d.FromCurrency)
	if err != nil {
		return err
	}
	if !fromConn.IsValidAddress(from) || !toConn.IsValidAddress(to) {
		return ErrInvalidAddress
	}
	fromXAddr, err := fromConn.ToXAddr(from)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	toXAddr, err := toConn.ToXAddr(to)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}

	coins, err := s.reserveCoins(ctx, fromConn, d.ToAmount)
	if err != nil {
		return err
	}

	if _, err := d.Accepting(from, to, fromXAddr, toXAddr); err != nil {
		s.unlockCoins(ctx, fromConn, coins)
		return err
	}
	d.UsedCoins = coins
	d.SessionAddress = append([]byte(nil), s.address...)
	if err := s.update(ctx, d); err != nil {
		s.unlockCoins(ctx, fromConn, coins)
		return err
	}
	s.notifier.TransactionStateChanged(d)

	s.send(ctx, d.HubAddress, &packet.TransactionAccepting{
		ID: d.ID,
		Terms: packet.Terms{
			Source:         d.From,
			SourceCurrency: d.FromCurrency,
			SourceAmount:   d.FromAmount,
			Dest:           d.To,
			DestCurrency:   d.ToCurrency,
			DestAmount:     d.ToAmount,
		},
	})
	return nil
}

// CancelOrRollbackTransaction stops a local swap, rolling it back if funds
// were already deposited, and tells the hub.
func (s *Session) CancelOrRollbackTransaction(
	ctx context.Context, id string, reason domain.CancelReason,
) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.localTransaction(ctx, id)
	if err != nil {
		return err
	}
	return s.cancelOrRollback(ctx, d, reason, true)
}

// RollbackTransaction broadcasts the refund of a local swap.
func (s *Session) RollbackTransaction(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.localTransaction(ctx, id)
	if err != nil {
		return err
	}
	if !d.HasDeposit() {
		return domain.ErrNotDeposited
	}
	if paymentSigned(d) {
		return domain.ErrSecretRevealed
	}
	if len(d.HubAddress) > 0 && d.State != domain.StateRollbackFailed {
		s.send(ctx, d.HubAddress, &packet.TransactionCancel{
			ID: d.ID, Reason: uint32(domain.ReasonUserRequest),
		})
	}
	return s.rollback(ctx, d, domain.ReasonUserRequest)
}

// SendListOfTransactions broadcasts again the unmatched orders of this
// session and, for a hub, the pending orders selling its currency.
func (s *Session) SendListOfTransactions(ctx context.Context) {
	pending, err := s.descrs.ListTransactions(ctx, domain.TablePending)
	if err != nil {
		log.WithError(err).Warn("session: failed to list pending swaps")
		return
	}
	for _, d := range pending {
		if !s.owns(d) || d.Role != domain.RoleA || d.FromCurrency != s.currency {
			continue
		}
		if d.State <= domain.StatePending && d.State.IsMainPath() {
			s.broadcastOrder(ctx, d)
		}
	}

	if !s.IsHub() {
		return
	}
	for _, tx := range s.exchange.PendingTransactions() {
		if tx.A.SourceCurrency == s.currency {
			s.broadcastPending(ctx, tx)
		}
	}
}

// CheckFinishedTransactions finishes the confirmed swaps of the hub whose
// payments reached the chains.
func (s *Session) CheckFinishedTransactions(ctx context.Context) {
	if !s.IsHub() {
		return
	}
	for _, tx := range s.exchange.FinishedTransactions() {
		if tx.A.SourceCurrency == s.currency {
			s.checkFinished(ctx, tx)
		}
	}
}

// EraseExpiredPendingTransactions times out the swaps of this session that
// outlived their TTL: unmatched orders expire, open orders of others are
// forgotten and matched swaps are cancelled or rolled back. A hub also
// drops its stale orders and cancels the joined swaps past their deadline.
func (s *Session) EraseExpiredPendingTransactions(ctx context.Context, now time.Time) {
	pending, err := s.descrs.ListTransactions(ctx, domain.TablePending)
	if err != nil {
		log.WithError(err).Warn("session: failed to list pending swaps")
		return
	}
	for _, d := range pending {
		if !s.owns(d) {
			continue
		}
		s.withLock(ctx, d.ID, func(d *domain.TransactionDescr) error {
			return s.expirePending(ctx, d, now)
		})
	}

	active, err := s.descrs.ListTransactions(ctx, domain.TableActive)
	if err != nil {
		log.WithError(err).Warn("session: failed to list active swaps")
		return
	}
	deadline := now.Add(-s.expiryGrace)
	for _, d := range active {
		if !s.owns(d) || d.State == domain.StateRollbackFailed ||
			!d.IsExpired(deadline, s.pendingTTL) {
			continue
		}
		s.withLock(ctx, d.ID, func(d *domain.TransactionDescr) error {
			return s.expireActive(ctx, d)
		})
	}

	if !s.IsHub() {
		return
	}
	for _, tx := range s.exchange.ExpirePendingTransactions(now, s.currency) {
		log.WithField("id", tx.ID).Infof("hub %s: order dropped", s.currency)
		s.broadcast(ctx, &packet.TransactionDropped{
			ID: tx.ID, Reason: uint32(domain.ReasonTimeout),
		})
	}
	for _, tx := range s.exchange.ExpiredTransactions(now) {
		// Confirmed swaps are finished by CheckFinishedTransactions.
		if tx.A.SourceCurrency != s.currency || tx.State == domain.StateConfirmed {
			continue
		}
		if err := s.hubCancel(ctx, tx, domain.ReasonTimeout); err != nil {
			log.WithError(err).WithField("id", tx.ID).Warn("hub: failed to cancel expired swap")
		}
	}
}

func (s *Session) expirePending(
	ctx context.Context, d *domain.TransactionDescr, now time.Time,
) error {
	switch {
	case !d.Local:
		if now.Sub(d.Updated) > s.pendingTTL {
			return s.removeOpenOrder(ctx, d, domain.ReasonTimeout)
		}
	case d.State <= domain.StatePending && d.State.IsMainPath():
		if !d.IsExpired(now, s.pendingTTL) {
			return nil
		}
		if _, err := d.Expire(); err != nil {
			return err
		}
		s.finalize(ctx, d)
	case d.State == domain.StateAccepting:
		if now.Sub(d.Updated) > s.ttl {
			return s.cancelOrRollback(ctx, d, domain.ReasonTimeout, true)
		}
	}
	return nil
}

func (s *Session) expireActive(ctx context.Context, d *domain.TransactionDescr) error {
	if d.State == domain.StateRollbackFailed || d.State.IsTerminal() {
		return nil
	}
	if paymentSigned(d) {
		return s.settlePayment(ctx, d, domain.ReasonTimeout)
	}
	log.WithField("id", d.ID).Infof("session %s: swap %s timed out", s.currency, d.State)
	return s.cancelOrRollback(ctx, d, domain.ReasonTimeout, true)
}

// RetryFailedRollbacks broadcasts again the refunds that didn't make it to
// the chain, typically because the lock time was not reached yet.
func (s *Session) RetryFailedRollbacks(ctx context.Context) {
	active, err := s.descrs.ListTransactions(ctx, domain.TableActive)
	if err != nil {
		log.WithError(err).Warn("session: failed to list active swaps")
		return
	}
	for _, d := range active {
		if !s.owns(d) || d.State != domain.StateRollbackFailed {
			continue
		}
		s.withLock(ctx, d.ID, func(d *domain.TransactionDescr) error {
			if d.State != domain.StateRollbackFailed {
				return nil
			}
			return s.rollback(ctx, d, d.Reason)
		})
	}
}

// GetAddressBook broadcasts the labelled addresses of the wallet of the
// session and returns them.
func (s *Session) GetAddressBook(ctx context.Context) ([]domain.AddressBookEntry, error) {
	conn, err := s.connector(s.currency)
	if err != nil {
		return nil, err
	}
	entries, err := conn.RequestAddressBook(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	announce := &packet.AnnounceAddresses{
		Entries: make([]packet.AddressEntry, 0, len(entries)),
	}
	for _, e := range entries {
		if s.addressBook != nil {
			s.addressBook.AddEntry(e)
		}
		announce.Entries = append(announce.Entries, packet.AddressEntry{
			Currency: e.Currency,
			Name:     e.Name,
			Address:  e.Address,
		})
	}
	s.broadcast(ctx, announce)
	return entries, nil
}

// cancelOrRollback stops a local swap: it is cancelled if nothing was
// deposited, rolled back otherwise. A swap that already signed its payment
// can't be stopped anymore and the payment is settled instead.
func (s *Session) cancelOrRollback(
	ctx context.Context, d *domain.TransactionDescr,
	reason domain.CancelReason, notifyHub bool,
) error {
	if paymentSigned(d) {
		return s.settlePayment(ctx, d, reason)
	}
	if notifyHub && len(d.HubAddress) > 0 {
		s.send(ctx, d.HubAddress, &packet.TransactionCancel{
			ID: d.ID, Reason: uint32(reason),
		})
	}
	if d.HasDeposit() {
		return s.rollback(ctx, d, reason)
	}
	if _, err := d.Cancel(reason); err != nil {
		return err
	}
	s.finalize(ctx, d)
	return nil
}

// paymentSigned returns whether the swap signed the payment claiming the
// counterparty deposit. For the initiator that means the exchange secret is
// revealed as soon as the payment reaches the chain.
func paymentSigned(d *domain.TransactionDescr) bool {
	return d.State == domain.StateSigned || d.State == domain.StateCommited
}

// settlePayment pushes the payment of a swap that signed it: the swap is
// finished once the payment is confirmed, otherwise the payment is
// broadcast again. The deposit of the swap is refunded only if the
// counterparty deposit was spent by something else than the payment, the
// counterparty refund most likely.
func (s *Session) settlePayment(
	ctx context.Context, d *domain.TransactionDescr, reason domain.CancelReason,
) error {
	conn, err := s.connector(d.ToCurrency)
	if err != nil {
		return err
	}

	confirmations, err := conn.CheckTransaction(ctx, d.PayTxID)
	if err == nil {
		if confirmations <= 0 {
			return nil
		}
		if _, err := d.Finish(); err != nil {
			return err
		}
		log.WithField("id", d.ID).Infof(
			"session %s: payment %s confirmed", s.currency, d.PayTxID,
		)
		s.finalize(ctx, d)
		return nil
	}
	if !errors.Is(err, ports.ErrTxNotFound) {
		return err
	}

	if _, err := conn.SendRawTransaction(ctx, d.PayTx); err == nil {
		if d.State == domain.StateCommited {
			return nil
		}
		if _, err := d.Commit(); err != nil {
			return err
		}
		if err := s.update(ctx, d); err != nil {
			return err
		}
		s.notifier.TransactionStateChanged(d)
		return nil
	}

	_, err = conn.CheckDepositTx(ctx, d.OtherBinTxID, d.OtherInnerScript, d.ToAmount)
	if !errors.Is(err, ports.ErrBadDeposit) {
		return err
	}
	log.WithError(err).WithField("id", d.ID).Warnf(
		"session %s: counterparty deposit gone, rolling back", s.currency,
	)
	return s.rollback(ctx, d, reason)
}

// rollback broadcasts the pre-signed refund. If the chain refuses it, most
// likely because the lock time is not reached, the swap is kept in
// RollbackFailed and retried by the timer.
func (s *Session) rollback(
	ctx context.Context, d *domain.TransactionDescr, reason domain.CancelReason,
) error {
	conn, err := s.connector(d.FromCurrency)
	if err != nil {
		return err
	}

	if _, err := conn.SendRawTransaction(ctx, d.RefTx); err != nil {
		log.WithError(err).WithField("id", d.ID).Warnf(
			"session %s: failed to broadcast refund, will retry", s.currency,
		)
		if d.State == domain.StateRollbackFailed {
			return nil
		}
		if _, err := d.RollbackFailed(reason); err != nil {
			return err
		}
		if err := s.update(ctx, d); err != nil {
			return err
		}
		s.notifier.TransactionCancelled(d, reason)
		return nil
	}

	if _, err := d.Rollback(reason); err != nil {
		return err
	}
	log.WithField("id", d.ID).Infof("session %s: refund %s broadcast", s.currency, d.RefTxID)
	s.finalize(ctx, d)
	return nil
}

// finalize removes a swap that reached a terminal state from the live
// tables. Local swaps are archived and their coins released.
func (s *Session) finalize(ctx context.Context, d *domain.TransactionDescr) {
	if _, err := s.descrs.RemoveTransaction(ctx, d.ID); err != nil &&
		!errors.Is(err, domain.ErrTransactionNotFound) {
		log.WithError(err).WithField("id", d.ID).Warn("session: failed to remove swap")
	}

	if d.Local {
		if d.State != domain.StateFinished {
			s.releaseCoins(ctx, d)
		}
		if err := s.history.AddTransaction(ctx, d); err != nil {
			log.WithError(err).WithField("id", d.ID).Warn("session: failed to archive swap")
		}
		s.metrics.SwapTerminated(d.State.String())
	}

	log.WithFields(log.Fields{
		"id":     d.ID,
		"reason": d.Reason,
	}).Infof("session %s: swap %s", s.currency, d.State)

	if d.State == domain.StateFinished {
		s.notifier.TransactionStateChanged(d)
		return
	}
	s.notifier.TransactionCancelled(d, d.Reason)
}

func (s *Session) update(ctx context.Context, d *domain.TransactionDescr) error {
	return s.descrs.UpdateTransaction(ctx, d.ID, func(
		*domain.TransactionDescr,
	) (*domain.TransactionDescr, error) {
		return d, nil
	})
}

// reserveCoins selects and locks the coins funding a deposit of amount.
func (s *Session) reserveCoins(
	ctx context.Context, conn ports.WalletConnector, amount uint64,
) ([]domain.Utxo, error) {
	coins, _, err := conn.SelectCoins(ctx, amount+conn.MinTxFee2(1, 1))
	if err != nil {
		return nil, err
	}
	if err := conn.LockUnspent(ctx, coins, true); err != nil {
		return nil, err
	}
	return coins, nil
}

func (s *Session) releaseCoins(ctx context.Context, d *domain.TransactionDescr) {
	if len(d.UsedCoins) == 0 {
		return
	}
	conn, err := s.connector(d.FromCurrency)
	if err != nil {
		return
	}
	s.unlockCoins(ctx, conn, d.UsedCoins)
}

func (s *Session) unlockCoins(
	ctx context.Context, conn ports.WalletConnector, coins []domain.Utxo,
) {
	if err := conn.LockUnspent(ctx, coins, false); err != nil {
		log.WithError(err).Debugf("session %s: failed to unlock coins", s.currency)
	}
}

func (s *Session) broadcastOrder(ctx context.Context, d *domain.TransactionDescr) {
	s.broadcast(ctx, &packet.Transaction{
		ID: d.ID,
		Terms: packet.Terms{
			Source:         d.From,
			SourceCurrency: d.FromCurrency,
			SourceAmount:   d.FromAmount,
			Dest:           d.To,
			DestCurrency:   d.ToCurrency,
			DestAmount:     d.ToAmount,
		},
		Created: d.Created.Unix(),
	})
}

// owns returns whether the swap is handled by this session. Local swaps
// belong to the session they were created or accepted on, open orders of
// others to the session of the currency they buy.
func (s *Session) owns(d *domain.TransactionDescr) bool {
	if d.Local {
		return bytes.Equal(d.SessionAddress, s.address)
	}
	return d.ToCurrency == s.currency
}

func (s *Session) localTransaction(
	ctx context.Context, id string,
) (*domain.TransactionDescr, error) {
	d, _, err := s.descrs.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Local {
		return nil, ErrNotLocal
	}
	return d, nil
}

// withLock reloads the swap under its lock and runs fn on it. Swaps gone in
// the meantime are skipped.
func (s *Session) withLock(
	ctx context.Context, id string, fn func(d *domain.TransactionDescr) error,
) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, _, err := s.descrs.GetTransaction(ctx, id)
	if err != nil {
		return
	}
	if err := fn(d); err != nil {
		log.WithError(err).WithField("id", id).Warnf("session %s: timer", s.currency)
	}
}
