package session

import (
	"bytes"
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/pkg/packet"
)

func (s *Session) processPendingTransaction(
	ctx context.Context, pkt *packet.Packet, p *packet.PendingTransaction,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, _, err := s.descrs.GetTransaction(ctx, p.ID)
	if err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
		return err
	}

	if d != nil {
		if d.Local {
			// The hub announced our own order.
			if d.Role != domain.RoleA || d.State != domain.StateNew {
				return nil
			}
			if _, err := d.Pending(pkt.From); err != nil {
				return err
			}
			if err := s.update(ctx, d); err != nil {
				return err
			}
			s.notifier.TransactionStateChanged(d)
			return nil
		}

		if !bytes.Equal(d.HubAddress, pkt.From) {
			return nil
		}
		fresh, err := s.newPendingDescr(pkt, p)
		if err != nil {
			return err
		}
		return s.descrs.UpdateTransaction(ctx, p.ID, func(
			d *domain.TransactionDescr,
		) (*domain.TransactionDescr, error) {
			if err := d.UpdateFrom(fresh); err != nil {
				return nil, err
			}
			return d, nil
		})
	}

	if _, err := s.history.GetTransaction(ctx, p.ID); err == nil {
		return nil
	}
	// Orders this node has no wallet for can't be accepted anyway.
	if _, err := s.connector(p.SourceCurrency); err != nil {
		return nil
	}
	if _, err := s.connector(p.DestCurrency); err != nil {
		return nil
	}

	d, err = s.newPendingDescr(pkt, p)
	if err != nil {
		return err
	}
	if err := s.descrs.AddTransaction(ctx, domain.TablePending, d); err != nil {
		if errors.Is(err, domain.ErrTransactionAlreadyExists) {
			return nil
		}
		return err
	}

	log.WithField("id", d.ID).Debugf(
		"session %s: new open order %s %d -> %s %d",
		s.currency, d.FromCurrency, d.FromAmount, d.ToCurrency, d.ToAmount,
	)
	s.notifier.PendingTransactionReceived(d)
	return nil
}

func (s *Session) newPendingDescr(
	pkt *packet.Packet, p *packet.PendingTransaction,
) (*domain.TransactionDescr, error) {
	return domain.NewPendingTransactionDescr(
		p.ID, pkt.From,
		p.SourceCurrency, p.SourceAmount,
		p.DestCurrency, p.DestAmount,
		unixTime(p.Created),
	)
}

func (s *Session) processTransactionHold(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionHold,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, table, err := s.descrs.GetTransaction(ctx, p.ID)
	if err != nil {
		return err
	}
	if !d.Local {
		return ErrNotLocal
	}
	// A maker learns its hub from the first hold if the hub announcement
	// got lost or came from another hub.
	makerWaiting := d.Role == domain.RoleA && d.State <= domain.StatePending
	if !makerWaiting && !bytes.Equal(d.HubAddress, pkt.From) {
		return ErrNotFromHub
	}

	prev := d.State
	if _, err := d.Hold(pkt.From, s.ttl); err != nil {
		return err
	}
	if err := s.update(ctx, d); err != nil {
		return err
	}
	if table == domain.TablePending {
		if err := s.descrs.MoveToActive(ctx, d.ID); err != nil {
			return err
		}
	}
	if prev != d.State {
		s.notifier.TransactionStateChanged(d)
	}

	s.send(ctx, pkt.From, &packet.TransactionHoldApply{ID: d.ID})
	return nil
}

func (s *Session) processTransactionInit(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionInit,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, err := s.fromHub(ctx, p.ID, pkt.From)
	if err != nil {
		return err
	}
	if d.State >= domain.StateInitialized && d.State.IsMainPath() {
		s.sendInitialized(ctx, d)
		return nil
	}
	if d.State != domain.StateHold {
		return domain.ErrStateMismatch
	}

	if domain.Role(p.Role) != d.Role || !sameTerms(d, p.Terms) {
		log.WithField("id", d.ID).Warn("session: hub sent terms not matching the order")
		return s.cancelOrRollback(ctx, d, domain.ReasonBadSettings, true)
	}

	conn, err := s.connector(d.FromCurrency)
	if err != nil {
		return err
	}
	mPubKey, mPrivKey, err := conn.NewKeyPair()
	if err != nil {
		return err
	}
	var xPubKey, xPrivKey, xHash []byte
	if d.Role == domain.RoleA {
		if xPubKey, xPrivKey, err = conn.NewKeyPair(); err != nil {
			return err
		}
		xHash = btcutil.Hash160(xPubKey)
	}

	if _, err := d.Initialize(mPubKey, mPrivKey, xPubKey, xPrivKey, xHash); err != nil {
		return err
	}
	if err := s.update(ctx, d); err != nil {
		return err
	}
	s.notifier.TransactionStateChanged(d)

	s.sendInitialized(ctx, d)
	return nil
}

func (s *Session) sendInitialized(ctx context.Context, d *domain.TransactionDescr) {
	var xHash []byte
	if d.Role == domain.RoleA {
		xHash = d.XHash
	}
	s.send(ctx, d.HubAddress, &packet.TransactionInitialized{
		ID:      d.ID,
		MPubKey: d.MPubKey,
		XHash:   xHash,
	})
}

func (s *Session) processTransactionCreateA(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionCreateA,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, err := s.fromHub(ctx, p.ID, pkt.From)
	if err != nil {
		return err
	}
	if d.Role != domain.RoleA {
		return ErrUnexpectedRole
	}
	if d.State >= domain.StateCreated && d.State.IsMainPath() {
		s.sendCreated(ctx, d)
		return nil
	}
	if d.State != domain.StateInitialized {
		return domain.ErrStateMismatch
	}
	if len(p.OtherMPubKey) != domain.PubKeyLength {
		return s.cancelOrRollback(ctx, d, domain.ReasonBadSettings, true)
	}

	conn, err := s.connector(d.FromCurrency)
	if err != nil {
		return err
	}
	lockTime, err := conn.LockTime(ctx, domain.RoleA)
	if err != nil {
		s.park(pkt, err)
		return nil
	}
	dep, err := s.createDeposit(ctx, conn, d, p.OtherMPubKey, d.XHash, lockTime)
	if err != nil {
		return s.depositFailed(ctx, pkt, d, err)
	}

	d.OtherMPubKey = p.OtherMPubKey
	if _, err := d.Create(*dep); err != nil {
		return err
	}
	if err := s.update(ctx, d); err != nil {
		return err
	}
	s.notifier.TransactionStateChanged(d)

	s.sendCreated(ctx, d)
	return nil
}

func (s *Session) processTransactionCreateB(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionCreateB,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, err := s.fromHub(ctx, p.ID, pkt.From)
	if err != nil {
		return err
	}
	if d.Role != domain.RoleB {
		return ErrUnexpectedRole
	}
	if d.State >= domain.StateCreated && d.State.IsMainPath() {
		s.sendCreated(ctx, d)
		return nil
	}
	if d.State != domain.StateInitialized {
		return domain.ErrStateMismatch
	}
	if len(p.XHash) != domain.XAddrLength ||
		len(p.OtherMPubKey) != domain.PubKeyLength {
		return s.cancelOrRollback(ctx, d, domain.ReasonBadADepositTx, true)
	}

	// The initiator deposited on the chain this party is paid on.
	otherConn, err := s.connector(d.ToCurrency)
	if err != nil {
		return err
	}
	if _, err := s.verifyDeposit(
		ctx, otherConn, d, domain.RoleA, p.OtherDeposit, p.OtherMPubKey, p.XHash,
	); err != nil {
		if errors.Is(err, ports.ErrBadDeposit) {
			log.WithError(err).WithField("id", d.ID).Warn("session: bad deposit of the initiator")
			return s.cancelOrRollback(ctx, d, domain.ReasonBadADepositTx, true)
		}
		s.park(pkt, err)
		return nil
	}

	conn, err := s.connector(d.FromCurrency)
	if err != nil {
		return err
	}
	lockTime, err := conn.LockTime(ctx, domain.RoleB)
	if err != nil {
		s.park(pkt, err)
		return nil
	}
	dep, err := s.createDeposit(ctx, conn, d, p.OtherMPubKey, p.XHash, lockTime)
	if err != nil {
		return s.depositFailed(ctx, pkt, d, err)
	}

	d.OtherBinTxID = p.OtherDeposit.BinTxID
	d.OtherInnerScript = p.OtherDeposit.InnerScript
	d.OtherLockTime = p.OtherDeposit.LockTime
	d.OtherMPubKey = p.OtherMPubKey
	d.XHash = p.XHash
	if _, err := d.Create(*dep); err != nil {
		return err
	}
	if err := s.update(ctx, d); err != nil {
		return err
	}
	s.notifier.TransactionStateChanged(d)

	s.sendCreated(ctx, d)
	return nil
}

func (s *Session) sendCreated(ctx context.Context, d *domain.TransactionDescr) {
	dep := packet.Deposit{
		BinTxID:     d.BinTxID,
		InnerScript: d.InnerScript,
		LockTime:    d.LockTime,
	}
	if d.Role == domain.RoleA {
		s.send(ctx, d.HubAddress, &packet.TransactionCreatedA{ID: d.ID, Deposit: dep})
		return
	}
	s.send(ctx, d.HubAddress, &packet.TransactionCreatedB{ID: d.ID, Deposit: dep})
}

func (s *Session) processTransactionConfirmA(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionConfirmA,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, err := s.fromHub(ctx, p.ID, pkt.From)
	if err != nil {
		return err
	}
	if d.Role != domain.RoleA {
		return ErrUnexpectedRole
	}
	switch {
	case d.State >= domain.StateCommited && d.State.IsMainPath():
		s.sendConfirmed(ctx, d)
		return nil
	case d.State == domain.StateSigned:
		return s.commitPayment(ctx, pkt, d)
	case d.State != domain.StateCreated:
		return domain.ErrStateMismatch
	}

	otherConn, err := s.connector(d.ToCurrency)
	if err != nil {
		return err
	}
	check, err := s.verifyDeposit(
		ctx, otherConn, d, domain.RoleB, p.OtherDeposit, p.OtherMPubKey, d.XHash,
	)
	if err == nil && !bytes.Equal(p.OtherMPubKey, d.OtherMPubKey) {
		err = errBadPubKey
	}
	if err != nil {
		if errors.Is(err, ports.ErrBadDeposit) {
			log.WithError(err).WithField("id", d.ID).Warn("session: bad deposit of the acceptor")
			return s.cancelOrRollback(ctx, d, domain.ReasonBadBDepositTx, true)
		}
		s.park(pkt, err)
		return nil
	}

	d.OtherBinTxID = p.OtherDeposit.BinTxID
	d.OtherInnerScript = p.OtherDeposit.InnerScript
	d.OtherLockTime = p.OtherDeposit.LockTime
	return s.signPayment(ctx, pkt, otherConn, d, check, d.XPubKey)
}

func (s *Session) processTransactionConfirmB(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionConfirmB,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, err := s.fromHub(ctx, p.ID, pkt.From)
	if err != nil {
		return err
	}
	if d.Role != domain.RoleB {
		return ErrUnexpectedRole
	}
	// The secret may arrive after this party gave up waiting for it, its
	// refund is then still locked and the payment is claimed instead.
	switch {
	case d.State >= domain.StateCommited && d.State.IsMainPath():
		s.sendConfirmed(ctx, d)
		return nil
	case d.State == domain.StateSigned:
		return s.commitPayment(ctx, pkt, d)
	case d.State != domain.StateCreated && d.State != domain.StateRollbackFailed:
		return domain.ErrStateMismatch
	}

	if len(p.XPubKey) != domain.PubKeyLength ||
		!bytes.Equal(btcutil.Hash160(p.XPubKey), d.XHash) {
		return domain.ErrInvalidSecretHash
	}

	otherConn, err := s.connector(d.ToCurrency)
	if err != nil {
		return err
	}
	check, err := otherConn.CheckDepositTx(
		ctx, d.OtherBinTxID, d.OtherInnerScript, d.ToAmount,
	)
	if err != nil {
		if errors.Is(err, ports.ErrBadDeposit) {
			log.WithError(err).WithField("id", d.ID).Warn("session: deposit of the initiator is gone")
			return s.cancelOrRollback(
				ctx, d, domain.ReasonBadADepositTx, d.State != domain.StateRollbackFailed,
			)
		}
		s.park(pkt, err)
		return nil
	}

	return s.signPayment(ctx, pkt, otherConn, d, check, p.XPubKey)
}

// signPayment builds the transaction claiming the counterparty deposit,
// revealing xPubKey, and broadcasts it.
func (s *Session) signPayment(
	ctx context.Context, pkt *packet.Packet, conn ports.WalletConnector,
	d *domain.TransactionDescr, check *ports.DepositCheck, xPubKey []byte,
) error {
	pay, err := conn.CreatePaymentTransaction(ports.SpendRequest{
		DepositTxID: d.OtherBinTxID,
		Vout:        check.Vout,
		Amount:      check.Amount,
		InnerScript: d.OtherInnerScript,
		Destination: d.To,
		PrivKey:     d.MPrivKey,
		PubKey:      d.MPubKey,
		XPubKey:     xPubKey,
	})
	if err != nil {
		log.WithError(err).WithField("id", d.ID).Warn("session: failed to create payment")
		return s.cancelOrRollback(ctx, d, domain.ReasonNotSigned, true)
	}

	if d.Role == domain.RoleB {
		d.XPubKey = append([]byte(nil), xPubKey...)
	}
	if _, err := d.Sign(pay.TxID, pay.TxHex); err != nil {
		return err
	}
	if err := s.update(ctx, d); err != nil {
		return err
	}
	s.notifier.TransactionStateChanged(d)

	return s.commitPayment(ctx, pkt, d)
}

func (s *Session) commitPayment(
	ctx context.Context, pkt *packet.Packet, d *domain.TransactionDescr,
) error {
	conn, err := s.connector(d.ToCurrency)
	if err != nil {
		return err
	}
	if _, err := conn.SendRawTransaction(ctx, d.PayTx); err != nil {
		if errors.Is(err, ports.ErrRejected) {
			log.WithError(err).WithField("id", d.ID).Warn("session: payment rejected")
		}
		s.park(pkt, err)
		return nil
	}

	if _, err := d.Commit(); err != nil {
		return err
	}
	if err := s.update(ctx, d); err != nil {
		return err
	}
	s.notifier.TransactionStateChanged(d)

	s.sendConfirmed(ctx, d)
	return nil
}

func (s *Session) sendConfirmed(ctx context.Context, d *domain.TransactionDescr) {
	if d.Role == domain.RoleA {
		s.send(ctx, d.HubAddress, &packet.TransactionConfirmedA{
			ID:      d.ID,
			PayTxID: d.PayTxID,
			XPubKey: d.XPubKey,
		})
		return
	}
	s.send(ctx, d.HubAddress, &packet.TransactionConfirmedB{
		ID:      d.ID,
		PayTxID: d.PayTxID,
	})
}

func (s *Session) processTransactionFinished(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionFinished,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, err := s.fromHub(ctx, p.ID, pkt.From)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil
		}
		return err
	}
	if _, err := d.Finish(); err != nil {
		return err
	}
	s.finalize(ctx, d)
	return nil
}

func (s *Session) processTransactionRollback(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionRollback,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, err := s.fromHub(ctx, p.ID, pkt.From)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil
		}
		return err
	}
	return s.cancelOrRollback(ctx, d, domain.CancelReason(p.Reason), false)
}

func (s *Session) processTransactionDropped(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionDropped,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, _, err := s.descrs.GetTransaction(ctx, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil
		}
		return err
	}
	if !bytes.Equal(d.HubAddress, pkt.From) {
		return ErrNotFromHub
	}

	if !d.Local {
		return s.removeOpenOrder(ctx, d, domain.CancelReason(p.Reason))
	}
	if d.HasDeposit() {
		return nil
	}
	if _, err := d.Drop(domain.CancelReason(p.Reason)); err != nil {
		return err
	}
	s.finalize(ctx, d)
	return nil
}

// partyCancel handles a cancel about a local swap or an open order of
// somebody else.
func (s *Session) partyCancel(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionCancel,
) error {
	unlock := s.locks.Lock(p.ID)
	defer unlock()

	d, _, err := s.descrs.GetTransaction(ctx, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return nil
		}
		return err
	}
	if !bytes.Equal(d.HubAddress, pkt.From) {
		return ErrNotFromHub
	}

	reason := domain.CancelReason(p.Reason)
	if !d.Local {
		return s.removeOpenOrder(ctx, d, reason)
	}
	return s.cancelOrRollback(ctx, d, reason, false)
}

func (s *Session) removeOpenOrder(
	ctx context.Context, d *domain.TransactionDescr, reason domain.CancelReason,
) error {
	if _, err := s.descrs.RemoveTransaction(ctx, d.ID); err != nil {
		return err
	}
	s.notifier.TransactionCancelled(d, reason)
	return nil
}

// fromHub returns the local swap with the given id after checking that the
// packet comes from its hub.
func (s *Session) fromHub(
	ctx context.Context, id string, from []byte,
) (*domain.TransactionDescr, error) {
	d, _, err := s.descrs.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Local {
		return nil, ErrNotLocal
	}
	if len(d.HubAddress) == 0 || !bytes.Equal(d.HubAddress, from) {
		return nil, ErrNotFromHub
	}
	return d, nil
}

// verifyDeposit checks the deposit of the counterparty: the script must be
// the one expected from the keys and the secret hash known so far, the lock
// time must leave this party enough time and the deposit must be confirmed.
// Failures of the checks wrap ports.ErrBadDeposit, any other error is
// transient.
func (s *Session) verifyDeposit(
	ctx context.Context, conn ports.WalletConnector, d *domain.TransactionDescr,
	otherRole domain.Role, dep packet.Deposit, otherMPubKey, xHash []byte,
) (*ports.DepositCheck, error) {
	expected, err := conn.CreateDepositUnlockScript(
		otherMPubKey, d.MPubKey, xHash, dep.LockTime,
	)
	if err != nil || !bytes.Equal(expected, dep.InnerScript) {
		return nil, errScriptMismatch
	}

	ok, err := conn.CheckLockTime(ctx, otherRole, dep.LockTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errBadLockTime
	}

	check, err := conn.CheckDepositTx(ctx, dep.BinTxID, dep.InnerScript, d.ToAmount)
	if err != nil {
		return nil, err
	}
	if !check.Confirmed {
		return nil, errNotConfirmed
	}
	return check, nil
}

// createDeposit funds the deposit of the swap amount plus the fee of the
// transaction spending it, pre-signs the refund and broadcasts the deposit.
func (s *Session) createDeposit(
	ctx context.Context, conn ports.WalletConnector, d *domain.TransactionDescr,
	otherMPubKey, xHash []byte, lockTime uint32,
) (*domain.Deposit, error) {
	script, err := conn.CreateDepositUnlockScript(
		d.MPubKey, otherMPubKey, xHash, lockTime,
	)
	if err != nil {
		return nil, err
	}

	depTx, err := conn.CreateDepositTransaction(ctx, ports.DepositRequest{
		Inputs:        d.UsedCoins,
		InnerScript:   script,
		Amount:        d.FromAmount + conn.MinTxFee2(1, 1),
		ChangeAddress: d.From,
	})
	if err != nil {
		return nil, err
	}

	refund, err := conn.CreateRefundTransaction(ports.SpendRequest{
		DepositTxID: depTx.TxID,
		Vout:        depTx.Vout,
		Amount:      depTx.Amount,
		InnerScript: script,
		LockTime:    lockTime,
		Destination: d.From,
		PrivKey:     d.MPrivKey,
		PubKey:      d.MPubKey,
	})
	if err != nil {
		return nil, err
	}

	if _, err := conn.SendRawTransaction(ctx, depTx.TxHex); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"id":    d.ID,
		"txid":  depTx.TxID,
		"fee":   depTx.Fee,
		"p2sh":  depTx.ScriptAddress,
		"until": lockTime,
	}).Info("session: deposit broadcast")

	return &domain.Deposit{
		TxID:        depTx.TxID,
		TxHex:       depTx.TxHex,
		Vout:        depTx.Vout,
		Amount:      depTx.Amount,
		Multisig:    depTx.ScriptAddress,
		InnerScript: script,
		LockTime:    lockTime,
		RefTxID:     refund.TxID,
		RefTx:       refund.TxHex,
	}, nil
}

// depositFailed cancels the swap if the deposit can't be made, or parks the
// packet to retry later if the failure is transient.
func (s *Session) depositFailed(
	ctx context.Context, pkt *packet.Packet, d *domain.TransactionDescr, err error,
) error {
	var reason domain.CancelReason
	switch {
	case errors.Is(err, ports.ErrInsufficientFunds):
		reason = domain.ReasonNoMoney
	case errors.Is(err, ports.ErrDust):
		reason = domain.ReasonDust
	case errors.Is(err, ports.ErrNotSigned):
		reason = domain.ReasonNotSigned
	case errors.Is(err, ports.ErrRejected):
		reason = domain.ReasonBadUtxo
	default:
		s.park(pkt, err)
		return nil
	}

	log.WithError(err).WithField("id", d.ID).Warn("session: failed to create deposit")
	return s.cancelOrRollback(ctx, d, reason, true)
}

func sameTerms(d *domain.TransactionDescr, t packet.Terms) bool {
	return t.Source == d.From && t.SourceCurrency == d.FromCurrency &&
		t.SourceAmount == d.FromAmount && t.Dest == d.To &&
		t.DestCurrency == d.ToCurrency && t.DestAmount == d.ToAmount
}
