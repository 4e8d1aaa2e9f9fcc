package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/application/exchange"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/pkg/packet"
)

func (s *Session) processTransaction(
	ctx context.Context, pkt *packet.Packet, p *packet.Transaction,
) error {
	// Every node sees every order, only hubs care.
	if !s.IsHub() || p.Terms.SourceCurrency != s.currency {
		return nil
	}

	order, err := s.makeOrder(p.ID, pkt.From, p.Terms, unixTime(p.Created))
	if err != nil {
		return err
	}
	id, created, err := s.exchange.CreateTransaction(order)
	if err != nil {
		return err
	}
	if created {
		log.WithField("id", id).Infof(
			"hub %s: new order %s %d -> %s %d", s.currency,
			order.SourceCurrency, order.SourceAmount,
			order.DestCurrency, order.DestAmount,
		)
	}

	tx, err := s.exchange.PendingTransaction(id)
	if err != nil {
		// Already matched.
		return nil
	}
	s.broadcastPending(ctx, tx)
	return nil
}

func (s *Session) broadcastPending(ctx context.Context, tx *domain.Transaction) {
	s.broadcast(ctx, &packet.PendingTransaction{
		ID:             tx.ID,
		SourceCurrency: tx.A.SourceCurrency,
		SourceAmount:   tx.A.SourceAmount,
		DestCurrency:   tx.A.DestCurrency,
		DestAmount:     tx.A.DestAmount,
		Created:        tx.Created.Unix(),
	})
}

func (s *Session) processTransactionAccepting(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionAccepting,
) error {
	if !s.IsHub() {
		return ErrNotHub
	}

	reject := func(err error) error {
		s.send(ctx, pkt.From, &packet.TransactionCancel{
			ID:     p.ID,
			Reason: uint32(domain.ReasonNotAccepted),
		})
		return err
	}

	order, err := s.makeOrder(p.ID, pkt.From, p.Terms, time.Now())
	if err != nil {
		return reject(err)
	}
	if err := s.exchange.JoinTransaction(p.ID, order); err != nil {
		return reject(err)
	}

	accepting := func(tx *domain.Transaction) bool {
		return tx.State == domain.StateAccepting
	}
	hold := func(tx *domain.Transaction) packet.Payload {
		return &packet.TransactionHold{ID: tx.ID}
	}
	if s.forward(ctx, p.ID, domain.RoleA, domain.StateHold, accepting, hold) {
		log.WithField("id", p.ID).Infof("hub %s: orders matched", s.currency)
	}
	s.forward(ctx, p.ID, domain.RoleB, domain.StateHold, accepting, hold)
	return nil
}

func (s *Session) processTransactionHoldApply(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionHoldApply,
) error {
	if _, err := s.hubMember(p.ID, pkt.From); err != nil {
		return err
	}
	if _, err := s.exchange.UpdateTransactionWhenHoldApplyReceived(
		p.ID, pkt.From,
	); err != nil {
		return err
	}

	held := func(tx *domain.Transaction) bool {
		return tx.State == domain.StateHold
	}
	s.forward(ctx, p.ID, domain.RoleA, domain.StateInitialized, held,
		func(tx *domain.Transaction) packet.Payload {
			return &packet.TransactionInit{
				ID: tx.ID, Role: byte(domain.RoleA), Terms: memberTerms(tx.A),
			}
		},
	)
	s.forward(ctx, p.ID, domain.RoleB, domain.StateInitialized, held,
		func(tx *domain.Transaction) packet.Payload {
			return &packet.TransactionInit{
				ID: tx.ID, Role: byte(domain.RoleB), Terms: memberTerms(tx.B),
			}
		},
	)
	return nil
}

func (s *Session) processTransactionInitialized(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionInitialized,
) error {
	if _, err := s.hubMember(p.ID, pkt.From); err != nil {
		return err
	}
	if _, err := s.exchange.UpdateTransactionWhenInitializedReceived(
		p.ID, pkt.From, p.MPubKey, p.XHash,
	); err != nil {
		return err
	}

	s.forward(ctx, p.ID, domain.RoleA, domain.StateCreated,
		func(tx *domain.Transaction) bool {
			return tx.State == domain.StateInitialized &&
				tx.A.Reported < domain.StateCreated
		},
		func(tx *domain.Transaction) packet.Payload {
			return &packet.TransactionCreateA{ID: tx.ID, OtherMPubKey: tx.B.MPubKey}
		},
	)
	return nil
}

func (s *Session) processTransactionCreatedA(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionCreatedA,
) error {
	if err := s.hubMemberWithRole(p.ID, pkt.From, domain.RoleA); err != nil {
		return err
	}
	if _, err := s.exchange.UpdateTransactionWhenCreatedReceived(
		p.ID, pkt.From, p.Deposit.BinTxID, p.Deposit.InnerScript, p.Deposit.LockTime,
	); err != nil {
		return err
	}

	s.forward(ctx, p.ID, domain.RoleB, domain.StateCreated,
		func(tx *domain.Transaction) bool {
			return tx.State == domain.StateInitialized &&
				tx.A.Reported >= domain.StateCreated &&
				tx.B.Reported < domain.StateCreated
		},
		func(tx *domain.Transaction) packet.Payload {
			return &packet.TransactionCreateB{
				ID:           tx.ID,
				OtherDeposit: memberDeposit(tx.A),
				OtherMPubKey: tx.A.MPubKey,
				XHash:        tx.XHash,
			}
		},
	)
	return nil
}

func (s *Session) processTransactionCreatedB(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionCreatedB,
) error {
	if err := s.hubMemberWithRole(p.ID, pkt.From, domain.RoleB); err != nil {
		return err
	}
	if _, err := s.exchange.UpdateTransactionWhenCreatedReceived(
		p.ID, pkt.From, p.Deposit.BinTxID, p.Deposit.InnerScript, p.Deposit.LockTime,
	); err != nil {
		return err
	}

	s.forward(ctx, p.ID, domain.RoleA, domain.StateConfirmed,
		func(tx *domain.Transaction) bool {
			return tx.State == domain.StateCreated &&
				tx.A.Reported < domain.StateConfirmed
		},
		func(tx *domain.Transaction) packet.Payload {
			return &packet.TransactionConfirmA{
				ID:           tx.ID,
				OtherDeposit: memberDeposit(tx.B),
				OtherMPubKey: tx.B.MPubKey,
			}
		},
	)
	return nil
}

func (s *Session) processTransactionConfirmedA(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionConfirmedA,
) error {
	if err := s.hubMemberWithRole(p.ID, pkt.From, domain.RoleA); err != nil {
		return err
	}
	if _, err := s.exchange.UpdateTransactionWhenConfirmedReceived(
		p.ID, pkt.From, p.PayTxID, p.XPubKey,
	); err != nil {
		return err
	}

	s.forward(ctx, p.ID, domain.RoleB, domain.StateConfirmed, secretToForward,
		func(tx *domain.Transaction) packet.Payload {
			return &packet.TransactionConfirmB{ID: tx.ID, XPubKey: tx.XPubKey}
		},
	)
	return nil
}

// secretToForward tells whether the initiator revealed the exchange secret
// and the acceptor has not used it yet.
func secretToForward(tx *domain.Transaction) bool {
	return tx.State == domain.StateCreated &&
		tx.A.Reported >= domain.StateConfirmed &&
		tx.B.Reported < domain.StateConfirmed
}

func (s *Session) processTransactionConfirmedB(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionConfirmedB,
) error {
	if err := s.hubMemberWithRole(p.ID, pkt.From, domain.RoleB); err != nil {
		return err
	}
	if _, err := s.exchange.UpdateTransactionWhenConfirmedReceived(
		p.ID, pkt.From, p.PayTxID, nil,
	); err != nil {
		return err
	}

	tx, err := s.exchange.Transaction(p.ID)
	if err != nil {
		return err
	}
	if tx.State != domain.StateConfirmed {
		return nil
	}
	s.checkFinished(ctx, tx)
	return nil
}

// checkFinished finishes a confirmed swap once both payments are seen on
// chain. Until then the swap is checked again by the timer.
func (s *Session) checkFinished(ctx context.Context, tx *domain.Transaction) {
	for _, m := range []domain.TransactionMember{tx.A, tx.B} {
		conn, err := s.connector(m.DestCurrency)
		if err != nil {
			log.WithError(err).WithField("id", tx.ID).Warn("hub: cannot check payment")
			return
		}
		confirmations, err := conn.CheckTransaction(ctx, m.PayTxID)
		if err != nil || confirmations <= 0 {
			log.WithField("id", tx.ID).Debugf(
				"hub %s: payment %s not confirmed yet", s.currency, m.PayTxID,
			)
			return
		}
	}

	if _, err := s.exchange.FinishTransaction(tx.ID); err != nil {
		log.WithError(err).WithField("id", tx.ID).Warn("hub: failed to finish swap")
		return
	}
	finished := func(tx *domain.Transaction) bool {
		return tx.State == domain.StateFinished
	}
	finish := func(tx *domain.Transaction) packet.Payload {
		return &packet.TransactionFinished{ID: tx.ID}
	}
	if s.forward(ctx, tx.ID, domain.RoleA, domain.StateFinished, finished, finish) {
		log.WithField("id", tx.ID).Infof("hub %s: swap finished", s.currency)
	}
	s.forward(ctx, tx.ID, domain.RoleB, domain.StateFinished, finished, finish)
}

func (s *Session) processTransactionCancel(
	ctx context.Context, pkt *packet.Packet, p *packet.TransactionCancel,
) error {
	if s.IsHub() {
		tx, err := s.exchange.Transaction(p.ID)
		if err == nil && !tx.State.IsTerminal() {
			if _, ok := tx.IsMember(pkt.From); ok {
				return s.hubCancel(ctx, tx, domain.CancelReason(p.Reason))
			}
		}
	}
	return s.partyCancel(ctx, pkt, p)
}

// hubCancel stops a swap and tells the members what to do: a pending order
// is withdrawn from the network, members that deposited must roll back and
// the others just cancel. A swap whose initiator already revealed the
// exchange secret is not cancelled, the secret is sent again to the
// acceptor instead.
func (s *Session) hubCancel(
	ctx context.Context, tx *domain.Transaction, reason domain.CancelReason,
) error {
	snap, err := s.exchange.CancelTransaction(tx.ID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrSecretRevealed) {
			return s.resendSecret(ctx, tx.ID)
		}
		return err
	}

	if snap.B.IsEmpty() {
		if _, ok := s.exchange.ForwardTransaction(
			snap.ID, domain.RoleA, domain.StateCancelled, isCancelled,
		); ok {
			log.WithField("id", snap.ID).Infof("hub %s: order %s", s.currency, reason)
			s.broadcast(ctx, &packet.TransactionCancel{ID: snap.ID, Reason: uint32(reason)})
		}
		return nil
	}

	stop := func(role domain.Role) func(tx *domain.Transaction) packet.Payload {
		return func(tx *domain.Transaction) packet.Payload {
			m := tx.A
			if role == domain.RoleB {
				m = tx.B
			}
			if m.BinTxID != "" {
				return &packet.TransactionRollback{ID: tx.ID, Reason: uint32(tx.Reason)}
			}
			return &packet.TransactionCancel{ID: tx.ID, Reason: uint32(tx.Reason)}
		}
	}
	if s.forward(ctx, snap.ID, domain.RoleA, domain.StateCancelled, isCancelled, stop(domain.RoleA)) {
		log.WithField("id", snap.ID).Infof(
			"hub %s: swap %s: %s", s.currency, snap.State, reason,
		)
	}
	s.forward(ctx, snap.ID, domain.RoleB, domain.StateCancelled, isCancelled, stop(domain.RoleB))
	return nil
}

func isCancelled(tx *domain.Transaction) bool {
	return tx.State == domain.StateCancelled || tx.State == domain.StateRollback
}

// resendSecret sends again the exchange secret to an acceptor that didn't
// claim its payment yet.
func (s *Session) resendSecret(ctx context.Context, id string) error {
	tx, err := s.exchange.Transaction(id)
	if err != nil {
		return err
	}
	if !secretToForward(tx) {
		return nil
	}
	log.WithField("id", id).Infof(
		"hub %s: exchange secret already revealed, sending it again", s.currency,
	)
	s.send(ctx, tx.B.Session, &packet.TransactionConfirmB{ID: tx.ID, XPubKey: tx.XPubKey})
	return nil
}

// forward sends to the member with the given role the packet of phase built
// by payload. It does so once per member and phase, and only while ready
// holds for the swap.
func (s *Session) forward(
	ctx context.Context, id string, role domain.Role, phase domain.State,
	ready func(tx *domain.Transaction) bool,
	payload func(tx *domain.Transaction) packet.Payload,
) bool {
	tx, ok := s.exchange.ForwardTransaction(id, role, phase, ready)
	if !ok {
		return false
	}
	to := tx.A.Session
	if role == domain.RoleB {
		to = tx.B.Session
	}
	s.send(ctx, to, payload(tx))
	return true
}

func (s *Session) makeOrder(
	id string, from []byte, t packet.Terms, created time.Time,
) (exchange.Order, error) {
	src, err := s.connector(t.SourceCurrency)
	if err != nil {
		return exchange.Order{}, err
	}
	dst, err := s.connector(t.DestCurrency)
	if err != nil {
		return exchange.Order{}, err
	}
	srcXAddr, err := src.ToXAddr(t.Source)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	dstXAddr, err := dst.ToXAddr(t.Dest)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}

	return exchange.Order{
		ID:             id,
		Session:        append([]byte(nil), from...),
		Source:         t.Source,
		SourceXAddr:    srcXAddr,
		SourceCurrency: t.SourceCurrency,
		SourceAmount:   t.SourceAmount,
		Dest:           t.Dest,
		DestXAddr:      dstXAddr,
		DestCurrency:   t.DestCurrency,
		DestAmount:     t.DestAmount,
		Created:        created,
	}, nil
}

// hubMember returns the role of the sender in the joined swap.
func (s *Session) hubMember(id string, from []byte) (domain.Role, error) {
	if !s.IsHub() {
		return domain.RoleUndefined, ErrNotHub
	}
	tx, err := s.exchange.Transaction(id)
	if err != nil {
		return domain.RoleUndefined, err
	}
	role, ok := tx.IsMember(from)
	if !ok {
		return domain.RoleUndefined, domain.ErrUnknownMember
	}
	return role, nil
}

func (s *Session) hubMemberWithRole(id string, from []byte, role domain.Role) error {
	r, err := s.hubMember(id, from)
	if err != nil {
		return err
	}
	if r != role {
		return ErrUnexpectedRole
	}
	return nil
}

func memberTerms(m domain.TransactionMember) packet.Terms {
	return packet.Terms{
		Source:         m.Source,
		SourceCurrency: m.SourceCurrency,
		SourceAmount:   m.SourceAmount,
		Dest:           m.Dest,
		DestCurrency:   m.DestCurrency,
		DestAmount:     m.DestAmount,
	}
}

func memberDeposit(m domain.TransactionMember) packet.Deposit {
	return packet.Deposit{
		BinTxID:     m.BinTxID,
		InnerScript: m.InnerScript,
		LockTime:    m.LockTime,
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
