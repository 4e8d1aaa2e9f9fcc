// Package session implements the protocol state machine run by every node
// for one currency: the party side of the swaps whose source is that
// currency and, when an exchange is attached, the hub side of the orders
// selling it.
package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/application/exchange"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/pkg/packet"
	"github.com/tdex-network/xbridge/pkg/stats"
)

// Sender delivers packets to their destination sessions, either local or
// remote.
type Sender interface {
	SendPacket(ctx context.Context, pkt *packet.Packet) error
}

// ConnectorRegistry resolves the wallet connector of a currency.
type ConnectorRegistry interface {
	Connector(currency string) (ports.WalletConnector, bool)
}

// AddressBook collects the addresses announced by other nodes.
type AddressBook interface {
	// AddEntry returns whether the entry was not known yet.
	AddEntry(entry domain.AddressBookEntry) bool
}

// Config holds the dependencies of a session. Exchange is nil for nodes
// that don't act as hub.
type Config struct {
	Address     []byte
	Currency    string
	Exchange    *exchange.Exchange
	Connectors  ConnectorRegistry
	Descrs      domain.TransactionDescrRepository
	History     domain.SwapHistoryRepository
	Sender      Sender
	Notifier    ports.Notifier
	AddressBook AddressBook
	Locks       *SwapLocks
	Metrics     *stats.Metrics

	PendingTTL time.Duration
	TTL        time.Duration
	// ExpiryGrace delays the local timeout of matched swaps past their
	// deadline, so that the hub times them out first.
	ExpiryGrace time.Duration
}

type Session struct {
	address     []byte
	currency    string
	exchange    *exchange.Exchange
	connectors  ConnectorRegistry
	descrs      domain.TransactionDescrRepository
	history     domain.SwapHistoryRepository
	sender      Sender
	notifier    ports.Notifier
	addressBook AddressBook
	locks       *SwapLocks
	metrics     *stats.Metrics

	pendingTTL  time.Duration
	ttl         time.Duration
	expiryGrace time.Duration

	parkedMu *sync.Mutex
	parked   map[string]*packet.Packet
}

// NewSession returns a session for the currency of the config. A random
// address is generated if none is given.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Currency == "" {
		return nil, fmt.Errorf("missing currency")
	}
	if cfg.Connectors == nil {
		return nil, fmt.Errorf("missing connector registry")
	}
	if _, ok := cfg.Connectors.Connector(cfg.Currency); !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownCurrency, cfg.Currency)
	}
	if cfg.Descrs == nil {
		return nil, fmt.Errorf("missing swap repository")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("missing swap history repository")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("missing packet sender")
	}

	address := cfg.Address
	if len(address) == 0 {
		address = make([]byte, domain.SessionAddressLength)
		if _, err := rand.Read(address); err != nil {
			return nil, err
		}
	}
	if len(address) != domain.SessionAddressLength {
		return nil, fmt.Errorf(
			"session address must be %d bytes long", domain.SessionAddressLength,
		)
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	locks := cfg.Locks
	if locks == nil {
		locks = NewSwapLocks()
	}
	pendingTTL := cfg.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = domain.PendingTTL
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = domain.TransactionTTL
	}

	return &Session{
		address:     append([]byte(nil), address...),
		currency:    cfg.Currency,
		exchange:    cfg.Exchange,
		connectors:  cfg.Connectors,
		descrs:      cfg.Descrs,
		history:     cfg.History,
		sender:      cfg.Sender,
		notifier:    notifier,
		addressBook: cfg.AddressBook,
		locks:       locks,
		metrics:     cfg.Metrics,
		pendingTTL:  pendingTTL,
		ttl:         ttl,
		expiryGrace: cfg.ExpiryGrace,
		parkedMu:    &sync.Mutex{},
		parked:      make(map[string]*packet.Packet),
	}, nil
}

func (s *Session) Address() []byte {
	return append([]byte(nil), s.address...)
}

func (s *Session) Currency() string {
	return s.currency
}

// IsHub returns whether the session matches orders.
func (s *Session) IsHub() bool {
	return s.exchange != nil
}

// ProcessPacket handles an inbound packet. Packets of another version or
// addressed to another session are dropped. The returned error tells why a
// packet was rejected, the caller is expected to log it and move on.
func (s *Session) ProcessPacket(ctx context.Context, pkt *packet.Packet) error {
	cmd := pkt.Command().String()

	if err := s.checkPacketVersion(pkt); err != nil {
		s.metrics.PacketDropped(cmd, "version")
		return err
	}
	if err := s.checkPacketAddress(pkt); err != nil {
		s.metrics.PacketDropped(cmd, "address")
		return err
	}

	if err := s.processPacket(ctx, pkt); err != nil {
		s.metrics.PacketDropped(cmd, "rejected")
		return fmt.Errorf("%s %s: %w", cmd, packet.TransactionID(pkt.Payload), err)
	}
	s.metrics.PacketProcessed(cmd)
	return nil
}

func (s *Session) checkPacketVersion(pkt *packet.Packet) error {
	if pkt.Version != packet.Version {
		return packet.ErrBadVersion
	}
	return nil
}

func (s *Session) checkPacketAddress(pkt *packet.Packet) error {
	if pkt.IsBroadcast() || bytes.Equal(pkt.To, s.address) {
		return nil
	}
	return ErrWrongAddress
}

func (s *Session) processPacket(ctx context.Context, pkt *packet.Packet) error {
	switch p := pkt.Payload.(type) {
	case *packet.AnnounceAddresses:
		return s.processAnnounceAddresses(p)
	case *packet.XChatMessage:
		return s.processXChatMessage(ctx, p)

	case *packet.Transaction:
		return s.processTransaction(ctx, pkt, p)
	case *packet.PendingTransaction:
		return s.processPendingTransaction(ctx, pkt, p)
	case *packet.TransactionAccepting:
		return s.processTransactionAccepting(ctx, pkt, p)
	case *packet.TransactionHold:
		return s.processTransactionHold(ctx, pkt, p)
	case *packet.TransactionHoldApply:
		return s.processTransactionHoldApply(ctx, pkt, p)
	case *packet.TransactionInit:
		return s.processTransactionInit(ctx, pkt, p)
	case *packet.TransactionInitialized:
		return s.processTransactionInitialized(ctx, pkt, p)
	case *packet.TransactionCreateA:
		return s.processTransactionCreateA(ctx, pkt, p)
	case *packet.TransactionCreatedA:
		return s.processTransactionCreatedA(ctx, pkt, p)
	case *packet.TransactionCreateB:
		return s.processTransactionCreateB(ctx, pkt, p)
	case *packet.TransactionCreatedB:
		return s.processTransactionCreatedB(ctx, pkt, p)
	case *packet.TransactionConfirmA:
		return s.processTransactionConfirmA(ctx, pkt, p)
	case *packet.TransactionConfirmedA:
		return s.processTransactionConfirmedA(ctx, pkt, p)
	case *packet.TransactionConfirmB:
		return s.processTransactionConfirmB(ctx, pkt, p)
	case *packet.TransactionConfirmedB:
		return s.processTransactionConfirmedB(ctx, pkt, p)
	case *packet.TransactionFinished:
		return s.processTransactionFinished(ctx, pkt, p)
	case *packet.TransactionCancel:
		return s.processTransactionCancel(ctx, pkt, p)
	case *packet.TransactionRollback:
		return s.processTransactionRollback(ctx, pkt, p)
	case *packet.TransactionDropped:
		return s.processTransactionDropped(ctx, pkt, p)
	}
	return packet.ErrUnknownCommand
}

func (s *Session) processAnnounceAddresses(p *packet.AnnounceAddresses) error {
	if s.addressBook == nil {
		return nil
	}
	for _, e := range p.Entries {
		entry := domain.AddressBookEntry{
			Currency: e.Currency,
			Name:     e.Name,
			Address:  e.Address,
		}
		if entry.Currency == "" || entry.Address == "" {
			continue
		}
		if s.addressBook.AddEntry(entry) {
			s.notifier.AddressBookEntryReceived(entry)
		}
	}
	return nil
}

func (s *Session) processXChatMessage(
	ctx context.Context, p *packet.XChatMessage,
) error {
	inner, err := packet.Deserialize(p.Packet)
	if err != nil {
		return err
	}
	if inner.Command() == packet.CommandXChatMessage {
		return ErrNestedXChat
	}
	return s.ProcessPacket(ctx, inner)
}

func (s *Session) send(ctx context.Context, to []byte, payload packet.Payload) {
	pkt := packet.New(s.address, to, payload)
	if err := s.sender.SendPacket(ctx, pkt); err != nil {
		log.WithError(err).WithField("id", packet.TransactionID(payload)).Warnf(
			"session: failed to send %s packet", payload.Command(),
		)
		return
	}
	log.WithField("id", packet.TransactionID(payload)).Debugf(
		"session %s: sent %s", s.currency, payload.Command(),
	)
}

func (s *Session) broadcast(ctx context.Context, payload packet.Payload) {
	s.send(ctx, nil, payload)
}

func (s *Session) connector(currency string) (ports.WalletConnector, error) {
	conn, ok := s.connectors.Connector(currency)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownCurrency, currency)
	}
	return conn, nil
}

// park stores a packet whose processing must be retried later, typically
// because a deposit is waiting for confirmations.
func (s *Session) park(pkt *packet.Packet, reason error) {
	id := packet.TransactionID(pkt.Payload)

	s.parkedMu.Lock()
	defer s.parkedMu.Unlock()
	s.parked[id+pkt.Command().String()] = pkt

	log.WithField("id", id).Debugf(
		"session %s: %s parked: %s", s.currency, pkt.Command(), reason,
	)
}

// RetryPendingPackets processes again all the parked packets.
func (s *Session) RetryPendingPackets(ctx context.Context) {
	s.parkedMu.Lock()
	parked := s.parked
	s.parked = make(map[string]*packet.Packet)
	s.parkedMu.Unlock()

	for _, pkt := range parked {
		if err := s.processPacket(ctx, pkt); err != nil {
			log.WithError(err).WithField("id", packet.TransactionID(pkt.Payload)).
				Debugf("session %s: parked %s dropped", s.currency, pkt.Command())
		}
	}
}

// ParkedPackets returns how many packets are waiting to be processed again.
func (s *Session) ParkedPackets() int {
	s.parkedMu.Lock()
	defer s.parkedMu.Unlock()
	return len(s.parked)
}

type nopNotifier struct{}

func (nopNotifier) PendingTransactionReceived(*domain.TransactionDescr)                {}
func (nopNotifier) TransactionStateChanged(*domain.TransactionDescr)                   {}
func (nopNotifier) TransactionCancelled(*domain.TransactionDescr, domain.CancelReason) {}
func (nopNotifier) AddressBookEntryReceived(domain.AddressBookEntry)                   {}
