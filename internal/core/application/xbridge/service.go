// Package xbridge wires together the sessions of a node: it owns the
// exchange (when the node is a hub) and the per-currency sessions, routes
// the packets coming from the network to them through a pool of workers and
// periodically runs the maintenance tasks of the protocol.
package xbridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/application/exchange"
	"github.com/tdex-network/xbridge/internal/core/application/session"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/pkg/packet"
	"github.com/tdex-network/xbridge/pkg/stats"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkerCount   = 2
	DefaultTimerInterval = time.Minute

	hubHistoryTTL = 7 * 24 * time.Hour
)

// Config holds the dependencies of the service. Transport may be nil for a
// node whose sessions only talk to each other.
type Config struct {
	Connectors      map[string]ports.WalletConnector
	Repo            ports.RepoManager
	Transport       ports.Transport
	Notifier        ports.Notifier
	Metrics         *stats.Metrics
	ExchangeEnabled bool

	// SessionAddresses optionally fixes the protocol address of the session
	// of a currency, a random one is used otherwise.
	SessionAddresses map[string][]byte

	WorkerCount   int
	TimerInterval time.Duration
	PendingTTL    time.Duration
	TTL           time.Duration
	// Clock returns the current time, defaults to time.Now.
	Clock func() time.Time
}

type registry map[string]ports.WalletConnector

func (r registry) Connector(currency string) (ports.WalletConnector, bool) {
	c, ok := r[currency]
	return c, ok
}

type Service struct {
	connectors registry
	repo       ports.RepoManager
	transport  ports.Transport
	metrics    *stats.Metrics
	exchange   *exchange.Exchange

	currencies        []string
	sessions          map[string]*session.Session
	sessionsByAddress map[string]*session.Session
	addressBook       *addressBook

	knownLock *sync.Mutex
	known     map[chainhash.Hash]time.Time

	queue         *queue
	workerCount   int
	timerInterval time.Duration
	pendingTTL    time.Duration
	clock         func() time.Time

	lock   *sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewService returns a service with one session for each of the configured
// wallet connectors.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Connectors) == 0 {
		return nil, fmt.Errorf("missing wallet connectors")
	}
	if cfg.Repo == nil {
		return nil, fmt.Errorf("missing repository manager")
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	timerInterval := cfg.TimerInterval
	if timerInterval <= 0 {
		timerInterval = DefaultTimerInterval
	}
	pendingTTL := cfg.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = domain.PendingTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	svc := &Service{
		connectors:        registry(cfg.Connectors),
		repo:              cfg.Repo,
		transport:         cfg.Transport,
		metrics:           cfg.Metrics,
		sessions:          make(map[string]*session.Session),
		sessionsByAddress: make(map[string]*session.Session),
		addressBook:       newAddressBook(),
		knownLock:         &sync.Mutex{},
		known:             make(map[chainhash.Hash]time.Time),
		queue:             newQueue(),
		workerCount:       workerCount,
		timerInterval:     timerInterval,
		pendingTTL:        pendingTTL,
		clock:             clock,
		lock:              &sync.Mutex{},
	}
	if cfg.ExchangeEnabled {
		svc.exchange = exchange.NewExchange(pendingTTL, cfg.TTL)
	}

	locks := session.NewSwapLocks()
	for currency := range cfg.Connectors {
		s, err := session.NewSession(session.Config{
			Address:     cfg.SessionAddresses[currency],
			Currency:    currency,
			Exchange:    svc.exchange,
			Connectors:  svc.connectors,
			Descrs:      cfg.Repo.TransactionDescrRepository(),
			History:     cfg.Repo.SwapHistoryRepository(),
			Sender:      svc,
			Notifier:    cfg.Notifier,
			AddressBook: svc.addressBook,
			Locks:       locks,
			Metrics:     cfg.Metrics,
			PendingTTL:  pendingTTL,
			TTL:         cfg.TTL,
			ExpiryGrace: timerInterval,
		})
		if err != nil {
			return nil, err
		}
		svc.currencies = append(svc.currencies, currency)
		svc.sessions[currency] = s
		svc.sessionsByAddress[hex.EncodeToString(s.Address())] = s
	}
	sort.Strings(svc.currencies)

	return svc, nil
}

// Start runs the workers and the timer, then connects to the network.
func (s *Service) Start(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workerCount; i++ {
		group.Go(func() error {
			s.work(gctx)
			return nil
		})
	}
	group.Go(func() error {
		s.runTimer(gctx)
		return nil
	})

	if s.transport != nil {
		if err := s.transport.Start(ctx, s.OnMessage); err != nil {
			cancel()
			group.Wait()
			return fmt.Errorf("failed to start transport: %w", err)
		}
	}

	s.cancel = cancel
	s.group = group

	s.announceAddressBook(ctx)

	log.Infof(
		"xbridge: started with %d workers, currencies %v, hub %t",
		s.workerCount, s.currencies, s.IsHub(),
	)
	return nil
}

// Stop disconnects from the network and waits for the workers and the timer
// to return. Packets still queued are lost.
func (s *Service) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cancel == nil {
		return ErrNotStarted
	}

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			log.WithError(err).Warn("xbridge: failed to close transport")
		}
	}
	s.cancel()
	s.group.Wait()
	s.cancel = nil
	s.group = nil

	log.Info("xbridge: stopped")
	return nil
}

// OnMessage enqueues a serialized packet received from the network. Already
// seen packets are discarded.
func (s *Service) OnMessage(raw []byte) {
	if !s.AddToKnown(packet.Hash(raw)) {
		return
	}
	s.queue.push(raw)
}

// SendPacket delivers a packet produced by a local session. Packets for
// local sessions are enqueued, the others are flooded through the
// transport. Broadcasts go both ways.
func (s *Service) SendPacket(ctx context.Context, pkt *packet.Packet) error {
	raw, err := pkt.Serialize()
	if err != nil {
		return err
	}
	s.AddToKnown(packet.Hash(raw))

	_, local := s.sessionByAddress(pkt.To)
	if pkt.IsBroadcast() || local {
		s.queue.push(raw)
	}
	if local || s.transport == nil {
		return nil
	}
	return s.transport.Broadcast(ctx, raw)
}

// IsKnownMessage returns whether a packet with the given hash was already
// seen.
func (s *Service) IsKnownMessage(hash chainhash.Hash) bool {
	if s.exchange != nil {
		return s.exchange.IsKnown(hash)
	}

	s.knownLock.Lock()
	defer s.knownLock.Unlock()
	_, ok := s.known[hash]
	return ok
}

// AddToKnown records the hash of a packet and returns false if it was
// already known.
func (s *Service) AddToKnown(hash chainhash.Hash) bool {
	now := s.clock()
	if s.exchange != nil {
		return s.exchange.AddKnown(hash, now)
	}

	s.knownLock.Lock()
	defer s.knownLock.Unlock()
	if _, ok := s.known[hash]; ok {
		return false
	}
	s.known[hash] = now
	return true
}

func (s *Service) pruneKnown(before time.Time) {
	if s.exchange != nil {
		s.exchange.PruneKnown(before)
		return
	}

	s.knownLock.Lock()
	defer s.knownLock.Unlock()
	for hash, added := range s.known {
		if added.Before(before) {
			delete(s.known, hash)
		}
	}
}

func (s *Service) work(ctx context.Context) {
	for {
		raw, ok := s.queue.pop(ctx)
		if !ok {
			return
		}
		s.dispatch(ctx, raw)
	}
}

// dispatch hands a packet to the session it is addressed to, or to all the
// sessions if it's a broadcast.
func (s *Service) dispatch(ctx context.Context, raw []byte) {
	pkt, err := packet.Deserialize(raw)
	if err != nil {
		s.metrics.PacketDropped("unknown", "decode")
		log.WithError(err).Debug("xbridge: dropping undecodable packet")
		return
	}

	if pkt.IsBroadcast() {
		for _, currency := range s.currencies {
			s.deliver(ctx, s.sessions[currency], pkt)
		}
		return
	}

	sess, ok := s.sessionByAddress(pkt.To)
	if !ok {
		return
	}
	s.deliver(ctx, sess, pkt)
}

func (s *Service) deliver(ctx context.Context, sess *session.Session, pkt *packet.Packet) {
	if err := sess.ProcessPacket(ctx, pkt); err != nil {
		log.WithError(err).Debugf("xbridge: session %s rejected packet", sess.Currency())
	}
}

func (s *Service) runTimer(ctx context.Context) {
	ticker := time.NewTicker(s.timerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.OnTimer(ctx)
		}
	}
}

// OnTimer runs the periodic tasks of every session: parked packets and
// failed refunds are retried, expired swaps are swept, hub transactions are
// checked for completion and the local orders are announced again.
func (s *Service) OnTimer(ctx context.Context) {
	now := s.clock()

	for _, currency := range s.currencies {
		sess := s.sessions[currency]
		sess.RetryPendingPackets(ctx)
		sess.RetryFailedRollbacks(ctx)
		sess.CheckFinishedTransactions(ctx)
		sess.EraseExpiredPendingTransactions(ctx, now)
		sess.SendListOfTransactions(ctx)
	}
	s.announceAddressBook(ctx)

	s.pruneKnown(now.Add(-s.pendingTTL))
	if s.exchange != nil {
		if n := s.exchange.PruneHistory(now.Add(-hubHistoryTTL)); n > 0 {
			log.Debugf("xbridge: pruned %d hub transactions from history", n)
		}
	}
}

func (s *Service) announceAddressBook(ctx context.Context) {
	for _, currency := range s.currencies {
		if _, err := s.sessions[currency].GetAddressBook(ctx); err != nil {
			log.WithError(err).Debugf(
				"xbridge: failed to read address book of %s wallet", currency,
			)
		}
	}
}

func (s *Service) sessionByAddress(address []byte) (*session.Session, bool) {
	if len(address) == 0 {
		return nil, false
	}
	sess, ok := s.sessionsByAddress[hex.EncodeToString(address)]
	return sess, ok
}

func (s *Service) session(currency string) (*session.Session, error) {
	sess, ok := s.sessions[currency]
	if !ok {
		return nil, fmt.Errorf("%w %s", session.ErrUnknownCurrency, currency)
	}
	return sess, nil
}
