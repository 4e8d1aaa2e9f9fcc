package session_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/application/exchange"
	"github.com/tdex-network/xbridge/internal/core/application/session"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/xbridge/internal/infrastructure/wallet/connector"
	"github.com/tdex-network/xbridge/internal/test/chainsim"
	"github.com/tdex-network/xbridge/pkg/packet"
)

var ctx = context.Background()

const (
	lockTimeBase = time.Hour
	btcAmount    = 1000000
	ltcAmount    = 2000000
	funds        = 5000000
)

type registry map[string]ports.WalletConnector

func (r registry) Connector(currency string) (ports.WalletConnector, bool) {
	c, ok := r[currency]
	return c, ok
}

// network queues the packets sent by the sessions and delivers them on
// flush, after a round trip through the wire format.
type network struct {
	mu       *sync.Mutex
	queue    []*packet.Packet
	sessions []*session.Session
}

func newNetwork() *network {
	return &network{mu: &sync.Mutex{}}
}

func (n *network) SendPacket(_ context.Context, pkt *packet.Packet) error {
	raw, err := pkt.Serialize()
	if err != nil {
		return err
	}
	decoded, err := packet.Deserialize(raw)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, decoded)
	return nil
}

func (n *network) pop() *packet.Packet {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return nil
	}
	pkt := n.queue[0]
	n.queue = n.queue[1:]
	return pkt
}

// flush delivers packets until the network is quiet. Packets matching drop
// are lost.
func (n *network) flush(t *testing.T, drop func(*packet.Packet) bool) {
	for i := 0; i < 1000; i++ {
		pkt := n.pop()
		if pkt == nil {
			return
		}
		if drop != nil && drop(pkt) {
			continue
		}
		for _, s := range n.sessions {
			if !pkt.IsBroadcast() && !bytes.Equal(pkt.To, s.Address()) {
				continue
			}
			if err := s.ProcessPacket(ctx, pkt); err != nil {
				t.Logf("%s: %s", s.Currency(), err)
			}
		}
	}
	t.Fatal("network never got quiet")
}

type chains struct {
	btc *chainsim.Chain
	ltc *chainsim.Chain
}

func newChains() chains {
	return chains{
		btc: chainsim.NewChain(chainsim.Config{
			AddrPrefix:    0x00,
			ScriptPrefix:  0x05,
			SecretPrefix:  0x80,
			StartHeight:   1000,
			VerifyScripts: true,
			AutoMine:      true,
		}),
		ltc: chainsim.NewChain(chainsim.Config{
			AddrPrefix:    0x30,
			ScriptPrefix:  0x32,
			SecretPrefix:  0xb0,
			StartHeight:   2000,
			VerifyScripts: true,
			AutoMine:      true,
		}),
	}
}

type node struct {
	repo     ports.RepoManager
	exchange *exchange.Exchange
	wallets  map[string]*chainsim.Wallet
	conns    registry
	sessions map[string]*session.Session
}

func newNode(t *testing.T, net *network, c chains, hub bool) *node {
	n := &node{
		repo: inmemory.NewRepoManager(),
		wallets: map[string]*chainsim.Wallet{
			"BTC": c.btc.NewWallet(),
			"LTC": c.ltc.NewWallet(),
		},
		conns:    registry{},
		sessions: make(map[string]*session.Session),
	}
	if hub {
		n.exchange = exchange.NewExchange(0, 0)
	}

	params := map[string]connector.ChainParams{
		"BTC": connector.BTCParams,
		"LTC": connector.LTCParams,
	}
	for currency, p := range params {
		conn, err := connector.NewConnector(p, n.wallets[currency], lockTimeBase)
		require.NoError(t, err)
		n.conns[currency] = conn
	}

	locks := session.NewSwapLocks()
	for _, currency := range []string{"BTC", "LTC"} {
		s, err := session.NewSession(session.Config{
			Currency:    currency,
			Exchange:    n.exchange,
			Connectors:  n.conns,
			Descrs:      n.repo.TransactionDescrRepository(),
			History:     n.repo.SwapHistoryRepository(),
			Sender:      net,
			Locks:       locks,
			ExpiryGrace: time.Minute,
		})
		require.NoError(t, err)
		n.sessions[currency] = s
		net.sessions = append(net.sessions, s)
	}
	return n
}

func (n *node) fund(t *testing.T, currency string, amount uint64) {
	_, err := n.wallets[currency].Fund(amount)
	require.NoError(t, err)
}

func (n *node) address(t *testing.T, currency string) string {
	addr, err := n.wallets[currency].GetNewAddress(ctx)
	require.NoError(t, err)
	return addr
}

func (n *node) balance(t *testing.T, currency string) uint64 {
	b, err := n.wallets[currency].GetBalance(ctx)
	require.NoError(t, err)
	return b
}

func (n *node) historic(t *testing.T, id string) *domain.TransactionDescr {
	d, err := n.repo.SwapHistoryRepository().GetTransaction(ctx, id)
	require.NoError(t, err)
	return d
}

func (n *node) live(id string) (*domain.TransactionDescr, domain.Table, error) {
	return n.repo.TransactionDescrRepository().GetTransaction(ctx, id)
}

type swapSetup struct {
	net                *network
	chains             chains
	hub, maker, taker  *node
	makerBTC, makerLTC string
	takerBTC, takerLTC string
}

func newSwapSetup(t *testing.T) *swapSetup {
	s := &swapSetup{net: newNetwork(), chains: newChains()}
	s.hub = newNode(t, s.net, s.chains, true)
	s.maker = newNode(t, s.net, s.chains, false)
	s.taker = newNode(t, s.net, s.chains, false)

	s.maker.fund(t, "BTC", funds)
	s.taker.fund(t, "LTC", funds)
	s.makerBTC = s.maker.address(t, "BTC")
	s.makerLTC = s.maker.address(t, "LTC")
	s.takerBTC = s.taker.address(t, "BTC")
	s.takerLTC = s.taker.address(t, "LTC")
	return s
}

// openOrder creates an order of the maker selling BTC for LTC and lets the
// hub announce it.
func (s *swapSetup) openOrder(t *testing.T) string {
	id, err := s.maker.sessions["BTC"].SendXBridgeTransaction(
		ctx, s.makerBTC, "BTC", btcAmount, s.makerLTC, "LTC", ltcAmount,
	)
	require.NoError(t, err)
	s.net.flush(t, nil)
	return id
}

func TestSwap(t *testing.T) {
	s := newSwapSetup(t)
	id := s.openOrder(t)

	d, table, err := s.maker.live(id)
	require.NoError(t, err)
	require.Equal(t, domain.TablePending, table)
	require.Equal(t, domain.StatePending, d.State)

	open, _, err := s.taker.live(id)
	require.NoError(t, err)
	require.False(t, open.Local)
	require.Equal(t, "BTC", open.FromCurrency)
	require.Equal(t, uint64(btcAmount), open.FromAmount)

	require.NoError(t, s.taker.sessions["LTC"].AcceptXBridgeTransaction(
		ctx, id, s.takerLTC, s.takerBTC,
	))
	s.net.flush(t, nil)

	// The deposit of the acceptor needs one more LTC block.
	require.Equal(t, 1, s.maker.sessions["BTC"].ParkedPackets())
	d, table, err = s.maker.live(id)
	require.NoError(t, err)
	require.Equal(t, domain.TableActive, table)
	require.Equal(t, domain.StateCreated, d.State)

	s.chains.ltc.Mine(1)
	s.maker.sessions["BTC"].RetryPendingPackets(ctx)
	s.net.flush(t, nil)

	for _, n := range []*node{s.maker, s.taker} {
		_, _, err := n.live(id)
		require.ErrorIs(t, err, domain.ErrTransactionNotFound)
		h := n.historic(t, id)
		require.Equal(t, domain.StateFinished, h.State)
		require.Nil(t, h.MPrivKey)
	}

	tx, err := s.hub.exchange.Transaction(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateFinished, tx.State)

	require.Equal(t, uint64(ltcAmount), s.maker.balance(t, "LTC"))
	require.Equal(t, uint64(btcAmount), s.taker.balance(t, "BTC"))
	require.Less(t, s.maker.balance(t, "BTC"), uint64(funds-btcAmount))
	require.Less(t, s.taker.balance(t, "LTC"), uint64(funds-ltcAmount))
}

func TestCancelBeforeDeposit(t *testing.T) {
	s := newSwapSetup(t)
	id := s.openOrder(t)

	require.NoError(t, s.maker.sessions["BTC"].CancelOrRollbackTransaction(
		ctx, id, domain.ReasonUserRequest,
	))
	s.net.flush(t, nil)

	h := s.maker.historic(t, id)
	require.Equal(t, domain.StateCancelled, h.State)
	require.Equal(t, domain.ReasonUserRequest, h.Reason)

	_, _, err := s.taker.live(id)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	tx, err := s.hub.exchange.Transaction(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateCancelled, tx.State)

	// Coins are released.
	_, err = s.maker.sessions["BTC"].SendXBridgeTransaction(
		ctx, s.makerBTC, "BTC", funds/2, s.makerLTC, "LTC", ltcAmount,
	)
	require.NoError(t, err)
}

func TestRollback(t *testing.T) {
	s := newSwapSetup(t)
	id := s.openOrder(t)

	require.NoError(t, s.taker.sessions["LTC"].AcceptXBridgeTransaction(
		ctx, id, s.takerLTC, s.takerBTC,
	))
	// The acceptor never learns about the deposit of the initiator.
	s.net.flush(t, func(pkt *packet.Packet) bool {
		return pkt.Command() == packet.CommandTransactionCreateB
	})

	d, _, err := s.maker.live(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateCreated, d.State)
	require.True(t, d.HasDeposit())

	require.NoError(t, s.maker.sessions["BTC"].CancelOrRollbackTransaction(
		ctx, id, domain.ReasonUserRequest,
	))
	s.net.flush(t, nil)

	// The refund is not final until the lock time.
	d, table, err := s.maker.live(id)
	require.NoError(t, err)
	require.Equal(t, domain.TableActive, table)
	require.Equal(t, domain.StateRollbackFailed, d.State)

	require.Equal(t, domain.StateCancelled, s.taker.historic(t, id).State)
	tx, err := s.hub.exchange.Transaction(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateRollback, tx.State)

	s.chains.btc.Mine(int(int64(d.LockTime) - s.chains.btc.Height()))
	s.maker.sessions["BTC"].RetryFailedRollbacks(ctx)

	h := s.maker.historic(t, id)
	require.Equal(t, domain.StateRollback, h.State)
	require.Equal(t, domain.ReasonUserRequest, h.Reason)
	require.Greater(t, s.maker.balance(t, "BTC"), uint64(funds-btcAmount))
}

func TestLostSecret(t *testing.T) {
	tests := []struct {
		name    string
		timeout func(s *swapSetup, later time.Time)
	}{
		{
			"hub_timeout",
			func(s *swapSetup, later time.Time) {
				s.maker.sessions["BTC"].EraseExpiredPendingTransactions(ctx, later)
				s.hub.sessions["BTC"].EraseExpiredPendingTransactions(ctx, later)
			},
		},
		{
			"acceptor_timeout",
			func(s *swapSetup, later time.Time) {
				s.taker.sessions["LTC"].EraseExpiredPendingTransactions(ctx, later)
			},
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			s := newSwapSetup(t)
			id := s.openOrder(t)

			require.NoError(t, s.taker.sessions["LTC"].AcceptXBridgeTransaction(
				ctx, id, s.takerLTC, s.takerBTC,
			))
			// The acceptor never receives the exchange secret.
			dropSecret := func(pkt *packet.Packet) bool {
				return pkt.Command() == packet.CommandTransactionConfirmB
			}
			s.net.flush(t, dropSecret)
			s.chains.ltc.Mine(1)
			s.maker.sessions["BTC"].RetryPendingPackets(ctx)
			s.net.flush(t, dropSecret)

			d, _, err := s.maker.live(id)
			require.NoError(t, err)
			require.Equal(t, domain.StateCommited, d.State)
			d, _, err = s.taker.live(id)
			require.NoError(t, err)
			require.Equal(t, domain.StateCreated, d.State)

			later := time.Now().Add(domain.TransactionTTL + time.Hour)
			tt.timeout(s, later)
			s.net.flush(t, nil)

			for _, n := range []*node{s.maker, s.taker} {
				_, _, err := n.live(id)
				require.ErrorIs(t, err, domain.ErrTransactionNotFound)
				require.Equal(t, domain.StateFinished, n.historic(t, id).State)
			}
			tx, err := s.hub.exchange.Transaction(id)
			require.NoError(t, err)
			require.Equal(t, domain.StateFinished, tx.State)

			require.Equal(t, uint64(ltcAmount), s.maker.balance(t, "LTC"))
			require.Equal(t, uint64(btcAmount), s.taker.balance(t, "BTC"))
		})
	}
}

func TestNoRollbackAfterPayment(t *testing.T) {
	s := newSwapSetup(t)
	id := s.openOrder(t)

	require.NoError(t, s.taker.sessions["LTC"].AcceptXBridgeTransaction(
		ctx, id, s.takerLTC, s.takerBTC,
	))
	dropSecret := func(pkt *packet.Packet) bool {
		return pkt.Command() == packet.CommandTransactionConfirmB
	}
	s.net.flush(t, dropSecret)
	s.chains.ltc.Mine(1)
	s.maker.sessions["BTC"].RetryPendingPackets(ctx)
	s.net.flush(t, dropSecret)

	btc := s.maker.sessions["BTC"]
	require.ErrorIs(t, btc.RollbackTransaction(ctx, id), domain.ErrSecretRevealed)
	require.NoError(t, btc.CancelOrRollbackTransaction(ctx, id, domain.ReasonUserRequest))
	s.net.flush(t, dropSecret)

	// The payment is confirmed, the swap is done for the initiator.
	h := s.maker.historic(t, id)
	require.Equal(t, domain.StateFinished, h.State)
	require.Equal(t, uint64(ltcAmount), s.maker.balance(t, "LTC"))
	require.Less(t, s.maker.balance(t, "BTC"), uint64(funds-btcAmount))
}

func TestExpiry(t *testing.T) {
	s := newSwapSetup(t)
	id := s.openOrder(t)

	later := time.Now().Add(domain.PendingTTL + time.Hour)
	s.hub.sessions["BTC"].EraseExpiredPendingTransactions(ctx, later)
	s.net.flush(t, nil)

	tx, err := s.hub.exchange.Transaction(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateExpired, tx.State)

	h := s.maker.historic(t, id)
	require.Equal(t, domain.StateDropped, h.State)
	require.Equal(t, domain.ReasonTimeout, h.Reason)

	_, _, err = s.taker.live(id)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestInvalidOrders(t *testing.T) {
	s := newSwapSetup(t)
	btc := s.maker.sessions["BTC"]

	tests := []struct {
		name         string
		from         string
		fromCurrency string
		fromAmount   uint64
		to           string
		toCurrency   string
		toAmount     uint64
		expectedErr  error
	}{
		{"wrong_session", s.makerLTC, "LTC", ltcAmount, s.makerBTC, "BTC", btcAmount, session.ErrUnknownCurrency},
		{"unknown_currency", s.makerBTC, "BTC", btcAmount, s.makerLTC, "DOGE", ltcAmount, session.ErrUnknownCurrency},
		{"invalid_address", s.makerLTC, "BTC", btcAmount, s.makerLTC, "LTC", ltcAmount, session.ErrInvalidAddress},
		{"dust", s.makerBTC, "BTC", 100, s.makerLTC, "LTC", ltcAmount, ports.ErrDust},
		{"no_money", s.makerBTC, "BTC", funds * 2, s.makerLTC, "LTC", ltcAmount, ports.ErrInsufficientFunds},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			_, err := btc.SendXBridgeTransaction(
				ctx, tt.from, tt.fromCurrency, tt.fromAmount,
				tt.to, tt.toCurrency, tt.toAmount,
			)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestInvalidAccept(t *testing.T) {
	s := newSwapSetup(t)
	id := s.openOrder(t)

	err := s.maker.sessions["LTC"].AcceptXBridgeTransaction(ctx, id, s.makerLTC, s.makerBTC)
	require.ErrorIs(t, err, session.ErrNotPending)

	err = s.taker.sessions["LTC"].AcceptXBridgeTransaction(ctx, "unknown", s.takerLTC, s.takerBTC)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	err = s.taker.sessions["BTC"].AcceptXBridgeTransaction(ctx, id, s.takerLTC, s.takerBTC)
	require.ErrorIs(t, err, session.ErrUnknownCurrency)

	err = s.taker.sessions["LTC"].AcceptXBridgeTransaction(ctx, id, s.takerBTC, s.takerBTC)
	require.ErrorIs(t, err, session.ErrInvalidAddress)
}

func TestPacketFiltering(t *testing.T) {
	s := newSwapSetup(t)
	btc := s.maker.sessions["BTC"]

	wrongVersion := packet.New([]byte("someone-else-address"), nil, &packet.TransactionHold{ID: "id"})
	wrongVersion.Version++
	require.ErrorIs(t, btc.ProcessPacket(ctx, wrongVersion), packet.ErrBadVersion)

	elsewhere := packet.New(
		[]byte("someone-else-address"), []byte("another-session-addr"),
		&packet.TransactionHold{ID: "id"},
	)
	require.ErrorIs(t, btc.ProcessPacket(ctx, elsewhere), session.ErrWrongAddress)

	notHub := packet.New(
		[]byte("someone-else-address"), btc.Address(),
		&packet.TransactionHoldApply{ID: "id"},
	)
	require.ErrorIs(t, btc.ProcessPacket(ctx, notHub), session.ErrNotHub)

	inner, err := packet.New(nil, nil, &packet.XChatMessage{}).Serialize()
	require.NoError(t, err)
	nested := packet.New(nil, nil, &packet.XChatMessage{Packet: inner})
	require.ErrorIs(t, btc.ProcessPacket(ctx, nested), session.ErrNestedXChat)
}
