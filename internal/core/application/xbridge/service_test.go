package xbridge_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/application/xbridge"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/internal/infrastructure/storage/db/inmemory"
	transport "github.com/tdex-network/xbridge/internal/infrastructure/transport/inmemory"
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

	waitFor = 10 * time.Second
	tick    = 20 * time.Millisecond
)

type clock struct {
	lock   *sync.Mutex
	offset time.Duration
}

func newClock() *clock {
	return &clock{lock: &sync.Mutex{}}
}

func (c *clock) now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return time.Now().Add(c.offset)
}

func (c *clock) advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.offset += d
}

type node struct {
	svc     *xbridge.Service
	clock   *clock
	wallets map[string]*chainsim.Wallet
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

// state returns the state of a swap, or StateInvalid if the node doesn't
// know it.
func (n *node) state(id string) domain.State {
	d, err := n.svc.Transaction(ctx, id)
	if err != nil {
		return domain.StateInvalid
	}
	return d.State
}

type network struct {
	lockTimeBase       time.Duration
	bus                *transport.Bus
	btc, ltc           *chainsim.Chain
	hub, maker, taker  *node
	makerBTC, makerLTC string
	takerBTC, takerLTC string
}

func newNetwork(t *testing.T) *network {
	return newNetworkWithLockTime(t, lockTimeBase)
}

func newNetworkWithLockTime(t *testing.T, lockTime time.Duration) *network {
	n := &network{
		lockTimeBase: lockTime,
		bus:          transport.NewBus(),
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
	n.hub = n.newNode(t, true)
	n.maker = n.newNode(t, false)
	n.taker = n.newNode(t, false)

	_, err := n.maker.wallets["BTC"].Fund(funds)
	require.NoError(t, err)
	_, err = n.taker.wallets["LTC"].Fund(funds)
	require.NoError(t, err)

	n.makerBTC = n.maker.address(t, "BTC")
	n.makerLTC = n.maker.address(t, "LTC")
	n.takerBTC = n.taker.address(t, "BTC")
	n.takerLTC = n.taker.address(t, "LTC")

	for _, nd := range []*node{n.hub, n.maker, n.taker} {
		svc := nd.svc
		require.NoError(t, svc.Start(ctx))
		t.Cleanup(func() { svc.Stop() })
	}
	return n
}

func (n *network) newNode(t *testing.T, hub bool) *node {
	nd := &node{
		clock: newClock(),
		wallets: map[string]*chainsim.Wallet{
			"BTC": n.btc.NewWallet(),
			"LTC": n.ltc.NewWallet(),
		},
	}

	connectors := make(map[string]ports.WalletConnector)
	params := map[string]connector.ChainParams{
		"BTC": connector.BTCParams,
		"LTC": connector.LTCParams,
	}
	for currency, p := range params {
		conn, err := connector.NewConnector(p, nd.wallets[currency], n.lockTimeBase)
		require.NoError(t, err)
		connectors[currency] = conn
	}

	svc, err := xbridge.NewService(xbridge.Config{
		Connectors:      connectors,
		Repo:            inmemory.NewRepoManager(),
		Transport:       n.bus.NewEndpoint(),
		ExchangeEnabled: hub,
		WorkerCount:     2,
		// The timer is driven by the tests.
		TimerInterval: time.Hour,
		Clock:         nd.clock.now,
	})
	require.NoError(t, err)
	nd.svc = svc
	return nd
}

// openOrder makes the maker sell BTC for LTC and waits for the taker to see
// the order.
func (n *network) openOrder(t *testing.T) string {
	id, err := n.maker.svc.SendXBridgeTransaction(
		ctx, n.makerBTC, "BTC", btcAmount, n.makerLTC, "LTC", ltcAmount,
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return n.maker.state(id) == domain.StatePending &&
			n.taker.state(id) == domain.StatePending
	}, waitFor, tick)
	return id
}

func TestSwap(t *testing.T) {
	tests := []struct {
		name         string
		lockTimeBase time.Duration
	}{
		{"default_lock_time", domain.LockTimeBase},
		{"long_lock_time", lockTimeBase},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			n := newNetworkWithLockTime(t, tt.lockTimeBase)
			testSwap(t, n)
		})
	}
}

func testSwap(t *testing.T, n *network) {
	id := n.openOrder(t)

	pending, err := n.taker.svc.PendingTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.False(t, pending[0].Local)

	hubTxs, err := n.hub.svc.HubTransactions()
	require.NoError(t, err)
	require.Len(t, hubTxs.Pending, 1)

	require.NoError(t, n.taker.svc.AcceptXBridgeTransaction(
		ctx, id, n.takerLTC, n.takerBTC,
	))
	require.Eventually(t, func() bool {
		return n.maker.state(id) == domain.StateCreated &&
			n.taker.state(id) == domain.StateCreated
	}, waitFor, tick)

	// The deposit of the acceptor needs one more LTC block before the
	// initiator accepts it.
	n.ltc.Mine(1)
	require.Eventually(t, func() bool {
		n.maker.svc.OnTimer(ctx)
		return n.maker.state(id) == domain.StateFinished &&
			n.taker.state(id) == domain.StateFinished
	}, waitFor, tick)

	for _, nd := range []*node{n.maker, n.taker} {
		active, err := nd.svc.ActiveTransactions(ctx)
		require.NoError(t, err)
		require.Empty(t, active)

		history, err := nd.svc.HistoricTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.True(t, nd.svc.IsHistoricState(history[0].State))
		require.Nil(t, history[0].MPrivKey)
	}

	require.Eventually(t, func() bool {
		tx, err := n.hub.svc.HubTransaction(id)
		return err == nil && tx.State == domain.StateFinished
	}, waitFor, tick)

	require.Equal(t, uint64(ltcAmount), n.maker.balance(t, "LTC"))
	require.Equal(t, uint64(btcAmount), n.taker.balance(t, "BTC"))
}

func TestDuplicateMessage(t *testing.T) {
	n := newNetwork(t)
	id := n.openOrder(t)

	var (
		lock    = &sync.Mutex{}
		createB []byte
		created int
	)
	// The deposit of the initiator is withheld from the acceptor, and the
	// deposits reported by the acceptor are counted.
	n.bus.SetDropFilter(func(raw []byte) bool {
		pkt, err := packet.Deserialize(raw)
		if err != nil {
			return false
		}
		lock.Lock()
		defer lock.Unlock()
		switch pkt.Command() {
		case packet.CommandTransactionCreateB:
			createB = append([]byte(nil), raw...)
			return true
		case packet.CommandTransactionCreatedB:
			created++
		}
		return false
	})
	withheld := func() []byte {
		lock.Lock()
		defer lock.Unlock()
		return createB
	}
	createdCount := func() int {
		lock.Lock()
		defer lock.Unlock()
		return created
	}

	require.NoError(t, n.taker.svc.AcceptXBridgeTransaction(
		ctx, id, n.takerLTC, n.takerBTC,
	))
	require.Eventually(t, func() bool {
		return n.maker.state(id) == domain.StateCreated && withheld() != nil
	}, waitFor, tick)
	require.Equal(t, domain.StateInitialized, n.taker.state(id))

	raw := withheld()
	n.taker.svc.OnMessage(raw)
	n.taker.svc.OnMessage(raw)
	require.True(t, n.taker.svc.IsKnownMessage(packet.Hash(raw)))

	require.Eventually(t, func() bool {
		return n.taker.state(id) == domain.StateCreated && createdCount() > 0
	}, waitFor, tick)

	n.ltc.Mine(1)
	require.Eventually(t, func() bool {
		n.maker.svc.OnTimer(ctx)
		return n.maker.state(id) == domain.StateFinished &&
			n.taker.state(id) == domain.StateFinished
	}, waitFor, tick)

	// A single deposit was made by the acceptor.
	require.Equal(t, 1, createdCount())
	require.Equal(t, uint64(ltcAmount), n.maker.balance(t, "LTC"))
	require.Equal(t, uint64(btcAmount), n.taker.balance(t, "BTC"))
	require.Greater(t, n.taker.balance(t, "LTC"), uint64(funds-2*ltcAmount))
}

func TestCancelBeforeDeposit(t *testing.T) {
	n := newNetwork(t)
	id := n.openOrder(t)

	require.NoError(t, n.maker.svc.CancelXBridgeTransaction(
		ctx, id, domain.ReasonUserRequest,
	))
	require.Eventually(t, func() bool {
		tx, err := n.hub.svc.HubTransaction(id)
		return err == nil && tx.State == domain.StateCancelled &&
			n.taker.state(id) == domain.StateInvalid
	}, waitFor, tick)

	d, err := n.maker.svc.Transaction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StateCancelled, d.State)
	require.Equal(t, domain.ReasonUserRequest, d.Reason)

	// The coins of the order are available again.
	_, err = n.maker.svc.SendXBridgeTransaction(
		ctx, n.makerBTC, "BTC", funds/2, n.makerLTC, "LTC", ltcAmount,
	)
	require.NoError(t, err)
}

func TestTimeoutAfterDeposit(t *testing.T) {
	n := newNetwork(t)
	id := n.openOrder(t)

	// The acceptor never learns about the deposit of the initiator.
	n.bus.SetDropFilter(func(raw []byte) bool {
		pkt, err := packet.Deserialize(raw)
		return err == nil && pkt.Command() == packet.CommandTransactionCreateB
	})

	require.NoError(t, n.taker.svc.AcceptXBridgeTransaction(
		ctx, id, n.takerLTC, n.takerBTC,
	))
	require.Eventually(t, func() bool {
		return n.maker.state(id) == domain.StateCreated
	}, waitFor, tick)

	n.hub.clock.advance(domain.TransactionTTL + time.Minute)
	n.hub.svc.OnTimer(ctx)

	// The refund is not final until the lock time.
	require.Eventually(t, func() bool {
		return n.maker.state(id) == domain.StateRollbackFailed &&
			n.taker.state(id) == domain.StateCancelled
	}, waitFor, tick)

	d, err := n.maker.svc.Transaction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.ReasonTimeout, d.Reason)

	n.btc.Mine(int(int64(d.LockTime) - n.btc.Height()))
	n.maker.svc.OnTimer(ctx)
	require.Equal(t, domain.StateRollback, n.maker.state(id))
	require.Greater(t, n.maker.balance(t, "BTC"), uint64(funds-btcAmount))

	tx, err := n.hub.svc.HubTransaction(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateRollback, tx.State)
}

func TestPendingExpiry(t *testing.T) {
	n := newNetwork(t)
	id := n.openOrder(t)

	n.hub.clock.advance(domain.PendingTTL + time.Hour)
	n.hub.svc.OnTimer(ctx)

	require.Eventually(t, func() bool {
		return n.maker.state(id) == domain.StateDropped &&
			n.taker.state(id) == domain.StateInvalid
	}, waitFor, tick)

	tx, err := n.hub.svc.HubTransaction(id)
	require.NoError(t, err)
	require.Equal(t, domain.StateExpired, tx.State)
}

func TestAddressBook(t *testing.T) {
	n := newNetwork(t)

	for _, nd := range []*node{n.hub, n.maker, n.taker} {
		nd.svc.OnTimer(ctx)
	}
	require.Eventually(t, func() bool {
		found := 0
		for _, e := range n.hub.svc.AddressBook() {
			if e.Address == n.makerBTC || e.Address == n.takerLTC {
				found++
			}
		}
		return found == 2
	}, waitFor, tick)
}

func TestKnownMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hub  bool
	}{
		{"party", false},
		{"hub", true},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := &network{
				bus: transport.NewBus(),
				btc: chainsim.NewChain(chainsim.Config{AddrPrefix: 0x00, ScriptPrefix: 0x05, SecretPrefix: 0x80}),
				ltc: chainsim.NewChain(chainsim.Config{AddrPrefix: 0x30, ScriptPrefix: 0x32, SecretPrefix: 0xb0}),
			}
			nd := n.newNode(t, tt.hub)
			require.Equal(t, tt.hub, nd.svc.IsHub())

			raw, err := packet.New(nil, nil, &packet.TransactionDropped{ID: "id"}).Serialize()
			require.NoError(t, err)
			hash := packet.Hash(raw)

			require.False(t, nd.svc.IsKnownMessage(hash))
			require.True(t, nd.svc.AddToKnown(hash))
			require.False(t, nd.svc.AddToKnown(hash))
			require.True(t, nd.svc.IsKnownMessage(hash))
		})
	}
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()

	n := &network{
		bus: transport.NewBus(),
		btc: chainsim.NewChain(chainsim.Config{AddrPrefix: 0x00, ScriptPrefix: 0x05, SecretPrefix: 0x80}),
		ltc: chainsim.NewChain(chainsim.Config{AddrPrefix: 0x30, ScriptPrefix: 0x32, SecretPrefix: 0xb0}),
	}
	nd := n.newNode(t, false)

	require.ErrorIs(t, nd.svc.Stop(), xbridge.ErrNotStarted)
	require.NoError(t, nd.svc.Start(ctx))
	require.ErrorIs(t, nd.svc.Start(ctx), xbridge.ErrAlreadyStarted)
	require.NoError(t, nd.svc.Stop())

	require.Equal(t, []string{"BTC", "LTC"}, nd.svc.Currencies())
	_, err := nd.svc.HubTransactions()
	require.ErrorIs(t, err, xbridge.ErrNotHub)
}
