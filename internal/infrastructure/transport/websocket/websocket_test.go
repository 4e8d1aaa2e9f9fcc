package websocket_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/infrastructure/transport/websocket"
)

type inbox struct {
	lock     *sync.Mutex
	messages []string
}

func newInbox() *inbox {
	return &inbox{lock: &sync.Mutex{}}
}

func (i *inbox) onMessage(raw []byte) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.messages = append(i.messages, string(raw))
}

func (i *inbox) received() []string {
	i.lock.Lock()
	defer i.lock.Unlock()
	return append([]string(nil), i.messages...)
}

func newRelay(t *testing.T) string {
	ctx, cancel := context.WithCancel(context.Background())
	relay := websocket.NewRelay()
	go relay.Run(ctx)

	server := httptest.NewServer(relay)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestRelay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	url := newRelay(t)

	clients := make([]*websocket.Client, 0, 3)
	inboxes := make([]*inbox, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := websocket.NewClient(url)
		require.NoError(t, err)
		in := newInbox()
		require.NoError(t, c.Start(ctx, in.onMessage))
		t.Cleanup(func() { c.Close() })
		clients = append(clients, c)
		inboxes = append(inboxes, in)
	}

	// Registration is asynchronous.
	require.Eventually(t, func() bool {
		clients[0].Broadcast(ctx, []byte("ping"))
		return len(inboxes[1].received()) > 0 && len(inboxes[2].received()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, clients[1].Broadcast(ctx, []byte("pong")))
	require.Eventually(t, func() bool {
		for _, m := range inboxes[0].received() {
			if m == "pong" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	for _, m := range inboxes[0].received() {
		require.NotEqual(t, "ping", m)
	}
	for _, m := range inboxes[1].received() {
		require.NotEqual(t, "pong", m)
	}

	require.NoError(t, clients[2].Close())
	require.ErrorIs(t, clients[2].Broadcast(ctx, []byte("late")), websocket.ErrClosed)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{"ws", "ws://localhost:9000", true},
		{"wss", "wss://relay.example.com/xbridge", true},
		{"http", "http://localhost:9000", false},
		{"malformed", "://", false},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := websocket.NewClient(tt.url)
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestUnreachableRelay(t *testing.T) {
	t.Parallel()

	c, err := websocket.NewClient("ws://127.0.0.1:1")
	require.NoError(t, err)
	require.Error(t, c.Start(context.Background(), func([]byte) {}))
	require.ErrorIs(t, c.Broadcast(context.Background(), nil), websocket.ErrNotConnected)
}
