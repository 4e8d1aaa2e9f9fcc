package inmemory_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/infrastructure/transport/inmemory"
)

type inbox struct {
	lock     *sync.Mutex
	messages [][]byte
}

func newInbox() *inbox {
	return &inbox{lock: &sync.Mutex{}}
}

func (i *inbox) onMessage(raw []byte) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.messages = append(i.messages, raw)
}

func (i *inbox) count() int {
	i.lock.Lock()
	defer i.lock.Unlock()
	return len(i.messages)
}

func TestBus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bus := inmemory.NewBus()

	endpoints := make([]*inmemory.Endpoint, 0, 3)
	inboxes := make([]*inbox, 0, 3)
	for i := 0; i < 3; i++ {
		e := bus.NewEndpoint()
		in := newInbox()
		require.NoError(t, e.Start(ctx, in.onMessage))
		endpoints = append(endpoints, e)
		inboxes = append(inboxes, in)
	}

	msg := []byte("hello")
	require.NoError(t, endpoints[0].Broadcast(ctx, msg))
	require.Zero(t, inboxes[0].count())
	require.Equal(t, 1, inboxes[1].count())
	require.Equal(t, 1, inboxes[2].count())
	require.True(t, bytes.Equal(msg, inboxes[1].messages[0]))

	bus.SetDropFilter(func(raw []byte) bool {
		return bytes.Equal(raw, []byte("lost"))
	})
	require.NoError(t, endpoints[1].Broadcast(ctx, []byte("lost")))
	require.Zero(t, inboxes[0].count())

	require.NoError(t, endpoints[2].Close())
	require.ErrorIs(t, endpoints[2].Broadcast(ctx, msg), inmemory.ErrClosed)
	require.ErrorIs(t, endpoints[2].Start(ctx, func([]byte) {}), inmemory.ErrClosed)

	require.NoError(t, endpoints[0].Broadcast(ctx, msg))
	require.Equal(t, 2, inboxes[1].count())
	require.Equal(t, 1, inboxes[2].count())
}

func TestStopOnContext(t *testing.T) {
	t.Parallel()

	bus := inmemory.NewBus()
	sender := bus.NewEndpoint()
	receiver := bus.NewEndpoint()

	in := newInbox()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, receiver.Start(ctx, in.onMessage))
	cancel()

	require.Eventually(t, func() bool {
		return receiver.Broadcast(context.Background(), nil) != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sender.Broadcast(context.Background(), []byte("late")))
	require.Zero(t, in.count())
}
