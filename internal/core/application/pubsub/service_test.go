package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/xbridge/internal/core/application/pubsub"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
)

var ctx = context.Background()

type mockPubSub struct {
	mock.Mock
	published chan string
}

func newMockPubSub() *mockPubSub {
	return &mockPubSub{published: make(chan string, 10)}
}

func (m *mockPubSub) Subscribe(topic, endpoint, secret string) (string, error) {
	args := m.Called(topic, endpoint, secret)
	return args.String(0), args.Error(1)
}

func (m *mockPubSub) Unsubscribe(topic, id string) error {
	return m.Called(topic, id).Error(0)
}

func (m *mockPubSub) ListSubscriptionsForTopic(topic string) []ports.Subscription {
	args := m.Called(topic)
	subs, _ := args.Get(0).([]ports.Subscription)
	return subs
}

func (m *mockPubSub) Publish(topic string, message string) error {
	m.published <- message
	return nil
}

func (m *mockPubSub) Close() {}

type subscription struct {
	id, topic, endpoint string
	secured             bool
}

func (s subscription) Topic() string    { return s.topic }
func (s subscription) Id() string       { return s.id }
func (s subscription) IsSecured() bool  { return s.secured }
func (s subscription) NotifyAt() string { return s.endpoint }

func newDescr(t *testing.T) *domain.TransactionDescr {
	d, err := domain.NewTransactionDescr(
		"1BoatSLRHtKNngkdXEeobR76b53LETtpyT", "BTC", 1000000,
		"LaMT348PWRnrqeeWArpwQPbuanpXDZGEUz", "LTC", 2000000,
	)
	require.NoError(t, err)
	return d
}

func TestWebhooks(t *testing.T) {
	t.Parallel()

	ps := newMockPubSub()
	ps.On("Subscribe", pubsub.EventTransactionStateChanged, "http://localhost/hook", "").
		Return("id", nil)
	ps.On("Unsubscribe", ports.UnspecifiedTopic, "id").Return(nil)
	ps.On("ListSubscriptionsForTopic", ports.UnspecifiedTopic).Return([]ports.Subscription{
		subscription{"id", pubsub.EventTransactionStateChanged, "http://localhost/hook", true},
	})
	svc := pubsub.NewService(ps)

	id, err := svc.AddWebhook(ctx, pubsub.Webhook{
		Event:    pubsub.EventTransactionStateChanged,
		Endpoint: "http://localhost/hook",
	})
	require.NoError(t, err)
	require.Equal(t, "id", id)

	_, err = svc.AddWebhook(ctx, pubsub.Webhook{Event: "TRADE_SETTLED"})
	require.Error(t, err)

	hooks, err := svc.ListWebhooks(ctx, ports.UnspecifiedTopic)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	require.True(t, hooks[0].IsSecured)

	require.NoError(t, svc.RemoveWebhook(ctx, "id"))
	ps.AssertExpectations(t)
}

func TestEvents(t *testing.T) {
	t.Parallel()

	d := newDescr(t)
	tests := []struct {
		name   string
		event  string
		notify func(n ports.Notifier)
	}{
		{
			"pending", pubsub.EventPendingTransactionReceived,
			func(n ports.Notifier) { n.PendingTransactionReceived(d) },
		},
		{
			"state_changed", pubsub.EventTransactionStateChanged,
			func(n ports.Notifier) { n.TransactionStateChanged(d) },
		},
		{
			"cancelled", pubsub.EventTransactionCancelled,
			func(n ports.Notifier) { n.TransactionCancelled(d, domain.ReasonTimeout) },
		},
		{
			"address_book", pubsub.EventAddressBookEntryReceived,
			func(n ports.Notifier) {
				n.AddressBookEntryReceived(domain.AddressBookEntry{
					Currency: "BTC", Name: "main", Address: d.From,
				})
			},
		},
	}

	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ps := newMockPubSub()
			ps.On("ListSubscriptionsForTopic", tt.event).Return([]ports.Subscription{
				subscription{"id", ports.AnyTopic, "http://localhost/hook", false},
			})
			notifier := pubsub.MultiNotifier{pubsub.LogNotifier{}, pubsub.NewService(ps)}
			tt.notify(notifier)

			select {
			case msg := <-ps.published:
				payload := make(map[string]interface{})
				require.NoError(t, json.Unmarshal([]byte(msg), &payload))
				require.Equal(t, tt.event, payload["event"])
			case <-time.After(5 * time.Second):
				t.Fatal("event not published")
			}
		})
	}
}

func TestNoSubscribers(t *testing.T) {
	t.Parallel()

	ps := newMockPubSub()
	ps.On("ListSubscriptionsForTopic", pubsub.EventTransactionStateChanged).
		Return([]ports.Subscription{})
	pubsub.NewService(ps).TransactionStateChanged(newDescr(t))

	select {
	case <-ps.published:
		t.Fatal("unexpected publish")
	case <-time.After(100 * time.Millisecond):
	}
}
