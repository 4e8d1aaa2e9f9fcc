// Package pubsub turns the swap events of the node into notifications for
// the operator: JSON messages published to webhooks, log lines, or both.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
)

const (
	EventPendingTransactionReceived = "PENDING_TRANSACTION_RECEIVED"
	EventTransactionStateChanged    = "TRANSACTION_STATE_CHANGED"
	EventTransactionCancelled       = "TRANSACTION_CANCELLED"
	EventAddressBookEntryReceived   = "ADDRESS_BOOK_ENTRY_RECEIVED"
)

// ErrInvalidEvent is returned for webhooks of an unknown event type.
var ErrInvalidEvent = errors.New("invalid webhook event type")

// Topics lists the events webhooks can subscribe to, besides ports.AnyTopic.
var Topics = []string{
	EventPendingTransactionReceived,
	EventTransactionStateChanged,
	EventTransactionCancelled,
	EventAddressBookEntryReceived,
}

// Webhook is a subscription request.
type Webhook struct {
	Event    string
	Endpoint string
	Secret   string
}

// WebhookInfo describes an existing subscription. The secret is never
// returned.
type WebhookInfo struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Endpoint  string `json:"endpoint"`
	IsSecured bool   `json:"is_secured"`
}

// Service publishes every event to the webhooks subscribed to it. Webhooks
// are invoked in background so that the sessions are never blocked.
type Service struct {
	pubsub ports.PubSub
}

func NewService(pubsub ports.PubSub) *Service {
	return &Service{pubsub}
}

func (s *Service) AddWebhook(_ context.Context, webhook Webhook) (string, error) {
	if !isValidTopic(webhook.Event) {
		return "", ErrInvalidEvent
	}
	return s.pubsub.Subscribe(webhook.Event, webhook.Endpoint, webhook.Secret)
}

func (s *Service) RemoveWebhook(_ context.Context, id string) error {
	return s.pubsub.Unsubscribe(ports.UnspecifiedTopic, id)
}

func (s *Service) ListWebhooks(_ context.Context, event string) ([]WebhookInfo, error) {
	if event != ports.UnspecifiedTopic && !isValidTopic(event) {
		return nil, ErrInvalidEvent
	}
	subs := s.pubsub.ListSubscriptionsForTopic(event)
	webhooks := make([]WebhookInfo, 0, len(subs))
	for _, sub := range subs {
		webhooks = append(webhooks, WebhookInfo{
			ID:        sub.Id(),
			Event:     sub.Topic(),
			Endpoint:  sub.NotifyAt(),
			IsSecured: sub.IsSecured(),
		})
	}
	return webhooks, nil
}

func (s *Service) PendingTransactionReceived(d *domain.TransactionDescr) {
	s.publish(EventPendingTransactionReceived, map[string]interface{}{
		"event":       EventPendingTransactionReceived,
		"transaction": getTransactionPayload(d),
	})
}

func (s *Service) TransactionStateChanged(d *domain.TransactionDescr) {
	s.publish(EventTransactionStateChanged, map[string]interface{}{
		"event":       EventTransactionStateChanged,
		"transaction": getTransactionPayload(d),
	})
}

func (s *Service) TransactionCancelled(d *domain.TransactionDescr, reason domain.CancelReason) {
	s.publish(EventTransactionCancelled, map[string]interface{}{
		"event":       EventTransactionCancelled,
		"transaction": getTransactionPayload(d),
		"reason":      getReasonPayload(reason),
	})
}

func (s *Service) AddressBookEntryReceived(entry domain.AddressBookEntry) {
	s.publish(EventAddressBookEntryReceived, map[string]interface{}{
		"event": EventAddressBookEntryReceived,
		"entry": getAddressBookEntryPayload(entry),
	})
}

func (s *Service) Close() {
	s.pubsub.Close()
}

func (s *Service) publish(event string, payload map[string]interface{}) {
	if len(s.pubsub.ListSubscriptionsForTopic(event)) <= 0 {
		return
	}
	message, _ := json.Marshal(payload)

	go func() {
		if err := s.pubsub.Publish(event, string(message)); err != nil {
			log.WithError(err).Warnf("pubsub: failed to publish %s event", event)
		}
	}()
}

func isValidTopic(topic string) bool {
	if topic == ports.AnyTopic {
		return true
	}
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}
