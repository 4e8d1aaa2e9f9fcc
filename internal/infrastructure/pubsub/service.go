// Package pubsub delivers events to webhooks: every message published for a
// topic is POSTed to the endpoints subscribed to it or to any topic.
package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/xbridge/internal/core/ports"
	"github.com/tdex-network/xbridge/pkg/circuitbreaker"
	"golang.org/x/sync/errgroup"
)

const (
	requestTimeout = 15 * time.Second
	tokenTTL       = 5 * time.Minute
)

type service struct {
	store  *store
	topics map[string]bool
	poster *poster
	cb     *gobreaker.CircuitBreaker

	lock   *sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService returns a webhook pubsub accepting subscriptions for the given
// topics and for any topic. With no topics every topic is accepted.
func NewService(topics ...string) ports.PubSub {
	accepted := make(map[string]bool)
	for _, t := range topics {
		accepted[t] = true
	}
	if len(accepted) > 0 {
		accepted[ports.AnyTopic] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &service{
		store:  newStore(),
		topics: accepted,
		poster: newPoster(requestTimeout),
		cb:     circuitbreaker.NewCircuitBreaker("webhooks"),
		lock:   &sync.RWMutex{},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (ws *service) Subscribe(topic, endpoint, secret string) (string, error) {
	if len(ws.topics) > 0 && !ws.topics[topic] {
		return "", ErrInvalidTopic
	}
	sub, err := NewSubscription(topic, endpoint, secret)
	if err != nil {
		return "", err
	}

	ws.store.add(*sub)
	return sub.ID, nil
}

func (ws *service) Unsubscribe(_, id string) error {
	if !ws.store.remove(id) {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (ws *service) ListSubscriptionsForTopic(topic string) []ports.Subscription {
	return ws.listSubscriptionsForTopic(topic).toPortable()
}

func (ws *service) Publish(topic string, message string) error {
	if ws.isClosed() {
		return ErrClosed
	}
	return ws.publishForTopic(topic, message)
}

func (ws *service) Close() {
	ws.lock.Lock()
	defer ws.lock.Unlock()
	ws.cancel()
	ws.store.clear()
}

func (ws *service) isClosed() bool {
	ws.lock.RLock()
	defer ws.lock.RUnlock()
	return ws.ctx.Err() != nil
}

func (ws *service) listSubscriptionsForTopic(topic string) subscriptions {
	subs := ws.store.forTopic(topic)
	if topic != ports.AnyTopic && topic != ports.UnspecifiedTopic {
		subs = append(subs, ws.store.forTopic(ports.AnyTopic)...)
	}
	return subs
}

func (ws *service) publishForTopic(topic, message string) error {
	subs := ws.listSubscriptionsForTopic(topic)

	eg := &errgroup.Group{}
	for i := range subs {
		sub := subs[i]
		eg.Go(func() error { return ws.doRequest(sub, message) })
	}
	return eg.Wait()
}

func (ws *service) doRequest(sub Subscription, message string) error {
	_, err := ws.cb.Execute(func() (interface{}, error) {
		return nil, ws.poster.post(ws.ctx, sub, message)
	})
	return err
}
