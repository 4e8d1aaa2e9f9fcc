package pubsub

import (
	"sort"
	"sync"
)

// store keeps the subscriptions in memory, indexed by id and by topic.
type store struct {
	lock    *sync.RWMutex
	subs    map[string]Subscription
	byTopic map[string]map[string]struct{}
}

func newStore() *store {
	return &store{
		lock:    &sync.RWMutex{},
		subs:    make(map[string]Subscription),
		byTopic: make(map[string]map[string]struct{}),
	}
}

func (s *store) add(sub Subscription) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.subs[sub.ID] = sub
	ids, ok := s.byTopic[sub.Event]
	if !ok {
		ids = make(map[string]struct{})
		s.byTopic[sub.Event] = ids
	}
	ids[sub.ID] = struct{}{}
}

func (s *store) remove(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return false
	}
	delete(s.subs, id)
	delete(s.byTopic[sub.Event], id)
	if len(s.byTopic[sub.Event]) <= 0 {
		delete(s.byTopic, sub.Event)
	}
	return true
}

// forTopic returns the subscriptions of the given topic, or all of them if
// topic is empty, sorted by id.
func (s *store) forTopic(topic string) subscriptions {
	s.lock.RLock()
	defer s.lock.RUnlock()

	subs := make(subscriptions, 0)
	if topic == "" {
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
	} else {
		for id := range s.byTopic[topic] {
			subs = append(subs, s.subs[id])
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].ID < subs[j].ID
	})
	return subs
}

func (s *store) clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subs = make(map[string]Subscription)
	s.byTopic = make(map[string]map[string]struct{})
}
