package ports

import "github.com/tdex-network/xbridge/internal/core/domain"

const AnyTopic = "*"
const UnspecifiedTopic = ""

type Subscription interface {
	Topic() string
	Id() string
	IsSecured() bool
	NotifyAt() string
}

// PubSub defines the methods of a service delivering swap events to external
// subscribers.
type PubSub interface {
	// Subscribe adds a new subscription for the requested topic.
	Subscribe(topic, endpoint, secret string) (string, error)
	// Unsubscribe removes some client defined by its id for a topic.
	Unsubscribe(topic, id string) error
	// ListSubscriptionsForTopic returns the info of all clients subscribed for
	// a certain topic.
	ListSubscriptionsForTopic(topic string) []Subscription
	// Publish publishes a message for a certain topic. All clients subscribed
	// for such topic will receive the message.
	Publish(topic string, message string) error
	Close()
}

// Notifier is told about the swap events a presentation layer shows to the
// operator. Implementations must not block the caller.
type Notifier interface {
	PendingTransactionReceived(d *domain.TransactionDescr)
	TransactionStateChanged(d *domain.TransactionDescr)
	TransactionCancelled(d *domain.TransactionDescr, reason domain.CancelReason)
	AddressBookEntryReceived(entry domain.AddressBookEntry)
}
