package pubsub

import (
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/xbridge/internal/core/domain"
	"github.com/tdex-network/xbridge/internal/core/ports"
)

// LogNotifier reports the swap events in the log.
type LogNotifier struct{}

func (LogNotifier) PendingTransactionReceived(d *domain.TransactionDescr) {
	log.WithField("id", d.ID).Infof(
		"open order received: %d %s -> %d %s",
		d.FromAmount, d.FromCurrency, d.ToAmount, d.ToCurrency,
	)
}

func (LogNotifier) TransactionStateChanged(d *domain.TransactionDescr) {
	log.WithFields(log.Fields{"id": d.ID, "role": d.Role}).Infof(
		"swap %s", d.State,
	)
}

func (LogNotifier) TransactionCancelled(d *domain.TransactionDescr, reason domain.CancelReason) {
	log.WithFields(log.Fields{"id": d.ID, "role": d.Role}).Infof(
		"swap %s: %s", d.State, reason,
	)
}

func (LogNotifier) AddressBookEntryReceived(entry domain.AddressBookEntry) {
	log.Debugf("new %s address %s (%s)", entry.Currency, entry.Address, entry.Name)
}

// MultiNotifier fans every event out to all of its notifiers.
type MultiNotifier []ports.Notifier

func (m MultiNotifier) PendingTransactionReceived(d *domain.TransactionDescr) {
	for _, n := range m {
		n.PendingTransactionReceived(d)
	}
}

func (m MultiNotifier) TransactionStateChanged(d *domain.TransactionDescr) {
	for _, n := range m {
		n.TransactionStateChanged(d)
	}
}

func (m MultiNotifier) TransactionCancelled(d *domain.TransactionDescr, reason domain.CancelReason) {
	for _, n := range m {
		n.TransactionCancelled(d, reason)
	}
}

func (m MultiNotifier) AddressBookEntryReceived(entry domain.AddressBookEntry) {
	for _, n := range m {
		n.AddressBookEntryReceived(entry)
	}
}
