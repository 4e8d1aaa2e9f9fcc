package xbridge

import (
	"sort"
	"sync"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

type addressBook struct {
	lock    *sync.RWMutex
	entries map[string]domain.AddressBookEntry
}

func newAddressBook() *addressBook {
	return &addressBook{
		lock:    &sync.RWMutex{},
		entries: make(map[string]domain.AddressBookEntry),
	}
}

// AddEntry adds the entry to the book, renaming any entry with the same
// address. It returns whether the address was unknown.
func (b *addressBook) AddEntry(entry domain.AddressBookEntry) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	_, ok := b.entries[entry.Key()]
	b.entries[entry.Key()] = entry
	return !ok
}

func (b *addressBook) list() []domain.AddressBookEntry {
	b.lock.RLock()
	defer b.lock.RUnlock()

	entries := make([]domain.AddressBookEntry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Currency != entries[j].Currency {
			return entries[i].Currency < entries[j].Currency
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Address < entries[j].Address
	})
	return entries
}
