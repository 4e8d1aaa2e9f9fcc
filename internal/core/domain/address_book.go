package domain

// AddressBookEntry is a named address of a currency, either from a local
// wallet or announced by a peer.
type AddressBookEntry struct {
	Currency string
	Name     string
	Address  string
}

// Key uniquely identifies the entry in an address book.
func (e AddressBookEntry) Key() string {
	return e.Currency + ":" + e.Address
}
