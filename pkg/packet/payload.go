package packet

// Payload is the command specific content of a packet. The set of payloads
// is closed: only the types of this package implement it.
type Payload interface {
	Command() Command
	encode(w *writer)
	decode(r *reader)
}

// Terms are the economic terms of an order as seen by the party sending or
// receiving them.
type Terms struct {
	Source         string
	SourceCurrency string
	SourceAmount   uint64
	Dest           string
	DestCurrency   string
	DestAmount     uint64
}

func (t *Terms) encode(w *writer) {
	w.string(t.Source)
	w.string(t.SourceCurrency)
	w.uint64(t.SourceAmount)
	w.string(t.Dest)
	w.string(t.DestCurrency)
	w.uint64(t.DestAmount)
}

func (t *Terms) decode(r *reader) {
	t.Source = r.string()
	t.SourceCurrency = r.string()
	t.SourceAmount = r.uint64()
	t.Dest = r.string()
	t.DestCurrency = r.string()
	t.DestAmount = r.uint64()
}

// AddressEntry is an address book entry announced to the network.
type AddressEntry struct {
	Currency string
	Name     string
	Address  string
}

// AnnounceAddresses broadcasts the local address book.
type AnnounceAddresses struct {
	Entries []AddressEntry
}

func (*AnnounceAddresses) Command() Command { return CommandAnnounceAddresses }

func (p *AnnounceAddresses) encode(w *writer) {
	w.varint(uint64(len(p.Entries)))
	for _, e := range p.Entries {
		w.string(e.Currency)
		w.string(e.Name)
		w.string(e.Address)
	}
}

func (p *AnnounceAddresses) decode(r *reader) {
	count := r.varint()
	if r.err != nil {
		return
	}
	if count > maxFieldBytes {
		r.err = ErrPacketTooLarge
		return
	}
	p.Entries = make([]AddressEntry, 0, count)
	for i := uint64(0); i < count && r.err == nil; i++ {
		p.Entries = append(p.Entries, AddressEntry{
			Currency: r.string(),
			Name:     r.string(),
			Address:  r.string(),
		})
	}
}

// XChatMessage relays a serialized packet to a session.
type XChatMessage struct {
	Packet []byte
}

func (*XChatMessage) Command() Command   { return CommandXChatMessage }
func (p *XChatMessage) encode(w *writer) { w.bytes(p.Packet) }
func (p *XChatMessage) decode(r *reader) { p.Packet = r.bytes("packet") }

// Transaction is the broadcast of a new order by its maker.
type Transaction struct {
	ID      string
	Terms   Terms
	Created int64
}

func (*Transaction) Command() Command { return CommandTransaction }

func (p *Transaction) encode(w *writer) {
	w.string(p.ID)
	p.Terms.encode(w)
	w.int64(p.Created)
}

func (p *Transaction) decode(r *reader) {
	p.ID = r.string()
	p.Terms.decode(r)
	p.Created = r.int64()
}

// PendingTransaction is the broadcast by a hub of an order waiting for a
// counter order. Addresses of the maker are not disclosed.
type PendingTransaction struct {
	ID             string
	SourceCurrency string
	SourceAmount   uint64
	DestCurrency   string
	DestAmount     uint64
	Created        int64
}

func (*PendingTransaction) Command() Command { return CommandPendingTransaction }

func (p *PendingTransaction) encode(w *writer) {
	w.string(p.ID)
	w.string(p.SourceCurrency)
	w.uint64(p.SourceAmount)
	w.string(p.DestCurrency)
	w.uint64(p.DestAmount)
	w.int64(p.Created)
}

func (p *PendingTransaction) decode(r *reader) {
	p.ID = r.string()
	p.SourceCurrency = r.string()
	p.SourceAmount = r.uint64()
	p.DestCurrency = r.string()
	p.DestAmount = r.uint64()
	p.Created = r.int64()
}

// TransactionAccepting is sent by a taker to the hub of a pending order.
type TransactionAccepting struct {
	ID    string
	Terms Terms
}

func (*TransactionAccepting) Command() Command { return CommandTransactionAccepting }

func (p *TransactionAccepting) encode(w *writer) {
	w.string(p.ID)
	p.Terms.encode(w)
}

func (p *TransactionAccepting) decode(r *reader) {
	p.ID = r.string()
	p.Terms.decode(r)
}

// TransactionCancel asks to cancel a swap, or tells a member that the swap
// was cancelled before any deposit.
type TransactionCancel struct {
	ID     string
	Reason uint32
}

func (*TransactionCancel) Command() Command { return CommandTransactionCancel }

func (p *TransactionCancel) encode(w *writer) {
	w.string(p.ID)
	w.uint32(p.Reason)
}

func (p *TransactionCancel) decode(r *reader) {
	p.ID = r.string()
	p.Reason = r.uint32()
}

// TransactionHold tells both members that their orders were joined.
type TransactionHold struct {
	ID string
}

func (*TransactionHold) Command() Command   { return CommandTransactionHold }
func (p *TransactionHold) encode(w *writer) { w.string(p.ID) }
func (p *TransactionHold) decode(r *reader) { p.ID = r.string() }

// TransactionHoldApply is a member being ready to lock funds.
type TransactionHoldApply struct {
	ID string
}

func (*TransactionHoldApply) Command() Command   { return CommandTransactionHoldApply }
func (p *TransactionHoldApply) encode(w *writer) { w.string(p.ID) }
func (p *TransactionHoldApply) decode(r *reader) { p.ID = r.string() }

// TransactionInit carries the full terms of the swap from the point of view
// of the receiving member, together with its role.
type TransactionInit struct {
	ID    string
	Role  byte
	Terms Terms
}

func (*TransactionInit) Command() Command { return CommandTransactionInit }

func (p *TransactionInit) encode(w *writer) {
	w.string(p.ID)
	w.bytes([]byte{p.Role})
	p.Terms.encode(w)
}

func (p *TransactionInit) decode(r *reader) {
	p.ID = r.string()
	if role := r.bytes("role"); len(role) == 1 {
		p.Role = role[0]
	}
	p.Terms.decode(r)
}

// TransactionInitialized carries the multisig public key of a member and,
// from the initiator only, the hash of its exchange public key.
type TransactionInitialized struct {
	ID      string
	MPubKey []byte
	XHash   []byte
}

func (*TransactionInitialized) Command() Command { return CommandTransactionInitialized }

func (p *TransactionInitialized) encode(w *writer) {
	w.string(p.ID)
	w.bytes(p.MPubKey)
	w.bytes(p.XHash)
}

func (p *TransactionInitialized) decode(r *reader) {
	p.ID = r.string()
	p.MPubKey = r.bytes("mpubkey")
	p.XHash = r.bytes("xhash")
}

// TransactionCreateA asks the initiator to make its deposit.
type TransactionCreateA struct {
	ID           string
	OtherMPubKey []byte
}

func (*TransactionCreateA) Command() Command { return CommandTransactionCreateA }

func (p *TransactionCreateA) encode(w *writer) {
	w.string(p.ID)
	w.bytes(p.OtherMPubKey)
}

func (p *TransactionCreateA) decode(r *reader) {
	p.ID = r.string()
	p.OtherMPubKey = r.bytes("othermpubkey")
}

// Deposit describes a deposit made by a member.
type Deposit struct {
	BinTxID     string
	InnerScript []byte
	LockTime    uint32
}

func (d *Deposit) encode(w *writer) {
	w.string(d.BinTxID)
	w.bytes(d.InnerScript)
	w.uint32(d.LockTime)
}

func (d *Deposit) decode(r *reader) {
	d.BinTxID = r.string()
	d.InnerScript = r.bytes("innerscript")
	d.LockTime = r.uint32()
}

// TransactionCreatedA reports the deposit of the initiator.
type TransactionCreatedA struct {
	ID      string
	Deposit Deposit
}

func (*TransactionCreatedA) Command() Command { return CommandTransactionCreatedA }

func (p *TransactionCreatedA) encode(w *writer) {
	w.string(p.ID)
	p.Deposit.encode(w)
}

func (p *TransactionCreatedA) decode(r *reader) {
	p.ID = r.string()
	p.Deposit.decode(r)
}

// TransactionCreateB asks the acceptor to verify the deposit of the
// initiator and to make its own.
type TransactionCreateB struct {
	ID           string
	OtherDeposit Deposit
	OtherMPubKey []byte
	XHash        []byte
}

func (*TransactionCreateB) Command() Command { return CommandTransactionCreateB }

func (p *TransactionCreateB) encode(w *writer) {
	w.string(p.ID)
	p.OtherDeposit.encode(w)
	w.bytes(p.OtherMPubKey)
	w.bytes(p.XHash)
}

func (p *TransactionCreateB) decode(r *reader) {
	p.ID = r.string()
	p.OtherDeposit.decode(r)
	p.OtherMPubKey = r.bytes("othermpubkey")
	p.XHash = r.bytes("xhash")
}

// TransactionCreatedB reports the deposit of the acceptor.
type TransactionCreatedB struct {
	ID      string
	Deposit Deposit
}

func (*TransactionCreatedB) Command() Command { return CommandTransactionCreatedB }

func (p *TransactionCreatedB) encode(w *writer) {
	w.string(p.ID)
	p.Deposit.encode(w)
}

func (p *TransactionCreatedB) decode(r *reader) {
	p.ID = r.string()
	p.Deposit.decode(r)
}

// TransactionConfirmA asks the initiator to verify the deposit of the
// acceptor and to claim it.
type TransactionConfirmA struct {
	ID           string
	OtherDeposit Deposit
	OtherMPubKey []byte
}

func (*TransactionConfirmA) Command() Command { return CommandTransactionConfirmA }

func (p *TransactionConfirmA) encode(w *writer) {
	w.string(p.ID)
	p.OtherDeposit.encode(w)
	w.bytes(p.OtherMPubKey)
}

func (p *TransactionConfirmA) decode(r *reader) {
	p.ID = r.string()
	p.OtherDeposit.decode(r)
	p.OtherMPubKey = r.bytes("othermpubkey")
}

// TransactionConfirmedA reports the payment of the initiator, which reveals
// its exchange public key.
type TransactionConfirmedA struct {
	ID      string
	PayTxID string
	XPubKey []byte
}

func (*TransactionConfirmedA) Command() Command { return CommandTransactionConfirmedA }

func (p *TransactionConfirmedA) encode(w *writer) {
	w.string(p.ID)
	w.string(p.PayTxID)
	w.bytes(p.XPubKey)
}

func (p *TransactionConfirmedA) decode(r *reader) {
	p.ID = r.string()
	p.PayTxID = r.string()
	p.XPubKey = r.bytes("xpubkey")
}

// TransactionConfirmB hands the exchange public key to the acceptor.
type TransactionConfirmB struct {
	ID      string
	XPubKey []byte
}

func (*TransactionConfirmB) Command() Command { return CommandTransactionConfirmB }

func (p *TransactionConfirmB) encode(w *writer) {
	w.string(p.ID)
	w.bytes(p.XPubKey)
}

func (p *TransactionConfirmB) decode(r *reader) {
	p.ID = r.string()
	p.XPubKey = r.bytes("xpubkey")
}

// TransactionConfirmedB reports the payment of the acceptor.
type TransactionConfirmedB struct {
	ID      string
	PayTxID string
}

func (*TransactionConfirmedB) Command() Command { return CommandTransactionConfirmedB }

func (p *TransactionConfirmedB) encode(w *writer) {
	w.string(p.ID)
	w.string(p.PayTxID)
}

func (p *TransactionConfirmedB) decode(r *reader) {
	p.ID = r.string()
	p.PayTxID = r.string()
}

// TransactionFinished tells both members the swap completed.
type TransactionFinished struct {
	ID string
}

func (*TransactionFinished) Command() Command   { return CommandTransactionFinished }
func (p *TransactionFinished) encode(w *writer) { w.string(p.ID) }
func (p *TransactionFinished) decode(r *reader) { p.ID = r.string() }

// TransactionRollback tells a member with a deposit to refund it.
type TransactionRollback struct {
	ID     string
	Reason uint32
}

func (*TransactionRollback) Command() Command { return CommandTransactionRollback }

func (p *TransactionRollback) encode(w *writer) {
	w.string(p.ID)
	w.uint32(p.Reason)
}

func (p *TransactionRollback) decode(r *reader) {
	p.ID = r.string()
	p.Reason = r.uint32()
}

// TransactionDropped tells the network that the hub dropped an order.
type TransactionDropped struct {
	ID     string
	Reason uint32
}

func (*TransactionDropped) Command() Command { return CommandTransactionDropped }

func (p *TransactionDropped) encode(w *writer) {
	w.string(p.ID)
	w.uint32(p.Reason)
}

func (p *TransactionDropped) decode(r *reader) {
	p.ID = r.string()
	p.Reason = r.uint32()
}

// TransactionID returns the id of the swap a payload refers to, if any.
func TransactionID(p Payload) string {
	switch v := p.(type) {
	case *Transaction:
		return v.ID
	case *PendingTransaction:
		return v.ID
	case *TransactionAccepting:
		return v.ID
	case *TransactionCancel:
		return v.ID
	case *TransactionHold:
		return v.ID
	case *TransactionHoldApply:
		return v.ID
	case *TransactionInit:
		return v.ID
	case *TransactionInitialized:
		return v.ID
	case *TransactionCreateA:
		return v.ID
	case *TransactionCreatedA:
		return v.ID
	case *TransactionCreateB:
		return v.ID
	case *TransactionCreatedB:
		return v.ID
	case *TransactionConfirmA:
		return v.ID
	case *TransactionConfirmedA:
		return v.ID
	case *TransactionConfirmB:
		return v.ID
	case *TransactionConfirmedB:
		return v.ID
	case *TransactionFinished:
		return v.ID
	case *TransactionRollback:
		return v.ID
	case *TransactionDropped:
		return v.ID
	}
	return ""
}
