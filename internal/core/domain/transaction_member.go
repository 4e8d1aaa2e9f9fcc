package domain

import "bytes"

// TransactionMember is one of the two parties of a joined swap, as seen by
// the hub.
type TransactionMember struct {
	// Session is the protocol address the party talks from.
	Session []byte

	Source         string
	SourceXAddr    []byte
	SourceCurrency string
	SourceAmount   uint64
	Dest           string
	DestXAddr      []byte
	DestCurrency   string
	DestAmount     uint64

	MPubKey     []byte
	BinTxID     string
	InnerScript []byte
	LockTime    uint32
	PayTxID     string

	// Reported is the last phase this member reported.
	Reported State
	// Forwarded is the last phase the hub sent to this member.
	Forwarded State
}

// IsEmpty returns whether the member has been set.
func (m *TransactionMember) IsEmpty() bool {
	return m.Source == "" || m.Dest == ""
}

// Is returns whether the given session address is the member's one.
func (m *TransactionMember) Is(session []byte) bool {
	return len(m.Session) > 0 && bytes.Equal(m.Session, session)
}

func (m *TransactionMember) copy() TransactionMember {
	c := *m
	c.Session = cloneBytes(m.Session)
	c.SourceXAddr = cloneBytes(m.SourceXAddr)
	c.DestXAddr = cloneBytes(m.DestXAddr)
	c.MPubKey = cloneBytes(m.MPubKey)
	c.InnerScript = cloneBytes(m.InnerScript)
	return c
}
